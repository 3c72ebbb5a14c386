package hessian

// The encode and decode sides keep the same three tables in different
// shapes. Indices are assigned in first-encounter order on both sides; that
// matching order is the only thing that lets a decoder resolve what an
// encoder wrote.

// refMap is the encode-side reference table, keyed by identity: a composite
// Value or any comparable key a mapper chooses, typically a pointer.
type refMap struct {
	index map[any]int
	next  int
}

// add returns the existing index of v, or assigns the next one.
func (t *refMap) add(v any) (int, bool) {
	if i, ok := t.index[v]; ok {
		return i, true
	}
	if t.index == nil {
		t.index = make(map[any]int)
	}
	i := t.next
	t.index[v] = i
	t.next++
	return i, false
}

// bindLast keys v to the most recently assigned index.
func (t *refMap) bindLast(v any) {
	if t.index == nil {
		t.index = make(map[any]int)
	}
	t.index[v] = t.next - 1
}

func (t *refMap) lookup(v any) (int, bool) {
	i, ok := t.index[v]
	return i, ok
}

// alias points orig at the index already held by subst. The slot subst
// owns is not renumbered.
func (t *refMap) alias(orig, subst any) bool {
	i, ok := t.index[subst]
	if !ok {
		return false
	}
	t.index[orig] = i
	return true
}

func (t *refMap) remove(v any) bool {
	if _, ok := t.index[v]; !ok {
		return false
	}
	delete(t.index, v)
	return true
}

func (t *refMap) reset() {
	clear(t.index)
	t.next = 0
}

// refList is the decode-side reference table. Slots are reserved before a
// composite's children are read and may be patched afterwards.
type refList []Value

func (t *refList) reserve(v Value) int {
	*t = append(*t, v)
	return len(*t) - 1
}

func (t refList) get(i int) (Value, bool) {
	if i < 0 || i >= len(t) {
		return nil, false
	}
	return t[i], true
}

func (t refList) set(i int, v Value) bool {
	if i < 0 || i >= len(t) {
		return false
	}
	t[i] = v
	return true
}

// nameMap is the encode-side type-name or class table.
type nameMap struct {
	index map[string]int
	names []string
}

func (t *nameMap) lookup(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

func (t *nameMap) add(name string) int {
	if t.index == nil {
		t.index = make(map[string]int)
	}
	i := len(t.names)
	t.index[name] = i
	t.names = append(t.names, name)
	return i
}

func (t *nameMap) len() int { return len(t.names) }

func (t *nameMap) reset() {
	clear(t.index)
	t.names = t.names[:0]
}
