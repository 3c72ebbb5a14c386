package hessian

import (
	"fmt"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindDouble
	KindDate
	KindString
	KindBinary
	KindList
	KindMap
	KindObject
)

var kindNames = [...]string{
	KindNull:   "null",
	KindBool:   "bool",
	KindInt32:  "int",
	KindInt64:  "long",
	KindDouble: "double",
	KindDate:   "date",
	KindString: "string",
	KindBinary: "binary",
	KindList:   "list",
	KindMap:    "map",
	KindObject: "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is one node of a value graph. Scalars are plain Go values; the
// composites *List, *Map and *Object are pointers, and pointer identity is
// what the reference table shares.
type Value interface {
	Kind() Kind
}

type (
	// Null is the absent value.
	Null struct{}
	// Bool is a boolean.
	Bool bool
	// Int32 is a 32-bit signed integer.
	Int32 int32
	// Int64 is a 64-bit signed integer.
	Int64 int64
	// Double is an IEEE-754 double.
	Double float64
	// Date is a UTC instant in milliseconds since the Unix epoch.
	Date int64
	// String is text. On the wire its length is counted in UTF-16 units.
	String string
	// Binary is an opaque byte sequence.
	Binary []byte
)

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Int32) Kind() Kind  { return KindInt32 }
func (Int64) Kind() Kind  { return KindInt64 }
func (Double) Kind() Kind { return KindDouble }
func (Date) Kind() Kind   { return KindDate }
func (String) Kind() Kind { return KindString }
func (Binary) Kind() Kind { return KindBinary }

// DateOf converts t to a Date, dropping sub-millisecond precision.
func DateOf(t time.Time) Date { return Date(t.UnixMilli()) }

// Time returns d as a UTC time.Time.
func (d Date) Time() time.Time { return time.UnixMilli(int64(d)).UTC() }

// List is an ordered sequence. An empty Type means untyped.
type List struct {
	Type  string
	Elems []Value
}

func (*List) Kind() Kind { return KindList }

// Entry is one key/value pair of a Map.
type Entry struct {
	Key   Value
	Value Value
}

// Map is an ordered sequence of entries. An empty Type means untyped.
type Map struct {
	Type    string
	Entries []Entry
}

func (*Map) Kind() Kind { return KindMap }

// Get returns the value of the first entry whose key equals key. Only
// scalar keys compare by value; composite keys compare by identity.
func (m *Map) Get(key Value) (Value, bool) {
	composite := IsComposite(key)
	for _, e := range m.Entries {
		if composite && e.Key == key || !composite && Equal(e.Key, key) {
			return e.Value, true
		}
	}
	return nil, false
}

// Put appends an entry.
func (m *Map) Put(key, value Value) { m.Entries = append(m.Entries, Entry{Key: key, Value: value}) }

// Field is one named field of an Object.
type Field struct {
	Name  string
	Value Value
}

// Object is an instance of a named class with ordered fields.
type Object struct {
	Type   string
	Fields []Field
}

func (*Object) Kind() Kind { return KindObject }

// Get returns the value of the named field.
func (o *Object) Get(name string) (Value, bool) {
	for _, f := range o.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Set replaces the named field, appending it if absent.
func (o *Object) Set(name string, v Value) {
	for i := range o.Fields {
		if o.Fields[i].Name == name {
			o.Fields[i].Value = v
			return
		}
	}
	o.Fields = append(o.Fields, Field{Name: name, Value: v})
}

// FieldNames returns the field names in order.
func (o *Object) FieldNames() []string {
	names := make([]string, len(o.Fields))
	for i, f := range o.Fields {
		names[i] = f.Name
	}
	return names
}

// ClassDefinition is a type name and its ordered field names. Instances
// refer to it by its index in the session's class table.
type ClassDefinition struct {
	Type   string
	Fields []string
}

// IsComposite reports whether v takes part in reference sharing.
func IsComposite(v Value) bool {
	switch v.(type) {
	case *List, *Map, *Object:
		return true
	default:
		return false
	}
}

// Equal reports whether a and b are structurally equal. Composites that
// were already compared along the current path are assumed equal, so
// cyclic graphs terminate. A nil Value equals Null.
func Equal(a, b Value) bool {
	return equal(a, b, map[[2]Value]bool{})
}

func equal(a, b Value, seen map[[2]Value]bool) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case Binary:
		y := b.(Binary)
		return string(x) == string(y)
	case Double:
		y := b.(Double)
		return x == y || x != x && y != y
	case *List:
		y := b.(*List)
		if x == y {
			return true
		}
		if seen[[2]Value{x, y}] {
			return true
		}
		seen[[2]Value{x, y}] = true
		if x.Type != y.Type || len(x.Elems) != len(y.Elems) {
			return false
		}
		for i := range x.Elems {
			if !equal(x.Elems[i], y.Elems[i], seen) {
				return false
			}
		}
		return true
	case *Map:
		y := b.(*Map)
		if x == y {
			return true
		}
		if seen[[2]Value{x, y}] {
			return true
		}
		seen[[2]Value{x, y}] = true
		if x.Type != y.Type || len(x.Entries) != len(y.Entries) {
			return false
		}
		for i := range x.Entries {
			if !equal(x.Entries[i].Key, y.Entries[i].Key, seen) || !equal(x.Entries[i].Value, y.Entries[i].Value, seen) {
				return false
			}
		}
		return true
	case *Object:
		y := b.(*Object)
		if x == y {
			return true
		}
		if seen[[2]Value{x, y}] {
			return true
		}
		seen[[2]Value{x, y}] = true
		if x.Type != y.Type || len(x.Fields) != len(y.Fields) {
			return false
		}
		for i := range x.Fields {
			if x.Fields[i].Name != y.Fields[i].Name || !equal(x.Fields[i].Value, y.Fields[i].Value, seen) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
