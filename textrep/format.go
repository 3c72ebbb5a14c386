package textrep

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/dadrian/hessian"
)

type formatOptions struct {
	indent string
	color  bool
}

// FormatOption configures Format.
type FormatOption func(*formatOptions)

// Indent sets the per-level indentation. An empty indent prints everything
// on one line.
func Indent(s string) FormatOption { return func(o *formatOptions) { o.indent = s } }

// Compact prints everything on one line.
func Compact() FormatOption { return Indent("") }

// Color enables ANSI styling of scalars, type names and labels.
func Color(on bool) FormatOption { return func(o *formatOptions) { o.color = on } }

type palette struct {
	keyword, number, str, typ, label func(a ...any) string
}

func plain(a ...any) string { return a[0].(string) }

func newPalette(on bool) palette {
	if !on {
		return palette{plain, plain, plain, plain, plain}
	}
	style := func(attrs ...color.Attribute) func(a ...any) string {
		c := color.New(attrs...)
		c.EnableColor()
		return c.SprintFunc()
	}
	return palette{
		keyword: style(color.FgMagenta),
		number:  style(color.FgCyan),
		str:     style(color.FgGreen),
		typ:     style(color.FgYellow, color.Bold),
		label:   style(color.FgRed),
	}
}

// Format prints v in the notation Parse reads. Composites reachable more
// than once are labelled $1, $2, ... in order of first appearance.
func Format(v hessian.Value, opts ...FormatOption) string {
	o := formatOptions{indent: "  "}
	for _, opt := range opts {
		opt(&o)
	}
	f := &formatter{
		opts:    o,
		pal:     newPalette(o.color),
		labels:  map[hessian.Value]int{},
		printed: map[hessian.Value]bool{},
	}
	f.count(v, map[hessian.Value]int{})
	f.value(v, 0)
	return f.sb.String()
}

type formatter struct {
	sb      strings.Builder
	opts    formatOptions
	pal     palette
	labels  map[hessian.Value]int
	printed map[hessian.Value]bool
	next    int
}

// count marks every composite reachable more than once.
func (f *formatter) count(v hessian.Value, seen map[hessian.Value]int) {
	if !hessian.IsComposite(v) {
		return
	}
	seen[v]++
	if seen[v] > 1 {
		f.labels[v] = 0
		return
	}
	switch c := v.(type) {
	case *hessian.List:
		for _, el := range c.Elems {
			f.count(el, seen)
		}
	case *hessian.Map:
		for _, en := range c.Entries {
			f.count(en.Key, seen)
			f.count(en.Value, seen)
		}
	case *hessian.Object:
		for _, fd := range c.Fields {
			f.count(fd.Value, seen)
		}
	}
}

func (f *formatter) newline(depth int) {
	if f.opts.indent == "" {
		return
	}
	f.sb.WriteByte('\n')
	for range depth {
		f.sb.WriteString(f.opts.indent)
	}
}

func (f *formatter) sep(last bool, depth int) {
	if !last {
		f.sb.WriteByte(',')
		if f.opts.indent == "" {
			f.sb.WriteByte(' ')
		}
	}
	if last {
		f.newline(depth - 1)
	} else {
		f.newline(depth)
	}
}

func (f *formatter) value(v hessian.Value, depth int) {
	if hessian.IsComposite(v) {
		if n, ok := f.labels[v]; ok {
			if n == 0 {
				f.next++
				n = f.next
				f.labels[v] = n
			}
			name := f.pal.label("$" + strconv.Itoa(n))
			if f.printed[v] {
				f.sb.WriteString(name)
				return
			}
			f.sb.WriteString(name + " = ")
		}
		f.printed[v] = true
	}
	switch x := v.(type) {
	case nil, hessian.Null:
		f.sb.WriteString(f.pal.keyword("null"))
	case hessian.Bool:
		f.sb.WriteString(f.pal.keyword(strconv.FormatBool(bool(x))))
	case hessian.Int32:
		f.sb.WriteString(f.pal.number(strconv.FormatInt(int64(x), 10)))
	case hessian.Int64:
		f.sb.WriteString(f.pal.number(strconv.FormatInt(int64(x), 10) + "L"))
	case hessian.Double:
		f.sb.WriteString(f.pal.number(formatDouble(float64(x))))
	case hessian.Date:
		f.sb.WriteString(f.pal.keyword("date") + "(" + f.pal.number(formatDate(x)) + ")")
	case hessian.String:
		f.sb.WriteString(f.pal.str(strconv.Quote(string(x))))
	case hessian.Binary:
		f.sb.WriteString(f.pal.keyword("bin") + f.pal.str(strconv.Quote(hex.EncodeToString(x))))
	case *hessian.List:
		if x.Type != "" {
			f.sb.WriteString(f.pal.keyword("list") + "<" + f.pal.typ(strconv.Quote(x.Type)) + ">")
		}
		f.sb.WriteByte('[')
		if len(x.Elems) > 0 {
			f.newline(depth + 1)
		}
		for i, el := range x.Elems {
			f.value(el, depth+1)
			f.sep(i == len(x.Elems)-1, depth+1)
		}
		f.sb.WriteByte(']')
	case *hessian.Map:
		if x.Type != "" {
			f.sb.WriteString(f.pal.keyword("map") + "<" + f.pal.typ(strconv.Quote(x.Type)) + ">")
		}
		f.sb.WriteByte('{')
		if len(x.Entries) > 0 {
			f.newline(depth + 1)
		}
		for i, en := range x.Entries {
			f.value(en.Key, depth+1)
			f.sb.WriteString(": ")
			f.value(en.Value, depth+1)
			f.sep(i == len(x.Entries)-1, depth+1)
		}
		f.sb.WriteByte('}')
	case *hessian.Object:
		f.sb.WriteString(f.pal.keyword("object") + " " + f.pal.typ(strconv.Quote(x.Type)) + " {")
		if len(x.Fields) > 0 {
			f.newline(depth + 1)
		}
		for i, fd := range x.Fields {
			f.sb.WriteString(fieldName(fd.Name) + ": ")
			f.value(fd.Value, depth+1)
			f.sep(i == len(x.Fields)-1, depth+1)
		}
		f.sb.WriteByte('}')
	}
}

func formatDate(d hessian.Date) string {
	t := d.Time()
	if y := t.Year(); y < 0 || y > 9999 {
		return strconv.FormatInt(int64(d), 10)
	}
	return strconv.Quote(t.Format("2006-01-02T15:04:05.999Z07:00"))
}

var keywords = map[string]bool{
	"null": true, "true": true, "false": true, "bin": true, "date": true,
	"list": true, "map": true, "object": true, "inf": true, "nan": true,
}

// fieldName prints name bare when it lexes as an identifier.
func fieldName(name string) string {
	if name == "" || keywords[name] || !isIdentStart(name[0]) {
		return strconv.Quote(name)
	}
	for i := 1; i < len(name); i++ {
		if !isIdentPart(name[i]) {
			return strconv.Quote(name)
		}
	}
	return name
}
