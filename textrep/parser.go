package textrep

import (
	"encoding/hex"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/dadrian/hessian"
)

// Parse reads one value in text notation. Labels bind composites so the
// same list, map or object can appear more than once, including inside
// itself.
func Parse(src []byte) (hessian.Value, error) {
	p := &parser{lx: newLexer(src), labels: map[string]hessian.Value{}}
	p.lx.next()
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if p.lx.cur.kind != tokEOF {
		return nil, p.errorf("unexpected %v after value", p.lx.cur.kind)
	}
	if len(p.forward) > 0 {
		if err := p.resolve(v); err != nil {
			return nil, err
		}
		if ref, ok := v.(labelRef); ok {
			return p.labels[ref.name], nil
		}
	}
	return v, nil
}

// Compile parses src and encodes the value in a fresh session.
func Compile(src []byte, opts ...hessian.Option) ([]byte, error) {
	v, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return hessian.Marshal(v, opts...)
}

// Encode reads a document from r and writes its encoding to w.
func Encode(r io.Reader, w io.Writer, opts ...hessian.Option) error {
	src, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	out, err := Compile(src, opts...)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// labelRef stands in for a label used before its definition. It never
// escapes Parse.
type labelRef struct {
	name string
	pos  int
}

func (labelRef) Kind() hessian.Kind { return hessian.KindNull }

type parser struct {
	lx      *lexer
	labels  map[string]hessian.Value
	forward []labelRef
}

func (p *parser) errorf(format string, args ...any) error {
	return errors.Wrapf(errors.Newf(format, args...), "textrep: offset %d", p.lx.cur.pos)
}

func (p *parser) expect(k tokKind) error {
	if p.lx.cur.kind != k {
		if p.lx.cur.kind == tokError {
			return p.errorf("%s", p.lx.cur.lit)
		}
		return p.errorf("expected %v, got %v", k, p.lx.cur.kind)
	}
	p.lx.next()
	return nil
}

// optionalType parses `<"name">` if present.
func (p *parser) optionalType() (string, error) {
	if p.lx.cur.kind != tokLt {
		return "", nil
	}
	p.lx.next()
	if p.lx.cur.kind != tokString {
		return "", p.errorf("expected type name, got %v", p.lx.cur.kind)
	}
	typ := p.lx.cur.lit
	p.lx.next()
	return typ, p.expect(tokGt)
}

func (p *parser) parseValue() (hessian.Value, error) {
	tok := p.lx.cur
	switch tok.kind {
	case tokLabel:
		p.lx.next()
		if p.lx.cur.kind == tokEq {
			p.lx.next()
			return p.parseLabelled(tok)
		}
		if v, ok := p.labels[tok.lit]; ok {
			return v, nil
		}
		ref := labelRef{name: tok.lit, pos: tok.pos}
		p.forward = append(p.forward, ref)
		return ref, nil
	case tokInt:
		p.lx.next()
		n, err := strconv.ParseInt(tok.lit, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "textrep: offset %d: int literal (use an L suffix for long)", tok.pos)
		}
		return hessian.Int32(n), nil
	case tokLong:
		p.lx.next()
		n, err := strconv.ParseInt(tok.lit, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "textrep: offset %d: long literal", tok.pos)
		}
		return hessian.Int64(n), nil
	case tokFloat:
		p.lx.next()
		f, err := strconv.ParseFloat(tok.lit, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "textrep: offset %d: double literal", tok.pos)
		}
		return hessian.Double(f), nil
	case tokString:
		p.lx.next()
		return hessian.String(tok.lit), nil
	case tokLBrack, tokLBrace:
		return p.parseComposite(nil)
	case tokIdent:
		switch tok.lit {
		case "null":
			p.lx.next()
			return hessian.Null{}, nil
		case "true", "false":
			p.lx.next()
			return hessian.Bool(tok.lit == "true"), nil
		case "bin":
			p.lx.next()
			if p.lx.cur.kind != tokString {
				return nil, p.errorf("expected hex string after bin")
			}
			b, err := hex.DecodeString(p.lx.cur.lit)
			if err != nil {
				return nil, errors.Wrapf(err, "textrep: offset %d: binary literal", p.lx.cur.pos)
			}
			p.lx.next()
			return hessian.Binary(b), nil
		case "date":
			return p.parseDate()
		case "list", "map", "object":
			return p.parseComposite(nil)
		}
	case tokError:
		return nil, p.errorf("%s", tok.lit)
	}
	return nil, p.errorf("unexpected %v %q in value", tok.kind, tok.lit)
}

// parseLabelled binds the label before parsing the body so the body can
// refer back to it.
func (p *parser) parseLabelled(label token) (hessian.Value, error) {
	if _, dup := p.labels[label.lit]; dup {
		return nil, p.errorf("label $%s defined twice", label.lit)
	}
	var shell hessian.Value
	switch {
	case p.lx.cur.kind == tokLBrack || p.lx.cur.kind == tokIdent && p.lx.cur.lit == "list":
		shell = &hessian.List{}
	case p.lx.cur.kind == tokLBrace || p.lx.cur.kind == tokIdent && p.lx.cur.lit == "map":
		shell = &hessian.Map{}
	case p.lx.cur.kind == tokIdent && p.lx.cur.lit == "object":
		shell = &hessian.Object{}
	default:
		return nil, p.errorf("label $%s must name a list, map or object", label.lit)
	}
	p.labels[label.lit] = shell
	return p.parseComposite(shell)
}

// parseComposite fills shell, or a new composite when shell is nil.
func (p *parser) parseComposite(shell hessian.Value) (hessian.Value, error) {
	var err error
	switch {
	case p.lx.cur.kind == tokLBrack || p.lx.cur.lit == "list":
		l, _ := shell.(*hessian.List)
		if l == nil {
			l = &hessian.List{}
		}
		if p.lx.cur.kind == tokIdent {
			p.lx.next()
			if l.Type, err = p.optionalType(); err != nil {
				return nil, err
			}
		}
		return l, p.parseList(l)
	case p.lx.cur.kind == tokLBrace || p.lx.cur.lit == "map":
		m, _ := shell.(*hessian.Map)
		if m == nil {
			m = &hessian.Map{}
		}
		if p.lx.cur.kind == tokIdent {
			p.lx.next()
			if m.Type, err = p.optionalType(); err != nil {
				return nil, err
			}
		}
		return m, p.parseMap(m)
	default:
		o, _ := shell.(*hessian.Object)
		if o == nil {
			o = &hessian.Object{}
		}
		p.lx.next()
		if p.lx.cur.kind != tokString {
			return nil, p.errorf("expected object type name, got %v", p.lx.cur.kind)
		}
		o.Type = p.lx.cur.lit
		p.lx.next()
		return o, p.parseObject(o)
	}
}

func (p *parser) parseList(l *hessian.List) error {
	if err := p.expect(tokLBrack); err != nil {
		return err
	}
	l.Elems = []hessian.Value{}
	for p.lx.cur.kind != tokRBrack && p.lx.cur.kind != tokEOF {
		v, err := p.parseValue()
		if err != nil {
			return err
		}
		l.Elems = append(l.Elems, v)
		if p.lx.cur.kind == tokComma {
			p.lx.next()
		}
	}
	return p.expect(tokRBrack)
}

func (p *parser) parseMap(m *hessian.Map) error {
	if err := p.expect(tokLBrace); err != nil {
		return err
	}
	for p.lx.cur.kind != tokRBrace && p.lx.cur.kind != tokEOF {
		k, err := p.parseValue()
		if err != nil {
			return err
		}
		if err := p.expect(tokColon); err != nil {
			return err
		}
		v, err := p.parseValue()
		if err != nil {
			return err
		}
		m.Put(k, v)
		if p.lx.cur.kind == tokComma {
			p.lx.next()
		}
	}
	return p.expect(tokRBrace)
}

func (p *parser) parseObject(o *hessian.Object) error {
	if err := p.expect(tokLBrace); err != nil {
		return err
	}
	for p.lx.cur.kind != tokRBrace && p.lx.cur.kind != tokEOF {
		if p.lx.cur.kind != tokIdent && p.lx.cur.kind != tokString {
			return p.errorf("expected field name, got %v", p.lx.cur.kind)
		}
		name := p.lx.cur.lit
		if _, dup := o.Get(name); dup {
			return p.errorf("field %q repeated", name)
		}
		p.lx.next()
		if err := p.expect(tokColon); err != nil {
			return err
		}
		v, err := p.parseValue()
		if err != nil {
			return err
		}
		o.Fields = append(o.Fields, hessian.Field{Name: name, Value: v})
		if p.lx.cur.kind == tokComma {
			p.lx.next()
		}
	}
	return p.expect(tokRBrace)
}

// parseDate reads date(millis) or date("RFC3339").
func (p *parser) parseDate() (hessian.Value, error) {
	p.lx.next()
	if err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	tok := p.lx.cur
	var d hessian.Date
	switch tok.kind {
	case tokInt, tokLong:
		ms, err := strconv.ParseInt(tok.lit, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "textrep: offset %d: date", tok.pos)
		}
		d = hessian.Date(ms)
	case tokString:
		t, err := time.Parse(time.RFC3339, tok.lit)
		if err != nil {
			return nil, errors.Wrapf(err, "textrep: offset %d: date", tok.pos)
		}
		d = hessian.DateOf(t)
	default:
		return nil, p.errorf("expected milliseconds or RFC3339 string in date(...)")
	}
	p.lx.next()
	return d, p.expect(tokRParen)
}

// resolve replaces forward label uses throughout the tree rooted at v.
func (p *parser) resolve(v hessian.Value) error {
	seen := map[hessian.Value]bool{}
	var fix func(x hessian.Value) (hessian.Value, error)
	fix = func(x hessian.Value) (hessian.Value, error) {
		if ref, ok := x.(labelRef); ok {
			target, ok := p.labels[ref.name]
			if !ok {
				return nil, errors.Newf("textrep: offset %d: undefined label $%s", ref.pos, ref.name)
			}
			return target, nil
		}
		if !hessian.IsComposite(x) || seen[x] {
			return x, nil
		}
		seen[x] = true
		var err error
		switch c := x.(type) {
		case *hessian.List:
			for i := range c.Elems {
				if c.Elems[i], err = fix(c.Elems[i]); err != nil {
					return nil, err
				}
			}
		case *hessian.Map:
			for i := range c.Entries {
				if c.Entries[i].Key, err = fix(c.Entries[i].Key); err != nil {
					return nil, err
				}
				if c.Entries[i].Value, err = fix(c.Entries[i].Value); err != nil {
					return nil, err
				}
			}
		case *hessian.Object:
			for i := range c.Fields {
				if c.Fields[i].Value, err = fix(c.Fields[i].Value); err != nil {
					return nil, err
				}
			}
		}
		return x, nil
	}
	_, err := fix(v)
	return err
}

// formatDouble prints f so that it reads back as a double.
func formatDouble(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	for _, c := range s {
		if c == '.' || c == 'e' {
			return s
		}
	}
	return s + ".0"
}
