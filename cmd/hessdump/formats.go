package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"

	"github.com/dadrian/hessian"
	"github.com/dadrian/hessian/framing"
	"github.com/dadrian/hessian/internal/convert"
	"github.com/dadrian/hessian/textrep"
)

var (
	inputFormats  = []string{"text", "hessian", "hex", "json", "cbor", "msgpack"}
	outputFormats = []string{"text", "hessian", "hex", "json", "cbor", "msgpack", "yaml"}
)

// read returns every value in the input. Hessian input may hold a stream
// of values; the other formats hold one.
func (s *session) read(in io.Reader) ([]hessian.Value, error) {
	if !slices.Contains(inputFormats, s.cfg.From) {
		return nil, errors.Newf("unknown input format %q", s.cfg.From)
	}
	if s.cfg.From == "hessian" {
		return s.readHessian(in)
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	var v hessian.Value
	switch s.cfg.From {
	case "text":
		v, err = textrep.Parse(data)
	case "hex":
		raw, herr := hex.DecodeString(strings.Join(strings.Fields(string(data)), ""))
		if herr != nil {
			return nil, herr
		}
		return s.readHessian(bytes.NewReader(raw))
	case "json":
		v, err = convert.FromJSON(data)
	case "cbor":
		v, err = convert.FromCBOR(data)
	case "msgpack":
		v, err = convert.FromMsgpack(data)
	}
	if err != nil {
		return nil, err
	}
	return []hessian.Value{v}, nil
}

func (s *session) readHessian(in io.Reader) ([]hessian.Value, error) {
	var next func() (hessian.Value, error)
	if s.cfg.Framed {
		r, err := framing.NewReader(in, s.framingOptions()...)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		next = framing.NewDecoder(r).Decode
	} else {
		next = hessian.NewDecoder(in, s.codecOptions()...).Decode
	}
	var values []hessian.Value
	for {
		v, err := next()
		if err == io.EOF {
			return values, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "value %d", len(values))
		}
		values = append(values, v)
	}
}

func (s *session) write(out io.Writer, values []hessian.Value) error {
	if !slices.Contains(outputFormats, s.cfg.To) {
		return errors.Newf("unknown output format %q", s.cfg.To)
	}
	switch s.cfg.To {
	case "hessian":
		return s.writeHessian(out, values)
	case "hex":
		var buf bytes.Buffer
		if err := s.writeHessian(&buf, values); err != nil {
			return err
		}
		_, err := fmt.Fprintln(out, hex.EncodeToString(buf.Bytes()))
		return err
	}

	for i, v := range values {
		var b []byte
		var err error
		switch s.cfg.To {
		case "text":
			b = []byte(textrep.Format(v, textrep.Color(s.color)) + "\n")
		case "json":
			b, err = convert.ToJSON(v)
			b = append(b, '\n')
		case "cbor":
			b, err = convert.ToCBOR(v)
		case "msgpack":
			b, err = convert.ToMsgpack(v)
		case "yaml":
			b, err = convert.ToYAML(v)
			if i > 0 {
				b = append([]byte("---\n"), b...)
			}
		}
		if err != nil {
			return errors.Wrapf(err, "value %d", i)
		}
		if _, err := out.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// writeHessian writes values as one stream session, or one framed message
// per value.
func (s *session) writeHessian(out io.Writer, values []hessian.Value) error {
	if !s.cfg.Framed {
		e := hessian.NewEncoder(out, s.codecOptions()...)
		for _, v := range values {
			if err := e.Encode(v); err != nil {
				return err
			}
		}
		return nil
	}
	w, err := framing.NewWriter(out, s.framingOptions()...)
	if err != nil {
		return err
	}
	enc := framing.NewEncoder(w)
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	return w.Close()
}

type summary struct {
	composites, shared int
	kinds              map[hessian.Kind]int
	types              map[string]bool
	depth              int
}

func summarize(v hessian.Value) summary {
	s := summary{kinds: map[hessian.Kind]int{}, types: map[string]bool{}}
	seen := map[hessian.Value]bool{}
	var walk func(v hessian.Value, depth int)
	walk = func(v hessian.Value, depth int) {
		s.depth = max(s.depth, depth)
		if v == nil {
			v = hessian.Null{}
		}
		if !hessian.IsComposite(v) {
			s.kinds[v.Kind()]++
			return
		}
		if seen[v] {
			s.shared++
			return
		}
		seen[v] = true
		s.composites++
		s.kinds[v.Kind()]++
		switch x := v.(type) {
		case *hessian.List:
			if x.Type != "" {
				s.types[x.Type] = true
			}
			for _, el := range x.Elems {
				walk(el, depth+1)
			}
		case *hessian.Map:
			if x.Type != "" {
				s.types[x.Type] = true
			}
			for _, en := range x.Entries {
				walk(en.Key, depth+1)
				walk(en.Value, depth+1)
			}
		case *hessian.Object:
			s.types[x.Type] = true
			for _, f := range x.Fields {
				walk(f.Value, depth+1)
			}
		}
	}
	walk(v, 0)
	return s
}

func (s *session) info(out io.Writer, values []hessian.Value) error {
	heading := color.New(color.Bold)
	if s.color {
		heading.EnableColor()
	} else {
		heading.DisableColor()
	}
	for i, v := range values {
		sum := summarize(v)
		kind := hessian.KindNull
		if v != nil {
			kind = v.Kind()
		}
		var kinds []string
		for k := hessian.KindNull; k <= hessian.KindObject; k++ {
			if n := sum.kinds[k]; n > 0 {
				kinds = append(kinds, fmt.Sprintf("%s=%d", k, n))
			}
		}
		types := make([]string, 0, len(sum.types))
		for t := range sum.types {
			types = append(types, t)
		}
		slices.Sort(types)

		if _, err := heading.Fprintf(out, "value %d: %s\n", i, kind); err != nil {
			return err
		}
		fmt.Fprintf(out, "  composites: %d (%d back-references)\n", sum.composites, sum.shared)
		fmt.Fprintf(out, "  depth: %d\n", sum.depth)
		fmt.Fprintf(out, "  kinds: %s\n", strings.Join(kinds, " "))
		if len(types) > 0 {
			fmt.Fprintf(out, "  types: %s\n", strings.Join(types, ", "))
		}
	}
	return nil
}
