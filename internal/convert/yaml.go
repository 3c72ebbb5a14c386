package convert

import (
	"encoding/base64"
	"math"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/dadrian/hessian"
)

// ToYAML writes v as a YAML document. Order is kept, class and type names
// become local tags, and composites reached more than once become anchors
// and aliases, so shared and cyclic graphs are written faithfully.
func ToYAML(v hessian.Value) ([]byte, error) {
	b := &yamlBuilder{nodes: map[hessian.Value]*yaml.Node{}}
	b.countUses(v, map[hessian.Value]int{})
	root := b.node(v)
	out, err := yaml.Marshal(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}})
	if err != nil {
		return nil, errors.Wrap(err, "convert: yaml")
	}
	return out, nil
}

type yamlBuilder struct {
	nodes  map[hessian.Value]*yaml.Node
	shared map[hessian.Value]bool
	next   int
}

func (b *yamlBuilder) countUses(v hessian.Value, seen map[hessian.Value]int) {
	if !hessian.IsComposite(v) {
		return
	}
	seen[v]++
	if seen[v] > 1 {
		if b.shared == nil {
			b.shared = map[hessian.Value]bool{}
		}
		b.shared[v] = true
		return
	}
	switch x := v.(type) {
	case *hessian.List:
		for _, el := range x.Elems {
			b.countUses(el, seen)
		}
	case *hessian.Map:
		for _, en := range x.Entries {
			b.countUses(en.Key, seen)
			b.countUses(en.Value, seen)
		}
	case *hessian.Object:
		for _, f := range x.Fields {
			b.countUses(f.Value, seen)
		}
	}
}

func scalarNode(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func localTag(name string) string {
	if name == "" {
		return ""
	}
	return "!" + name
}

func (b *yamlBuilder) node(v hessian.Value) *yaml.Node {
	switch x := v.(type) {
	case nil, hessian.Null:
		return scalarNode("!!null", "null")
	case hessian.Bool:
		return scalarNode("!!bool", strconv.FormatBool(bool(x)))
	case hessian.Int32:
		return scalarNode("!!int", strconv.FormatInt(int64(x), 10))
	case hessian.Int64:
		return scalarNode("!!int", strconv.FormatInt(int64(x), 10))
	case hessian.Double:
		return scalarNode("!!float", yamlFloat(float64(x)))
	case hessian.Date:
		return scalarNode("!!timestamp", x.Time().Format(time.RFC3339Nano))
	case hessian.String:
		return scalarNode("!!str", string(x))
	case hessian.Binary:
		return scalarNode("!!binary", base64.StdEncoding.EncodeToString(x))
	}

	if n, ok := b.nodes[v]; ok {
		return &yaml.Node{Kind: yaml.AliasNode, Alias: n, Value: n.Anchor}
	}
	n := &yaml.Node{}
	b.nodes[v] = n
	if b.shared[v] {
		b.next++
		n.Anchor = "r" + strconv.Itoa(b.next)
	}
	switch x := v.(type) {
	case *hessian.List:
		n.Kind, n.Tag = yaml.SequenceNode, localTag(x.Type)
		for _, el := range x.Elems {
			n.Content = append(n.Content, b.node(el))
		}
	case *hessian.Map:
		n.Kind, n.Tag = yaml.MappingNode, localTag(x.Type)
		for _, en := range x.Entries {
			n.Content = append(n.Content, b.node(en.Key), b.node(en.Value))
		}
	case *hessian.Object:
		n.Kind, n.Tag = yaml.MappingNode, localTag(x.Type)
		for _, f := range x.Fields {
			n.Content = append(n.Content, scalarNode("!!str", f.Name), b.node(f.Value))
		}
	}
	return n
}

func yamlFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
