package spec

import (
	"strconv"
	"strings"

	"github.com/koustreak/dbspec/internal/errs"
	"go.yaml.in/yaml/v3"
)

// --- building ---

func mapNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func seqNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
}

// strNode emits multi-line text as a literal block so line breaks survive
// exactly.
func strNode(s string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	if strings.Contains(s, "\n") {
		n.Style = yaml.LiteralStyle
	}
	return n
}

func boolNode(b bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(b)}
}

func intNode(i int64) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(i, 10)}
}

func floatNode(f float64) *yaml.Node {
	if f == float64(int64(f)) {
		return intNode(int64(f))
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: strconv.FormatFloat(f, 'g', -1, 64)}
}

func strSeq(items []string) *yaml.Node {
	n := seqNode()
	n.Style = yaml.FlowStyle
	for _, s := range items {
		n.Content = append(n.Content, strNode(s))
	}
	return n
}

func put(m *yaml.Node, key string, val *yaml.Node) {
	m.Content = append(m.Content, strNode(key), val)
}

func putStr(m *yaml.Node, key, val string) {
	if val != "" {
		put(m, key, strNode(val))
	}
}

func putBool(m *yaml.Node, key string, val bool) {
	if val {
		put(m, key, boolNode(true))
	}
}

func putStrs(m *yaml.Node, key string, vals []string) {
	if len(vals) > 0 {
		put(m, key, strSeq(vals))
	}
}

// --- reading ---

// pair is one key/value entry of a mapping, in document order.
type pair struct {
	key string
	val *yaml.Node
	ctx string // document path, for error messages
}

func syntaxErr(ctx, format string, args ...any) error {
	return errs.Keyedf(errs.ErrKindSpecSyntax, ctx, format, args...)
}

func pairs(n *yaml.Node, ctx string) ([]pair, error) {
	if n == nil || (n.Kind == yaml.ScalarNode && n.Tag == "!!null") {
		return nil, nil
	}
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n.Kind != yaml.MappingNode {
		return nil, syntaxErr(ctx, "expected a mapping at line %d", n.Line)
	}
	out := make([]pair, 0, len(n.Content)/2)
	seen := make(map[string]bool, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		if k.Kind != yaml.ScalarNode {
			return nil, syntaxErr(ctx, "non-scalar key at line %d", k.Line)
		}
		if seen[k.Value] {
			return nil, syntaxErr(ctx, "duplicate key %q at line %d", k.Value, k.Line)
		}
		seen[k.Value] = true
		sub := k.Value
		if ctx != "" {
			sub = ctx + "/" + k.Value
		}
		out = append(out, pair{key: k.Value, val: n.Content[i+1], ctx: sub})
	}
	return out, nil
}

func scalar(p pair) (string, error) {
	if p.val.Kind != yaml.ScalarNode {
		return "", syntaxErr(p.ctx, "expected a scalar at line %d", p.val.Line)
	}
	if p.val.Tag == "!!null" {
		return "", nil
	}
	return p.val.Value, nil
}

func boolean(p pair) (bool, error) {
	var b bool
	if err := p.val.Decode(&b); err != nil {
		return false, errs.Wrap(errs.ErrKindSpecSyntax, p.ctx+": expected a boolean", err)
	}
	return b, nil
}

func integer(p pair) (int64, error) {
	var i int64
	if err := p.val.Decode(&i); err != nil {
		return 0, errs.Wrap(errs.ErrKindSpecSyntax, p.ctx+": expected an integer", err)
	}
	return i, nil
}

func number(p pair) (float64, error) {
	var f float64
	if err := p.val.Decode(&f); err != nil {
		return 0, errs.Wrap(errs.ErrKindSpecSyntax, p.ctx+": expected a number", err)
	}
	return f, nil
}

func strList(p pair) ([]string, error) {
	if p.val.Kind == yaml.ScalarNode {
		s, err := scalar(p)
		if err != nil || s == "" {
			return nil, err
		}
		return []string{s}, nil
	}
	if p.val.Kind != yaml.SequenceNode {
		return nil, syntaxErr(p.ctx, "expected a list at line %d", p.val.Line)
	}
	out := make([]string, 0, len(p.val.Content))
	for _, item := range p.val.Content {
		if item.Kind != yaml.ScalarNode {
			return nil, syntaxErr(p.ctx, "expected a list of scalars at line %d", item.Line)
		}
		out = append(out, item.Value)
	}
	return out, nil
}

// items returns the elements of a sequence node.
func items(p pair) ([]*yaml.Node, error) {
	if p.val.Kind != yaml.SequenceNode {
		return nil, syntaxErr(p.ctx, "expected a list at line %d", p.val.Line)
	}
	return p.val.Content, nil
}

// singleKey unpacks a one-entry mapping such as "- c1: {type: integer}".
func singleKey(n *yaml.Node, ctx string) (pair, error) {
	ps, err := pairs(n, ctx)
	if err != nil {
		return pair{}, err
	}
	if len(ps) != 1 {
		return pair{}, syntaxErr(ctx, "expected a single-key mapping at line %d", n.Line)
	}
	return ps[0], nil
}
