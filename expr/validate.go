package expr

import (
	"fmt"
	"strconv"
)

// InvalidTreeError reports a structurally malformed tree. Path locates the
// offending node, e.g. "children[1].child".
type InvalidTreeError struct {
	Path   string
	Reason string
}

func (e *InvalidTreeError) Error() string {
	if e.Path == "" {
		return "invalid rule tree: " + e.Reason
	}
	return fmt.Sprintf("invalid rule tree at %s: %s", e.Path, e.Reason)
}

// Validate checks a tree that did not come straight from the parser, such as
// one decoded from storage. Every comparison must name a valid identifier,
// use a known operator and carry a typed literal; every logical node must use
// AND or OR and hold at least one child.
func Validate(n Node) error {
	return validate(n, "")
}

func validate(n Node, path string) error {
	at := func(reason string, args ...any) error {
		p := path
		if p == "" {
			p = "root"
		}
		return &InvalidTreeError{Path: p, Reason: fmt.Sprintf(reason, args...)}
	}

	switch n := n.(type) {
	case nil:
		return at("missing node")
	case *Comparison:
		if !IsIdentifier(n.Attribute) {
			return at("invalid attribute name %q", n.Attribute)
		}
		if !n.Op.valid() {
			return at("unknown comparison operator %q", n.Op)
		}
		switch n.Value.Kind {
		case NumberLiteral, StringLiteral, BoolLiteral:
		default:
			return at("literal has no type")
		}
	case *Logical:
		if n.Op != And && n.Op != Or {
			return at("unknown logical operator %q", n.Op)
		}
		if len(n.Children) == 0 {
			return at("%s node has no children", n.Op)
		}
		for i, child := range n.Children {
			if err := validate(child, join(path, "children["+strconv.Itoa(i)+"]")); err != nil {
				return err
			}
		}
	case *Not:
		return validate(n.Child, join(path, "child"))
	default:
		return at("unknown node type %T", n)
	}
	return nil
}

func join(path, elem string) string {
	if path == "" {
		return elem
	}
	return path + "." + elem
}

// IsIdentifier reports whether s can be used as an attribute name in a rule
// string: a letter or underscore followed by letters, digits or underscores,
// and not a reserved keyword.
func IsIdentifier(s string) bool {
	if s == "" || !(isLetter(s[0]) || s[0] == '_') {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isLetter(s[i]) && !isDigit(s[i]) && s[i] != '_' {
			return false
		}
	}
	l := &lexer{input: s}
	return l.readWord().Kind == TokenIdent
}
