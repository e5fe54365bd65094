package expr

import (
	"encoding/json"
	"fmt"
)

// jsonNode is the persisted form of a tree:
//
//	{"type":"comparison","attribute":"age","operator":">","value":{"type":"number","number":30}}
//	{"type":"logical","operator":"AND","children":[...]}
//	{"type":"not","child":{...}}
type jsonNode struct {
	Type      string       `json:"type"`
	Attribute string       `json:"attribute,omitempty"`
	Operator  string       `json:"operator,omitempty"`
	Value     *jsonLiteral `json:"value,omitempty"`
	Children  []*jsonNode  `json:"children,omitempty"`
	Child     *jsonNode    `json:"child,omitempty"`
}

type jsonLiteral struct {
	Type   string   `json:"type"`
	Number *float64 `json:"number,omitempty"`
	Text   *string  `json:"text,omitempty"`
	Bool   *bool    `json:"bool,omitempty"`
}

// EncodeJSON returns the JSON form of a tree.
func EncodeJSON(n Node) ([]byte, error) {
	jn, err := toJSONNode(n)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jn)
}

// DecodeJSON parses the JSON form of a tree and validates the result.
func DecodeJSON(data []byte) (Node, error) {
	var jn jsonNode
	if err := json.Unmarshal(data, &jn); err != nil {
		return nil, fmt.Errorf("decode rule tree: %w", err)
	}
	n, err := fromJSONNode(&jn)
	if err != nil {
		return nil, err
	}
	if err := Validate(n); err != nil {
		return nil, err
	}
	return n, nil
}

func toJSONNode(n Node) (*jsonNode, error) {
	switch n := n.(type) {
	case *Comparison:
		lit := &jsonLiteral{Type: n.Value.Kind.String()}
		switch n.Value.Kind {
		case NumberLiteral:
			v := n.Value.Number
			lit.Number = &v
		case StringLiteral:
			v := n.Value.Text
			lit.Text = &v
		case BoolLiteral:
			v := n.Value.Bool
			lit.Bool = &v
		default:
			return nil, &InvalidTreeError{Reason: fmt.Sprintf("comparison on %q has no literal", n.Attribute)}
		}
		return &jsonNode{Type: "comparison", Attribute: n.Attribute, Operator: string(n.Op), Value: lit}, nil
	case *Logical:
		jn := &jsonNode{Type: "logical", Operator: string(n.Op), Children: make([]*jsonNode, 0, len(n.Children))}
		for _, child := range n.Children {
			jc, err := toJSONNode(child)
			if err != nil {
				return nil, err
			}
			jn.Children = append(jn.Children, jc)
		}
		return jn, nil
	case *Not:
		jc, err := toJSONNode(n.Child)
		if err != nil {
			return nil, err
		}
		return &jsonNode{Type: "not", Child: jc}, nil
	default:
		return nil, &InvalidTreeError{Reason: fmt.Sprintf("cannot encode node of type %T", n)}
	}
}

func fromJSONNode(jn *jsonNode) (Node, error) {
	if jn == nil {
		return nil, &InvalidTreeError{Reason: "missing node"}
	}
	switch jn.Type {
	case "comparison":
		if jn.Value == nil {
			return nil, &InvalidTreeError{Reason: fmt.Sprintf("comparison on %q has no value", jn.Attribute)}
		}
		lit, err := fromJSONLiteral(jn.Value)
		if err != nil {
			return nil, err
		}
		return &Comparison{Attribute: jn.Attribute, Op: CompareOp(jn.Operator), Value: lit}, nil
	case "logical":
		children := make([]Node, 0, len(jn.Children))
		for _, jc := range jn.Children {
			c, err := fromJSONNode(jc)
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		return &Logical{Op: LogicalOp(jn.Operator), Children: children}, nil
	case "not":
		c, err := fromJSONNode(jn.Child)
		if err != nil {
			return nil, err
		}
		return &Not{Child: c}, nil
	default:
		return nil, &InvalidTreeError{Reason: fmt.Sprintf("unknown node type %q", jn.Type)}
	}
}

func fromJSONLiteral(jl *jsonLiteral) (Literal, error) {
	switch {
	case jl.Type == "number" && jl.Number != nil:
		return Number(*jl.Number), nil
	case jl.Type == "string" && jl.Text != nil:
		return String(*jl.Text), nil
	case jl.Type == "boolean" && jl.Bool != nil:
		return Bool(*jl.Bool), nil
	}
	return Literal{}, &InvalidTreeError{Reason: fmt.Sprintf("malformed %q literal", jl.Type)}
}
