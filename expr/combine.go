package expr

import "fmt"

// Lookup resolves a stored rule id to its tree. It is implemented by the
// persistence layer; ok is false when the id is unknown.
type Lookup interface {
	LookupTree(id string) (n Node, ok bool, err error)
}

// LookupFunc adapts a function to the Lookup interface.
type LookupFunc func(id string) (Node, bool, error)

// LookupTree calls f(id).
func (f LookupFunc) LookupTree(id string) (Node, bool, error) {
	return f(id)
}

// MapLookup resolves ids from an in-memory map.
type MapLookup map[string]Node

// LookupTree returns the tree stored under id.
func (m MapLookup) LookupTree(id string) (Node, bool, error) {
	n, ok := m[id]
	return n, ok, nil
}

// Combine joins already-parsed trees under op, keeping their order. The trees
// are shared rather than copied; they are immutable, so the result is an
// independent value even if the rules they came from are later deleted.
func Combine(op LogicalOp, trees ...Node) (*Logical, error) {
	if op != And && op != Or {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOperator, op)
	}
	if len(trees) == 0 {
		return nil, ErrEmptyCombination
	}
	for i, t := range trees {
		if t == nil {
			return nil, &InvalidTreeError{Path: fmt.Sprintf("[%d]", i), Reason: "nil tree"}
		}
	}
	return NewLogical(op, trees...), nil
}

// CombineRules resolves each id through lookup and combines the resulting
// trees. The first id that cannot be resolved fails the whole combination
// with an *UnknownRuleIDError; lookup failures are returned wrapped.
func CombineRules(op LogicalOp, ids []string, lookup Lookup) (*Logical, error) {
	if op != And && op != Or {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOperator, op)
	}
	if len(ids) == 0 {
		return nil, ErrEmptyCombination
	}

	trees := make([]Node, 0, len(ids))
	for _, id := range ids {
		n, ok, err := lookup.LookupTree(id)
		if err != nil {
			return nil, fmt.Errorf("lookup rule %s: %w", id, err)
		}
		if !ok || n == nil {
			return nil, &UnknownRuleIDError{ID: id}
		}
		trees = append(trees, n)
	}
	return Combine(op, trees...)
}
