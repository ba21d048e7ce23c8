// Package query implements the backend-agnostic query tree and expression
// layer (spec components C6/C7): predicate composition, named-lookup
// parsing, and lowering to a backend's native condition strings.
package query

import "strings"

// Op is the comparison/membership operator vocabulary shared across every
// backend, per spec §4.6's operator table. Each backend.Adapter maps these
// to its native syntax in BuildCondition; an operator a backend cannot
// express fails there with CapabilityError, never silently here.
type Op string

const (
	Eq            Op = "="
	NotEq         Op = "!="
	Lt            Op = "<"
	Lte           Op = "<="
	Gt            Op = ">"
	Gte           Op = ">="
	In            Op = "in"
	NotIn         Op = "notin"
	ContainsText  Op = "contains_text"
	ContainsArray Op = "contains_array"
	Like          Op = "like"
	ILike         Op = "ilike"
	Between       Op = "between"
	IsNull        Op = "isnull"
	IsNotNull     Op = "isnotnull"
)

// Node is one element of a query tree: either a Leaf predicate or a
// combinator (And/Or/Not) over child Nodes.
type Node interface {
	node()
}

// Leaf is a single field/operator/value predicate.
type Leaf struct {
	Field string
	Op    Op
	Value any
}

func (Leaf) node() {}

// EqLeaf builds an equality Leaf, the common case in both query surface forms.
func EqLeaf(field string, value any) Leaf { return Leaf{Field: field, Op: Eq, Value: value} }

// combinatorKind names the boolean operator a Combinator applies.
type combinatorKind string

const (
	kindAnd combinatorKind = "and"
	kindOr  combinatorKind = "or"
	kindNot combinatorKind = "not"
)

// Combinator is the And/Or/Not composition of spec §4.6. Not takes exactly
// one child; And/Or take any number (zero children is the identity: And()
// is vacuously true, Or() is vacuously false).
type Combinator struct {
	Kind     combinatorKind
	Children []Node
}

func (Combinator) node() {}

// And flattens nested And nodes into a single level, matching how a query
// builder incrementally narrows a filter chain.
func And(nodes ...Node) Node {
	flat := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if c, ok := n.(Combinator); ok && c.Kind == kindAnd {
			flat = append(flat, c.Children...)
			continue
		}
		flat = append(flat, n)
	}
	return Combinator{Kind: kindAnd, Children: flat}
}

// Or composes nodes with logical OR.
func Or(nodes ...Node) Node {
	flat := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if c, ok := n.(Combinator); ok && c.Kind == kindOr {
			flat = append(flat, c.Children...)
			continue
		}
		flat = append(flat, n)
	}
	return Combinator{Kind: kindOr, Children: flat}
}

// Not negates a single node.
func Not(n Node) Node {
	return Combinator{Kind: kindNot, Children: []Node{n}}
}

// ConditionBuilder is what the lowering pass needs from a backend:
// BuildCondition to turn a Leaf into a predicate string. A backend.Adapter,
// whose BuildCondition returns a backend.Op, is adapted to it by the caller.
type ConditionBuilder interface {
	BuildCondition(field, op string, value any) (string, error)
}

// Lower walks the tree and emits a single parenthesized predicate string in
// the target backend's dialect, suitable to pass as backend.Op. And/Or
// combinators join children with " AND "/" OR "; Not wraps with "NOT (...)".
func Lower(n Node, b ConditionBuilder) (string, error) {
	switch t := n.(type) {
	case Leaf:
		return b.BuildCondition(t.Field, string(t.Op), t.Value)
	case Combinator:
		return lowerCombinator(t, b)
	default:
		return "", nil
	}
}

func lowerCombinator(c Combinator, b ConditionBuilder) (string, error) {
	switch c.Kind {
	case kindNot:
		inner, err := Lower(c.Children[0], b)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case kindAnd, kindOr:
		if len(c.Children) == 0 {
			if c.Kind == kindAnd {
				return "1 = 1", nil
			}
			return "1 = 0", nil
		}
		parts := make([]string, 0, len(c.Children))
		for _, child := range c.Children {
			p, err := Lower(child, b)
			if err != nil {
				return "", err
			}
			parts = append(parts, p)
		}
		if len(parts) == 1 {
			return parts[0], nil
		}
		joiner := " AND "
		if c.Kind == kindOr {
			joiner = " OR "
		}
		return "(" + strings.Join(parts, joiner) + ")", nil
	default:
		return "", nil
	}
}
