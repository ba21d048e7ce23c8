package query

import (
	"github.com/iristech-systems/quantumgo/field"
	"github.com/iristech-systems/quantumgo/qerr"
)

// FieldResolver looks up a declared field by its logical name, letting
// Expression.Validate catch a typo'd filter key before any I/O.
type FieldResolver interface {
	ResolveField(name string) (*field.Field, bool)
}

// Expression is a composed, not-yet-lowered predicate tree, the output of
// both query surface forms described in spec §4.6: field-object comparisons
// and named-lookup keyword pairs.
type Expression struct {
	Root Node
}

// NewExpression builds an Expression from a root node, or a vacuously-true
// And() if root is nil (an unfiltered QuerySet).
func NewExpression(root Node) *Expression {
	if root == nil {
		root = And()
	}
	return &Expression{Root: root}
}

// And narrows e by conjunction with n, returning a new Expression.
func (e *Expression) And(n Node) *Expression {
	return NewExpression(And(e.Root, n))
}

// Or widens e by disjunction with n, returning a new Expression.
func (e *Expression) Or(n Node) *Expression {
	return NewExpression(Or(e.Root, n))
}

// Validate walks the tree and fails with qerr.Validation on the first
// predicate naming a field resolver doesn't recognize.
func (e *Expression) Validate(resolver FieldResolver) error {
	return validateNode(e.Root, resolver)
}

func validateNode(n Node, resolver FieldResolver) error {
	switch t := n.(type) {
	case Leaf:
		if t.Field == "id" {
			return nil
		}
		if _, ok := resolver.ResolveField(t.Field); !ok {
			return qerr.New(qerr.Validation, "query.Validate", "unknown field in filter").WithField(t.Field)
		}
		return nil
	case Combinator:
		for _, c := range t.Children {
			if err := validateNode(c, resolver); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}
