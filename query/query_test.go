package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iristech-systems/quantumgo/field"
)

type fakeBuilder struct{}

func (fakeBuilder) BuildCondition(fieldName, op string, value any) (string, error) {
	return fieldName + " " + op + " " + toStr(value), nil
}

func toStr(v any) string {
	switch t := v.(type) {
	case string:
		return "'" + t + "'"
	default:
		return "x"
	}
}

func TestLowerSimpleLeaf(t *testing.T) {
	out, err := Lower(EqLeaf("status", "active"), fakeBuilder{})
	require.NoError(t, err)
	assert.Equal(t, "status = 'active'", out)
}

func TestLowerAndFlattens(t *testing.T) {
	tree := And(EqLeaf("a", "1"), And(EqLeaf("b", "2"), EqLeaf("c", "3")))
	c := tree.(Combinator)
	assert.Len(t, c.Children, 3)
}

func TestLowerNot(t *testing.T) {
	out, err := Lower(Not(EqLeaf("status", "active")), fakeBuilder{})
	require.NoError(t, err)
	assert.Equal(t, "NOT (status = 'active')", out)
}

func TestLowerOrJoins(t *testing.T) {
	out, err := Lower(Or(EqLeaf("a", 1), EqLeaf("b", 2)), fakeBuilder{})
	require.NoError(t, err)
	assert.Equal(t, "(a = x OR b = x)", out)
}

type stubResolver struct{ known map[string]bool }

func (s stubResolver) ResolveField(name string) (*field.Field, bool) {
	if s.known[name] {
		return field.NewText(name), true
	}
	return nil, false
}

func TestExpressionValidateRejectsUnknownField(t *testing.T) {
	expr := NewExpression(EqLeaf("bogus", "x"))
	err := expr.Validate(stubResolver{known: map[string]bool{"status": true}})
	require.Error(t, err)
}

func TestExpressionValidateAcceptsIDAndKnownFields(t *testing.T) {
	expr := NewExpression(And(EqLeaf("id", "1"), EqLeaf("status", "active")))
	err := expr.Validate(stubResolver{known: map[string]bool{"status": true}})
	require.NoError(t, err)
}

func TestLeafFromKeywordSuffixes(t *testing.T) {
	cases := []struct {
		key   string
		value any
		field string
		op    Op
		want  any
	}{
		{"age__gt", 18, "age", Gt, 18},
		{"name__startswith", "Al", "name", Like, "Al%"},
		{"name__endswith", "ce", "name", Like, "%ce"},
		{"deleted_at__isnull", true, "deleted_at", IsNull, nil},
		{"status", "active", "status", Eq, "active"},
	}
	for _, c := range cases {
		leaf := LeafFromKeyword(c.key, c.value)
		assert.Equal(t, c.field, leaf.Field, c.key)
		assert.Equal(t, c.op, leaf.Op, c.key)
		if c.op != IsNull {
			assert.Equal(t, c.want, leaf.Value, c.key)
		}
	}
}

func TestBuildGridExpressionIncludesSearch(t *testing.T) {
	req := GridRequest{Search: "foo", Filter: map[string]any{"status": "active"}}
	expr := BuildGridExpression(req, []string{"name", "email"})
	lowered, err := Lower(expr.Root, fakeBuilder{})
	require.NoError(t, err)
	assert.Contains(t, lowered, "status = 'active'")
	assert.Contains(t, lowered, "contains_text")
}

func TestConditionCacheHitsAvoidRebuild(t *testing.T) {
	cc, err := NewConditionCache()
	require.NoError(t, err)
	defer cc.Close()

	tree := EqLeaf("status", "active")
	first, err := cc.LowerCached("surrealdb", tree, fakeBuilder{})
	require.NoError(t, err)
	second, err := cc.LowerCached("surrealdb", tree, fakeBuilder{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
