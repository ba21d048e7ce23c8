package clickhouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatValueRendersArrayAsTuple(t *testing.T) {
	a := &Adapter{}
	got := a.FormatValue([]any{21, 22, 23})
	assert.Equal(t, "(21, 22, 23)", got)
}

func TestBuildConditionInUsesTupleLiteral(t *testing.T) {
	a := &Adapter{}
	op, err := a.BuildCondition("age", "in", []any{21, 22, 23})
	require.NoError(t, err)
	assert.Equal(t, "`age` IN (21, 22, 23)", string(op))
}

func TestBuildConditionNotInUsesTupleLiteral(t *testing.T) {
	a := &Adapter{}
	op, err := a.BuildCondition("age", "notin", []any{21, 22})
	require.NoError(t, err)
	assert.Equal(t, "`age` NOT IN (21, 22)", string(op))
}

func TestBuildConditionBetween(t *testing.T) {
	a := &Adapter{}
	op, err := a.BuildCondition("age", "between", []any{18, 30})
	require.NoError(t, err)
	assert.Equal(t, "`age` BETWEEN 18 AND 30", string(op))
}

func TestBuildConditionBetweenRejectsWrongShape(t *testing.T) {
	a := &Adapter{}
	_, err := a.BuildCondition("age", "between", 18)
	require.Error(t, err)
}
