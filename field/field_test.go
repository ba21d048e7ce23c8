package field

import (
	"testing"
	"time"

	"github.com/go-logr/stdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iristech-systems/quantumgo/qerr"
)

func TestRequiredFieldMissingFails(t *testing.T) {
	f := NewText("username").WithRequired()
	_, err := f.Validate(Missing)
	require.Error(t, err)
	assert.True(t, qerr.IsKind(err, qerr.Validation))
}

func TestRequiredFieldWithDefaultSucceeds(t *testing.T) {
	f := NewInteger("age").WithRequired().WithDefault(int64(18))
	v, err := f.Validate(Missing)
	require.NoError(t, err)
	assert.Equal(t, int64(18), v)
}

func TestNullableFieldMissingPassesThrough(t *testing.T) {
	f := NewText("nickname")
	v, err := f.Validate(Missing)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestChoiceConstraintRejectsUnlisted(t *testing.T) {
	f := NewText("status").WithChoices("active", "inactive")
	_, err := f.Validate("pending")
	require.Error(t, err)
	assert.True(t, qerr.IsKind(err, qerr.Validation))
}

func TestFixedLengthTextRejectsWrongLength(t *testing.T) {
	f := NewFixedLengthText("code", 4)
	_, err := f.Validate("abc")
	require.Error(t, err)

	v, err := f.Validate("abcd")
	require.NoError(t, err)
	assert.Equal(t, "abcd", v)
}

func TestEnumRejectsOutsideSet(t *testing.T) {
	f := NewEnum("tier", "gold", "silver", "bronze")
	_, err := f.Validate("platinum")
	require.Error(t, err)

	v, err := f.Validate("gold")
	require.NoError(t, err)
	assert.Equal(t, "gold", v)
}

func TestTimestampRoundTripDocumentBackend(t *testing.T) {
	f := NewTimestamp("created_at")
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	v, err := f.Validate(now)
	require.NoError(t, err)

	stored, err := f.ToDB(v, BackendSurrealDB, stdr.New(nil))
	require.NoError(t, err)

	back, err := f.FromDB(stored, BackendSurrealDB)
	require.NoError(t, err)
	assert.True(t, now.Equal(back.(time.Time)))
}

func TestTimestampColumnarFormat(t *testing.T) {
	f := NewTimestamp("created_at")
	now := time.Date(2026, 1, 2, 3, 4, 5, 123000000, time.UTC)
	v, _ := f.Validate(now)
	stored, err := f.ToDB(v, BackendClickHouse, stdr.New(nil))
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02 03:04:05.123", stored)
}

func TestDecimalFallsBackToStringOnLossyBackend(t *testing.T) {
	f := NewDecimal("price", 18, 4)
	stored, err := f.ToDB("19.9900", BackendSurrealDB, stdr.New(nil))
	require.NoError(t, err)
	assert.Equal(t, "19.9900", stored)
}

func TestMappingFallsBackToJSONText(t *testing.T) {
	f := NewMapping("attrs")
	v := map[string]any{"a": float64(1)}
	stored, err := f.ToDB(v, BackendClickHouse, stdr.New(nil))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, stored)

	back, err := f.FromDB(stored, BackendClickHouse)
	require.NoError(t, err)
	assert.Equal(t, v, back)
}

func TestNativeColumnarTypeDegradesOffClickHouse(t *testing.T) {
	f := NewFixedLengthText("code", 4)
	assert.Equal(t, "FixedString(4)", f.NativeColumnarType(BackendClickHouse))
	assert.Equal(t, string(Text), f.NativeColumnarType(BackendSurrealDB))
}

func TestEnumNativeType(t *testing.T) {
	f := NewEnum("tier", "gold", "silver")
	assert.Equal(t, "Enum8('gold' = 0, 'silver' = 1)", f.NativeColumnarType(BackendClickHouse))
}
