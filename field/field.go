// Package field implements the field metamodel (spec component C1): typed
// field descriptors, validation, and per-backend serialization hooks.
package field

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/iristech-systems/quantumgo/qerr"
)

// Kind is the semantic type of a field, independent of backend wire format.
type Kind string

const (
	Text        Kind = "text"
	Integer     Kind = "integer"
	Floating    Kind = "floating"
	Boolean     Kind = "boolean"
	Decimal     Kind = "decimal"
	Timestamp   Kind = "timestamp"
	UUID        Kind = "uuid"
	Mapping     Kind = "mapping"
	Sequence    Kind = "sequence"
	Reference   Kind = "reference"
	Identifier  Kind = "identifier"
	LowCardText Kind = "low_cardinality_text"
	FixedText   Kind = "fixed_length_text"
	Enum        Kind = "enumeration"
	Compressed  Kind = "compressed_text"
	TypedArray  Kind = "typed_array"
)

// missingType is the sentinel for "no value supplied", distinct from a
// legitimate nil/zero value on a nullable field.
type missingType struct{}

// Missing is the sentinel value representing an absent field value.
var Missing = missingType{}

func isMissing(v any) bool {
	_, ok := v.(missingType)
	return ok
}

// Constraints bound the acceptable values of a field.
type Constraints struct {
	Min      *float64
	Max      *float64
	MinLen   *int
	MaxLen   *int
	Choices  []any
	Regex    *regexp.Regexp
	Length   int // exact length, used by FixedText
	MaxItems int // max set size; set-kind index DDL reads IndexSpec.MaxSetSize, not this
}

// IndexKind enumerates the index strategies a field can request.
type IndexKind string

const (
	IndexBTree  IndexKind = "btree-like"
	IndexBloom  IndexKind = "bloom"
	IndexSet    IndexKind = "set"
	IndexMinMax IndexKind = "minmax"
	IndexCustom IndexKind = "custom"
)

// IndexSpec describes a single index request attached to a field.
type IndexSpec struct {
	Kind            IndexKind
	Granularity     int
	BloomFPRate     float64
	MaxSetSize      int
	Name            string
	Unique          bool
}

// DefaultFunc produces a default value lazily, e.g. time.Now or uuid.New.
type DefaultFunc func() any

// Field is a declared, read-only field descriptor. Instances are built once
// at schema-collection time (see package quantumgo's Schema) and shared by
// every document instance of the owning class.
type Field struct {
	Name        string
	DBName      string
	PyKind      Kind
	Required    bool
	Default     any // a literal value, a DefaultFunc, or nil
	Constraints Constraints
	Indexes     []IndexSpec

	// ReferentClass is the logical name of the referenced document class,
	// set for Reference-kind fields. It is stored as given; nothing checks
	// that a class of that name exists.
	ReferentClass string

	// EnumValues holds the allowed values for Enum-kind fields.
	EnumValues []string

	// ElementKind holds the element kind for TypedArray fields.
	ElementKind Kind

	// Precision/Scale describe Decimal fields for backends with a native
	// decimal type; Scale also bounds what double can represent losslessly.
	Precision int
	Scale     int
	// AllowLossyFloat opts a Decimal field into silent float conversion on
	// backends without a native decimal type, bypassing the one-shot warning.
	AllowLossyFloat bool

	// Codec names a columnar compression codec for Compressed-kind fields,
	// e.g. "ZSTD(3)".
	Codec string

	once sync.Once // guards the one-shot decimal-coercion warning
}

// New constructs a field descriptor. name is the logical (in-memory) name;
// dbName, if empty, defaults to name per spec §4.2 step 2.
func New(name string, kind Kind, dbName string) *Field {
	if dbName == "" {
		dbName = name
	}
	return &Field{Name: name, DBName: dbName, PyKind: kind}
}

// effectiveDefault resolves Default, invoking it if it is a DefaultFunc.
func (f *Field) effectiveDefault() any {
	switch d := f.Default.(type) {
	case nil:
		return Missing
	case DefaultFunc:
		return d()
	default:
		return d
	}
}

// Validate applies type coercion and constraint checks, returning the
// canonical in-memory representation of value, or a *qerr.Error of kind
// Validation. If value is field.Missing, defaults are applied first.
func (f *Field) Validate(value any) (any, error) {
	if isMissing(value) {
		value = f.effectiveDefault()
	}
	if isMissing(value) {
		if f.Required {
			return nil, qerr.New(qerr.Validation, "validate", "required field has no value").WithField(f.Name)
		}
		return nil, nil
	}
	if value == nil {
		if f.Required {
			return nil, qerr.New(qerr.Validation, "validate", "required field cannot be null").WithField(f.Name)
		}
		return nil, nil
	}

	coerced, err := f.coerce(value)
	if err != nil {
		return nil, qerr.Wrap(qerr.Validation, "validate", err).WithField(f.Name)
	}

	if err := f.checkConstraints(coerced); err != nil {
		return nil, err
	}
	return coerced, nil
}

func (f *Field) coerce(value any) (any, error) {
	switch f.PyKind {
	case Text, LowCardText, Compressed:
		return coerceText(value)
	case FixedText:
		s, err := coerceText(value)
		if err != nil {
			return nil, err
		}
		if f.Constraints.Length > 0 && len(s.(string)) != f.Constraints.Length {
			return nil, fmt.Errorf("fixed-length text must be exactly %d characters, got %d", f.Constraints.Length, len(s.(string)))
		}
		return s, nil
	case Enum:
		s, err := coerceText(value)
		if err != nil {
			return nil, err
		}
		for _, v := range f.EnumValues {
			if v == s.(string) {
				return s, nil
			}
		}
		return nil, fmt.Errorf("value %q is not one of the declared enum values %v", s, f.EnumValues)
	case Integer:
		return coerceInteger(value)
	case Identifier:
		return coerceIdentifier(value)
	case Floating:
		return coerceFloat(value)
	case Boolean:
		return coerceBool(value)
	case Decimal:
		return value, nil // canonical representation kept as-is; precision handled in ToDB
	case Timestamp:
		return coerceTimestamp(value)
	case UUID:
		return coerceUUID(value)
	case Mapping:
		if m, ok := value.(map[string]any); ok {
			return m, nil
		}
		return nil, fmt.Errorf("expected mapping, got %T", value)
	case Sequence, TypedArray:
		return coerceSequence(value)
	case Reference:
		return value, nil
	default:
		return value, nil
	}
}

func (f *Field) checkConstraints(value any) error {
	c := f.Constraints
	if len(c.Choices) > 0 {
		found := false
		for _, ch := range c.Choices {
			if ch == value {
				found = true
				break
			}
		}
		if !found {
			return qerr.New(qerr.Validation, "validate", fmt.Sprintf("value %v is not among the declared choices %v", value, c.Choices)).WithField(f.Name)
		}
	}
	if n, ok := asFloat(value); ok {
		if c.Min != nil && n < *c.Min {
			return qerr.New(qerr.Validation, "validate", fmt.Sprintf("value %v is below minimum %v", value, *c.Min)).WithField(f.Name)
		}
		if c.Max != nil && n > *c.Max {
			return qerr.New(qerr.Validation, "validate", fmt.Sprintf("value %v is above maximum %v", value, *c.Max)).WithField(f.Name)
		}
	}
	if s, ok := value.(string); ok {
		if c.MinLen != nil && len(s) < *c.MinLen {
			return qerr.New(qerr.Validation, "validate", fmt.Sprintf("value is shorter than minimum length %d", *c.MinLen)).WithField(f.Name)
		}
		if c.MaxLen != nil && len(s) > *c.MaxLen {
			return qerr.New(qerr.Validation, "validate", fmt.Sprintf("value is longer than maximum length %d", *c.MaxLen)).WithField(f.Name)
		}
		if c.Regex != nil && !c.Regex.MatchString(s) {
			return qerr.New(qerr.Validation, "validate", "value does not match required pattern").WithField(f.Name)
		}
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

// warnOnce logs the one-shot decimal-coercion warning, per spec §9
// "Decimal policy", at most once per field instance.
func (f *Field) warnOnce(logger logr.Logger) {
	f.once.Do(func() {
		logger.Info("decimal field coerced to string on a backend without a native decimal type; pass AllowLossyFloat to opt into silent float conversion", "field", f.Name)
	})
}

func coerceText(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case int, int64, float64, bool:
		return fmt.Sprint(v), nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to text", value)
	}
}

func coerceInteger(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v == float64(int64(v)) {
			return int64(v), nil
		}
		return nil, fmt.Errorf("value %v has a fractional component", v)
	case string:
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return nil, fmt.Errorf("cannot parse %q as integer", v)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to integer", value)
	}
}

func coerceIdentifier(value any) (any, error) {
	switch v := value.(type) {
	case string, int64, uuid.UUID:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

func coerceFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		var n float64
		if _, err := fmt.Sscanf(v, "%g", &n); err != nil {
			return nil, fmt.Errorf("cannot parse %q as float", v)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to float", value)
	}
}

func coerceBool(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch v {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %T to boolean", value)
}

func coerceTimestamp(value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.000", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("cannot parse %q as a timestamp", v)
	case int64:
		return time.UnixMilli(v), nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to timestamp", value)
	}
}

func coerceUUID(value any) (any, error) {
	switch v := value.(type) {
	case uuid.UUID:
		return v, nil
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		return id, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to uuid", value)
	}
}

func coerceSequence(value any) (any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to sequence", value)
	}
}
