package field

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// Backend name constants shared by every driver adapter's field mapping.
// These are plain strings (not an enum in package backend) so that package
// field never needs to import package backend.
const (
	BackendSurrealDB  = "surrealdb"
	BackendClickHouse = "clickhouse"
	BackendKV         = "kv"
)

// ToDB converts value (already validated) to its wire-level representation
// for backend. logger is used only for the one-shot decimal warning.
func (f *Field) ToDB(value any, backend string, logger logr.Logger) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch f.PyKind {
	case Timestamp:
		return f.timestampToDB(value, backend)
	case Decimal:
		return f.decimalToDB(value, backend, logger)
	case Sequence, TypedArray:
		return f.sequenceToDB(value, backend)
	case Mapping:
		return f.mappingToDB(value, backend)
	case UUID:
		if id, ok := value.(uuid.UUID); ok {
			return id.String(), nil
		}
		return value, nil
	default:
		return value, nil
	}
}

// FromDB is the inverse of ToDB, tolerant of both native and fallback
// (JSON-text) encodings.
func (f *Field) FromDB(stored any, backend string) (any, error) {
	if stored == nil {
		return nil, nil
	}
	switch f.PyKind {
	case Timestamp:
		return f.timestampFromDB(stored)
	case Decimal:
		return f.decimalFromDB(stored)
	case Sequence, TypedArray:
		return f.sequenceFromDB(stored)
	case Mapping:
		return f.mappingFromDB(stored)
	case UUID:
		if s, ok := stored.(string); ok {
			return uuid.Parse(s)
		}
		return stored, nil
	default:
		return stored, nil
	}
}

func (f *Field) timestampToDB(value any, backend string) (any, error) {
	t, ok := value.(time.Time)
	if !ok {
		return nil, fmt.Errorf("timestamp field holds non-time.Time value %T", value)
	}
	switch backend {
	case BackendClickHouse:
		return t.UTC().Format("2006-01-02 15:04:05.000"), nil
	case BackendKV:
		return t.UnixMilli(), nil
	default: // document/graph and any other backend: ISO-8601 with timezone
		return t.Format(time.RFC3339Nano), nil
	}
}

func (f *Field) timestampFromDB(stored any) (any, error) {
	switch v := stored.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.000", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("cannot parse stored timestamp %q", v)
	case int64:
		return time.UnixMilli(v), nil
	case float64:
		return time.UnixMilli(int64(v)), nil
	default:
		return nil, fmt.Errorf("cannot interpret stored timestamp of type %T", stored)
	}
}

// decimalToDB preserves precision exactly on backends with a native decimal
// type (surfaced here as a string the driver layer promotes to DECIMAL), and
// falls back to a string representation everywhere else so that precision
// beyond what float64 can hold is never silently lost, unless the field has
// opted into lossy float conversion.
func (f *Field) decimalToDB(value any, backend string, logger logr.Logger) (any, error) {
	s := fmt.Sprint(value)
	switch backend {
	case BackendClickHouse:
		// ClickHouse has a native Decimal(P,S) type; pass the literal through.
		return s, nil
	default:
		if f.AllowLossyFloat {
			if n, ok := asFloat(value); ok {
				return n, nil
			}
		}
		f.warnOnce(logger)
		return s, nil
	}
}

func (f *Field) decimalFromDB(stored any) (any, error) {
	switch v := stored.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return fmt.Sprint(v), nil
	}
}

func (f *Field) sequenceToDB(value any, backend string) (any, error) {
	switch backend {
	case BackendSurrealDB, BackendClickHouse:
		return value, nil // native array support
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
}

func (f *Field) sequenceFromDB(stored any) (any, error) {
	switch v := stored.(type) {
	case []any:
		return v, nil
	case string:
		var out []any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot interpret stored sequence of type %T", stored)
	}
}

func (f *Field) mappingToDB(value any, backend string) (any, error) {
	switch backend {
	case BackendSurrealDB:
		return value, nil // native object support
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
}

func (f *Field) mappingFromDB(stored any) (any, error) {
	switch v := stored.(type) {
	case map[string]any:
		return v, nil
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot interpret stored mapping of type %T", stored)
	}
}
