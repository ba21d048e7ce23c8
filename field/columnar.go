package field

import "fmt"

// NativeColumnarType returns the ClickHouse-flavored native type string for
// specialized columnar fields (spec §4.1 "Specialized columnar fields"), and
// degrades to a plain text/sequence kind on every other backend.
func (f *Field) NativeColumnarType(backend string) string {
	if backend != BackendClickHouse {
		switch f.PyKind {
		case LowCardText, FixedText, Enum, Compressed:
			return string(Text)
		case TypedArray:
			return string(Sequence)
		}
	}
	switch f.PyKind {
	case LowCardText:
		return "LowCardinality(String)"
	case FixedText:
		return fmt.Sprintf("FixedString(%d)", f.Constraints.Length)
	case Enum:
		return enum8Type(f.EnumValues)
	case TypedArray:
		return fmt.Sprintf("Array(%s)", clickhouseScalar(f.ElementKind))
	case Compressed:
		codec := f.Codec
		if codec == "" {
			codec = "ZSTD(1)"
		}
		return fmt.Sprintf("%s CODEC(%s)", clickhouseScalar(Text), codec)
	default:
		return ""
	}
}

func enum8Type(values []string) string {
	s := "Enum8("
	for i, v := range values {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("'%s' = %d", v, i)
	}
	return s + ")"
}

func clickhouseScalar(kind Kind) string {
	switch kind {
	case Text, LowCardText, Compressed:
		return "String"
	case Integer, Identifier:
		return "Int64"
	case Floating:
		return "Float64"
	case Boolean:
		return "UInt8"
	case Decimal:
		return "Decimal64(4)"
	case Timestamp:
		return "DateTime64(3)"
	case UUID:
		return "UUID"
	case Mapping, Sequence:
		return "String"
	default:
		return "String"
	}
}

// IsSpecializedColumnar reports whether f is one of the columnar-only field
// kinds that carry a NativeColumnarType.
func (f *Field) IsSpecializedColumnar() bool {
	switch f.PyKind {
	case LowCardText, FixedText, Enum, TypedArray, Compressed:
		return true
	default:
		return false
	}
}
