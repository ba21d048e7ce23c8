package field

import "github.com/google/uuid"

// Text field constructors. These mirror the shape of a typical ODM's field
// factory functions; Constraints and Indexes can be set on the returned
// *Field before the owning schema is registered.

func NewText(name string) *Field      { return New(name, Text, "") }
func NewInteger(name string) *Field   { return New(name, Integer, "") }
func NewFloating(name string) *Field  { return New(name, Floating, "") }
func NewBoolean(name string) *Field   { return New(name, Boolean, "") }
func NewDecimal(name string, precision, scale int) *Field {
	f := New(name, Decimal, "")
	f.Precision, f.Scale = precision, scale
	return f
}
func NewTimestamp(name string) *Field { return New(name, Timestamp, "") }
func NewUUID(name string) *Field {
	f := New(name, UUID, "")
	f.Default = DefaultFunc(func() any { return uuid.New() })
	return f
}
func NewMapping(name string) *Field  { return New(name, Mapping, "") }
func NewSequence(name string) *Field { return New(name, Sequence, "") }
func NewIdentifier(name string) *Field {
	f := New(name, Identifier, "")
	return f
}
func NewReference(name, referentClass string) *Field {
	f := New(name, Reference, "")
	f.ReferentClass = referentClass
	return f
}

func NewLowCardinalityText(name string) *Field { return New(name, LowCardText, "") }

func NewFixedLengthText(name string, length int) *Field {
	f := New(name, FixedText, "")
	f.Constraints.Length = length
	return f
}

func NewEnum(name string, values ...string) *Field {
	f := New(name, Enum, "")
	f.EnumValues = values
	return f
}

func NewTypedArray(name string, element Kind) *Field {
	f := New(name, TypedArray, "")
	f.ElementKind = element
	return f
}

func NewCompressedText(name, codec string) *Field {
	f := New(name, Compressed, "")
	f.Codec = codec
	return f
}

// WithRequired marks f as required and returns it, for fluent declaration.
func (f *Field) WithRequired() *Field { f.Required = true; return f }

// WithDefault sets a literal or DefaultFunc default value.
func (f *Field) WithDefault(def any) *Field { f.Default = def; return f }

// WithDBName overrides the stored (wire-level) name.
func (f *Field) WithDBName(name string) *Field { f.DBName = name; return f }

// WithIndex appends an index spec to the field.
func (f *Field) WithIndex(spec IndexSpec) *Field {
	f.Indexes = append(f.Indexes, spec)
	return f
}

// WithChoices constrains the field to a fixed set of values.
func (f *Field) WithChoices(choices ...any) *Field {
	f.Constraints.Choices = choices
	return f
}

// WithRange constrains a numeric field to [min, max].
func (f *Field) WithRange(min, max float64) *Field {
	f.Constraints.Min, f.Constraints.Max = &min, &max
	return f
}

// WithLength constrains a text field's length to [min, max].
func (f *Field) WithLength(min, max int) *Field {
	f.Constraints.MinLen, f.Constraints.MaxLen = &min, &max
	return f
}
