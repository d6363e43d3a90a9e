package table

import (
	"fmt"
	"sort"
	"strings"

	"daqbridge/internal/services"
)

const wordBits = 32

var (
	// ErrSchema reports an invalid field layout.
	ErrSchema = fmt.Errorf("%w: invalid table schema", services.ErrSchema)
	// ErrLength reports columns of unequal length or a word count that is
	// not a whole number of rows.
	ErrLength = fmt.Errorf("%w: table length mismatch", services.ErrValidation)
	// ErrValue reports a word or value that cannot be represented.
	ErrValue = fmt.Errorf("%w: invalid table value", services.ErrValidation)
)

// Kind selects how a field's bits are interpreted.
type Kind string

const (
	KindUnsigned Kind = "uint"
	KindSigned   Kind = "int"
	KindEnum     Kind = "enum"
)

// ParseKind maps catalog spellings onto a Kind.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "uint", "unsigned":
		return KindUnsigned, nil
	case "int", "signed":
		return KindSigned, nil
	case "enum":
		return KindEnum, nil
	default:
		return "", fmt.Errorf("%w: unknown field kind %q", ErrSchema, value)
	}
}

// Field describes one column of a table.
type Field struct {
	Name        string
	BitLow      int
	BitHigh     int
	Kind        Kind
	Labels      []string
	Description string
}

// Width returns the number of bits the field occupies.
func (f Field) Width() int {
	return f.BitHigh - f.BitLow + 1
}

// Label returns the enum label for an index.
func (f Field) Label(v int64) (string, bool) {
	if v < 0 || v >= int64(len(f.Labels)) {
		return "", false
	}
	return f.Labels[v], true
}

// Schema is a validated, bit-ordered field layout.
type Schema struct {
	rowWords int
	fields   []Field
}

// NewSchema sorts fields by BitLow and validates the layout against a row of
// rowWords words.
func NewSchema(rowWords int, fields []Field) (*Schema, error) {
	if rowWords <= 0 {
		return nil, fmt.Errorf("%w: row width must be positive, got %d words", ErrSchema, rowWords)
	}
	sorted := append([]Field(nil), fields...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].BitLow < sorted[j].BitLow })

	seen := make(map[string]struct{}, len(sorted))
	prevHigh := -1
	for i := range sorted {
		f := &sorted[i]
		if f.Kind == "" {
			f.Kind = KindUnsigned
		}
		if f.Name == "" {
			return nil, fmt.Errorf("%w: field at bit %d has no name", ErrSchema, f.BitLow)
		}
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate field %s", ErrSchema, f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.BitLow < 0 || f.BitHigh < f.BitLow {
			return nil, fmt.Errorf("%w: field %s has reversed bit range [%d, %d]", ErrSchema, f.Name, f.BitLow, f.BitHigh)
		}
		if f.Width() > wordBits {
			return nil, fmt.Errorf("%w: field %s is %d bits wide, limit is %d", ErrSchema, f.Name, f.Width(), wordBits)
		}
		if f.BitHigh >= rowWords*wordBits {
			return nil, fmt.Errorf("%w: field %s ends at bit %d beyond a %d word row", ErrSchema, f.Name, f.BitHigh, rowWords)
		}
		if f.BitLow <= prevHigh {
			return nil, fmt.Errorf("%w: field %s overlaps the previous field ending at bit %d", ErrSchema, f.Name, prevHigh)
		}
		if f.Kind == KindEnum && len(f.Labels) == 0 {
			return nil, fmt.Errorf("%w: enum field %s has no labels", ErrSchema, f.Name)
		}
		prevHigh = f.BitHigh
	}
	return &Schema{rowWords: rowWords, fields: sorted}, nil
}

// RowWords returns the row width in 32-bit words.
func (s *Schema) RowWords() int { return s.rowWords }

// Fields returns the fields in bit order.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
