package table

import (
	"fmt"
	"strconv"
	"strings"
)

// Column holds one field's values, one per row. Enum values are label
// indices and signed values are sign extended.
type Column struct {
	Field  Field
	Values []int64
}

// Unpack splits the device's word list into one column per schema field.
func Unpack(schema *Schema, words []string) ([]Column, error) {
	if schema == nil {
		return nil, fmt.Errorf("%w: nil schema", ErrSchema)
	}
	rowWords := schema.rowWords
	if len(words)%rowWords != 0 {
		return nil, fmt.Errorf("%w: %d words is not a multiple of the %d word row", ErrLength, len(words), rowWords)
	}
	raw := make([]uint32, len(words))
	for i, w := range words {
		v, err := strconv.ParseUint(strings.TrimSpace(w), 10, wordBits)
		if err != nil {
			return nil, fmt.Errorf("%w: word %d %q: %v", ErrValue, i, w, err)
		}
		raw[i] = uint32(v)
	}

	rows := len(raw) / rowWords
	columns := make([]Column, len(schema.fields))
	for c, f := range schema.fields {
		values := make([]int64, rows)
		for r := range rows {
			v := extract(raw[r*rowWords:(r+1)*rowWords], f)
			if f.Kind == KindEnum {
				if _, ok := f.Label(v); !ok {
					return nil, fmt.Errorf("%w: field %s row %d has no label for %d", ErrValue, f.Name, r, v)
				}
			}
			values[r] = v
		}
		columns[c] = Column{Field: f, Values: values}
	}
	return columns, nil
}

// Pack merges columns back into the device's word list. Every column must
// have the same length. Values are masked to their field width; unset bits
// are zero.
func Pack(rowWords int, columns []Column) ([]string, error) {
	fields := make([]Field, len(columns))
	for i, c := range columns {
		fields[i] = c.Field
	}
	if _, err := NewSchema(rowWords, fields); err != nil {
		return nil, err
	}

	rows := 0
	for i, c := range columns {
		if i == 0 {
			rows = len(c.Values)
			continue
		}
		if len(c.Values) != rows {
			return nil, fmt.Errorf("%w: field %s has %d rows, field %s has %d",
				ErrLength, c.Field.Name, len(c.Values), columns[0].Field.Name, rows)
		}
	}

	raw := make([]uint32, rows*rowWords)
	for _, c := range columns {
		for r, v := range c.Values {
			if c.Field.Kind == KindEnum {
				if _, ok := c.Field.Label(v); !ok {
					return nil, fmt.Errorf("%w: field %s row %d has no label for %d", ErrValue, c.Field.Name, r, v)
				}
			}
			insert(raw[r*rowWords:(r+1)*rowWords], c.Field, v)
		}
	}

	out := make([]string, len(raw))
	for i, w := range raw {
		out[i] = strconv.FormatUint(uint64(w), 10)
	}
	return out, nil
}

func mask(width int) uint64 {
	return (uint64(1) << uint(width)) - 1
}

// extract reads the field's bits from one row. A field of at most 32 bits
// spans at most two adjacent words, so a 64-bit window always holds it.
func extract(row []uint32, f Field) int64 {
	word := f.BitLow / wordBits
	shift := uint(f.BitLow % wordBits)
	window := uint64(row[word])
	if word+1 < len(row) {
		window |= uint64(row[word+1]) << wordBits
	}
	width := f.Width()
	v := (window >> shift) & mask(width)
	if f.Kind == KindSigned && v&(uint64(1)<<uint(width-1)) != 0 {
		return int64(v) - int64(uint64(1)<<uint(width))
	}
	return int64(v)
}

func insert(row []uint32, f Field, v int64) {
	word := f.BitLow / wordBits
	shift := uint(f.BitLow % wordBits)
	placed := (uint64(v) & mask(f.Width())) << shift
	row[word] |= uint32(placed)
	if word+1 < len(row) {
		row[word+1] |= uint32(placed >> wordBits)
	}
}
