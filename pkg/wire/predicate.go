package wire

import (
	"encoding/binary"
	"fmt"
)

// Comparison is the operator of a server-side filter.
type Comparison uint8

const (
	Fail Comparison = iota
	Equals
	LessEqual
	GreaterEqual
	LessThan
	GreaterThan
	Regex
	LengthEquals
	LengthLessEqual
	LengthGreaterEqual
	Contains
)

func (c Comparison) valid() bool { return c <= Contains }

// Predicate filters objects on one attribute.
type Predicate struct {
	Attr  uint16
	Op    Comparison
	Value Value
}

const headerSize = 2 + 1 // attr u16, op u8

// PackSize returns the encoded length of p.
func (p Predicate) PackSize() int {
	return headerSize + PackSize(p.Value)
}

// AppendPredicate appends [attr u16][op u8][value].
func AppendPredicate(dst []byte, p Predicate) ([]byte, error) {
	if !p.Op.valid() {
		return dst, encodeErr(fmt.Errorf("%w: unknown predicate %d", ErrInvalidValue, p.Op))
	}
	if err := p.Value.Validate(); err != nil {
		return dst, encodeErr(err)
	}
	dst = binary.BigEndian.AppendUint16(dst, p.Attr)
	dst = append(dst, byte(p.Op))
	return appendValue(dst, p.Value), nil
}

// DecodePredicate decodes one predicate from the front of data.
func DecodePredicate(data []byte) (Predicate, int, error) {
	if len(data) < headerSize {
		return Predicate{}, 0, decodeErr("insufficient data for predicate header")
	}
	p := Predicate{
		Attr: binary.BigEndian.Uint16(data),
		Op:   Comparison(data[2]),
	}
	if !p.Op.valid() {
		return Predicate{}, 0, decodeErr(fmt.Sprintf("unknown predicate: %d", p.Op))
	}

	v, n, err := DecodeValue(data[headerSize:])
	if err != nil {
		return Predicate{}, 0, err
	}
	p.Value = v
	return p, headerSize + n, nil
}
