package wire

import (
	"encoding/binary"
	"fmt"
)

// FuncOp names an atomic server-side update.
type FuncOp uint8

const (
	FuncFail FuncOp = iota
	FuncSet
	FuncStringAppend
	FuncStringPrepend
	FuncNumAdd
	FuncNumSub
	FuncNumMul
	FuncNumDiv
	FuncNumMod
	FuncNumAnd
	FuncNumOr
	FuncNumXor
	FuncListLPush
	FuncListRPush
	FuncSetAdd
	FuncSetRemove
	FuncSetIntersect
	FuncSetUnion
	FuncMapAdd
	FuncMapRemove
)

func (f FuncOp) valid() bool { return f <= FuncMapRemove }

// Keyed reports whether the op addresses a map entry through Arg2.
func (f FuncOp) Keyed() bool { return f == FuncMapAdd || f == FuncMapRemove }

// Mutation is a funcall applied to one attribute. Arg2 is Null unless the op
// is keyed.
type Mutation struct {
	Attr uint16
	Op   FuncOp
	Arg1 Value
	Arg2 Value
}

// PackSize returns the encoded length of m.
func (m Mutation) PackSize() int {
	return headerSize + PackSize(m.Arg1) + PackSize(m.Arg2)
}

// AppendMutation appends [attr u16][op u8][arg1][arg2].
func AppendMutation(dst []byte, m Mutation) ([]byte, error) {
	if !m.Op.valid() {
		return dst, encodeErr(fmt.Errorf("%w: unknown funcall %d", ErrInvalidValue, m.Op))
	}
	if err := m.Arg1.Validate(); err != nil {
		return dst, encodeErr(err)
	}
	if err := m.Arg2.Validate(); err != nil {
		return dst, encodeErr(err)
	}
	dst = binary.BigEndian.AppendUint16(dst, m.Attr)
	dst = append(dst, byte(m.Op))
	dst = appendValue(dst, m.Arg1)
	return appendValue(dst, m.Arg2), nil
}

// DecodeMutation decodes one mutation from the front of data.
func DecodeMutation(data []byte) (Mutation, int, error) {
	if len(data) < headerSize {
		return Mutation{}, 0, decodeErr("insufficient data for funcall header")
	}
	m := Mutation{
		Attr: binary.BigEndian.Uint16(data),
		Op:   FuncOp(data[2]),
	}
	if !m.Op.valid() {
		return Mutation{}, 0, decodeErr(fmt.Sprintf("unknown funcall: %d", m.Op))
	}
	offset := headerSize

	arg1, n, err := DecodeValue(data[offset:])
	if err != nil {
		return Mutation{}, 0, err
	}
	offset += n

	arg2, n, err := DecodeValue(data[offset:])
	if err != nil {
		return Mutation{}, 0, err
	}
	offset += n

	m.Arg1, m.Arg2 = arg1, arg2
	return m, offset, nil
}
