package wire

import (
	"encoding/binary"
	"fmt"
)

// Sizer is anything with an exact encoded length.
type Sizer interface {
	PackSize() int
}

// SequencePackSize is 4 bytes of count plus the size of every element.
func SequencePackSize[T Sizer](xs []T) int {
	sz := countSize
	for _, x := range xs {
		sz += x.PackSize()
	}
	return sz
}

func appendSequence[T any](dst []byte, xs []T, appendOne func([]byte, T) ([]byte, error)) ([]byte, error) {
	out := binary.BigEndian.AppendUint32(dst, uint32(len(xs)))
	for _, x := range xs {
		var err error
		if out, err = appendOne(out, x); err != nil {
			return dst, err
		}
	}
	return out, nil
}

// minElem is the smallest possible encoding of one element, used to reject
// absurd counts before allocating.
func decodeSequence[T any](data []byte, minElem int, decodeOne func([]byte) (T, int, error)) ([]T, int, error) {
	if len(data) < countSize {
		return nil, 0, decodeErr("insufficient data for sequence length")
	}
	count := uint64(binary.BigEndian.Uint32(data))
	offset := countSize
	if count*uint64(minElem) > uint64(len(data[offset:])) {
		return nil, 0, decodeErr(fmt.Sprintf("sequence count %d exceeds remaining input", count))
	}

	xs := make([]T, 0, count)
	for i := uint64(0); i < count; i++ {
		x, n, err := decodeOne(data[offset:])
		if err != nil {
			return nil, 0, err
		}
		xs = append(xs, x)
		offset += n
	}
	return xs, offset, nil
}

// AppendPredicates appends [count u32][predicates...].
func AppendPredicates(dst []byte, ps []Predicate) ([]byte, error) {
	return appendSequence(dst, ps, AppendPredicate)
}

// DecodePredicates decodes a predicate sequence.
func DecodePredicates(data []byte) ([]Predicate, int, error) {
	return decodeSequence(data, headerSize+tagSize, DecodePredicate)
}

// AppendMutations appends [count u32][mutations...].
func AppendMutations(dst []byte, ms []Mutation) ([]byte, error) {
	return appendSequence(dst, ms, AppendMutation)
}

// DecodeMutations decodes a mutation sequence.
func DecodeMutations(data []byte) ([]Mutation, int, error) {
	return decodeSequence(data, headerSize+2*tagSize, DecodeMutation)
}

// AppendValues appends [count u32][values...].
func AppendValues(dst []byte, vs []Value) ([]byte, error) {
	return appendSequence(dst, vs, AppendValue)
}

// DecodeValues decodes a value sequence.
func DecodeValues(data []byte) ([]Value, int, error) {
	return decodeSequence(data, tagSize, DecodeValue)
}

// ValuesPackSize is SequencePackSize for values, which size through PackSize.
func ValuesPackSize(vs []Value) int {
	sz := countSize
	for _, v := range vs {
		sz += PackSize(v)
	}
	return sz
}
