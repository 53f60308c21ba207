package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// AppendValue appends the encoding of v to dst.
//
//	[tag u8][payload]
//
// string: [len u32][bytes], int64/float: 8 bytes, null: nothing,
// list/set: [count u32][values...], map: [count u32][key value]...
func AppendValue(dst []byte, v Value) ([]byte, error) {
	if err := v.Validate(); err != nil {
		return dst, encodeErr(err)
	}
	return appendValue(dst, v), nil
}

func appendValue(dst []byte, v Value) []byte {
	switch v.Type {
	case TypeList, TypeSet:
		dst = append(dst, byte(v.Type))
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(v.Elems)))
		for _, e := range v.Elems {
			dst = appendPrimitive(dst, e)
		}
		return dst
	case TypeMap:
		dst = append(dst, byte(v.Type))
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(v.Pairs)))
		for _, p := range v.Pairs {
			dst = appendPrimitive(dst, p.Key)
			dst = appendPrimitive(dst, p.Value)
		}
		return dst
	default:
		return appendPrimitive(dst, v)
	}
}

func appendPrimitive(dst []byte, v Value) []byte {
	dst = append(dst, byte(v.Type))
	switch v.Type {
	case TypeString:
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(v.Bytes)))
		dst = append(dst, v.Bytes...)
	case TypeInt64:
		dst = binary.BigEndian.AppendUint64(dst, uint64(v.Int))
	case TypeFloat:
		dst = binary.BigEndian.AppendUint64(dst, math.Float64bits(v.Float))
	}
	return dst
}

// PackSize returns len(AppendValue(nil, v)) without encoding.
func PackSize(v Value) int {
	switch v.Type {
	case TypeString:
		return tagSize + countSize + len(v.Bytes)
	case TypeInt64, TypeFloat:
		return tagSize + fixedSize
	case TypeList, TypeSet:
		sz := tagSize + countSize
		for _, e := range v.Elems {
			sz += PackSize(e)
		}
		return sz
	case TypeMap:
		sz := tagSize + countSize
		for _, p := range v.Pairs {
			sz += PackSize(p.Key) + PackSize(p.Value)
		}
		return sz
	default:
		return tagSize
	}
}

// DecodeValue decodes one value from the front of data and returns it with
// the number of bytes consumed.
func DecodeValue(data []byte) (Value, int, error) {
	if len(data) < tagSize {
		return Value{}, 0, decodeErr("insufficient data for type tag")
	}

	t := Type(data[0])
	switch {
	case t.Container():
		return decodeContainer(data)
	case t == TypeNull || t.Primitive():
		return decodePrimitive(data)
	default:
		return Value{}, 0, decodeErr(fmt.Sprintf("unknown type: %d", t))
	}
}

func decodePrimitive(data []byte) (Value, int, error) {
	if len(data) < tagSize {
		return Value{}, 0, decodeErr("insufficient data for type tag")
	}

	t := Type(data[0])
	offset := tagSize

	switch t {
	case TypeNull:
		return Null(), offset, nil

	case TypeString:
		if len(data[offset:]) < countSize {
			return Value{}, 0, decodeErr("insufficient data for string length")
		}
		length := uint64(binary.BigEndian.Uint32(data[offset:]))
		offset += countSize
		if uint64(len(data[offset:])) < length {
			return Value{}, 0, decodeErr("insufficient data for string content")
		}
		b := append([]byte{}, data[offset:offset+int(length)]...)
		return Value{Type: TypeString, Bytes: b}, offset + int(length), nil

	case TypeInt64:
		if len(data[offset:]) < fixedSize {
			return Value{}, 0, decodeErr("insufficient data for int64")
		}
		x := int64(binary.BigEndian.Uint64(data[offset:]))
		return Int64(x), offset + fixedSize, nil

	case TypeFloat:
		if len(data[offset:]) < fixedSize {
			return Value{}, 0, decodeErr("insufficient data for float")
		}
		x := math.Float64frombits(binary.BigEndian.Uint64(data[offset:]))
		return Float(x), offset + fixedSize, nil

	default:
		return Value{}, 0, decodeErr(fmt.Sprintf("type %s is not allowed here", t))
	}
}

func decodeContainer(data []byte) (Value, int, error) {
	t := Type(data[0])
	offset := tagSize

	if len(data[offset:]) < countSize {
		return Value{}, 0, decodeErr(fmt.Sprintf("insufficient data for %s length", t))
	}
	count := uint64(binary.BigEndian.Uint32(data[offset:]))
	offset += countSize

	// every element takes at least its tag
	perElem := uint64(tagSize)
	if t == TypeMap {
		perElem = 2 * tagSize
	}
	if count*perElem > uint64(len(data[offset:])) {
		return Value{}, 0, decodeErr(fmt.Sprintf("%s count %d exceeds remaining input", t, count))
	}

	next := func() (Value, error) {
		e, n, err := decodePrimitive(data[offset:])
		if err != nil {
			return Value{}, err
		}
		if e.Type == TypeNull {
			return Value{}, decodeErr(fmt.Sprintf("null inside %s", t))
		}
		offset += n
		return e, nil
	}

	v := Value{Type: t}
	if t == TypeMap {
		v.Pairs = make([]Pair, 0, count)
		for i := uint64(0); i < count; i++ {
			k, err := next()
			if err != nil {
				return Value{}, 0, err
			}
			val, err := next()
			if err != nil {
				return Value{}, 0, err
			}
			v.Pairs = append(v.Pairs, Pair{Key: k, Value: val})
		}
	} else {
		v.Elems = make([]Value, 0, count)
		for i := uint64(0); i < count; i++ {
			e, err := next()
			if err != nil {
				return Value{}, 0, err
			}
			v.Elems = append(v.Elems, e)
		}
	}

	if err := v.Validate(); err != nil {
		return Value{}, 0, &DecodeError{Message: err.Error()}
	}
	return v, offset, nil
}
