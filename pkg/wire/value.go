package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Type is the tag written in front of every encoded value.
type Type uint8

const (
	TypeNull Type = iota
	TypeString
	TypeInt64
	TypeFloat
	TypeList
	TypeSet
	TypeMap
)

func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeString:
		return "string"
	case TypeInt64:
		return "int64"
	case TypeFloat:
		return "float"
	case TypeList:
		return "list"
	case TypeSet:
		return "set"
	case TypeMap:
		return "map"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// ParseType maps the schema spelling of a type onto its tag.
func ParseType(s string) (Type, bool) {
	for t := TypeNull; t <= TypeMap; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

// Primitive reports whether values of t may appear inside containers.
func (t Type) Primitive() bool {
	return t == TypeString || t == TypeInt64 || t == TypeFloat
}

// Container reports whether t is a list, set or map.
func (t Type) Container() bool {
	return t == TypeList || t == TypeSet || t == TypeMap
}

// Value is a typed attribute value.
type Value struct {
	Type  Type
	Int   int64
	Float float64
	Bytes []byte
	Elems []Value // list and set
	Pairs []Pair  // map
}

// Pair is one map entry.
type Pair struct {
	Key   Value
	Value Value
}

const (
	tagSize   = 1
	countSize = 4
	fixedSize = 8
)

func Null() Value { return Value{Type: TypeNull} }

func String(s string) Value { return Value{Type: TypeString, Bytes: []byte(s)} }

func Int64(x int64) Value { return Value{Type: TypeInt64, Int: x} }

func Float(x float64) Value { return Value{Type: TypeFloat, Float: x} }

func List(elems ...Value) Value { return Value{Type: TypeList, Elems: elems} }

// Set builds a set value in canonical order: elements sorted by encoding,
// duplicates dropped.
func Set(elems ...Value) Value {
	v := Value{Type: TypeSet, Elems: append([]Value(nil), elems...)}
	sort.SliceStable(v.Elems, func(i, j int) bool {
		return compareEncoded(v.Elems[i], v.Elems[j]) < 0
	})

	out := v.Elems[:0]
	for i, e := range v.Elems {
		if i > 0 && compareEncoded(out[len(out)-1], e) == 0 {
			continue
		}
		out = append(out, e)
	}
	v.Elems = out
	return v
}

// Map builds a map value in canonical order. For duplicate keys the last
// pair wins.
func Map(pairs ...Pair) Value {
	v := Value{Type: TypeMap, Pairs: append([]Pair(nil), pairs...)}
	sort.SliceStable(v.Pairs, func(i, j int) bool {
		return compareEncoded(v.Pairs[i].Key, v.Pairs[j].Key) < 0
	})

	out := v.Pairs[:0]
	for _, p := range v.Pairs {
		if len(out) > 0 && compareEncoded(out[len(out)-1].Key, p.Key) == 0 {
			out[len(out)-1] = p
			continue
		}
		out = append(out, p)
	}
	v.Pairs = out
	return v
}

// compareEncoded orders primitives by their encoded form. Only valid for
// primitives, which is all containers may hold.
func compareEncoded(a, b Value) int {
	return bytes.Compare(appendPrimitive(nil, a), appendPrimitive(nil, b))
}

// Validate checks the value is encodable: a known tag, containers holding
// primitives of a single type.
func (v Value) Validate() error {
	switch v.Type {
	case TypeNull, TypeString, TypeInt64, TypeFloat:
		return nil
	case TypeList:
		return validateElems(v.Type, v.Elems)
	case TypeSet:
		if err := validateElems(v.Type, v.Elems); err != nil {
			return err
		}
		return validateCanonical(v.Type, v.Elems)
	case TypeMap:
		keys := make([]Value, len(v.Pairs))
		vals := make([]Value, len(v.Pairs))
		for i, p := range v.Pairs {
			keys[i], vals[i] = p.Key, p.Value
		}
		if err := validateElems(TypeMap, keys); err != nil {
			return err
		}
		if err := validateElems(TypeMap, vals); err != nil {
			return err
		}
		return validateCanonical(TypeMap, keys)
	default:
		return fmt.Errorf("%w: unknown type %d", ErrInvalidValue, v.Type)
	}
}

func validateElems(container Type, elems []Value) error {
	for i, e := range elems {
		if !e.Type.Primitive() {
			return fmt.Errorf("%w: %s element %d has type %s", ErrInvalidValue, container, i, e.Type)
		}
		if e.Type != elems[0].Type {
			return fmt.Errorf("%w: %s mixes %s and %s", ErrInvalidValue, container, elems[0].Type, e.Type)
		}
	}
	return nil
}

// validateCanonical requires strictly increasing encodings, which is what
// Set and Map produce.
func validateCanonical(container Type, elems []Value) error {
	for i := 1; i < len(elems); i++ {
		if compareEncoded(elems[i-1], elems[i]) >= 0 {
			return fmt.Errorf("%w: %s is not in canonical order at %d", ErrInvalidValue, container, i)
		}
	}
	return nil
}

// canonicalNaN is the single bit pattern every NaN hashes as.
const canonicalNaN = 0x7ff8000000000001

// Canonical returns the attribute bytes of v in the form hashed by the
// replication layer: raw string bytes, 8-byte big-endian numbers, or the
// encoded payload of a container. Values equal under the ordered index
// codes hash alike: -0 as +0 and every NaN as one pattern. A value that
// fails Validate has no canonical form and returns nil.
func (v Value) Canonical() []byte {
	switch v.Type {
	case TypeString:
		return v.Bytes
	case TypeInt64:
		return binary.BigEndian.AppendUint64(nil, uint64(v.Int))
	case TypeFloat:
		return binary.BigEndian.AppendUint64(nil, canonicalFloatBits(v.Float))
	case TypeNull:
		return nil
	default:
		buf, err := AppendValue(nil, v)
		if err != nil || len(buf) == 0 {
			return nil
		}
		return buf[tagSize:]
	}
}

func canonicalFloatBits(x float64) uint64 {
	switch {
	case math.IsNaN(x):
		return canonicalNaN
	case x == 0:
		return 0
	}
	return math.Float64bits(x)
}

// Equal compares two values structurally. Floats compare by bit pattern.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case TypeNull:
		return true
	case TypeString:
		return bytes.Equal(v.Bytes, o.Bytes)
	case TypeInt64:
		return v.Int == o.Int
	case TypeFloat:
		return math.Float64bits(v.Float) == math.Float64bits(o.Float)
	case TypeList, TypeSet:
		if len(v.Elems) != len(o.Elems) {
			return false
		}
		for i := range v.Elems {
			if !v.Elems[i].Equal(o.Elems[i]) {
				return false
			}
		}
		return true
	case TypeMap:
		if len(v.Pairs) != len(o.Pairs) {
			return false
		}
		for i := range v.Pairs {
			if !v.Pairs[i].Key.Equal(o.Pairs[i].Key) || !v.Pairs[i].Value.Equal(o.Pairs[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}
