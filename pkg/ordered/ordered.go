// Package ordered encodes numbers into fixed-width byte strings whose
// lexicographic (unsigned, byte-wise) order matches the numeric order of the
// inputs. The codes are big-endian, 8 bytes wide and can be concatenated to
// build composite index keys.
package ordered

import (
	"encoding/binary"
	"math"
)

// Size is the width of every code produced by this package.
const Size = 8

const (
	signBit  = uint64(1) << 63
	expMask  = uint64(0x7ff) << 52
	fracMask = uint64(1)<<52 - 1

	codeNegInf = uint64(0)
	codeZero   = signBit
	codePosInf = signBit | expMask
	codeNaN    = math.MaxUint64
)

// EncodeInt64 maps INT64_MIN to all-zero bytes and INT64_MAX to all-one bytes.
func EncodeInt64(x int64) [Size]byte {
	var out [Size]byte
	binary.BigEndian.PutUint64(out[:], uint64(x)^signBit)
	return out
}

// AppendInt64 appends the code of x to dst.
func AppendInt64(dst []byte, x int64) []byte {
	return binary.BigEndian.AppendUint64(dst, uint64(x)^signBit)
}

// DecodeInt64 reverses EncodeInt64. b must hold at least Size bytes.
func DecodeInt64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b) ^ signBit)
}

// EncodeUint64 is the identity big-endian code; unsigned values already sort
// correctly byte-wise.
func EncodeUint64(x uint64) [Size]byte {
	var out [Size]byte
	binary.BigEndian.PutUint64(out[:], x)
	return out
}

// AppendUint64 appends the code of x to dst.
func AppendUint64(dst []byte, x uint64) []byte {
	return binary.BigEndian.AppendUint64(dst, x)
}

// DecodeUint64 reverses EncodeUint64.
func DecodeUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// float64Code orders doubles as
//
//	-Inf < negatives < -0 == +0 < positives < +Inf < NaN
//
// Negative numbers clear the sign bit and invert exponent and fraction so a
// larger magnitude yields a smaller code. Positive numbers set the sign bit
// and keep exponent and fraction, which leaves the smallest subnormal one
// step above the zero code.
func float64Code(x float64) uint64 {
	switch {
	case math.IsNaN(x):
		return codeNaN
	case math.IsInf(x, 1):
		return codePosInf
	case math.IsInf(x, -1):
		return codeNegInf
	case x == 0:
		return codeZero
	}

	bits := math.Float64bits(x)
	exp := (bits & expMask) >> 52
	frac := bits & fracMask

	if bits&signBit != 0 {
		exp ^= 0x7ff
		frac ^= fracMask
		return exp<<52 | frac
	}
	return signBit | exp<<52 | frac
}

// EncodeFloat64 returns the order-preserving code of x.
func EncodeFloat64(x float64) [Size]byte {
	var out [Size]byte
	binary.BigEndian.PutUint64(out[:], float64Code(x))
	return out
}

// AppendFloat64 appends the code of x to dst.
func AppendFloat64(dst []byte, x float64) []byte {
	return binary.BigEndian.AppendUint64(dst, float64Code(x))
}

// DecodeFloat64 reverses EncodeFloat64 for codes it produced. Both zeros
// decode to +0 and every NaN decodes to math.NaN().
func DecodeFloat64(b []byte) float64 {
	code := binary.BigEndian.Uint64(b)
	switch {
	case code == codeNegInf:
		return math.Inf(-1)
	case code == codeZero:
		return 0
	case code == codePosInf:
		return math.Inf(1)
	case code > codePosInf:
		return math.NaN()
	case code&signBit != 0:
		return math.Float64frombits(code &^ signBit)
	}

	exp := ((code & expMask) >> 52) ^ 0x7ff
	frac := (code & fracMask) ^ fracMask
	return math.Float64frombits(signBit | exp<<52 | frac)
}

// Bump turns b into the lexicographically next byte string of the same
// length. It is used to derive an exclusive upper bound from an inclusive
// one. There is no successor for an all-0xFF range; asking for one is a
// caller bug and panics.
func Bump(b []byte) {
	i := len(b) - 1
	for i >= 0 && b[i] == 0xff {
		i--
	}
	if i < 0 {
		panic("ordered: bump of an all-0xff range")
	}

	b[i]++
	clear(b[i+1:])
}
