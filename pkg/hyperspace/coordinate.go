// Package hyperspace implements prefix hashing: objects are mapped onto a
// 64-bit point by interleaving the hashes of the attributes a subspace
// hashes, and regions own the points sharing a bit prefix.
package hyperspace

// Coordinate is a partially known point. Bits set in Mask are known and
// given by Point; the rest may be anything.
type Coordinate struct {
	Mask  uint64
	Point uint64
}

// Exact is a fully known point.
func Exact(p uint64) Coordinate {
	return Coordinate{Mask: ^uint64(0), Point: p}
}

// Unknown matches every point.
func Unknown() Coordinate {
	return Coordinate{}
}

// PrefixMask has the top prefix bits set.
func PrefixMask(prefix uint8) uint64 {
	if prefix == 0 {
		return 0
	}
	if prefix >= 64 {
		return ^uint64(0)
	}
	return ^uint64(0) << (64 - prefix)
}

// Width is the number of points covered by a prefix, with 0 standing for
// 2^64.
func Width(prefix uint8) uint64 {
	if prefix >= 64 {
		return 1
	}
	return uint64(1) << (64 - prefix)
}

// InPrefix reports whether point p falls in the region (prefix, mask).
func InPrefix(prefix uint8, mask, p uint64) bool {
	m := PrefixMask(prefix)
	return p&m == mask&m
}

// Intersects is false only when a known bit of c contradicts the region
// (prefix, mask). Unknown bits never exclude a region.
func (c Coordinate) Intersects(prefix uint8, mask uint64) bool {
	m := PrefixMask(prefix) & c.Mask
	return c.Point&m == mask&m
}

// Contains reports whether p agrees with every known bit of c.
func (c Coordinate) Contains(p uint64) bool {
	return p&c.Mask == c.Point&c.Mask
}
