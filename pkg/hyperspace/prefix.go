package hyperspace

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"hyperkv/pkg/wire"
)

var ErrNoAttributes = errors.New("hyperspace: hasher needs at least one attribute")

// PrefixHasher hashes a fixed list of attributes. Bit i of the point (MSB
// first) is bit i/n of the hash of attribute i%n, so every prefix of the
// point constrains every hashed attribute evenly.
type PrefixHasher struct {
	attrs []uint16
}

func NewPrefixHasher(attrs ...uint16) (*PrefixHasher, error) {
	if len(attrs) == 0 {
		return nil, ErrNoAttributes
	}
	seen := make(map[uint16]struct{}, len(attrs))
	for _, a := range attrs {
		if _, dup := seen[a]; dup {
			return nil, fmt.Errorf("hyperspace: attribute %d hashed twice", a)
		}
		seen[a] = struct{}{}
	}
	return &PrefixHasher{attrs: append([]uint16(nil), attrs...)}, nil
}

// Attributes returns the hashed attribute ids in hashing order.
func (h *PrefixHasher) Attributes() []uint16 {
	return append([]uint16(nil), h.attrs...)
}

// Hash maps an object onto its point. attrs is indexed by attribute id with
// the key at 0; attributes past the end hash as empty.
func (h *PrefixHasher) Hash(attrs [][]byte) uint64 {
	hashes := make([]uint64, len(h.attrs))
	for i, a := range h.attrs {
		var b []byte
		if int(a) < len(attrs) {
			b = attrs[a]
		}
		hashes[i] = xxhash.Sum64(b)
	}
	return h.interleave(hashes)
}

// Search fixes the bits of every hashed attribute constrained by an
// equality predicate. Other predicates leave their bits unknown.
func (h *PrefixHasher) Search(preds []wire.Predicate) Coordinate {
	hashes := make([]uint64, len(h.attrs))
	known := make([]uint64, len(h.attrs))
	for i, a := range h.attrs {
		for _, p := range preds {
			// невалидное значение ничего не фиксирует
			if p.Attr == a && p.Op == wire.Equals && p.Value.Validate() == nil {
				hashes[i] = xxhash.Sum64(p.Value.Canonical())
				known[i] = ^uint64(0)
				break
			}
		}
	}
	return Coordinate{Mask: h.interleave(known), Point: h.interleave(hashes)}
}

func (h *PrefixHasher) interleave(hashes []uint64) uint64 {
	n := len(hashes)
	var out uint64
	for i := 0; i < 64; i++ {
		src := hashes[i%n]
		bit := (src >> (63 - i/n)) & 1
		out |= bit << (63 - i)
	}
	return out
}
