package topology

import (
	"hyperkv/pkg/hyperspace"
	"hyperkv/pkg/wire"
)

// Hasher places objects of one subspace onto hash points.
//
// Hash receives the canonical bytes of every attribute, indexed by
// attribute id with the key at 0. Search returns the bits of the point that
// the predicates pin down; it must never fix a bit a matching object could
// disagree on.
type Hasher interface {
	Hash(attrs [][]byte) uint64
	Search(preds []wire.Predicate) hyperspace.Coordinate
}

// attributeLister is implemented by hashers that can report what they hash.
// Build uses it to check hashers against the schema.
type attributeLister interface {
	Attributes() []uint16
}

var (
	_ Hasher          = (*hyperspace.PrefixHasher)(nil)
	_ attributeLister = (*hyperspace.PrefixHasher)(nil)
)
