package topology

import (
	"cmp"
	"fmt"
	"math"
	"net/netip"
	"slices"

	"hyperkv/pkg/hyperspace"
	"hyperkv/pkg/wire"
)

// SpaceID identifies a space. 0 is never a valid space.
type SpaceID uint32

const (
	// ClientSpace addresses clients, which hold no region.
	ClientSpace SpaceID = math.MaxUint32
	// TransferSpace addresses the receiving end of a state transfer; the
	// subspace field carries the transfer id.
	TransferSpace SpaceID = math.MaxUint32 - 1
)

func (s SpaceID) reserved() bool {
	return s == 0 || s == ClientSpace || s == TransferSpace
}

// SubspaceID identifies one hashing dimension of a space. Subspace 0 hashes
// the key.
type SubspaceID struct {
	Space    SpaceID
	Subspace uint16
}

func (s SubspaceID) String() string {
	return fmt.Sprintf("subspace(%d, %d)", s.Space, s.Subspace)
}

// RegionID is one hash bucket of a subspace: the points whose top Prefix bits
// equal those of Mask.
type RegionID struct {
	Space    SpaceID
	Subspace uint16
	Prefix   uint8
	Mask     uint64
}

func (r RegionID) SubspaceID() SubspaceID {
	return SubspaceID{Space: r.Space, Subspace: r.Subspace}
}

// Contains reports whether the hash point p belongs to r.
func (r RegionID) Contains(p uint64) bool {
	return hyperspace.InPrefix(r.Prefix, r.Mask, p)
}

// Covers reports whether o lies inside r: same subspace, at least as long a
// prefix, agreeing on r's prefix bits.
func (r RegionID) Covers(o RegionID) bool {
	return r.SubspaceID() == o.SubspaceID() && o.Prefix >= r.Prefix && r.Contains(o.Mask)
}

func (r RegionID) String() string {
	return fmt.Sprintf("region(%d, %d, %d, %016x)", r.Space, r.Subspace, r.Prefix, r.Mask)
}

// CompareRegions orders regions by (space, subspace, prefix, mask).
func CompareRegions(a, b RegionID) int {
	return cmp.Or(
		cmp.Compare(a.Space, b.Space),
		cmp.Compare(a.Subspace, b.Subspace),
		cmp.Compare(a.Prefix, b.Prefix),
		cmp.Compare(a.Mask, b.Mask),
	)
}

// EntityID is the role held by an instance at position Number of a region's
// chain. EntityID{} means "no entity".
type EntityID struct {
	Space    SpaceID
	Subspace uint16
	Prefix   uint8
	Mask     uint64
	Number   uint8
}

// Entity returns the entity at chain position n of r.
func Entity(r RegionID, n uint8) EntityID {
	return EntityID{Space: r.Space, Subspace: r.Subspace, Prefix: r.Prefix, Mask: r.Mask, Number: n}
}

func (e EntityID) Region() RegionID {
	return RegionID{Space: e.Space, Subspace: e.Subspace, Prefix: e.Prefix, Mask: e.Mask}
}

func (e EntityID) IsZero() bool {
	return e == EntityID{}
}

func (e EntityID) String() string {
	return fmt.Sprintf("entity(%d, %d, %d, %016x, %d)", e.Space, e.Subspace, e.Prefix, e.Mask, e.Number)
}

// CompareEntities orders entities by region, then chain position.
func CompareEntities(a, b EntityID) int {
	return cmp.Or(CompareRegions(a.Region(), b.Region()), cmp.Compare(a.Number, b.Number))
}

// Instance is a physical node. The version counters change every time the
// node rejoins so stale connections can be told apart. Instance{} is the null
// instance.
type Instance struct {
	Addr            netip.AddrPort
	InboundVersion  uint16
	OutboundVersion uint16
}

func (i Instance) IsNull() bool {
	return i == Instance{}
}

func (i Instance) String() string {
	return fmt.Sprintf("instance(%s, %d, %d)", i.Addr, i.InboundVersion, i.OutboundVersion)
}

// Attribute is one column of a schema.
type Attribute struct {
	Name string
	Type wire.Type
}

// Schema lists the attributes of a space. Attribute 0 is the key.
type Schema struct {
	Name       string
	Attributes []Attribute
}

// Key returns the key attribute.
func (s Schema) Key() Attribute {
	if len(s.Attributes) == 0 {
		return Attribute{}
	}
	return s.Attributes[0]
}

func (s Schema) clone() Schema {
	s.Attributes = slices.Clone(s.Attributes)
	return s
}

// Lookup returns the id of the named attribute.
func (s Schema) Lookup(name string) (uint16, bool) {
	for i, a := range s.Attributes {
		if a.Name == name {
			return uint16(i), true
		}
	}
	return 0, false
}

// Transfer moves a replica of Region onto Instance. Once complete the
// instance joins the region's chain.
type Transfer struct {
	ID       uint16
	Region   RegionID
	Instance Instance
}

// TransferEntity is the entity addressing the receiving end of transfer id.
func TransferEntity(id uint16) EntityID {
	return EntityID{Space: TransferSpace, Subspace: id}
}
