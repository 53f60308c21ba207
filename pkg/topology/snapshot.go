// Package topology holds immutable cluster configuration snapshots and the
// routing queries answered from them.
package topology

import (
	"net/netip"
	"slices"
	"sort"

	"hyperkv/pkg/wire"
)

type space struct {
	id        SpaceID
	schema    Schema
	subspaces []subspace
}

type subspace struct {
	hasher Hasher
	// indices into Snapshot.regions, ordered by mask
	regions []int
}

type region struct {
	id       RegionID
	chain    []int // indices into Snapshot.entities by chain position
	transfer int   // index into Snapshot.transfers, -1 if none
}

type entity struct {
	id     EntityID
	host   int
	region int
}

// Snapshot is one immutable configuration version. All methods are safe for
// concurrent use and never block. Lookups that find nothing return zero
// values or false.
type Snapshot struct {
	version        uint64
	text           []byte
	quiesce        bool
	quiesceStateID string
	shutdown       bool

	spaces    []space
	regions   []region
	entities  []entity
	hosts     []Instance
	transfers []Transfer

	spaceByName    map[string]int
	spaceByID      map[SpaceID]int
	regionIdx      map[RegionID]int
	entityIdx      map[EntityID]int
	hostByAddr     map[netip.AddrPort]int
	hostByInstance map[Instance]int
	transferByID   map[uint16]int
	// per host, indices of the regions it serves, ascending
	hostRegions [][]int
}

func (s *Snapshot) Version() uint64 {
	return s.version
}

// ConfigText returns the raw configuration this snapshot was built from.
func (s *Snapshot) ConfigText() []byte {
	return slices.Clone(s.text)
}

func (s *Snapshot) Quiesce() bool {
	return s.quiesce
}

func (s *Snapshot) QuiesceStateID() string {
	return s.quiesceStateID
}

func (s *Snapshot) Shutdown() bool {
	return s.shutdown
}

func (s *Snapshot) Hosts() []Instance {
	return slices.Clone(s.hosts)
}

// SpaceNames returns the names of all spaces in ascending order.
func (s *Snapshot) SpaceNames() []string {
	names := make([]string, 0, len(s.spaceByName))
	for name := range s.spaceByName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s *Snapshot) Space(name string) (SpaceID, bool) {
	i, ok := s.spaceByName[name]
	if !ok {
		return 0, false
	}
	return s.spaces[i].id, true
}

func (s *Snapshot) SchemaFor(name string) (Schema, bool) {
	i, ok := s.spaceByName[name]
	if !ok {
		return Schema{}, false
	}
	return s.spaces[i].schema.clone(), true
}

func (s *Snapshot) SchemaOf(id SpaceID) (Schema, bool) {
	sp, ok := s.space(id)
	if !ok {
		return Schema{}, false
	}
	return sp.schema.clone(), true
}

// Subspaces returns the number of subspaces of id, 0 for unknown spaces.
func (s *Snapshot) Subspaces(id SpaceID) int {
	sp, ok := s.space(id)
	if !ok {
		return 0
	}
	return len(sp.subspaces)
}

func (s *Snapshot) ReplicationHasher(id SubspaceID) (Hasher, bool) {
	ss, ok := s.subspace(id)
	if !ok {
		return nil, false
	}
	return ss.hasher, true
}

// Regions returns the regions of a subspace in hash order.
func (s *Snapshot) Regions(id SubspaceID) []RegionID {
	ss, ok := s.subspace(id)
	if !ok {
		return nil
	}
	out := make([]RegionID, len(ss.regions))
	for i, r := range ss.regions {
		out[i] = s.regions[r].id
	}
	return out
}

// RegionFor returns the region of a subspace owning the hash point.
func (s *Snapshot) RegionFor(id SubspaceID, point uint64) (RegionID, bool) {
	r, ok := s.regionFor(id, point)
	if !ok {
		return RegionID{}, false
	}
	return s.regions[r].id, true
}

// Chain returns the entities of a region, head first.
func (s *Snapshot) Chain(id RegionID) []EntityID {
	i, ok := s.regionIdx[id]
	if !ok {
		return nil
	}
	out := make([]EntityID, len(s.regions[i].chain))
	for n, e := range s.regions[i].chain {
		out[n] = s.entities[e].id
	}
	return out
}

// EntityFor returns the entity inst holds in the region, or EntityID{}.
func (s *Snapshot) EntityFor(inst Instance, id RegionID) EntityID {
	i, ok := s.regionIdx[id]
	if !ok {
		return EntityID{}
	}
	for _, e := range s.regions[i].chain {
		if s.hosts[s.entities[e].host] == inst {
			return s.entities[e].id
		}
	}
	return EntityID{}
}

// InstanceFor returns the instance holding e. The entity of a transfer
// resolves to the transfer's target.
func (s *Snapshot) InstanceFor(e EntityID) Instance {
	if e.Space == TransferSpace {
		return s.InstanceForTransfer(e.Subspace)
	}
	i, ok := s.entityIdx[e]
	if !ok {
		return Instance{}
	}
	return s.hosts[s.entities[i].host]
}

// RefreshVersions returns inst with the version counters currently known
// for its address. Unknown addresses come back with zero versions and false.
func (s *Snapshot) RefreshVersions(inst Instance) (Instance, bool) {
	i, ok := s.hostByAddr[inst.Addr]
	if !ok {
		return Instance{Addr: inst.Addr}, false
	}
	return s.hosts[i], true
}

// RegionsFor returns every region whose chain includes inst, ordered by
// (space, subspace, prefix, mask).
func (s *Snapshot) RegionsFor(inst Instance) []RegionID {
	h, ok := s.hostByInstance[inst]
	if !ok {
		return nil
	}
	out := make([]RegionID, len(s.hostRegions[h]))
	for n, r := range s.hostRegions[h] {
		out[n] = s.regions[r].id
	}
	return out
}

func (s *Snapshot) InRegion(inst Instance, id RegionID) bool {
	return !s.EntityFor(inst, id).IsZero()
}

// SloppyLookup maps a possibly stale entity onto the current region of its
// subspace that owns e.Mask. The chain position is kept when still valid and
// otherwise resolved to the head. EntityID{} if the subspace is unknown.
func (s *Snapshot) SloppyLookup(e EntityID) EntityID {
	r, ok := s.regionFor(SubspaceID{Space: e.Space, Subspace: e.Subspace}, e.Mask)
	if !ok {
		return EntityID{}
	}
	chain := s.regions[r].chain
	if int(e.Number) < len(chain) {
		return s.entities[chain[e.Number]].id
	}
	return s.entities[chain[0]].id
}

func (s *Snapshot) IsClient(e EntityID) bool {
	return e.Space == ClientSpace
}

// IsPointLeader reports whether e heads a region of its space's key
// subspace.
func (s *Snapshot) IsPointLeader(e EntityID) bool {
	_, ok := s.entityIdx[e]
	return ok && e.Subspace == 0 && e.Number == 0
}

// ChainAdjacent reports whether b directly follows a. The tail of a region
// under transfer is followed by the transfer's entity.
func (s *Snapshot) ChainAdjacent(a, b EntityID) bool {
	ea, ok := s.entity(a)
	if !ok {
		return false
	}
	if b.Space == TransferSpace {
		t := s.regions[ea.region].transfer
		return t >= 0 && s.transfers[t].ID == b.Subspace && s.isTail(ea)
	}
	eb, ok := s.entity(b)
	return ok && ea.region == eb.region && int(b.Number) == int(a.Number)+1
}

func (s *Snapshot) ChainHasNext(e EntityID) bool {
	en, ok := s.entity(e)
	return ok && !s.isTail(en)
}

func (s *Snapshot) ChainHasPrev(e EntityID) bool {
	_, ok := s.entity(e)
	return ok && e.Number > 0
}

// ChainNext returns the successor of e, or EntityID{} at the tail.
func (s *Snapshot) ChainNext(e EntityID) EntityID {
	en, ok := s.entity(e)
	if !ok || s.isTail(en) {
		return EntityID{}
	}
	return s.entities[s.regions[en.region].chain[e.Number+1]].id
}

// ChainPrev returns the predecessor of e, or EntityID{} at the head.
func (s *Snapshot) ChainPrev(e EntityID) EntityID {
	en, ok := s.entity(e)
	if !ok || e.Number == 0 {
		return EntityID{}
	}
	return s.entities[s.regions[en.region].chain[e.Number-1]].id
}

func (s *Snapshot) HeadOf(id RegionID) EntityID {
	i, ok := s.regionIdx[id]
	if !ok {
		return EntityID{}
	}
	return s.entities[s.regions[i].chain[0]].id
}

func (s *Snapshot) TailOf(id RegionID) EntityID {
	i, ok := s.regionIdx[id]
	if !ok {
		return EntityID{}
	}
	chain := s.regions[i].chain
	return s.entities[chain[len(chain)-1]].id
}

func (s *Snapshot) IsHead(e EntityID) bool {
	_, ok := s.entity(e)
	return ok && e.Number == 0
}

func (s *Snapshot) IsTail(e EntityID) bool {
	en, ok := s.entity(e)
	return ok && s.isTail(en)
}

// PointLeaderEntity returns the head of the key subspace region that owns
// key, together with the instance serving it.
func (s *Snapshot) PointLeaderEntity(id SpaceID, key []byte) (EntityID, Instance, bool) {
	sub := SubspaceID{Space: id}
	ss, ok := s.subspace(sub)
	if !ok {
		return EntityID{}, Instance{}, false
	}
	r, ok := s.regionFor(sub, ss.hasher.Hash([][]byte{key}))
	if !ok {
		return EntityID{}, Instance{}, false
	}
	head := s.entities[s.regions[r].chain[0]]
	return head.id, s.hosts[head.host], true
}

// SearchSubspace returns every entity of the subspace whose region the
// hasher cannot rule out for preds.
func (s *Snapshot) SearchSubspace(id SubspaceID, preds []wire.Predicate) map[EntityID]Instance {
	out := make(map[EntityID]Instance)
	ss, ok := s.subspace(id)
	if !ok {
		return out
	}
	s.collect(out, s.matching(ss, preds))
	return out
}

// SearchEntities searches the subspace of the space that narrows preds to
// the fewest regions. Every subspace holds all objects of the space, so any
// one of them answers the search.
func (s *Snapshot) SearchEntities(id SpaceID, preds []wire.Predicate) map[EntityID]Instance {
	out := make(map[EntityID]Instance)
	sp, ok := s.space(id)
	if !ok {
		return out
	}
	var best []int
	for i := range sp.subspaces {
		m := s.matching(&sp.subspaces[i], preds)
		if i == 0 || len(m) < len(best) {
			best = m
		}
	}
	s.collect(out, best)
	return out
}

func (s *Snapshot) InstanceForTransfer(id uint16) Instance {
	i, ok := s.transferByID[id]
	if !ok {
		return Instance{}
	}
	return s.transfers[i].Instance
}

func (s *Snapshot) TransferID(id RegionID) (uint16, bool) {
	i, ok := s.regionIdx[id]
	if !ok || s.regions[i].transfer < 0 {
		return 0, false
	}
	return s.transfers[s.regions[i].transfer].ID, true
}

// TransfersTo returns the transfers whose target is inst.
func (s *Snapshot) TransfersTo(inst Instance) map[uint16]RegionID {
	out := make(map[uint16]RegionID)
	for _, t := range s.transfers {
		if t.Instance == inst {
			out[t.ID] = t.Region
		}
	}
	return out
}

// TransfersFrom returns the transfers of regions whose tail is inst.
func (s *Snapshot) TransfersFrom(inst Instance) map[uint16]RegionID {
	out := make(map[uint16]RegionID)
	for _, t := range s.transfers {
		r := s.regions[s.regionIdx[t.Region]]
		if s.hosts[s.entities[r.chain[len(r.chain)-1]].host] == inst {
			out[t.ID] = t.Region
		}
	}
	return out
}

// Transfers returns all transfers in id order.
func (s *Snapshot) Transfers() []Transfer {
	return slices.Clone(s.transfers)
}

func (s *Snapshot) space(id SpaceID) (*space, bool) {
	i, ok := s.spaceByID[id]
	if !ok {
		return nil, false
	}
	return &s.spaces[i], true
}

func (s *Snapshot) subspace(id SubspaceID) (*subspace, bool) {
	sp, ok := s.space(id.Space)
	if !ok || int(id.Subspace) >= len(sp.subspaces) {
		return nil, false
	}
	return &sp.subspaces[id.Subspace], true
}

func (s *Snapshot) entity(e EntityID) (*entity, bool) {
	i, ok := s.entityIdx[e]
	if !ok {
		return nil, false
	}
	return &s.entities[i], true
}

func (s *Snapshot) isTail(e *entity) bool {
	return int(e.id.Number) == len(s.regions[e.region].chain)-1
}

// regionFor finds the last region whose mask does not exceed point. Regions
// of a subspace tile the hash space, so that region owns the point.
func (s *Snapshot) regionFor(id SubspaceID, point uint64) (int, bool) {
	ss, ok := s.subspace(id)
	if !ok {
		return 0, false
	}
	n := sort.Search(len(ss.regions), func(i int) bool {
		return s.regions[ss.regions[i]].id.Mask > point
	})
	if n == 0 {
		return 0, false
	}
	r := ss.regions[n-1]
	if !s.regions[r].id.Contains(point) {
		return 0, false
	}
	return r, true
}

func (s *Snapshot) matching(ss *subspace, preds []wire.Predicate) []int {
	c := ss.hasher.Search(preds)
	var out []int
	for _, r := range ss.regions {
		id := s.regions[r].id
		if c.Intersects(id.Prefix, id.Mask) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Snapshot) collect(out map[EntityID]Instance, regions []int) {
	for _, r := range regions {
		for _, e := range s.regions[r].chain {
			out[s.entities[e].id] = s.hosts[s.entities[e].host]
		}
	}
}
