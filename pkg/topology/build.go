package topology

import (
	"fmt"
	"maps"
	"net/netip"
	"slices"

	"hyperkv/pkg/hyperspace"
)

// Assignment places Instance at the chain position named by Entity.
type Assignment struct {
	Entity   EntityID
	Instance Instance
}

// Config is the decoded form of one configuration version.
type Config struct {
	// Text is the raw configuration, kept verbatim.
	Text    []byte
	Version uint64

	Schemas   map[SpaceID]Schema
	Spaces    map[string]SpaceID
	Subspaces map[SpaceID]uint16
	Hosts     []Instance
	Regions   []RegionID
	Entities  []Assignment
	Hashers   map[SubspaceID]Hasher
	Transfers []Transfer

	Quiesce        bool
	QuiesceStateID string
	Shutdown       bool
}

// Build validates cfg and assembles a snapshot from it. The first
// inconsistency found is returned as a *ValidationError; checks run in a
// fixed order so the same input always reports the same problem.
func Build(cfg Config) (*Snapshot, error) {
	b := builder{cfg: cfg, s: &Snapshot{
		version:        cfg.Version,
		text:           slices.Clone(cfg.Text),
		quiesce:        cfg.Quiesce,
		quiesceStateID: cfg.QuiesceStateID,
		shutdown:       cfg.Shutdown,
		spaceByName:    make(map[string]int, len(cfg.Spaces)),
		spaceByID:      make(map[SpaceID]int, len(cfg.Spaces)),
		regionIdx:      make(map[RegionID]int, len(cfg.Regions)),
		entityIdx:      make(map[EntityID]int, len(cfg.Entities)),
		hostByAddr:     make(map[netip.AddrPort]int, len(cfg.Hosts)),
		hostByInstance: make(map[Instance]int, len(cfg.Hosts)),
		transferByID:   make(map[uint16]int, len(cfg.Transfers)),
	}}

	steps := []func() error{
		b.spaces,
		b.hosts,
		b.regions,
		b.coverage,
		b.hashers,
		b.entities,
		b.chains,
		b.transfers,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	b.indexHosts()
	return b.s, nil
}

type builder struct {
	cfg Config
	s   *Snapshot
}

func invalid(kind error, format string, args ...any) error {
	return &ValidationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func (b *builder) spaces() error {
	for _, name := range slices.Sorted(maps.Keys(b.cfg.Spaces)) {
		id := b.cfg.Spaces[name]
		if id.reserved() {
			return invalid(ErrReservedSpace, "space %q uses id %d", name, id)
		}
		if _, dup := b.s.spaceByID[id]; dup {
			return invalid(ErrReservedSpace, "space %q reuses id %d", name, id)
		}
		schema, ok := b.cfg.Schemas[id]
		if !ok {
			return invalid(ErrMissingSchema, "space %q (%d)", name, id)
		}
		if len(schema.Attributes) == 0 {
			return invalid(ErrMissingSchema, "space %q has no key attribute", name)
		}
		n := b.cfg.Subspaces[id]
		if n == 0 {
			return invalid(ErrMissingHasher, "space %q has no key subspace", name)
		}
		schema.Name = name
		schema = schema.clone()
		b.s.spaceByName[name] = len(b.s.spaces)
		b.s.spaceByID[id] = len(b.s.spaces)
		b.s.spaces = append(b.s.spaces, space{id: id, schema: schema, subspaces: make([]subspace, n)})
	}
	for _, id := range slices.Sorted(maps.Keys(b.cfg.Schemas)) {
		if _, ok := b.s.spaceByID[id]; !ok {
			return invalid(ErrUnknownSpace, "schema for space %d", id)
		}
	}
	for _, id := range slices.Sorted(maps.Keys(b.cfg.Subspaces)) {
		if _, ok := b.s.spaceByID[id]; !ok {
			return invalid(ErrUnknownSpace, "subspace count for space %d", id)
		}
	}
	return nil
}

func (b *builder) hosts() error {
	for _, h := range b.cfg.Hosts {
		if !h.Addr.IsValid() {
			return invalid(ErrUnknownInstance, "host with invalid address %s", h)
		}
		if _, dup := b.s.hostByAddr[h.Addr]; dup {
			return invalid(ErrDuplicateHost, "%s", h.Addr)
		}
		b.s.hostByAddr[h.Addr] = len(b.s.hosts)
		b.s.hostByInstance[h] = len(b.s.hosts)
		b.s.hosts = append(b.s.hosts, h)
	}
	return nil
}

func (b *builder) regions() error {
	ids := slices.SortedFunc(slices.Values(b.cfg.Regions), CompareRegions)
	for _, id := range ids {
		sp, ok := b.s.space(id.Space)
		if !ok {
			return invalid(ErrUnknownSpace, "%s", id)
		}
		if int(id.Subspace) >= len(sp.subspaces) {
			return invalid(ErrBadRegion, "%s: space %d has %d subspaces", id, id.Space, len(sp.subspaces))
		}
		if id.Prefix > 64 || id.Mask&^hyperspace.PrefixMask(id.Prefix) != 0 {
			return invalid(ErrBadRegion, "%s: mask has bits past the prefix", id)
		}
		if _, dup := b.s.regionIdx[id]; dup {
			return invalid(ErrRegionOverlap, "%s listed twice", id)
		}
		idx := len(b.s.regions)
		b.s.regionIdx[id] = idx
		b.s.regions = append(b.s.regions, region{id: id, transfer: -1})
		ss := &sp.subspaces[id.Subspace]
		ss.regions = append(ss.regions, idx)
	}
	return nil
}

// coverage checks that the regions of every subspace tile the hash space:
// walking them by mask, each must start where the previous one ended and
// the last must end at 2^64.
func (b *builder) coverage() error {
	for si := range b.s.spaces {
		sp := &b.s.spaces[si]
		for n := range sp.subspaces {
			ss := &sp.subspaces[n]
			sub := SubspaceID{Space: sp.id, Subspace: uint16(n)}
			slices.SortFunc(ss.regions, func(x, y int) int {
				return compareMask(b.s.regions[x].id, b.s.regions[y].id)
			})
			var next uint64
			done := false
			for _, r := range ss.regions {
				id := b.s.regions[r].id
				switch {
				case done || id.Mask < next:
					return invalid(ErrRegionOverlap, "%s", id)
				case id.Mask > next:
					return invalid(ErrRegionGap, "%s: points %016x..%016x unowned", sub, next, id.Mask-1)
				}
				next += hyperspace.Width(id.Prefix)
				done = next == 0
			}
			if !done {
				return invalid(ErrRegionGap, "%s: points from %016x unowned", sub, next)
			}
		}
	}
	return nil
}

func compareMask(a, b RegionID) int {
	switch {
	case a.Mask < b.Mask:
		return -1
	case a.Mask > b.Mask:
		return 1
	}
	return int(a.Prefix) - int(b.Prefix)
}

func (b *builder) hashers() error {
	for si := range b.s.spaces {
		sp := &b.s.spaces[si]
		for n := range sp.subspaces {
			sub := SubspaceID{Space: sp.id, Subspace: uint16(n)}
			h, ok := b.cfg.Hashers[sub]
			if !ok || h == nil {
				return invalid(ErrMissingHasher, "%s", sub)
			}
			if l, ok := h.(attributeLister); ok {
				attrs := l.Attributes()
				if n == 0 && !slices.Equal(attrs, []uint16{0}) {
					return invalid(ErrMissingHasher, "%s must hash the key attribute alone", sub)
				}
				for _, a := range attrs {
					if int(a) >= len(sp.schema.Attributes) {
						return invalid(ErrMissingSchema, "%s hashes unknown attribute %d", sub, a)
					}
				}
			}
			sp.subspaces[n].hasher = h
		}
	}
	for _, sub := range slices.SortedFunc(maps.Keys(b.cfg.Hashers), compareSubspaces) {
		if _, ok := b.s.subspace(sub); !ok {
			return invalid(ErrUnknownSpace, "hasher for %s", sub)
		}
	}
	return nil
}

func compareSubspaces(a, b SubspaceID) int {
	return CompareRegions(RegionID{Space: a.Space, Subspace: a.Subspace}, RegionID{Space: b.Space, Subspace: b.Subspace})
}

func (b *builder) entities() error {
	assigned := slices.SortedFunc(slices.Values(b.cfg.Entities), func(x, y Assignment) int {
		return CompareEntities(x.Entity, y.Entity)
	})
	for _, a := range assigned {
		r, ok := b.s.regionIdx[a.Entity.Region()]
		if !ok {
			return invalid(ErrUnknownRegion, "%s", a.Entity)
		}
		h, ok := b.s.hostByInstance[a.Instance]
		if !ok {
			return invalid(ErrUnknownInstance, "%s assigned to %s", a.Instance, a.Entity)
		}
		if _, dup := b.s.entityIdx[a.Entity]; dup {
			return invalid(ErrDuplicatePosition, "%s", a.Entity)
		}
		for _, e := range b.s.regions[r].chain {
			if b.s.entities[e].host == h {
				return invalid(ErrDuplicateMember, "%s holds %s and %s", a.Instance, b.s.entities[e].id, a.Entity)
			}
		}
		idx := len(b.s.entities)
		b.s.entityIdx[a.Entity] = idx
		b.s.entities = append(b.s.entities, entity{id: a.Entity, host: h, region: r})
		b.s.regions[r].chain = append(b.s.regions[r].chain, idx)
	}
	return nil
}

// chains relies on entities being appended in position order.
func (b *builder) chains() error {
	for _, r := range b.s.regions {
		if len(r.chain) == 0 {
			return invalid(ErrEmptyRegion, "%s", r.id)
		}
		for n, e := range r.chain {
			if got := b.s.entities[e].id.Number; int(got) != n {
				return invalid(ErrChainGap, "%s: position %d missing", r.id, n)
			}
		}
	}
	return nil
}

func (b *builder) transfers() error {
	ts := slices.SortedFunc(slices.Values(b.cfg.Transfers), func(x, y Transfer) int {
		return int(x.ID) - int(y.ID)
	})
	for _, t := range ts {
		if _, dup := b.s.transferByID[t.ID]; dup {
			return invalid(ErrBadTransfer, "transfer %d listed twice", t.ID)
		}
		r, ok := b.s.regionIdx[t.Region]
		if !ok {
			return invalid(ErrUnknownRegion, "transfer %d moves %s", t.ID, t.Region)
		}
		if _, ok := b.s.hostByInstance[t.Instance]; !ok {
			return invalid(ErrUnknownInstance, "transfer %d targets %s", t.ID, t.Instance)
		}
		if b.s.regions[r].transfer >= 0 {
			return invalid(ErrBadTransfer, "%s already under transfer", t.Region)
		}
		for _, e := range b.s.regions[r].chain {
			if b.s.hosts[b.s.entities[e].host] == t.Instance {
				return invalid(ErrBadTransfer, "transfer %d targets chain member %s", t.ID, t.Instance)
			}
		}
		b.s.transferByID[t.ID] = len(b.s.transfers)
		b.s.regions[r].transfer = len(b.s.transfers)
		b.s.transfers = append(b.s.transfers, t)
	}
	return nil
}

func (b *builder) indexHosts() {
	b.s.hostRegions = make([][]int, len(b.s.hosts))
	for r := range b.s.regions {
		for _, e := range b.s.regions[r].chain {
			h := b.s.entities[e].host
			b.s.hostRegions[h] = append(b.s.hostRegions[h], r)
		}
	}
}
