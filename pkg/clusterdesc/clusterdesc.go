// Package clusterdesc decodes the YAML cluster description distributed
// through the coordinator into the tables topology.Build consumes.
package clusterdesc

import (
	"bytes"
	"errors"
	"fmt"
	"net/netip"
	"strconv"

	"github.com/goccy/go-yaml"

	"hyperkv/pkg/hyperspace"
	"hyperkv/pkg/topology"
	"hyperkv/pkg/wire"
)

var ErrInvalid = errors.New("clusterdesc: invalid cluster description")

type document struct {
	Version        uint64        `yaml:"version"`
	Quiesce        bool          `yaml:"quiesce"`
	QuiesceStateID string        `yaml:"quiesce_state_id"`
	Shutdown       bool          `yaml:"shutdown"`
	Hosts          []hostDoc     `yaml:"hosts"`
	Spaces         []spaceDoc    `yaml:"spaces"`
	Transfers      []transferDoc `yaml:"transfers"`
}

type hostDoc struct {
	Addr            string `yaml:"addr"`
	InboundVersion  uint16 `yaml:"inbound_version"`
	OutboundVersion uint16 `yaml:"outbound_version"`
}

type spaceDoc struct {
	Name       string         `yaml:"name"`
	ID         uint32         `yaml:"id"`
	Attributes []attributeDoc `yaml:"attributes"`
	Subspaces  []subspaceDoc  `yaml:"subspaces"`
}

type attributeDoc struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type subspaceDoc struct {
	Attributes []string    `yaml:"attributes"`
	Regions    []regionDoc `yaml:"regions"`
}

type regionDoc struct {
	Prefix   uint8    `yaml:"prefix"`
	Mask     mask     `yaml:"mask"`
	Replicas []string `yaml:"replicas"`
}

type transferDoc struct {
	ID       uint16 `yaml:"id"`
	Space    string `yaml:"space"`
	Subspace uint16 `yaml:"subspace"`
	Prefix   uint8  `yaml:"prefix"`
	Mask     mask   `yaml:"mask"`
	To       string `yaml:"to"`
}

// mask accepts decimal, 0x-prefixed hex or 0b-prefixed binary, quoted or
// not, so masks above 2^63 can be written legibly.
type mask uint64

func (m *mask) UnmarshalYAML(b []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(b), `"'`))
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return fmt.Errorf("%w: mask %q: %v", ErrInvalid, s, err)
	}
	*m = mask(v)
	return nil
}

// Parse decodes a cluster description. Cross references between the
// decoded tables are left to topology.Build; a replica address missing from
// the host list decodes to an instance Build will reject.
func Parse(data []byte) (topology.Config, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return topology.Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	cfg := topology.Config{
		Text:           bytes.Clone(data),
		Version:        doc.Version,
		Quiesce:        doc.Quiesce,
		QuiesceStateID: doc.QuiesceStateID,
		Shutdown:       doc.Shutdown,
		Schemas:        make(map[topology.SpaceID]topology.Schema, len(doc.Spaces)),
		Spaces:         make(map[string]topology.SpaceID, len(doc.Spaces)),
		Subspaces:      make(map[topology.SpaceID]uint16, len(doc.Spaces)),
		Hashers:        make(map[topology.SubspaceID]topology.Hasher),
	}

	hosts := make(map[netip.AddrPort]topology.Instance, len(doc.Hosts))
	for _, h := range doc.Hosts {
		addr, err := netip.ParseAddrPort(h.Addr)
		if err != nil {
			return topology.Config{}, fmt.Errorf("%w: host: %v", ErrInvalid, err)
		}
		inst := topology.Instance{Addr: addr, InboundVersion: h.InboundVersion, OutboundVersion: h.OutboundVersion}
		hosts[addr] = inst
		cfg.Hosts = append(cfg.Hosts, inst)
	}
	resolve := func(s string) (topology.Instance, error) {
		addr, err := netip.ParseAddrPort(s)
		if err != nil {
			return topology.Instance{}, fmt.Errorf("%w: replica: %v", ErrInvalid, err)
		}
		if inst, ok := hosts[addr]; ok {
			return inst, nil
		}
		return topology.Instance{Addr: addr}, nil
	}

	for _, sd := range doc.Spaces {
		if _, dup := cfg.Spaces[sd.Name]; dup {
			return topology.Config{}, fmt.Errorf("%w: space %q defined twice", ErrInvalid, sd.Name)
		}
		id := topology.SpaceID(sd.ID)
		schema, err := parseSchema(sd)
		if err != nil {
			return topology.Config{}, err
		}
		cfg.Spaces[sd.Name] = id
		cfg.Schemas[id] = schema
		cfg.Subspaces[id] = uint16(len(sd.Subspaces))

		for n, ss := range sd.Subspaces {
			sub := topology.SubspaceID{Space: id, Subspace: uint16(n)}
			h, err := parseHasher(schema, n, ss.Attributes)
			if err != nil {
				return topology.Config{}, fmt.Errorf("space %q subspace %d: %w", sd.Name, n, err)
			}
			cfg.Hashers[sub] = h

			for _, rd := range ss.Regions {
				r := topology.RegionID{Space: id, Subspace: uint16(n), Prefix: rd.Prefix, Mask: uint64(rd.Mask)}
				cfg.Regions = append(cfg.Regions, r)
				if len(rd.Replicas) > 256 {
					return topology.Config{}, fmt.Errorf("%w: %s has %d replicas", ErrInvalid, r, len(rd.Replicas))
				}
				for pos, replica := range rd.Replicas {
					inst, err := resolve(replica)
					if err != nil {
						return topology.Config{}, err
					}
					cfg.Entities = append(cfg.Entities, topology.Assignment{
						Entity:   topology.Entity(r, uint8(pos)),
						Instance: inst,
					})
				}
			}
		}
	}

	for _, td := range doc.Transfers {
		id, ok := cfg.Spaces[td.Space]
		if !ok {
			return topology.Config{}, fmt.Errorf("%w: transfer %d names unknown space %q", ErrInvalid, td.ID, td.Space)
		}
		inst, err := resolve(td.To)
		if err != nil {
			return topology.Config{}, err
		}
		cfg.Transfers = append(cfg.Transfers, topology.Transfer{
			ID:       td.ID,
			Region:   topology.RegionID{Space: id, Subspace: td.Subspace, Prefix: td.Prefix, Mask: uint64(td.Mask)},
			Instance: inst,
		})
	}
	return cfg, nil
}

// Load parses and builds in one step.
func Load(data []byte) (*topology.Snapshot, error) {
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return topology.Build(cfg)
}

func parseSchema(sd spaceDoc) (topology.Schema, error) {
	schema := topology.Schema{Name: sd.Name}
	for _, a := range sd.Attributes {
		t, ok := wire.ParseType(a.Type)
		if !ok || t == wire.TypeNull {
			return topology.Schema{}, fmt.Errorf("%w: space %q attribute %q has type %q", ErrInvalid, sd.Name, a.Name, a.Type)
		}
		if _, dup := schema.Lookup(a.Name); dup {
			return topology.Schema{}, fmt.Errorf("%w: space %q attribute %q defined twice", ErrInvalid, sd.Name, a.Name)
		}
		schema.Attributes = append(schema.Attributes, topology.Attribute{Name: a.Name, Type: t})
	}
	return schema, nil
}

// parseHasher builds a prefix hasher over the named attributes. The key
// subspace may leave its attribute list out.
func parseHasher(schema topology.Schema, n int, names []string) (topology.Hasher, error) {
	ids := make([]uint16, 0, len(names))
	if n == 0 && len(names) == 0 {
		ids = append(ids, 0)
	}
	for _, name := range names {
		id, ok := schema.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown attribute %q", ErrInvalid, name)
		}
		ids = append(ids, id)
	}
	h, err := hyperspace.NewPrefixHasher(ids...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return h, nil
}
