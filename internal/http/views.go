package http

import (
	"fmt"

	"hyperkv/pkg/cluster"
	"hyperkv/pkg/topology"
)

type topologyView struct {
	Version        uint64         `json:"version"`
	Quiesce        bool           `json:"quiesce"`
	QuiesceStateID string         `json:"quiesce_state_id,omitempty"`
	Shutdown       bool           `json:"shutdown"`
	Hosts          []hostView     `json:"hosts"`
	Spaces         []spaceView    `json:"spaces"`
	Transfers      []transferView `json:"transfers,omitempty"`
}

type hostView struct {
	Addr            string `json:"addr"`
	InboundVersion  uint16 `json:"inbound_version"`
	OutboundVersion uint16 `json:"outbound_version"`
}

type spaceView struct {
	Name       string          `json:"name"`
	ID         uint32          `json:"id"`
	Attributes []attributeView `json:"attributes"`
	Subspaces  [][]regionView  `json:"subspaces"`
}

type attributeView struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type regionView struct {
	Prefix uint8    `json:"prefix"`
	Mask   string   `json:"mask"`
	Chain  []string `json:"chain"`
}

type transferView struct {
	ID     uint16 `json:"id"`
	Region string `json:"region"`
	To     string `json:"to"`
}

type routeView struct {
	Version uint64 `json:"version"`
	Entity  string `json:"entity"`
	Target  string `json:"target"`
	Local   bool   `json:"local"`
}

func newHostView(i topology.Instance) hostView {
	return hostView{Addr: i.Addr.String(), InboundVersion: i.InboundVersion, OutboundVersion: i.OutboundVersion}
}

func maskString(m uint64) string {
	return fmt.Sprintf("0x%016x", m)
}

func newTopologyView(s *topology.Snapshot) topologyView {
	v := topologyView{
		Version:        s.Version(),
		Quiesce:        s.Quiesce(),
		QuiesceStateID: s.QuiesceStateID(),
		Shutdown:       s.Shutdown(),
	}
	for _, h := range s.Hosts() {
		v.Hosts = append(v.Hosts, newHostView(h))
	}
	for _, name := range s.SpaceNames() {
		id, _ := s.Space(name)
		schema, _ := s.SchemaOf(id)
		sv := spaceView{Name: name, ID: uint32(id)}
		for _, a := range schema.Attributes {
			sv.Attributes = append(sv.Attributes, attributeView{Name: a.Name, Type: a.Type.String()})
		}
		for n := range s.Subspaces(id) {
			var regions []regionView
			for _, r := range s.Regions(topology.SubspaceID{Space: id, Subspace: uint16(n)}) {
				rv := regionView{Prefix: r.Prefix, Mask: maskString(r.Mask)}
				for _, e := range s.Chain(r) {
					rv.Chain = append(rv.Chain, s.InstanceFor(e).Addr.String())
				}
				regions = append(regions, rv)
			}
			sv.Subspaces = append(sv.Subspaces, regions)
		}
		v.Spaces = append(v.Spaces, sv)
	}
	for _, t := range s.Transfers() {
		v.Transfers = append(v.Transfers, transferView{ID: t.ID, Region: t.Region.String(), To: t.Instance.Addr.String()})
	}
	return v
}

func newRouteView(r cluster.Route) routeView {
	return routeView{
		Version: r.Version,
		Entity:  r.Entity.String(),
		Target:  r.Instance.Addr.String(),
		Local:   r.Local,
	}
}
