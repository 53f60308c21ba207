package cluster

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"

	"hyperkv/pkg/metrics"
	"hyperkv/pkg/topology"
	"hyperkv/pkg/wire"
)

var (
	ErrNoTopology   = errors.New("router: no topology published yet")
	ErrUnknownSpace = errors.New("router: unknown space")
	ErrNoRoute      = errors.New("router: key routes nowhere")
)

// Route is where a request must go under one configuration version. The
// version is the fencing token the receiver checks.
type Route struct {
	Version  uint64
	Entity   topology.EntityID
	Instance topology.Instance
	Local    bool
}

// Router answers routing questions from the current snapshot. Every call
// loads the snapshot once, so one answer never mixes two versions.
type Router struct {
	LocalAddr netip.AddrPort // текущая нода
	Topology  *topology.Holder
	Metrics   metrics.Collector
}

func (r *Router) snapshot() (*topology.Snapshot, error) {
	s := r.Topology.Current()
	if s == nil {
		return nil, ErrNoTopology
	}
	return s, nil
}

func (r *Router) count(result string) {
	if r.Metrics != nil {
		r.Metrics.RouteLookup(result)
	}
}

// PointLeader resolves the entity writes to key in space must go to.
func (r *Router) PointLeader(space string, key []byte) (Route, error) {
	s, err := r.snapshot()
	if err != nil {
		r.count("no_topology")
		return Route{}, err
	}
	id, ok := s.Space(space)
	if !ok {
		r.count("unknown_space")
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownSpace, space)
	}
	e, inst, ok := s.PointLeaderEntity(id, key)
	if !ok {
		r.count("no_route")
		return Route{}, fmt.Errorf("%w: space %q version %d", ErrNoRoute, space, s.Version())
	}

	route := Route{Version: s.Version(), Entity: e, Instance: inst, Local: inst.Addr == r.LocalAddr}
	where := "remote"
	if route.Local {
		where = "local"
	}
	r.count(where)
	slog.Debug("route", "space", space, "entity", e.String(), "target", inst.Addr.String(), "where", where)
	return route, nil
}

// Search returns every entity a search over space must visit, ordered by
// entity.
func (r *Router) Search(space string, preds []wire.Predicate) ([]Route, error) {
	s, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	id, ok := s.Space(space)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSpace, space)
	}

	found := s.SearchEntities(id, preds)
	routes := make([]Route, 0, len(found))
	for e, inst := range found {
		routes = append(routes, Route{Version: s.Version(), Entity: e, Instance: inst, Local: inst.Addr == r.LocalAddr})
	}
	slices.SortFunc(routes, func(a, b Route) int {
		return topology.CompareEntities(a.Entity, b.Entity)
	})
	return routes, nil
}

// Self returns the local instance as the current snapshot knows it.
func (r *Router) Self() (topology.Instance, uint64, error) {
	s, err := r.snapshot()
	if err != nil {
		return topology.Instance{}, 0, err
	}
	inst, err := r.self(s)
	return inst, s.Version(), err
}

// LocalRegions lists the regions the local instance replicates.
func (r *Router) LocalRegions() ([]topology.RegionID, uint64, error) {
	s, err := r.snapshot()
	if err != nil {
		return nil, 0, err
	}
	inst, err := r.self(s)
	if err != nil {
		return nil, s.Version(), err
	}
	return s.RegionsFor(inst), s.Version(), nil
}

func (r *Router) self(s *topology.Snapshot) (topology.Instance, error) {
	inst, ok := s.RefreshVersions(topology.Instance{Addr: r.LocalAddr})
	if !ok {
		return inst, fmt.Errorf("router: %s is not a host in version %d", r.LocalAddr, s.Version())
	}
	return inst, nil
}
