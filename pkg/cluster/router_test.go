package cluster

import (
	"fmt"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"hyperkv/pkg/clusterdesc"
	"hyperkv/pkg/topology"
	"hyperkv/pkg/wire"
)

var (
	node1 = netip.MustParseAddrPort("10.0.0.1:2012")
	node2 = netip.MustParseAddrPort("10.0.0.2:2012")
)

// describe renders a two-node cluster description: the key subspace has two
// regions led by different nodes, subspace 1 hashes v into a single region.
func describe(version uint64) []byte {
	return []byte(fmt.Sprintf(`version: %d
hosts:
  - {addr: "10.0.0.1:2012", inbound_version: 1, outbound_version: 1}
  - {addr: "10.0.0.2:2012", inbound_version: 1, outbound_version: 1}
spaces:
  - name: kv
    id: 1
    attributes: [{name: k, type: string}, {name: v, type: string}]
    subspaces:
      - regions:
          - {prefix: 1, mask: 0, replicas: ["10.0.0.1:2012", "10.0.0.2:2012"]}
          - {prefix: 1, mask: 0x8000000000000000, replicas: ["10.0.0.2:2012", "10.0.0.1:2012"]}
      - attributes: [v]
        regions:
          - {prefix: 0, mask: 0, replicas: ["10.0.0.2:2012"]}
`, version))
}

func newRouter(t *testing.T, local netip.AddrPort) *Router {
	t.Helper()
	s, err := clusterdesc.Load(describe(5))
	require.NoError(t, err)
	h := topology.NewHolder(1)
	require.NoError(t, h.Publish(s))
	return &Router{LocalAddr: local, Topology: h}
}

func TestRouterWithoutTopology(t *testing.T) {
	r := &Router{LocalAddr: node1, Topology: topology.NewHolder(1)}

	_, err := r.PointLeader("kv", []byte("k"))
	require.ErrorIs(t, err, ErrNoTopology)
	_, err = r.Search("kv", nil)
	require.ErrorIs(t, err, ErrNoTopology)
	_, _, err = r.LocalRegions()
	require.ErrorIs(t, err, ErrNoTopology)
}

func TestRouterPointLeader(t *testing.T) {
	r := newRouter(t, node1)
	fc := &fakeCollector{}
	r.Metrics = fc

	_, err := r.PointLeader("nope", []byte("k"))
	require.ErrorIs(t, err, ErrUnknownSpace)

	var local, remote int
	for i := 0; i < 200; i++ {
		route, err := r.PointLeader("kv", []byte(fmt.Sprintf("key-%d", i)))
		require.NoError(t, err)
		require.Equal(t, uint64(5), route.Version)
		require.Equal(t, uint8(0), route.Entity.Number)
		require.Equal(t, route.Instance.Addr == node1, route.Local)
		if route.Local {
			local++
		} else {
			remote++
			require.Equal(t, node2, route.Instance.Addr)
		}
	}
	require.Positive(t, local)
	require.Positive(t, remote)
	require.Equal(t, local, fc.routes["local"])
	require.Equal(t, remote, fc.routes["remote"])
	require.Equal(t, 1, fc.routes["unknown_space"])
}

func TestRouterSearch(t *testing.T) {
	r := newRouter(t, node1)

	routes, err := r.Search("kv", []wire.Predicate{{Attr: 1, Op: wire.Equals, Value: wire.String("x")}})
	require.NoError(t, err)
	require.Len(t, routes, 1)
	require.Equal(t, uint16(1), routes[0].Entity.Subspace)
	require.Equal(t, node2, routes[0].Instance.Addr)
	require.False(t, routes[0].Local)

	// one candidate region in each subspace: the key subspace wins the tie
	routes, err = r.Search("kv", []wire.Predicate{{Attr: 0, Op: wire.Equals, Value: wire.String("x")}})
	require.NoError(t, err)
	require.Len(t, routes, 2)
	require.Equal(t, uint16(0), routes[0].Entity.Subspace)
	require.Equal(t, uint8(0), routes[0].Entity.Number)
	require.Equal(t, uint8(1), routes[1].Entity.Number)
	require.Equal(t, routes[0].Entity.Region(), routes[1].Entity.Region())

	_, err = r.Search("nope", nil)
	require.ErrorIs(t, err, ErrUnknownSpace)
}

func TestRouterLocalRegions(t *testing.T) {
	r := newRouter(t, node1)

	self, v, err := r.Self()
	require.NoError(t, err)
	require.Equal(t, uint64(5), v)
	require.Equal(t, uint16(1), self.InboundVersion)

	regions, v, err := r.LocalRegions()
	require.NoError(t, err)
	require.Equal(t, uint64(5), v)
	require.Equal(t, []topology.RegionID{
		{Space: 1, Prefix: 1, Mask: 0},
		{Space: 1, Prefix: 1, Mask: 1 << 63},
	}, regions)

	stranger := newRouter(t, netip.MustParseAddrPort("10.0.0.9:2012"))
	_, _, err = stranger.LocalRegions()
	require.Error(t, err)
}
