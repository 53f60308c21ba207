package clusterdesc

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"hyperkv/pkg/topology"
	"hyperkv/pkg/wire"
)

const sample = `
version: 3
quiesce: true
quiesce_state_id: "q-17"
hosts:
  - {addr: "10.0.0.1:2012", inbound_version: 1, outbound_version: 1}
  - {addr: "10.0.0.2:2012", inbound_version: 2, outbound_version: 5}
  - {addr: "10.0.0.3:2012", inbound_version: 1, outbound_version: 1}
  - {addr: "10.0.0.4:2012", inbound_version: 1, outbound_version: 1}
spaces:
  - name: kv
    id: 1
    attributes:
      - {name: k, type: string}
      - {name: v, type: int64}
    subspaces:
      - regions:
          - {prefix: 1, mask: 0, replicas: ["10.0.0.1:2012", "10.0.0.2:2012", "10.0.0.3:2012"]}
          - {prefix: 1, mask: 0x8000000000000000, replicas: ["10.0.0.2:2012", "10.0.0.3:2012", "10.0.0.1:2012"]}
      - attributes: [v]
        regions:
          - {prefix: 0, mask: 0, replicas: ["10.0.0.3:2012"]}
transfers:
  - {id: 4, space: kv, subspace: 0, prefix: 1, mask: "0x8000000000000000", to: "10.0.0.4:2012"}
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	require.Equal(t, uint64(3), cfg.Version)
	require.True(t, cfg.Quiesce)
	require.Equal(t, "q-17", cfg.QuiesceStateID)
	require.False(t, cfg.Shutdown)
	require.Equal(t, []byte(sample), cfg.Text)

	require.Len(t, cfg.Hosts, 4)
	require.Equal(t, uint16(5), cfg.Hosts[1].OutboundVersion)

	require.Equal(t, topology.SpaceID(1), cfg.Spaces["kv"])
	require.Equal(t, uint16(2), cfg.Subspaces[1])
	schema := cfg.Schemas[1]
	require.Equal(t, "kv", schema.Name)
	require.Equal(t, wire.TypeInt64, schema.Attributes[1].Type)

	require.Len(t, cfg.Regions, 3)
	require.Equal(t, uint64(1)<<63, cfg.Regions[1].Mask)
	require.Len(t, cfg.Entities, 7)
	require.Equal(t, topology.Entity(cfg.Regions[1], 2), cfg.Entities[5].Entity)
	require.Equal(t, cfg.Hosts[0], cfg.Entities[5].Instance)

	require.Len(t, cfg.Hashers, 2)
	require.Equal(t, []topology.Transfer{{
		ID:       4,
		Region:   cfg.Regions[1],
		Instance: cfg.Hosts[3],
	}}, cfg.Transfers)
}

func TestLoad(t *testing.T) {
	s, err := Load([]byte(sample))
	require.NoError(t, err)

	hi := topology.RegionID{Space: 1, Prefix: 1, Mask: 1 << 63}
	require.Equal(t, netip.MustParseAddrPort("10.0.0.1:2012"), s.InstanceFor(s.TailOf(hi)).Addr)

	id, ok := s.TransferID(hi)
	require.True(t, ok)
	require.Equal(t, uint16(4), id)
	require.True(t, s.ChainAdjacent(s.TailOf(hi), topology.TransferEntity(4)))

	e, _, ok := s.PointLeaderEntity(1, []byte("user:1"))
	require.True(t, ok)
	require.True(t, s.IsPointLeader(e))

	got := s.SearchEntities(1, []wire.Predicate{{Attr: 1, Op: wire.Equals, Value: wire.Int64(7)}})
	require.Len(t, got, 1)
}

func TestParseRejectsMalformedInput(t *testing.T) {
	tests := map[string]string{
		"not yaml":         "hosts: [",
		"bad host":         "hosts: [{addr: nowhere}]",
		"bad mask":         "spaces: [{name: a, id: 1, attributes: [{name: k, type: string}], subspaces: [{regions: [{prefix: 1, mask: zz}]}]}]",
		"bad type":         "spaces: [{name: a, id: 1, attributes: [{name: k, type: blob}]}]",
		"null type":        "spaces: [{name: a, id: 1, attributes: [{name: k, type: \"null\"}]}]",
		"duplicate attr":   "spaces: [{name: a, id: 1, attributes: [{name: k, type: string}, {name: k, type: int64}]}]",
		"duplicate space":  "spaces: [{name: a, id: 1}, {name: a, id: 2}]",
		"unknown attr":     "spaces: [{name: a, id: 1, attributes: [{name: k, type: string}], subspaces: [{}, {attributes: [v]}]}]",
		"unknown transfer": "transfers: [{id: 1, space: nope, to: \"10.0.0.1:1\"}]",
		"bad replica":      "spaces: [{name: a, id: 1, attributes: [{name: k, type: string}], subspaces: [{regions: [{prefix: 0, mask: 0, replicas: [x]}]}]}]",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadRejectsUnresolvedReplica(t *testing.T) {
	doc := strings.Replace(sample, `replicas: ["10.0.0.3:2012"]`, `replicas: ["10.0.0.9:2012"]`, 1)

	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, topology.Instance{Addr: netip.MustParseAddrPort("10.0.0.9:2012")}, cfg.Entities[6].Instance)

	_, err = Load([]byte(doc))
	require.ErrorIs(t, err, topology.ErrUnknownInstance)
}

func TestLoadRejectsPartialCoverage(t *testing.T) {
	doc := strings.Replace(sample, "prefix: 0, mask: 0", "prefix: 1, mask: 0", 1)
	_, err := Load([]byte(doc))
	require.ErrorIs(t, err, topology.ErrRegionGap)
}
