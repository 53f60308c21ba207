package hyperspace

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"hyperkv/pkg/wire"
)

func TestPrefixMaskAndWidth(t *testing.T) {
	require.Equal(t, uint64(0), PrefixMask(0))
	require.Equal(t, uint64(1)<<63, PrefixMask(1))
	require.Equal(t, ^uint64(0), PrefixMask(64))
	require.Equal(t, ^uint64(0), PrefixMask(200))

	require.Equal(t, uint64(0), Width(0))
	require.Equal(t, uint64(1)<<63, Width(1))
	require.Equal(t, uint64(1), Width(64))
}

func TestInPrefix(t *testing.T) {
	require.True(t, InPrefix(0, 0, 12345))
	require.True(t, InPrefix(1, 0, 1<<62))
	require.False(t, InPrefix(1, 0, 1<<63))
	require.True(t, InPrefix(2, 3<<62, ^uint64(0)))
}

func TestNewPrefixHasherValidates(t *testing.T) {
	_, err := NewPrefixHasher()
	require.ErrorIs(t, err, ErrNoAttributes)

	_, err = NewPrefixHasher(1, 1)
	require.Error(t, err)

	h, err := NewPrefixHasher(2, 0)
	require.NoError(t, err)
	require.Equal(t, []uint16{2, 0}, h.Attributes())
}

func TestHashIsDeterministicAndKeyOnly(t *testing.T) {
	h, err := NewPrefixHasher(0)
	require.NoError(t, err)

	a := h.Hash([][]byte{[]byte("user:1"), []byte("ignored")})
	b := h.Hash([][]byte{[]byte("user:1")})
	require.Equal(t, a, b)
	require.NotEqual(t, a, h.Hash([][]byte{[]byte("user:2")}))
}

func TestSearchEqualityMatchesHash(t *testing.T) {
	h, err := NewPrefixHasher(1, 2)
	require.NoError(t, err)

	obj := [][]byte{[]byte("k"), []byte("alice"), wire.Int64(30).Canonical()}
	point := h.Hash(obj)

	full := h.Search([]wire.Predicate{
		{Attr: 1, Op: wire.Equals, Value: wire.String("alice")},
		{Attr: 2, Op: wire.Equals, Value: wire.Int64(30)},
	})
	require.Equal(t, Exact(point), full)

	half := h.Search([]wire.Predicate{{Attr: 1, Op: wire.Equals, Value: wire.String("alice")}})
	require.Equal(t, uint64(0xaaaaaaaaaaaaaaaa), half.Mask)
	require.Equal(t, point&half.Mask, half.Point)

	none := h.Search([]wire.Predicate{{Attr: 2, Op: wire.LessEqual, Value: wire.Int64(30)}})
	require.Equal(t, Unknown(), none)
}

// A coordinate derived from predicates must never exclude the region that
// holds a matching object.
func TestSearchNeverExcludesMatchingRegion(t *testing.T) {
	h, err := NewPrefixHasher(1, 2)
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		name := []byte(fmt.Sprintf("name-%d", i))
		age := wire.Int64(int64(i % 90))
		point := h.Hash([][]byte{[]byte("k"), name, age.Canonical()})

		c := h.Search([]wire.Predicate{{Attr: 1, Op: wire.Equals, Value: wire.String(string(name))}})
		for prefix := uint8(0); prefix <= 8; prefix++ {
			region := point & PrefixMask(prefix)
			require.True(t, c.Intersects(prefix, region))
		}
	}
}

func TestIntersects(t *testing.T) {
	c := Coordinate{Mask: 1 << 63, Point: 1 << 63}
	require.True(t, c.Intersects(1, 1<<63))
	require.False(t, c.Intersects(1, 0))
	require.True(t, c.Intersects(0, 0))
	// second bit unknown
	require.True(t, c.Intersects(2, 1<<63))
	require.True(t, c.Intersects(2, 3<<62))
	require.False(t, c.Intersects(2, 1<<62))
}

func TestSearchIgnoresInvalidOperand(t *testing.T) {
	h, err := NewPrefixHasher(1)
	require.NoError(t, err)

	mixed := wire.Value{Type: wire.TypeList, Elems: []wire.Value{wire.Int64(1), wire.String("x")}}
	c := h.Search([]wire.Predicate{{Attr: 1, Op: wire.Equals, Value: mixed}})
	require.Equal(t, Unknown(), c)
}
