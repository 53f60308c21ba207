package cluster

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/go-zookeeper/zk"
	"github.com/stretchr/testify/require"

	"hyperkv/pkg/clusterdesc"
	"hyperkv/pkg/configstore"
	"hyperkv/pkg/metrics"
	"hyperkv/pkg/topology"
)

// fakeConn имитирует соединение с ZooKeeper: один znode и его watch
type fakeConn struct {
	mu    sync.Mutex
	data  []byte
	err   error
	state zk.State
	watch chan zk.Event
	gets  int
}

func (f *fakeConn) GetW(string) ([]byte, *zk.Stat, <-chan zk.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return nil, nil, nil, f.err
	}
	f.watch = make(chan zk.Event, 1)
	return f.data, &zk.Stat{}, f.watch, nil
}

func (f *fakeConn) State() zk.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConn) Close() {}

func (f *fakeConn) set(data []byte) {
	f.mu.Lock()
	f.data = data
	ch := f.watch
	f.mu.Unlock()
	ch <- zk.Event{Type: zk.EventNodeDataChanged, Path: "/hyperkv/config"}
}

type fakeCollector struct {
	mu        sync.Mutex
	published []uint64
	rejected  map[string]int
	routes    map[string]int
}

func (c *fakeCollector) SnapshotPublished(v uint64, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, v)
}

func (c *fakeCollector) ConfigRejected(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejected == nil {
		c.rejected = map[string]int{}
	}
	c.rejected[reason]++
}

func (c *fakeCollector) RouteLookup(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.routes == nil {
		c.routes = map[string]int{}
	}
	c.routes[result]++
}

var _ metrics.Collector = (*fakeCollector)(nil)

func openStore(t *testing.T, fs vfs.FS) *configstore.Store {
	t.Helper()
	s, err := configstore.Open("history", fs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newWatcher(t *testing.T, conn zkConn) (*ConfigWatcher, *fakeCollector) {
	t.Helper()
	fc := &fakeCollector{}
	return &ConfigWatcher{
		Path:       "/hyperkv/config",
		Holder:     topology.NewHolder(4),
		Store:      openStore(t, vfs.NewMem()),
		Keep:       2,
		Metrics:    fc,
		RetryDelay: 10 * time.Millisecond,
		conn:       conn,
	}, fc
}

func TestApplyPublishesAndPersists(t *testing.T) {
	w, fc := newWatcher(t, nil)

	for v := uint64(1); v <= 3; v++ {
		s, err := w.Apply(describe(v))
		require.NoError(t, err)
		require.Equal(t, v, s.Version())
		require.Same(t, s, w.Holder.Current())
	}
	require.Equal(t, []uint64{1, 2, 3}, fc.published)

	v, text, err := w.Store.Latest()
	require.NoError(t, err)
	require.Equal(t, uint64(3), v)
	require.Equal(t, describe(3), text)

	versions, err := w.Store.(*configstore.Store).Versions()
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 3}, versions)
}

func TestApplyKeepsLastGoodSnapshot(t *testing.T) {
	w, fc := newWatcher(t, nil)
	good, err := w.Apply(describe(4))
	require.NoError(t, err)

	_, err = w.Apply([]byte("hosts: ["))
	require.ErrorIs(t, err, clusterdesc.ErrInvalid)

	broken := append(describe(5), []byte(`transfers: [{id: 1, space: kv, subspace: 0, prefix: 1, mask: 0, to: "10.0.0.7:2012"}]`)...)
	_, err = w.Apply(broken)
	require.ErrorIs(t, err, topology.ErrUnknownInstance)

	_, err = w.Apply(describe(3))
	require.ErrorIs(t, err, topology.ErrStaleVersion)

	require.Same(t, good, w.Holder.Current())
	require.Equal(t, map[string]int{
		metrics.ReasonParse:    1,
		metrics.ReasonValidate: 1,
		metrics.ReasonStale:    1,
	}, fc.rejected)

	v, _, err := w.Store.Latest()
	require.NoError(t, err)
	require.Equal(t, uint64(4), v)
}

func TestApplySameVersionIsNoop(t *testing.T) {
	w, fc := newWatcher(t, nil)
	first, err := w.Apply(describe(2))
	require.NoError(t, err)

	again, err := w.Apply(describe(2))
	require.NoError(t, err)
	require.Same(t, first, again)
	require.Equal(t, []uint64{2}, fc.published)
	require.Empty(t, fc.rejected)
}

type failingStore struct{ HistoryStore }

func (failingStore) Save(uint64, []byte) error { return errors.New("disk full") }

func TestApplySurvivesPersistFailure(t *testing.T) {
	w, fc := newWatcher(t, nil)
	w.Store = failingStore{}

	s, err := w.Apply(describe(1))
	require.NoError(t, err)
	require.Same(t, s, w.Holder.Current())
	require.Equal(t, 1, fc.rejected[metrics.ReasonPersist])
}

func TestRestore(t *testing.T) {
	fs := vfs.NewMem()
	store := openStore(t, fs)
	require.NoError(t, store.Save(9, describe(9)))

	w := &ConfigWatcher{Holder: topology.NewHolder(1), Store: store}
	require.NoError(t, w.Restore())
	require.Equal(t, uint64(9), w.Holder.Current().Version())

	empty := &ConfigWatcher{Holder: topology.NewHolder(1), Store: openStore(t, vfs.NewMem())}
	require.NoError(t, empty.Restore())
	require.Nil(t, empty.Holder.Current())

	none := &ConfigWatcher{Holder: topology.NewHolder(1)}
	require.NoError(t, none.Restore())
}

func TestRunFollowsZnode(t *testing.T) {
	conn := &fakeConn{data: describe(1), state: zk.StateHasSession}
	w, _ := newWatcher(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, time.Second) }()

	require.Eventually(t, func() bool {
		s := w.Holder.Current()
		return s != nil && s.Version() == 1
	}, time.Second, 5*time.Millisecond)

	conn.set(describe(2))
	require.Eventually(t, func() bool {
		return w.Holder.Current().Version() == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunRetriesFailedReads(t *testing.T) {
	conn := &fakeConn{err: zk.ErrNoNode, state: zk.StateHasSession}
	w, _ := newWatcher(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, time.Second) }()

	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.gets >= 3
	}, time.Second, 5*time.Millisecond)
	require.Nil(t, w.Holder.Current())

	cancel()
	require.NoError(t, <-done)
}

func TestRunGivesUpWithoutSession(t *testing.T) {
	conn := &fakeConn{state: zk.StateDisconnected}
	w, _ := newWatcher(t, conn)

	err := w.Run(context.Background(), 50*time.Millisecond)
	require.Error(t, err)
	require.Zero(t, conn.gets)
}
