package cluster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"

	"hyperkv/pkg/clusterdesc"
	"hyperkv/pkg/configstore"
	"hyperkv/pkg/metrics"
	"hyperkv/pkg/topology"
)

const defaultRetryDelay = 2 * time.Second

// zkConn is the part of *zk.Conn the watcher needs.
type zkConn interface {
	GetW(path string) ([]byte, *zk.Stat, <-chan zk.Event, error)
	State() zk.State
	Close()
}

// HistoryStore persists accepted configurations.
type HistoryStore interface {
	Save(version uint64, text []byte) error
	Latest() (uint64, []byte, error)
	Prune(keep uint64) error
}

// ConfigWatcher follows the cluster description znode and installs every
// valid version into Holder. It is the only writer of Holder.
type ConfigWatcher struct {
	Path   string
	Holder *topology.Holder
	// optional; accepted versions are saved and pruned to Keep
	Store   HistoryStore
	Keep    uint64
	Metrics metrics.Collector

	RetryDelay time.Duration

	conn zkConn
	mu   sync.Mutex
}

// servers: ["zk1:2181", "zk2:2181"]
func NewConfigWatcher(servers []string, sessionTimeout time.Duration, path string, holder *topology.Holder) (*ConfigWatcher, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("zk connect: %w", err)
	}
	return &ConfigWatcher{
		Path:   path,
		Holder: holder,
		conn:   conn,
	}, nil
}

func (w *ConfigWatcher) Close() error {
	w.conn.Close()
	return nil
}

func (w *ConfigWatcher) collector() metrics.Collector {
	if w.Metrics == nil {
		return metrics.Nop{}
	}
	return w.Metrics
}

// Apply decodes, validates and publishes one configuration. On any failure
// the current snapshot stays in place. Re-applying the current version is a
// no-op.
func (w *ConfigWatcher) Apply(data []byte) (*topology.Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	m := w.collector()

	cfg, err := clusterdesc.Parse(data)
	if err != nil {
		m.ConfigRejected(metrics.ReasonParse)
		return nil, err
	}
	if cur := w.Holder.Current(); cur != nil && cur.Version() == cfg.Version && bytes.Equal(cur.ConfigText(), data) {
		return cur, nil
	}

	s, err := topology.Build(cfg)
	if err != nil {
		m.ConfigRejected(metrics.ReasonValidate)
		return nil, fmt.Errorf("version %d: %w", cfg.Version, err)
	}
	if err := w.Holder.Publish(s); err != nil {
		m.ConfigRejected(metrics.ReasonStale)
		return nil, err
	}
	m.SnapshotPublished(s.Version(), time.Since(start))
	slog.Info("topology published", "version", s.Version(), "hosts", len(s.Hosts()), "spaces", len(s.SpaceNames()))

	if w.Store != nil {
		if err := w.persist(s.Version(), data); err != nil {
			// already live; only restart recovery loses this version
			m.ConfigRejected(metrics.ReasonPersist)
			slog.Warn("failed to persist topology", "version", s.Version(), "error", err)
		}
	}
	return s, nil
}

func (w *ConfigWatcher) persist(version uint64, data []byte) error {
	if err := w.Store.Save(version, data); err != nil {
		return err
	}
	return w.Store.Prune(w.Keep)
}

// Restore publishes the last configuration saved in Store, if any.
func (w *ConfigWatcher) Restore() error {
	if w.Store == nil {
		return nil
	}
	v, text, err := w.Store.Latest()
	if errors.Is(err, configstore.ErrEmpty) {
		slog.Info("no saved topology to restore")
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore topology: %w", err)
	}
	if _, err := w.Apply(text); err != nil {
		return fmt.Errorf("restore topology %d: %w", v, err)
	}
	return nil
}

// Run watches Path until ctx is cancelled.
func (w *ConfigWatcher) Run(ctx context.Context, connectTimeout time.Duration) error {
	if err := w.waitConnected(ctx, connectTimeout); err != nil {
		return err
	}
	retry := w.RetryDelay
	if retry <= 0 {
		retry = defaultRetryDelay
	}

	for {
		data, _, ch, err := w.conn.GetW(w.Path)
		if err != nil {
			slog.Warn("zk get failed", "path", w.Path, "error", err)
			select {
			case <-time.After(retry):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		if _, err := w.Apply(data); err != nil {
			slog.Error("configuration rejected", "path", w.Path, "error", err)
		}

		select {
		case ev := <-ch:
			slog.Debug("zk event", "type", ev.Type.String(), "path", ev.Path)
		case <-ctx.Done():
			slog.Info("config watch stopped")
			return nil
		}
	}
}

func (w *ConfigWatcher) waitConnected(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st := w.conn.State()
		if st == zk.StateConnected || st == zk.StateHasSession {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("zk: not connected after %s, state=%v", timeout, st)
		}
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
