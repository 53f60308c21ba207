package topology

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zhangyunhao116/skipmap"
)

type history = skipmap.FuncMap[uint64, *Snapshot]

// Holder publishes the current snapshot to any number of readers. Readers
// never lock; publishers are serialized.
type Holder struct {
	current atomic.Pointer[Snapshot]
	// recently published snapshots by version
	history *history
	retain  int

	mu sync.Mutex
}

// NewHolder keeps the last retain published snapshots reachable through At.
// retain below 1 keeps only the current one.
func NewHolder(retain int) *Holder {
	return &Holder{
		history: skipmap.NewFunc[uint64, *Snapshot](func(a, b uint64) bool {
			return a < b
		}),
		retain: max(retain, 1),
	}
}

// Current returns the latest published snapshot, or nil before the first
// Publish.
func (h *Holder) Current() *Snapshot {
	return h.current.Load()
}

// Publish installs s as current. The version acts as a fencing token and
// must be strictly newer than the current one.
func (h *Holder) Publish(s *Snapshot) error {
	if s == nil {
		return ErrNilSnapshot
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur := h.current.Load(); cur != nil && s.Version() <= cur.Version() {
		return fmt.Errorf("%w: have %d, got %d", ErrStaleVersion, cur.Version(), s.Version())
	}
	h.current.Store(s)
	h.history.Store(s.Version(), s)

	for h.history.Len() > h.retain {
		oldest := uint64(0)
		h.history.Range(func(v uint64, _ *Snapshot) bool {
			oldest = v
			return false
		})
		h.history.Delete(oldest)
	}
	return nil
}

// At returns a retained snapshot by version.
func (h *Holder) At(version uint64) (*Snapshot, bool) {
	return h.history.Load(version)
}

// Versions lists the retained versions, oldest first.
func (h *Holder) Versions() []uint64 {
	out := make([]uint64, 0, h.history.Len())
	h.history.Range(func(v uint64, _ *Snapshot) bool {
		out = append(out, v)
		return true
	})
	return out
}
