package conflict

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/klikkflow/collab/internal/op"
)

// History defaults. Windows only need to span the time two near-concurrent
// edits can be in flight, not the life of the room.
const (
	DefaultMaxEntities     = 4096
	DefaultWindowPerEntity = 64
	DefaultWindowAge       = 2 * time.Minute
)

// History is the bounded per-entity window of recently finalized operations,
// owned by the Detector. Append-only; entries leave by count, age, or
// entity LRU eviction, never by in-place mutation.
type History struct {
	entities  *lru.Cache[string, *entityWindow]
	perEntity int
	maxAge    time.Duration
	now       func() time.Time
}

type entityWindow struct {
	entries []historyEntry
}

type historyEntry struct {
	operation   op.Operation
	finalizedAt time.Time
}

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithWindowSize bounds how many finalized operations are retained per
// entity.
func WithWindowSize(n int) HistoryOption {
	return func(h *History) { h.perEntity = n }
}

// WithWindowAge bounds how old a retained operation may be.
func WithWindowAge(d time.Duration) HistoryOption {
	return func(h *History) { h.maxAge = d }
}

// WithNow overrides the time source. Tests use a deterministic clock.
func WithNow(now func() time.Time) HistoryOption {
	return func(h *History) { h.now = now }
}

// NewHistory creates a history bounded to maxEntities entity windows.
func NewHistory(maxEntities int, opts ...HistoryOption) (*History, error) {
	if maxEntities <= 0 {
		maxEntities = DefaultMaxEntities
	}
	cache, err := lru.New[string, *entityWindow](maxEntities)
	if err != nil {
		return nil, err
	}

	h := &History{
		entities:  cache,
		perEntity: DefaultWindowPerEntity,
		maxAge:    DefaultWindowAge,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Record appends a finalized operation to its entity's window.
// Edge operations are also recorded under both endpoint nodes so a delete of
// an endpoint can see racing connects.
func (h *History) Record(o op.Operation) {
	h.recordUnder(o.TargetID, o)
	for _, endpoint := range endpointsOf(o) {
		h.recordUnder(endpoint, o)
	}
}

func (h *History) recordUnder(entityID string, o op.Operation) {
	w, ok := h.entities.Get(entityID)
	if !ok {
		w = &entityWindow{}
		h.entities.Add(entityID, w)
	}

	w.entries = append(w.entries, historyEntry{operation: o, finalizedAt: h.now()})
	h.prune(w)
}

// ForEntity returns the retained operations for an entity, oldest first.
// Expired entries are pruned on read so the age bound holds even for idle
// entities.
func (h *History) ForEntity(entityID string) []op.Operation {
	w, ok := h.entities.Get(entityID)
	if !ok {
		return nil
	}
	h.prune(w)

	out := make([]op.Operation, len(w.entries))
	for i, e := range w.entries {
		out[i] = e.operation
	}
	return out
}

// Forget drops the window for an entity. Called when the entity is deleted;
// deletion dominance makes further detection against it meaningless.
func (h *History) Forget(entityID string) {
	h.entities.Remove(entityID)
}

// Len returns the number of tracked entity windows.
func (h *History) Len() int {
	return h.entities.Len()
}

func (h *History) prune(w *entityWindow) {
	cutoff := h.now().Add(-h.maxAge)
	start := 0
	for start < len(w.entries) && w.entries[start].finalizedAt.Before(cutoff) {
		start++
	}
	if over := len(w.entries) - start - h.perEntity; over > 0 {
		start += over
	}
	if start > 0 {
		w.entries = append([]historyEntry(nil), w.entries[start:]...)
	}
}

// endpointsOf returns the node ids an edge operation touches besides its
// own target.
func endpointsOf(o op.Operation) []string {
	switch p := o.Payload.(type) {
	case op.ConnectPayload:
		return []string{p.From, p.To}
	case op.DisconnectPayload:
		return []string{p.From, p.To}
	default:
		return nil
	}
}
