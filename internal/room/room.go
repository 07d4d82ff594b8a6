// Package room runs the single-writer finalization loop for one
// collaborative editing room.
//
// All graph mutations happen in the Run loop goroutine. Sessions submit
// commands through the thread-safe queue; the loop finalizes them in FIFO
// order through the pipeline (validate, detect, resolve, reconcile), appends
// to the journal, and emits outbound events. Single-threaded finalization is
// what makes the room's operation stream a total order that every replica
// can replay.
package room

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/klikkflow/collab/internal/causality"
	"github.com/klikkflow/collab/internal/conflict"
	"github.com/klikkflow/collab/internal/lock"
	"github.com/klikkflow/collab/internal/op"
	"github.com/klikkflow/collab/internal/replica"
)

// Journal persists the finalized operation stream for catch-up and replay.
// Implemented by the journal package; nil disables persistence.
type Journal interface {
	Append(ctx context.Context, o op.Operation) error
}

// ErrClosed is returned for submissions after the room stopped.
var ErrClosed = errors.New("room: closed")

// Room is one collaborative editing room.
//
// Thread-safety model:
//   - SubmitOperation, AcquireLock, ReleaseLock, Join, Leave: safe from any
//     goroutine (they enqueue commands)
//   - Run: must be called from exactly one goroutine
//   - Pipeline, Snapshot: only safe while Run is not processing
type Room struct {
	id       string
	logger   *slog.Logger
	queue    *commandQueue
	pipeline *Pipeline
	locks    *lock.Manager
	quota    *sessionQuota
	journal  Journal
	idGen    SessionIDGenerator
	events   chan Event
	now      func() time.Time

	// Owned by the Run loop.
	sessions map[string]time.Time
	clock    causality.VectorClock
}

// Option configures a Room.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	journal     Journal
	idGen       SessionIDGenerator
	locks       *lock.Manager
	maxPending  int
	maxEntities int
	historyOpts []conflict.HistoryOption
	minSpacing  int64
	eventBuffer int
	now         func() time.Time
}

// WithLogger sets the room logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithJournal enables persistence of the finalized stream.
func WithJournal(j Journal) Option {
	return func(o *options) { o.journal = j }
}

// WithSessionIDGenerator overrides session id generation. Tests use
// FixedGenerator for reproducible tie-breaks.
func WithSessionIDGenerator(g SessionIDGenerator) Option {
	return func(o *options) { o.idGen = g }
}

// WithLockManager overrides the advisory lock manager.
func WithLockManager(m *lock.Manager) Option {
	return func(o *options) { o.locks = m }
}

// WithMaxPending sets the per-session in-flight operation allowance.
func WithMaxPending(n int) Option {
	return func(o *options) { o.maxPending = n }
}

// WithHistoryBounds sets the detection window limits.
func WithHistoryBounds(maxEntities, perEntity int, age time.Duration) Option {
	return func(o *options) {
		o.maxEntities = maxEntities
		o.historyOpts = append(o.historyOpts,
			conflict.WithWindowSize(perEntity),
			conflict.WithWindowAge(age),
		)
	}
}

// WithMinSpacing sets the position-blend spacing.
func WithMinSpacing(spacing int64) Option {
	return func(o *options) { o.minSpacing = spacing }
}

// WithEventBuffer sets the outbound event channel capacity.
func WithEventBuffer(n int) Option {
	return func(o *options) { o.eventBuffer = n }
}

// WithNow overrides the time source used for event timestamps and the
// detection window. Tests use a deterministic clock.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
		o.historyOpts = append(o.historyOpts, conflict.WithNow(now))
	}
}

// New creates a room.
func New(id string, opts ...Option) (*Room, error) {
	cfg := options{
		logger:      slog.Default(),
		idGen:       UUIDv7Generator{},
		maxPending:  DefaultMaxPending,
		maxEntities: conflict.DefaultMaxEntities,
		minSpacing:  conflict.DefaultMinSpacing,
		eventBuffer: 256,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	history, err := conflict.NewHistory(cfg.maxEntities, cfg.historyOpts...)
	if err != nil {
		return nil, err
	}
	if cfg.locks == nil {
		cfg.locks = lock.NewManager(lock.WithNow(cfg.now))
	}

	return &Room{
		id:     id,
		logger: cfg.logger.With("room", id),
		queue:  newCommandQueue(),
		pipeline: NewPipeline(
			conflict.NewDetector(history),
			conflict.NewResolver(conflict.WithMinSpacing(cfg.minSpacing)),
			replica.New(),
		),
		locks:    cfg.locks,
		quota:    newSessionQuota(cfg.maxPending),
		journal:  cfg.journal,
		idGen:    cfg.idGen,
		events:   make(chan Event, cfg.eventBuffer),
		now:      cfg.now,
		sessions: make(map[string]time.Time),
		clock:    causality.NewVectorClock(),
	}, nil
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Pipeline exposes the finalization core. The replay tooling and the
// convergence harness drive it directly, without the queue.
func (r *Room) Pipeline() *Pipeline { return r.pipeline }

// Locks exposes the advisory lock manager.
func (r *Room) Locks() *lock.Manager { return r.locks }

// Clock returns a copy of the merged clock of every finalized operation.
func (r *Room) Clock() causality.VectorClock { return r.clock.Copy() }

// Events returns the outbound event stream.
// Events are dropped with a warning when the buffer is full; consumers that
// need a complete stream must keep up or read the journal.
func (r *Room) Events() <-chan Event { return r.events }

// Join registers a new session and returns its id.
// Safe from any goroutine.
func (r *Room) Join() (string, error) {
	session := r.idGen.Generate()
	if !r.queue.Enqueue(Command{Type: CommandTypeJoin, Session: session}) {
		return "", ErrClosed
	}
	return session, nil
}

// Leave removes a session, releasing its leases and quota slots.
func (r *Room) Leave(session string) error {
	if !r.queue.Enqueue(Command{Type: CommandTypeLeave, Session: session}) {
		return ErrClosed
	}
	return nil
}

// SubmitOperation queues an operation for finalization.
//
// The per-session quota is charged here, on the submitting goroutine, so a
// runaway client is pushed back before the queue grows. The slot settles
// when the Run loop finishes with the operation.
func (r *Room) SubmitOperation(o op.Operation) error {
	if err := r.quota.Admit(o.OriginSession); err != nil {
		return err
	}
	if !r.queue.Enqueue(Command{Type: CommandTypeSubmit, Session: o.OriginSession, Op: &o}) {
		r.quota.Settle(o.OriginSession)
		return ErrClosed
	}
	return nil
}

// AcquireLock queues an advisory lease request.
func (r *Room) AcquireLock(session string, key lock.Key) error {
	if !r.queue.Enqueue(Command{Type: CommandTypeAcquireLock, Session: session, LockKey: key}) {
		return ErrClosed
	}
	return nil
}

// ReleaseLock queues an advisory lease release.
func (r *Room) ReleaseLock(session string, key lock.Key) error {
	if !r.queue.Enqueue(Command{Type: CommandTypeReleaseLock, Session: session, LockKey: key}) {
		return ErrClosed
	}
	return nil
}

// Run starts the single-writer command loop.
// Blocks until the context is cancelled or Stop is called.
//
// Must be called from exactly one goroutine. All pipeline mutations, journal
// writes, and event emission happen here.
//
// On command failure the rejection is emitted and logged, and processing
// continues; retrying inside the loop would make replay non-deterministic.
func (r *Room) Run(ctx context.Context) error {
	r.logger.Info("room starting")

	for {
		cmd, ok := r.queue.TryDequeue()
		if ok {
			r.process(ctx, cmd)
			continue
		}

		select {
		case <-ctx.Done():
			r.logger.Info("room stopping", "reason", "context cancelled")
			r.queue.Close()
			return ctx.Err()

		case _, open := <-r.queue.Wait():
			// A coalesced signal token can outlive its command when the
			// TryDequeue fast path already consumed it, so an empty queue
			// alone does not mean shutdown. Only a closed signal channel
			// with a drained queue does.
			if !open && r.queue.Len() == 0 {
				r.logger.Info("room stopping", "reason", "queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the room. Run returns once the queue drains.
func (r *Room) Stop() {
	r.queue.Close()
}

// process routes one command. Run-loop goroutine only.
func (r *Room) process(ctx context.Context, cmd Command) {
	switch cmd.Type {
	case CommandTypeSubmit:
		r.processSubmit(ctx, cmd)
	case CommandTypeAcquireLock:
		r.processAcquire(cmd)
	case CommandTypeReleaseLock:
		r.processRelease(cmd)
	case CommandTypeJoin:
		r.sessions[cmd.Session] = r.now()
		r.logger.Info("session joined", "session", cmd.Session)
		r.emit(Event{Type: EventSessionJoined, Session: cmd.Session})
	case CommandTypeLeave:
		delete(r.sessions, cmd.Session)
		released := r.locks.ReleaseSession(cmd.Session)
		r.quota.Drop(cmd.Session)
		r.logger.Info("session left", "session", cmd.Session, "locks_released", released)
		r.emit(Event{Type: EventSessionLeft, Session: cmd.Session})
	default:
		r.logger.Error("unknown command type", "type", int(cmd.Type))
	}
}

func (r *Room) processSubmit(ctx context.Context, cmd Command) {
	defer r.quota.Settle(cmd.Session)

	if cmd.Op == nil {
		r.logger.Error("submit command missing operation", "session", cmd.Session)
		return
	}
	incoming := *cmd.Op

	// Leases are advisory: a write to a field another session holds is
	// finalized through detect/resolve like any other, with the holder
	// flagged on the outbound event. Not every edit path locks first.
	holder, field, leased := r.lockConflict(incoming)
	if leased {
		r.logger.Debug("write to leased field", "session", cmd.Session, "op", incoming.ID, "field", field, "holder", holder)
	}

	result, err := r.pipeline.Submit(incoming)
	if err != nil {
		var pe *PipelineError
		if !errors.As(err, &pe) {
			pe = malformedError(cmd.Session, incoming.ID, err.Error())
		}
		r.logger.Warn("operation rejected", "code", string(pe.Code), "session", cmd.Session, "op", incoming.ID, "reason", pe.Message)
		r.emit(rejectionEvent(incoming, pe))
		return
	}

	if result.Stale() {
		// Redelivery under at-least-once transport. The first delivery
		// already settled, journaled, and announced this operation.
		r.logger.Debug("stale redelivery ignored", "session", cmd.Session, "op", incoming.ID)
		return
	}

	if result.Manual {
		r.logger.Warn("manual resolution required", "session", cmd.Session, "op", incoming.ID, "conflicts", len(result.Conflicts))
		r.emit(Event{
			Type:      EventManualResolutionRequired,
			Session:   cmd.Session,
			Incoming:  &result.Incoming,
			Conflicts: result.Conflicts,
		})
		return
	}

	r.clock.Merge(result.Resolved.Clock)

	if r.journal != nil {
		if err := r.journal.Append(ctx, result.Resolved); err != nil {
			// The in-memory state is already final; a journal failure only
			// degrades catch-up.
			r.logger.Error("journal append failed", "op", result.Resolved.ID, "error", err)
		}
	}

	r.logger.Debug("operation finalized",
		"session", cmd.Session,
		"op", incoming.ID,
		"resolved", result.Resolved.ID,
		"kind", string(result.Resolved.Kind),
		"conflicts", len(result.Conflicts),
		"applied", result.Outcome.Applied,
	)
	r.emit(Event{
		Type:      EventOperationResolved,
		Session:   cmd.Session,
		Incoming:  &result.Incoming,
		Resolved:  &result.Resolved,
		Conflicts: result.Conflicts,
		Applied:   result.Outcome.Applied,
		Holder:    holder,
	})
}

func (r *Room) processAcquire(cmd Command) {
	lease, err := r.locks.Acquire(cmd.LockKey, cmd.Session)
	if err != nil {
		var held *lock.HeldError
		if errors.As(err, &held) {
			r.logger.Debug("lock denied", "session", cmd.Session, "key", cmd.LockKey.String(), "holder", held.Holder)
			r.emit(Event{Type: EventLockDenied, Session: cmd.Session, Lock: &lock.Lease{Key: cmd.LockKey}, Holder: held.Holder})
			return
		}
		r.logger.Error("lock acquire failed", "session", cmd.Session, "key", cmd.LockKey.String(), "error", err)
		return
	}
	r.logger.Debug("lock granted", "session", cmd.Session, "key", cmd.LockKey.String())
	r.emit(Event{Type: EventLockGranted, Session: cmd.Session, Lock: &lease})
}

func (r *Room) processRelease(cmd Command) {
	if err := r.locks.Release(cmd.LockKey, cmd.Session); err != nil {
		r.logger.Warn("lock release ignored", "session", cmd.Session, "key", cmd.LockKey.String(), "error", err)
		return
	}
	r.emit(Event{Type: EventLockReleased, Session: cmd.Session, Lock: &lock.Lease{Key: cmd.LockKey, Session: cmd.Session}})
}

// lockConflict reports an advisory lease held by another session on a field
// the operation writes.
func (r *Room) lockConflict(o op.Operation) (holder, field string, ok bool) {
	var fields op.Fields
	switch p := o.Payload.(type) {
	case op.UpdatePayload:
		fields = p.Fields
	case op.CreatePayload:
		fields = p.Fields
	default:
		return "", "", false
	}

	for _, name := range fields.SortedKeys() {
		h, held := r.locks.Holder(lock.Key{EntityID: o.TargetID, Field: name})
		if held && h != o.OriginSession {
			return h, name, true
		}
	}
	return "", "", false
}

func rejectionEvent(incoming op.Operation, pe *PipelineError) Event {
	return Event{
		Type:     EventOperationRejected,
		Session:  incoming.OriginSession,
		Incoming: &incoming,
		Code:     pe.Code,
		Message:  pe.Message,
	}
}

// emit sends an event without blocking the loop. A full buffer drops the
// event; the journal remains the complete record.
func (r *Room) emit(e Event) {
	e.At = r.now()
	select {
	case r.events <- e:
	default:
		r.logger.Warn("event buffer full, dropping", "type", string(e.Type))
	}
}
