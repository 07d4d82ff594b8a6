package room

import (
	"sync"

	"github.com/klikkflow/collab/internal/lock"
	"github.com/klikkflow/collab/internal/op"
)

// CommandType distinguishes between command kinds.
type CommandType int

const (
	// CommandTypeSubmit carries an operation to finalize.
	CommandTypeSubmit CommandType = iota + 1
	// CommandTypeAcquireLock requests an advisory field lease.
	CommandTypeAcquireLock
	// CommandTypeReleaseLock drops an advisory field lease.
	CommandTypeReleaseLock
	// CommandTypeJoin registers a session with the room.
	CommandTypeJoin
	// CommandTypeLeave removes a session and its leases.
	CommandTypeLeave
)

// Command wraps everything a session can ask the room to do.
type Command struct {
	Type    CommandType
	Session string
	Op      *op.Operation
	LockKey lock.Key
}

// commandQueue is a thread-safe FIFO queue for commands.
//
// The queue is unbounded; per-session quotas bound what any one session can
// put in flight, not the queue itself.
//
// Thread-safety is provided for external enqueuing (transport handlers)
// while the Room's Run loop dequeues.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type commandQueue struct {
	mu       sync.Mutex
	commands []Command
	closed   bool
	signal   chan struct{} // buffered, size 1; coalesces wakeups
}

func newCommandQueue() *commandQueue {
	return &commandQueue{
		commands: make([]Command, 0, 64),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a command to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *commandQueue) Enqueue(c Command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.commands = append(q.commands, c)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Command{}, false) if the queue is empty.
func (q *commandQueue) TryDequeue() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.commands) == 0 {
		return Command{}, false
	}

	c := q.commands[0]

	// Nil out the slot so the array does not retain the operation pointer.
	q.commands[0] = Command{}
	if len(q.commands) == 1 {
		q.commands = q.commands[:0]
	} else {
		q.commands = q.commands[1:]
	}
	return c, true
}

// Wait returns a channel that signals when commands may be available.
// The channel closes when the queue closes.
func (q *commandQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// Close signals that no more commands will be enqueued.
// Wakes any blocked waiters.
func (q *commandQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
