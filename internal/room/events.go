package room

import (
	"time"

	"github.com/klikkflow/collab/internal/conflict"
	"github.com/klikkflow/collab/internal/lock"
	"github.com/klikkflow/collab/internal/op"
)

// EventType identifies an outbound room event.
type EventType string

const (
	// EventOperationResolved announces a finalized operation, with any
	// conflicts the pipeline resolved on the way.
	EventOperationResolved EventType = "operation_resolved"

	// EventOperationRejected announces a rejected submission with its
	// pipeline error code.
	EventOperationRejected EventType = "operation_rejected"

	// EventManualResolutionRequired announces a conflict above the
	// automatic-resolution threshold. Nothing was applied.
	EventManualResolutionRequired EventType = "manual_resolution_required"

	// EventLockGranted announces a granted or renewed field lease.
	EventLockGranted EventType = "lock_granted"

	// EventLockDenied announces a lease request that lost to the holder.
	EventLockDenied EventType = "lock_denied"

	// EventLockReleased announces a dropped field lease.
	EventLockReleased EventType = "lock_released"

	// EventSessionJoined announces a session entering the room.
	EventSessionJoined EventType = "session_joined"

	// EventSessionLeft announces a session leaving; its leases are gone.
	EventSessionLeft EventType = "session_left"
)

// Event is one outbound room notification. Exactly the fields relevant to
// Type are populated.
type Event struct {
	Type    EventType `json:"type"`
	Session string    `json:"session,omitempty"`

	// Incoming is the operation as submitted.
	Incoming *op.Operation `json:"incoming,omitempty"`

	// Resolved is the operation as finalized. Identical to Incoming when no
	// conflicts were detected; a derived operation otherwise.
	Resolved *op.Operation `json:"resolved,omitempty"`

	// Conflicts lists what the pipeline detected, including the losing
	// writes, so clients can surface them.
	Conflicts []conflict.Conflict `json:"conflicts,omitempty"`

	// Applied reports whether the resolved operation mutated the graph.
	Applied bool `json:"applied,omitempty"`

	// Code and Message describe a rejection.
	Code    PipelineErrorCode `json:"code,omitempty"`
	Message string            `json:"message,omitempty"`

	// Lock carries lease details for lock events.
	Lock *lock.Lease `json:"lock,omitempty"`

	// Holder names the lease holder on a lock denial, or the bypassed
	// holder when a resolved operation wrote a field another session had
	// leased.
	Holder string `json:"holder,omitempty"`

	// At is the room wall-clock timestamp of the event. Informational only;
	// never used for ordering or resolution.
	At time.Time `json:"at"`
}
