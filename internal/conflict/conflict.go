// Package conflict detects and resolves concurrent edits to the same graph
// entity.
//
// Detection compares an incoming operation against a bounded window of
// recently finalized operations for the same entity; a pair conflicts when
// the causality package classifies their clocks as concurrent AND their
// payloads overlap (same field, same edge endpoints, or same entity for a
// deletion).
//
// Resolution is a set of deterministic, pure, total functions - one per
// conflict type. Given the same conflicting operations, every replica
// computes the same resolved operation with no further coordination. The
// tie-break total order is derived from session identifiers, never from
// wall-clock time or arrival order.
package conflict

import (
	"github.com/klikkflow/collab/internal/op"
)

// Type classifies a conflict by the state it contends on.
type Type string

const (
	// TypePosition is two concurrent moves of the same node.
	TypePosition Type = "position"
	// TypeProperty is two concurrent writes to the same node field.
	TypeProperty Type = "property"
	// TypeTopology is a concurrent connect/disconnect on the same endpoints.
	TypeTopology Type = "topology"
	// TypeDeletion is a delete racing any other operation on the entity.
	// Deletion dominates the type hierarchy: no other resolution is
	// meaningful once the entity is gone.
	TypeDeletion Type = "deletion"
)

// Severity gates automatic resolution. All four built-in conflict types
// resolve automatically; the manual path exists for extension.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	// SeverityManual is above the automatic-resolution threshold. None of
	// the built-in strategies emit it.
	SeverityManual
)

// AutoResolveThreshold is the highest severity the resolver handles without
// surfacing ManualResolutionRequired to the consuming layer.
const AutoResolveThreshold = SeverityHigh

// String returns the severity name for logs.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Conflict is a detected pair of concurrent operations with overlapping
// effect. Incoming is the operation being finalized; Prior is the already
// finalized operation it races.
type Conflict struct {
	// Type classifies the contention.
	Type Type `json:"type"`

	// Severity decides whether automatic resolution is permitted.
	Severity Severity `json:"severity"`

	// Incoming is the operation currently moving through the pipeline.
	Incoming op.Operation `json:"incoming"`

	// Prior is the finalized operation Incoming races.
	Prior op.Operation `json:"prior"`

	// Fields lists the contested field names for property conflicts.
	Fields []string `json:"fields,omitempty"`
}

// severityFor assigns the built-in severity per conflict type.
// Deletion is the most disruptive outcome a participant can observe, so it
// carries the highest automatically-resolvable severity.
func severityFor(t Type) Severity {
	switch t {
	case TypeDeletion:
		return SeverityHigh
	case TypeTopology:
		return SeverityMedium
	case TypePosition:
		return SeverityLow
	case TypeProperty:
		return SeverityMedium
	default:
		return SeverityManual
	}
}
