package op

import (
	"encoding/json"
	"fmt"

	"github.com/klikkflow/collab/internal/causality"
)

// Kind identifies the type of graph edit an operation performs.
type Kind string

const (
	KindCreate     Kind = "create"
	KindUpdate     Kind = "update"
	KindMove       Kind = "move"
	KindDelete     Kind = "delete"
	KindConnect    Kind = "connect"
	KindDisconnect Kind = "disconnect"
)

// ValidKinds defines the closed set of operation kinds.
var ValidKinds = map[Kind]bool{
	KindCreate:     true,
	KindUpdate:     true,
	KindMove:       true,
	KindDelete:     true,
	KindConnect:    true,
	KindDisconnect: true,
}

// Position is a node's canvas position in integer units.
type Position struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
}

// Size is a node's rendered bounding-box size in integer units.
type Size struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// Operation is an atomic, immutable description of one graph edit.
//
// INVARIANT: an Operation is never mutated after emission. Conflict
// resolution produces a NEW derived Operation (see Derive); the reconciler
// and journal only ever read.
type Operation struct {
	// ID is the content-addressed identity (see OperationID).
	ID string `json:"id"`

	// Kind selects the payload variant.
	Kind Kind `json:"kind"`

	// TargetID identifies the node or edge affected.
	TargetID string `json:"target_id"`

	// Payload carries the kind-specific data. Exactly one variant is set,
	// matching Kind.
	Payload Payload `json:"payload"`

	// OriginSession identifies the authoring participant session.
	OriginSession string `json:"origin_session"`

	// Clock is the origin session's vector clock at emission time.
	Clock causality.VectorClock `json:"clock"`

	// DependsOn lists target ids this operation causally requires to exist
	// (a connect depends on both endpoint nodes).
	DependsOn []string `json:"depends_on,omitempty"`

	// DerivedFrom lists the ids of the operations a resolver-derived
	// operation reconciles. Empty for participant-authored operations.
	DerivedFrom []string `json:"derived_from,omitempty"`
}

// Derive builds a resolved operation from this one with a replacement
// payload and the merged clock of all reconciled inputs. The result is a new
// value; the receiver is untouched.
func (o Operation) Derive(payload Payload, merged causality.VectorClock, from ...string) (Operation, error) {
	d := Operation{
		Kind:          o.Kind,
		TargetID:      o.TargetID,
		Payload:       payload,
		OriginSession: o.OriginSession,
		Clock:         merged.Copy(),
		DependsOn:     append([]string(nil), o.DependsOn...),
		DerivedFrom:   append([]string(nil), from...),
	}
	id, err := OperationID(d)
	if err != nil {
		return Operation{}, fmt.Errorf("derive operation: %w", err)
	}
	d.ID = id
	return d, nil
}

// MarshalJSON emits the payload under a single kind-named key so the wire
// form is a closed tagged union.
func (o Operation) MarshalJSON() ([]byte, error) {
	payloadJSON, err := marshalPayload(o.Kind, o.Payload)
	if err != nil {
		return nil, fmt.Errorf("operation %s: %w", o.ID, err)
	}

	type wireOp struct {
		ID            string                `json:"id"`
		Kind          Kind                  `json:"kind"`
		TargetID      string                `json:"target_id"`
		Payload       json.RawMessage       `json:"payload"`
		OriginSession string                `json:"origin_session"`
		Clock         causality.VectorClock `json:"clock"`
		DependsOn     []string              `json:"depends_on,omitempty"`
		DerivedFrom   []string              `json:"derived_from,omitempty"`
	}
	return json.Marshal(wireOp{
		ID:            o.ID,
		Kind:          o.Kind,
		TargetID:      o.TargetID,
		Payload:       payloadJSON,
		OriginSession: o.OriginSession,
		Clock:         o.Clock,
		DependsOn:     o.DependsOn,
		DerivedFrom:   o.DerivedFrom,
	})
}

// UnmarshalJSON decodes the tagged payload union according to Kind.
func (o *Operation) UnmarshalJSON(data []byte) error {
	type wireOp struct {
		ID            string                `json:"id"`
		Kind          Kind                  `json:"kind"`
		TargetID      string                `json:"target_id"`
		Payload       json.RawMessage       `json:"payload"`
		OriginSession string                `json:"origin_session"`
		Clock         causality.VectorClock `json:"clock"`
		DependsOn     []string              `json:"depends_on"`
		DerivedFrom   []string              `json:"derived_from"`
	}
	var w wireOp
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	payload, err := unmarshalPayload(w.Kind, w.Payload)
	if err != nil {
		return fmt.Errorf("operation %s: %w", w.ID, err)
	}

	o.ID = w.ID
	o.Kind = w.Kind
	o.TargetID = w.TargetID
	o.Payload = payload
	o.OriginSession = w.OriginSession
	o.Clock = w.Clock
	o.DependsOn = w.DependsOn
	o.DerivedFrom = w.DerivedFrom
	return nil
}
