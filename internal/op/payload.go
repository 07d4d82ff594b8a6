package op

import (
	"encoding/json"
	"fmt"
)

// Payload is the sealed interface over kind-specific operation data.
// Only the six payload variants below implement it.
type Payload interface {
	payload() // Sealed
}

// CreatePayload carries the initial state of a new node.
type CreatePayload struct {
	NodeType string   `json:"node_type"`
	Position Position `json:"position"`
	Size     Size     `json:"size"`
	Fields   Fields   `json:"fields,omitempty"`
}

func (CreatePayload) payload() {}

// UpdatePayload carries new values for a node's fields.
type UpdatePayload struct {
	Fields Fields `json:"fields"`
}

func (UpdatePayload) payload() {}

// MovePayload carries a node's new canvas position.
type MovePayload struct {
	Position Position `json:"position"`
}

func (MovePayload) payload() {}

// DeletePayload removes a node (and implicitly its incident edges).
// It carries no data; deletion is identified by the operation target.
type DeletePayload struct{}

func (DeletePayload) payload() {}

// ConnectPayload creates an edge between two nodes.
// The operation's TargetID is the edge id.
type ConnectPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (ConnectPayload) payload() {}

// DisconnectPayload removes an edge. Endpoints are carried so the detector
// can recognize endpoint overlap even when edge ids differ.
type DisconnectPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (DisconnectPayload) payload() {}

// Validate checks that an operation carries the payload variant its kind
// requires, with all per-kind mandatory fields present. Malformed operations
// are rejected at ingestion, before entering the pipeline.
func (o Operation) Validate() error {
	if !ValidKinds[o.Kind] {
		return fmt.Errorf("unknown operation kind %q", o.Kind)
	}
	if o.TargetID == "" {
		return fmt.Errorf("%s operation: target id is required", o.Kind)
	}
	if o.OriginSession == "" {
		return fmt.Errorf("%s operation %s: origin session is required", o.Kind, o.TargetID)
	}
	if len(o.Clock) == 0 {
		return fmt.Errorf("%s operation %s: clock is required", o.Kind, o.TargetID)
	}

	switch o.Kind {
	case KindCreate:
		p, ok := o.Payload.(CreatePayload)
		if !ok {
			return payloadMismatch(o.Kind, o.Payload)
		}
		if p.NodeType == "" {
			return fmt.Errorf("create %s: node type is required", o.TargetID)
		}

	case KindUpdate:
		p, ok := o.Payload.(UpdatePayload)
		if !ok {
			return payloadMismatch(o.Kind, o.Payload)
		}
		if len(p.Fields) == 0 {
			return fmt.Errorf("update %s: at least one field is required", o.TargetID)
		}

	case KindMove:
		if _, ok := o.Payload.(MovePayload); !ok {
			return payloadMismatch(o.Kind, o.Payload)
		}

	case KindDelete:
		if _, ok := o.Payload.(DeletePayload); !ok {
			return payloadMismatch(o.Kind, o.Payload)
		}

	case KindConnect:
		p, ok := o.Payload.(ConnectPayload)
		if !ok {
			return payloadMismatch(o.Kind, o.Payload)
		}
		if p.From == "" || p.To == "" {
			return fmt.Errorf("connect %s: both endpoints are required", o.TargetID)
		}
		if p.From == p.To {
			return fmt.Errorf("connect %s: self-loop endpoints %q", o.TargetID, p.From)
		}
		if len(o.DependsOn) < 2 {
			return fmt.Errorf("connect %s: must depend on both endpoint nodes", o.TargetID)
		}

	case KindDisconnect:
		p, ok := o.Payload.(DisconnectPayload)
		if !ok {
			return payloadMismatch(o.Kind, o.Payload)
		}
		if p.From == "" || p.To == "" {
			return fmt.Errorf("disconnect %s: both endpoints are required", o.TargetID)
		}
	}

	return nil
}

func payloadMismatch(kind Kind, p Payload) error {
	return fmt.Errorf("%s operation carries %T payload", kind, p)
}

// marshalPayload serializes a payload variant, checking it matches the kind.
func marshalPayload(kind Kind, p Payload) (json.RawMessage, error) {
	if p == nil {
		return nil, fmt.Errorf("missing payload for kind %q", kind)
	}
	switch kind {
	case KindCreate, KindUpdate, KindMove, KindDelete, KindConnect, KindDisconnect:
		return json.Marshal(p)
	default:
		return nil, fmt.Errorf("unknown operation kind %q", kind)
	}
}

// unmarshalPayload decodes the payload variant selected by kind.
func unmarshalPayload(kind Kind, data json.RawMessage) (Payload, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("missing payload for kind %q", kind)
	}

	switch kind {
	case KindCreate:
		var p CreatePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindUpdate:
		var p UpdatePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindMove:
		var p MovePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindDelete:
		var p DeletePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindConnect:
		var p ConnectPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindDisconnect:
		var p DisconnectPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown operation kind %q", kind)
	}
}

// payloadCanonical converts a payload to the Object form consumed by
// MarshalCanonical for identity hashing.
func payloadCanonical(kind Kind, p Payload) (Object, error) {
	switch v := p.(type) {
	case CreatePayload:
		obj := Object{
			"node_type": String(v.NodeType),
			"position":  positionObject(v.Position),
			"size": Object{
				"width":  Int(v.Size.Width),
				"height": Int(v.Size.Height),
			},
		}
		if len(v.Fields) > 0 {
			obj["fields"] = v.Fields
		}
		return obj, nil
	case UpdatePayload:
		return Object{"fields": v.Fields}, nil
	case MovePayload:
		return Object{"position": positionObject(v.Position)}, nil
	case DeletePayload:
		return Object{}, nil
	case ConnectPayload:
		return Object{"from": String(v.From), "to": String(v.To)}, nil
	case DisconnectPayload:
		return Object{"from": String(v.From), "to": String(v.To)}, nil
	default:
		return nil, fmt.Errorf("unknown payload type %T for kind %q", p, kind)
	}
}

func positionObject(p Position) Object {
	return Object{"x": Int(p.X), "y": Int(p.Y)}
}
