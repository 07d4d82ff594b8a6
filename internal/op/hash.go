package op

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainOperation = "collab/operation/v1"
	DomainSnapshot  = "collab/snapshot/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null separator prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// OperationID computes the content-addressed ID for an operation.
// The ID is stable across replicas and replays given the same inputs,
// which is what makes journal writes and reconciler application idempotent.
//
// The clock is folded in as a sorted (session, counter) list so two distinct
// emissions from the same session never collide.
func OperationID(o Operation) (string, error) {
	payloadObj, err := payloadCanonical(o.Kind, o.Payload)
	if err != nil {
		return "", fmt.Errorf("OperationID: %w", err)
	}

	clockObj := make(Object, len(o.Clock))
	for session, counter := range o.Clock {
		clockObj[session] = Int(counter)
	}

	obj := Object{
		"kind":           String(o.Kind),
		"target_id":      String(o.TargetID),
		"payload":        payloadObj,
		"origin_session": String(o.OriginSession),
		"clock":          clockObj,
	}
	if len(o.DependsOn) > 0 {
		deps := slices.Clone(o.DependsOn)
		slices.Sort(deps)
		arr := make(Array, len(deps))
		for i, d := range deps {
			arr[i] = String(d)
		}
		obj["depends_on"] = arr
	}
	if len(o.DerivedFrom) > 0 {
		from := slices.Clone(o.DerivedFrom)
		slices.Sort(from)
		arr := make(Array, len(from))
		for i, d := range from {
			arr[i] = String(d)
		}
		obj["derived_from"] = arr
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("OperationID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainOperation, canonical), nil
}

// MustOperationID is like OperationID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustOperationID(o Operation) string {
	id, err := OperationID(o)
	if err != nil {
		panic(err)
	}
	return id
}

// SnapshotHash computes the hash of a canonical replica snapshot.
// Two replicas have converged iff their snapshot hashes are equal.
func SnapshotHash(canonicalSnapshot []byte) string {
	return hashWithDomain(DomainSnapshot, canonicalSnapshot)
}
