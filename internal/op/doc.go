// Package op defines the operation model for collaborative graph editing.
//
// An Operation is an atomic, immutable description of one edit to the shared
// workflow graph. Every operation carries a closed, kind-tagged payload - a
// create cannot smuggle connect fields and vice versa - so the conflict
// resolver's type-specific strategies are exhaustively checkable.
//
// Field values use a sealed Value interface constrained to strings, integers,
// booleans, arrays, and objects. Floats are forbidden: canvas coordinates are
// integer units, and float serialization differences would break the
// byte-for-byte convergence guarantee across replicas.
//
// Content-addressed operation IDs are computed via RFC 8785 canonical JSON
// and SHA-256 with domain separation (see hash.go). The ID of an operation is
// stable across replicas and replays given the same inputs.
package op
