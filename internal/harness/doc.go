// Package harness provides convergence testing for the collaboration
// pipeline.
//
// A scenario describes a set of sessions, a sequential setup phase, a set of
// racing operations stamped without sight of each other, and several
// delivery orders. The harness finalizes the same operations through a fresh
// pipeline per delivery order and verifies that every order converges to the
// same graph snapshot. The first order's canonical snapshot doubles as the
// golden artifact.
//
// # Scenario Format
//
// Scenarios are defined in YAML files:
//
//	name: concurrent_label_race
//	description: "Two sessions race on the same field"
//	setup:
//	  - session: alice
//	    op: create
//	    target: n1
//	    node_type: task
//	race:
//	  - session: alice
//	    op: update
//	    target: n1
//	    fields: { label: "from alice" }
//	  - session: bob
//	    op: update
//	    target: n1
//	    fields: { label: "from bob" }
//	deliveries:
//	  - [0, 1]
//	  - [1, 0]
//
// Setup steps are observed by every session before the race, so each racing
// operation is causally after setup and concurrent with the other sessions'
// racing operations. Delivery orders may repeat an index to exercise
// redelivery; duplicates finalize as stale no-ops.
//
// # Deterministic Testing
//
// Clocks are stamped from per-session trackers, never from wall time, so a
// scenario produces identical operations (including content-addressed ids)
// on every run. Golden snapshots are compared with goldie; regenerate with:
//
//	go test ./internal/harness -update
package harness
