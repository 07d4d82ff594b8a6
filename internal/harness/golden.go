package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunGolden executes a scenario and compares the converged snapshot against
// a golden file at testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Convergence failures fail the test before any golden comparison: a golden
// file only pins down a snapshot that every delivery order agreed on.
func RunGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Execute(scenario)
	if err != nil {
		t.Fatalf("execute scenario %s: %v", scenario.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, result.Snapshots[0])

	return result
}
