package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validScenario = `
name: sample
description: "a valid scenario"
setup:
  - session: alice
    op: create
    target: n1
    node_type: task
race:
  - session: alice
    op: update
    target: n1
    fields: { label: "a" }
  - session: bob
    op: update
    target: n1
    fields: { label: "b" }
deliveries:
  - [0, 1]
  - [1, 0]
`

func TestParseScenario_Valid(t *testing.T) {
	s, err := ParseScenario([]byte(validScenario))
	require.NoError(t, err)

	assert.Equal(t, "sample", s.Name)
	assert.Len(t, s.Setup, 1)
	assert.Len(t, s.Race, 2)
	assert.Len(t, s.Deliveries, 2)
}

func TestParseScenario_RejectsUnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: "unknown key"
race:
  - session: alice
    op: delete
    target: n1
    prioritty: high
deliveries: [[0], [0]]
`))
	assert.Error(t, err)
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: `
description: "no name"
race: [{ session: alice, op: delete, target: n1 }]
deliveries: [[0], [0]]
`,
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: `
name: bare
race: [{ session: alice, op: delete, target: n1 }]
deliveries: [[0], [0]]
`,
			want: "description is required",
		},
		{
			name: "empty race",
			yaml: `
name: empty
description: "no race"
deliveries: [[0], [0]]
`,
			want: "race list is required",
		},
		{
			name: "single delivery",
			yaml: `
name: one
description: "one order proves nothing"
race: [{ session: alice, op: delete, target: n1 }]
deliveries: [[0]]
`,
			want: "at least two delivery orders",
		},
		{
			name: "index out of range",
			yaml: `
name: oob
description: "bad index"
race: [{ session: alice, op: delete, target: n1 }]
deliveries: [[0], [1]]
`,
			want: "out of range",
		},
		{
			name: "incomplete delivery",
			yaml: `
name: partial
description: "skips an operation"
race:
  - { session: alice, op: delete, target: n1 }
  - { session: bob, op: delete, target: n2 }
deliveries: [[0, 1], [0]]
`,
			want: "must deliver every race operation",
		},
		{
			name: "unknown op",
			yaml: `
name: badop
description: "no such kind"
race: [{ session: alice, op: teleport, target: n1 }]
deliveries: [[0], [0]]
`,
			want: "unknown op",
		},
		{
			name: "create without node_type",
			yaml: `
name: badcreate
description: "create needs a type"
race: [{ session: alice, op: create, target: n1 }]
deliveries: [[0], [0]]
`,
			want: "node_type",
		},
		{
			name: "update without fields",
			yaml: `
name: badupdate
description: "update needs fields"
race: [{ session: alice, op: update, target: n1 }]
deliveries: [[0], [0]]
`,
			want: "update requires fields",
		},
		{
			name: "move without position",
			yaml: `
name: badmove
description: "move needs a position"
race: [{ session: alice, op: move, target: n1 }]
deliveries: [[0], [0]]
`,
			want: "move requires position",
		},
		{
			name: "connect without endpoints",
			yaml: `
name: badconnect
description: "connect needs endpoints"
race: [{ session: alice, op: connect, target: e1, from: n1 }]
deliveries: [[0], [0]]
`,
			want: "from and to",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
