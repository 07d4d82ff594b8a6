package causality

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVectorClock_Compare(t *testing.T) {
	tests := []struct {
		name string
		a, b VectorClock
		want Ordering
	}{
		{
			name: "empty clocks are equal",
			a:    VectorClock{},
			b:    VectorClock{},
			want: Equal,
		},
		{
			name: "identical clocks are equal",
			a:    VectorClock{"s1": 2, "s2": 1},
			b:    VectorClock{"s1": 2, "s2": 1},
			want: Equal,
		},
		{
			name: "strictly dominated is before",
			a:    VectorClock{"s1": 1},
			b:    VectorClock{"s1": 2},
			want: Before,
		},
		{
			name: "strictly dominating is after",
			a:    VectorClock{"s1": 2, "s2": 1},
			b:    VectorClock{"s1": 1, "s2": 1},
			want: After,
		},
		{
			name: "divergent slots are concurrent",
			a:    VectorClock{"s1": 2, "s2": 1},
			b:    VectorClock{"s1": 1, "s2": 2},
			want: Concurrent,
		},
		{
			name: "missing slot reads as zero",
			a:    VectorClock{"s1": 1},
			b:    VectorClock{"s1": 1, "s2": 1},
			want: Before,
		},
		{
			name: "disjoint sessions are concurrent",
			a:    VectorClock{"s1": 1},
			b:    VectorClock{"s2": 1},
			want: Concurrent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
		})
	}
}

func TestVectorClock_CompareIsSymmetric(t *testing.T) {
	a := VectorClock{"s1": 3}
	b := VectorClock{"s1": 1, "s2": 2}

	assert.Equal(t, Concurrent, a.Compare(b))
	assert.Equal(t, Concurrent, b.Compare(a))

	c := VectorClock{"s1": 3, "s2": 2}
	assert.Equal(t, Before, a.Compare(c))
	assert.Equal(t, After, c.Compare(a))
}

func TestVectorClock_TickAndGet(t *testing.T) {
	vc := NewVectorClock()

	assert.Equal(t, int64(0), vc.Get("s1"))
	assert.Equal(t, int64(1), vc.Tick("s1"))
	assert.Equal(t, int64(2), vc.Tick("s1"))
	assert.Equal(t, int64(2), vc.Get("s1"))
	assert.Equal(t, int64(0), vc.Get("s2"))
}

func TestVectorClock_Merge(t *testing.T) {
	vc := VectorClock{"s1": 2, "s2": 1}
	vc.Merge(VectorClock{"s2": 3, "s3": 1})

	assert.Equal(t, VectorClock{"s1": 2, "s2": 3, "s3": 1}, vc)
}

func TestVectorClock_MergedLeavesInputsAlone(t *testing.T) {
	a := VectorClock{"s1": 1}
	b := VectorClock{"s2": 2}

	merged := a.Merged(b)
	assert.Equal(t, VectorClock{"s1": 1, "s2": 2}, merged)
	assert.Equal(t, VectorClock{"s1": 1}, a)
	assert.Equal(t, VectorClock{"s2": 2}, b)
}

func TestVectorClock_CopyIsIndependent(t *testing.T) {
	vc := VectorClock{"s1": 1}
	cp := vc.Copy()
	cp.Tick("s1")

	assert.Equal(t, int64(1), vc.Get("s1"))
	assert.Equal(t, int64(2), cp.Get("s1"))
}

func TestVectorClock_Sum(t *testing.T) {
	assert.Equal(t, int64(0), VectorClock{}.Sum())
	assert.Equal(t, int64(6), VectorClock{"s1": 2, "s2": 4}.Sum())
}

func TestVectorClock_Dominates(t *testing.T) {
	a := VectorClock{"s1": 2, "s2": 1}

	assert.True(t, a.Dominates(VectorClock{"s1": 1}))
	assert.True(t, a.Dominates(a.Copy()), "equal clocks dominate")
	assert.False(t, a.Dominates(VectorClock{"s1": 3}))
	assert.False(t, a.Dominates(VectorClock{"s3": 1}), "concurrent never dominates")
}

func TestOrdering_String(t *testing.T) {
	assert.Equal(t, "before", Before.String())
	assert.Equal(t, "after", After.String())
	assert.Equal(t, "equal", Equal.String())
	assert.Equal(t, "concurrent", Concurrent.String())
	assert.Equal(t, "unknown", Ordering(0).String())
}
