package coloring_test

import (
	"testing"

	"github.com/mna/corejit/jit/coloring"
	"github.com/mna/corejit/jit/ir"
	"github.com/mna/corejit/jit/types"
	"github.com/stretchr/testify/require"
)

func wordTarget(numColors int) *coloring.Target {
	colors := make([]int, numColors)
	for i := range colors {
		colors[i] = i
	}
	return &coloring.Target{
		Matrix: coloring.NewCompatMatrix(),
		Colors: map[coloring.RegClass][]int{coloring.ClassWord: colors},
		Global: map[int]bool{},
	}
}

// fiveMutuallyLiveValues builds a function with five i32 values whose live
// ranges all touch the same block across the same instruction extent, so
// every pair interferes — a single block's worth of simultaneous liveness.
func fiveMutuallyLiveValues(t *testing.T) (*ir.Function, []ir.RangeID) {
	t.Helper()
	fn := ir.NewFunction(nil)
	blockID, _ := fn.NewBlock()

	ranges := make([]ir.RangeID, 5)
	for i := 0; i < 5; i++ {
		vid := fn.NewValue(types.TypeI32)
		rid := fn.NewLiveRange(vid)
		r := fn.LiveRange(rid)
		r.AddTouchedBlock(blockID)
		r.AddStart(blockID, 0)
		r.AddEnd(blockID, 10)
		ranges[i] = rid
	}
	return fn, ranges
}

// TestColoringSpillsExactlyTwoOfFive covers five values alive
// simultaneously in one block, three general registers available.
// Exactly two must be spilled; the rest get distinct colors.
func TestColoringSpillsExactlyTwoOfFive(t *testing.T) {
	fn, ranges := fiveMutuallyLiveValues(t)
	target := wordTarget(3)

	g := coloring.BuildGraph(fn, ranges, target.Matrix)
	for _, rid := range ranges {
		require.Equal(t, 4, g.Node(rid).Degree(), "K5: every node interferes with the other four")
	}

	spilled, colored := coloring.Select(g, target)
	require.Len(t, spilled, 2, "exactly two of five must be spilled with only three registers")
	require.Len(t, colored, 3)

	seen := map[int]bool{}
	for _, rid := range colored {
		c := g.Node(rid).Colors
		require.Len(t, c, 1)
		require.False(t, seen[c[0]], "colored values must get distinct registers")
		seen[c[0]] = true
	}
}

// TestColoringSucceedsWithoutSpillWhenRegistersSuffice exercises the
// full Color driver's happy path: two non-interfering values need only
// one color between them.
func TestColoringSucceedsWithoutSpillWhenRegistersSuffice(t *testing.T) {
	fn := ir.NewFunction(nil)
	b1, _ := fn.NewBlock()
	b2, _ := fn.NewBlock()

	v1 := fn.NewValue(types.TypeI32)
	r1 := fn.NewLiveRange(v1)
	fn.LiveRange(r1).AddTouchedBlock(b1)
	fn.LiveRange(r1).AddStart(b1, 0)
	fn.LiveRange(r1).AddEnd(b1, 1)

	v2 := fn.NewValue(types.TypeI32)
	r2 := fn.NewLiveRange(v2)
	fn.LiveRange(r2).AddTouchedBlock(b2)
	fn.LiveRange(r2).AddStart(b2, 0)
	fn.LiveRange(r2).AddEnd(b2, 1)

	target := wordTarget(1)
	res, err := coloring.Color(fn, []ir.RangeID{r1, r2}, target, 2)
	require.NoError(t, err)
	require.Equal(t, []int{0}, res.Colors[r1])
	require.Equal(t, []int{0}, res.Colors[r2])
}

// TestCompatMatrixBlocksIncompatibleClasses verifies a WORD range never
// interferes with a FLOAT64 range under the default identity matrix: the
// two classes cannot share a physical register.
func TestCompatMatrixBlocksIncompatibleClasses(t *testing.T) {
	fn := ir.NewFunction(nil)
	blockID, _ := fn.NewBlock()

	vi := fn.NewValue(types.TypeI32)
	ri := fn.NewLiveRange(vi)
	fn.LiveRange(ri).AddTouchedBlock(blockID)
	fn.LiveRange(ri).AddStart(blockID, 0)
	fn.LiveRange(ri).AddEnd(blockID, 5)

	vf := fn.NewValue(types.TypeF64)
	rf := fn.NewLiveRange(vf)
	fn.LiveRange(rf).AddTouchedBlock(blockID)
	fn.LiveRange(rf).AddStart(blockID, 0)
	fn.LiveRange(rf).AddEnd(blockID, 5)

	g := coloring.BuildGraph(fn, []ir.RangeID{ri, rf}, coloring.NewCompatMatrix())
	require.Equal(t, 0, g.Node(ri).Degree())
	require.Equal(t, 0, g.Node(rf).Degree())
}

func TestAllowPairMakesClassesCompatible(t *testing.T) {
	m := coloring.NewCompatMatrix()
	require.False(t, m.Compatible(coloring.ClassWord, coloring.ClassLong))
	m.AllowPair(coloring.ClassWord, coloring.ClassLong)
	require.True(t, m.Compatible(coloring.ClassWord, coloring.ClassLong))
	require.True(t, m.Compatible(coloring.ClassLong, coloring.ClassWord))
}
