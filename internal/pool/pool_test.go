package pool_test

import (
	"testing"

	"github.com/mna/corejit/internal/pool"
	"github.com/stretchr/testify/require"
)

type widget struct {
	n int
}

func TestAllocGetStability(t *testing.T) {
	p := pool.New[widget](4) // small block size to exercise cross-block growth

	var ptrs []*widget
	for i := 0; i < 10; i++ {
		idx, w := p.Alloc()
		require.Equal(t, i, idx)
		w.n = i * 10
		ptrs = append(ptrs, w)
	}

	require.Equal(t, 10, p.Len())
	// Pointers obtained earlier must still see the correct values: growth
	// must never relocate already-allocated blocks.
	for i, w := range ptrs {
		require.Equal(t, i*10, w.n)
		require.Equal(t, w, p.Get(i))
	}
}

func TestResetReusesBacking(t *testing.T) {
	p := pool.New[widget](4)
	idx, w := p.Alloc()
	w.n = 42
	require.Equal(t, 0, idx)

	p.Reset()
	require.Equal(t, 0, p.Len())

	idx2, w2 := p.Alloc()
	require.Equal(t, 0, idx2)
	require.Equal(t, 0, w2.n, "reset must zero the reused slot")
}

func TestEach(t *testing.T) {
	p := pool.New[widget](4)
	for i := 0; i < 6; i++ {
		_, w := p.Alloc()
		w.n = i
	}
	var sum int
	p.Each(func(idx int, w *widget) { sum += w.n })
	require.Equal(t, 15, sum)
}

func TestGetOutOfRangePanics(t *testing.T) {
	p := pool.New[widget](4)
	p.Alloc()
	require.Panics(t, func() { p.Get(5) })
}
