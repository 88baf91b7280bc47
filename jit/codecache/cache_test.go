package codecache_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/corejit/jit/codecache"
	"github.com/mna/corejit/jit/ir"
	"github.com/mna/corejit/jit/jerr"
	"github.com/mna/corejit/jit/types"
)

func newFn() *ir.Function {
	sig := types.NewSignature(types.TypeI32, nil, types.ABICdecl)
	return ir.NewFunction(sig)
}

func TestStartEndMethodCommitsRange(t *testing.T) {
	cache := codecache.New(64, 8)
	fn := newFn()

	cur, remaining, err := cache.StartMethod(8, fn)
	require.NoError(t, err)
	require.GreaterOrEqual(t, remaining, int64(64))

	addr := cur.Address(cache)
	cache.EndMethod(cur, codecache.StatusOK, make([]byte, 16))

	got, _, ok := cache.GetMethod(addr + 4)
	require.True(t, ok)
	require.Same(t, fn, got)

	_, _, ok = cache.GetMethod(addr + 16)
	require.False(t, ok)
}

func TestEndMethodDiscardRewinds(t *testing.T) {
	cache := codecache.New(64, 8)
	fn := newFn()

	cur, _, err := cache.StartMethod(8, fn)
	require.NoError(t, err)
	cache.EndMethod(cur, codecache.StatusDiscard, make([]byte, 32))

	cur2, remaining2, err := cache.StartMethod(8, fn)
	require.NoError(t, err)
	require.Equal(t, cur.Address(cache), cur2.Address(cache))
	require.GreaterOrEqual(t, remaining2, int64(64))
}

func TestStartMethodCacheFullOnExhaustedPage(t *testing.T) {
	cache := codecache.New(16, 1)
	fn := newFn()

	cur, _, err := cache.StartMethod(1, fn)
	require.NoError(t, err)
	cache.EndMethod(cur, codecache.StatusOK, make([]byte, 16))

	_, _, err = cache.StartMethod(1, fn)
	require.Error(t, err)
	require.True(t, jerr.Is(err, jerr.CacheFull))
}

func TestGrowPageDoublesAndPreservesOlderMethods(t *testing.T) {
	cache := codecache.New(16, 1)
	fn1 := newFn()
	fn2 := newFn()

	cur1, _, err := cache.StartMethod(1, fn1)
	require.NoError(t, err)
	addr1 := cur1.Address(cache)
	cache.EndMethod(cur1, codecache.StatusOK, make([]byte, 16))

	_, _, err = cache.StartMethod(1, fn2)
	require.True(t, jerr.Is(err, jerr.CacheFull))

	cache.GrowPage(2)
	cur2, remaining, err := cache.StartMethod(1, fn2)
	require.NoError(t, err)
	require.GreaterOrEqual(t, remaining, int64(32))
	addr2 := cur2.Address(cache)
	cache.EndMethod(cur2, codecache.StatusOK, make([]byte, 8))

	got1, _, ok := cache.GetMethod(addr1)
	require.True(t, ok)
	require.Same(t, fn1, got1)

	got2, _, ok := cache.GetMethod(addr2)
	require.True(t, ok)
	require.Same(t, fn2, got2)
}

func TestSetCookieIsReturnedByGetMethod(t *testing.T) {
	cache := codecache.New(32, 1)
	fn := newFn()

	cur, _, err := cache.StartMethod(1, fn)
	require.NoError(t, err)
	cur.SetCookie(0xABCD)
	addr := cur.Address(cache)
	cache.EndMethod(cur, codecache.StatusOK, make([]byte, 4))

	_, cookie, ok := cache.GetMethod(addr)
	require.True(t, ok)
	require.EqualValues(t, 0xABCD, cookie)
}

func TestAllocAuxGrowsOnDemand(t *testing.T) {
	cache := codecache.New(16, 1)
	fn := newFn()
	cur, _, err := cache.StartMethod(1, fn)
	require.NoError(t, err)

	buf, off, err := cache.AllocAux(cur.PageIndex(), 256)
	require.NoError(t, err)
	require.Len(t, buf, 256)
	require.EqualValues(t, 0, off)

	buf2, off2, err := cache.AllocAux(cur.PageIndex(), 8)
	require.NoError(t, err)
	require.Len(t, buf2, 8)
	require.EqualValues(t, 256, off2)
	copy(buf2, []byte("deadbeef"))
	require.Equal(t, []byte("deadbeef"), cache.AuxBytes(cur.PageIndex(), off2, 8))
}

func TestFlushExecIsNoError(t *testing.T) {
	cache := codecache.New(16, 1)
	require.NoError(t, cache.FlushExec(0, 16))
}
