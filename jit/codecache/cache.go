// Package codecache implements an append-only executable-code arena: a
// growable sequence of pages that jit/codegen.Driver reserves regions
// from, writes native bytes into, and later looks up by program counter.
//
// Real executable-writable-then-executable page protection (mmap/mprotect
// and their platform variants) belongs to a real per-ISA instruction
// encoder, which this repository deliberately does not ship: nothing here
// ever jumps into the bytes this package stores (jit/backend/vmbackend
// only encodes a toy format for testing), so the arena is a plain
// process-memory byte slice rather than a real OS mapping. FlushExec is
// kept as the I-cache-synchronization hook a driver expects to call,
// implemented as a no-op for that reason.
package codecache

import (
	"sort"
	"sync"

	"github.com/mna/corejit/jit/ir"
	"github.com/mna/corejit/jit/jerr"
)

// Status is the outcome passed to EndMethod.
type Status uint8

const (
	// StatusOK commits the reserved region as a finished method.
	StatusOK Status = iota
	// StatusDiscard rewinds the cursor, releasing the region back to the
	// page (used on a cache-full restart).
	StatusDiscard
)

// methodRecord is one committed, address-searchable region.
type methodRecord struct {
	fn         *ir.Function
	start, end int64 // absolute addresses in the cache's synthetic address space
	cookie     uintptr
}

// page is one arena segment. Pages are never resized in place: growth
// allocates a new, bigger page and appends it, so addresses already
// handed out from earlier pages remain valid forever.
type page struct {
	base int64 // address of byte 0 of this page in the cache's address space

	bytes []byte
	used  int64

	aux     []byte // non-executable auxiliary area (bytecode-offset maps)
	auxUsed int64

	methods []*methodRecord // committed methods, kept sorted by start
}

func newPage(base, size, auxSize int64) *page {
	return &page{base: base, bytes: make([]byte, size), aux: make([]byte, auxSize)}
}

func (p *page) remaining() int64 { return int64(len(p.bytes)) - p.used }

// Cache is the executable-code arena. It is safe for concurrent use:
// mutation (StartMethod/EndMethod/SetCookie/GrowPage) and lookup
// (GetMethod) both take the cache's own lock, so a reader taking only a
// brief lock still sees a consistent view even when a caller has not
// wired a shared context build lock around the whole call.
type Cache struct {
	mu    sync.RWMutex
	align int32
	pages []*page
}

// New creates a cache with one initial page of the given size, aligning
// every reservation to align bytes (rounded up to at least 1).
func New(initialPageSize int64, align int32) *Cache {
	if align < 1 {
		align = 1
	}
	return &Cache{
		align: align,
		pages: []*page{newPage(0, initialPageSize, initialPageSize/4+64)},
	}
}

// Cursor is the write handle returned by StartMethod. It is valid until
// the matching EndMethod call.
type Cursor struct {
	pageIdx int
	start   int64
	cookie  uintptr
	fn      *ir.Function
}

// PageIndex identifies which page this cursor was reserved from, for
// callers that also need AllocAux.
func (c *Cursor) PageIndex() int { return c.pageIdx }

// Address returns the absolute address of the reserved region's first
// byte in the cache's address space.
func (c *Cursor) Address(cache *Cache) int64 {
	return cache.pages[c.pageIdx].base + c.start
}

// StartMethod reserves a fresh region for fn in the current (last) page
// and returns a cursor plus how many bytes remain before the page is
// full. A page with zero bytes remaining yields jerr.CacheFull: the
// caller must GrowPage and retry.
func (cache *Cache) StartMethod(align int32, fn *ir.Function) (*Cursor, int64, error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if align < 1 {
		align = cache.align
	}
	idx := len(cache.pages) - 1
	p := cache.pages[idx]

	aligned := alignUp(p.used, int64(align))
	if aligned >= int64(len(p.bytes)) {
		return nil, 0, jerr.New(jerr.CacheFull, "page %d exhausted", idx)
	}
	return &Cursor{pageIdx: idx, start: aligned, fn: fn}, int64(len(p.bytes)) - aligned, nil
}

func alignUp(v, align int64) int64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

// SetCookie associates a side pointer with cur's region (e.g. the
// exception-handler entry jit_function_from_pc needs), applied when the
// method is committed.
func (c *Cursor) SetCookie(ptr uintptr) { c.cookie = ptr }

// EndMethod finalizes or discards cur's region. On StatusOK, code is
// copied into the page at cur's reserved offset and the region becomes
// searchable by GetMethod; len(code) must be <= the capacity StartMethod
// reported. On StatusDiscard code is ignored and the page's used counter
// is left untouched, so a subsequent StartMethod call reuses the same
// offset (the cache-full restart case).
func (cache *Cache) EndMethod(cur *Cursor, status Status, code []byte) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if status == StatusDiscard {
		return
	}
	p := cache.pages[cur.pageIdx]
	copy(p.bytes[cur.start:], code)
	rec := &methodRecord{
		fn:     cur.fn,
		start:  p.base + cur.start,
		end:    p.base + cur.start + int64(len(code)),
		cookie: cur.cookie,
	}
	p.used = cur.start + int64(len(code))
	p.methods = append(p.methods, rec)
}

// GrowPage appends a new page sized as the last page's capacity times
// factor (at least double the last page, so repeated cache-full restarts
// converge quickly). The new page becomes the target of the next
// StartMethod call; earlier pages and their committed methods are
// untouched.
func (cache *Cache) GrowPage(factor float64) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if factor < 2 {
		factor = 2
	}
	last := cache.pages[len(cache.pages)-1]
	base := last.base + int64(len(last.bytes))
	size := int64(float64(len(last.bytes)) * factor)
	cache.pages = append(cache.pages, newPage(base, size, size/4+64))
}

// AllocAux bump-allocates n bytes from the reserving page's non-executable
// auxiliary area (for the bytecode-offset varint stream) and returns the
// slice to write into plus the page-relative offset it started at, so a
// later AuxBytes call can re-read the same region (jit/codegen stores
// that offset on the compiled ir.Function).
func (cache *Cache) AllocAux(pageIdx int, n int64) ([]byte, int64, error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	p := cache.pages[pageIdx]
	if p.auxUsed+n > int64(len(p.aux)) {
		grown := make([]byte, (p.auxUsed+n)*2+64)
		copy(grown, p.aux[:p.auxUsed])
		p.aux = grown
	}
	start := p.auxUsed
	p.auxUsed += n
	return p.aux[start : start+n], start, nil
}

// AuxBytes returns a read-only view of length bytes starting at the
// page-relative offset off within page pageIdx's auxiliary area, the
// counterpart to AllocAux used to re-read an already-sealed
// bytecode-offset map.
func (cache *Cache) AuxBytes(pageIdx int, off, length int64) []byte {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	p := cache.pages[pageIdx]
	return p.aux[off : off+length]
}

// GetMethod binary-searches the function whose committed code range
// covers pc, returning it plus its cookie.
func (cache *Cache) GetMethod(pc int64) (*ir.Function, uintptr, bool) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	pageIdx := sort.Search(len(cache.pages), func(i int) bool {
		return cache.pages[i].base+int64(len(cache.pages[i].bytes)) > pc
	})
	if pageIdx == len(cache.pages) || pc < cache.pages[pageIdx].base {
		return nil, 0, false
	}
	p := cache.pages[pageIdx]
	methods := p.methods
	i := sort.Search(len(methods), func(i int) bool { return methods[i].end > pc })
	if i == len(methods) || pc < methods[i].start {
		return nil, 0, false
	}
	return methods[i].fn, methods[i].cookie, true
}

// FlushExec issues the target's instruction-cache synchronization
// sequence over [start, start+length). A no-op here: see the package
// doc comment for why this arena never holds real executable memory.
func (cache *Cache) FlushExec(start, length int64) error { return nil }

// Bytes returns a read-only view of the bytes written so far at address
// addr for length bytes, spanning at most one page. Used by jit/codegen
// to back-patch already-written fix-ups and by tests to inspect output.
func (cache *Cache) Bytes(addr, length int64) []byte {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	pageIdx := sort.Search(len(cache.pages), func(i int) bool {
		return cache.pages[i].base+int64(len(cache.pages[i].bytes)) > addr
	})
	p := cache.pages[pageIdx]
	off := addr - p.base
	return p.bytes[off : off+length]
}
