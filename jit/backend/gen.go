package backend

import (
	"encoding/binary"

	"github.com/mna/corejit/jit/ir"
	"github.com/mna/corejit/jit/jerr"
	"github.com/mna/corejit/jit/regalloc"
)

// Gen is the per-compile-attempt code-generation cursor threaded through
// every Backend method: the growing byte buffer for one function's code
// region, bounded by the page the driver reserved from the code cache, plus
// the register-allocator state a Backend's GenInsn consults.
type Gen struct {
	Code []byte
	cap  int // page capacity; Emit* return jerr.CacheFull once Code would exceed it

	Regs *regalloc.File

	frame frameAllocator

	// patchAt, when >= 0, redirects Emit8/Emit32/Emit64/EmitBytes to
	// overwrite bytes starting at that offset instead of appending, for
	// backfilling a region Reserve already made room for: the prologue is
	// written after the fact, once the body's frame-size and callee-saved
	// usage are known. BeginPatch/EndPatch
	// toggle this mode; Len() always reports the append position, so block
	// addresses and fix-up math are unaffected by a nested patch.
	patchAt int64

	// returnFixups collects the offsets of RETURN/RETURN_VOID branch
	// placeholders a backend reserved to jump to the shared epilogue,
	// patched once every return-site fix-up is known.
	returnFixups []int64
}

// NewGen returns a Gen writing into a fresh buffer capped at capacity
// bytes, using regs for instruction-level register allocation.
func NewGen(capacity int, regs *regalloc.File) *Gen {
	return &Gen{cap: capacity, Regs: regs, patchAt: -1}
}

// Len returns how many bytes have been emitted so far; this is the
// function-relative offset used for block addresses and fix-ups before the
// driver adds the page's base address.
func (g *Gen) Len() int64 { return int64(len(g.Code)) }

// Remaining reports how many more bytes can be written before the page is
// full.
func (g *Gen) Remaining() int { return g.cap - len(g.Code) }

// writeBytes appends b, or, in patch mode (g.patchAt >= 0), overwrites
// already reserved bytes at g.patchAt and advances patchAt by len(b).
func (g *Gen) writeBytes(b []byte) error {
	if g.patchAt >= 0 {
		copy(g.Code[g.patchAt:int(g.patchAt)+len(b)], b)
		g.patchAt += int64(len(b))
		return nil
	}
	if g.Remaining() < len(b) {
		return jerr.New(jerr.CacheFull, "no room for %d bytes", len(b))
	}
	g.Code = append(g.Code, b...)
	return nil
}

// BeginPatch redirects subsequent Emit8/Emit32/Emit64/EmitBytes calls to
// overwrite bytes starting at offset instead of appending — used to write
// the prologue into the region Reserve already carved out at the head of
// the function's code. EndPatch restores append mode.
func (g *Gen) BeginPatch(offset int64) { g.patchAt = offset }

// EndPatch restores append mode.
func (g *Gen) EndPatch() { g.patchAt = -1 }

// Emit8 appends a single byte.
func (g *Gen) Emit8(b byte) error {
	return g.writeBytes([]byte{b})
}

// Emit32 appends v as 4 little-endian bytes.
func (g *Gen) Emit32(v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return g.writeBytes(buf[:])
}

// Emit64 appends v as 8 little-endian bytes.
func (g *Gen) Emit64(v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return g.writeBytes(buf[:])
}

// EmitBytes appends b verbatim.
func (g *Gen) EmitBytes(b []byte) error {
	return g.writeBytes(b)
}

// Reserve appends n zero bytes and returns the offset at which they start,
// for a location (e.g. the prologue) that is written after the fact: the
// driver reserves PROLOG_SIZE bytes at the head and writes them after
// body emission.
func (g *Gen) Reserve(n int) (int64, error) {
	if g.Remaining() < n {
		return 0, jerr.New(jerr.CacheFull, "no room to reserve %d bytes", n)
	}
	start := g.Len()
	g.Code = append(g.Code, make([]byte, n)...)
	return start, nil
}

// PatchAt overwrites the 4 bytes at offset with rel, little-endian — used
// to resolve a branch or return-site fix-up's relative placeholder to
// target - slot - 4. The reserved prologue is written through
// BeginPatch/EndPatch instead.
func (g *Gen) PatchAt(offset int64, rel int32) {
	binary.LittleEndian.PutUint32(g.Code[offset:offset+4], uint32(rel))
}

// PatchBytesAt overwrites len(b) bytes starting at offset with b, for
// backfilling a reserved region with backend-emitted code (e.g. the
// prologue) rather than a single 4-byte value.
func (g *Gen) PatchBytesAt(offset int64, b []byte) {
	copy(g.Code[offset:int(offset)+len(b)], b)
}

// AddReturnFixup records a pending RETURN/RETURN_VOID branch placeholder
// at the given offset, to be patched to the shared epilogue's address
// once it is known.
func (g *Gen) AddReturnFixup(offset int64) {
	g.returnFixups = append(g.returnFixups, offset)
}

// ReturnFixups returns the offsets recorded by AddReturnFixup so far.
func (g *Gen) ReturnFixups() []int64 { return g.returnFixups }

// frameAllocator is a simple bump allocator handing out frame-slot offsets
// to values that don't have one yet, shared by every backend's FixValue
// implementation.
type frameAllocator struct {
	next    int32
	offsets map[ir.ValueID]int32
}

// FixValue implements the generic half of Backend.FixValue: it assigns a
// value its first frame slot on demand, sized by typeSize, and returns the
// (possibly newly assigned) offset. Backends call this rather than
// reimplementing the bump allocator themselves.
func (g *Gen) FixValue(v ir.ValueID, typeSize int32) int32 {
	if g.frame.offsets == nil {
		g.frame.offsets = make(map[ir.ValueID]int32)
	}
	if off, ok := g.frame.offsets[v]; ok {
		return off
	}
	if typeSize < 1 {
		typeSize = 1
	}
	// Align to the value's own size, up to pointer width, mirroring a
	// typical frame-slot allocator's natural-alignment rule.
	align := typeSize
	if align > 8 {
		align = 8
	}
	if rem := g.frame.next % align; rem != 0 {
		g.frame.next += align - rem
	}
	off := g.frame.next
	g.frame.next += typeSize
	g.frame.offsets[v] = off
	return off
}

// FrameSize returns the total frame space handed out so far.
func (g *Gen) FrameSize() int32 { return g.frame.next }
