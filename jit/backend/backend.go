// Package backend defines the target abstraction the code-generation
// driver (jit/codegen) emits through, plus the textual IR assembler and
// disassembler used to build and inspect functions without a front end.
//
// Grounded on the teacher's lang/compiler/asm.go round-trip shape for the
// textual format, and on lang/machine's per-opcode dispatch loop for the
// Backend.GenInsn contract: one big switch over ir.Opcode that calls back
// into the allocator, the same role machine.go's eval loop plays for
// teacher's own bytecode.
package backend

import (
	"github.com/mna/corejit/jit/coloring"
	"github.com/mna/corejit/jit/ir"
	"github.com/mna/corejit/jit/types"
)

// Target describes one concrete machine's register file and conventions,
// feeding both jit/regalloc.File and jit/coloring.Target so the allocators
// and the backend agree on what a "register" means.
type Target struct {
	Name string

	// NumWordRegs is the count of general-purpose (WORD/LONG) registers
	// the backend's register file models; register numbers are
	// [0, NumWordRegs).
	NumWordRegs int
	// NumFloatRegs is the count of floating-point registers, numbered
	// starting right after the word registers.
	NumFloatRegs int

	// CallClobbered lists the caller-save registers a CALL-family
	// instruction kills, consumed by jit/cfg.SynthesizeFixedRanges.
	CallClobbered []int
	// Permanent lists registers ordinary allocation must never claim (the
	// frame pointer, the stack pointer).
	Permanent []int
	// GlobalCandidates lists callee-saved registers available for global
	// register allocation, ranked most-preferred first.
	GlobalCandidates []int

	// PrologSize is the fixed number of bytes GenProlog is allowed to
	// write into the pre-reserved head of a compiled function's code.
	PrologSize int

	// Matrix gates interference between differently-classed live ranges
	// for jit/coloring.BuildGraph.
	Matrix *coloring.CompatMatrix
}

// ColoringTarget adapts t into the jit/coloring.Target shape for a single
// compile: colors lists every non-Permanent register of a class in
// register-number order, and the registers in t.GlobalCandidates are
// marked in Global, which select uses to try non-global colors first.
func (t *Target) ColoringTarget() *coloring.Target {
	global := make(map[int]bool, len(t.GlobalCandidates))
	for _, r := range t.GlobalCandidates {
		global[r] = true
	}
	permanent := make(map[int]bool, len(t.Permanent))
	for _, r := range t.Permanent {
		permanent[r] = true
	}
	words := make([]int, 0, t.NumWordRegs)
	for r := 0; r < t.NumWordRegs; r++ {
		if !permanent[r] {
			words = append(words, r)
		}
	}
	floats := make([]int, 0, t.NumFloatRegs)
	for r := t.NumWordRegs; r < t.NumWordRegs+t.NumFloatRegs; r++ {
		if !permanent[r] {
			floats = append(floats, r)
		}
	}
	return &coloring.Target{
		Matrix: t.Matrix,
		Colors: map[coloring.RegClass][]int{
			coloring.ClassWord:    words,
			coloring.ClassLong:    words,
			coloring.ClassFloat32: floats,
			coloring.ClassFloat64: floats,
			coloring.ClassNFloat:  floats,
		},
		Global: global,
	}
}

// Backend is the external interface the code-generation driver emits
// through. Every method that writes
// bytes does so into the Gen's buffer at its current cursor.
type Backend interface {
	// LoadValue materializes value into reg (and otherReg, for a 64-bit
	// split pair; -1 if not a pair).
	LoadValue(g *Gen, fn *ir.Function, reg, otherReg int, value ir.ValueID) error
	// SpillReg writes reg back to value's frame slot, assigning one first
	// via FixValue if value has none yet.
	SpillReg(g *Gen, fn *ir.Function, reg, otherReg int, value ir.ValueID) error
	// FreeReg releases reg without spilling (e.g. pop the x87 stack).
	FreeReg(g *Gen, fn *ir.Function, reg, otherReg int, valueUsed bool) error
	// LoadGlobal/SpillGlobal move a value between a global register and
	// its frame slot.
	LoadGlobal(g *Gen, fn *ir.Function, reg int, value ir.ValueID) error
	SpillGlobal(g *Gen, fn *ir.Function, reg int, value ir.ValueID) error

	// ExchTop/MoveTop/SpillTop are the x87 stack-register primitives.
	ExchTop(g *Gen, reg int, pop bool) error
	MoveTop(g *Gen, reg int) error
	SpillTop(g *Gen, fn *ir.Function, reg int, value ir.ValueID, pop bool) error

	// FixValue assigns value a frame offset if it does not have one yet,
	// and returns it. The offset is bump-allocated from g, the current
	// compile attempt's Gen, since frame layout must reset on every
	// cache-full restart rather than persist in the stateless Backend.
	FixValue(g *Gen, fn *ir.Function, value ir.ValueID) int32

	// GenInsn emits the native encoding of one instruction, invoking the
	// register allocator internally to resolve its operands.
	GenInsn(g *Gen, fn *ir.Function, block ir.BlockID, insn ir.InsnID) error

	// GenProlog writes at most Target.PrologSize bytes at the start of
	// the function's code (already reserved by the driver) and returns
	// how many it actually used.
	GenProlog(g *Gen, fn *ir.Function) (int, error)
	// GenEpilog writes the function's return sequence.
	GenEpilog(g *Gen, fn *ir.Function) error
	// GenRedirector writes a small stub that loads fn.EntryPoint and
	// jumps to it, for the redirector republishing pattern.
	GenRedirector(g *Gen, fn *ir.Function) error

	// IsGlobalCandidate reports whether values of type t may ever receive
	// a global register (e.g. a backend might exclude aggregates).
	IsGlobalCandidate(t *types.Type) bool
	// OpcodeIsSupported reports whether this backend can emit op at all.
	OpcodeIsSupported(op ir.Opcode) bool

	// Target returns the backend's register-file/convention description.
	Target() *Target
}
