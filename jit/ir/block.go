package ir

import "github.com/mna/corejit/internal/bitset"

// BlockID indexes a Block in a Function's block pool.
type BlockID int32

const NoBlock BlockID = -1

// LabelID is an opaque, monotonically increasing identifier bound to a
// Block by the builder. Forward references to a label not yet bound are
// resolved by the code-generation driver's fix-up list protocol.
type LabelID int32

// Block is a linear run of instructions delimited by a terminator.
// FirstInsn/LastInsn index into the owning
// Function's instruction pool; the range is [FirstInsn, LastInsn].
type Block struct {
	Label LabelID

	FirstInsn InsnID
	LastInsn  InsnID // inclusive; < FirstInsn means the block has no instructions yet

	Preds []BlockID
	Succs []BlockID

	// Liveness bitsets, sized to the function's value count. Populated by
	// jit/cfg.ComputeLiveness.
	UpwardExposed *bitset.Set // UEVar(b)
	VarKills      *bitset.Set // VarKill(b)
	LiveOut       *bitset.Set // LiveOut(b)

	EnteredViaTop    bool // block is the function entry or falls through from a predecessor
	EnteredViaBranch bool // block is the target of at least one branch
	EndsInDead       bool // terminator is unreachable-after (e.g. THROW, RETURN)

	// Forward-branch fix-up list for references to this block's address
	// that were emitted before the block itself. Each entry is a byte offset, within the code cache, of a
	// 4-byte relative placeholder to patch once Address is known.
	FixUps []int64

	// Populated once compiled.
	Address int64 // native code address, -1 until emitted

	// Handler is the block whose code begins the exception handler that was
	// active when this block was opened (NoBlock if none). The builder
	// stamps it from Function.CurrentHandler at block-creation time; it
	// does not change afterward even if the current handler changes later
	// in the build, matching each block permanently remembering the
	// protected region it was carved out of.
	Handler BlockID

	Metadata map[string]any
}

// NewBlock returns a zero Block with sentinel fields set to their "not yet
// known" values. Function.NewBlock is the usual way to obtain one (it also
// allocates the BlockID), this constructor exists for tests that build
// Blocks without a Function.
func NewBlock(label LabelID) *Block {
	return &Block{
		Label:     label,
		FirstInsn: 0,
		LastInsn:  -1,
		Address:   -1,
		Handler:   NoBlock,
	}
}

// Empty reports whether the block has no instructions.
func (b *Block) Empty() bool { return b.LastInsn < b.FirstInsn }

// AddFixUp records a pending forward reference at the given cache byte
// offset, to be patched once the block's Address is known.
func (b *Block) AddFixUp(offset int64) {
	b.FixUps = append(b.FixUps, offset)
}

// ClearFixUps empties the fix-up list, e.g. after patching or on a
// cache-full restart.
func (b *Block) ClearFixUps() {
	b.FixUps = b.FixUps[:0]
}
