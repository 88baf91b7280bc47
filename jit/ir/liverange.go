package ir

// UsePoint identifies one (block, instruction) occurrence, used as the
// element type of a LiveRange's Starts/Ends multisets: both are multisets
// of (block, insn-index) pairs to allow multi-entry ranges.
type UsePoint struct {
	Block BlockID
	Insn  InsnID
}

// LiveRange is the unit the register allocators color. A range's Starts are every point that assigns Value, its
// Ends every point that uses it; TouchedBlocks lists the blocks the
// range is live through,
// used by jit/cfg's flood fill and by jit/coloring's interference test.
type LiveRange struct {
	Value ValueID

	Starts []UsePoint
	Ends   []UsePoint

	// Each entry is a block the range is live through, without duplicates.
	// A single-block range lists only that block; a multi-block range
	// lists every block the flood fill reached.
	TouchedBlocks []BlockID

	PreferredColors map[int]int // candidate register -> preference score
	Colors          []int       // assigned physical register(s); >1 entry only for a register pair
	RegisterCount   int         // 1, or 2 for a 64-bit value on a 32-bit target

	IsFixed      bool // pre-assigned color from a hardware constraint (e.g. OUTGOING_REG)
	IsSpilled    bool
	IsSpillRange bool // per-use dummy range (addressable/volatile value, or a constant in a register)

	Neighbors []RangeID // interference graph adjacency, built by jit/coloring

	// Doubly-linked list pointers within Value's range list (Value.FirstRange
	// / Value.LastRange chain through these).
	PrevInValue, NextInValue RangeID
}

// NewLiveRange returns a zero LiveRange for the given value, with sentinel
// links and an empty preferred-color map.
func NewLiveRange(v ValueID) *LiveRange {
	return &LiveRange{
		Value:           v,
		PreferredColors: make(map[int]int),
		PrevInValue:     NoRange,
		NextInValue:     NoRange,
	}
}

// AddStart records that Value is assigned at (block, insn).
func (r *LiveRange) AddStart(block BlockID, insn InsnID) {
	r.Starts = append(r.Starts, UsePoint{Block: block, Insn: insn})
}

// AddEnd records that Value is used at (block, insn).
func (r *LiveRange) AddEnd(block BlockID, insn InsnID) {
	r.Ends = append(r.Ends, UsePoint{Block: block, Insn: insn})
}

// Touches reports whether the range's flood fill reached block b.
func (r *LiveRange) Touches(b BlockID) bool {
	for _, tb := range r.TouchedBlocks {
		if tb == b {
			return true
		}
	}
	return false
}

// AddTouchedBlock records that the range is live through b, if not already
// recorded.
func (r *LiveRange) AddTouchedBlock(b BlockID) {
	if !r.Touches(b) {
		r.TouchedBlocks = append(r.TouchedBlocks, b)
	}
}
