// Package coloring implements the graph-coloring global register allocator:
// interference-graph construction gated by a type-compatibility matrix,
// simplify/select with optimistic spill candidate pushes, and iterative
// spill-and-restart.
//
// The interference-adjacency representation follows the teacher's
// lang/machine/map.go use of a hash-keyed store for a dynamic value set
// (here, a node's neighbor set), carried into this domain via
// github.com/dolthub/swiss.
package coloring

import (
	"fmt"

	"github.com/mna/corejit/jit/types"
)

// RegClass groups physical registers by the kind of value they can hold,
// configured once per backend.Target.
type RegClass uint8

const (
	ClassWord RegClass = iota
	ClassLong
	ClassFloat32
	ClassFloat64
	ClassNFloat
	numRegClasses
)

func (c RegClass) String() string {
	switch c {
	case ClassWord:
		return "word"
	case ClassLong:
		return "long"
	case ClassFloat32:
		return "float32"
	case ClassFloat64:
		return "float64"
	case ClassNFloat:
		return "nfloat"
	default:
		return fmt.Sprintf("RegClass(%d)", c)
	}
}

// ClassForType maps a jit/types.Kind to its register-type group.
func ClassForType(k types.Kind) RegClass {
	switch k {
	case types.I64, types.U64:
		return ClassLong
	case types.F32:
		return ClassFloat32
	case types.F64:
		return ClassFloat64
	case types.NFloat:
		return ClassNFloat
	default:
		return ClassWord
	}
}

// CompatMatrix says which register classes can ever share a physical
// register: a 32-bit int range never interferes with an f64 range
// because the two cannot occupy the same register. It defaults to the
// identity relation (every
// class only compatible with itself); backends whose register file lets
// classes overlap (e.g. a WORD half of a LONG pair) call AllowPair to
// widen it.
type CompatMatrix struct {
	compatible [numRegClasses][numRegClasses]bool
}

// NewCompatMatrix returns the identity compatibility matrix.
func NewCompatMatrix() *CompatMatrix {
	m := &CompatMatrix{}
	for c := RegClass(0); c < numRegClasses; c++ {
		m.compatible[c][c] = true
	}
	return m
}

// AllowPair marks a and b as capable of sharing a physical register,
// symmetrically.
func (m *CompatMatrix) AllowPair(a, b RegClass) {
	m.compatible[a][b] = true
	m.compatible[b][a] = true
}

// Compatible reports whether a and b can ever occupy the same physical
// register, and therefore whether two ranges of these classes are even
// candidates for interference.
func (m *CompatMatrix) Compatible(a, b RegClass) bool {
	return m.compatible[a][b]
}

// Target supplies the per-backend configuration Color needs: the
// compatibility matrix, and for each class the ordered list of candidate
// physical registers (non-global preferred first, per select step 4) plus
// which of those are "global" (costlier to claim).
type Target struct {
	Matrix *CompatMatrix
	Colors map[RegClass][]int
	Global map[int]bool
}
