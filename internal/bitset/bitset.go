// Package bitset implements a dense bit vector over small integer indices,
// the representation used throughout jit/cfg and jit/coloring for value and
// block membership sets (UEVar, VarKill, LiveOut, touched-block sets,
// interference adjacency).
package bitset

import "math/bits"

const wordBits = 64

// Set is a dense bit vector. The zero value is an empty set of size 0; use
// New to preallocate for a known universe size.
type Set struct {
	words []uint64
	n     int // number of addressable bits (universe size)
}

// New returns a Set able to hold indices in [0, n).
func New(n int) *Set {
	return &Set{words: make([]uint64, wordCount(n)), n: n}
}

func wordCount(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + wordBits - 1) / wordBits
}

// Len returns the universe size this set was created with.
func (s *Set) Len() int { return s.n }

// Grow extends the set's universe to at least n bits, preserving existing
// bits. It is a no-op if the set is already that large.
func (s *Set) Grow(n int) {
	if n <= s.n {
		return
	}
	need := wordCount(n)
	if need > len(s.words) {
		nw := make([]uint64, need)
		copy(nw, s.words)
		s.words = nw
	}
	s.n = n
}

func (s *Set) checkIndex(i int) {
	if i < 0 || i >= s.n {
		panic("bitset: index out of range")
	}
}

// Set sets bit i.
func (s *Set) Set(i int) {
	s.checkIndex(i)
	s.words[i/wordBits] |= 1 << uint(i%wordBits)
}

// Clear clears bit i.
func (s *Set) Clear(i int) {
	s.checkIndex(i)
	s.words[i/wordBits] &^= 1 << uint(i%wordBits)
}

// Test reports whether bit i is set.
func (s *Set) Test(i int) bool {
	s.checkIndex(i)
	return s.words[i/wordBits]&(1<<uint(i%wordBits)) != 0
}

// ClearAll resets every bit to zero without changing the universe size.
func (s *Set) ClearAll() {
	for i := range s.words {
		s.words[i] = 0
	}
}

// IsEmpty reports whether no bit is set.
func (s *Set) IsEmpty() bool {
	for _, w := range s.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Count returns the number of set bits.
func (s *Set) Count() int {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Clone returns an independent copy of s.
func (s *Set) Clone() *Set {
	words := make([]uint64, len(s.words))
	copy(words, s.words)
	return &Set{words: words, n: s.n}
}

// CopyFrom replaces the contents of s with a copy of other, growing s's
// universe if needed.
func (s *Set) CopyFrom(other *Set) {
	s.Grow(other.n)
	for i := range s.words {
		if i < len(other.words) {
			s.words[i] = other.words[i]
		} else {
			s.words[i] = 0
		}
	}
}

func (s *Set) alignWith(other *Set) {
	if len(other.words) > len(s.words) {
		nw := make([]uint64, len(other.words))
		copy(nw, s.words)
		s.words = nw
	}
	if other.n > s.n {
		s.n = other.n
	}
}

// Union sets s to s ∪ other, returning true if s changed. Used by the
// liveness fixed-point loop (LiveOut accumulation).
func (s *Set) Union(other *Set) (changed bool) {
	s.alignWith(other)
	for i, w := range other.words {
		nv := s.words[i] | w
		if nv != s.words[i] {
			s.words[i] = nv
			changed = true
		}
	}
	return changed
}

// UnionDiff sets s to s ∪ (a − b), returning true if s changed. This is the
// exact shape of the liveness equation's right-hand side:
// UEVar(s) ∪ (LiveOut(s) − VarKill(s)).
func (s *Set) UnionDiff(a, b *Set) (changed bool) {
	s.alignWith(a)
	s.alignWith(b)
	for i := range s.words {
		var av, bv uint64
		if i < len(a.words) {
			av = a.words[i]
		}
		if i < len(b.words) {
			bv = b.words[i]
		}
		nv := s.words[i] | (av &^ bv)
		if nv != s.words[i] {
			s.words[i] = nv
			changed = true
		}
	}
	return changed
}

// Intersects reports whether s and other share any set bit.
func (s *Set) Intersects(other *Set) bool {
	n := len(s.words)
	if len(other.words) < n {
		n = len(other.words)
	}
	for i := 0; i < n; i++ {
		if s.words[i]&other.words[i] != 0 {
			return true
		}
	}
	return false
}

// Contains reports whether other is a subset of s.
func (s *Set) Contains(other *Set) bool {
	for i, w := range other.words {
		var sv uint64
		if i < len(s.words) {
			sv = s.words[i]
		}
		if w&^sv != 0 {
			return false
		}
	}
	return true
}

// Equal reports whether s and other have the same set bits.
func (s *Set) Equal(other *Set) bool {
	n := len(s.words)
	if len(other.words) > n {
		n = len(other.words)
	}
	for i := 0; i < n; i++ {
		var a, b uint64
		if i < len(s.words) {
			a = s.words[i]
		}
		if i < len(other.words) {
			b = other.words[i]
		}
		if a != b {
			return false
		}
	}
	return true
}

// Elements returns the sorted indices of set bits.
func (s *Set) Elements() []int {
	var out []int
	for wi, w := range s.words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			out = append(out, wi*wordBits+b)
			w &^= 1 << uint(b)
		}
	}
	return out
}
