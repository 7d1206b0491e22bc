// Package bitset provides the tiered bitmap used to recycle entity slots.
package bitset

import "math/bits"

const wordBits = 64

// Hierarchical is a growable bitset with summary tiers. Tier n+1 holds one bit
// per word of tier n and that bit is set while the word has any bit set, so
// finding a set bit costs one word read per tier instead of a linear scan.
type Hierarchical struct {
	tiers [][]uint64
	size  int
}

// New returns a bitset able to hold size bits, all clear.
func New(size int) *Hierarchical {
	h := &Hierarchical{}
	h.Resize(size)
	return h
}

// Len returns the number of addressable bits.
func (h *Hierarchical) Len() int {
	return h.size
}

// Resize changes the number of addressable bits. Bits beyond a shrunk size are
// dropped; bits below it keep their state.
func (h *Hierarchical) Resize(size int) {
	if size < 0 {
		size = 0
	}
	var leaf []uint64
	if len(h.tiers) > 0 {
		leaf = h.tiers[0]
	}
	need := wordsFor(size)
	switch {
	case need > len(leaf):
		grown := make([]uint64, need)
		copy(grown, leaf)
		leaf = grown
	case need < len(leaf):
		leaf = leaf[:need]
	}
	if rem := size % wordBits; rem != 0 && need > 0 {
		leaf[need-1] &= (uint64(1) << rem) - 1
	}
	h.size = size
	h.tiers = h.tiers[:0]
	h.tiers = append(h.tiers, leaf)
	for cur := leaf; len(cur) > 1; {
		next := make([]uint64, wordsFor(len(cur)))
		for i, w := range cur {
			if w != 0 {
				next[i/wordBits] |= uint64(1) << (i % wordBits)
			}
		}
		h.tiers = append(h.tiers, next)
		cur = next
	}
}

// Set marks pos. Out of range positions are ignored.
func (h *Hierarchical) Set(pos int) {
	if pos < 0 || pos >= h.size {
		return
	}
	i := pos
	for _, tier := range h.tiers {
		w := i / wordBits
		was := tier[w]
		tier[w] = was | uint64(1)<<(i%wordBits)
		if was != 0 {
			return
		}
		i = w
	}
}

// Clear unmarks pos. Out of range positions are ignored.
func (h *Hierarchical) Clear(pos int) {
	if pos < 0 || pos >= h.size {
		return
	}
	i := pos
	for _, tier := range h.tiers {
		w := i / wordBits
		tier[w] &^= uint64(1) << (i % wordBits)
		if tier[w] != 0 {
			return
		}
		i = w
	}
}

// Get reports whether pos is marked.
func (h *Hierarchical) Get(pos int) bool {
	if pos < 0 || pos >= h.size {
		return false
	}
	return h.tiers[0][pos/wordBits]&(uint64(1)<<(pos%wordBits)) != 0
}

// First returns the lowest marked position.
func (h *Hierarchical) First() (int, bool) {
	if len(h.tiers) == 0 || len(h.tiers[0]) == 0 {
		return -1, false
	}
	idx := 0
	for t := len(h.tiers) - 1; t >= 0; t-- {
		w := h.tiers[t][idx]
		if w == 0 {
			return -1, false
		}
		idx = idx*wordBits + bits.TrailingZeros64(w)
	}
	return idx, true
}

// Count returns the number of marked positions.
func (h *Hierarchical) Count() int {
	if len(h.tiers) == 0 {
		return 0
	}
	n := 0
	for _, w := range h.tiers[0] {
		n += bits.OnesCount64(w)
	}
	return n
}

func wordsFor(n int) int {
	return (n + wordBits - 1) / wordBits
}
