// Package sparse implements the packed vector-of-sets used to transport
// sparsity patterns along a tape: a logical nSet x end bit matrix packed
// into 64-bit words, with per-row union, intersection and assignment.
package sparse

import "math/bits"

const wordBits = 64

// A PackSetVec is a vector of nSet sets, each a subset of {0, ..., end-1},
// packed into machine words. The zero value is an empty vector; call Resize
// before use.
//
// A PackSetVec must not be copied by value; row contents are transferred
// with Assignment and whole vectors with Swap.
type PackSetVec struct {
	noCopy noCopy

	nSet     int
	end      int
	rowWords int
	words    []uint64
}

// NSet returns the number of sets (rows) in the vector.
func (s *PackSetVec) NSet() int { return s.nSet }

// End returns the logical size of every row; elements are in [0, End).
func (s *PackSetVec) End() int { return s.end }

// Resize reallocates the vector to nSet rows of end bits each, all empty.
func (s *PackSetVec) Resize(nSet, end int) {
	s.nSet = nSet
	s.end = end
	s.rowWords = (end + wordBits - 1) / wordBits
	n := nSet * s.rowWords
	if cap(s.words) < n {
		s.words = make([]uint64, n)
		return
	}
	s.words = s.words[:n]
	for i := range s.words {
		s.words[i] = 0
	}
}

func (s *PackSetVec) row(i int) []uint64 {
	return s.words[i*s.rowWords : (i+1)*s.rowWords]
}

// AddElement sets bit (i, j). Adding an element twice is a no-op.
func (s *PackSetVec) AddElement(i, j int) {
	s.words[i*s.rowWords+j/wordBits] |= 1 << uint(j%wordBits)
}

// PostElement requests that bit (i, j) be set. The element is guaranteed
// visible after ProcessPost(i); this implementation sets it immediately.
func (s *PackSetVec) PostElement(i, j int) {
	s.AddElement(i, j)
}

// ProcessPost makes all elements posted to row i visible.
func (s *PackSetVec) ProcessPost(i int) {}

// IsElement reports whether bit (i, j) is set.
func (s *PackSetVec) IsElement(i, j int) bool {
	return s.words[i*s.rowWords+j/wordBits]&(1<<uint(j%wordBits)) != 0
}

// NumberElements returns the number of elements in row i.
func (s *PackSetVec) NumberElements(i int) int {
	n := 0
	for _, w := range s.row(i) {
		n += bits.OnesCount64(w)
	}
	return n
}

// Clear empties row i.
func (s *PackSetVec) Clear(i int) {
	r := s.row(i)
	for k := range r {
		r[k] = 0
	}
}

// Assignment sets row t of s to row v of other. other may be s itself.
func (s *PackSetVec) Assignment(t, v int, other *PackSetVec) {
	copy(s.row(t), other.row(v))
}

// BinaryUnion sets row t of s to the union of row l of s and row r of other.
func (s *PackSetVec) BinaryUnion(t, l, r int, other *PackSetVec) {
	rt, rl, rr := s.row(t), s.row(l), other.row(r)
	for k := range rt {
		rt[k] = rl[k] | rr[k]
	}
}

// BinaryIntersection sets row t of s to the intersection of row l of s and
// row r of other.
func (s *PackSetVec) BinaryIntersection(t, l, r int, other *PackSetVec) {
	rt, rl, rr := s.row(t), s.row(l), other.row(r)
	for k := range rt {
		rt[k] = rl[k] & rr[k]
	}
}

// Free releases the packed storage and resets the vector to zero sets.
func (s *PackSetVec) Free() {
	s.nSet = 0
	s.end = 0
	s.rowWords = 0
	s.words = nil
}

// Swap exchanges the contents of s and other.
func (s *PackSetVec) Swap(other *PackSetVec) {
	s.nSet, other.nSet = other.nSet, s.nSet
	s.end, other.end = other.end, s.end
	s.rowWords, other.rowWords = other.rowWords, s.rowWords
	s.words, other.words = other.words, s.words
}

// Memory returns the number of bytes held by the packed storage.
func (s *PackSetVec) Memory() int {
	return cap(s.words) * wordBits / 8
}

// An Iter visits the elements of one row in increasing order. Next returns
// End() once the row is exhausted, and keeps returning it thereafter.
type Iter struct {
	s    *PackSetVec
	row  int
	next int
}

// RowIter returns an iterator over the elements of row i.
func (s *PackSetVec) RowIter(i int) Iter {
	return Iter{s: s, row: i}
}

// Next returns the next element of the row, or the row's End value when no
// elements remain.
func (it *Iter) Next() int {
	s := it.s
	base := it.row * s.rowWords
	for it.next < s.end {
		k := it.next / wordBits
		w := s.words[base+k] >> uint(it.next%wordBits)
		if w == 0 {
			it.next = (k + 1) * wordBits
			continue
		}
		it.next += bits.TrailingZeros64(w)
		if it.next >= s.end {
			break
		}
		j := it.next
		it.next++
		return j
	}
	return s.end
}

// noCopy triggers a go vet copylocks report when a PackSetVec is copied by
// value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
