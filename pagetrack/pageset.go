package pagetrack

import "math/bits"

// PageSet is a compact set of page indices using a bitmap.
// Optimized for the dense, bounded index spaces of tracked regions.
type PageSet struct {
	words []uint64
}

// NewPageSet creates a PageSet that can hold indices up to n-1.
func NewPageSet(n int) *PageSet {
	return &PageSet{words: make([]uint64, (n+63)/64)}
}

// Add inserts page index i into the set.
func (s *PageSet) Add(i int) {
	word := i / 64
	if word >= len(s.words) {
		s.grow(word + 1)
	}
	s.words[word] |= 1 << (i % 64)
}

// Has reports whether page index i is in the set.
func (s *PageSet) Has(i int) bool {
	word := i / 64
	if word >= len(s.words) {
		return false
	}
	return s.words[word]&(1<<(i%64)) != 0
}

// Count returns the number of pages in the set.
func (s *PageSet) Count() int {
	count := 0
	for _, w := range s.words {
		count += bits.OnesCount64(w)
	}
	return count
}

// Empty reports whether the set has no pages.
func (s *PageSet) Empty() bool {
	for _, w := range s.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Union adds all pages from other into this set.
func (s *PageSet) Union(other *PageSet) {
	if len(other.words) > len(s.words) {
		s.grow(len(other.words))
	}
	for i, w := range other.words {
		s.words[i] |= w
	}
}

// Contains reports whether every page of other is also in s.
func (s *PageSet) Contains(other *PageSet) bool {
	for i, w := range other.words {
		if i >= len(s.words) {
			if w != 0 {
				return false
			}
			continue
		}
		if w&^s.words[i] != 0 {
			return false
		}
	}
	return true
}

// Reset removes all pages from the set.
func (s *PageSet) Reset() {
	for i := range s.words {
		s.words[i] = 0
	}
}

// Pages returns the sorted slice of page indices in the set.
func (s *PageSet) Pages() []int {
	var out []int
	for i, w := range s.words {
		for w != 0 {
			bit := bits.TrailingZeros64(w)
			out = append(out, i*64+bit)
			w &= w - 1
		}
	}
	return out
}

// Runs returns the maximal runs of contiguous page indices as half-open
// [start, end) pairs, in ascending order. Adjacent dirty pages coalesce
// into a single run.
func (s *PageSet) Runs() [][2]int {
	var runs [][2]int
	start, prev := -1, -1
	for _, p := range s.Pages() {
		if start == -1 {
			start, prev = p, p
			continue
		}
		if p == prev+1 {
			prev = p
			continue
		}
		runs = append(runs, [2]int{start, prev + 1})
		start, prev = p, p
	}
	if start != -1 {
		runs = append(runs, [2]int{start, prev + 1})
	}
	return runs
}

// grow expands the bitmap to n words.
// Callers guarantee n > len(s.words).
func (s *PageSet) grow(n int) {
	words := make([]uint64, n)
	copy(words, s.words)
	s.words = words
}
