package pagetrack_test

import (
	"reflect"
	"testing"

	"github.com/wippyai/wasm-rewind/pagetrack"
)

func TestPageSetAddHas(t *testing.T) {
	s := pagetrack.NewPageSet(128)
	for _, p := range []int{0, 1, 63, 64, 127} {
		s.Add(p)
	}

	for _, p := range []int{0, 1, 63, 64, 127} {
		if !s.Has(p) {
			t.Errorf("Has(%d) = false", p)
		}
	}
	for _, p := range []int{2, 62, 65, 126, 500} {
		if s.Has(p) {
			t.Errorf("Has(%d) = true", p)
		}
	}
	if got := s.Count(); got != 5 {
		t.Errorf("Count() = %d, want 5", got)
	}
}

func TestPageSetGrowsPastInitialCapacity(t *testing.T) {
	s := pagetrack.NewPageSet(1)
	s.Add(1000)
	if !s.Has(1000) {
		t.Error("Has(1000) = false after grow")
	}
	if s.Has(999) {
		t.Error("grow introduced spurious page")
	}
}

func TestPageSetPagesSorted(t *testing.T) {
	s := pagetrack.NewPageSet(256)
	for _, p := range []int{200, 3, 64, 65, 0} {
		s.Add(p)
	}
	want := []int{0, 3, 64, 65, 200}
	if got := s.Pages(); !reflect.DeepEqual(got, want) {
		t.Errorf("Pages() = %v, want %v", got, want)
	}
}

func TestPageSetRuns(t *testing.T) {
	tests := []struct {
		name  string
		pages []int
		want  [][2]int
	}{
		{"empty", nil, nil},
		{"single", []int{4}, [][2]int{{4, 5}}},
		{"one run", []int{2, 3, 4}, [][2]int{{2, 5}}},
		{"two runs", []int{0, 1, 5, 6, 7}, [][2]int{{0, 2}, {5, 8}}},
		{"run across word boundary", []int{62, 63, 64, 65}, [][2]int{{62, 66}}},
		{"isolated pages", []int{1, 3, 5}, [][2]int{{1, 2}, {3, 4}, {5, 6}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := pagetrack.NewPageSet(128)
			for _, p := range tt.pages {
				s.Add(p)
			}
			if got := s.Runs(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Runs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPageSetRunsCoverSameBytes(t *testing.T) {
	// Coalescing must change the shape of the ranges, never their union.
	s := pagetrack.NewPageSet(64)
	pages := []int{3, 4, 5, 9, 10, 30}
	for _, p := range pages {
		s.Add(p)
	}

	covered := map[int]bool{}
	for _, run := range s.Runs() {
		for p := run[0]; p < run[1]; p++ {
			covered[p] = true
		}
	}
	if len(covered) != len(pages) {
		t.Fatalf("runs cover %d pages, want %d", len(covered), len(pages))
	}
	for _, p := range pages {
		if !covered[p] {
			t.Errorf("page %d not covered by any run", p)
		}
	}
}

func TestPageSetUnionContains(t *testing.T) {
	a := pagetrack.NewPageSet(64)
	b := pagetrack.NewPageSet(64)
	a.Add(1)
	b.Add(1)
	b.Add(40)

	if a.Contains(b) {
		t.Error("a should not contain b")
	}
	a.Union(b)
	if !a.Contains(b) {
		t.Error("a should contain b after union")
	}
	if a.Count() != 2 {
		t.Errorf("Count() = %d after union", a.Count())
	}

	a.Reset()
	if !a.Empty() {
		t.Error("set not empty after Reset")
	}
}
