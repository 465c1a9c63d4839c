//go:build linux

package pagetrack_test

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/wippyai/wasm-rewind/errors"
	"github.com/wippyai/wasm-rewind/pagetrack"
)

// mmapRegion allocates a page-aligned anonymous mapping, as the kernel
// strategies require.
func mmapRegion(t *testing.T, pages int) []byte {
	t.Helper()
	region, err := unix.Mmap(-1, 0, pages*unix.Getpagesize(),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		t.Fatalf("mmap: %v", err)
	}
	t.Cleanup(func() { unix.Munmap(region) })
	return region
}

func newKernelTracker(t *testing.T, strategy pagetrack.Strategy, region []byte) *pagetrack.Tracker {
	t.Helper()
	tr, err := pagetrack.New(strategy, region, 0)
	if err != nil {
		if errors.IsKind(err, errors.KindUnsupported) {
			t.Skipf("%v not available: %v", strategy, err)
		}
		t.Fatal(err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func testKernelStrategy(t *testing.T, strategy pagetrack.Strategy) {
	pageSize := unix.Getpagesize()
	region := mmapRegion(t, 4)
	tr := newKernelTracker(t, strategy, region)

	region[2*pageSize+1] = 0xCD

	set, err := tr.DirtyPages()
	if err != nil {
		t.Fatal(err)
	}
	if !set.Has(2) {
		t.Errorf("page 2 not reported dirty: %v", set.Pages())
	}

	if err := tr.MarkClean(); err != nil {
		t.Fatal(err)
	}
	set, err = tr.DirtyPages()
	if err != nil {
		t.Fatal(err)
	}
	if set.Has(2) {
		t.Errorf("page 2 still dirty after MarkClean: %v", set.Pages())
	}

	region[0] = 1
	set, err = tr.DirtyPages()
	if err != nil {
		t.Fatal(err)
	}
	if !set.Has(0) {
		t.Errorf("page 0 not reported after re-write: %v", set.Pages())
	}
}

func TestSoftDirtyTracker(t *testing.T) {
	testKernelStrategy(t, pagetrack.StrategySoftDirty)
}

func TestUffdTracker(t *testing.T) {
	testKernelStrategy(t, pagetrack.StrategyUffd)
}

func TestKernelStrategyRejectsUnalignedRegion(t *testing.T) {
	pageSize := unix.Getpagesize()
	region := mmapRegion(t, 2)

	// Offset by one byte so the region no longer starts on a page boundary.
	_, err := pagetrack.New(pagetrack.StrategySoftDirty, region[1:pageSize+1], 0)
	if err == nil {
		t.Fatal("expected alignment error")
	}
	if !errors.IsKind(err, errors.KindAlignment) {
		t.Errorf("error = %v, want alignment kind", err)
	}
}
