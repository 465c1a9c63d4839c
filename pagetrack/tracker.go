package pagetrack

import (
	"bytes"
	"fmt"
	"os"
	"unsafe"

	"github.com/wippyai/wasm-rewind/errors"
)

// Strategy selects the dirty-tracking mechanism. The choice is made once,
// at Tracker construction; every strategy exposes the same protocol.
type Strategy uint8

const (
	// StrategyShadow compares against a private copy of the region.
	StrategyShadow Strategy = iota
	// StrategySoftDirty reads the kernel's per-page soft-dirty bit.
	StrategySoftDirty
	// StrategyUffd observes first writes via userfaultfd async write-protect.
	StrategyUffd
)

func (s Strategy) String() string {
	switch s {
	case StrategyShadow:
		return "shadow"
	case StrategySoftDirty:
		return "soft-dirty"
	case StrategyUffd:
		return "uffd"
	}
	return fmt.Sprintf("strategy(%d)", uint8(s))
}

// ParseStrategy converts a strategy name as accepted on the command line.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "shadow":
		return StrategyShadow, nil
	case "soft-dirty", "softdirty":
		return StrategySoftDirty, nil
	case "uffd":
		return StrategyUffd, nil
	}
	return 0, errors.Configuration(errors.PhaseTrack, "unknown dirty-tracking strategy %q", name)
}

// kernelTracker is the strategy-specific backend for the kernel-assisted
// strategies. Implementations live in tracker_linux.go; other platforms
// fail at construction.
type kernelTracker interface {
	markClean() error
	dirtyPages(set *PageSet) error
	close() error
}

// Tracker reports which pages of one memory region were written since the
// last baseline. A Tracker belongs to a single guest instance and is not
// safe for concurrent use.
type Tracker struct {
	kt       kernelTracker
	region   []byte
	shadow   []byte
	strategy Strategy
	pageSize int
	numPages int
}

// New creates a tracker over region and establishes a clean baseline.
// pageSize 0 means the system page size. Kernel-assisted strategies
// require the region to start on a page boundary and fail fast with an
// alignment or configuration error otherwise.
func New(strategy Strategy, region []byte, pageSize int) (*Tracker, error) {
	if pageSize <= 0 {
		pageSize = os.Getpagesize()
	}
	if len(region) == 0 {
		return nil, errors.Configuration(errors.PhaseTrack, "cannot track an empty region")
	}

	t := &Tracker{
		region:   region,
		strategy: strategy,
		pageSize: pageSize,
		numPages: (len(region) + pageSize - 1) / pageSize,
	}

	switch strategy {
	case StrategyShadow:
		t.shadow = make([]byte, len(region))
		copy(t.shadow, region)

	case StrategySoftDirty, StrategyUffd:
		addr := uintptr(unsafe.Pointer(&region[0]))
		if addr%uintptr(pageSize) != 0 {
			return nil, errors.Alignment(errors.PhaseTrack, addr, pageSize)
		}
		var err error
		if strategy == StrategySoftDirty {
			t.kt, err = newSoftDirtyTracker(addr, len(region), pageSize)
		} else {
			t.kt, err = newUffdTracker(addr, len(region), pageSize)
		}
		if err != nil {
			return nil, err
		}

	default:
		return nil, errors.Configuration(errors.PhaseTrack, "unknown dirty-tracking strategy %d", strategy)
	}

	if err := t.MarkClean(); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

// Strategy returns the strategy selected at construction.
func (t *Tracker) Strategy() Strategy { return t.strategy }

// PageSize returns the tracking granularity in bytes.
func (t *Tracker) PageSize() int { return t.pageSize }

// NumPages returns the number of pages covering the region.
func (t *Tracker) NumPages() int { return t.numPages }

// Len returns the tracked region length in bytes.
func (t *Tracker) Len() int { return len(t.region) }

// MarkClean resets the baseline without reporting. Pages written before
// this call are forgotten.
func (t *Tracker) MarkClean() error {
	if t.region == nil {
		return errors.New(errors.PhaseTrack, errors.KindClosed).Detail("tracker is closed").Build()
	}
	if t.kt != nil {
		return t.kt.markClean()
	}
	copy(t.shadow, t.region)
	return nil
}

// DirtyPages returns the set of pages written since the last baseline.
// Reporting does not reset the baseline: repeated calls from the same
// baseline return supersets as more pages are written. Guest-visible
// memory contents are never altered.
func (t *Tracker) DirtyPages() (*PageSet, error) {
	if t.region == nil {
		return nil, errors.New(errors.PhaseTrack, errors.KindClosed).Detail("tracker is closed").Build()
	}
	set := NewPageSet(t.numPages)
	if t.kt != nil {
		if err := t.kt.dirtyPages(set); err != nil {
			return nil, err
		}
		return set, nil
	}

	for i := 0; i < t.numPages; i++ {
		lo := i * t.pageSize
		hi := lo + t.pageSize
		if hi > len(t.region) {
			hi = len(t.region)
		}
		if !bytes.Equal(t.region[lo:hi], t.shadow[lo:hi]) {
			set.Add(i)
		}
	}
	return set, nil
}

// Close releases kernel resources held by the tracker. The tracker is
// unusable afterwards.
func (t *Tracker) Close() error {
	if t.region == nil {
		return nil
	}
	t.region = nil
	t.shadow = nil
	if t.kt != nil {
		kt := t.kt
		t.kt = nil
		return kt.close()
	}
	return nil
}
