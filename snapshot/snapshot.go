// Package snapshot captures and restores byte ranges of guest linear
// memory around host-call boundary crossings.
//
// A full copy of the guest address space per call is prohibitively
// expensive, so the engine tracks page-level writes through pagetrack and
// captures only the byte ranges inside dirty pages, with adjacent dirty
// pages coalesced into single regions. Restoration writes captured
// regions back verbatim; application is all-or-nothing per event.
package snapshot

import (
	"github.com/wippyai/wasm-rewind/errors"
	"github.com/wippyai/wasm-rewind/pagetrack"
	"github.com/wippyai/wasm-rewind/trace"
)

// Memory is the raw linear-memory view consumed from the guest execution
// engine. wazero's api.Memory satisfies it.
type Memory interface {
	// Read returns a view of memory at offset for byteCount bytes, or
	// false if the range is out of bounds.
	Read(offset, byteCount uint32) ([]byte, bool)
	// Write writes v at offset, or returns false if out of bounds.
	Write(offset uint32, v []byte) bool
	// Size returns the current memory size in bytes.
	Size() uint32
}

// Engine produces memory snapshots and dirty diffs for one guest
// instance. It owns a pagetrack.Tracker over the instance's linear memory
// and is not safe for concurrent use, matching the single-threaded
// interception model.
type Engine struct {
	mem      Memory
	tracker  *pagetrack.Tracker
	strategy pagetrack.Strategy
}

// New creates a diff engine over mem using the given tracking strategy.
// The tracker aliases the live memory buffer; it never copies it.
func New(mem Memory, strategy pagetrack.Strategy) (*Engine, error) {
	e := &Engine{mem: mem, strategy: strategy}
	if err := e.arm(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) arm() error {
	size := e.mem.Size()
	if size == 0 {
		return errors.Configuration(errors.PhaseTrack, "guest memory has zero size")
	}
	buf, ok := e.mem.Read(0, size)
	if !ok {
		return errors.OutOfBounds(errors.PhaseTrack, 0, uint64(size), uint64(size))
	}
	tracker, err := pagetrack.New(e.strategy, buf, 0)
	if err != nil {
		return err
	}
	e.tracker = tracker
	return nil
}

// Close releases the underlying tracker.
func (e *Engine) Close() error {
	if e.tracker == nil {
		return nil
	}
	t := e.tracker
	e.tracker = nil
	return t.Close()
}

// Snapshot deep-copies the current bytes of [offset, offset+length).
func (e *Engine) Snapshot(offset, length uint32) (trace.MemoryRegion, error) {
	if length == 0 {
		return trace.MemoryRegion{}, errors.InvalidData(errors.PhaseCapture, "zero-length region at offset %d", offset)
	}
	view, ok := e.mem.Read(offset, length)
	if !ok {
		return trace.MemoryRegion{}, errors.OutOfBounds(errors.PhaseCapture, uint64(offset), uint64(length), uint64(e.mem.Size()))
	}
	bytes := make([]byte, length)
	copy(bytes, view)
	return trace.MemoryRegion{Offset: offset, Bytes: bytes}, nil
}

// MarkClean resets the dirty baseline. Called once per interception,
// before the real host implementation runs.
func (e *Engine) MarkClean() error {
	if err := e.refresh(); err != nil {
		return err
	}
	return e.tracker.MarkClean()
}

// DiffSince returns the byte ranges inside pages written since the last
// MarkClean, contents read fresh at call time. Maximal runs of contiguous
// dirty pages become single regions; coalescing changes the shape of the
// ranges, never the bytes they cover. Ranges are clamped to the current
// memory size, so a short tail page yields a short final region.
//
// When memory grew since the baseline the backing buffer moved out from
// under the tracker and there is no baseline to diff against, so the
// whole memory is captured as one region. The next MarkClean re-arms the
// tracker over the new buffer.
func (e *Engine) DiffSince() ([]trace.MemoryRegion, error) {
	if size := e.mem.Size(); size != uint32(e.tracker.Len()) {
		region, err := e.Snapshot(0, size)
		if err != nil {
			return nil, err
		}
		return []trace.MemoryRegion{region}, nil
	}
	set, err := e.tracker.DirtyPages()
	if err != nil {
		return nil, err
	}
	if set.Empty() {
		return nil, nil
	}

	pageSize := uint32(e.tracker.PageSize())
	limit := e.mem.Size()

	var regions []trace.MemoryRegion
	for _, run := range set.Runs() {
		start := uint32(run[0]) * pageSize
		end := uint32(run[1]) * pageSize
		if end > limit {
			end = limit
		}
		if start >= end {
			continue
		}
		region, err := e.Snapshot(start, end-start)
		if err != nil {
			return nil, err
		}
		regions = append(regions, region)
	}
	return regions, nil
}

// refresh re-arms the tracker when the guest memory grew (and therefore
// moved) since the last baseline. DiffSince reports growth as a
// full-memory capture, so nothing written before this re-arm is lost.
func (e *Engine) refresh() error {
	if uint32(e.tracker.Len()) == e.mem.Size() {
		return nil
	}
	if err := e.tracker.Close(); err != nil {
		return err
	}
	return e.arm()
}

// Apply writes captured regions back into guest memory verbatim.
// All bounds are validated before any byte is written, so an out-of-range
// region leaves memory untouched: application is all-or-nothing.
// Regions captured from one event never overlap, making order irrelevant.
func Apply(mem Memory, regions []trace.MemoryRegion) error {
	size := mem.Size()
	for _, r := range regions {
		if len(r.Bytes) == 0 {
			return errors.InvalidData(errors.PhaseReplay, "zero-length region at offset %d", r.Offset)
		}
		end := uint64(r.Offset) + uint64(len(r.Bytes))
		if end > uint64(size) {
			return errors.OutOfBounds(errors.PhaseReplay, uint64(r.Offset), uint64(len(r.Bytes)), uint64(size))
		}
	}
	for _, r := range regions {
		if !mem.Write(r.Offset, r.Bytes) {
			return errors.OutOfBounds(errors.PhaseReplay, uint64(r.Offset), uint64(len(r.Bytes)), uint64(size))
		}
	}
	return nil
}
