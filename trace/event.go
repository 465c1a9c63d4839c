package trace

import (
	"fmt"

	"github.com/wippyai/wasm-rewind/rawval"
)

// FormatVersion is the trace format version written into every Signature.
// Replay refuses a trace with a different version rather than guessing at
// compatibility.
const FormatVersion uint32 = 1

// MemoryRegion is a deep-copied byte range of guest linear memory,
// captured atomically with the event it is attached to. Len(Bytes) > 0 and
// the range was in bounds at capture time; the live guest memory is never
// aliased.
type MemoryRegion struct {
	Bytes  []byte
	Offset uint32
}

// End returns the exclusive upper guest offset of the region.
func (r MemoryRegion) End() uint32 {
	return r.Offset + uint32(len(r.Bytes))
}

func (r MemoryRegion) String() string {
	return fmt.Sprintf("[%d, %d)", r.Offset, r.End())
}

// EventKind discriminates the event types of a trace.
type EventKind uint8

const (
	KindSignature EventKind = iota
	KindEntry
	KindReturn
	KindLibcallEntry
	KindLibcallReturn
	KindDiagnostic
	KindEnd
)

func (k EventKind) String() string {
	switch k {
	case KindSignature:
		return "signature"
	case KindEntry:
		return "entry"
	case KindReturn:
		return "return"
	case KindLibcallEntry:
		return "libcall-entry"
	case KindLibcallReturn:
		return "libcall-return"
	case KindDiagnostic:
		return "diagnostic"
	case KindEnd:
		return "end"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Event is one element of the recorded sequence.
type Event interface {
	Kind() EventKind
}

// RecordSettings are the recording options embedded in the Signature.
type RecordSettings struct {
	// AddValidation embeds input memory region snapshots into Entry
	// events so strict replay can compare them byte-for-byte.
	AddValidation bool
}

// Signature is the first event of every trace. It carries everything
// replay needs to refuse an incompatible pairing before any guest
// execution: the format version, the SHA-256 checksum of the guest
// binary, the record settings, and the engine configuration snapshot as
// an opaque blob whose only contract is byte-exact round-trip.
type Signature struct {
	Config        []byte
	GuestChecksum [32]byte
	Settings      RecordSettings
	Version       uint32
}

func (*Signature) Kind() EventKind { return KindSignature }

// Entry records one crossing into a host import: the callee's qualified
// name, the canonicalized raw arguments, and snapshots of any guest
// buffers the call reads (captured only when the trace was recorded with
// AddValidation).
type Entry struct {
	Callee string
	Args   []rawval.Value
	Inputs []MemoryRegion
}

func (*Entry) Kind() EventKind { return KindEntry }

// Return records the outcome of the matching Entry: the canonicalized raw
// results, every guest memory range the call wrote, and the guest memory
// size in bytes when the call returned. Replay grows memory to MemSize
// before applying the outputs, so a call that grew memory mid-flight
// restores byte-identically. Regions of one Return never overlap, so
// replay may apply them in any order.
type Return struct {
	Callee  string
	Results []rawval.Value
	Outputs []MemoryRegion
	MemSize uint32
}

func (*Return) Kind() EventKind { return KindReturn }

// LibcallEntry records a canonical-ABI helper call (buffer reallocation,
// string re-encoding) issued by the lowering layer on behalf of the
// enclosing host call. Libcall pairs nest fully between their enclosing
// call's Entry and Return.
type LibcallEntry struct {
	Name   string
	Args   []rawval.Value
	Inputs []MemoryRegion
}

func (*LibcallEntry) Kind() EventKind { return KindLibcallEntry }

// LibcallReturn records the outcome of the matching LibcallEntry.
type LibcallReturn struct {
	Name    string
	Results []rawval.Value
	Outputs []MemoryRegion
}

func (*LibcallReturn) Kind() EventKind { return KindLibcallReturn }

// Diagnostic is an annotation written into a trace. Replay skips
// diagnostics without consuming a call slot.
type Diagnostic struct {
	Message string
}

func (*Diagnostic) Kind() EventKind { return KindDiagnostic }

// End is the completeness marker distinguishing a cleanly finished trace
// from one truncated by abort.
type End struct{}

func (End) Kind() EventKind { return KindEnd }
