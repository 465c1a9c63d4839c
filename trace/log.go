package trace

import (
	"github.com/wippyai/wasm-rewind/errors"
)

// Log is the in-memory form of a trace: the Signature plus the ordered
// event sequence. During recording it is append-only with a single writer
// (the guest's own execution thread); once finalized it is immutable.
type Log struct {
	sig       *Signature
	events    []Event
	depth     int
	complete  bool
	finalized bool
}

// NewLog creates an empty log carrying the given signature.
func NewLog(sig *Signature) *Log {
	return &Log{sig: sig}
}

// Signature returns the trace signature.
func (l *Log) Signature() *Signature { return l.sig }

// Events returns the ordered events, excluding the signature and the end
// marker.
func (l *Log) Events() []Event { return l.events }

// Len returns the number of events.
func (l *Log) Len() int { return len(l.events) }

// Complete reports whether the trace carries the end-of-trace marker.
// An incomplete trace is still valid: it is truncated at the last fully
// captured event.
func (l *Log) Complete() bool { return l.complete }

// Append adds an event, enforcing the nesting invariant: every Return
// matches an open Entry, libcall pairs appear only inside an open call,
// and pairs close in LIFO order.
func (l *Log) Append(e Event) error {
	if l.finalized {
		return errors.InvalidData(errors.PhaseTrace, "append to a finalized trace")
	}
	switch e.Kind() {
	case KindSignature:
		return errors.InvalidData(errors.PhaseTrace, "signature must not appear in the event sequence")
	case KindEnd:
		return errors.InvalidData(errors.PhaseTrace, "end marker is written by Finalize")
	case KindEntry, KindLibcallEntry:
		if e.Kind() == KindLibcallEntry && l.depth == 0 {
			return errors.InvalidData(errors.PhaseTrace, "libcall outside an open host call")
		}
		l.depth++
	case KindReturn, KindLibcallReturn:
		if l.depth == 0 {
			return errors.InvalidData(errors.PhaseTrace, "%s without a matching entry", e.Kind())
		}
		l.depth--
	}
	l.events = append(l.events, e)
	return nil
}

// Finalize marks the trace complete. A log with an open call cannot be
// finalized; abort instead leaves it incomplete.
func (l *Log) Finalize() error {
	if l.finalized {
		return nil
	}
	if l.depth != 0 {
		return errors.InvalidData(errors.PhaseTrace, "finalize with %d unclosed calls", l.depth)
	}
	l.finalized = true
	l.complete = true
	return nil
}

// Abort freezes the log in its incomplete state, truncated at the last
// fully captured event. The result is valid and loadable.
func (l *Log) Abort() {
	l.finalized = true
}
