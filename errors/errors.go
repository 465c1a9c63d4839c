package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseConfig  Phase = "config"  // engine/tracker configuration
	PhaseTrack   Phase = "track"   // dirty-page tracking
	PhaseCapture Phase = "capture" // memory/value capture during recording
	PhaseTrace   Phase = "trace"   // trace encoding/decoding
	PhaseRecord  Phase = "record"  // recording run
	PhaseReplay  Phase = "replay"  // replay run
	PhaseIO      Phase = "io"      // trace persistence
)

// Kind categorizes the error
type Kind string

const (
	KindConfiguration   Kind = "configuration"
	KindUnsupported     Kind = "unsupported"
	KindAlignment       Kind = "alignment"
	KindOutOfBounds     Kind = "out_of_bounds"
	KindDivergence      Kind = "divergence"
	KindExhausted       Kind = "exhausted"
	KindTruncated       Kind = "truncated"
	KindInvalidData     Kind = "invalid_data"
	KindVersionMismatch Kind = "version_mismatch"
	KindGuestMismatch   Kind = "guest_mismatch"
	KindNotFound        Kind = "not_found"
	KindClosed          Kind = "closed"
	KindIO              Kind = "io_failure"
)

// Error is the structured error type used throughout the library
type Error struct {
	Expected any
	Observed any
	Cause    error
	Phase    Phase
	Kind     Kind
	Callee   string
	Field    string
	Index    int
	Detail   string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Callee != "" {
		b.WriteString(" at ")
		b.WriteString(e.Callee)
	}

	if e.Field != "" {
		fmt.Fprintf(&b, " %s[%d]", e.Field, e.Index)
	}

	if e.Expected != nil || e.Observed != nil {
		fmt.Fprintf(&b, ": expected %v, observed %v", e.Expected, e.Observed)
	}

	if e.Detail != "" {
		if e.Expected != nil || e.Observed != nil {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Callee sets the qualified callee name
func (b *Builder) Callee(name string) *Builder {
	b.err.Callee = name
	return b
}

// Field sets the field name and position within the callee's arguments or results
func (b *Builder) Field(name string, index int) *Builder {
	b.err.Field = name
	b.err.Index = index
	return b
}

// Expected sets the recorded value
func (b *Builder) Expected(v any) *Builder {
	b.err.Expected = v
	return b
}

// Observed sets the value seen during replay
func (b *Builder) Observed(v any) *Builder {
	b.err.Observed = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Configuration creates a configuration error
func Configuration(phase Phase, detail string, args ...any) *Error {
	return New(phase, KindConfiguration).Detail(detail, args...).Build()
}

// Unsupported creates an unsupported-by-platform error
func Unsupported(phase Phase, detail string, args ...any) *Error {
	return New(phase, KindUnsupported).Detail(detail, args...).Build()
}

// Alignment creates a page-alignment error
func Alignment(phase Phase, addr uintptr, pageSize int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAlignment,
		Detail: fmt.Sprintf("address %#x is not aligned to page size %d", addr, pageSize),
	}
}

// OutOfBounds creates an out-of-bounds memory capture error
func OutOfBounds(phase Phase, offset, length, size uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("region [%d, %d) exceeds memory size %d", offset, offset+length, size),
	}
}

// Divergence creates a replay divergence error identifying the differing field
func Divergence(callee, field string, index int, expected, observed any) *Error {
	return &Error{
		Phase:    PhaseReplay,
		Kind:     KindDivergence,
		Callee:   callee,
		Field:    field,
		Index:    index,
		Expected: expected,
		Observed: observed,
	}
}

// Exhausted creates an error for a guest call past the end of the trace
func Exhausted(callee string) *Error {
	return &Error{
		Phase:  PhaseReplay,
		Kind:   KindExhausted,
		Callee: callee,
		Detail: "guest issued a host call past the final recorded event",
	}
}

// Truncated creates an error for a trace cut off mid-event
func Truncated(detail string) *Error {
	return &Error{
		Phase:  PhaseTrace,
		Kind:   KindTruncated,
		Detail: detail,
	}
}

// InvalidData creates a malformed-trace error
func InvalidData(phase Phase, detail string, args ...any) *Error {
	return New(phase, KindInvalidData).Detail(detail, args...).Build()
}

// IO wraps an I/O failure, preserving the cause verbatim
func IO(op string, cause error) *Error {
	return &Error{
		Phase:  PhaseIO,
		Kind:   KindIO,
		Detail: op,
		Cause:  cause,
	}
}
