package replay

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"github.com/wippyai/wasm-rewind/errors"
	"github.com/wippyai/wasm-rewind/rawval"
	"github.com/wippyai/wasm-rewind/trace"
)

// State is the replay session lifecycle state.
type State uint8

const (
	// StateIdle is the state before the trace has been matched against a
	// guest.
	StateIdle State = iota
	// StateArmed means the signature gate passed and the session is
	// ready to consume calls.
	StateArmed
	// StateRunning means at least one call has been consumed.
	StateRunning
	// StateCompleted means the whole trace was consumed and Finish
	// succeeded. Terminal.
	StateCompleted
	// StateDiverged means observed execution departed from the trace.
	// Terminal.
	StateDiverged
	// StateExhausted means the guest made a call past the final recorded
	// event. Terminal.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateDiverged:
		return "diverged"
	case StateExhausted:
		return "exhausted"
	}
	return "unknown"
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateDiverged || s == StateExhausted
}

// Options configure a replay session.
type Options struct {
	// Strict additionally compares recorded input memory regions against
	// live guest memory on every call. Requires a trace recorded with
	// validation regions.
	Strict bool
}

// Session drives a recorded trace against a live guest, one call at a
// time. It owns the cursor into the event sequence and the lifecycle
// state; it never touches guest memory itself. A session belongs to a
// single guest instance and is not safe for concurrent use.
type Session struct {
	log   *trace.Log
	opts  Options
	pos   int
	calls int
	state State
	err   *errors.Error
}

// NewSession creates an idle session over the given trace.
func NewSession(log *trace.Log, opts Options) *Session {
	return &Session{log: log, opts: opts}
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Strict reports whether strict input verification is enabled.
func (s *Session) Strict() bool { return s.opts.Strict }

// Signature returns the trace signature.
func (s *Session) Signature() *trace.Signature { return s.log.Signature() }

// Err returns the terminal error, if the session diverged or exhausted.
func (s *Session) Err() error {
	if s.err == nil {
		return nil
	}
	return s.err
}

// Calls returns the number of host calls consumed so far.
func (s *Session) Calls() int { return s.calls }

// Arm verifies the trace against the guest before any execution: the
// format version must match and the guest checksum must equal the one the
// trace was recorded against. On success the session transitions to
// Armed.
func (s *Session) Arm(guestChecksum [sha256.Size]byte) error {
	if s.state != StateIdle {
		return errors.Configuration(errors.PhaseReplay, "arm called in state %s", s.state)
	}
	sig := s.log.Signature()
	if sig == nil {
		return errors.InvalidData(errors.PhaseReplay, "trace has no signature")
	}
	if sig.Version != trace.FormatVersion {
		return errors.New(errors.PhaseReplay, errors.KindVersionMismatch).
			Expected(trace.FormatVersion).
			Observed(sig.Version).
			Detail("trace format version mismatch").
			Build()
	}
	if sig.GuestChecksum != guestChecksum {
		return errors.New(errors.PhaseReplay, errors.KindGuestMismatch).
			Expected(hex.EncodeToString(sig.GuestChecksum[:])).
			Observed(hex.EncodeToString(guestChecksum[:])).
			Detail("guest binary differs from the recorded one").
			Build()
	}
	if s.opts.Strict && !sig.Settings.AddValidation {
		return errors.Configuration(errors.PhaseReplay,
			"strict replay requires a trace recorded with validation regions")
	}
	s.state = StateArmed
	return nil
}

// next returns the next non-diagnostic event without consuming it.
// Diagnostics are skipped permanently.
func (s *Session) next() (trace.Event, bool) {
	events := s.log.Events()
	for s.pos < len(events) {
		if _, ok := events[s.pos].(*trace.Diagnostic); !ok {
			return events[s.pos], true
		}
		s.pos++
	}
	return nil, false
}

func (s *Session) fail(err *errors.Error) error {
	s.state = StateDiverged
	s.err = err
	return err
}

func (s *Session) checkLive() error {
	switch s.state {
	case StateArmed, StateRunning:
		return nil
	case StateIdle:
		return errors.Configuration(errors.PhaseReplay, "session not armed")
	}
	if s.err != nil {
		return s.err
	}
	return errors.Configuration(errors.PhaseReplay, "session is %s", s.state)
}

// NextCall matches an observed host call against the next recorded Entry.
// The callee name is compared first, then each argument by index; the
// first mismatch diverges the session with the offending field. A call
// past the end of the trace exhausts the session.
func (s *Session) NextCall(callee string, observed []rawval.Value) (*trace.Entry, error) {
	if err := s.checkLive(); err != nil {
		return nil, err
	}
	s.state = StateRunning
	ev, ok := s.next()
	if !ok {
		s.state = StateExhausted
		s.err = errors.Exhausted(callee)
		return nil, s.err
	}
	entry, ok := ev.(*trace.Entry)
	if !ok {
		return nil, s.fail(errors.New(errors.PhaseReplay, errors.KindDivergence).
			Callee(callee).
			Expected(ev.Kind().String()).
			Observed("host call").
			Detail("unexpected event order").
			Build())
	}
	if entry.Callee != callee {
		return nil, s.fail(errors.Divergence(callee, "callee", -1, entry.Callee, callee))
	}
	if len(observed) != len(entry.Args) {
		return nil, s.fail(errors.Divergence(callee, "arg count", -1, len(entry.Args), len(observed)))
	}
	for i, want := range entry.Args {
		if !want.Equal(observed[i]) {
			return nil, s.fail(errors.Divergence(callee, "arg", i, want, observed[i]))
		}
	}
	s.pos++
	s.calls++
	return entry, nil
}

// VerifyInput compares a recorded input region against the live bytes at
// the same offset. Used under strict replay only.
func (s *Session) VerifyInput(callee string, index int, recorded trace.MemoryRegion, live []byte) error {
	if bytes.Equal(recorded.Bytes, live) {
		return nil
	}
	return s.fail(errors.New(errors.PhaseReplay, errors.KindDivergence).
		Callee(callee).
		Field("input region", index).
		Expected(hex.EncodeToString(recorded.Bytes)).
		Observed(hex.EncodeToString(live)).
		Detail("guest memory at %s differs from recording", recorded).
		Build())
}

// FinishCall consumes the Return closing the most recent Entry and hands
// back the recorded results and output regions to write into the guest.
func (s *Session) FinishCall() (*trace.Return, error) {
	if err := s.checkLive(); err != nil {
		return nil, err
	}
	ev, ok := s.next()
	if !ok {
		s.state = StateExhausted
		s.err = errors.Exhausted("")
		return nil, s.err
	}
	ret, ok := ev.(*trace.Return)
	if !ok {
		return nil, s.fail(errors.New(errors.PhaseReplay, errors.KindDivergence).
			Expected("return").
			Observed(ev.Kind().String()).
			Detail("unexpected event order").
			Build())
	}
	s.pos++
	return ret, nil
}

// PendingLibcall reports whether the next recorded event is a libcall
// entry, meaning the current host call issued a canonical-ABI helper call
// at this point during recording.
func (s *Session) PendingLibcall() bool {
	if s.state != StateRunning && s.state != StateArmed {
		return false
	}
	ev, ok := s.next()
	if !ok {
		return false
	}
	_, isLibcall := ev.(*trace.LibcallEntry)
	return isLibcall
}

// NextLibcall consumes the next libcall entry/return pair. Replay is
// trace-driven here: the recorded entry tells the interceptor which
// helper to re-invoke and with what arguments, and the recorded return
// carries the pointer the allocator produced during recording.
func (s *Session) NextLibcall() (*trace.LibcallEntry, *trace.LibcallReturn, error) {
	if err := s.checkLive(); err != nil {
		return nil, nil, err
	}
	ev, ok := s.next()
	if !ok {
		s.state = StateExhausted
		s.err = errors.Exhausted("")
		return nil, nil, s.err
	}
	entry, ok := ev.(*trace.LibcallEntry)
	if !ok {
		return nil, nil, s.fail(errors.New(errors.PhaseReplay, errors.KindDivergence).
			Expected("libcall entry").
			Observed(ev.Kind().String()).
			Detail("unexpected event order").
			Build())
	}
	s.pos++
	ev, ok = s.next()
	if !ok {
		s.state = StateExhausted
		s.err = errors.Exhausted(entry.Name)
		return nil, nil, s.err
	}
	ret, ok := ev.(*trace.LibcallReturn)
	if !ok {
		return nil, nil, s.fail(errors.New(errors.PhaseReplay, errors.KindDivergence).
			Callee(entry.Name).
			Expected("libcall return").
			Observed(ev.Kind().String()).
			Detail("unexpected event order").
			Build())
	}
	s.pos++
	return entry, ret, nil
}

// VerifyLibcall compares the pointer the allocator produced during replay
// against the recorded one. A different pointer means allocator state
// drifted from the recording and every subsequent address would be wrong.
func (s *Session) VerifyLibcall(name string, recorded, observed rawval.Value) error {
	if recorded.Equal(observed) {
		return nil
	}
	return s.fail(errors.Divergence(name, "result", 0, recorded, observed))
}

// Finish closes the session after the guest run ends. The session
// completes only when every recorded call was consumed; leftover events
// mean the live run ended early, which is a divergence.
func (s *Session) Finish() error {
	if s.state.Terminal() {
		if s.err != nil {
			return s.err
		}
		return nil
	}
	if s.state == StateIdle {
		return errors.Configuration(errors.PhaseReplay, "session not armed")
	}
	if ev, ok := s.next(); ok {
		return s.fail(errors.New(errors.PhaseReplay, errors.KindDivergence).
			Expected("end of guest execution").
			Observed(ev.Kind().String()).
			Detail("trace not fully consumed, %d events remain", s.log.Len()-s.pos).
			Build())
	}
	s.state = StateCompleted
	return nil
}
