package trace

import (
	"bufio"
	"bytes"
	stderrors "errors"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/wippyai/wasm-rewind/errors"
	"github.com/wippyai/wasm-rewind/trace/internal/binary"
)

// traceMagic identifies a trace file. The format version lives in the
// Signature event that follows it.
var traceMagic = [4]byte{'W', 'R', 'T', 'R'}

// Writer streams events to storage as they are captured: a recording that
// aborts (or crashes after a flush) leaves a valid trace truncated at the
// last fully written event. Partial results are never deleted.
type Writer struct {
	f      *os.File
	zw     *zstd.Encoder
	bw     *bufio.Writer
	depth  int
	count  int
	closed bool
}

// Create opens path for writing and emits the header and signature.
func Create(path string, sig *Signature) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.IO("create trace file", err)
	}
	w, err := newWriter(f, sig)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.f = f
	return w, nil
}

// NewWriter emits the header and signature to out. Intended for tests and
// in-memory round trips; Create is the file-backed variant.
func NewWriter(out io.Writer, sig *Signature) (*Writer, error) {
	return newWriter(out, sig)
}

func newWriter(out io.Writer, sig *Signature) (*Writer, error) {
	bw := bufio.NewWriter(out)
	if _, err := bw.Write(traceMagic[:]); err != nil {
		return nil, errors.IO("write trace header", err)
	}
	zw, err := zstd.NewWriter(bw)
	if err != nil {
		return nil, errors.IO("init zstd stream", err)
	}
	w := &Writer{zw: zw, bw: bw}

	s := *sig
	s.Version = FormatVersion
	if err := writeEvent(zw, &s); err != nil {
		return nil, err
	}
	return w, w.flush()
}

// Count returns the number of events appended so far.
func (w *Writer) Count() int { return w.count }

// Append writes one event and flushes it to storage, enforcing the same
// nesting invariant as Log.Append.
func (w *Writer) Append(e Event) error {
	if w.closed {
		return errors.New(errors.PhaseTrace, errors.KindClosed).Detail("trace writer is closed").Build()
	}
	switch e.Kind() {
	case KindSignature, KindEnd:
		return errors.InvalidData(errors.PhaseTrace, "%s is written by the writer itself", e.Kind())
	case KindEntry:
		w.depth++
	case KindLibcallEntry:
		if w.depth == 0 {
			return errors.InvalidData(errors.PhaseTrace, "libcall outside an open host call")
		}
		w.depth++
	case KindReturn, KindLibcallReturn:
		if w.depth == 0 {
			return errors.InvalidData(errors.PhaseTrace, "%s without a matching entry", e.Kind())
		}
		w.depth--
	}
	if err := writeEvent(w.zw, e); err != nil {
		return err
	}
	w.count++
	return w.flush()
}

func (w *Writer) flush() error {
	if err := w.zw.Flush(); err != nil {
		return errors.IO("flush zstd stream", err)
	}
	if err := w.bw.Flush(); err != nil {
		return errors.IO("flush trace file", err)
	}
	return nil
}

// Close finalizes the trace: writes the end-of-trace marker and closes the
// stream. Closing with an open call fails; use Abort for that.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	if w.depth != 0 {
		return errors.InvalidData(errors.PhaseTrace, "close with %d unclosed calls; abort instead", w.depth)
	}
	if err := writeEvent(w.zw, End{}); err != nil {
		return err
	}
	return w.shutdown()
}

// Abort closes the stream without the end marker, leaving a valid
// incomplete trace truncated at the last fully captured event.
func (w *Writer) Abort() error {
	if w.closed {
		return nil
	}
	return w.shutdown()
}

func (w *Writer) shutdown() error {
	w.closed = true
	if err := w.zw.Close(); err != nil {
		return errors.IO("close zstd stream", err)
	}
	if err := w.bw.Flush(); err != nil {
		return errors.IO("flush trace file", err)
	}
	if w.f != nil {
		if err := w.f.Close(); err != nil {
			return errors.IO("close trace file", err)
		}
	}
	return nil
}

// Write persists an in-memory log in one shot.
func Write(out io.Writer, log *Log) error {
	w, err := newWriter(out, log.Signature())
	if err != nil {
		return err
	}
	for _, e := range log.Events() {
		if err := w.Append(e); err != nil {
			return err
		}
	}
	if log.Complete() {
		return w.Close()
	}
	return w.Abort()
}

// ReadFile loads a trace file into memory.
func ReadFile(path string) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IO("open trace file", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a trace from in. A stream cut off mid-event yields a valid
// incomplete log truncated at the last fully decoded event, never an
// error: truncation is a legitimate terminal state of an aborted
// recording.
func Read(in io.Reader) (*Log, error) {
	var magic [4]byte
	if _, err := io.ReadFull(in, magic[:]); err != nil {
		return nil, errors.InvalidData(errors.PhaseTrace, "not a trace file: missing header")
	}
	if magic != traceMagic {
		return nil, errors.InvalidData(errors.PhaseTrace, "not a trace file: bad magic %q", magic[:])
	}

	zr, err := zstd.NewReader(in)
	if err != nil {
		return nil, errors.IO("init zstd stream", err)
	}
	defer zr.Close()

	br := binary.NewReader(zr)

	first, err := decodeEvent(br)
	if err != nil {
		return nil, errors.InvalidData(errors.PhaseTrace, "trace has no signature")
	}
	sig, ok := first.(*Signature)
	if !ok {
		return nil, errors.InvalidData(errors.PhaseTrace, "first event is %s, want signature", first.Kind())
	}
	if sig.Version != FormatVersion {
		return nil, errors.New(errors.PhaseTrace, errors.KindVersionMismatch).
			Expected(FormatVersion).
			Observed(sig.Version).
			Detail("trace format version mismatch").
			Build()
	}

	log := NewLog(sig)
	for {
		e, err := decodeEvent(br)
		if err != nil {
			if isTruncation(err) {
				// Valid incomplete trace: stop at the last full event.
				log.Abort()
				return log, nil
			}
			return nil, errors.New(errors.PhaseTrace, errors.KindInvalidData).
				Detail("event %d malformed", log.Len()).
				Cause(err).
				Build()
		}
		if e.Kind() == KindEnd {
			if err := log.Finalize(); err != nil {
				return nil, err
			}
			return log, nil
		}
		if err := log.Append(e); err != nil {
			return nil, err
		}
	}
}

func isTruncation(err error) bool {
	return stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF)
}

// ReadBytes decodes a trace held in memory.
func ReadBytes(data []byte) (*Log, error) {
	return Read(bytes.NewReader(data))
}
