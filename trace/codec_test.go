package trace

import (
	"bytes"
	stderrors "errors"
	"io"
	"testing"

	"github.com/wippyai/wasm-rewind/errors"
	"github.com/wippyai/wasm-rewind/trace/internal/binary"
)

// Counts and lengths come off the wire before the data they describe, so
// the decoder must not size allocations from them alone. A corrupt count
// has to fail on the missing data, not by exhausting memory.

func TestDecodeRejectsOversizedValueCount(t *testing.T) {
	w := binary.NewWriter()
	w.Byte(byte(KindReturn))
	w.WriteName("env.fill")
	w.WriteU32(1 << 30) // value count with nothing behind it

	_, err := decodeEvent(binary.NewReader(bytes.NewReader(w.Bytes())))
	if !errors.IsKind(err, errors.KindInvalidData) {
		t.Fatalf("err = %v, want invalid data", err)
	}
}

func TestDecodeRejectsOversizedRegionCount(t *testing.T) {
	w := binary.NewWriter()
	w.Byte(byte(KindReturn))
	w.WriteName("env.fill")
	w.WriteU32(0)       // no results
	w.WriteU32(1 << 30) // region count with nothing behind it

	_, err := decodeEvent(binary.NewReader(bytes.NewReader(w.Bytes())))
	if !errors.IsKind(err, errors.KindInvalidData) {
		t.Fatalf("err = %v, want invalid data", err)
	}
}

func TestDecodeFailsFastOnShortRegionBytes(t *testing.T) {
	w := binary.NewWriter()
	w.Byte(byte(KindReturn))
	w.WriteName("env.fill")
	w.WriteU32(0)       // no results
	w.WriteU32(1)       // one region
	w.WriteU32(0)       // offset
	w.WriteU32(1 << 28) // region length, but only three bytes follow
	w.Raw([]byte{1, 2, 3})

	_, err := decodeEvent(binary.NewReader(bytes.NewReader(w.Bytes())))
	if !stderrors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err = %v, want unexpected EOF", err)
	}
}
