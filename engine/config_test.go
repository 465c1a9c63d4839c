package engine_test

import (
	"bytes"
	"testing"

	"github.com/wippyai/wasm-rewind/engine"
	"github.com/wippyai/wasm-rewind/errors"
)

func TestConfigSnapshotRoundTrip(t *testing.T) {
	cfg := engine.Config{MemoryLimitPages: 256, EnableThreads: true}
	blob, err := cfg.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	parsed, err := engine.ParseSnapshot(blob)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != cfg {
		t.Fatalf("parsed = %+v, want %+v", parsed, cfg)
	}

	// Byte stability: identical configs serialize identically.
	again, err := cfg.Snapshot()
	if err != nil {
		t.Fatalf("snapshot again: %v", err)
	}
	if !bytes.Equal(blob, again) {
		t.Fatalf("snapshot not byte-stable:\n%s\n%s", blob, again)
	}
}

func TestConfigSnapshotRejectsMalformed(t *testing.T) {
	if _, err := engine.ParseSnapshot([]byte("{not json")); !errors.IsKind(err, errors.KindInvalidData) {
		t.Fatalf("err = %v, want invalid data", err)
	}
}

func TestConfigSnapshotRejectsUnknownVersion(t *testing.T) {
	_, err := engine.ParseSnapshot([]byte(`{"version":999,"memory_limit_pages":0,"enable_threads":false}`))
	if !errors.IsKind(err, errors.KindVersionMismatch) {
		t.Fatalf("err = %v, want version mismatch", err)
	}
}
