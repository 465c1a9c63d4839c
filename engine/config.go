package engine

import (
	"encoding/json"

	"github.com/wippyai/wasm-rewind/errors"
)

// configSnapshotVersion guards the serialized form of Config. Bump on any
// field change; replay refuses a snapshot it cannot parse rather than
// guessing at defaults.
const configSnapshotVersion = 1

// Config holds the engine options that affect guest-visible numeric and
// memory semantics. It is captured verbatim into every trace so a replay
// run can reconstruct the exact environment of the recording.
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// EnableThreads enables the WebAssembly threads proposal
	// (experimental). Atomic operations change memory semantics, so it
	// must match between recording and replay.
	EnableThreads bool
}

// configSnapshot is the on-wire form of Config. encoding/json emits
// struct fields in declaration order, which keeps the blob byte-stable
// for identical configs.
type configSnapshot struct {
	Version          uint32 `json:"version"`
	MemoryLimitPages uint32 `json:"memory_limit_pages"`
	EnableThreads    bool   `json:"enable_threads"`
}

// Snapshot serializes the config as the opaque blob stored in the trace
// signature.
func (c Config) Snapshot() ([]byte, error) {
	blob, err := json.Marshal(configSnapshot{
		Version:          configSnapshotVersion,
		MemoryLimitPages: c.MemoryLimitPages,
		EnableThreads:    c.EnableThreads,
	})
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Cause(err).
			Detail("serialize config snapshot").
			Build()
	}
	return blob, nil
}

// ParseSnapshot reconstructs the Config a trace was recorded under.
func ParseSnapshot(blob []byte) (Config, error) {
	var snap configSnapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return Config{}, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Cause(err).
			Detail("malformed config snapshot").
			Build()
	}
	if snap.Version != configSnapshotVersion {
		return Config{}, errors.New(errors.PhaseConfig, errors.KindVersionMismatch).
			Expected(uint32(configSnapshotVersion)).
			Observed(snap.Version).
			Detail("config snapshot version mismatch").
			Build()
	}
	return Config{
		MemoryLimitPages: snap.MemoryLimitPages,
		EnableThreads:    snap.EnableThreads,
	}, nil
}
