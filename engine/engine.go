package engine

import (
	"context"
	"crypto/sha256"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"

	"github.com/wippyai/wasm-rewind/errors"
	"github.com/wippyai/wasm-rewind/trace"
)

// Engine wraps a wazero runtime configured for record/replay runs. One
// engine hosts any number of sequential runs; runs never share guest
// instances or interception state.
type Engine struct {
	runtime wazero.Runtime
	config  Config
}

// New creates an engine with the given configuration.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	if cfg.EnableThreads {
		runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
	}
	return &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		config:  cfg,
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.config }

// Close releases the runtime and every module instantiated from it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Guest is a compiled guest module plus the checksum that ties traces to
// this exact binary.
type Guest struct {
	compiled wazero.CompiledModule
	checksum [sha256.Size]byte
}

// LoadGuest compiles a guest binary and fingerprints it.
func (e *Engine) LoadGuest(ctx context.Context, wasmBytes []byte) (*Guest, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Cause(err).
			Detail("compile guest").
			Build()
	}
	checksum := sha256.Sum256(wasmBytes)
	debugf("guest compiled, checksum %x", checksum[:8])
	return &Guest{compiled: compiled, checksum: checksum}, nil
}

// Checksum returns the SHA-256 of the guest binary.
func (g *Guest) Checksum() [sha256.Size]byte { return g.checksum }

// Signature builds the trace signature for recording this guest under the
// engine's configuration.
func (e *Engine) Signature(guest *Guest, settings trace.RecordSettings) (*trace.Signature, error) {
	blob, err := e.config.Snapshot()
	if err != nil {
		return nil, err
	}
	return &trace.Signature{
		Version:       trace.FormatVersion,
		GuestChecksum: guest.checksum,
		Settings:      settings,
		Config:        blob,
	}, nil
}

// HostFunc declares one host import the guest may call.
type HostFunc struct {
	// Module is the wasm import module name, e.g. "env".
	Module string
	// Name is the import field name.
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
	// Fn is the real implementation. Ignored during replay; may be nil
	// there.
	Fn api.GoModuleFunc
}

// Callee returns the qualified identifier events carry for this import.
func (h HostFunc) Callee() string {
	return h.Module + "." + h.Name
}

func debugf(format string, args ...any) {
	Logger().Sugar().Debugf(format, args...)
}
