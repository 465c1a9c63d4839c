package engine

import (
	"context"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/wasm-rewind/abi"
	"github.com/wippyai/wasm-rewind/boundary"
	"github.com/wippyai/wasm-rewind/errors"
	"github.com/wippyai/wasm-rewind/pagetrack"
	"github.com/wippyai/wasm-rewind/replay"
	"github.com/wippyai/wasm-rewind/trace"
)

// DefaultEntry is the guest export invoked when a run names none.
const DefaultEntry = "_start"

// RecordOptions configure a recording run.
type RecordOptions struct {
	// Strategy selects the dirty-page tracking backend.
	Strategy pagetrack.Strategy
	// AddValidation embeds input buffer snapshots for later strict
	// replay.
	AddValidation bool
	// Shapes classifies callees so buffer arguments can be captured.
	Shapes *abi.Registry
	// Entry is the guest export to invoke; DefaultEntry when empty.
	Entry string
	// EntryArgs are the raw arguments passed to the entry export.
	EntryArgs []uint64
}

// ReplayOptions configure a replay run.
type ReplayOptions struct {
	// Strict additionally compares recorded input memory byte-for-byte.
	Strict    bool
	Entry     string
	EntryArgs []uint64
}

// Record executes the guest once with every host import intercepted,
// streaming one Entry and one Return per host call into sink. The sink
// sees the events in execution order; a trace.Writer persists them as
// they arrive, so a crashed run still leaves a loadable truncated trace.
// Returns the entry export's results.
func (e *Engine) Record(ctx context.Context, guest *Guest, hosts []HostFunc, sink boundary.Sink, opts RecordOptions) ([]uint64, error) {
	bctx, err := boundary.NewContext(boundary.Config{
		Mode:     boundary.ModeRecord,
		Shapes:   opts.Shapes,
		Sink:     sink,
		Strategy: opts.Strategy,
		Validate: opts.AddValidation,
		Logger:   Logger(),
	})
	if err != nil {
		return nil, err
	}
	defer bctx.Close()
	return e.run(ctx, guest, hosts, bctx, errors.PhaseRecord, opts.Entry, opts.EntryArgs)
}

// Replay executes the guest once against a recorded trace. Host imports
// are registered with their real signatures but their implementations
// never run; every call is served from the trace. Returns nil only when
// the session completes, meaning the guest consumed the whole trace and
// never diverged from it. Returns the entry export's results.
func (e *Engine) Replay(ctx context.Context, guest *Guest, hosts []HostFunc, log *trace.Log, opts ReplayOptions) ([]uint64, error) {
	if sig := log.Signature(); sig != nil && len(sig.Config) > 0 {
		// Gate on the config snapshot before any guest execution.
		if _, err := ParseSnapshot(sig.Config); err != nil {
			return nil, err
		}
	}
	session := replay.NewSession(log, replay.Options{Strict: opts.Strict})
	if err := session.Arm(guest.checksum); err != nil {
		return nil, err
	}

	bctx, err := boundary.NewContext(boundary.Config{
		Mode:    boundary.ModeReplay,
		Session: session,
		Logger:  Logger(),
	})
	if err != nil {
		return nil, err
	}
	defer bctx.Close()

	results, err := e.run(ctx, guest, hosts, bctx, errors.PhaseReplay, opts.Entry, opts.EntryArgs)
	if err != nil {
		return results, err
	}
	return results, session.Finish()
}

// run instantiates the wrapped host modules and the guest, then invokes
// the entry export.
func (e *Engine) run(ctx context.Context, guest *Guest, hosts []HostFunc, bctx *boundary.Context, phase errors.Phase, entry string, entryArgs []uint64) ([]uint64, error) {
	if entry == "" {
		entry = DefaultEntry
	}

	var moduleNames []string
	byModule := make(map[string][]HostFunc)
	for _, h := range hosts {
		if _, ok := byModule[h.Module]; !ok {
			moduleNames = append(moduleNames, h.Module)
		}
		byModule[h.Module] = append(byModule[h.Module], h)
	}

	for _, name := range moduleNames {
		builder := e.runtime.NewHostModuleBuilder(name)
		for _, h := range byModule[name] {
			builder.NewFunctionBuilder().
				WithGoModuleFunction(bctx.Wrap(h.Callee(), h.Params, h.Results, h.Fn), h.Params, h.Results).
				Export(h.Name)
		}
		hostMod, err := builder.Instantiate(ctx)
		if err != nil {
			return nil, errors.New(phase, errors.KindConfiguration).
				Cause(err).
				Detail("instantiate host module %q", name).
				Build()
		}
		defer hostMod.Close(ctx)
	}

	mod, err := e.runtime.InstantiateModule(ctx, guest.compiled,
		wazero.NewModuleConfig().WithName("guest").WithStartFunctions())
	if err != nil {
		return nil, errors.New(phase, errors.KindConfiguration).
			Cause(err).
			Detail("instantiate guest").
			Build()
	}
	defer mod.Close(ctx)

	fn := mod.ExportedFunction(entry)
	if fn == nil {
		return nil, errors.New(phase, errors.KindNotFound).
			Detail("guest does not export %q", entry).
			Build()
	}

	debugf("invoking %s with %d args", entry, len(entryArgs))
	results, err := fn.Call(ctx, entryArgs...)
	if err != nil {
		// Interceptor failures travel out of the guest as wrapped
		// panics; prefer the typed error over wazero's rendering of it.
		if bErr := bctx.Err(); bErr != nil {
			return nil, bErr
		}
		return nil, errors.New(phase, errors.KindInvalidData).
			Cause(err).
			Detail("guest trapped").
			Build()
	}
	return results, nil
}
