package boundary

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-rewind/abi"
	"github.com/wippyai/wasm-rewind/errors"
	"github.com/wippyai/wasm-rewind/pagetrack"
	"github.com/wippyai/wasm-rewind/rawval"
	"github.com/wippyai/wasm-rewind/replay"
	"github.com/wippyai/wasm-rewind/snapshot"
	"github.com/wippyai/wasm-rewind/trace"
)

// Mode selects what a wrapped host call does on interception.
type Mode uint8

const (
	// ModeRecord invokes the real host implementation and captures the
	// crossing into the trace.
	ModeRecord Mode = iota
	// ModeReplay suppresses real host logic and reproduces the recorded
	// crossing.
	ModeReplay
)

func (m Mode) String() string {
	if m == ModeReplay {
		return "replay"
	}
	return "record"
}

// Sink receives the events a recording produces. *trace.Writer and
// *trace.Log both satisfy it.
type Sink interface {
	Append(trace.Event) error
}

// Config assembles an interception context.
type Config struct {
	Mode Mode
	// Shapes classifies callees so input buffers can be snapshotted.
	// Callees without a registered shape are treated as all-scalar.
	Shapes *abi.Registry
	// Sink receives events in record mode.
	Sink Sink
	// Session drives the trace in replay mode.
	Session *replay.Session
	// Strategy selects the dirty-page tracking backend for record mode.
	Strategy pagetrack.Strategy
	// Validate snapshots input buffer regions into Entry events.
	Validate bool
	Logger   *zap.Logger
}

// Context holds the per-instance interception state: the mode, the shape
// registry, the sink or session, and the lazily created snapshot engine
// over the instance's linear memory. One Context per guest instance;
// never shared.
type Context struct {
	mode     Mode
	shapes   *abi.Registry
	sink     Sink
	session  *replay.Session
	strategy pagetrack.Strategy
	validate bool
	snap     *snapshot.Engine
	failure  error
	log      *zap.Logger
}

// NewContext validates the configuration for its mode and returns a fresh
// interception context.
func NewContext(cfg Config) (*Context, error) {
	switch cfg.Mode {
	case ModeRecord:
		if cfg.Sink == nil {
			return nil, errors.Configuration(errors.PhaseRecord, "record mode requires a sink")
		}
	case ModeReplay:
		if cfg.Session == nil {
			return nil, errors.Configuration(errors.PhaseReplay, "replay mode requires a session")
		}
	default:
		return nil, errors.Configuration(errors.PhaseConfig, "unknown mode %d", cfg.Mode)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	shapes := cfg.Shapes
	if shapes == nil {
		shapes = abi.NewRegistry()
	}
	return &Context{
		mode:     cfg.Mode,
		shapes:   shapes,
		sink:     cfg.Sink,
		session:  cfg.Session,
		strategy: cfg.Strategy,
		validate: cfg.Validate,
		log:      log,
	}, nil
}

// Mode returns the interception mode.
func (c *Context) Mode() Mode { return c.mode }

// Err returns the first error a wrapped call failed with. The execution
// engine may swallow the panic value on its way out of the guest; this
// keeps the typed error reachable.
func (c *Context) Err() error { return c.failure }

// Close releases the snapshot engine, if one was created.
func (c *Context) Close() error {
	if c.snap == nil {
		return nil
	}
	snap := c.snap
	c.snap = nil
	return snap.Close()
}

// Wrap returns the api.GoModuleFunc to register in place of fn for the
// callee. The wrapper owns the whole crossing; errors propagate by
// panicking with the package error type, which the engine surfaces as the
// call's error.
func (c *Context) Wrap(callee string, params, results []api.ValueType, fn api.GoModuleFunc) api.GoModuleFunc {
	return api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		if c.mode == ModeReplay {
			c.replayCall(ctx, mod, callee, params, results, stack)
			return
		}
		c.recordCall(ctx, mod, callee, params, results, fn, stack)
	})
}

func (c *Context) check(err error) {
	if err != nil {
		if c.failure == nil {
			c.failure = err
		}
		panic(err)
	}
}

func (c *Context) recordCall(ctx context.Context, mod api.Module, callee string, params, results []api.ValueType, fn api.GoModuleFunc, stack []uint64) {
	args := rawval.CaptureStack(stack, params)
	c.check(c.ensureSnap(mod))

	entry := &trace.Entry{Callee: callee, Args: args}
	if c.validate {
		inputs, err := c.captureInputs(callee, args)
		c.check(err)
		entry.Inputs = inputs
	}
	c.check(c.snap.MarkClean())
	c.check(c.sink.Append(entry))
	c.log.Debug("host call", zap.String("callee", callee), zap.Int("args", len(args)))

	fn(withContext(ctx, c), mod, stack)

	outputs, err := c.snap.DiffSince()
	c.check(err)
	c.check(c.sink.Append(&trace.Return{
		Callee:  callee,
		Results: rawval.CaptureStack(stack, results),
		Outputs: outputs,
		MemSize: mod.Memory().Size(),
	}))
}

func (c *Context) replayCall(ctx context.Context, mod api.Module, callee string, params, results []api.ValueType, stack []uint64) {
	args := rawval.CaptureStack(stack, params)
	entry, err := c.session.NextCall(callee, args)
	c.check(err)
	c.log.Debug("replaying host call", zap.String("callee", callee))

	if c.session.Strict() {
		c.verifyInputs(mod, callee, entry.Inputs)
	}
	for c.session.PendingLibcall() {
		c.replayLibcall(ctx, mod)
	}

	ret, err := c.session.FinishCall()
	c.check(err)
	if len(ret.Results) != len(results) {
		c.check(errors.New(errors.PhaseReplay, errors.KindInvalidData).
			Callee(callee).
			Detail("recorded %d results for a callee declaring %d", len(ret.Results), len(results)).
			Build())
	}
	c.growTo(mod, ret.MemSize)
	c.check(snapshot.Apply(mod.Memory(), ret.Outputs))
	rawval.ToStack(ret.Results, stack)
}

// wasmPageSize is the core wasm linear memory page granularity.
const wasmPageSize = 64 * 1024

// growTo brings guest memory up to the size recorded at the matching
// Return, so output regions a growing call produced land in bounds. The
// recorded libcalls usually grow memory already; this covers hosts that
// called Grow directly.
func (c *Context) growTo(mod api.Module, memSize uint32) {
	mem := mod.Memory()
	size := mem.Size()
	if memSize <= size {
		return
	}
	delta := (memSize - size + wasmPageSize - 1) / wasmPageSize
	if _, ok := mem.Grow(delta); !ok {
		c.check(errors.Configuration(errors.PhaseReplay,
			"cannot grow guest memory from %d to recorded %d bytes", size, memSize))
	}
}

// ensureSnap lazily arms the snapshot engine over this instance's memory
// at the first interception, when the memory is guaranteed to exist.
func (c *Context) ensureSnap(mod api.Module) error {
	if c.snap != nil {
		return nil
	}
	mem := mod.Memory()
	if mem == nil {
		return errors.Configuration(errors.PhaseTrack, "guest exports no memory")
	}
	snap, err := snapshot.New(mem, c.strategy)
	if err != nil {
		return err
	}
	c.snap = snap
	c.log.Debug("snapshot engine armed",
		zap.String("strategy", c.strategy.String()),
		zap.Uint32("memory_size", mem.Size()))
	return nil
}

// captureInputs snapshots the buffer arguments named by the callee's
// shape. Zero-length buffers produce no region.
func (c *Context) captureInputs(callee string, args []rawval.Value) ([]trace.MemoryRegion, error) {
	shape, ok := c.shapes.Lookup(callee)
	if !ok {
		return nil, nil
	}
	var regions []trace.MemoryRegion
	for _, buf := range shape.Buffers {
		if buf.Ptr >= len(args) || buf.Len >= len(args) {
			return nil, errors.New(errors.PhaseCapture, errors.KindInvalidData).
				Callee(callee).
				Detail("buffer slots %d,%d exceed %d flat args", buf.Ptr, buf.Len, len(args)).
				Build()
		}
		length := args[buf.Len].U32() * buf.ElemSize
		if length == 0 {
			continue
		}
		region, err := c.snap.Snapshot(args[buf.Ptr].U32(), length)
		if err != nil {
			return nil, err
		}
		regions = append(regions, region)
	}
	return regions, nil
}

// verifyInputs compares recorded input regions against live guest memory.
func (c *Context) verifyInputs(mod api.Module, callee string, inputs []trace.MemoryRegion) {
	mem := mod.Memory()
	for i, region := range inputs {
		live, ok := mem.Read(region.Offset, uint32(len(region.Bytes)))
		if !ok {
			c.check(errors.OutOfBounds(errors.PhaseReplay,
				uint64(region.Offset), uint64(len(region.Bytes)), uint64(mem.Size())))
		}
		c.check(c.session.VerifyInput(callee, i, region, live))
	}
}
