package boundary

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-rewind/abi"
	"github.com/wippyai/wasm-rewind/errors"
	"github.com/wippyai/wasm-rewind/rawval"
	"github.com/wippyai/wasm-rewind/trace"
)

// ctxKey carries the interception context into wrapped host
// implementations through their context.Context.
type ctxKey struct{}

func withContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the interception context a wrapped host
// implementation was invoked under.
func FromContext(ctx context.Context) (*Context, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Context)
	return c, ok
}

// Realloc invokes the guest's canonical-ABI allocator on behalf of a host
// implementation that needs guest memory for its results. Host code calls
// it with the context it was invoked with; the interception context rides
// along on that context and records the libcall.
func Realloc(ctx context.Context, mod api.Module, oldPtr, oldSize, align, newSize uint32) (uint32, error) {
	c, ok := FromContext(ctx)
	if !ok {
		return 0, errors.Configuration(errors.PhaseRecord, "realloc outside an intercepted host call")
	}
	return c.Realloc(ctx, mod, oldPtr, oldSize, align, newSize)
}

// Realloc records the allocator invocation as a nested libcall
// entry/return pair inside the current host call. Record mode only:
// during replay the interceptor re-issues recorded libcalls itself and
// never runs host logic that would reach here.
func (c *Context) Realloc(ctx context.Context, mod api.Module, oldPtr, oldSize, align, newSize uint32) (uint32, error) {
	if c.mode != ModeRecord {
		return 0, errors.Configuration(errors.PhaseReplay, "realloc outside record mode")
	}
	name, fn := allocator(mod)
	if fn == nil {
		return 0, errors.New(errors.PhaseRecord, errors.KindNotFound).
			Detail("guest exports no allocator").
			Build()
	}

	args := []rawval.Value{
		rawval.I32(oldPtr), rawval.I32(oldSize), rawval.I32(align), rawval.I32(newSize),
	}
	if err := c.sink.Append(&trace.LibcallEntry{Name: name, Args: args}); err != nil {
		return 0, err
	}

	out, err := fn.Call(ctx, uint64(oldPtr), uint64(oldSize), uint64(align), uint64(newSize))
	if err != nil {
		return 0, errors.New(errors.PhaseRecord, errors.KindInvalidData).
			Callee(name).
			Cause(err).
			Detail("allocator call failed").
			Build()
	}
	if len(out) != 1 {
		return 0, errors.InvalidData(errors.PhaseRecord, "allocator returned %d values", len(out))
	}
	ptr := uint32(out[0])

	if err := c.sink.Append(&trace.LibcallReturn{
		Name:    name,
		Results: []rawval.Value{rawval.I32(ptr)},
	}); err != nil {
		return 0, err
	}
	return ptr, nil
}

// replayLibcall re-issues one recorded allocator call so the guest
// allocator's internal state advances exactly as it did during recording,
// then verifies the returned pointer. A drifted pointer would make every
// recorded address wrong, so it diverges immediately. The allocator's
// memory writes are superseded by the enclosing Return's output regions.
func (c *Context) replayLibcall(ctx context.Context, mod api.Module) {
	entry, ret, err := c.session.NextLibcall()
	c.check(err)

	fn := mod.ExportedFunction(entry.Name)
	if fn == nil {
		c.check(errors.New(errors.PhaseReplay, errors.KindNotFound).
			Callee(entry.Name).
			Detail("recorded allocator not exported by guest").
			Build())
	}
	raw := make([]uint64, len(entry.Args))
	for i, a := range entry.Args {
		raw[i] = a.Bits()
	}
	out, err := fn.Call(ctx, raw...)
	if err != nil {
		c.check(errors.New(errors.PhaseReplay, errors.KindInvalidData).
			Callee(entry.Name).
			Cause(err).
			Detail("allocator call failed during replay").
			Build())
	}
	if len(ret.Results) > 0 {
		var observed rawval.Value
		if len(out) > 0 {
			observed = rawval.I32(uint32(out[0]))
		}
		c.check(c.session.VerifyLibcall(entry.Name, ret.Results[0], observed))
	}
}

// allocator probes the guest for a canonical-ABI allocator export.
func allocator(mod api.Module) (string, api.Function) {
	for _, name := range abi.AllocatorExports() {
		if fn := mod.ExportedFunction(name); fn != nil {
			return name, fn
		}
	}
	return "", nil
}
