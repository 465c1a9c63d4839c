package cmd

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"time"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-rewind/abi"
	"github.com/wippyai/wasm-rewind/engine"
)

// builtinHosts is the demo "env" host library, enough to record and
// replay a guest without writing any host code: a wall clock, an entropy
// source, and a logger. The first two are nondeterministic on purpose —
// they are what makes replay interesting.
func builtinHosts() []engine.HostFunc {
	return []engine.HostFunc{
		{
			Module: "env", Name: "now_ms",
			Results: []api.ValueType{api.ValueTypeI64},
			Fn: func(_ context.Context, _ api.Module, stack []uint64) {
				stack[0] = uint64(time.Now().UnixMilli())
			},
		},
		{
			Module: "env", Name: "random_fill",
			Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
			Fn: func(_ context.Context, mod api.Module, stack []uint64) {
				ptr, length := uint32(stack[0]), uint32(stack[1])
				buf, ok := mod.Memory().Read(ptr, length)
				if !ok {
					panic(fmt.Errorf("env.random_fill: [%d, %d) out of bounds", ptr, ptr+length))
				}
				if _, err := rand.Read(buf); err != nil {
					panic(fmt.Errorf("env.random_fill: %w", err))
				}
			},
		},
		{
			Module: "env", Name: "log",
			Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
			Fn: func(_ context.Context, mod api.Module, stack []uint64) {
				ptr, length := uint32(stack[0]), uint32(stack[1])
				msg, ok := mod.Memory().Read(ptr, length)
				if !ok {
					panic(fmt.Errorf("env.log: [%d, %d) out of bounds", ptr, ptr+length))
				}
				fmt.Fprintf(os.Stderr, "[guest] %s\n", msg)
			},
		},
	}
}

// builtinShapes classifies the demo imports whose arguments carry guest
// buffers the call reads.
func builtinShapes() *abi.Registry {
	shapes := abi.NewRegistry()
	shapes.Register(abi.ShapeOf("env.log", []wit.Type{wit.String{}}, nil))
	return shapes
}
