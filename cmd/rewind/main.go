package main

import (
	"fmt"
	"os"

	"github.com/wippyai/wasm-rewind/cmd/rewind/cmd"
	"github.com/wippyai/wasm-rewind/errors"
)

// Exit codes. Divergence and exhaustion get their own codes so scripts
// can tell "the guest behaved differently" apart from plumbing failures.
const (
	exitFailure   = 1
	exitDiverged  = 2
	exitExhausted = 3
	exitIO        = 4
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rewind: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.IsKind(err, errors.KindDivergence):
		return exitDiverged
	case errors.IsKind(err, errors.KindExhausted):
		return exitExhausted
	case errors.IsKind(err, errors.KindIO):
		return exitIO
	}
	return exitFailure
}
