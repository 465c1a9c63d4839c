//go:build !linux

package pagetrack

import "github.com/wippyai/wasm-rewind/errors"

func newSoftDirtyTracker(addr uintptr, length, pageSize int) (kernelTracker, error) {
	return nil, errors.Unsupported(errors.PhaseTrack, "soft-dirty tracking requires linux")
}

func newUffdTracker(addr uintptr, length, pageSize int) (kernelTracker, error) {
	return nil, errors.Unsupported(errors.PhaseTrack, "userfaultfd tracking requires linux")
}
