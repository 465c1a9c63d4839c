package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-rewind/engine"
	"github.com/wippyai/wasm-rewind/errors"
	"github.com/wippyai/wasm-rewind/pagetrack"
	"github.com/wippyai/wasm-rewind/trace"
)

var recordCmd = &cobra.Command{
	Use:   "record [flags] guest.wasm",
	Short: "run a guest and record its host calls into a trace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecord(cmd.Context(), args[0])
	},
}

var (
	recordOut      string
	recordEntry    string
	recordArgs     string
	recordStrategy string
	recordValidate bool
	memLimitPages  uint32
)

func init() {
	rootCmd.AddCommand(recordCmd)

	recordCmd.Flags().StringVarP(&recordOut, "output", "o", "trace.bin", "trace file to write")
	recordCmd.Flags().StringVar(&recordEntry, "entry", engine.DefaultEntry, "guest export to invoke")
	recordCmd.Flags().StringVar(&recordArgs, "args", "", "comma-separated integer arguments for the entry export")
	recordCmd.Flags().StringVar(&recordStrategy, "strategy", "shadow", "dirty-page tracking strategy (shadow, softdirty, uffd)")
	recordCmd.Flags().BoolVar(&recordValidate, "validate", false, "embed input buffer snapshots for strict replay")
	recordCmd.Flags().Uint32Var(&memLimitPages, "memory-limit-pages", 0, "guest memory limit in 64KiB pages (0 = default)")
}

func runRecord(ctx context.Context, guestPath string) error {
	strategy, err := pagetrack.ParseStrategy(recordStrategy)
	if err != nil {
		return err
	}
	entryArgs, err := parseEntryArgs(recordArgs)
	if err != nil {
		return err
	}

	wasmBytes, err := os.ReadFile(guestPath)
	if err != nil {
		return errors.IO("read guest", err)
	}

	eng, err := engine.New(ctx, engine.Config{MemoryLimitPages: memLimitPages})
	if err != nil {
		return err
	}
	defer eng.Close(ctx)

	guest, err := eng.LoadGuest(ctx, wasmBytes)
	if err != nil {
		return err
	}
	sig, err := eng.Signature(guest, trace.RecordSettings{AddValidation: recordValidate})
	if err != nil {
		return err
	}

	w, err := trace.Create(recordOut, sig)
	if err != nil {
		return err
	}

	results, runErr := eng.Record(ctx, guest, builtinHosts(), w, engine.RecordOptions{
		Strategy:      strategy,
		AddValidation: recordValidate,
		Shapes:        builtinShapes(),
		Entry:         recordEntry,
		EntryArgs:     entryArgs,
	})
	if runErr != nil {
		// The truncated trace stays on disk; a failed run must remain
		// inspectable.
		if abortErr := w.Abort(); abortErr != nil {
			fmt.Fprintf(os.Stderr, "abort trace: %v\n", abortErr)
		}
		fmt.Fprintf(os.Stderr, "recording aborted after %d events, partial trace kept at %s\n",
			w.Count(), recordOut)
		return runErr
	}
	if err := w.Close(); err != nil {
		return err
	}

	fmt.Printf("recorded %d events to %s\n", w.Count(), recordOut)
	printResults(results)
	return nil
}

func parseEntryArgs(s string) ([]uint64, error) {
	if s == "" {
		return nil, nil
	}
	var out []uint64
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 0, 64)
		if err != nil {
			return nil, errors.Configuration(errors.PhaseConfig, "bad entry argument %q", part)
		}
		out = append(out, v)
	}
	return out, nil
}

func printResults(results []uint64) {
	if len(results) == 0 {
		return
	}
	strs := make([]string, len(results))
	for i, r := range results {
		strs[i] = strconv.FormatUint(r, 10)
	}
	fmt.Printf("guest returned: %s\n", strings.Join(strs, ", "))
}
