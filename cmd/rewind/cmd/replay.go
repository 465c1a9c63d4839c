package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-rewind/engine"
	"github.com/wippyai/wasm-rewind/errors"
	"github.com/wippyai/wasm-rewind/trace"
)

var replayCmd = &cobra.Command{
	Use:   "replay [flags] guest.wasm",
	Short: "re-run a guest against a recorded trace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplay(cmd.Context(), args[0])
	},
}

var (
	replayTrace  string
	replayEntry  string
	replayArgs   string
	replayStrict bool
)

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVarP(&replayTrace, "trace", "t", "trace.bin", "trace file to replay")
	replayCmd.Flags().StringVar(&replayEntry, "entry", engine.DefaultEntry, "guest export to invoke")
	replayCmd.Flags().StringVar(&replayArgs, "args", "", "comma-separated integer arguments for the entry export")
	replayCmd.Flags().BoolVar(&replayStrict, "strict", false, "compare recorded input memory byte-for-byte")
}

func runReplay(ctx context.Context, guestPath string) error {
	log, err := trace.ReadFile(replayTrace)
	if err != nil {
		return err
	}
	if !log.Complete() {
		fmt.Fprintf(os.Stderr, "warning: trace is truncated at %d events\n", log.Len())
	}
	entryArgs, err := parseEntryArgs(replayArgs)
	if err != nil {
		return err
	}

	wasmBytes, err := os.ReadFile(guestPath)
	if err != nil {
		return errors.IO("read guest", err)
	}

	// Reconstruct the engine exactly as configured during recording.
	cfg, err := engine.ParseSnapshot(log.Signature().Config)
	if err != nil {
		return err
	}
	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close(ctx)

	guest, err := eng.LoadGuest(ctx, wasmBytes)
	if err != nil {
		return err
	}

	// Imports register with their real signatures; implementations never
	// run during replay.
	hosts := builtinHosts()
	for i := range hosts {
		hosts[i].Fn = nil
	}

	results, err := eng.Replay(ctx, guest, hosts, log, engine.ReplayOptions{
		Strict:    replayStrict,
		Entry:     replayEntry,
		EntryArgs: entryArgs,
	})
	if err != nil {
		return err
	}

	fmt.Printf("replay completed, %d events consumed\n", log.Len())
	printResults(results)
	return nil
}
