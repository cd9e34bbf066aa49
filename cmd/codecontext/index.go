package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/codecontext/internal/indexer"
	"github.com/dshills/codecontext/pkg/types"
)

func newIndexCmd(flags *globalFlags) *cobra.Command {
	var (
		full     bool
		asJSON   bool
		progress bool
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the workspace once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			sess, _, _, cleanup, err := openSession(ctx, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			var sink indexer.ProgressSink
			if progress {
				sink = progressPrinter(cmd.ErrOrStderr())
			}

			run := sess.StartIndexing
			if full {
				run = sess.TriggerFullReindex
			}
			result, err := run(ctx, sink)
			if err != nil {
				return err
			}
			return printIndexResult(cmd.OutOrStdout(), result, asJSON)
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "drop the index and re-embed every file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&progress, "progress", true, "report progress on stderr")
	return cmd
}

func progressPrinter(w io.Writer) indexer.ProgressSink {
	return indexer.SinkFunc(func(p types.Progress) {
		switch p.Phase {
		case types.PhaseIndexing:
			fmt.Fprintf(w, "\r[%d/%d] %-60.60s", p.Processed, p.Total, p.CurrentFile)
		case types.PhaseDone:
			fmt.Fprintln(w)
		default:
			fmt.Fprintf(w, "%s...\n", p.Phase)
		}
	})
}

func printIndexResult(w io.Writer, result *types.IndexingResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*types.IndexingResult
			Errors []string `json:"errors,omitempty"`
		}{result, result.ErrorMessages()})
	}
	fmt.Fprintf(w, "processed %d, skipped %d, deleted %d files; %d chunks in %s\n",
		result.ProcessedFiles, result.SkippedFiles, result.DeletedFiles, result.Chunks, result.Duration.Round(time.Millisecond))
	for _, msg := range result.ErrorMessages() {
		fmt.Fprintf(w, "  error: %s\n", msg)
	}
	return nil
}
