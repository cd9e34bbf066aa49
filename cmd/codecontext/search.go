package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/codecontext/internal/searcher"
	"github.com/dshills/codecontext/pkg/types"
)

func newSearchCmd(flags *globalFlags) *cobra.Command {
	var (
		limit     int
		languages []string
		fileTypes []string
		minScore  float64
		since     string
		refresh   bool
		asJSON    bool
		preview   int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the workspace",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			filters := types.SearchFilters{
				FileTypes:     fileTypes,
				Languages:     languages,
				MinSimilarity: minScore,
				MaxResults:    limit,
			}
			if since != "" {
				from, err := parseSince(since, time.Now())
				if err != nil {
					return err
				}
				filters.DateFrom = &from
			}

			sess, _, _, cleanup, err := openSession(ctx, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if refresh {
				if _, err := sess.StartIndexing(ctx, nil); err != nil {
					return fmt.Errorf("refresh index: %w", err)
				}
			}

			resp, err := sess.Search(ctx, strings.Join(args, " "), filters)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			printResults(out, resp)
			if preview > 0 && len(resp.Results) > 0 {
				top := resp.Results[0].Chunk
				text, err := sess.FilePreview(top.FilePath, top.StartLine, preview)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\n%s:\n%s", top.FilePath, text)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", searcher.DefaultMaxResults, "maximum number of results")
	cmd.Flags().StringSliceVar(&languages, "lang", nil, "only these languages (repeatable)")
	cmd.Flags().StringSliceVar(&fileTypes, "ext", nil, "only these file extensions (repeatable)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "minimum vector similarity (0-1)")
	cmd.Flags().StringVar(&since, "since", "", "only files modified since a duration ago (72h) or an RFC 3339 time")
	cmd.Flags().BoolVar(&refresh, "refresh", true, "apply workspace changes before searching")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the response as JSON")
	cmd.Flags().IntVar(&preview, "preview", 0, "show this many lines around the top result")
	return cmd
}

// parseSince accepts a Go duration relative to now or an RFC 3339 time
func parseSince(value string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(value); err == nil {
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: want a duration or RFC 3339 time", value)
	}
	return t, nil
}

func printResults(w io.Writer, resp *searcher.SearchResponse) {
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "no results")
		return
	}
	for i, r := range resp.Results {
		label := r.Chunk.SymbolName
		if label == "" {
			label = string(r.Chunk.ChunkType)
		}
		fmt.Fprintf(w, "%2d. %.3f  %s:%d-%d  %s\n", i+1, r.FinalScore, r.Chunk.FilePath, r.Chunk.StartLine, r.Chunk.EndLine, label)
		if r.Explanation != "" {
			fmt.Fprintf(w, "    %s\n", r.Explanation)
		}
	}
	var notes []string
	if resp.UsedExpansion {
		notes = append(notes, "expanded: "+strings.Join(resp.Expanded.ExpandedTerms, ", "))
	}
	if resp.UsedReRanking {
		notes = append(notes, "reranked")
	}
	if resp.CacheHit {
		notes = append(notes, "cached")
	}
	if len(notes) > 0 {
		fmt.Fprintf(w, "(%s)\n", strings.Join(notes, "; "))
	}
}
