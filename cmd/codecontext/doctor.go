package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/codecontext/internal/session"
	"github.com/dshills/codecontext/internal/vectorindex"
)

func newDoctorCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the vector store and providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			sess, cfg, _, cleanup, err := openSession(ctx, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			report := sess.Health(ctx)
			out := struct {
				Root      string               `json:"root"`
				BuildMode string               `json:"build_mode"`
				Driver    string               `json:"sqlite_driver"`
				VectorExt bool                 `json:"vector_extension"`
				StoreKind string               `json:"vector_store_provider"`
				Health    session.HealthReport `json:"health"`
			}{
				Root:      sess.Root(),
				BuildMode: vectorindex.BuildMode,
				Driver:    vectorindex.DriverName,
				VectorExt: vectorindex.VectorExtensionAvailable,
				StoreKind: cfg.VectorStore.Provider,
				Health:    report,
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if !report.Healthy {
				return fmt.Errorf("unhealthy: vector store %t, embedding %t, state %s",
					report.VectorStore.Healthy, report.Embedding.Available, report.State)
			}
			return nil
		},
	}
}
