package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/codecontext/internal/schedule"
	"github.com/dshills/codecontext/pkg/types"
)

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var scheduled bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Index the workspace, then keep the index current until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			sess, cfg, logger, cleanup, err := openSession(ctx, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := sess.StartIndexing(ctx, progressPrinter(cmd.ErrOrStderr()))
			if err != nil && !errors.Is(err, types.ErrAlreadyRunning) {
				return err
			}
			if result != nil {
				if err := printIndexResult(cmd.OutOrStdout(), result, false); err != nil {
					return err
				}
			}

			if scheduled {
				scheduler := schedule.NewCronScheduler(logger)
				if err := schedule.Register(scheduler, sess, cfg.Schedule.ReconcileSpec, cfg.Schedule.HealthSpec); err != nil {
					return err
				}
				scheduler.Start(ctx)
				defer scheduler.Stop()
			}

			logger.Info("watching workspace", zap.String("root", sess.Root()))
			return sess.Watch(ctx)
		},
	}
	cmd.Flags().BoolVar(&scheduled, "schedule", true, "run the periodic reconcile and health jobs")
	return cmd
}
