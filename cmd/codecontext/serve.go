package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/codecontext/internal/config"
	"github.com/dshills/codecontext/internal/mcp"
	"github.com/dshills/codecontext/internal/schedule"
	"github.com/dshills/codecontext/internal/session"
	"github.com/dshills/codecontext/pkg/types"
)

// backgroundFlags control the work a long running command does besides
// serving requests
type backgroundFlags struct {
	index    bool
	watch    bool
	schedule bool
}

func (b *backgroundFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&b.index, "index", true, "index the workspace on startup")
	cmd.Flags().BoolVar(&b.watch, "watch", true, "watch the workspace and apply changes")
	cmd.Flags().BoolVar(&b.schedule, "schedule", true, "run the periodic reconcile and health jobs")
}

// start launches the enabled background work. The returned stop function
// halts the scheduler; the index and watch goroutines end with ctx.
func (b *backgroundFlags) start(ctx context.Context, sess *session.Session, cfg *config.Config, logger *zap.Logger) (func(), error) {
	if b.index {
		go func() {
			result, err := sess.StartIndexing(ctx, nil)
			switch {
			case errors.Is(err, types.ErrAlreadyRunning), errors.Is(err, context.Canceled):
			case err != nil:
				logger.Error("initial index failed", zap.Error(err))
			default:
				logger.Info("initial index done",
					zap.Int("processed", result.ProcessedFiles),
					zap.Int("skipped", result.SkippedFiles),
					zap.Duration("duration", result.Duration))
			}
		}()
	}
	if b.watch {
		go func() {
			if err := sess.Watch(ctx); err != nil && !errors.Is(err, session.ErrClosed) {
				logger.Error("watcher stopped", zap.Error(err))
			}
		}()
	}

	stop := func() {}
	if b.schedule {
		scheduler := schedule.NewCronScheduler(logger)
		if err := schedule.Register(scheduler, sess, cfg.Schedule.ReconcileSpec, cfg.Schedule.HealthSpec); err != nil {
			return nil, err
		}
		scheduler.Start(ctx)
		stop = scheduler.Stop
	}
	return stop, nil
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	bg := &backgroundFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workspace to MCP clients over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			sess, cfg, logger, cleanup, err := openSession(ctx, flags)
			if err != nil {
				return err
			}
			defer cleanup()
			logger.Info("codecontext MCP server starting", zap.String("version", version))

			stop, err := bg.start(ctx, sess, cfg, logger)
			if err != nil {
				return err
			}
			defer stop()

			err = mcp.NewServer(sess, logger).Serve(ctx, os.Stdin, os.Stdout)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}
	bg.register(cmd)
	return cmd
}
