package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/codecontext/internal/config"
	"github.com/dshills/codecontext/internal/logging"
	"github.com/dshills/codecontext/internal/session"
)

// closeTimeout bounds the final flush of queued changes on exit
const closeTimeout = 30 * time.Second

// globalFlags are shared by every command
type globalFlags struct {
	configPath string
	root       string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:          "codecontext",
		Short:        "Semantic code search over a local workspace",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config.json")
	cmd.PersistentFlags().StringVar(&flags.root, "root", "", "workspace root (default current directory)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(flags),
		newHTTPCmd(flags),
		newIndexCmd(flags),
		newSearchCmd(flags),
		newWatchCmd(flags),
		newDoctorCmd(flags),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig reads the config file and applies the command line flags
func loadConfig(flags *globalFlags) (*config.Config, error) {
	return config.Load(flags.configPath, func(c *config.Config) {
		if flags.root != "" {
			c.WorkspaceRoot = flags.root
		}
		if flags.logLevel != "" {
			c.Log.Level = flags.logLevel
		}
	})
}

// setupLogger installs the process logger. Console output goes to stderr:
// stdout carries the MCP protocol and command results.
func setupLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.Init(logging.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Console:    cfg.Log.Console,
		Stderr:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// openSession loads configuration, sets up logging and opens a session.
// The returned cleanup closes the session and flushes the logger.
func openSession(ctx context.Context, flags *globalFlags) (*session.Session, *config.Config, *zap.Logger, func(), error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	logger, err := setupLogger(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	logger.Info("config loaded",
		zap.String("config", flags.configPath),
		zap.String("root", cfg.WorkspaceRoot),
		zap.String("embedding", cfg.Embedding.Provider),
		zap.String("vector_store", cfg.VectorStore.Provider))

	sess, err := session.Open(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, nil, err
	}
	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			logger.Warn("session close failed", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return sess, cfg, logger, cleanup, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
