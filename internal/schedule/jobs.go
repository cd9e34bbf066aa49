package schedule

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/codecontext/internal/indexer"
	"github.com/dshills/codecontext/internal/logging"
	"github.com/dshills/codecontext/internal/vectorindex"
	"github.com/dshills/codecontext/pkg/types"
)

// Indexer starts incremental indexing runs
type Indexer interface {
	StartIndexing(ctx context.Context, sink indexer.ProgressSink) (*types.IndexingResult, error)
}

// StoreProber probes the vector store
type StoreProber interface {
	StoreHealth(ctx context.Context) vectorindex.HealthReport
}

// ReconcileJob runs an incremental index pass to pick up changes the
// watcher missed. A run already in progress is not an error.
type ReconcileJob struct {
	Indexer Indexer
}

func (ReconcileJob) Name() string { return "reconcile" }

func (j ReconcileJob) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	result, err := j.Indexer.StartIndexing(ctx, nil)
	if errors.Is(err, types.ErrAlreadyRunning) {
		logger.Info("reconcile skipped", zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("reconcile done",
		zap.Int("processed", result.ProcessedFiles),
		zap.Int("deleted", result.DeletedFiles),
		zap.Int("skipped", result.SkippedFiles),
		zap.Int("errors", len(result.Errors)))
	return nil
}

// HealthJob probes the vector store and fails when it is unhealthy
type HealthJob struct {
	Prober StoreProber
}

func (HealthJob) Name() string { return "health" }

func (j HealthJob) Run(ctx context.Context) error {
	report := j.Prober.StoreHealth(ctx)
	if !report.Healthy {
		return fmt.Errorf("%w: collection %s: %s", types.ErrVectorStoreUnavailable, report.Collection, report.Error)
	}
	logging.FromContext(ctx).Debug("vector store healthy",
		zap.String("collection", report.Collection),
		zap.Int("records", report.Records),
		zap.Duration("response_time", report.ResponseTime))
	return nil
}

// Session is what Register needs from a session
type Session interface {
	Indexer
	StoreProber
}

// Register adds the reconcile and health jobs on their specs. Empty specs
// leave a job disabled.
func Register(s Scheduler, sess Session, reconcileSpec, healthSpec string) error {
	if err := s.AddJob(ReconcileJob{Indexer: sess}, reconcileSpec); err != nil {
		return fmt.Errorf("schedule reconcile: %w", err)
	}
	if err := s.AddJob(HealthJob{Prober: sess}, healthSpec); err != nil {
		return fmt.Errorf("schedule health: %w", err)
	}
	return nil
}
