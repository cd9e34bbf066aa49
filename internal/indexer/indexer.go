package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dshills/codecontext/internal/chunker"
	"github.com/dshills/codecontext/internal/enumerator"
	"github.com/dshills/codecontext/internal/vectorindex"
	"github.com/dshills/codecontext/pkg/types"
)

// ErrClosed is returned by operations started after Close
var ErrClosed = errors.New("coordinator closed")

// Embedder turns chunk texts into vectors. *embedder.Generator satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Options configures a Coordinator
type Options struct {
	MaxConcurrency int           // Files processed in parallel (default: runtime.NumCPU())
	Debounce       time.Duration // Quiet period for modify events (default: 1s)
	Logger         *zap.Logger
	// OnChange runs after the index was modified by a run or an event
	OnChange func()
}

// Coordinator drives indexing for one workspace. It owns the index state,
// the single-flight guard and the per-path debounce timers.
type Coordinator struct {
	enum     *enumerator.Enumerator
	chunker  *chunker.Chunker
	embedder Embedder
	index    vectorindex.Index
	logger   *zap.Logger
	onChange func()
	workers  int

	lock      IndexLock
	gate      gate
	paths     keyedMutex
	debouncer *Debouncer
	events    inflight
	closeMu   sync.Mutex // orders closed against events.Add in begin
	closed    atomic.Bool
	ready     atomic.Bool // collection ensured

	// baseCtx carries debounced runs, which outlive the event that scheduled them
	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu      sync.Mutex
	state   types.IndexState
	lastErr error
}

// New creates a Coordinator in the idle state
func New(enum *enumerator.Enumerator, ch *chunker.Chunker, emb Embedder, idx vectorindex.Index, opts Options) *Coordinator {
	workers := opts.MaxConcurrency
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	baseCtx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		enum:       enum,
		chunker:    ch,
		embedder:   emb,
		index:      idx,
		logger:     logger.With(zap.String("collection", idx.Collection())),
		onChange:   opts.OnChange,
		workers:    workers,
		baseCtx:    baseCtx,
		cancelBase: cancel,
		state:      types.StateIdle,
	}
	c.debouncer = NewDebouncer(opts.Debounce, c.fireDebounced)
	return c
}

// State returns the current index state
func (c *Coordinator) State() types.IndexState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the error that moved the coordinator into the error state
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// transition is the only writer of c.state. A paused gate overrides idle
// and indexing so the state keeps reporting paused until Resume.
func (c *Coordinator) transition(to types.IndexState, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if (to == types.StateIndexing || to == types.StateIdle) && c.gate.Paused() {
		to = types.StatePaused
	}
	if to == types.StateError {
		c.lastErr = cause
	} else if to == types.StateIndexing {
		c.lastErr = nil
	}
	if c.state == to {
		return
	}
	c.logger.Debug("index state changed", zap.String("from", string(c.state)), zap.String("to", string(to)))
	c.state = to
}

// Pause stops workers from starting new files. Files already being
// embedded or written are completed.
func (c *Coordinator) Pause() {
	c.gate.Pause()
	c.transition(types.StatePaused, nil)
}

// Resume releases paused workers. Without an active run the coordinator
// returns to error if the last run failed, otherwise to idle.
func (c *Coordinator) Resume() {
	c.gate.Resume()
	if c.lock.Held() {
		c.transition(types.StateIndexing, nil)
		return
	}
	if err := c.LastError(); err != nil {
		c.transition(types.StateError, err)
		return
	}
	c.transition(types.StateIdle, nil)
}

// StartIndexing runs an incremental pass: unchanged files are skipped and
// files that disappeared are removed from the index. A second call while a
// run is active fails with *types.AlreadyRunningError.
func (c *Coordinator) StartIndexing(ctx context.Context, sink ProgressSink) (*types.IndexingResult, error) {
	return c.run(ctx, sink, false)
}

// TriggerFullReindex re-embeds every file regardless of its stored hash
func (c *Coordinator) TriggerFullReindex(ctx context.Context, sink ProgressSink) (*types.IndexingResult, error) {
	return c.run(ctx, sink, true)
}

func (c *Coordinator) run(ctx context.Context, sink ProgressSink, full bool) (*types.IndexingResult, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if !c.lock.TryAcquire() {
		return nil, &types.AlreadyRunningError{State: c.State()}
	}
	defer c.lock.Release()

	if sink == nil {
		sink = Discard
	}
	start := time.Now()
	c.transition(types.StateIndexing, nil)
	c.logger.Info("indexing started", zap.Bool("full", full))

	result := &types.IndexingResult{}
	err := c.execute(ctx, sink, full, result)
	result.Duration = time.Since(start)
	result.Success = err == nil

	if result.ProcessedFiles > 0 || result.DeletedFiles > 0 {
		c.notifyChange()
	}

	switch {
	case err == nil:
		c.transition(types.StateIdle, nil)
		c.logger.Info("indexing finished",
			zap.Int("processed", result.ProcessedFiles),
			zap.Int("skipped", result.SkippedFiles),
			zap.Int("deleted", result.DeletedFiles),
			zap.Int("chunks", result.Chunks),
			zap.Int("errors", len(result.Errors)),
			zap.Duration("duration", result.Duration))
		return result, nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		c.transition(types.StateIdle, nil)
		c.logger.Info("indexing cancelled", zap.Int("processed", result.ProcessedFiles))
	default:
		c.transition(types.StateError, err)
		c.logger.Error("indexing failed",
			zap.Int("processed", result.ProcessedFiles),
			zap.Duration("duration", result.Duration),
			zap.Error(err))
	}
	result.Errors = append(result.Errors, err)
	return result, err
}

func (c *Coordinator) execute(ctx context.Context, sink ProgressSink, full bool, result *types.IndexingResult) error {
	reset, err := c.ensureCollection(ctx)
	if err != nil {
		return err
	}
	c.ready.Store(true)
	full = full || reset

	sink.Report(types.Progress{Phase: types.PhaseEnumerating})
	files, skipped, err := c.enum.Collect(ctx)
	if err != nil {
		return fmt.Errorf("enumerate workspace: %w", err)
	}
	for _, skip := range skipped {
		c.logger.Warn("file skipped", zap.Error(skip))
	}
	result.Errors = append(result.Errors, skipped...)

	known, err := c.index.IndexedFiles(ctx)
	if err != nil {
		return err
	}

	if err := c.processAll(ctx, sink, files, known, full, result); err != nil {
		return err
	}

	sink.Report(types.Progress{Phase: types.PhaseCleanup, Processed: len(files), Total: len(files)})
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f.RelPath] = true
	}
	stale := make([]string, 0)
	for path := range known {
		if !seen[path] {
			stale = append(stale, path)
		}
	}
	sort.Strings(stale)
	for _, path := range stale {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.deleteFile(ctx, path); err != nil {
			return err
		}
		result.DeletedFiles++
	}

	sink.Report(types.Progress{Phase: types.PhaseDone, Processed: len(files), Total: len(files)})
	return nil
}

// ensureCollection creates the collection. A collection built with another
// embedding dimension is cleared; reset reports that every file must be
// re-embedded.
func (c *Coordinator) ensureCollection(ctx context.Context) (reset bool, err error) {
	dim := c.embedder.Dimension()
	err = c.index.EnsureCollection(ctx, dim)
	if !errors.Is(err, vectorindex.ErrDimensionConflict) {
		return false, err
	}
	c.logger.Warn("embedding dimension changed, clearing collection", zap.Int("dimension", dim), zap.Error(err))
	if err := c.index.Clear(ctx); err != nil {
		return false, err
	}
	return true, c.index.EnsureCollection(ctx, dim)
}

// processAll fans files out over a bounded pool. A failing file stops the
// scheduling of new files; files already started finish.
func (c *Coordinator) processAll(ctx context.Context, sink ProgressSink, files []types.WorkspaceFile,
	known map[string]string, full bool, result *types.IndexingResult) error {

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(c.workers))

	var (
		mu   sync.Mutex
		done int
		// set before a failing worker releases its slot, so the loop
		// below never schedules past a failure
		stop atomic.Bool
	)
	total := len(files)
	sink.Report(types.Progress{Phase: types.PhaseIndexing, Total: total})

	for _, file := range files {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		if stop.Load() {
			sem.Release(1)
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			if err := c.gate.Wait(gctx); err != nil {
				return err
			}
			if stop.Load() {
				return nil
			}

			knownHash := ""
			if !full {
				knownHash = known[file.RelPath]
			}
			out, err := c.processFile(gctx, file, knownHash)
			if err != nil {
				stop.Store(true)
			}

			mu.Lock()
			defer mu.Unlock()
			done++
			out.apply(result)
			sink.Report(types.Progress{Phase: types.PhaseIndexing, Processed: done, Total: total, CurrentFile: file.RelPath})
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

type fileOutcome struct {
	processed bool
	skipped   bool
	chunks    int
	errs      []error
}

func (o fileOutcome) apply(r *types.IndexingResult) {
	switch {
	case o.processed:
		r.ProcessedFiles++
	case o.skipped:
		r.SkippedFiles++
	}
	r.Chunks += o.chunks
	r.Errors = append(r.Errors, o.errs...)
}

// processFile chunks, embeds and stores one file while holding its path
// lock. Files whose content hash equals knownHash are skipped. The returned
// error is non-nil only for failures that must stop the run.
func (c *Coordinator) processFile(ctx context.Context, file types.WorkspaceFile, knownHash string) (fileOutcome, error) {
	unlock := c.paths.Lock(file.RelPath)
	defer unlock()

	var out fileOutcome
	content, err := os.ReadFile(file.Path)
	if errors.Is(err, fs.ErrNotExist) {
		out.skipped = true
		return out, c.index.DeleteByFile(context.WithoutCancel(ctx), file.RelPath)
	}
	if err != nil {
		out.errs = append(out.errs, fmt.Errorf("read %s: %w", file.RelPath, err))
		return out, nil
	}

	hash := contentHash(content)
	if knownHash != "" && knownHash == hash {
		out.skipped = true
		return out, nil
	}

	chunks, err := c.chunker.Chunk(file, content)
	if err != nil {
		var perr *types.ParseError
		if !errors.As(err, &perr) {
			return out, fmt.Errorf("chunk %s: %w", file.RelPath, err)
		}
		c.logger.Warn("parse error, using window chunks", zap.String("file", file.RelPath), zap.Error(err))
		out.errs = append(out.errs, err)
	}

	if len(chunks) == 0 {
		out.skipped = true
		return out, c.index.DeleteByFile(context.WithoutCancel(ctx), file.RelPath)
	}

	if err := c.store(ctx, file, chunks, hash); err != nil {
		return out, err
	}
	out.processed = true
	out.chunks = len(chunks)
	return out, nil
}

// store embeds chunks, upserts them and then removes the file's records
// that are not part of the new chunk set. Neither step is cancelled by ctx.
func (c *Coordinator) store(ctx context.Context, file types.WorkspaceFile, chunks []types.CodeChunk, hash string) error {
	ctx = context.WithoutCancel(ctx)

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].EmbeddingText()
	}
	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %s: %w", file.RelPath, err)
	}

	records := make([]vectorindex.Record, len(chunks))
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		records[i] = vectorindex.NewRecord(chunk, vectors[i], hash, file.ModTime)
		ids[i] = chunk.ID
	}
	if err := c.index.Upsert(ctx, records); err != nil {
		return fmt.Errorf("upsert %s: %w", file.RelPath, err)
	}
	if err := c.index.DeleteByFileExcept(ctx, file.RelPath, ids); err != nil {
		return fmt.Errorf("prune %s: %w", file.RelPath, err)
	}
	return nil
}

func (c *Coordinator) deleteFile(ctx context.Context, rel string) error {
	unlock := c.paths.Lock(rel)
	defer unlock()
	if err := c.index.DeleteByFile(context.WithoutCancel(ctx), rel); err != nil {
		return fmt.Errorf("delete %s: %w", rel, err)
	}
	return nil
}

// HandleEvent applies one file system change. Create and delete are
// processed before returning; modify is debounced per path.
func (c *Coordinator) HandleEvent(ctx context.Context, ev types.FileEvent) error {
	if !c.begin() {
		return ErrClosed
	}
	defer c.events.Done()
	rel, err := c.enum.RelPath(ev.Path)
	if err != nil || rel == "." {
		return nil
	}
	if c.enum.Excluded(rel) {
		return nil
	}

	switch ev.Kind {
	case types.ChangeModify:
		c.debouncer.Schedule(rel)
		return nil
	case types.ChangeCreate:
		c.debouncer.Cancel(rel)
		return c.refreshPath(ctx, rel)
	case types.ChangeDelete:
		c.debouncer.Cancel(rel)
		return c.removePath(ctx, rel)
	default:
		return fmt.Errorf("unknown change kind %d", ev.Kind)
	}
}

// begin registers an event handler unless the coordinator is closed
func (c *Coordinator) begin() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed.Load() {
		return false
	}
	c.events.Add()
	return true
}

// fireDebounced runs even while Close is draining; Close waits for the
// debouncer before cancelling baseCtx.
func (c *Coordinator) fireDebounced(rel string) {
	if err := c.refreshPath(c.baseCtx, rel); err != nil {
		c.logger.Warn("debounced refresh failed", zap.String("file", rel), zap.Error(err))
	}
}

// refreshPath re-indexes one path from disk. Paths that no longer qualify
// for indexing are removed from the index.
func (c *Coordinator) refreshPath(ctx context.Context, rel string) error {
	if err := c.gate.Wait(ctx); err != nil {
		return err
	}
	if !c.ready.Load() {
		if _, err := c.ensureCollection(ctx); err != nil {
			return err
		}
		c.ready.Store(true)
	}
	logger := c.logger.With(zap.String("file", rel))

	file, ok, err := c.enum.Accept(c.enum.AbsPath(rel))
	if !ok {
		if err != nil {
			logger.Warn("file skipped", zap.Error(err))
		}
		return c.removePath(ctx, rel)
	}

	out, err := c.processFile(ctx, file, "")
	if err != nil {
		logger.Error("re-index failed", zap.Error(err))
		return err
	}
	for _, e := range out.errs {
		logger.Warn("re-index warning", zap.Error(e))
	}
	if out.processed || out.skipped {
		c.notifyChange()
	}
	logger.Debug("file re-indexed", zap.Int("chunks", out.chunks))
	return nil
}

// removePath deletes rel and, when rel was a directory, every indexed file
// below it
func (c *Coordinator) removePath(ctx context.Context, rel string) error {
	if err := c.deleteFile(ctx, rel); err != nil {
		c.logger.Error("delete failed", zap.String("file", rel), zap.Error(err))
		return err
	}
	known, err := c.index.IndexedFiles(ctx)
	if err != nil {
		return err
	}
	prefix := rel + "/"
	for path := range known {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		if err := c.deleteFile(ctx, path); err != nil {
			return err
		}
	}
	c.notifyChange()
	return nil
}

// Flush processes every pending debounced path now
func (c *Coordinator) Flush(ctx context.Context) error {
	var errs []error
	for _, rel := range c.debouncer.Flush() {
		if err := c.refreshPath(ctx, rel); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pending returns the number of debounced paths not yet processed
func (c *Coordinator) Pending() int {
	return c.debouncer.Pending()
}

// Close flushes pending changes and waits for in-flight event handlers.
// New events and runs are rejected afterwards.
func (c *Coordinator) Close(ctx context.Context) error {
	c.closeMu.Lock()
	swapped := c.closed.CompareAndSwap(false, true)
	c.closeMu.Unlock()
	if !swapped {
		return nil
	}
	defer c.cancelBase()
	// A paused gate would block the flush forever
	c.gate.Resume()

	// Handlers that started before close may still schedule timers
	if err := waitIdle(ctx, c.events.Idle()); err != nil {
		return err
	}
	err := c.Flush(ctx)
	if werr := waitIdle(ctx, c.debouncer.Idle()); werr != nil {
		return errors.Join(err, werr)
	}
	return err
}

func waitIdle(ctx context.Context, idle <-chan struct{}) error {
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) notifyChange() {
	if c.onChange != nil {
		c.onChange()
	}
}

// contentHash is the hex SHA-256 of file content
func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
