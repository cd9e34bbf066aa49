// Package session wires the indexing and search components of one
// workspace into a single object used by every front end.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/codecontext/internal/chunker"
	"github.com/dshills/codecontext/internal/config"
	"github.com/dshills/codecontext/internal/embedder"
	"github.com/dshills/codecontext/internal/enumerator"
	"github.com/dshills/codecontext/internal/indexer"
	"github.com/dshills/codecontext/internal/llm"
	"github.com/dshills/codecontext/internal/parser"
	"github.com/dshills/codecontext/internal/searcher"
	"github.com/dshills/codecontext/internal/vectorindex"
	"github.com/dshills/codecontext/internal/watcher"
	"github.com/dshills/codecontext/pkg/types"
)

// ErrClosed is returned by operations on a closed session
var ErrClosed = errors.New("session closed")

// Embedder is what indexing and search need from the embedding layer.
// *embedder.Generator satisfies it.
type Embedder interface {
	indexer.Embedder
	searcher.Embedder
}

// Deps are the collaborators of a Session. Config, Enumerator, Chunker,
// Embedder and Index are required; LLM and Logger may be nil.
type Deps struct {
	Config     *config.Config
	Enumerator *enumerator.Enumerator
	Chunker    *chunker.Chunker
	Embedder   Embedder
	Index      vectorindex.Index
	LLM        llm.Client
	Logger     *zap.Logger
}

// Session owns the components of one workspace
type Session struct {
	cfg      *config.Config
	enum     *enumerator.Enumerator
	embedder Embedder
	index    vectorindex.Index
	llm      llm.Client
	coord    *indexer.Coordinator
	searcher *searcher.Searcher
	logger   *zap.Logger
	started  time.Time

	// closers run in order on Close; Open registers the resources it created
	closers []func() error

	mu     sync.Mutex
	closed bool
}

// New assembles a Session from prepared dependencies
func New(d Deps) (*Session, error) {
	switch {
	case d.Config == nil:
		return nil, errors.New("session: config is required")
	case d.Enumerator == nil:
		return nil, errors.New("session: enumerator is required")
	case d.Chunker == nil:
		return nil, errors.New("session: chunker is required")
	case d.Embedder == nil:
		return nil, errors.New("session: embedder is required")
	case d.Index == nil:
		return nil, errors.New("session: index is required")
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		cfg:      d.Config,
		enum:     d.Enumerator,
		embedder: d.Embedder,
		index:    d.Index,
		llm:      d.LLM,
		logger:   logger,
		started:  time.Now(),
	}
	s.searcher = searcher.New(d.Index, d.Embedder, d.LLM, d.Config.Search, logger)
	s.coord = indexer.New(d.Enumerator, d.Chunker, d.Embedder, d.Index, indexer.Options{
		MaxConcurrency: d.Config.Index.MaxConcurrency,
		Debounce:       d.Config.Debounce(),
		Logger:         logger.Named("indexer"),
		OnChange:       s.searcher.PurgeCache,
	})
	return s, nil
}

// Open builds every component from cfg. The caller must Close the session.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (sess *Session, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var closers []func() error
	defer func() {
		if err != nil {
			for _, c := range closers {
				_ = c()
			}
		}
	}()

	enum, err := enumerator.New(cfg.WorkspaceRoot, enumerator.Options{
		Exclude:     cfg.Index.Exclude,
		Extensions:  cfg.Index.Extensions,
		MaxFileSize: cfg.Index.MaxFileSize,
	})
	if err != nil {
		return nil, err
	}

	ch, err := chunker.New(chunker.Config{
		ChunkSize:     cfg.Index.ChunkSize,
		Overlap:       cfg.Index.ChunkOverlap,
		MaxChunkLines: cfg.Index.MaxChunkLines,
	}, parser.New())
	if err != nil {
		return nil, err
	}

	gen, err := embedder.New(ctx, cfg.Embedding, logger.Named("embedder"))
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	closers = append(closers, gen.Close)

	index, err := vectorindex.Open(ctx, cfg.VectorStore, vectorindex.CollectionName(enum.Root()), logger.Named("vectorindex"))
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	closers = append(closers, index.Close)

	client, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	sess, err = New(Deps{
		Config:     cfg,
		Enumerator: enum,
		Chunker:    ch,
		Embedder:   gen,
		Index:      index,
		LLM:        client,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	sess.closers = closers

	llmName := config.ProviderNone
	if client != nil {
		llmName = client.Name()
	}
	logger.Info("session opened",
		zap.String("root", enum.Root()),
		zap.String("collection", index.Collection()),
		zap.String("embedding", gen.Provider().Name()),
		zap.String("llm", llmName))
	return sess, nil
}

// Root returns the absolute workspace root
func (s *Session) Root() string {
	return s.enum.Root()
}

// Config returns the session configuration
func (s *Session) Config() *config.Config {
	return s.cfg
}

// Uptime returns the time since the session was created
func (s *Session) Uptime() time.Duration {
	return time.Since(s.started)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// StartIndexing runs an incremental indexing pass. sink may be nil.
func (s *Session) StartIndexing(ctx context.Context, sink indexer.ProgressSink) (*types.IndexingResult, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	return s.coord.StartIndexing(ctx, sink)
}

// TriggerFullReindex re-indexes every file regardless of stored hashes
func (s *Session) TriggerFullReindex(ctx context.Context, sink indexer.ProgressSink) (*types.IndexingResult, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	return s.coord.TriggerFullReindex(ctx, sink)
}

func (s *Session) PauseIndexing() {
	s.coord.Pause()
}

func (s *Session) ResumeIndexing() {
	s.coord.Resume()
}

// IndexState returns the coordinator state
func (s *Session) IndexState() types.IndexState {
	return s.coord.State()
}

// LastIndexError returns the failure that moved the index to the error state
func (s *Session) LastIndexError() error {
	return s.coord.LastError()
}

// HandleEvent forwards a file system change to the coordinator
func (s *Session) HandleEvent(ctx context.Context, ev types.FileEvent) error {
	return s.coord.HandleEvent(ctx, ev)
}

// Search runs the retrieval pipeline
func (s *Session) Search(ctx context.Context, query string, filters types.SearchFilters) (*searcher.SearchResponse, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	return s.searcher.Search(ctx, types.SearchQuery{Text: query, Filters: filters})
}

// Suggestions completes a partial query. limit <= 0 uses the default.
func (s *Session) Suggestions(partial string, limit int) []string {
	return s.searcher.Suggestions(partial, limit)
}

// SearchHistory returns up to limit recent searches, most recent first
func (s *Session) SearchHistory(limit int) []types.HistoryEntry {
	return s.searcher.History(limit)
}

func (s *Session) ClearSearchHistory() {
	s.searcher.ClearHistory()
}

// FilePreview renders the lines around line of a workspace file
func (s *Session) FilePreview(path string, line, contextLines int) (string, error) {
	return searcher.FilePreview(s.Root(), path, line, contextLines)
}

// Watch applies file system changes until ctx is done
func (s *Session) Watch(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	w, err := watcher.New(s.enum, s.coord, s.logger.Named("watcher"))
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	return w.Run(ctx)
}

// Close flushes pending changes and releases every resource. It is safe
// to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	errs := []error{s.coord.Close(ctx)}
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	err := errors.Join(errs...)
	if err != nil {
		s.logger.Warn("session closed with errors", zap.Error(err))
	} else {
		s.logger.Info("session closed")
	}
	return err
}
