package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/codecontext/internal/indexer"
	"github.com/dshills/codecontext/internal/searcher"
	"github.com/dshills/codecontext/pkg/types"
)

// Error codes carried in Response.Code
const (
	CodeInvalidRequest   = "invalid_request"
	CodeAlreadyRunning   = "already_running"
	CodeStoreUnavailable = "vector_store_unavailable"
	CodeProvider         = "provider_error"
	CodeConfiguration    = "configuration_error"
	CodeCanceled         = "canceled"
	CodeInternal         = "internal_error"
)

// Service is the session surface the dispatcher drives.
// *session.Session satisfies it.
type Service interface {
	StartIndexing(ctx context.Context, sink indexer.ProgressSink) (*types.IndexingResult, error)
	TriggerFullReindex(ctx context.Context, sink indexer.ProgressSink) (*types.IndexingResult, error)
	PauseIndexing()
	ResumeIndexing()
	IndexState() types.IndexState
	LastIndexError() error
	Search(ctx context.Context, query string, filters types.SearchFilters) (*searcher.SearchResponse, error)
	Suggestions(partial string, limit int) []string
	SearchHistory(limit int) []types.HistoryEntry
	ClearSearchHistory()
	FilePreview(path string, line, contextLines int) (string, error)
}

// Response is the outcome of one request
type Response struct {
	Type  Type   `json:"type"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// IndexingSummary is the data of the indexing responses
type IndexingSummary struct {
	*types.IndexingResult
	Errors []string `json:"errors,omitempty"`
}

// StateSummary is the data of index_state
type StateSummary struct {
	State     types.IndexState `json:"state"`
	LastError string           `json:"lastError,omitempty"`
}

// PreviewResult is the data of file_preview
type PreviewResult struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Preview string `json:"preview"`
}

// Dispatcher routes requests to a Service
type Dispatcher struct {
	svc    Service
	logger *zap.Logger
}

func NewDispatcher(svc Service, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{svc: svc, logger: logger}
}

// Handle decodes an envelope and dispatches it. Decoding failures are
// reported as invalid_request responses.
func (d *Dispatcher) Handle(ctx context.Context, data []byte) Response {
	req, err := Decode(data)
	if err != nil {
		var env Envelope
		_ = json.Unmarshal(data, &env)
		return failure(env.Type, err)
	}
	return d.Dispatch(ctx, req)
}

// Dispatch runs one validated request
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	start := time.Now()
	data, err := d.dispatch(ctx, req)
	logger := d.logger.With(zap.String("request", string(req.Type())), zap.Duration("duration", time.Since(start)))
	if err != nil {
		logger.Warn("request failed", zap.Error(err))
		return failure(req.Type(), err)
	}
	logger.Debug("request handled")
	return Response{Type: req.Type(), OK: true, Data: data}
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (any, error) {
	switch r := req.(type) {
	case StartIndexing:
		return summarize(d.svc.StartIndexing(ctx, nil))
	case FullReindex:
		return summarize(d.svc.TriggerFullReindex(ctx, nil))
	case PauseIndexing:
		d.svc.PauseIndexing()
		return d.state(), nil
	case ResumeIndexing:
		d.svc.ResumeIndexing()
		return d.state(), nil
	case IndexState:
		return d.state(), nil
	case Search:
		return d.svc.Search(ctx, r.Query, r.Filters)
	case Suggestions:
		return d.svc.Suggestions(r.Partial, r.Limit), nil
	case History:
		return d.svc.SearchHistory(r.Limit), nil
	case ClearHistory:
		d.svc.ClearSearchHistory()
		return nil, nil
	case FilePreview:
		preview, err := d.svc.FilePreview(r.Path, r.Line, r.ContextLines)
		if err != nil {
			return nil, err
		}
		return PreviewResult{Path: r.Path, Line: r.Line, Preview: preview}, nil
	default:
		return nil, ErrUnknownType
	}
}

func (d *Dispatcher) state() StateSummary {
	s := StateSummary{State: d.svc.IndexState()}
	if err := d.svc.LastIndexError(); err != nil {
		s.LastError = err.Error()
	}
	return s
}

func summarize(result *types.IndexingResult, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return IndexingSummary{IndexingResult: result, Errors: result.ErrorMessages()}, nil
}

func failure(typ Type, err error) Response {
	return Response{Type: typ, OK: false, Error: err.Error(), Code: ErrorCode(err)}
}

// ErrorCode classifies err into one of the Code constants
func ErrorCode(err error) string {
	var (
		validation *ValidationError
		cfgErr     *types.ConfigurationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation),
		errors.Is(err, ErrUnknownType),
		errors.Is(err, searcher.ErrEmptyQuery),
		errors.Is(err, searcher.ErrPathOutsideRoot),
		errors.Is(err, searcher.ErrLineOutOfRange):
		return CodeInvalidRequest
	case errors.Is(err, types.ErrAlreadyRunning):
		return CodeAlreadyRunning
	case errors.Is(err, types.ErrVectorStoreUnavailable):
		return CodeStoreUnavailable
	case errors.Is(err, types.ErrTransientProvider),
		errors.Is(err, types.ErrFatalProvider),
		errors.Is(err, types.ErrRetriesExhausted):
		return CodeProvider
	case errors.As(err, &cfgErr):
		return CodeConfiguration
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	default:
		return CodeInternal
	}
}
