package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/codecontext/internal/embedder"
	"github.com/dshills/codecontext/internal/vectorindex"
	"github.com/dshills/codecontext/pkg/types"
)

const healthTimeout = 5 * time.Second

// ProviderStatus describes an embedding or LLM backend
type ProviderStatus struct {
	Name      string `json:"name"`
	Model     string `json:"model,omitempty"`
	Enabled   bool   `json:"enabled"`
	Available bool   `json:"available"`
}

// HealthReport summarizes the state of every component
type HealthReport struct {
	Healthy        bool                     `json:"healthy"`
	State          types.IndexState         `json:"state"`
	LastError      string                   `json:"last_error,omitempty"`
	PendingChanges int                      `json:"pending_changes"`
	VectorStore    vectorindex.HealthReport `json:"vector_store"`
	Embedding      ProviderStatus           `json:"embedding"`
	LLM            ProviderStatus           `json:"llm"`
	CachedQueries  int                      `json:"cached_queries"`
	HistoryEntries int                      `json:"history_entries"`
	Uptime         time.Duration            `json:"uptime"`
}

// availability is implemented by embedders that can probe their backend
type availability interface {
	IsAvailable(ctx context.Context) bool
}

// providerInfo is implemented by embedders that expose their provider
type providerInfo interface {
	Provider() embedder.Provider
}

// Health probes the vector store and the embedding backend. The report is
// healthy when both respond and the index is not in the error state.
func (s *Session) Health(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	report := HealthReport{
		State:          s.coord.State(),
		PendingChanges: s.coord.Pending(),
		VectorStore:    s.probeStore(ctx),
		Embedding:      ProviderStatus{Name: "custom", Enabled: true, Available: true},
		LLM:            ProviderStatus{Name: "none"},
		CachedQueries:  s.searcher.CacheLen(),
		HistoryEntries: len(s.searcher.History(0)),
		Uptime:         s.Uptime(),
	}
	if err := s.coord.LastError(); err != nil {
		report.LastError = err.Error()
	}

	if p, ok := s.embedder.(providerInfo); ok {
		report.Embedding.Name = p.Provider().Name()
		report.Embedding.Model = p.Provider().Model()
	}
	if a, ok := s.embedder.(availability); ok {
		report.Embedding.Available = a.IsAvailable(ctx)
	}
	if s.llm != nil {
		report.LLM = ProviderStatus{Name: s.llm.Name(), Model: s.llm.Model(), Enabled: true, Available: true}
	}

	report.Healthy = report.VectorStore.Healthy &&
		report.Embedding.Available &&
		report.State != types.StateError
	return report
}

// StoreHealth probes only the vector store
func (s *Session) StoreHealth(ctx context.Context) vectorindex.HealthReport {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return s.probeStore(ctx)
}

func (s *Session) probeStore(ctx context.Context) vectorindex.HealthReport {
	report := vectorindex.Probe(ctx, s.index)
	if !report.Healthy {
		s.logger.Warn("vector store unhealthy",
			zap.String("collection", report.Collection),
			zap.Duration("response_time", report.ResponseTime),
			zap.String("error", report.Error))
	}
	return report
}
