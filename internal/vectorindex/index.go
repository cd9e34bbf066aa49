package vectorindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"time"

	"github.com/dshills/codecontext/pkg/types"
)

// Payload is the metadata stored next to each vector
type Payload struct {
	FilePath   string    `json:"filePath"`
	StartLine  int       `json:"startLine"`
	EndLine    int       `json:"endLine"`
	Type       string    `json:"type"`
	Language   string    `json:"language"`
	Name       string    `json:"name"`
	Content    string    `json:"content"`
	Signature  string    `json:"signature,omitempty"`
	FileHash   string    `json:"fileHash,omitempty"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Record is one vector with its id and payload. ID is the chunk id.
type Record struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// ScoredRecord is a search hit. Score is cosine similarity.
type ScoredRecord struct {
	ID      string
	Score   float64
	Payload Payload
}

// Filter narrows a search. Zero values do not filter.
type Filter struct {
	Languages []string
	MinScore  float64
}

// Index is a vector collection for one workspace
type Index interface {
	// EnsureCollection creates the collection if needed
	EnsureCollection(ctx context.Context, dim int) error
	// Upsert inserts or replaces records by id
	Upsert(ctx context.Context, records []Record) error
	// DeleteByFile removes every record whose payload.filePath matches
	DeleteByFile(ctx context.Context, filePath string) error
	// DeleteByFileExcept removes the records of filePath not listed in keepIDs
	DeleteByFileExcept(ctx context.Context, filePath string, keepIDs []string) error
	// Search returns up to limit records in the backend's similarity order
	Search(ctx context.Context, vector []float32, limit int, filter *Filter) ([]ScoredRecord, error)
	// IndexedFiles maps every indexed file path to its stored file hash.
	// Paths with records from more than one hash map to "", so incremental
	// runs re-process them and prune the stale records.
	IndexedFiles(ctx context.Context) (map[string]string, error)
	Count(ctx context.Context) (int, error)
	// Clear removes all records of the collection
	Clear(ctx context.Context) error
	HealthCheck(ctx context.Context) bool
	Collection() string
	Close() error
}

// CollectionName derives the collection for a workspace root. The same
// root always maps to the same name.
func CollectionName(root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	sum := sha256.Sum256([]byte(filepath.Clean(abs)))
	return "codecontext_" + hex.EncodeToString(sum[:])[:16]
}

// NewRecord builds the record for an embedded chunk
func NewRecord(chunk types.CodeChunk, vector []float32, fileHash string, modifiedAt time.Time) Record {
	return Record{
		ID:     chunk.ID,
		Vector: vector,
		Payload: Payload{
			FilePath:   chunk.FilePath,
			StartLine:  chunk.StartLine,
			EndLine:    chunk.EndLine,
			Type:       string(chunk.ChunkType),
			Language:   chunk.Language,
			Name:       chunk.SymbolName,
			Content:    chunk.Content,
			Signature:  chunk.Signature,
			FileHash:   fileHash,
			ModifiedAt: modifiedAt.UTC(),
		},
	}
}

// Chunk rebuilds the CodeChunk described by a stored record
func (r ScoredRecord) Chunk() types.CodeChunk {
	return types.CodeChunk{
		ID:         r.ID,
		FilePath:   r.Payload.FilePath,
		StartLine:  r.Payload.StartLine,
		EndLine:    r.Payload.EndLine,
		Language:   r.Payload.Language,
		ChunkType:  types.ChunkType(r.Payload.Type),
		SymbolName: r.Payload.Name,
		Signature:  r.Payload.Signature,
		Content:    r.Payload.Content,
	}
}

// HealthReport is the result of probing an index
type HealthReport struct {
	Healthy      bool          `json:"healthy"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	Collection   string        `json:"collection"`
	Records      int           `json:"records"`
}

// Probe checks index health and measures how long it takes to answer
func Probe(ctx context.Context, idx Index) HealthReport {
	start := time.Now()
	report := HealthReport{Collection: idx.Collection()}

	if !idx.HealthCheck(ctx) {
		report.ResponseTime = time.Since(start)
		report.Error = "health check failed"
		return report
	}
	n, err := idx.Count(ctx)
	report.ResponseTime = time.Since(start)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Healthy = true
	report.Records = n
	return report
}
