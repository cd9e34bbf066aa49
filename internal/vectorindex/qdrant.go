package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/codecontext/pkg/types"
)

const (
	qdrantScrollPage  = 256
	qdrantPayloadFile = "filePath"
)

// pointNamespace derives Qdrant point ids from chunk ids. Qdrant only
// accepts integers and UUIDs as point ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/dshills/codecontext/chunk"))

// PointID maps a chunk id to its Qdrant point id
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// QdrantIndex talks to a Qdrant server over its REST API
type QdrantIndex struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
	logger     *zap.Logger

	mu        sync.Mutex
	dimension int
}

// NewQdrant creates a client for one collection. No request is made until
// the first operation.
func NewQdrant(baseURL, apiKey, collection string, timeout time.Duration, logger *zap.Logger) *QdrantIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &QdrantIndex{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (q *QdrantIndex) Collection() string {
	return q.collection
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

// qdrantStatusError is a non-2xx answer that is not an outage
type qdrantStatusError struct {
	Status int
	Body   string
}

func (e *qdrantStatusError) Error() string {
	return fmt.Sprintf("qdrant status %d: %s", e.Status, e.Body)
}

func isNotFound(err error) bool {
	var se *qdrantStatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// do sends one request and decodes the result field into out. Transport
// failures and 5xx answers become vector store outages.
func (q *QdrantIndex) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant %s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("qdrant %s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return types.NewVectorStoreError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.NewVectorStoreError(op, err)
	}
	if resp.StatusCode >= 500 {
		return types.NewVectorStoreError(op, &qdrantStatusError{Status: resp.StatusCode, Body: string(data)})
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s: %w", op, &qdrantStatusError{Status: resp.StatusCode, Body: string(data)})
	}

	if out == nil {
		return nil
	}
	var env qdrantEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("qdrant %s: decode response: %w", op, err)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("qdrant %s: decode result: %w", op, err)
	}
	return nil
}

func (q *QdrantIndex) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(q.collection) + suffix
}

type qdrantCollectionInfo struct {
	Config struct {
		Params struct {
			Vectors struct {
				Size int `json:"size"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

// EnsureCollection creates the collection with cosine distance and a keyword
// index on the file path payload
func (q *QdrantIndex) EnsureCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid dimension %d", dim)
	}
	q.mu.Lock()
	q.dimension = dim
	q.mu.Unlock()

	var info qdrantCollectionInfo
	err := q.do(ctx, "ensure collection", http.MethodGet, q.collectionPath(""), nil, &info)
	switch {
	case err == nil:
		if size := info.Config.Params.Vectors.Size; size != dim {
			return fmt.Errorf("collection %s has dimension %d, got %d: %w", q.collection, size, dim, ErrDimensionConflict)
		}
		return nil
	case isNotFound(err):
		return q.createCollection(ctx, dim)
	default:
		return err
	}
}

func (q *QdrantIndex) createCollection(ctx context.Context, dim int) error {
	body := map[string]any{
		"vectors": map[string]any{"size": dim, "distance": "Cosine"},
	}
	if err := q.do(ctx, "create collection", http.MethodPut, q.collectionPath(""), body, nil); err != nil {
		return err
	}
	index := map[string]any{"field_name": qdrantPayloadFile, "field_schema": "keyword"}
	if err := q.do(ctx, "create payload index", http.MethodPut, q.collectionPath("/index?wait=true"), index, nil); err != nil {
		return err
	}
	q.logger.Info("qdrant collection created", zap.String("collection", q.collection), zap.Int("dimension", dim))
	return nil
}

// qdrantPayload is the stored payload. The chunk id is kept because the
// point id is derived from it.
type qdrantPayload struct {
	Payload
	ChunkID string `json:"chunkId"`
}

type qdrantPoint struct {
	ID      string        `json:"id"`
	Vector  []float32     `json:"vector,omitempty"`
	Payload qdrantPayload `json:"payload"`
}

func (q *QdrantIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]qdrantPoint, 0, len(records))
	for _, r := range records {
		points = append(points, qdrantPoint{
			ID:      PointID(r.ID),
			Vector:  r.Vector,
			Payload: qdrantPayload{Payload: r.Payload, ChunkID: r.ID},
		})
	}
	return q.do(ctx, "upsert", http.MethodPut, q.collectionPath("/points?wait=true"),
		map[string]any{"points": points}, nil)
}

func fileCondition(filePath string) map[string]any {
	return map[string]any{"key": qdrantPayloadFile, "match": map[string]any{"value": filePath}}
}

func (q *QdrantIndex) DeleteByFile(ctx context.Context, filePath string) error {
	return q.DeleteByFileExcept(ctx, filePath, nil)
}

func (q *QdrantIndex) DeleteByFileExcept(ctx context.Context, filePath string, keepIDs []string) error {
	filter := map[string]any{"must": []any{fileCondition(filePath)}}
	if len(keepIDs) > 0 {
		ids := make([]string, 0, len(keepIDs))
		for _, id := range keepIDs {
			ids = append(ids, PointID(id))
		}
		filter["must_not"] = []any{map[string]any{"has_id": ids}}
	}
	return q.do(ctx, "delete by file", http.MethodPost, q.collectionPath("/points/delete?wait=true"),
		map[string]any{"filter": filter}, nil)
}

type qdrantScored struct {
	ID      any           `json:"id"`
	Score   float64       `json:"score"`
	Payload qdrantPayload `json:"payload"`
}

// Search returns hits in Qdrant's order
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, limit int, filter *Filter) ([]ScoredRecord, error) {
	if limit <= 0 || len(vector) == 0 {
		return []ScoredRecord{}, nil
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if filter != nil {
		if filter.MinScore > 0 {
			body["score_threshold"] = filter.MinScore
		}
		if len(filter.Languages) > 0 {
			body["filter"] = map[string]any{"must": []any{
				map[string]any{"key": "language", "match": map[string]any{"any": filter.Languages}},
			}}
		}
	}

	var hits []qdrantScored
	if err := q.do(ctx, "search", http.MethodPost, q.collectionPath("/points/search"), body, &hits); err != nil {
		return nil, err
	}
	results := make([]ScoredRecord, 0, len(hits))
	for _, h := range hits {
		id := h.Payload.ChunkID
		if id == "" {
			id = fmt.Sprint(h.ID)
		}
		results = append(results, ScoredRecord{ID: id, Score: h.Score, Payload: h.Payload.Payload})
	}
	return results, nil
}

type qdrantScrollResult struct {
	Points []struct {
		Payload struct {
			FilePath string `json:"filePath"`
			FileHash string `json:"fileHash"`
		} `json:"payload"`
	} `json:"points"`
	NextPageOffset any `json:"next_page_offset"`
}

// IndexedFiles scrolls through every point of the collection. A path whose
// points disagree on the hash maps to "".
func (q *QdrantIndex) IndexedFiles(ctx context.Context) (map[string]string, error) {
	files := make(map[string]string)
	var offset any
	for {
		body := map[string]any{
			"limit":        qdrantScrollPage,
			"with_payload": []string{qdrantPayloadFile, "fileHash"},
			"with_vector":  false,
		}
		if offset != nil {
			body["offset"] = offset
		}
		var page qdrantScrollResult
		if err := q.do(ctx, "indexed files", http.MethodPost, q.collectionPath("/points/scroll"), body, &page); err != nil {
			if isNotFound(err) {
				return files, nil
			}
			return nil, err
		}
		for _, p := range page.Points {
			if p.Payload.FilePath == "" {
				continue
			}
			prev, seen := files[p.Payload.FilePath]
			switch {
			case !seen:
				files[p.Payload.FilePath] = p.Payload.FileHash
			case prev != p.Payload.FileHash:
				files[p.Payload.FilePath] = ""
			}
		}
		if page.NextPageOffset == nil {
			return files, nil
		}
		offset = page.NextPageOffset
	}
}

func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	var res struct {
		Count int `json:"count"`
	}
	err := q.do(ctx, "count", http.MethodPost, q.collectionPath("/points/count"), map[string]any{"exact": true}, &res)
	if isNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

// Clear drops the collection and recreates it empty with the last known
// dimension
func (q *QdrantIndex) Clear(ctx context.Context) error {
	if err := q.do(ctx, "clear", http.MethodDelete, q.collectionPath(""), nil, nil); err != nil && !isNotFound(err) {
		return err
	}
	q.mu.Lock()
	dim := q.dimension
	q.mu.Unlock()
	if dim == 0 {
		return nil
	}
	return q.createCollection(ctx, dim)
}

func (q *QdrantIndex) HealthCheck(ctx context.Context) bool {
	var out json.RawMessage
	return q.do(ctx, "health", http.MethodGet, "/collections", nil, &out) == nil
}

func (q *QdrantIndex) Close() error {
	q.client.CloseIdleConnections()
	return nil
}
