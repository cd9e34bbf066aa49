package vectorindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/codecontext/pkg/types"
)

// ErrDimensionConflict is returned when vectors do not match the dimension
// the collection was created with
var ErrDimensionConflict = errors.New("vector dimension conflict")

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// SQLiteIndex stores vectors in an embedded SQLite database. Several
// collections can share one database file.
type SQLiteIndex struct {
	db         *sql.DB
	collection string
	logger     *zap.Logger

	mu        sync.RWMutex
	dimension int

	closeOnce sync.Once
	closeErr  error
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single writer. This also keeps one shared connection for :memory:
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// NewSQLite opens (or creates) the database at dbPath and applies pending
// migrations. Use MemoryPath for a throwaway index.
func NewSQLite(ctx context.Context, dbPath, collection string, logger *zap.Logger) (*SQLiteIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, types.NewVectorStoreError("open", err)
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, types.NewVectorStoreError("migrate", err)
	}

	logger.Debug("sqlite vector index opened",
		zap.String("path", dbPath),
		zap.String("collection", collection),
		zap.String("build_mode", BuildMode))

	return &SQLiteIndex{db: db, collection: collection, logger: logger}, nil
}

// storeErr maps a database failure to a vector store outage. Context
// errors are passed through unchanged.
func storeErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return types.NewVectorStoreError(op, err)
}

func (s *SQLiteIndex) Collection() string {
	return s.collection
}

// EnsureCollection registers the collection with its vector dimension. An
// existing collection with another dimension yields ErrDimensionConflict.
func (s *SQLiteIndex) EnsureCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid dimension %d", dim)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (name, dimension) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		s.collection, dim)
	if err != nil {
		return storeErr("ensure collection", err)
	}

	var existing int
	if err := s.db.QueryRowContext(ctx,
		`SELECT dimension FROM collections WHERE name = ?`, s.collection).Scan(&existing); err != nil {
		return storeErr("ensure collection", err)
	}
	if existing != dim {
		return fmt.Errorf("collection %s has dimension %d, got %d: %w", s.collection, existing, dim, ErrDimensionConflict)
	}

	s.mu.Lock()
	s.dimension = dim
	s.mu.Unlock()
	return nil
}

func (s *SQLiteIndex) checkDimension(records []Record) error {
	s.mu.RLock()
	dim := s.dimension
	s.mu.RUnlock()
	if dim == 0 {
		return nil
	}
	for _, r := range records {
		if len(r.Vector) != dim {
			return fmt.Errorf("record %s has %d dimensions, collection has %d: %w", r.ID, len(r.Vector), dim, ErrDimensionConflict)
		}
	}
	return nil
}

const upsertRecordSQL = `
	INSERT INTO records (
		collection, id, file_path, start_line, end_line, chunk_type, language, name,
		content, signature, file_hash, modified_at, vector, dimension, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(collection, id) DO UPDATE SET
		file_path = excluded.file_path,
		start_line = excluded.start_line,
		end_line = excluded.end_line,
		chunk_type = excluded.chunk_type,
		language = excluded.language,
		name = excluded.name,
		content = excluded.content,
		signature = excluded.signature,
		file_hash = excluded.file_hash,
		modified_at = excluded.modified_at,
		vector = excluded.vector,
		dimension = excluded.dimension,
		updated_at = excluded.updated_at
`

// Upsert writes all records in one transaction
func (s *SQLiteIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.checkDimension(records); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertRecordSQL)
	if err != nil {
		return storeErr("upsert", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, r := range records {
		p := r.Payload
		_, err := stmt.ExecContext(ctx,
			s.collection, r.ID, p.FilePath, p.StartLine, p.EndLine, p.Type, p.Language, p.Name,
			p.Content, p.Signature, p.FileHash, p.ModifiedAt.UnixNano(),
			serializeVector(r.Vector), len(r.Vector), now)
		if err != nil {
			return storeErr("upsert", fmt.Errorf("record %s: %w", r.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("upsert", err)
	}
	s.logger.Debug("upserted records", zap.String("collection", s.collection), zap.Int("count", len(records)))
	return nil
}

func (s *SQLiteIndex) DeleteByFile(ctx context.Context, filePath string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND file_path = ?`, s.collection, filePath)
	if err != nil {
		return storeErr("delete by file", err)
	}
	return nil
}

func (s *SQLiteIndex) DeleteByFileExcept(ctx context.Context, filePath string, keepIDs []string) error {
	if len(keepIDs) == 0 {
		return s.DeleteByFile(ctx, filePath)
	}
	query := `DELETE FROM records WHERE collection = ? AND file_path = ? AND id NOT IN (` + placeholders(len(keepIDs)) + `)`
	args := make([]any, 0, len(keepIDs)+2)
	args = append(args, s.collection, filePath)
	for _, id := range keepIDs {
		args = append(args, id)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return storeErr("delete by file", err)
	}
	return nil
}

// Search returns the limit most similar records. Ties are broken by id so
// repeated searches return the same order.
func (s *SQLiteIndex) Search(ctx context.Context, vector []float32, limit int, filter *Filter) ([]ScoredRecord, error) {
	if limit <= 0 || len(vector) == 0 {
		return []ScoredRecord{}, nil
	}
	var (
		results []ScoredRecord
		err     error
	)
	if VectorExtensionAvailable {
		results, err = s.searchOptimized(ctx, vector, limit, filter)
	} else {
		results, err = s.searchFallback(ctx, vector, limit, filter)
	}
	if err != nil {
		return nil, storeErr("search", err)
	}
	return results, nil
}

const payloadColumns = `id, file_path, start_line, end_line, chunk_type, language, name, content, signature, file_hash, modified_at`

// searchOptimized computes similarity inside SQLite with sqlite-vec
func (s *SQLiteIndex) searchOptimized(ctx context.Context, vector []float32, limit int, filter *Filter) ([]ScoredRecord, error) {
	blob := serializeVector(vector)
	query := `SELECT ` + payloadColumns + `, 1.0 - vec_distance_cosine(vector, ?) AS similarity
		FROM records WHERE collection = ? AND dimension = ?`
	args := []any{blob, s.collection, len(vector)}
	query, args = applyLanguageFilter(query, args, filter)
	if filter != nil && filter.MinScore > 0 {
		query += " AND (1.0 - vec_distance_cosine(vector, ?)) >= ?"
		args = append(args, blob, filter.MinScore)
	}
	query += " ORDER BY similarity DESC, id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]ScoredRecord, 0, limit)
	for rows.Next() {
		var (
			rec ScoredRecord
			row payloadRow
		)
		if err := rows.Scan(append(row.dest(&rec), &rec.Score)...); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		row.fill(&rec.Payload)
		results = append(results, rec)
	}
	return results, rows.Err()
}

// searchFallback scores every candidate in Go
func (s *SQLiteIndex) searchFallback(ctx context.Context, vector []float32, limit int, filter *Filter) ([]ScoredRecord, error) {
	query := `SELECT ` + payloadColumns + `, vector FROM records WHERE collection = ?`
	args := []any{s.collection}
	query, args = applyLanguageFilter(query, args, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []ScoredRecord
	for rows.Next() {
		var (
			rec  ScoredRecord
			row  payloadRow
			blob []byte
		)
		if err := rows.Scan(append(row.dest(&rec), &blob)...); err != nil {
			return nil, fmt.Errorf("failed to scan vector: %w", err)
		}
		stored, err := deserializeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		if len(stored) != len(vector) {
			continue
		}
		rec.Score = cosineSimilarity(vector, stored)
		if filter != nil && filter.MinScore > 0 && rec.Score < filter.MinScore {
			continue
		}
		row.fill(&rec.Payload)
		candidates = append(candidates, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortScored(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	if candidates == nil {
		candidates = []ScoredRecord{}
	}
	return candidates, nil
}

// payloadRow holds the nullable columns of a scanned record
type payloadRow struct {
	language, name, signature, fileHash sql.NullString
	modifiedAt                          int64
}

func (r *payloadRow) dest(rec *ScoredRecord) []any {
	p := &rec.Payload
	return []any{
		&rec.ID, &p.FilePath, &p.StartLine, &p.EndLine, &p.Type,
		&r.language, &r.name, &p.Content, &r.signature, &r.fileHash, &r.modifiedAt,
	}
}

func (r *payloadRow) fill(p *Payload) {
	p.Language = r.language.String
	p.Name = r.name.String
	p.Signature = r.signature.String
	p.FileHash = r.fileHash.String
	if r.modifiedAt != 0 {
		p.ModifiedAt = time.Unix(0, r.modifiedAt).UTC()
	}
}

func applyLanguageFilter(query string, args []any, filter *Filter) (string, []any) {
	if filter == nil || len(filter.Languages) == 0 {
		return query, args
	}
	query += " AND language IN (" + placeholders(len(filter.Languages)) + ")"
	for _, lang := range filter.Languages {
		args = append(args, lang)
	}
	return query, args
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// IndexedFiles returns each indexed path with the file hash stored for it.
// A path whose records disagree on the hash maps to "".
func (s *SQLiteIndex) IndexedFiles(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path,
		        CASE WHEN COUNT(DISTINCT COALESCE(file_hash, '')) > 1 THEN ''
		             ELSE COALESCE(MAX(file_hash), '') END
		   FROM records WHERE collection = ? GROUP BY file_path`,
		s.collection)
	if err != nil {
		return nil, storeErr("indexed files", err)
	}
	defer func() { _ = rows.Close() }()

	files := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, storeErr("indexed files", err)
		}
		files[path] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("indexed files", err)
	}
	return files, nil
}

func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE collection = ?`, s.collection).Scan(&n)
	if err != nil {
		return 0, storeErr("count", err)
	}
	return n, nil
}

// Clear drops every record and the registered dimension of the collection
func (s *SQLiteIndex) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("clear", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := clearCollection(ctx, tx, s.collection); err != nil {
		return storeErr("clear", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("clear", err)
	}

	s.mu.Lock()
	s.dimension = 0
	s.mu.Unlock()
	return nil
}

func clearCollection(ctx context.Context, q querier, collection string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, collection); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, collection)
	return err
}

func (s *SQLiteIndex) HealthCheck(ctx context.Context) bool {
	var one int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one) == nil && one == 1
}

func (s *SQLiteIndex) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
