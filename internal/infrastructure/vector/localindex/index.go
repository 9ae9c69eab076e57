package localindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

const fileName = "index.db"

const schema = `CREATE TABLE IF NOT EXISTS chunks (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	content_type TEXT NOT NULL,
	position     INTEGER NOT NULL,
	content      TEXT NOT NULL,
	embedding    BLOB NOT NULL
)`

// Index is a single-file vector index stored under a directory on disk.
type Index struct {
	dir  string
	path string

	mu sync.Mutex
	db *sql.DB
}

var _ ports.VectorIndex = (*Index)(nil)

func New(dir string) *Index {
	return &Index{
		dir:  dir,
		path: filepath.Join(dir, fileName),
	}
}

// Path returns the database file path.
func (x *Index) Path() string {
	return x.path
}

// Load reports whether a persisted index exists and is readable.
func (x *Index) Load(ctx context.Context) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, err := os.Stat(x.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat index: %w", err)
	}

	db, err := x.openLocked()
	if err != nil {
		return false, err
	}

	var tables int
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'chunks'").Scan(&tables)
	if err != nil {
		return false, fmt.Errorf("read index schema: %w", err)
	}
	return tables == 1, nil
}

// Create replaces any existing index with the given chunks.
func (x *Index) Create(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	return x.write(ctx, chunks, vectors, true)
}

// Add appends chunks to the index, creating it when needed.
func (x *Index) Add(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	return x.write(ctx, chunks, vectors, false)
}

// Save flushes the write-ahead log into the main database file.
func (x *Index) Save(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.db == nil {
		return nil
	}
	if _, err := x.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpoint index: %w", err)
	}
	return nil
}

// Search ranks every stored chunk by cosine similarity to the query vector.
func (x *Index) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedChunk, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if limit <= 0 {
		return []domain.RetrievedChunk{}, nil
	}
	if _, err := os.Stat(x.path); errors.Is(err, os.ErrNotExist) {
		return []domain.RetrievedChunk{}, nil
	}
	db, err := x.openLocked()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		"SELECT id, source, content_type, position, content, embedding FROM chunks")
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	results := make([]domain.RetrievedChunk, 0, limit)
	for rows.Next() {
		var (
			chunk       domain.Chunk
			contentType string
			blob        []byte
		)
		if err := rows.Scan(&chunk.ID, &chunk.Source, &contentType, &chunk.Index, &chunk.Text, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunk.ContentType = domain.ContentType(contentType)
		results = append(results, domain.RetrievedChunk{
			Chunk: chunk,
			Score: cosine(queryVector, bytesToFloat32Slice(blob)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Close releases the database handle.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.db == nil {
		return nil
	}
	err := x.db.Close()
	x.db = nil
	return err
}

func (x *Index) write(ctx context.Context, chunks []domain.Chunk, vectors [][]float32, replace bool) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	db, err := x.openLocked()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if replace {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS chunks"); err != nil {
			return fmt.Errorf("drop chunks: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create chunks table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO chunks
		(id, source, content_type, position, content, embedding)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.Source, string(chunk.ContentType),
			chunk.Index, chunk.Text, float32SliceToBytes(vectors[i])); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (x *Index) openLocked() (*sql.DB, error) {
	if x.db != nil {
		return x.db, nil
	}
	db, err := sql.Open("sqlite", x.path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	db.SetMaxOpenConns(1)
	x.db = db
	return db, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
