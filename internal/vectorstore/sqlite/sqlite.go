// Package sqlite persists chunk vectors in a single SQLite file so an index
// built by one process can be queried by another.
package sqlite

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
	"strconv"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	document_id  TEXT NOT NULL,
	source       TEXT NOT NULL,
	chunk_index  INTEGER NOT NULL,
	char_offset  INTEGER NOT NULL,
	content      TEXT NOT NULL,
	vector       BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS index_meta (
	key    TEXT PRIMARY KEY,
	value  TEXT NOT NULL
);
`

// Storage is a brute-force vector store backed by SQLite.
// The database file is opened on first use. Reads against a path that does
// not exist fail with domain.ErrIndexMissing instead of creating an empty file.
type Storage struct {
	path   string
	metric vectorstore.Metric

	mu        sync.Mutex
	db        *sql.DB
	dimension int
}

// NewStorage returns a store for the database at path. An empty metric means l2.
func NewStorage(path string, metric vectorstore.Metric) *Storage {
	if metric == "" {
		metric = vectorstore.MetricL2
	}
	return &Storage{path: path, metric: metric}
}

// Path returns the database location.
func (s *Storage) Path() string { return s.path }

func (s *Storage) open(create bool) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}
	if _, err := os.Stat(s.path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat index %s: %w", s.path, err)
		}
		if !create {
			return nil, fmt.Errorf("open index %s: %w", s.path, domain.ErrIndexMissing)
		}
		if dir := filepath.Dir(s.path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create index dir: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s.db = db
	return db, nil
}

// Close releases the database handle.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	db, err := s.open(true)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.dimension = dimension
	s.mu.Unlock()
	return setMeta(ctx, db, "dimension", strconv.Itoa(dimension))
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	db, err := s.open(true)
	if err != nil {
		return err
	}
	s.mu.Lock()
	dim := s.dimension
	s.mu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, source, chunk_index, char_offset, content, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			source      = excluded.source,
			chunk_index = excluded.chunk_index,
			char_offset = excluded.char_offset,
			content     = excluded.content,
			vector      = excluded.vector`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if dim > 0 && len(vectors[i]) != dim {
			return fmt.Errorf("vector dimension mismatch: got %d, want %d", len(vectors[i]), dim)
		}
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, id, c.DocumentID, c.Source, c.Index, c.Offset, c.Content, encodeVector(vectors[i])); err != nil {
			return fmt.Errorf("insert chunk %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.ScoredChunk, error) {
	db, err := s.open(false)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 5
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, document_id, source, chunk_index, char_offset, content, vector
		FROM chunks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var results []domain.ScoredChunk
	for rows.Next() {
		var c domain.Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Source, &c.Index, &c.Offset, &c.Content, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		results = append(results, domain.ScoredChunk{Chunk: c, Distance: s.metric.Distance(decodeVector(blob), vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	db, err := s.open(false)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// All returns stored chunks in insertion order.
func (s *Storage) All(ctx context.Context) ([]domain.Chunk, error) {
	db, err := s.open(false)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, document_id, source, chunk_index, char_offset, content
		FROM chunks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()
	var out []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Source, &c.Index, &c.Offset, &c.Content); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Storage) Clear(ctx context.Context) error {
	db, err := s.open(true)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM chunks; DELETE FROM index_meta;`); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	s.mu.Lock()
	s.dimension = 0
	s.mu.Unlock()
	return nil
}

func (s *Storage) SaveMetadata(ctx context.Context, md vectorstore.Metadata) error {
	db, err := s.open(true)
	if err != nil {
		return err
	}
	for k, v := range map[string]string{
		"embedder":  md.Embedder,
		"dimension": strconv.Itoa(md.Dimension),
		"metric":    string(md.Metric),
	} {
		if err := setMeta(ctx, db, k, v); err != nil {
			return err
		}
	}
	return nil
}

// LoadMetadata returns domain.ErrIndexMissing when the file or its embedder
// record is absent.
func (s *Storage) LoadMetadata(ctx context.Context) (vectorstore.Metadata, error) {
	db, err := s.open(false)
	if err != nil {
		return vectorstore.Metadata{}, err
	}
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM index_meta`)
	if err != nil {
		return vectorstore.Metadata{}, fmt.Errorf("query metadata: %w", err)
	}
	defer rows.Close()
	kv := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return vectorstore.Metadata{}, fmt.Errorf("scan metadata: %w", err)
		}
		kv[k] = v
	}
	if err := rows.Err(); err != nil {
		return vectorstore.Metadata{}, err
	}
	if kv["embedder"] == "" {
		return vectorstore.Metadata{}, fmt.Errorf("index %s has no metadata: %w", s.path, domain.ErrIndexMissing)
	}
	dim, _ := strconv.Atoi(kv["dimension"])
	return vectorstore.Metadata{Embedder: kv["embedder"], Dimension: dim, Metric: vectorstore.Metric(kv["metric"])}, nil
}

func setMeta(ctx context.Context, db *sql.DB, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO index_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}
