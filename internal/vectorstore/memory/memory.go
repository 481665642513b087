package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force distance scans.
type Storage struct {
	mu        sync.RWMutex
	metric    vectorstore.Metric
	dimension int
	vectors   [][]float64
	chunks    []domain.Chunk
	meta      vectorstore.Metadata
	hasMeta   bool
}

// NewStorage creates an empty store. An empty metric means l2.
func NewStorage(metric vectorstore.Metric) *Storage {
	if metric == "" {
		metric = vectorstore.MetricL2
	}
	return &Storage{metric: metric}
}

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.vectors = nil
	s.chunks = nil
	return nil
}

func (s *Storage) Upsert(_ context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	s.chunks = append(s.chunks, chunks...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 5
	}
	results := make([]domain.ScoredChunk, len(s.vectors))
	for i := range s.vectors {
		results[i] = domain.ScoredChunk{Chunk: s.chunks[i], Distance: s.metric.Distance(s.vectors[i], vector)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

func (s *Storage) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// All returns stored chunks in insertion order.
func (s *Storage) All(context.Context) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Chunk(nil), s.chunks...), nil
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.chunks = nil
	s.hasMeta = false
	return nil
}

func (s *Storage) SaveMetadata(_ context.Context, md vectorstore.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = md
	s.hasMeta = true
	return nil
}

// LoadMetadata returns domain.ErrIndexMissing until metadata has been saved.
func (s *Storage) LoadMetadata(context.Context) (vectorstore.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasMeta {
		return vectorstore.Metadata{}, domain.ErrIndexMissing
	}
	return s.meta, nil
}
