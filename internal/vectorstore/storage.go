package vectorstore

import (
	"context"

	"docqa/internal/domain"
)

// Storage persists chunk vectors and answers nearest-neighbour queries.
// Search returns at most topK hits sorted by ascending distance; hits with
// equal distance keep insertion order.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]domain.ScoredChunk, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// Lister is implemented by stores that can return every stored chunk in
// insertion order. Corpus-fitted embedders are re-prepared from it.
type Lister interface {
	All(ctx context.Context) ([]domain.Chunk, error)
}

// Metadata describes how an index was built.
type Metadata struct {
	Embedder  string `json:"embedder"`
	Dimension int    `json:"dimension"`
	Metric    Metric `json:"metric"`
}

// MetadataStore is implemented by stores that persist Metadata next to the
// vectors so a reopened index can be checked against the configured embedder.
type MetadataStore interface {
	SaveMetadata(ctx context.Context, md Metadata) error
	LoadMetadata(ctx context.Context) (Metadata, error)
}
