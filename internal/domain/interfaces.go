package domain

import "context"

// Document represents a single source file loaded into the system.
type Document struct {
	ID      string
	Path    string
	Content string
}

// Chunk is a bounded span of document text plus its provenance. It is the
// unit of retrieval and is never modified after ingestion.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	Content    string `json:"content"`
	Index      int    `json:"index"`
	Offset     int    `json:"offset"`
}

// ScoredChunk pairs a chunk with its distance to a query. Lower is closer.
type ScoredChunk struct {
	Chunk    Chunk   `json:"chunk"`
	Distance float64 `json:"distance"`
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// VectorIndex returns the k chunks nearest to a query, sorted by ascending
// distance. An empty index yields an empty slice and a nil error.
type VectorIndex interface {
	Search(ctx context.Context, query string, k int) ([]ScoredChunk, error)
}

// Generator turns a rendered prompt into model output. An empty string is a
// valid result.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
