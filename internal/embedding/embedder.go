package embedding

import "context"

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// NeedsCorpus is implemented by embedders whose vectors depend on the indexed
// corpus. A reopened index must re-prepare them from its stored chunks.
type NeedsCorpus interface {
	NeedsCorpus() bool
}

// RequiresCorpus reports whether e must be prepared from the indexed corpus.
func RequiresCorpus(e Embedder) bool {
	n, ok := e.(NeedsCorpus)
	return ok && n.NeedsCorpus()
}
