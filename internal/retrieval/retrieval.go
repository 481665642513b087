package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"docqa/internal/confidence"
	"docqa/internal/domain"
	"docqa/internal/logging"
)

// DefaultSentinel replaces the context when the index returns nothing.
const DefaultSentinel = "No relevant documents found."

// PassageSeparator joins retrieved passages and the leading annotation.
const PassageSeparator = "\n\n"

// Config holds the retrieval depth and sentinel text.
type Config struct {
	K        int
	Sentinel string
}

// DefaultConfig returns sensible defaults for retrieval.
func DefaultConfig() Config {
	return Config{K: 5, Sentinel: DefaultSentinel}
}

// Result is the outcome of one retrieval call.
type Result struct {
	Chunks     []domain.ScoredChunk
	BestScore  float64
	Tier       confidence.Tier
	Annotation string
	Context    string
}

// Empty reports whether nothing was retrieved.
func (r Result) Empty() bool { return len(r.Chunks) == 0 }

// Failure wraps an error raised by the vector index.
type Failure struct {
	Query string
	Err   error
}

func (e *Failure) Error() string {
	return fmt.Sprintf("retrieval failed: %v", e.Err)
}

func (e *Failure) Unwrap() error { return e.Err }

// Aggregator queries the index and assembles the annotated context.
type Aggregator struct {
	index      domain.VectorIndex
	classifier confidence.Classifier
	config     Config
	log        *slog.Logger
}

// NewAggregator creates an Aggregator. A non-positive K falls back to the default.
func NewAggregator(index domain.VectorIndex, classifier confidence.Classifier, config Config) *Aggregator {
	if config.K <= 0 {
		config.K = DefaultConfig().K
	}
	if config.Sentinel == "" {
		config.Sentinel = DefaultSentinel
	}
	return &Aggregator{
		index:      index,
		classifier: classifier,
		config:     config,
		log:        logging.New("retrieval"),
	}
}

// K returns the configured retrieval depth.
func (a *Aggregator) K() int { return a.config.K }

// Sentinel returns the context used when nothing is retrieved.
func (a *Aggregator) Sentinel() string { return a.config.Sentinel }

// Retrieve fetches the top-k passages for query and builds the context.
// Passages keep the order returned by the index; duplicates are kept.
func (a *Aggregator) Retrieve(ctx context.Context, query string) (Result, error) {
	hits, err := a.index.Search(ctx, query, a.config.K)
	if err != nil {
		return Result{}, &Failure{Query: query, Err: err}
	}
	if len(hits) > a.config.K {
		hits = hits[:a.config.K]
	}

	if len(hits) == 0 {
		a.log.DebugContext(ctx, "no passages retrieved", "k", a.config.K)
		return Result{Context: a.config.Sentinel}, nil
	}

	best := hits[0].Distance
	tier, note := a.classifier.Classify(best)

	contents := make([]string, len(hits))
	for i, h := range hits {
		contents[i] = h.Chunk.Content
	}
	joined := strings.Join(contents, PassageSeparator)
	if note != "" {
		joined = note + PassageSeparator + joined
	}

	a.log.DebugContext(ctx, "passages retrieved",
		"count", len(hits), "best_score", best, "tier", tier.String())

	return Result{
		Chunks:     hits,
		BestScore:  best,
		Tier:       tier,
		Annotation: note,
		Context:    joined,
	}, nil
}
