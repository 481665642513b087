// Package service builds and queries the document index.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"docqa/internal/domain"
	"docqa/internal/embedding"
	"docqa/internal/loader"
	"docqa/internal/logging"
	"docqa/internal/vectorstore"
)

// Options tune ingestion.
type Options struct {
	SummarySentences int
	Concurrency      int
	BatchSize        int
	Metric           vectorstore.Metric
}

func (o *Options) applyDefaults() {
	if o.SummarySentences <= 0 {
		o.SummarySentences = 3
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 64
	}
	if o.Metric == "" {
		o.Metric = vectorstore.MetricL2
	}
}

// Report describes a completed ingestion.
type Report struct {
	Documents int
	Chunks    int
	Skipped   []string
	Embedder  string
	Dimension int
	Summary   string
	Elapsed   time.Duration
}

// IndexService ingests documents into a vector store and serves nearest
// neighbour queries over it. It implements domain.VectorIndex.
//
// Searches may run concurrently with each other; Ingest excludes them.
type IndexService struct {
	chunker    domain.Chunker
	embedder   embedding.Embedder
	store      vectorstore.Storage
	summarizer domain.Summarizer
	opts       Options
	log        *slog.Logger

	mu   sync.RWMutex
	open bool
}

func NewIndexService(chunker domain.Chunker, embedder embedding.Embedder, store vectorstore.Storage, summarizer domain.Summarizer, opts Options) *IndexService {
	opts.applyDefaults()
	return &IndexService{
		chunker:    chunker,
		embedder:   embedder,
		store:      store,
		summarizer: summarizer,
		opts:       opts,
		log:        logging.New("index"),
	}
}

// Ingest replaces the index contents with the documents found under paths.
func (s *IndexService) Ingest(ctx context.Context, paths []string) (Report, error) {
	started := time.Now()
	docs, skipped, err := loader.LoadAll(paths)
	if err != nil {
		return Report{}, err
	}
	if len(docs) == 0 {
		return Report{}, errors.New("no documents with extractable text found")
	}

	var chunks []domain.Chunk
	var corpus strings.Builder
	for _, d := range docs {
		cs, err := s.chunker.Chunk(d)
		if err != nil {
			return Report{}, fmt.Errorf("chunk %s: %w", d.Path, err)
		}
		chunks = append(chunks, cs...)
		corpus.WriteString(d.Content)
		corpus.WriteString("\n")
	}
	if len(chunks) == 0 {
		return Report{}, errors.New("documents produced no chunks")
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false

	if err := s.embedder.Prepare(texts); err != nil {
		return Report{}, fmt.Errorf("prepare embedder: %w", err)
	}
	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		return Report{}, err
	}
	dim := s.embedder.Dimension()
	if dim == 0 {
		dim = len(vectors[0])
	}

	if err := s.store.Clear(ctx); err != nil {
		return Report{}, fmt.Errorf("clear store: %w", err)
	}
	if err := s.store.Init(ctx, dim); err != nil {
		return Report{}, fmt.Errorf("init store: %w", err)
	}
	for lo := 0; lo < len(chunks); lo += s.opts.BatchSize {
		hi := min(lo+s.opts.BatchSize, len(chunks))
		if err := s.store.Upsert(ctx, chunks[lo:hi], vectors[lo:hi]); err != nil {
			return Report{}, fmt.Errorf("upsert chunks %d-%d: %w", lo, hi, err)
		}
	}
	if ms, ok := s.store.(vectorstore.MetadataStore); ok {
		md := vectorstore.Metadata{Embedder: s.embedder.Name(), Dimension: dim, Metric: s.opts.Metric}
		if err := ms.SaveMetadata(ctx, md); err != nil {
			return Report{}, fmt.Errorf("save index metadata: %w", err)
		}
	}
	s.open = true

	summary := ""
	if s.summarizer != nil {
		if summary, err = s.summarizer.Summarize(corpus.String(), s.opts.SummarySentences); err != nil {
			s.log.WarnContext(ctx, "summary failed", "error", err)
		}
	}
	rep := Report{
		Documents: len(docs),
		Chunks:    len(chunks),
		Skipped:   skipped,
		Embedder:  s.embedder.Name(),
		Dimension: dim,
		Summary:   summary,
		Elapsed:   time.Since(started),
	}
	s.log.InfoContext(ctx, "ingested",
		"documents", rep.Documents, "chunks", rep.Chunks, "skipped", len(skipped),
		"embedder", rep.Embedder, "dimension", dim, "elapsed", rep.Elapsed)
	return rep, nil
}

func (s *IndexService) embedAll(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, text := range texts {
		g.Go(func() error {
			v, err := s.embedder.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Open checks a previously built index against the configured embedder and
// re-prepares corpus-fitted embedders from the stored chunks. Search calls it
// on first use.
func (s *IndexService) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(ctx)
}

func (s *IndexService) openLocked(ctx context.Context) error {
	if s.open {
		return nil
	}
	if ms, ok := s.store.(vectorstore.MetadataStore); ok {
		md, err := ms.LoadMetadata(ctx)
		if err != nil {
			return err
		}
		if md.Embedder != s.embedder.Name() {
			return fmt.Errorf("index built with %q, configured embedder is %q: %w",
				md.Embedder, s.embedder.Name(), domain.ErrEmbedderMismatch)
		}
		if md.Metric != "" && md.Metric != s.opts.Metric {
			s.log.WarnContext(ctx, "index metric differs from configuration",
				"index", md.Metric, "configured", s.opts.Metric)
		}
	}
	if embedding.RequiresCorpus(s.embedder) {
		lister, ok := s.store.(vectorstore.Lister)
		if !ok {
			return fmt.Errorf("embedder %s needs the stored corpus but the store cannot list it", s.embedder.Name())
		}
		chunks, err := lister.All(ctx)
		if err != nil {
			return fmt.Errorf("load corpus: %w", err)
		}
		if len(chunks) == 0 {
			return fmt.Errorf("index is empty: %w", domain.ErrIndexMissing)
		}
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		if err := s.embedder.Prepare(texts); err != nil {
			return fmt.Errorf("prepare embedder: %w", err)
		}
	}
	s.open = true
	s.log.DebugContext(ctx, "index opened", "embedder", s.embedder.Name())
	return nil
}

// Search embeds query and returns the k nearest chunks by ascending distance.
// A query that embeds to the zero vector shares no terms with the corpus and
// yields no results.
func (s *IndexService) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	s.mu.RLock()
	open := s.open
	s.mu.RUnlock()
	if !open {
		if err := s.Open(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if vectorstore.IsZero(vec) {
		s.log.DebugContext(ctx, "query has no known terms", "query", query)
		return []domain.ScoredChunk{}, nil
	}
	hits, err := s.store.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search store: %w", err)
	}
	return hits, nil
}

// Count returns the number of indexed chunks.
func (s *IndexService) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}
