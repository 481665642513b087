package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"docqa/internal/chunker"
	"docqa/internal/confidence"
	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/embedding"
	embopenai "docqa/internal/embedding/openai"
	"docqa/internal/embedding/tfidf"
	"docqa/internal/generator/ollama"
	genopenai "docqa/internal/generator/openai"
	"docqa/internal/pipeline"
	"docqa/internal/prompt"
	"docqa/internal/retrieval"
	"docqa/internal/service"
	"docqa/internal/summarizer"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/memory"
	"docqa/internal/vectorstore/qdrant"
	"docqa/internal/vectorstore/sqlite"
)

// app holds the components assembled from one configuration.
type app struct {
	index      *service.IndexService
	classifier *confidence.ThreeTier
	retriever  *retrieval.Aggregator
	pipeline   *pipeline.Pipeline
	closers    []func() error
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func buildApp(c *config.AppConfig) (*app, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	metric, err := vectorstore.ParseMetric(c.VectorStore.Metric)
	if err != nil {
		return nil, err
	}
	a := &app{}

	emb, err := buildEmbedder(c)
	if err != nil {
		return nil, err
	}
	store, err := buildStore(c, metric, a)
	if err != nil {
		return nil, err
	}
	var sum domain.Summarizer
	if c.Summarizer.Type == "frequency" {
		sum = summarizer.NewFrequencySummarizer()
	}
	a.index = service.NewIndexService(buildChunker(c), emb, store, sum, service.Options{
		SummarySentences: c.Summarizer.MaxSentences,
		Concurrency:      c.Ingest.Concurrency,
		BatchSize:        c.Ingest.BatchSize,
		Metric:           metric,
	})

	if a.classifier, err = confidence.NewThreeTier(c.Confidence()); err != nil {
		return nil, err
	}
	a.retriever = retrieval.NewAggregator(a.index, a.classifier, c.RetrievalSettings())

	asm, err := buildAssembler(c)
	if err != nil {
		return nil, err
	}
	a.pipeline = pipeline.New(a.retriever, asm, buildGenerator(c))
	return a, nil
}

func buildEmbedder(c *config.AppConfig) (embedding.Embedder, error) {
	switch c.Embedder.Type {
	case "openai":
		oc := c.Embedder.OpenAI
		return embopenai.NewClient(embopenai.Config{
			BaseURL:   oc.BaseURL,
			APIKeyEnv: oc.APIKeyEnv,
			Model:     oc.Model,
			Timeout:   time.Duration(oc.TimeoutSecs) * time.Second,
		})
	default:
		return tfidf.NewEmbedder(), nil
	}
}

func buildChunker(c *config.AppConfig) domain.Chunker {
	if c.Chunker.Type == "sentence" {
		return chunker.NewSentenceChunker(c.Chunker.SentencesPerChunk, c.Chunker.OverlapSentences)
	}
	return chunker.NewWindowChunker(c.Chunker.Size, c.Chunker.Overlap)
}

func buildStore(c *config.AppConfig, metric vectorstore.Metric, a *app) (vectorstore.Storage, error) {
	switch c.VectorStore.Type {
	case "memory":
		return memory.NewStorage(metric), nil
	case "qdrant":
		qc := c.VectorStore.Qdrant
		apiKey := ""
		if qc.APIKeyEnv != "" {
			apiKey = os.Getenv(qc.APIKeyEnv)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        qc.URL,
			APIKey:     apiKey,
			Collection: qc.Collection,
			Metric:     metric,
			Timeout:    time.Duration(qc.TimeoutSecs) * time.Second,
		}), nil
	case "sqlite":
		st := sqlite.NewStorage(c.VectorStore.SQLite.Path, metric)
		a.closers = append(a.closers, st.Close)
		return st, nil
	}
	return nil, fmt.Errorf("unknown vector store: %s", c.VectorStore.Type)
}

func buildAssembler(c *config.AppConfig) (prompt.Assembler, error) {
	rs, err := prompt.Lookup(c.Prompt.RuleSet)
	if err != nil {
		return nil, err
	}
	if c.Prompt.TemplateFile != "" {
		data, err := os.ReadFile(c.Prompt.TemplateFile)
		if err != nil {
			return nil, fmt.Errorf("read prompt template: %w", err)
		}
		rs = rs.WithTemplate(string(data))
	}
	return prompt.NewAssembler(rs)
}

func buildGenerator(c *config.AppConfig) domain.Generator {
	timeout := time.Duration(c.Generator.TimeoutSecs) * time.Second
	if c.Generator.Type == "ollama" {
		return ollama.New(ollama.Config{
			URL:         c.Generator.Ollama.URL,
			Model:       c.Generator.Ollama.Model,
			Temperature: c.Generator.Temperature,
			Timeout:     timeout,
		})
	}
	oc := c.Generator.OpenAI
	return genopenai.New(genopenai.Config{
		BaseURL:     oc.BaseURL,
		APIKeyEnv:   oc.APIKeyEnv,
		Model:       oc.Model,
		Temperature: c.Generator.Temperature,
		Timeout:     timeout,
	})
}

// requestTimeout is the per-question bound shared by every front end.
func requestTimeout(c *config.AppConfig) time.Duration {
	return time.Duration(c.Generator.TimeoutSecs) * time.Second
}

func requestContext(parent context.Context, c *config.AppConfig) (context.Context, context.CancelFunc) {
	if d := requestTimeout(c); d > 0 {
		return context.WithTimeout(parent, d)
	}
	return context.WithCancel(parent)
}
