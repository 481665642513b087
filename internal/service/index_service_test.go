package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/embedding/tfidf"
	"docqa/internal/summarizer"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/memory"
	"docqa/internal/vectorstore/sqlite"
)

func writeDocs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"payments.txt": "Payments are released after milestone approval by the client.",
		"delays.md":    "Delays must be reported to the site manager within two days.",
		"safety.txt":   "Helmets are mandatory on site. Visitors sign in at the gate.",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newService(store vectorstore.Storage) *IndexService {
	return NewIndexService(
		chunker.NewWindowChunker(200, 40),
		tfidf.NewEmbedder(),
		store,
		summarizer.NewFrequencySummarizer(),
		Options{Concurrency: 2, BatchSize: 2},
	)
}

func TestIngestAndSearch(t *testing.T) {
	ctx := context.Background()
	svc := newService(memory.NewStorage(vectorstore.MetricL2))

	rep, err := svc.Ingest(ctx, []string{writeDocs(t)})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if rep.Documents != 3 || rep.Chunks != 3 || rep.Embedder != "tfidf" || rep.Dimension == 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if rep.Summary == "" {
		t.Fatal("expected a corpus summary")
	}

	hits, err := svc.Search(ctx, "who do I report delays to?", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Chunk.Source != "delays.md" {
		t.Fatalf("expected delays.md first, got %s", hits[0].Chunk.Source)
	}
	if hits[0].Distance > hits[1].Distance {
		t.Fatal("hits must be sorted by ascending distance")
	}
	if n, _ := svc.Count(ctx); n != 3 {
		t.Fatalf("expected 3 chunks stored, got %d", n)
	}
}

func TestSearch_UnknownTermsYieldNothing(t *testing.T) {
	ctx := context.Background()
	svc := newService(memory.NewStorage(""))
	if _, err := svc.Ingest(ctx, []string{writeDocs(t)}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	hits, err := svc.Search(ctx, "zebra xylophone", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hits == nil || len(hits) != 0 {
		t.Fatalf("expected an empty non-nil slice, got %#v", hits)
	}
}

func TestSearch_BeforeIngestIsIndexMissing(t *testing.T) {
	svc := newService(memory.NewStorage(""))
	_, err := svc.Search(context.Background(), "anything", 3)
	if !errors.Is(err, domain.ErrIndexMissing) {
		t.Fatalf("expected ErrIndexMissing, got %v", err)
	}
}

func TestReopenPersistentIndex(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	first := sqlite.NewStorage(path, vectorstore.MetricL2)
	if _, err := newService(first).Ingest(ctx, []string{writeDocs(t)}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	first.Close()

	second := sqlite.NewStorage(path, vectorstore.MetricL2)
	defer second.Close()
	svc := newService(second)
	hits, err := svc.Search(ctx, "milestone payments", 1)
	if err != nil {
		t.Fatalf("Search after reopen: %v", err)
	}
	if len(hits) != 1 || !strings.Contains(hits[0].Chunk.Content, "milestone") {
		t.Fatalf("unexpected hits after reopen %+v", hits)
	}
}

func TestMissingPersistentIndex(t *testing.T) {
	store := sqlite.NewStorage(filepath.Join(t.TempDir(), "absent.db"), "")
	defer store.Close()
	_, err := newService(store).Search(context.Background(), "q", 3)
	if !errors.Is(err, domain.ErrIndexMissing) {
		t.Fatalf("expected ErrIndexMissing, got %v", err)
	}
}

type renamedEmbedder struct{ *tfidf.Embedder }

func (renamedEmbedder) Name() string { return "other" }

func TestEmbedderMismatch(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage("")
	if _, err := newService(store).Ingest(ctx, []string{writeDocs(t)}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	svc := NewIndexService(chunker.NewWindowChunker(0, 0), renamedEmbedder{tfidf.NewEmbedder()}, store, nil, Options{})
	if _, err := svc.Search(ctx, "delays", 1); !errors.Is(err, domain.ErrEmbedderMismatch) {
		t.Fatalf("expected ErrEmbedderMismatch, got %v", err)
	}
}

type failingEmbedder struct{ *tfidf.Embedder }

func (failingEmbedder) Embed(context.Context, string) ([]float64, error) {
	return nil, domain.ErrRateLimited
}

func TestIngest_EmbedErrorLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage("")
	if _, err := newService(store).Ingest(ctx, []string{writeDocs(t)}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	svc := NewIndexService(chunker.NewWindowChunker(0, 0), failingEmbedder{tfidf.NewEmbedder()}, store, nil, Options{})
	if _, err := svc.Ingest(ctx, []string{writeDocs(t)}); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if n, _ := store.Count(ctx); n != 3 {
		t.Fatalf("expected previous index kept, got %d chunks", n)
	}
}

func TestIngest_NoDocuments(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "blank.txt"), []byte("  "), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := newService(memory.NewStorage("")).Ingest(context.Background(), []string{dir}); err == nil {
		t.Fatal("expected error when nothing can be indexed")
	}
}
