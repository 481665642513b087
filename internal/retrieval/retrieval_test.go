package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"docqa/internal/confidence"
	"docqa/internal/domain"
)

type fakeIndex struct {
	hits  []domain.ScoredChunk
	err   error
	gotK  int
	calls int
}

func (f *fakeIndex) Search(_ context.Context, _ string, k int) ([]domain.ScoredChunk, error) {
	f.calls++
	f.gotK = k
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.hits) {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

type countingClassifier struct {
	inner confidence.Classifier
	calls int
}

func (c *countingClassifier) Classify(d float64) (confidence.Tier, string) {
	c.calls++
	return c.inner.Classify(d)
}

func hit(content string, d float64) domain.ScoredChunk {
	return domain.ScoredChunk{Chunk: domain.Chunk{Content: content, Source: "doc.txt"}, Distance: d}
}

func newAggregator(t *testing.T, idx domain.VectorIndex, k int, th confidence.Thresholds) (*Aggregator, *countingClassifier) {
	t.Helper()
	cfg := confidence.DefaultConfig()
	cfg.Thresholds = th
	c, err := confidence.NewThreeTier(cfg)
	if err != nil {
		t.Fatalf("NewThreeTier: %v", err)
	}
	cc := &countingClassifier{inner: c}
	return NewAggregator(idx, cc, Config{K: k}), cc
}

func TestRetrieve_EmptyIndexUsesSentinel(t *testing.T) {
	idx := &fakeIndex{}
	a, cc := newAggregator(t, idx, 5, confidence.Thresholds{High: 0.8, Low: 1.2})

	res, err := a.Retrieve(context.Background(), "delays")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Context != DefaultSentinel {
		t.Fatalf("expected sentinel context, got %q", res.Context)
	}
	if res.Tier != confidence.TierNone {
		t.Fatalf("expected no tier, got %s", res.Tier)
	}
	if cc.calls != 0 {
		t.Fatalf("classifier must not run on empty results, ran %d times", cc.calls)
	}
	if !res.Empty() {
		t.Fatal("expected Empty() to be true")
	}
}

func TestRetrieve_HighTierContextIsChunkExactly(t *testing.T) {
	idx := &fakeIndex{hits: []domain.ScoredChunk{hit("Delays are reported weekly.", 0.3)}}
	a, _ := newAggregator(t, idx, 5, confidence.Thresholds{High: 0.8, Low: 1.2})

	res, err := a.Retrieve(context.Background(), "delays")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Tier != confidence.TierHigh {
		t.Fatalf("expected high tier, got %s", res.Tier)
	}
	if res.Annotation != "" {
		t.Fatalf("expected empty annotation, got %q", res.Annotation)
	}
	if res.Context != "Delays are reported weekly." {
		t.Fatalf("expected chunk content as context, got %q", res.Context)
	}
	if res.BestScore != 0.3 {
		t.Fatalf("expected best score 0.3, got %v", res.BestScore)
	}
}

func TestRetrieve_LowTierPrependsHedgeNote(t *testing.T) {
	idx := &fakeIndex{hits: []domain.ScoredChunk{hit("Unrelated paragraph.", 1.5)}}
	a, _ := newAggregator(t, idx, 5, confidence.Thresholds{High: 0.8, Low: 1.2})

	res, err := a.Retrieve(context.Background(), "delays")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Tier != confidence.TierLow {
		t.Fatalf("expected low tier, got %s", res.Tier)
	}
	if !strings.HasPrefix(res.Context, "[System note:") {
		t.Fatalf("expected context to begin with system note, got %q", res.Context)
	}
	note, _, _ := strings.Cut(res.Context, PassageSeparator)
	if !strings.Contains(note, "1.50") {
		t.Fatalf("expected 1.50 in leading note, got %q", note)
	}
	if !strings.HasSuffix(res.Context, "Unrelated paragraph.") {
		t.Fatalf("expected chunk after note, got %q", res.Context)
	}
}

func TestRetrieve_ModerateTier(t *testing.T) {
	idx := &fakeIndex{hits: []domain.ScoredChunk{hit("Partial match.", 1.0)}}
	a, _ := newAggregator(t, idx, 5, confidence.Thresholds{High: 0.8, Low: 1.2})

	res, err := a.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Tier != confidence.TierModerate {
		t.Fatalf("expected moderate tier, got %s", res.Tier)
	}
	want := res.Annotation + PassageSeparator + "Partial match."
	if res.Context != want {
		t.Fatalf("context mismatch:\n got %q\nwant %q", res.Context, want)
	}
}

func TestRetrieve_FewerChunksThanK(t *testing.T) {
	idx := &fakeIndex{hits: []domain.ScoredChunk{hit("a", 0.1), hit("b", 0.2)}}
	a, _ := newAggregator(t, idx, 7, confidence.Thresholds{High: 0.8, Low: 1.2})

	res, err := a.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.gotK != 7 {
		t.Fatalf("expected k=7 passed to index, got %d", idx.gotK)
	}
	if len(res.Chunks) != 2 {
		t.Fatalf("expected exactly 2 chunks, got %d", len(res.Chunks))
	}
	if res.Context != "a\n\nb" {
		t.Fatalf("unexpected context %q", res.Context)
	}
}

func TestRetrieve_PreservesOrderAndDuplicates(t *testing.T) {
	hits := []domain.ScoredChunk{
		hit("overlap", 0.1),
		hit("overlap", 0.1),
		hit("zeta", 0.4),
		hit("alpha", 0.5),
	}
	idx := &fakeIndex{hits: hits}
	a, _ := newAggregator(t, idx, 10, confidence.Thresholds{High: 0.8, Low: 1.2})

	res, err := a.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(hits, res.Chunks); diff != "" {
		t.Fatalf("chunks changed (-want +got):\n%s", diff)
	}
	if res.Context != "overlap\n\noverlap\n\nzeta\n\nalpha" {
		t.Fatalf("unexpected context %q", res.Context)
	}
}

type overfullIndex struct{ hits []domain.ScoredChunk }

func (o overfullIndex) Search(context.Context, string, int) ([]domain.ScoredChunk, error) {
	return o.hits, nil
}

func TestRetrieve_TruncatesToK(t *testing.T) {
	idx := overfullIndex{hits: []domain.ScoredChunk{hit("a", 0.1), hit("b", 0.2), hit("c", 0.3)}}
	a, _ := newAggregator(t, idx, 2, confidence.Thresholds{High: 0.8, Low: 1.2})

	res, err := a.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Chunks) != 2 || res.Context != "a\n\nb" {
		t.Fatalf("expected truncation to k=2, got %d chunks, context %q", len(res.Chunks), res.Context)
	}
}

func TestRetrieve_IndexErrorIsFailure(t *testing.T) {
	idx := &fakeIndex{err: domain.ErrIndexMissing}
	a, _ := newAggregator(t, idx, 5, confidence.Thresholds{High: 0.8, Low: 1.2})

	_, err := a.Retrieve(context.Background(), "q")
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *Failure, got %T: %v", err, err)
	}
	if f.Query != "q" {
		t.Fatalf("expected query recorded, got %q", f.Query)
	}
	if !errors.Is(err, domain.ErrIndexMissing) {
		t.Fatalf("expected wrapped ErrIndexMissing, got %v", err)
	}
}

func TestNewAggregator_Defaults(t *testing.T) {
	a, _ := newAggregator(t, &fakeIndex{}, 0, confidence.Thresholds{High: 0.8, Low: 1.2})
	if a.K() != DefaultConfig().K {
		t.Fatalf("expected default k, got %d", a.K())
	}
	if a.Sentinel() != DefaultSentinel {
		t.Fatalf("expected default sentinel, got %q", a.Sentinel())
	}
}
