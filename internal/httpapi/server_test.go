package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docqa/internal/confidence"
	"docqa/internal/domain"
	"docqa/internal/pipeline"
	"docqa/internal/retrieval"
)

type stubAnswerer struct {
	env pipeline.Envelope
	err error
}

func (s stubAnswerer) Answer(_ context.Context, q string) (pipeline.Envelope, error) {
	if s.err != nil {
		return pipeline.Envelope{}, s.err
	}
	env := s.env
	env.Question = q
	return env, nil
}

type stubRetriever struct {
	res retrieval.Result
	err error
}

func (s stubRetriever) Retrieve(context.Context, string) (retrieval.Result, error) {
	return s.res, s.err
}

type stubCounter struct {
	n   int
	err error
}

func (s stubCounter) Count(context.Context) (int, error) { return s.n, s.err }

// waitingAnswerer blocks until the request context ends.
type waitingAnswerer struct{}

func (waitingAnswerer) Answer(ctx context.Context, q string) (pipeline.Envelope, error) {
	<-ctx.Done()
	return pipeline.Envelope{}, &pipeline.GenerationFailure{Err: ctx.Err()}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAsk(t *testing.T) {
	srv := New(stubAnswerer{env: pipeline.Envelope{Context: "ctx", Answer: ""}}, stubRetriever{}, nil)
	rec := do(t, srv, http.MethodPost, "/ask", `{"question":"  who?  "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["question"] != "who?" || got["context"] != "ctx" {
		t.Fatalf("unexpected body %v", got)
	}
	if _, ok := got["answer"]; !ok || len(got) != 3 {
		t.Fatalf("expected exactly question/context/answer keys, got %v", got)
	}
}

func TestAsk_BadRequests(t *testing.T) {
	srv := New(stubAnswerer{}, stubRetriever{}, nil)
	for _, body := range []string{`not json`, `{"question":"   "}`} {
		if rec := do(t, srv, http.MethodPost, "/ask", body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
	if rec := do(t, srv, http.MethodGet, "/ask", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET /ask, got %d", rec.Code)
	}
}

func TestAsk_FailureStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		hint   string
	}{
		{"retrieval", &retrieval.Failure{Query: "q", Err: domain.ErrIndexMissing}, http.StatusServiceUnavailable, "docqa ingest"},
		{"generation", &pipeline.GenerationFailure{Err: domain.ErrMissingCredential}, http.StatusBadGateway, "API key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(stubAnswerer{err: tt.err}, stubRetriever{}, nil)
			rec := do(t, srv, http.MethodPost, "/ask", `{"question":"q"}`)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			var body errorBody
			_ = json.Unmarshal(rec.Body.Bytes(), &body)
			if body.Error == "" || !strings.Contains(body.Hint, tt.hint) {
				t.Fatalf("unexpected error body %+v", body)
			}
		})
	}
}

func TestSearch(t *testing.T) {
	res := retrieval.Result{
		Chunks:    []domain.ScoredChunk{{Chunk: domain.Chunk{ID: "a:0", Source: "a.txt", Content: "alpha"}, Distance: 0.9}},
		BestScore: 0.9,
		Tier:      confidence.TierModerate,
	}
	srv := New(stubAnswerer{}, stubRetriever{res: res}, nil)
	rec := do(t, srv, http.MethodPost, "/search", `{"query":"alpha"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Tier != "moderate" || got.BestScore == nil || *got.BestScore != 0.9 || len(got.Hits) != 1 || got.Hits[0].Rank != 1 {
		t.Fatalf("unexpected response %+v", got)
	}
}

func TestSearch_EmptyHasNoBestScore(t *testing.T) {
	srv := New(stubAnswerer{}, stubRetriever{}, nil)
	rec := do(t, srv, http.MethodPost, "/search", `{"query":"x"}`)
	var got map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if _, ok := got["best_score"]; ok {
		t.Fatalf("best_score must be omitted for empty results: %v", got)
	}
	if got["tier"] != "none" {
		t.Fatalf("expected tier none, got %v", got["tier"])
	}
}

func TestHealth(t *testing.T) {
	rec := do(t, New(stubAnswerer{}, stubRetriever{}, stubCounter{n: 12}), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"chunks":12`) {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body)
	}
	rec = do(t, New(stubAnswerer{}, stubRetriever{}, stubCounter{err: domain.ErrIndexMissing}), http.MethodGet, "/health", "")
	if !strings.Contains(rec.Body.String(), "no_index") {
		t.Fatalf("expected no_index status, got %s", rec.Body)
	}
}

func TestAsk_RequestTimeout(t *testing.T) {
	srv := New(waitingAnswerer{}, stubRetriever{}, nil)
	srv.RequestTimeout = 20 * time.Millisecond
	rec := do(t, srv, http.MethodPost, "/ask", `{"question":"q"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body)
	}
	var body errorBody
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if !strings.Contains(body.Hint, "timed out") {
		t.Fatalf("expected timeout hint, got %+v", body)
	}
}
