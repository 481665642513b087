// Package httpapi exposes the answering pipeline over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"docqa/internal/advice"
	"docqa/internal/domain"
	"docqa/internal/logging"
	"docqa/internal/pipeline"
	"docqa/internal/retrieval"
)

// Answerer runs the full question answering pipeline.
type Answerer interface {
	Answer(ctx context.Context, question string) (pipeline.Envelope, error)
}

// Retriever runs retrieval only.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (retrieval.Result, error)
}

// Counter reports the number of indexed chunks.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Server routes HTTP requests to the pipeline.
type Server struct {
	// RequestTimeout bounds each /ask and /search call. Zero means no limit.
	RequestTimeout time.Duration

	answerer  Answerer
	retriever Retriever
	counter   Counter
	log       *slog.Logger
	mux       *http.ServeMux
}

// New builds the handler. counter may be nil.
func New(answerer Answerer, retriever Retriever, counter Counter) *Server {
	s := &Server{
		answerer:  answerer,
		retriever: retriever,
		counter:   counter,
		log:       logging.New("http"),
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /ask", s.handleAsk)
	s.mux.HandleFunc("POST /search", s.handleSearch)
	return s
}

func (s *Server) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.RequestTimeout)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.log.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "elapsed", time.Since(start))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type errorBody struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var rf *retrieval.Failure
	var gf *pipeline.GenerationFailure
	switch {
	case errors.As(err, &rf):
		status = http.StatusServiceUnavailable
	case errors.As(err, &gf):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Hint: advice.For(err)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.counter != nil {
		n, err := s.counter.Count(r.Context())
		switch {
		case errors.Is(err, domain.ErrIndexMissing):
			body["status"] = "no_index"
		case err != nil:
			body["status"] = "degraded"
			body["error"] = err.Error()
		default:
			body["chunks"] = n
		}
	}
	writeJSON(w, http.StatusOK, body)
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	q := strings.TrimSpace(req.Question)
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "question is required"})
		return
	}
	ctx, cancel := s.requestContext(r.Context())
	defer cancel()
	env, err := s.answerer.Answer(ctx, q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

type searchRequest struct {
	Query string `json:"query"`
}

// SearchHit is one ranked passage in a search response.
type SearchHit struct {
	Rank     int     `json:"rank"`
	Distance float64 `json:"distance"`
	Source   string  `json:"source"`
	ChunkID  string  `json:"chunk_id"`
	Content  string  `json:"content"`
}

// SearchResponse is the retrieval diagnostic returned by /search.
type SearchResponse struct {
	Query      string      `json:"query"`
	Tier       string      `json:"tier"`
	BestScore  *float64    `json:"best_score,omitempty"`
	Annotation string      `json:"annotation,omitempty"`
	Hits       []SearchHit `json:"hits"`
}

// NewSearchResponse converts a retrieval result for JSON output.
func NewSearchResponse(query string, res retrieval.Result) SearchResponse {
	out := SearchResponse{Query: query, Tier: res.Tier.String(), Annotation: res.Annotation, Hits: []SearchHit{}}
	if !res.Empty() {
		best := res.BestScore
		out.BestScore = &best
	}
	for i, h := range res.Chunks {
		out.Hits = append(out.Hits, SearchHit{
			Rank:     i + 1,
			Distance: h.Distance,
			Source:   h.Chunk.Source,
			ChunkID:  h.Chunk.ID,
			Content:  h.Chunk.Content,
		})
	}
	return out
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	q := strings.TrimSpace(req.Query)
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "query is required"})
		return
	}
	ctx, cancel := s.requestContext(r.Context())
	defer cancel()
	res, err := s.retriever.Retrieve(ctx, q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSearchResponse(q, res))
}
