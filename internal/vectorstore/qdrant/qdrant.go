package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

// Storage is a minimal REST client to Qdrant.
// It creates the collection on Init and converts Qdrant scores into distances
// so results compare the same way as the local stores.
type Storage struct {
	url        string
	apiKey     string
	collection string
	metric     vectorstore.Metric
	client     *http.Client

	mu        sync.Mutex
	dimension int
	seq       int
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Metric     vectorstore.Metric
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	metric := cfg.Metric
	if metric == "" {
		metric = vectorstore.MetricL2
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		metric:     metric,
		client:     &http.Client{Timeout: timeout},
	}
}

// qdrantDistance maps a metric onto the collection distance setting. Both
// l2 variants use Euclid; squared distances are derived from its score.
func (s *Storage) qdrantDistance() string {
	if s.metric == vectorstore.MetricCosine {
		return "Cosine"
	}
	return "Euclid"
}

func (s *Storage) toDistance(score float64) float64 {
	switch s.metric {
	case vectorstore.MetricCosine:
		return 1 - score
	case vectorstore.MetricEuclidean:
		return score
	default:
		return score * score
	}
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	s.dimension = dimension
	s.mu.Unlock()
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": s.qdrantDistance(),
		},
	}
	return s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil)
}

// PointID derives a stable Qdrant point id from a chunk id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	base := s.seq
	s.seq += len(chunks)
	s.mu.Unlock()

	points := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		points[i] = map[string]any{
			"id":     PointID(id),
			"vector": vectors[i],
			"payload": map[string]any{
				"chunk_id":    id,
				"document_id": c.DocumentID,
				"source":      c.Source,
				"index":       c.Index,
				"offset":      c.Offset,
				"content":     c.Content,
				"seq":         base + i,
			},
		}
	}
	body := map[string]any{"points": points}
	return s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body, nil)
}

type point struct {
	Score   float64 `json:"score"`
	Payload payload `json:"payload"`
}

type payload struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	Index      int    `json:"index"`
	Offset     int    `json:"offset"`
	Content    string `json:"content"`
	Seq        int    `json:"seq"`
}

func (p payload) chunk() domain.Chunk {
	return domain.Chunk{
		ID:         p.ChunkID,
		DocumentID: p.DocumentID,
		Source:     p.Source,
		Index:      p.Index,
		Offset:     p.Offset,
		Content:    p.Content,
	}
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.ScoredChunk, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []point `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.ScoredChunk, 0, len(resp.Result))
	seqs := make([]int, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.ScoredChunk{Chunk: r.Payload.chunk(), Distance: s.toDistance(r.Score)})
		seqs = append(seqs, r.Payload.Seq)
	}
	// Qdrant does not order ties; fall back to insertion order.
	idx := make([]int, len(results))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := results[idx[a]], results[idx[b]]
		if ra.Distance != rb.Distance {
			return ra.Distance < rb.Distance
		}
		return seqs[idx[a]] < seqs[idx[b]]
	})
	ordered := make([]domain.ScoredChunk, len(results))
	for i, j := range idx {
		ordered[i] = results[j]
	}
	return ordered, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// All scrolls through the collection and returns chunks in insertion order.
func (s *Storage) All(ctx context.Context) ([]domain.Chunk, error) {
	var collected []payload
	var offset any
	for {
		req := map[string]any{"limit": 256, "with_payload": true, "with_vector": false}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points         []point `json:"points"`
				NextPageOffset any     `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/scroll"), req, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			collected = append(collected, p.Payload)
		}
		if resp.Result.NextPageOffset == nil {
			break
		}
		offset = resp.Result.NextPageOffset
	}
	sort.SliceStable(collected, func(i, j int) bool { return collected[i].Seq < collected[j].Seq })
	out := make([]domain.Chunk, len(collected))
	for i, p := range collected {
		out[i] = p.chunk()
	}
	return out, nil
}

// Clear drops the collection. A missing collection is not an error.
func (s *Storage) Clear(ctx context.Context) error {
	err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if errors.Is(err, domain.ErrIndexMissing) {
		err = nil
	}
	if err == nil {
		s.mu.Lock()
		s.seq = 0
		s.mu.Unlock()
	}
	return err
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Storage) do(ctx context.Context, method, url string, body any, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode qdrant request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w: %v", method, url, domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("qdrant collection %s: %w", s.collection, domain.ErrIndexMissing)
	case resp.StatusCode >= 500:
		return fmt.Errorf("qdrant %s %s failed: %s: %w", method, url, resp.Status, domain.ErrUnavailable)
	case resp.StatusCode >= 300:
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
