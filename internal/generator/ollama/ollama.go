// Package ollama generates answers with a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docqa/internal/domain"
)

const (
	DefaultURL   = "http://localhost:11434"
	DefaultModel = "llama3"
)

type Config struct {
	URL         string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Generator calls POST /api/generate without streaming.
type Generator struct {
	url         string
	model       string
	temperature float64
	client      *http.Client
}

func New(cfg Config) *Generator {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Generator{
		url:         strings.TrimRight(cfg.URL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

// Model returns the configured model name.
func (g *Generator) Model() string { return g.model }

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	data, err := json.Marshal(generateRequest{
		Model:   g.model,
		Prompt:  prompt,
		Stream:  false,
		Options: map[string]any{"temperature": g.temperature},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("ollama %s: %w: %v", g.url, domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama read response: %w", err)
	}
	var out generateResponse
	_ = json.Unmarshal(body, &out)
	switch {
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("ollama %s: %s %s: %w", g.model, resp.Status, out.Error, domain.ErrUnavailable)
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("ollama %s: %s %s", g.model, resp.Status, out.Error)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama %s: %s", g.model, out.Error)
	}
	return out.Response, nil
}
