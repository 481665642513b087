// Package openai generates answers through an OpenAI-compatible chat
// completions endpoint such as OpenRouter or OpenAI itself.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"docqa/internal/domain"
)

const (
	DefaultBaseURL   = "https://openrouter.ai/api/v1"
	DefaultModel     = "openai/gpt-3.5-turbo"
	DefaultAPIKeyEnv = "OPENROUTER_API_KEY"
)

// Config configures the chat completions client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Generator sends one user message per prompt and returns the first choice.
// Requests are never retried.
type Generator struct {
	cfg    Config
	client *openai.Client
}

// New creates a generator. A missing API key is not an error here; it is
// reported by Generate so the rest of the system can start without it.
func New(cfg Config) *Generator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = DefaultAPIKeyEnv
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	g := &Generator{cfg: cfg}
	if key := os.Getenv(cfg.APIKeyEnv); key != "" {
		c := openai.NewClient(
			option.WithAPIKey(key),
			option.WithBaseURL(cfg.BaseURL),
			option.WithMaxRetries(0),
			option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		)
		g.client = &c
	}
	return g
}

// Model returns the configured model name.
func (g *Generator) Model() string { return g.cfg.Model }

// Generate returns the model output for prompt. An empty completion is
// returned as an empty string without error.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.client == nil {
		return "", fmt.Errorf("chat completions: env %s is empty: %w", g.cfg.APIKeyEnv, domain.ErrMissingCredential)
	}
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(g.cfg.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completions %s: %w", g.cfg.Model, classify(err))
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func classify(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	switch code := apiErr.StatusCode; {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	case code >= 500:
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return err
}
