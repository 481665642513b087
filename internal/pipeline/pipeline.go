package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"docqa/internal/domain"
	"docqa/internal/logging"
	"docqa/internal/prompt"
	"docqa/internal/retrieval"
)

// Envelope is the answer together with the question and the context it was
// generated from. All three JSON keys are always present.
type Envelope struct {
	Question string `json:"question"`
	Context  string `json:"context"`
	Answer   string `json:"answer"`

	// Retrieval carries the passages and tier behind Context for provenance views.
	Retrieval retrieval.Result `json:"-"`
}

// Empty reports whether the generator returned no text.
func (e Envelope) Empty() bool { return e.Answer == "" }

// GenerationFailure wraps an error raised by the generator.
type GenerationFailure struct {
	Err error
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationFailure) Unwrap() error { return e.Err }

// Retriever is the retrieval step of the pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (retrieval.Result, error)
}

// Pipeline answers questions from retrieved context. It holds no per-request
// state, so one Pipeline serves concurrent callers.
type Pipeline struct {
	retriever Retriever
	assembler prompt.Assembler
	generator domain.Generator
	log       *slog.Logger
}

// New creates a Pipeline.
func New(retriever Retriever, assembler prompt.Assembler, generator domain.Generator) *Pipeline {
	return &Pipeline{
		retriever: retriever,
		assembler: assembler,
		generator: generator,
		log:       logging.New("pipeline"),
	}
}

// Answer retrieves context for query, renders the guardrail prompt and calls
// the generator once. Retrieval errors come back as *retrieval.Failure and
// generator errors as *GenerationFailure; neither is retried.
//
// When nothing is retrieved the generator still runs with the sentinel
// context so refusal wording stays in the prompt rules.
func (p *Pipeline) Answer(ctx context.Context, query string) (Envelope, error) {
	res, err := p.retriever.Retrieve(ctx, query)
	if err != nil {
		p.log.ErrorContext(ctx, "retrieval failed", "error", err)
		return Envelope{}, err
	}

	rendered, err := p.assembler.Assemble(res.Context, query)
	if err != nil {
		return Envelope{}, fmt.Errorf("assemble prompt: %w", err)
	}

	answer, err := p.generator.Generate(ctx, rendered)
	if err != nil {
		p.log.ErrorContext(ctx, "generation failed", "error", err)
		return Envelope{}, &GenerationFailure{Err: err}
	}

	env := Envelope{Question: query, Context: res.Context, Answer: answer, Retrieval: res}
	if env.Empty() {
		p.log.WarnContext(ctx, "generator returned an empty answer",
			"tier", res.Tier.String(), "passages", len(res.Chunks))
	} else {
		p.log.InfoContext(ctx, "answered",
			"tier", res.Tier.String(), "passages", len(res.Chunks), "answer_len", len(answer))
	}
	return env, nil
}
