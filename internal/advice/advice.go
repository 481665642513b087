// Package advice turns pipeline errors into short remediation hints for
// people reading CLI, TUI or HTTP output.
package advice

import (
	"context"
	"errors"

	"docqa/internal/domain"
	"docqa/internal/pipeline"
	"docqa/internal/retrieval"
)

// For returns a hint for err, or "" when none applies.
func For(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrIndexMissing):
		return "No index found. Run `docqa ingest <files>` first."
	case errors.Is(err, domain.ErrEmbedderMismatch):
		return "The index was built with a different embedder. Re-run `docqa ingest` or restore the previous embedder setting."
	case errors.Is(err, domain.ErrMissingCredential):
		return "An API key is missing. Set it in the environment or a .env file (OPENROUTER_API_KEY by default)."
	case errors.Is(err, domain.ErrUnauthorized):
		return "The provider rejected the API key. Check that it is valid for the configured endpoint."
	case errors.Is(err, domain.ErrRateLimited):
		return "The provider is rate limiting requests. Wait and try again."
	case errors.Is(err, domain.ErrUnavailable):
		return "The model or vector store could not be reached. Check that it is running and the URL is correct."
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out. Raise generator.timeout_secs or try a smaller model."
	}
	var rf *retrieval.Failure
	if errors.As(err, &rf) {
		return "Retrieval failed. Check the vector store configuration."
	}
	var gf *pipeline.GenerationFailure
	if errors.As(err, &gf) {
		return "Answer generation failed. Check the generator configuration."
	}
	return ""
}
