package domain

import "errors"

// Causes attached to collaborator failures. Adapters wrap these so callers can
// tell configuration problems apart from transient ones with errors.Is.
var (
	// ErrIndexMissing means no index has been built at the configured location.
	ErrIndexMissing = errors.New("index not found")
	// ErrEmbedderMismatch means the index was built with a different embedder.
	ErrEmbedderMismatch = errors.New("index was built with a different embedder")
	// ErrMissingCredential means a required API key is not configured.
	ErrMissingCredential = errors.New("missing credential")
	// ErrUnauthorized means the provider rejected the configured credential.
	ErrUnauthorized = errors.New("credential rejected")
	// ErrRateLimited means the provider throttled the request.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable means the provider could not be reached or failed server-side.
	ErrUnavailable = errors.New("service unavailable")
)
