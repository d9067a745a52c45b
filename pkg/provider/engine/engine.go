// Package engine defines the Provider interface for external text-correction
// backends.
//
// A correction engine takes a system prompt and the text to correct and
// returns the corrected text. Backends range from hosted LLM APIs to a local
// model subprocess; the orchestrator stays agnostic to which is in use.
//
// Failures are classified into a closed taxonomy of sentinel errors so
// callers can decide between surfacing the failure and retrying once on a
// fallback model: [ErrEngineNotFound] and [ErrAuthenticationRequired] need a
// configuration change by the user, while [ErrProcessFailed], [ErrTimedOut],
// and [ErrEmptyResponse] are transient (see [Retriable]).
//
// Implementations must be safe for concurrent use and must honour context
// cancellation; timeouts are owned by the caller's context, not
// re-implemented per backend.
package engine

import (
	"context"
	"errors"
)

// Sentinel errors classifying engine failures. Implementations wrap these
// with backend detail; callers match with errors.Is.
var (
	// ErrEngineNotFound means the backend binary, script, or endpoint is
	// missing or unreachable. Requires user configuration; never retried.
	ErrEngineNotFound = errors.New("correction engine not found")

	// ErrAuthenticationRequired means the backend rejected the configured
	// credentials. Requires user configuration; never retried.
	ErrAuthenticationRequired = errors.New("correction engine authentication required")

	// ErrProcessFailed means the backend started but failed mid-request.
	ErrProcessFailed = errors.New("correction engine process failed")

	// ErrTimedOut means the request exceeded the caller's deadline.
	ErrTimedOut = errors.New("correction engine timed out")

	// ErrEmptyResponse means the backend returned no usable text.
	ErrEmptyResponse = errors.New("correction engine returned an empty response")
)

// Retriable reports whether err warrants a single retry on a fallback
// model. Only transient failures qualify; configuration errors do not.
func Retriable(err error) bool {
	return errors.Is(err, ErrProcessFailed) ||
		errors.Is(err, ErrTimedOut) ||
		errors.Is(err, ErrEmptyResponse)
}

// Provider is the abstraction over any correction backend. One Provider
// instance is bound to one model; model fallback is expressed by
// constructing a second Provider, not by per-request overrides.
type Provider interface {
	// Correct sends text to the backend under systemPrompt and returns the
	// corrected text. The call may be long-running; cancellation comes
	// from ctx.
	Correct(ctx context.Context, systemPrompt, text string) (string, error)

	// CorrectStreaming behaves like Correct but invokes onChunk with the
	// accumulated text so far as chunks arrive. onChunk is called from a
	// single goroutine; the final accumulated value equals the returned
	// string. Backends without native streaming call onChunk once with the
	// full result.
	CorrectStreaming(ctx context.Context, systemPrompt, text string, onChunk func(accumulated string)) (string, error)

	// Name identifies the backend (e.g., "anyllm/openai", "local") for
	// history records and metrics.
	Name() string

	// Model identifies the bound model.
	Model() string
}
