// Package mock provides a test double for the engine.Provider interface.
//
// Responses configures what successive Correct calls return; each call
// consumes one entry and the last entry repeats. Set Errs alongside to
// inject failures per call. All invocations are recorded.
package mock

import (
	"context"
	"sync"
)

// Call records a single Correct or CorrectStreaming invocation.
type Call struct {
	SystemPrompt string
	Text         string
	Streaming    bool
}

// Provider is a mock implementation of engine.Provider.
// Safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Responses is the sequence of corrected texts returned by successive
	// calls. The last entry repeats; an empty slice echoes the input.
	Responses []string

	// Errs is the sequence of errors returned by successive calls, aligned
	// with Responses. A nil entry (or exhausted slice) means success.
	Errs []error

	// Chunks, when non-empty, is emitted via onChunk before
	// CorrectStreaming returns. Values are the accumulated text at each
	// step.
	Chunks []string

	// ProviderName and ModelName are returned by Name and Model.
	ProviderName string
	ModelName    string

	// Delay, when set by a hook, lets tests simulate slow engines.
	DelayFunc func(ctx context.Context)

	// --- Call records ---

	Calls []Call
}

func (p *Provider) Correct(ctx context.Context, systemPrompt, text string) (string, error) {
	return p.correct(ctx, systemPrompt, text, false, nil)
}

func (p *Provider) CorrectStreaming(ctx context.Context, systemPrompt, text string, onChunk func(string)) (string, error) {
	return p.correct(ctx, systemPrompt, text, true, onChunk)
}

func (p *Provider) correct(ctx context.Context, systemPrompt, text string, streaming bool, onChunk func(string)) (string, error) {
	p.mu.Lock()
	n := len(p.Calls)
	p.Calls = append(p.Calls, Call{SystemPrompt: systemPrompt, Text: text, Streaming: streaming})

	resp := text
	if len(p.Responses) > 0 {
		i := n
		if i >= len(p.Responses) {
			i = len(p.Responses) - 1
		}
		resp = p.Responses[i]
	}
	var err error
	if n < len(p.Errs) {
		err = p.Errs[n]
	}
	chunks := p.Chunks
	delay := p.DelayFunc
	p.mu.Unlock()

	if delay != nil {
		delay(ctx)
	}
	if err != nil {
		return "", err
	}
	if streaming && onChunk != nil {
		for _, c := range chunks {
			onChunk(c)
		}
	}
	return resp, nil
}

func (p *Provider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "mock"
}

func (p *Provider) Model() string {
	if p.ModelName != "" {
		return p.ModelName
	}
	return "mock-model"
}
