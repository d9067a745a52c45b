// Package anyllm provides a correction engine backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and
// more.
//
// Usage:
//
//	p, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-ant-..."))
//	corrected, err := p.Correct(ctx, prompt, text)
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/inkbound/redline/pkg/provider/engine"
)

// correctionTemperature keeps the engine deterministic; correction is not a
// creative task.
const correctionTemperature = 0.1

// Provider implements engine.Provider by wrapping any-llm-go.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
}

var _ engine.Provider = (*Provider)(nil)

// New creates a Provider backed by the given backend name.
//
// backendName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp", "llamafile". model is the
// specific model to use. opts are any-llm-go options (e.g.,
// anyllmlib.WithAPIKey, anyllmlib.WithBaseURL); without an API key option
// the backend falls back to its conventional environment variable.
func New(backendName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if backendName == "" {
		return nil, fmt.Errorf("anyllm: backendName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(backendName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", backendName, err)
	}
	return &Provider{backend: backend, name: "anyllm/" + strings.ToLower(backendName), model: model}, nil
}

// Correct implements engine.Provider.
func (p *Provider) Correct(ctx context.Context, systemPrompt, text string) (string, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(systemPrompt, text))
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", engine.ErrEmptyResponse)
	}

	out := strings.TrimSpace(resp.Choices[0].Message.ContentString())
	if out == "" {
		return "", engine.ErrEmptyResponse
	}
	return out, nil
}

// CorrectStreaming implements engine.Provider.
func (p *Provider) CorrectStreaming(ctx context.Context, systemPrompt, text string, onChunk func(string)) (string, error) {
	chunks, errs := p.backend.CompletionStream(ctx, p.buildParams(systemPrompt, text))

	var sb strings.Builder
	for chunk := range chunks {
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if onChunk != nil {
			onChunk(sb.String())
		}
	}
	if err := <-errs; err != nil {
		return "", classify(err)
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", engine.ErrEmptyResponse
	}
	return out, nil
}

// Name implements engine.Provider.
func (p *Provider) Name() string { return p.name }

// Model implements engine.Provider.
func (p *Provider) Model() string { return p.model }

func (p *Provider) buildParams(systemPrompt, text string) anyllmlib.CompletionParams {
	temp := correctionTemperature
	return anyllmlib.CompletionParams{
		Model:       p.model,
		Temperature: &temp,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: systemPrompt},
			{Role: anyllmlib.RoleUser, Content: text},
		},
	}
}

// classify maps backend errors into the engine error taxonomy. any-llm-go
// surfaces HTTP-level failures as wrapped errors without typed sentinels, so
// classification falls back to message inspection.
func classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", engine.ErrTimedOut, err)
	case errors.Is(err, context.Canceled):
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "api key") || strings.Contains(msg, "authentication"):
		return fmt.Errorf("%w: %v", engine.ErrAuthenticationRequired, err)
	case strings.Contains(msg, "404") || strings.Contains(msg, "model not found") ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "connection refused"):
		return fmt.Errorf("%w: %v", engine.ErrEngineNotFound, err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return fmt.Errorf("%w: %v", engine.ErrTimedOut, err)
	default:
		return fmt.Errorf("%w: %v", engine.ErrProcessFailed, err)
	}
}

// createBackend creates the underlying any-llm-go provider.
func createBackend(name string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(name) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported backend %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", name)
	}
}
