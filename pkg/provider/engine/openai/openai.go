// Package openai provides a correction engine backed directly by the OpenAI
// API. Prefer the anyllm provider unless an OpenAI-only feature (SSE
// streaming with usage accounting, organisation routing) is needed.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/inkbound/redline/pkg/provider/engine"
)

const correctionTemperature = 0.1

// Provider implements engine.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

var _ engine.Provider = (*Provider)(nil)

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) { c.organization = org }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a new OpenAI correction Provider.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Correct implements engine.Provider.
func (p *Provider) Correct(ctx context.Context, systemPrompt, text string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(systemPrompt, text))
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", engine.ErrEmptyResponse)
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", engine.ErrEmptyResponse
	}
	return out, nil
}

// CorrectStreaming implements engine.Provider.
func (p *Provider) CorrectStreaming(ctx context.Context, systemPrompt, text string, onChunk func(string)) (string, error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.buildParams(systemPrompt, text))
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		chunk := stream.Current()
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
	if err := stream.Err(); err != nil {
		return "", classify(err)
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", engine.ErrEmptyResponse
	}
	return out, nil
}

// Name implements engine.Provider.
func (p *Provider) Name() string { return "openai" }

// Model implements engine.Provider.
func (p *Provider) Model() string { return p.model }

func (p *Provider) buildParams(systemPrompt, text string) oai.ChatCompletionNewParams {
	return oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage(text),
		},
		Temperature: param.NewOpt(correctionTemperature),
	}
}

// classify maps OpenAI SDK errors into the engine error taxonomy.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", engine.ErrTimedOut, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", engine.ErrAuthenticationRequired, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", engine.ErrEngineNotFound, err)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %v", engine.ErrTimedOut, err)
		}
	}
	return fmt.Errorf("%w: %v", engine.ErrProcessFailed, err)
}
