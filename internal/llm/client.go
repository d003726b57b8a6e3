// Package llm wraps the chat-completion provider behind a small text-in /
// text-out interface with buffered and streamed variants.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hopline-ai/hopline/internal/config"
	"github.com/hopline-ai/hopline/internal/metrics"
	"github.com/hopline-ai/hopline/internal/tracing"
)

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("llm provider not configured")

// Message is one chat turn handed to the provider.
type Message struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

// Provider is the completion interface the orchestrator depends on.
type Provider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Stream(ctx context.Context, messages []Message, onChunk func(string) error) (string, error)
}

// Client is the OpenAI-compatible Provider. A custom base URL points it at
// any compatible gateway.
type Client struct {
	cfg    config.OpenAIConfig
	api    *openai.Client
	logger *zap.Logger
}

// NewClient creates a provider client from configuration.
func NewClient(cfg config.OpenAIConfig, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	return &Client{
		cfg:    cfg,
		api:    openai.NewClientWithConfig(apiCfg),
		logger: logger,
	}
}

// Complete runs a buffered chat completion and returns the full text.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ctx, span := tracing.StartLLMSpan(ctx, c.cfg.Model)
	defer span.End()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: toOpenAI(messages),
	})
	if err != nil {
		metrics.RecordLLM(c.cfg.Model, "error", time.Since(start).Seconds())
		return "", fmt.Errorf("chat completion: %w", err)
	}
	metrics.RecordLLM(c.cfg.Model, "success", time.Since(start).Seconds())

	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream runs a streamed completion, invoking onChunk for every delta. It
// returns whatever content was accumulated; on timeout or cancellation the
// partial content comes back together with the context error so the caller
// can finalise it.
func (c *Client) Stream(ctx context.Context, messages []Message, onChunk func(string) error) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ctx, span := tracing.StartLLMSpan(ctx, c.cfg.Model)
	defer span.End()

	start := time.Now()
	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: toOpenAI(messages),
		Stream:   true,
	})
	if err != nil {
		metrics.RecordLLM(c.cfg.Model, "error", time.Since(start).Seconds())
		return "", fmt.Errorf("open completion stream: %w", err)
	}
	defer stream.Close()

	var full string
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			metrics.RecordLLM(c.cfg.Model, "success", time.Since(start).Seconds())
			return full, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				metrics.RecordLLM(c.cfg.Model, "timeout", time.Since(start).Seconds())
				return full, ctx.Err()
			}
			metrics.RecordLLM(c.cfg.Model, "error", time.Since(start).Seconds())
			return full, fmt.Errorf("stream recv: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full += delta
		if err := onChunk(delta); err != nil {
			// client went away; keep what we have
			return full, err
		}
	}
}

func toOpenAI(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
