// Package llm produces meeting, item, and matter summaries through the
// Anthropic API, paced by the provider rate limiter.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agendawatch/agendawatch/pkg/config"
	"github.com/agendawatch/agendawatch/pkg/ratelimit"
)

// messagesAPI is the slice of the Anthropic SDK the client uses. Tests
// substitute a fake; production wires the real MessageService.
type messagesAPI interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Client is the summarization client. All calls flow through the
// provider limiter and observe the provider's rate-limit headers.
type Client struct {
	cfg      *config.LLMConfig
	limiter  *ratelimit.ProviderLimiter
	messages messagesAPI
	logger   *slog.Logger

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Client backed by the real Anthropic SDK.
func New(cfg *config.LLMConfig, limiter *ratelimit.ProviderLimiter, logger *slog.Logger) *Client {
	sdk := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return newClient(cfg, limiter, &sdk.Messages, logger)
}

func newClient(cfg *config.LLMConfig, limiter *ratelimit.ProviderLimiter, messages messagesAPI, logger *slog.Logger) *Client {
	return &Client{
		cfg:      cfg,
		limiter:  limiter,
		messages: messages,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Complete issues one completion, pacing through the limiter first. A
// rate-limit error triggers one wait-and-retry; a second failure
// propagates.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	text, err := c.completeOnce(ctx, prompt)
	if err == nil {
		return text, nil
	}
	if !ratelimit.IsRateLimitError(err) {
		return "", err
	}

	wait := ratelimit.WaitFromError(err)
	c.logger.Warn("provider rate limited, backing off",
		"model", c.cfg.Model, "wait", wait, "error", err)
	if serr := c.sleep(ctx, wait); serr != nil {
		return "", serr
	}
	return c.completeOnce(ctx, prompt)
}

func (c *Client) completeOnce(ctx context.Context, prompt string) (string, error) {
	if d := c.limiter.ShouldWait(c.cfg.Model); d > 0 {
		if err := c.sleep(ctx, d); err != nil {
			return "", err
		}
	}
	c.limiter.RecordRequest(c.cfg.Model)

	var raw *http.Response
	msg, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(c.cfg.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}, option.WithResponseInto(&raw))
	if raw != nil {
		c.limiter.ObserveHeaders(c.cfg.Model, raw.Header)
	}
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", fmt.Errorf("completion returned no text")
	}
	return text, nil
}
