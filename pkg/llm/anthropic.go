package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"

	"github.com/codeready-toolchain/argus/pkg/config"
)

type anthropicClient struct {
	api         anthropic.Client
	model       string
	temperature float64
	maxTokens   int
	maxRetries  int
}

func newAnthropicClient(cfg config.LLMConfig) *anthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicClient{
		api:         anthropic.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxRetries:  cfg.MaxRetries,
	}
}

func (c *anthropicClient) ProviderID() string { return "anthropic/" + c.model }

func (c *anthropicClient) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	system, user := splitMessages(messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(c.maxTokens),
		Temperature: anthropic.Float(c.temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, m := range user {
		params.Messages = append(params.Messages,
			anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}

	var resp *anthropic.Message
	operation := func() error {
		message, err := c.api.Messages.New(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		resp = message
		return nil
	}

	if err := retryTransient(ctx, c.maxRetries, operation); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &Completion{
		Text:       sb.String(),
		TokensIn:   int(resp.Usage.InputTokens),
		TokensOut:  int(resp.Usage.OutputTokens),
		ProviderID: c.ProviderID(),
	}, nil
}
