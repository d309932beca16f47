package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/codeready-toolchain/argus/pkg/config"
)

type openAIClient struct {
	api         openai.Client
	model       string
	temperature float64
	maxTokens   int
	maxRetries  int
}

func newOpenAIClient(cfg config.LLMConfig) *openAIClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &openAIClient{
		api:         openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxRetries:  cfg.MaxRetries,
	}
}

func (c *openAIClient) ProviderID() string { return "openai/" + c.model }

func (c *openAIClient) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(c.model),
		Temperature:         openai.Float(c.temperature),
		MaxCompletionTokens: openai.Int(int64(c.maxTokens)),
	}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	var resp *openai.ChatCompletion
	operation := func() error {
		completion, err := c.api.Chat.Completions.New(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if len(completion.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("provider returned no choices"))
		}
		resp = completion
		return nil
	}

	if err := retryTransient(ctx, c.maxRetries, operation); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &Completion{
		Text:       resp.Choices[0].Message.Content,
		TokensIn:   int(resp.Usage.PromptTokens),
		TokensOut:  int(resp.Usage.CompletionTokens),
		ProviderID: c.ProviderID(),
	}, nil
}
