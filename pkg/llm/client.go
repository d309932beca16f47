// Package llm provides provider-agnostic chat completion for the
// analyzer. The provider set is closed: OpenAI and Anthropic.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/codeready-toolchain/argus/pkg/config"
)

// ErrUnavailable is returned when the provider keeps failing or times out.
var ErrUnavailable = errors.New("llm provider unavailable")

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// Completion is the provider response plus usage accounting.
type Completion struct {
	Text       string
	TokensIn   int
	TokensOut  int
	ProviderID string
}

// Client is the chat completion surface the analyzer depends on.
type Client interface {
	// Complete sends the conversation and returns the completion. The
	// caller bounds ctx; failures surface as ErrUnavailable.
	Complete(ctx context.Context, messages []Message) (*Completion, error)

	// ProviderID identifies the provider and model, e.g. "openai/gpt-4o-mini".
	ProviderID() string
}

// NewClient maps the configured provider to a concrete client.
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return newOpenAIClient(cfg), nil
	case "anthropic":
		return newAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// retryTransient runs operation with exponential backoff, up to
// maxRetries retries with doubling delay. Wrap non-retryable failures in
// backoff.Permanent inside the operation; everything else is treated as
// a transient provider error.
func retryTransient(ctx context.Context, maxRetries int, operation func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(newExponential(), uint64(maxRetries)), ctx)
	return backoff.Retry(operation, policy)
}

func newExponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0
	return b
}

// splitMessages separates the system prompt from user turns, the shape
// both provider APIs want.
func splitMessages(messages []Message) (system string, user []Message) {
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		user = append(user, m)
	}
	return system, user
}
