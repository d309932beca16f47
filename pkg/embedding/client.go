// Package embedding turns alert text into fixed-dimension vectors for the
// SIEM index k-NN field.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/codeready-toolchain/argus/pkg/metrics"
	"github.com/codeready-toolchain/argus/pkg/models"
)

// ErrUnavailable is returned when the embedding provider keeps failing
// after backoff exhaustion.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Client produces embeddings for alert text.
type Client interface {
	// Embed returns the vector for a piece of text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedAlert embeds the alert's summary projection.
	EmbedAlert(ctx context.Context, alert *models.Alert) ([]float32, error)

	// Dimension returns the configured output width.
	Dimension() int
}

var _ Client = (*OpenAIClient)(nil)

// OpenAIClient calls the OpenAI embeddings endpoint and post-processes the
// result to the configured dimension: prefix truncation (Matryoshka) when
// the provider returns a wider vector, then L2 normalization.
type OpenAIClient struct {
	api        openai.Client
	model      string
	dimension  int
	maxRetries int
	metrics    *metrics.Metrics
}

// NewOpenAIClient builds the embedding client. dimension must be in
// [1, provider width]; metrics may be nil in tests.
func NewOpenAIClient(apiKey, baseURL, model string, dimension, maxRetries int, m *metrics.Metrics) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{
		api:        openai.NewClient(opts...),
		model:      model,
		dimension:  dimension,
		maxRetries: maxRetries,
		metrics:    m,
	}
}

// Dimension returns the configured output width.
func (c *OpenAIClient) Dimension() int { return c.dimension }

// Embed returns the normalized vector for text, retrying transient
// provider failures with doubling delay.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var raw []float64

	operation := func() error {
		resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
			Model: openai.EmbeddingModel(c.model),
		})
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if len(resp.Data) == 0 {
			return backoff.Permanent(fmt.Errorf("provider returned no embedding data"))
		}
		raw = resp.Data[0].Embedding
		if c.metrics != nil {
			c.metrics.EmbeddingTokens.Add(float64(resp.Usage.PromptTokens))
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newExponential(), uint64(c.maxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Error("Embedding failed after retries", "model", c.model, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return Normalize(Truncate(raw, c.dimension)), nil
}

// EmbedAlert embeds the alert's summary projection.
func (c *OpenAIClient) EmbedAlert(ctx context.Context, alert *models.Alert) ([]float32, error) {
	return c.Embed(ctx, alert.Summary())
}

func newExponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0
	return b
}

// Truncate keeps the vector prefix when the provider returns more
// dimensions than configured. Matryoshka-trained models degrade
// gracefully under prefix truncation.
func Truncate(v []float64, dim int) []float64 {
	if dim > 0 && len(v) > dim {
		return v[:dim]
	}
	return v
}

// Normalize L2-normalizes into float32, the width the k-NN field stores.
// A zero vector is returned unchanged.
func Normalize(v []float64) []float32 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}
