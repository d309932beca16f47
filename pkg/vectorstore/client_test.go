package vectorstore

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryableStatus(t *testing.T) {
	assert.True(t, retryableStatus(http.StatusInternalServerError))
	assert.True(t, retryableStatus(http.StatusServiceUnavailable))
	assert.True(t, retryableStatus(http.StatusTooManyRequests))
	assert.False(t, retryableStatus(http.StatusBadRequest))
	assert.False(t, retryableStatus(http.StatusNotFound))
	assert.False(t, retryableStatus(http.StatusOK))
}

func TestWithRetry_RecoversAfterTransientFailure(t *testing.T) {
	store := &OpenSearchStore{maxRetries: 3}

	attempts := 0
	err := store.withRetry(context.Background(), func() error {
		attempts++
		if attempts < 2 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestWithRetry_ExhaustsAfterMaxRetries(t *testing.T) {
	store := &OpenSearchStore{maxRetries: 2}

	attempts := 0
	err := store.withRetry(context.Background(), func() error {
		attempts++
		return errors.New("cluster down")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")
}

func TestWithRetry_PermanentStopsImmediately(t *testing.T) {
	store := &OpenSearchStore{maxRetries: 5}

	attempts := 0
	err := store.withRetry(context.Background(), func() error {
		attempts++
		return backoff.Permanent(errors.New("mapping conflict"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
