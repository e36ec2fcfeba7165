package arrayclient

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func resp(code int, method string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Request:    &http.Request{Method: method},
	}
}

func TestCheckRetryRetriesTooManyRequests(t *testing.T) {
	retry, err := checkRetry(context.Background(), resp(http.StatusTooManyRequests, http.MethodGet), nil)
	assert.NoError(t, err)
	assert.True(t, retry)
}

func TestCheckRetryRetries5xxOnGet(t *testing.T) {
	retry, err := checkRetry(context.Background(), resp(http.StatusServiceUnavailable, http.MethodGet), nil)
	assert.NoError(t, err)
	assert.True(t, retry)
}

func TestCheckRetryDoesNotRetry5xxOnPost(t *testing.T) {
	retry, err := checkRetry(context.Background(), resp(http.StatusInternalServerError, http.MethodPost), nil)
	assert.NoError(t, err)
	assert.False(t, retry, "a non-idempotent POST must not be retried blind on 5xx")
}

func TestCheckRetryDoesNotRetryOtherClientErrors(t *testing.T) {
	retry, err := checkRetry(context.Background(), resp(http.StatusNotFound, http.MethodGet), nil)
	assert.NoError(t, err)
	assert.False(t, retry)

	retry, err = checkRetry(context.Background(), resp(http.StatusConflict, http.MethodPost), nil)
	assert.NoError(t, err)
	assert.False(t, retry)
}

func TestCheckRetryHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	retry, err := checkRetry(ctx, resp(http.StatusOK, http.MethodGet), nil)
	assert.Error(t, err)
	assert.False(t, retry)
}

func TestBackoffScalesByAttemptAndClampsToBounds(t *testing.T) {
	b := backoff(500 * time.Millisecond)

	assert.Equal(t, 500*time.Millisecond, b(0, 10*time.Second, 0, nil))
	assert.Equal(t, time.Second, b(0, 10*time.Second, 1, nil))
	assert.Equal(t, 2*time.Second, b(0, 10*time.Second, 3, nil))
	assert.Equal(t, 10*time.Second, b(0, 10*time.Second, 100, nil), "clamps to max")
	assert.Equal(t, 5*time.Second, b(5*time.Second, 10*time.Second, 0, nil), "clamps to min")
}
