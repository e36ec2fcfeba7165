package arrayclient

import (
	"context"
	"net/http"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
)

// checkRetry implements the §7 policy table at the transport level: retry
// 429 and 5xx, except a non-idempotent POST on 5xx (the array may have
// already applied the mutation; retrying blind risks a double-apply).
// Everything else (2xx, other 4xx) is left alone here — 401 is handled one
// layer up in Client.do, since it needs session state retryablehttp doesn't
// have.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		// Connection resets and other transport-level failures: defer to
		// the library's own judgment about which are retryable (redirect
		// loops and malformed requests are not; connection resets are).
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	if resp == nil {
		return false, nil
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, nil
	case resp.StatusCode >= 500:
		if resp.Request != nil && resp.Request.Method == http.MethodPost {
			return false, nil
		}
		return true, nil
	default:
		return false, nil
	}
}

// backoff implements "retry_delay × attempt" from the §7 policy table.
func backoff(retryDelay time.Duration) retryablehttp.Backoff {
	return func(min, max time.Duration, attempt int, resp *http.Response) time.Duration {
		d := retryDelay * time.Duration(attempt+1)
		if d > max {
			return max
		}
		if d < min {
			return min
		}
		return d
	}
}
