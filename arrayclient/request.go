package arrayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"purearray-pve-plugin/pureerr"
)

// doOpts lets call sites pass query parameters (v2 dialect) independently of
// the JSON body, since the v1/v2 divergence over path-segment-vs-query-string
// for names/host_names/volume_names/source_names is exactly the kind of
// per-call detail dialect.go's helpers resolve before reaching here.
type doOpts struct {
	query        url.Values
	notFoundOK   bool // get_* style: 404 becomes ("", false) to the caller, not an error
}

// do sends one request, applying the auth header and retrying on 401 once
// after invalidating the session and re-authenticating. A 404 is returned
// without error when opts.notFoundOK is set; any other status of 300 or
// above is turned into a typed error by classifyBody. The transport-level
// retry loop for 429/5xx has already been run by retryablehttp before
// send's Do() call returns.
func (c *Client) do(ctx context.Context, method, path string, body map[string]interface{},
	opts doOpts) ([]byte, int, error) {
	if err := c.EnsureFresh(ctx); err != nil {
		return nil, 0, err
	}

	resp, statusCode, raw, err := c.send(ctx, method, path, body, opts)
	if err != nil {
		return nil, 0, err
	}

	if statusCode == http.StatusUnauthorized {
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()

		if loginErr := c.login(ctx); loginErr != nil {
			return nil, statusCode, loginErr
		}

		resp, statusCode, raw, err = c.send(ctx, method, path, body, opts)
		if err != nil {
			return nil, 0, err
		}
	}
	_ = resp

	if statusCode >= 300 {
		if statusCode == http.StatusNotFound && opts.notFoundOK {
			return raw, statusCode, nil
		}
		return raw, statusCode, classifyBody(statusCode, raw, method+" "+path)
	}

	return raw, statusCode, nil
}

func (c *Client) send(ctx context.Context, method, path string, body map[string]interface{},
	opts doOpts) (*http.Response, int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, nil, err
		}
		reader = bytes.NewReader(b)
	}

	fullPath := path
	if opts.query != nil && len(opts.query) > 0 {
		fullPath += "?" + opts.query.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+fullPath, reader)
	if err != nil {
		return nil, 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("x-auth-token", token)
	}

	c.sem.Acquire()
	resp, err := c.http.Do(req)
	c.sem.Release()
	if err != nil {
		return nil, 0, nil, pureerr.New(pureerr.KindTransient, method+" "+path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, nil, err
	}

	return resp, resp.StatusCode, raw, nil
}

// v2ErrorItem/v2ErrorBody and v1ErrorBody mirror the two dialects' error
// envelopes.
type v2ErrorItem struct {
	Context string `json:"context"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type v2ErrorBody struct {
	Errors []v2ErrorItem `json:"errors"`
}

type v1ErrorBody struct {
	Msg string `json:"msg"`
}

// classifyHTTPStatus is the variant called from client.go's login path,
// where the body hasn't been read yet (body is accepted for symmetry with
// call sites that already have it, but is re-read from resp when nil).
func classifyHTTPStatus(resp *http.Response, body []byte, operation string) error {
	if body == nil {
		body, _ = io.ReadAll(resp.Body)
	}
	return classifyBody(resp.StatusCode, body, operation)
}

// classifyBody is the one adapter boundary allowed to pattern-match on the
// array's error message text. Every other layer consumes the typed
// *pureerr.Error it returns.
func classifyBody(statusCode int, raw []byte, operation string) error {
	message, code := extractErrorMessage(raw)

	kind := kindForStatus(statusCode)
	e := pureerr.New(kind, operation, fmt.Errorf("%s", message))
	e.WithHint(hintFor(statusCode, message, code))
	return e
}

func extractErrorMessage(raw []byte) (message, code string) {
	var v2 v2ErrorBody
	if err := json.Unmarshal(raw, &v2); err == nil && len(v2.Errors) > 0 {
		item := v2.Errors[0]
		msg := item.Message
		if item.Context != "" {
			msg = msg + " (" + item.Context + ")"
		}
		return msg, item.Code
	}

	var v1 v1ErrorBody
	if err := json.Unmarshal(raw, &v1); err == nil && v1.Msg != "" {
		return v1.Msg, ""
	}

	return string(raw), ""
}

func kindForStatus(statusCode int) pureerr.Kind {
	switch {
	case statusCode == http.StatusNotFound:
		return pureerr.KindNotFound
	case statusCode == http.StatusConflict:
		return pureerr.KindConflict
	case statusCode == http.StatusUnauthorized:
		return pureerr.KindAuthExpired
	case statusCode == http.StatusTooManyRequests, statusCode >= 500:
		return pureerr.KindTransient
	default:
		return pureerr.KindConflict // other 4xx: not retryable, but also not a hard taxonomy fit — treat as surfaced-as-is
	}
}

// hintFor attaches an operator-facing hint for the common 401/403/404/409/
// quota/capacity/503 cases a caller is likely to hit.
func hintFor(statusCode int, message, code string) string {
	switch statusCode {
	case http.StatusUnauthorized:
		return "session expired or credentials invalid; re-authenticate"
	case http.StatusForbidden:
		return "the configured credentials lack permission for this operation"
	case http.StatusNotFound:
		return "the named object does not exist on the array"
	case http.StatusConflict:
		return conflictHint(message, code)
	case http.StatusServiceUnavailable:
		return "array is temporarily unavailable; safe to retry"
	}
	lower := message
	switch {
	case containsFold(lower, "quota"):
		return "pod or volume quota exceeded"
	case containsFold(lower, "capacity") || containsFold(lower, "space"):
		return "array capacity exhausted"
	}
	return ""
}

func conflictHint(message, code string) string {
	switch {
	case containsFold(message, "already exists"):
		return "benign if racing a peer creating the same object"
	case containsFold(message, "already in use"), containsFold(message, "already connected"):
		return "benign if this is a retry of our own prior attempt"
	case containsFold(message, "has dependent"), containsFold(message, "dependent volume"):
		return "remove linked clones before deleting this snapshot"
	case containsFold(message, "in use"):
		return "the object is attached elsewhere; disconnect it first"
	default:
		return ""
	}
}

func containsFold(s, substr string) bool {
	return len(s) >= len(substr) && indexFold(s, substr) >= 0
}

func indexFold(s, substr string) int {
	// Small local case-insensitive search; avoids pulling strings.ToLower
	// allocations into the hot error path for the common "no match" case
	// by scanning directly.
	n, m := len(s), len(substr)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if equalFold(s[i:i+m], substr) {
			return i
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
