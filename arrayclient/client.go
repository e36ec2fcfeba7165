// Package arrayclient speaks HTTPS+JSON to a single Pure Storage FlashArray
// endpoint. It is the only component in this repository that speaks HTTP,
// and it hides the v1/v2 REST dialect divergence behind one set of public
// methods that always return purearray-pve-plugin/model structs.
//
// The transport is github.com/hashicorp/go-retryablehttp (grounded on
// platform9-vjailbreak/v2v-helper, which imports it directly) configured
// with a CheckRetry/Backoff pair implementing the §7 retry policy table.
// Session authentication (401-then-reauth-once) is layered above
// retryablehttp in Client.do, since retryablehttp has no notion of our
// session token.
package arrayclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"purearray-pve-plugin/pureerr"
	"purearray-pve-plugin/purelog"
)

// Preferred, newest-biased v2.x versions probed during negotiation, plus the
// legacy v1 dialect as a fallback. Negotiation walks this list in order and
// keeps the first version the array also advertises support for.
var preferredVersions = []string{"2.21", "2.16", "2.11", "2.4", "2.2", "2.0", "1.19", "1.17", "1.14", "1.11"}

const defaultVersion = "2.21"

// maxConcurrentRequests bounds how many requests one Client has in flight
// against its array at once.
const maxConcurrentRequests = 32

// Config configures a new Client.
type Config struct {
	Portal     string // host or host:port
	APIToken   string
	Username   string
	Password   string
	SSLVerify  bool
	HTTPClient *http.Client // optional override, mainly for tests
}

// Client is the array's REST transport plus detected version/session state.
// A Client is bound to one host process; forked workers must call
// EnsureFresh (or simply construct a new Client) because a session
// token is not safe to share across a fork.
type Client struct {
	cfg Config

	baseURL string
	http    *retryablehttp.Client
	sem     *requestSemaphore

	mu       sync.Mutex
	version  string // "1" or "2"
	token    string
	loginPID int
}

// dialectVersion reports the major dialect ("1" or "2") selected during
// NewClient's version negotiation.
func (c *Client) dialectVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// NewClient creates a client, negotiates the API version, and authenticates.
// The constructor performs I/O (version probe + login) deliberately: a
// Client that exists is a Client that can be used.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.SSLVerify},
			},
		}
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = hc
	rc.RetryMax = 4
	rc.CheckRetry = checkRetry
	rc.Backoff = backoff(500 * time.Millisecond)
	rc.Logger = nil
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			purelog.AddContext(ctx).Warningf("retrying %s %s (attempt %d)", req.Method, req.URL.Path, attempt)
		}
	}

	c := &Client{
		cfg:     cfg,
		baseURL: "https://" + strings.TrimSuffix(cfg.Portal, "/"),
		http:    rc,
		sem:     newRequestSemaphore(maxConcurrentRequests),
	}

	version, err := c.negotiateVersion(ctx)
	if err != nil {
		return nil, err
	}
	c.version = version

	if err := c.login(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// negotiateVersion GETs /api/api_version and intersects it with
// preferredVersions; on any failure to reach that endpoint it probes
// successive candidate versions, and failing that defaults to a 2.x
// constant.
func (c *Client) negotiateVersion(ctx context.Context) (string, error) {
	resp, err := c.rawGet(ctx, "/api/api_version", nil)
	if err == nil {
		var body struct {
			Version []string `json:"version"`
		}
		if jsonErr := json.Unmarshal(resp, &body); jsonErr == nil && len(body.Version) > 0 {
			if v := pickPreferred(body.Version); v != "" {
				return majorOf(v), nil
			}
		}
	}

	for _, v := range preferredVersions {
		if _, probeErr := c.rawGet(ctx, "/api/"+v+"/array", nil); probeErr == nil {
			return majorOf(v), nil
		}
	}

	purelog.AddContext(ctx).Warningf("version negotiation failed against %s, defaulting to %s",
		c.cfg.Portal, defaultVersion)
	return majorOf(defaultVersion), nil
}

func pickPreferred(advertised []string) string {
	set := make(map[string]bool, len(advertised))
	for _, v := range advertised {
		set[v] = true
	}
	for _, v := range preferredVersions {
		if set[v] {
			return v
		}
	}
	return ""
}

func majorOf(version string) string {
	if strings.HasPrefix(version, "1.") {
		return "1"
	}
	return "2"
}

// rawGet performs an unauthenticated GET, used only during version
// negotiation before a session exists.
func (c *Client) rawGet(ctx context.Context, path string, query url.Values) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return body, nil
}

// login performs the two-stage authentication from §4.B: v2 POSTs /login
// with an api-token (bootstrapped via the v1 apitoken exchange when only
// username+password are configured); v1 POSTs /auth/session directly.
func (c *Client) login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.cfg.APIToken
	if token == "" && c.version == "1" {
		t, err := c.bootstrapAPIToken(ctx)
		if err != nil {
			return err
		}
		token = t
	}

	var path string
	var headers http.Header
	if c.version == "2" {
		if token == "" {
			t, err := c.bootstrapAPIToken(ctx)
			if err != nil {
				return err
			}
			token = t
		}
		path = "/api/" + c.versionedSegment() + "/login"
		headers = http.Header{"api-token": []string{token}}
	} else {
		path = "/api/" + c.versionedSegment() + "/auth/session"
		headers = http.Header{"api-token": []string{token}}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header = headers

	resp, err := c.http.Do(req)
	if err != nil {
		return pureerr.New(pureerr.KindTransient, "login", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return classifyHTTPStatus(resp, nil, "login")
	}

	sessionToken := resp.Header.Get("x-auth-token")
	if sessionToken == "" {
		return pureerr.New(pureerr.KindAuthExpired, "login", fmt.Errorf("no x-auth-token in response"))
	}

	c.token = sessionToken
	c.loginPID = currentPID()
	return nil
}

// bootstrapAPIToken exchanges username+password for an api-token via the v1
// endpoint, used both when v1 is active and when v2 is active but only
// username/password were configured.
func (c *Client) bootstrapAPIToken(ctx context.Context) (string, error) {
	if c.cfg.Username == "" || c.cfg.Password == "" {
		return "", pureerr.New(pureerr.KindAuthExpired, "login",
			fmt.Errorf("no api-token and no username/password configured"))
	}

	body, _ := json.Marshal(map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	})
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/1.19/auth/apitoken",
		bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", pureerr.New(pureerr.KindTransient, "bootstrap_api_token", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", classifyHTTPStatus(resp, nil, "bootstrap_api_token")
	}

	var out struct {
		APIToken string `json:"api_token"`
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", err
	}
	return out.APIToken, nil
}

func (c *Client) versionedSegment() string {
	if c.version == "1" {
		return "1.19"
	}
	return "2.21"
}

func currentPID() int { return pidFunc() }

// pidFunc is the PID source behind currentPID. It is set to fork.go's
// osGetpid (a wrapper around os.Getpid) so this file stays free of the os
// import.
var pidFunc = osGetpid
