package toolgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// Client calls a remote Tool Gateway Server over HTTP, implementing
// reasoning.ToolCaller. It paces outgoing calls per session with its own
// x/time/rate limiter, per SPEC_FULL.md §4.6's "paced through the x/time/
// rate limiter (§2B) per session to bound burstiness" — distinct from the
// per-tool limiter the Server itself enforces on the receiving end.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	limiters    *sessionLimiters
}

// NewClient builds a Client against a running Server's baseURL (e.g.
// "http://127.0.0.1:8090"). ratePerSecond/burst bound how often one
// session may invoke tools.
func NewClient(baseURL string, httpClient *http.Client, ratePerSecond float64, burst int) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		limiters:   newSessionLimiters(ratePerSecond, burst),
	}
}

// Call implements reasoning.ToolCaller: POST {baseURL}/tools/{toolName}
// with arguments as the JSON body.
func (c *Client) Call(ctx context.Context, sessionID, toolName string, arguments json.RawMessage) (json.RawMessage, int, error) {
	if err := c.limiters.wait(ctx, sessionID); err != nil {
		return nil, 0, fmt.Errorf("toolgateway client: rate limit wait: %w", err)
	}

	endpoint := c.baseURL + "/tools/" + toolName
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(arguments))
	if err != nil {
		return nil, 0, fmt.Errorf("toolgateway client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("toolgateway client: call %s: %w", toolName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("toolgateway client: read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// sessionLimiters owns one rate.Limiter per session, created lazily.
type sessionLimiters struct {
	mu            sync.Mutex
	ratePerSecond float64
	burst         int
	bysession     map[string]*rate.Limiter
}

func newSessionLimiters(ratePerSecond float64, burst int) *sessionLimiters {
	if ratePerSecond <= 0 {
		ratePerSecond = 5
	}
	if burst <= 0 {
		burst = 1
	}
	return &sessionLimiters{
		ratePerSecond: ratePerSecond,
		burst:         burst,
		bysession:     make(map[string]*rate.Limiter),
	}
}

func (sl *sessionLimiters) wait(ctx context.Context, sessionID string) error {
	sl.mu.Lock()
	l, ok := sl.bysession[sessionID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(sl.ratePerSecond), sl.burst)
		sl.bysession[sessionID] = l
	}
	sl.mu.Unlock()
	return l.Wait(ctx)
}
