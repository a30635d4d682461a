// Package coingecko implements the HTTP client for the CoinGecko public
// market-data API. Every method performs at most one request, respects the
// shared rate limiter, and fails with exactly one classified *Error. There
// is deliberately no retry loop: a throttled provider is never hammered.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.coingecko.com/api/v3/"
	DefaultTimeout = 10 * time.Second
	DefaultRate    = 0.5
	DefaultLimit   = 20
	DefaultDays    = 7

	// SearchWindow is the number of top coins search filters over. Coins
	// ranked below it are unreachable by search.
	SearchWindow = 100
	// SearchMaxResults caps the number of matches returned.
	SearchMaxResults = 20

	apiKeyHeader = "x-cg-demo-api-key"
)

// Options configures a Client. Zero values select the defaults above.
type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Rate       float64 // requests per second; <= 0 disables throttling
	UserAgent  string
	Logger     *slog.Logger
	HTTPClient *http.Client // overrides Timeout when set
}

// Client is the CoinGecko API HTTP client.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *slog.Logger
}

// NewClient creates a Client from opts.
func NewClient(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	burst := 1
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
		if b := int(opts.Rate); b > burst {
			burst = b
		}
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = "coinwatch/1.0"
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		userAgent:  ua,
		httpClient: hc,
		limiter:    rate.NewLimiter(limit, burst),
		log:        log,
	}
}

// ─── Low-level HTTP ───────────────────────────────────────────────────────────

// get performs one GET against the provider and decodes a 2xx body into out.
func (c *Client) get(ctx context.Context, op, endpoint string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() == nil {
			// the limiter refuses waits that would overrun the deadline
			return &Error{Kind: KindTimeout, Op: op, Err: err}
		}
		return classifyTransport(op, ctx.Err())
	}

	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	c.log.Debug("coingecko request", "op", op, "url", reqURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(op, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return classifyTransport(op, fmt.Errorf("reading body: %w", err))
	}

	c.log.Debug("coingecko response", "op", op, "status", resp.StatusCode,
		"bytes", len(body), "elapsed", time.Since(start))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Op: op, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return &Error{Kind: KindNotFound, Op: op, Status: resp.StatusCode, Message: providerMessage(body)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg := providerMessage(body)
		if msg == "" {
			msg = strings.TrimSpace(string(body))
			if len(msg) > 200 {
				msg = msg[:200] + "…"
			}
		}
		return &Error{Kind: KindTransport, Op: op, Status: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindTransport, Op: op, Status: resp.StatusCode,
			Err: &DecodeError{Field: "body", Reason: err.Error()}}
	}
	return nil
}

// providerMessage extracts the error text from either of the provider's
// error envelopes: {"error": "..."} or {"status": {"error_message": "..."}}.
func providerMessage(body []byte) string {
	var env struct {
		Error  json.RawMessage `json:"error"`
		Status struct {
			ErrorMessage string `json:"error_message"`
		} `json:"status"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	if len(env.Error) > 0 {
		var s string
		if json.Unmarshal(env.Error, &s) == nil && s != "" {
			return s
		}
	}
	return env.Status.ErrorMessage
}

// decodeFailure wraps a validation failure as a Transport error.
func decodeFailure(op, field, reason string) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: &DecodeError{Field: field, Reason: reason}}
}
