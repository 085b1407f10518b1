// Package gateway sends requests to the quote provider under one shared
// request budget, attaching the credential bound to the calling channel.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"paper-trader/apperr"

	"github.com/rs/zerolog"
)

// Channel labels a group of calls. Every channel has its own credential but
// all channels draw from the same budget.
type Channel string

const (
	Dashboard Channel = "dashboard"
	Trending  Channel = "trending"
	Search    Channel = "search"
	Details   Channel = "details"
	Trading   Channel = "trading"
)

const (
	DefaultBaseURL = "https://finnhub.io/api/v1"
	DefaultTimeout = 10 * time.Second
	DefaultLimit   = 60
	DefaultWindow  = time.Minute
)

// Request describes one GET against the provider.
type Request struct {
	Path  string
	Query url.Values
}

// Gateway is safe for concurrent use.
type Gateway struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *Limiter
	credentials map[Channel]string
	log         zerolog.Logger
}

// Option configures the gateway
type Option func(*Gateway)

func WithBaseURL(baseURL string) Option {
	return func(g *Gateway) {
		g.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		g.httpClient.Timeout = timeout
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		g.httpClient = c
	}
}

// WithLimiter replaces the default 60 requests per minute budget.
func WithLimiter(l *Limiter) Option {
	return func(g *Gateway) {
		g.limiter = l
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(g *Gateway) {
		g.log = log.With().Str("component", "gateway").Logger()
	}
}

// New creates a gateway. credentials maps channel names to provider tokens.
func New(credentials map[string]string, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		limiter:     NewLimiter(DefaultLimit, DefaultWindow),
		credentials: make(map[Channel]string, len(credentials)),
		log:         zerolog.Nop(),
	}
	for name, token := range credentials {
		g.credentials[Channel(name)] = token
	}

	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Remaining returns the requests left in the current budget window.
func (g *Gateway) Remaining() int {
	return g.limiter.Remaining()
}

// Call performs req on behalf of ch and decodes the JSON body into out.
// It fails with ErrRateLimited before any network I/O when the budget is
// spent, and with *apperr.UpstreamError on a non-2xx answer.
func (g *Gateway) Call(ctx context.Context, ch Channel, req Request, out interface{}) error {
	token, ok := g.credentials[ch]
	if !ok || token == "" {
		return fmt.Errorf("%w: %q", apperr.ErrUnknownChannel, ch)
	}

	if !g.limiter.Allow() {
		g.log.Warn().
			Str("channel", string(ch)).
			Str("endpoint", req.Path).
			Time("reset_at", g.limiter.ResetAt()).
			Msg("Request budget exhausted")
		return fmt.Errorf("%s: %w", req.Path, apperr.ErrRateLimited)
	}

	params := url.Values{}
	for k, v := range req.Query {
		params[k] = v
	}
	params.Set("token", token)
	reqURL := fmt.Sprintf("%s%s?%s", g.baseURL, req.Path, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		g.log.Debug().Err(err).Str("channel", string(ch)).Str("endpoint", req.Path).Msg("Request failed")
		if isTimeout(ctx, err) {
			return fmt.Errorf("%s: %w", req.Path, apperr.ErrTimeout)
		}
		return &apperr.UpstreamError{Endpoint: req.Path, Err: err}
	}
	defer resp.Body.Close()

	g.log.Debug().
		Str("channel", string(ch)).
		Str("endpoint", req.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Upstream call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &apperr.UpstreamError{
			Status:   resp.StatusCode,
			Endpoint: req.Path,
			Err:      errors.New(strings.TrimSpace(string(body))),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%s: %w", req.Path, apperr.ErrTimeout)
		}
		return fmt.Errorf("decode %s: %w", req.Path, err)
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
