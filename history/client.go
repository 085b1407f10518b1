// Package history is the client for the historical time-series provider
// that feeds the price charts. It is independent of the quote gateway and
// its budget.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"paper-trader/apperr"
	"paper-trader/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 5 // requests per second
)

// Range selects one of the fixed chart granularities.
type Range string

const (
	Intraday Range = "intraday" // 5 minute bars, one trading day
	Daily    Range = "daily"    // daily bars, one month
	Weekly   Range = "weekly"   // weekly bars, one year
)

type granularity struct {
	interval string
	points   int
}

var granularities = map[Range]granularity{
	Intraday: {interval: "5min", points: 78},
	Daily:    {interval: "1day", points: 30},
	Weekly:   {interval: "1week", points: 52},
}

// ParseRange validates a range name.
func ParseRange(s string) (Range, error) {
	r := Range(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := granularities[r]; !ok {
		return "", fmt.Errorf("range %q: %w", s, apperr.ErrInvalidQuery)
	}
	return r, nil
}

// Points returns how many bars r asks for.
func (r Range) Points() int {
	return granularities[r].points
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithRateLimit sets the politeness limit. Calls wait for a token rather
// than failing.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log.With().Str("component", "history").Logger()
	}
}

// NewClient creates a history client
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		log:     zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetBars returns the bars for symbol at range r, oldest first.
//
// Missing open, high, low or volume values read as 0 so that a sparse
// upstream series still charts continuously. Bars without a usable close
// or timestamp are dropped since a zero close would plot as a crash to 0.
func (c *Client) GetBars(ctx context.Context, symbol string, r Range) ([]models.Bar, error) {
	g, ok := granularities[r]
	if !ok {
		return nil, fmt.Errorf("range %q: %w", r, apperr.ErrInvalidQuery)
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperr.FromContext(fmt.Errorf("history rate limit wait: %w", err))
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", g.interval)
	params.Set("outputsize", strconv.Itoa(g.points))
	params.Set("apikey", c.apiKey)
	reqURL := fmt.Sprintf("%s/time_series?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("history %s: %w", symbol, apperr.ErrTimeout)
		}
		return nil, &apperr.UpstreamError{Endpoint: "/time_series", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &apperr.UpstreamError{
			Status:   resp.StatusCode,
			Endpoint: "/time_series",
			Err:      errors.New(strings.TrimSpace(string(body))),
		}
	}

	var raw []rawBar
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", symbol, err)
	}

	bars := make([]models.Bar, 0, len(raw))
	dropped := 0
	for _, rb := range raw {
		bar, ok := rb.toBar()
		if !ok {
			dropped++
			continue
		}
		bars = append(bars, bar)
	}
	if dropped > 0 {
		c.log.Debug().Str("symbol", symbol).Str("range", string(r)).Int("dropped", dropped).Msg("Dropped bars without close")
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	if len(bars) > g.points {
		bars = bars[len(bars)-g.points:]
	}
	return bars, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
