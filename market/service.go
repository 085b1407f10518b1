// Package market exposes typed accessors over the quote provider. Every
// accessor takes the channel it is called on behalf of.
package market

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"paper-trader/apperr"
	"paper-trader/gateway"
	"paper-trader/models"

	"github.com/rs/zerolog"
)

// Caller is the rate-limited transport the service sends requests through.
type Caller interface {
	Call(ctx context.Context, ch gateway.Channel, req gateway.Request, out interface{}) error
}

// PriceCache remembers the last quote seen per symbol so that views can
// degrade to it when the provider is unavailable.
type PriceCache interface {
	Put(ctx context.Context, symbol string, q models.Quote) error
	Get(ctx context.Context, symbol string) (*models.Quote, error)
}

// Resolutions accepted by GetCandles.
var Resolutions = map[string]bool{
	"1": true, "5": true, "15": true, "30": true, "60": true,
	"D": true, "W": true, "M": true,
}

const newsDateLayout = "2006-01-02"

type Service struct {
	gw    Caller
	cache PriceCache
	log   zerolog.Logger
	now   func() time.Time
}

// NewService creates the aggregator. cache may be nil.
func NewService(gw Caller, cache PriceCache, log zerolog.Logger) *Service {
	return &Service{
		gw:    gw,
		cache: cache,
		log:   log.With().Str("component", "market").Logger(),
		now:   time.Now,
	}
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// GetQuote returns the latest quote. Unknown symbols yield ErrNotFound.
func (s *Service) GetQuote(ctx context.Context, ch gateway.Channel, symbol string) (*models.Quote, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("quote: empty symbol: %w", apperr.ErrInvalidQuery)
	}

	var q models.Quote
	req := gateway.Request{Path: "/quote", Query: url.Values{"symbol": {symbol}}}
	if err := s.gw.Call(ctx, ch, req, &q); err != nil {
		return nil, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if q.Empty() {
		return nil, fmt.Errorf("quote %s: %w", symbol, apperr.ErrNotFound)
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, symbol, q); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache quote")
		}
	}
	return &q, nil
}

// LastKnownQuote returns the most recent cached quote for symbol.
func (s *Service) LastKnownQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if s.cache == nil {
		return nil, apperr.ErrNotFound
	}
	return s.cache.Get(ctx, NormalizeSymbol(symbol))
}

func (s *Service) GetProfile(ctx context.Context, ch gateway.Channel, symbol string) (*models.Profile, error) {
	symbol = NormalizeSymbol(symbol)

	var p models.Profile
	req := gateway.Request{Path: "/stock/profile2", Query: url.Values{"symbol": {symbol}}}
	if err := s.gw.Call(ctx, ch, req, &p); err != nil {
		return nil, fmt.Errorf("profile %s: %w", symbol, err)
	}
	if p.Ticker == "" && p.Name == "" {
		return nil, fmt.Errorf("profile %s: %w", symbol, apperr.ErrNotFound)
	}
	return &p, nil
}

func (s *Service) SearchSymbols(ctx context.Context, ch gateway.Channel, query string) ([]models.Symbol, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search: empty query: %w", apperr.ErrInvalidQuery)
	}

	var res models.SearchResult
	req := gateway.Request{Path: "/search", Query: url.Values{"q": {query}}}
	if err := s.gw.Call(ctx, ch, req, &res); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if res.Result == nil {
		return []models.Symbol{}, nil
	}
	return res.Result, nil
}

func (s *Service) GetCandles(ctx context.Context, ch gateway.Channel, symbol, resolution string, from, to time.Time) (*models.Candles, error) {
	symbol = NormalizeSymbol(symbol)
	if !Resolutions[resolution] {
		return nil, fmt.Errorf("candles: resolution %q: %w", resolution, apperr.ErrInvalidQuery)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("candles: from must be before to: %w", apperr.ErrInvalidQuery)
	}

	var c models.Candles
	req := gateway.Request{Path: "/stock/candle", Query: url.Values{
		"symbol":     {symbol},
		"resolution": {resolution},
		"from":       {strconv.FormatInt(from.Unix(), 10)},
		"to":         {strconv.FormatInt(to.Unix(), 10)},
	}}
	if err := s.gw.Call(ctx, ch, req, &c); err != nil {
		return nil, fmt.Errorf("candles %s: %w", symbol, err)
	}
	if c.Status == "no_data" {
		return nil, fmt.Errorf("candles %s: %w", symbol, apperr.ErrNotFound)
	}
	return &c, nil
}

func (s *Service) GetCompanyNews(ctx context.Context, ch gateway.Channel, symbol string, from, to time.Time) ([]models.NewsItem, error) {
	symbol = NormalizeSymbol(symbol)

	var news []models.NewsItem
	req := gateway.Request{Path: "/company-news", Query: url.Values{
		"symbol": {symbol},
		"from":   {from.Format(newsDateLayout)},
		"to":     {to.Format(newsDateLayout)},
	}}
	if err := s.gw.Call(ctx, ch, req, &news); err != nil {
		return nil, fmt.Errorf("news %s: %w", symbol, err)
	}
	if news == nil {
		return []models.NewsItem{}, nil
	}
	return news, nil
}
