package market

import (
	"context"
	"fmt"
	"net/url"

	"paper-trader/gateway"
	"paper-trader/models"
)

// MaxTrending caps the trending list.
const MaxTrending = 24

const commonStock = "Common Stock"

// trendingAllowList holds the well-known tickers the trending view may show.
var trendingAllowList = map[string]bool{
	"AAPL": true, "MSFT": true, "GOOGL": true, "AMZN": true, "NVDA": true,
	"META": true, "TSLA": true, "NFLX": true, "AMD": true, "INTC": true,
	"JPM": true, "V": true, "MA": true, "DIS": true, "BA": true,
	"KO": true, "PEP": true, "WMT": true, "NKE": true, "ORCL": true,
	"CRM": true, "ADBE": true, "PYPL": true, "UBER": true, "COST": true,
}

// IsTrendingCandidate reports whether symbol is on the allow-list.
func IsTrendingCandidate(symbol string) bool {
	return trendingAllowList[symbol]
}

// FilterTrending keeps allow-listed common stocks in directory order and
// stops after MaxTrending entries.
func FilterTrending(directory []models.Symbol) []models.Symbol {
	out := make([]models.Symbol, 0, MaxTrending)
	for _, sym := range directory {
		if len(out) == MaxTrending {
			break
		}
		if sym.Type == commonStock && trendingAllowList[sym.Symbol] {
			out = append(out, sym)
		}
	}
	return out
}

// GetTrendingSymbols fetches the US symbol directory and filters it down to
// the trending list. Failures are returned as-is.
func (s *Service) GetTrendingSymbols(ctx context.Context, ch gateway.Channel) ([]models.Symbol, error) {
	var directory []models.Symbol
	req := gateway.Request{Path: "/stock/symbol", Query: url.Values{"exchange": {"US"}}}
	if err := s.gw.Call(ctx, ch, req, &directory); err != nil {
		return nil, fmt.Errorf("trending: %w", err)
	}
	return FilterTrending(directory), nil
}
