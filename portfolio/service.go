// Package portfolio values a user's holdings and records daily net worth.
package portfolio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"paper-trader/apperr"
	"paper-trader/gateway"
	"paper-trader/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// maxParallelQuotes bounds concurrent quote lookups per valuation.
const maxParallelQuotes = 4

// Quoter is the part of the market service valuation needs.
type Quoter interface {
	GetQuote(ctx context.Context, ch gateway.Channel, symbol string) (*models.Quote, error)
	LastKnownQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

// Store is the part of the ledger valuation needs.
type Store interface {
	GetOrCreatePortfolio(ctx context.Context, userID string) (*models.Portfolio, error)
	GetUserStocks(ctx context.Context, userID string) ([]models.Holding, error)
	RecordDailyNetWorth(ctx context.Context, userID string, netWorth, cash, holdingsValue decimal.Decimal) (*models.NetWorthSnapshot, error)
	UserIDs(ctx context.Context) ([]string, error)
	StartingCash() decimal.Decimal
}

// PriceSource tells where a holding's price came from.
type PriceSource string

const (
	SourceLive   PriceSource = "live"
	SourceCached PriceSource = "cached"
	SourceCost   PriceSource = "cost"
)

type HoldingView struct {
	Symbol          string          `json:"symbol"`
	Quantity        int64           `json:"quantity"`
	AvgCost         decimal.Decimal `json:"avg_cost"`
	Price           decimal.Decimal `json:"price"`
	PriceSource     PriceSource     `json:"price_source"`
	DayChange       decimal.Decimal `json:"day_change"`
	CostBasis       decimal.Decimal `json:"cost_basis"`
	MarketValue     decimal.Decimal `json:"market_value"`
	GainLoss        decimal.Decimal `json:"gain_loss"`
	GainLossPercent decimal.Decimal `json:"gain_loss_percent"`
}

type Summary struct {
	UserID             string          `json:"user_id"`
	Cash               decimal.Decimal `json:"cash"`
	HoldingsValue      decimal.Decimal `json:"holdings_value"`
	NetWorth           decimal.Decimal `json:"net_worth"`
	TotalReturn        decimal.Decimal `json:"total_return"`
	TotalReturnPercent decimal.Decimal `json:"total_return_percent"`
	Holdings           []HoldingView   `json:"holdings"`
	AsOf               time.Time       `json:"as_of"`
}

// Display returns a copy with every amount rounded to cents.
func (s Summary) Display() Summary {
	out := s
	out.Cash = s.Cash.Round(2)
	out.HoldingsValue = s.HoldingsValue.Round(2)
	out.NetWorth = s.NetWorth.Round(2)
	out.TotalReturn = s.TotalReturn.Round(2)
	out.TotalReturnPercent = s.TotalReturnPercent.Round(2)
	out.Holdings = make([]HoldingView, len(s.Holdings))
	for i, h := range s.Holdings {
		h.AvgCost = h.AvgCost.Round(2)
		h.Price = h.Price.Round(2)
		h.DayChange = h.DayChange.Round(2)
		h.CostBasis = h.CostBasis.Round(2)
		h.MarketValue = h.MarketValue.Round(2)
		h.GainLoss = h.GainLoss.Round(2)
		h.GainLossPercent = h.GainLossPercent.Round(2)
		out.Holdings[i] = h
	}
	return out
}

type Service struct {
	store  Store
	quotes Quoter
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(store Store, quotes Quoter, log zerolog.Logger) *Service {
	return &Service{
		store:  store,
		quotes: quotes,
		log:    log.With().Str("component", "portfolio").Logger(),
		now:    time.Now,
	}
}

// pricer resolves the price of one symbol.
type pricer func(ctx context.Context, symbol string) (*models.Quote, PriceSource)

// Summary values the user's holdings. A holding whose live quote cannot be
// fetched is valued at the last cached quote, or at its average cost when
// there is none. Valuation never fails because of the quote provider, but
// it fails with ErrTimeout once ctx expires.
func (s *Service) Summary(ctx context.Context, userID string) (*Summary, error) {
	return s.summary(ctx, userID, s.price)
}

func (s *Service) summary(ctx context.Context, userID string, price pricer) (*Summary, error) {
	p, err := s.store.GetOrCreatePortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}
	holdings, err := s.store.GetUserStocks(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]HoldingView, len(holdings))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelQuotes)
	for i, h := range holdings {
		i, h := i, h
		g.Go(func() error {
			q, source := price(gctx, h.Symbol)
			views[i] = value(h, q, source)
			return nil
		})
	}
	_ = g.Wait()
	// an expired request would otherwise read as every holding at cost
	if err := ctx.Err(); err != nil {
		return nil, apperr.FromContext(fmt.Errorf("value portfolio of %s: %w", userID, err))
	}

	sum := &Summary{
		UserID:        userID,
		Cash:          p.CashBalance,
		HoldingsValue: decimal.Zero,
		Holdings:      views,
		AsOf:          s.now().UTC(),
	}
	for _, v := range views {
		sum.HoldingsValue = sum.HoldingsValue.Add(v.MarketValue)
	}
	sum.NetWorth = sum.Cash.Add(sum.HoldingsValue)

	start := s.store.StartingCash()
	sum.TotalReturn = sum.NetWorth.Sub(start)
	sum.TotalReturnPercent = percent(sum.TotalReturn, start)
	return sum, nil
}

// price applies the degrade policy: live, then cached, then none.
func (s *Service) price(ctx context.Context, symbol string) (*models.Quote, PriceSource) {
	q, err := s.quotes.GetQuote(ctx, gateway.Dashboard, symbol)
	if err == nil {
		return q, SourceLive
	}
	s.log.Warn().Err(err).Str("symbol", symbol).Msg("Live quote unavailable, falling back")

	cached, cacheErr := s.quotes.LastKnownQuote(ctx, symbol)
	if cacheErr == nil && cached.Current > 0 {
		return cached, SourceCached
	}
	return nil, SourceCost
}

func value(h models.Holding, q *models.Quote, source PriceSource) HoldingView {
	qty := decimal.NewFromInt(h.Quantity)
	v := HoldingView{
		Symbol:      h.Symbol,
		Quantity:    h.Quantity,
		AvgCost:     h.AvgCost,
		Price:       h.AvgCost,
		PriceSource: SourceCost,
		DayChange:   decimal.Zero,
		CostBasis:   h.AvgCost.Mul(qty),
	}
	if q != nil && source != SourceCost {
		v.Price = decimal.NewFromFloat(q.Current)
		v.PriceSource = source
		if source == SourceLive {
			v.DayChange = decimal.NewFromFloat(q.Change).Mul(qty)
		}
	}
	v.MarketValue = v.Price.Mul(qty)
	v.GainLoss = v.MarketValue.Sub(v.CostBasis)
	v.GainLossPercent = percent(v.GainLoss, v.CostBasis)
	return v
}

func percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100))
}

// SnapshotNetWorth values the user now and upserts today's snapshot.
func (s *Service) SnapshotNetWorth(ctx context.Context, userID string) (*models.NetWorthSnapshot, error) {
	return s.snapshot(ctx, userID, s.price)
}

func (s *Service) snapshot(ctx context.Context, userID string, price pricer) (*models.NetWorthSnapshot, error) {
	sum, err := s.summary(ctx, userID, price)
	if err != nil {
		return nil, err
	}
	return s.store.RecordDailyNetWorth(ctx, userID, sum.NetWorth, sum.Cash, sum.HoldingsValue)
}

// SnapshotAll records today's snapshot for every user. Each symbol is quoted
// at most once per run. Per-user failures are logged and skipped; the
// number of users recorded is returned.
func (s *Service) SnapshotAll(ctx context.Context) (int, error) {
	users, err := s.store.UserIDs(ctx)
	if err != nil {
		return 0, err
	}

	type priced struct {
		q      *models.Quote
		source PriceSource
	}
	var (
		mu   sync.Mutex
		memo = make(map[string]priced)
	)
	memoPrice := func(ctx context.Context, symbol string) (*models.Quote, PriceSource) {
		mu.Lock()
		if p, ok := memo[symbol]; ok {
			mu.Unlock()
			return p.q, p.source
		}
		mu.Unlock()

		q, source := s.price(ctx, symbol)
		mu.Lock()
		memo[symbol] = priced{q: q, source: source}
		mu.Unlock()
		return q, source
	}

	recorded := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			return recorded, ctx.Err()
		}
		if _, err := s.snapshot(ctx, userID, memoPrice); err != nil {
			s.log.Error().Err(err).Str("user_id", userID).Msg("Net worth snapshot failed")
			continue
		}
		recorded++
	}

	s.log.Info().Int("users", len(users)).Int("recorded", recorded).Int("symbols", len(memo)).Msg("Net worth snapshots recorded")
	return recorded, nil
}
