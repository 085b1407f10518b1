package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"paper-trader/apperr"
	"paper-trader/database/dbtest"
	"paper-trader/gateway"
	"paper-trader/history"
	"paper-trader/ledger"
	"paper-trader/market"
	"paper-trader/middleware"
	"paper-trader/models"
	"paper-trader/portfolio"
	"paper-trader/trading"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeMarket struct {
	mu       sync.Mutex
	quotes   map[string]models.Quote
	profiles map[string]models.Profile
	err      error
	channels []gateway.Channel
	query    string
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{quotes: map[string]models.Quote{}, profiles: map[string]models.Profile{}}
}

func (f *fakeMarket) record(ch gateway.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, ch)
	return f.err
}

func (f *fakeMarket) GetQuote(ctx context.Context, ch gateway.Channel, symbol string) (*models.Quote, error) {
	if err := f.record(ch); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotes[symbol]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &q, nil
}

func (f *fakeMarket) LastKnownQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return nil, apperr.ErrNotFound
}

func (f *fakeMarket) GetProfile(ctx context.Context, ch gateway.Channel, symbol string) (*models.Profile, error) {
	if err := f.record(ch); err != nil {
		return nil, err
	}
	p, ok := f.profiles[symbol]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &p, nil
}

func (f *fakeMarket) SearchSymbols(ctx context.Context, ch gateway.Channel, query string) ([]models.Symbol, error) {
	if err := f.record(ch); err != nil {
		return nil, err
	}
	f.query = query
	if query == "" {
		return nil, apperr.ErrInvalidQuery
	}
	return []models.Symbol{{Symbol: "AAPL", Description: "APPLE INC", Type: "Common Stock"}}, nil
}

func (f *fakeMarket) GetCandles(ctx context.Context, ch gateway.Channel, symbol, resolution string, from, to time.Time) (*models.Candles, error) {
	if err := f.record(ch); err != nil {
		return nil, err
	}
	return &models.Candles{Close: []float64{1, 2}, Timestamp: []int64{from.Unix(), to.Unix()}, Status: "ok"}, nil
}

func (f *fakeMarket) GetCompanyNews(ctx context.Context, ch gateway.Channel, symbol string, from, to time.Time) ([]models.NewsItem, error) {
	if err := f.record(ch); err != nil {
		return nil, err
	}
	return []models.NewsItem{{Headline: "news for " + symbol}}, nil
}

func (f *fakeMarket) GetTrendingSymbols(ctx context.Context, ch gateway.Channel) ([]models.Symbol, error) {
	if err := f.record(ch); err != nil {
		return nil, err
	}
	return []models.Symbol{{Symbol: "AAPL", Type: "Common Stock"}, {Symbol: "MSFT", Type: "Common Stock"}}, nil
}

func (f *fakeMarket) GetDetails(ctx context.Context, ch gateway.Channel, symbol string) (*market.Details, error) {
	q, err := f.GetQuote(ctx, ch, symbol)
	if err != nil {
		return nil, err
	}
	return &market.Details{Symbol: symbol, Quote: q, News: []models.NewsItem{}}, nil
}

type fakeHistory struct {
	bars []models.Bar
}

func (f *fakeHistory) GetBars(ctx context.Context, symbol string, r history.Range) ([]models.Bar, error) {
	return f.bars, nil
}

type fixedBudget int

func (b fixedBudget) Remaining() int { return int(b) }

type testServer struct {
	router *gin.Engine
	market *fakeMarket
	store  *ledger.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mkt := newFakeMarket()
	store := ledger.New(dbtest.New(t), decimal.NewFromInt(100000))
	log := zerolog.Nop()

	h := New(Deps{
		Market:    mkt,
		History:   &fakeHistory{bars: []models.Bar{{Time: time.Unix(1700000000, 0).UTC(), Close: 10}}},
		Ledger:    store,
		Portfolio: portfolio.NewService(store, mkt, log),
		Trader:    trading.NewExecutor(store, log),
		Budget:    fixedBudget(42),
	}, 5*time.Second, log)

	r := gin.New()
	// the caller is named by a header in place of a signed token
	auth := func(c *gin.Context) {
		c.Set(middleware.UserIDKey, c.GetHeader("X-Test-User"))
		c.Next()
	}
	h.Register(r, auth)
	return &testServer{router: r, market: mkt, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", "alice")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(42), body["gateway_remaining"])
}

func TestPlaceTradeBuyAndSell(t *testing.T) {
	s := newTestServer(t)
	s.market.quotes["AAPL"] = models.Quote{Current: 50, Timestamp: 1}

	w := s.do(t, http.MethodPost, "/api/trades", gin.H{"symbol": "aapl", "side": "buy", "quantity": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res struct {
		State       string `json:"state"`
		CashBalance string `json:"cash_balance"`
		Holding     *struct {
			Symbol   string `json:"symbol"`
			Quantity int64  `json:"quantity"`
			AvgCost  string `json:"avg_cost"`
		} `json:"holding"`
		Transaction *struct {
			TotalAmount string `json:"total_amount"`
			Description string `json:"description"`
		} `json:"transaction"`
	}
	decode(t, w, &res)
	assert.Equal(t, "applied", res.State)
	assert.Equal(t, "99500", res.CashBalance)
	require.NotNil(t, res.Holding)
	assert.Equal(t, "AAPL", res.Holding.Symbol)
	assert.Equal(t, int64(10), res.Holding.Quantity)
	assert.Equal(t, "50", res.Holding.AvgCost)
	require.NotNil(t, res.Transaction)
	assert.Equal(t, "-500", res.Transaction.TotalAmount)
	assert.Equal(t, "Bought 10 shares of AAPL at $50.00", res.Transaction.Description)
	assert.Equal(t, []gateway.Channel{gateway.Trading}, s.market.channels)

	s.market.quotes["AAPL"] = models.Quote{Current: 70, Timestamp: 2}
	w = s.do(t, http.MethodPost, "/api/trades", gin.H{"symbol": "AAPL", "side": "sell", "quantity": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res.Holding = nil
	decode(t, w, &res)
	assert.Equal(t, "100200", res.CashBalance)
	assert.Nil(t, res.Holding)
}

func TestPlaceTradeRejection(t *testing.T) {
	s := newTestServer(t)
	s.market.quotes["AAPL"] = models.Quote{Current: 50, Timestamp: 1}

	w := s.do(t, http.MethodPost, "/api/trades", gin.H{"symbol": "AAPL", "side": "buy", "quantity": 5000})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body struct {
		Error       string `json:"error"`
		State       string `json:"state"`
		MaxQuantity int64  `json:"max_quantity"`
	}
	decode(t, w, &body)
	assert.Equal(t, apperr.ErrInsufficientFunds.Error(), body.Error)
	assert.Equal(t, "rejected", body.State)
	assert.Equal(t, int64(2000), body.MaxQuantity)

	w = s.do(t, http.MethodPost, "/api/trades", gin.H{"symbol": "AAPL", "side": "sell", "quantity": 1})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	decode(t, w, &body)
	assert.Equal(t, apperr.ErrInsufficientShares.Error(), body.Error)
	assert.Zero(t, body.MaxQuantity)
}

func TestPlaceTradeMalformedOrdersSkipQuote(t *testing.T) {
	s := newTestServer(t)
	cases := []struct {
		name string
		body gin.H
	}{
		{"bad side", gin.H{"symbol": "AAPL", "side": "short", "quantity": 1}},
		{"fractional", gin.H{"symbol": "AAPL", "side": "buy", "quantity": 1.5}},
		{"zero", gin.H{"symbol": "AAPL", "side": "buy", "quantity": 0}},
		{"missing symbol", gin.H{"side": "buy", "quantity": 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/trades", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
	assert.Empty(t, s.market.channels)
}

func TestPlaceTradeQuoteFailureBlocksTrade(t *testing.T) {
	s := newTestServer(t)
	s.market.err = apperr.ErrRateLimited

	w := s.do(t, http.MethodPost, "/api/trades", gin.H{"symbol": "AAPL", "side": "buy", "quantity": 1})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	txs, err := s.store.GetTransactions(context.Background(), "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestPortfolioEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.market.quotes["AAPL"] = models.Quote{Current: 50, Timestamp: 1}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/trades", gin.H{"symbol": "AAPL", "side": "buy", "quantity": 10}).Code)
	s.market.quotes["AAPL"] = models.Quote{Current: 60, Timestamp: 2}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/trades", gin.H{"symbol": "AAPL", "side": "buy", "quantity": 5}).Code)

	w := s.do(t, http.MethodGet, "/api/portfolio", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sum struct {
		Cash     string `json:"cash"`
		NetWorth string `json:"net_worth"`
		Holdings []struct {
			AvgCost     string `json:"avg_cost"`
			PriceSource string `json:"price_source"`
		} `json:"holdings"`
	}
	decode(t, w, &sum)
	assert.Equal(t, "99200", sum.Cash)
	assert.Equal(t, "100100", sum.NetWorth)
	require.Len(t, sum.Holdings, 1)
	assert.Equal(t, "53.33", sum.Holdings[0].AvgCost)
	assert.Equal(t, "live", sum.Holdings[0].PriceSource)

	w = s.do(t, http.MethodGet, "/api/portfolio/holdings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var holdings []holdingView
	decode(t, w, &holdings)
	require.Len(t, holdings, 1)
	assert.Equal(t, int64(15), holdings[0].Quantity)
	assert.Equal(t, "800", holdings[0].CostBasis.String())

	w = s.do(t, http.MethodGet, "/api/portfolio/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var txs []transactionView
	decode(t, w, &txs)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(5), txs[0].Quantity, "newest first")
	assert.Equal(t, int64(10), txs[1].Quantity)

	w = s.do(t, http.MethodGet, "/api/portfolio/transactions?limit=1", nil)
	decode(t, w, &txs)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(5), txs[0].Quantity)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/portfolio/transactions?limit=x", nil).Code)
}

func TestNetWorthEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/portfolio/networth", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var snap netWorthView
	decode(t, w, &snap)
	assert.Equal(t, "100000", snap.NetWorth.String())
	assert.Equal(t, time.Now().UTC().Format(ledger.DateLayout), snap.Date)

	w = s.do(t, http.MethodGet, "/api/portfolio/networth?days=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []netWorthView
	decode(t, w, &history)
	require.Len(t, history, 1)
	assert.Equal(t, snap.Date, history[0].Date)
}

func TestWatchlistEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.market.profiles["MSFT"] = models.Profile{Name: "Microsoft Corp"}

	w := s.do(t, http.MethodPost, "/api/watchlist", gin.H{"symbol": "msft"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = s.do(t, http.MethodPost, "/api/watchlist", gin.H{"symbol": "TSLA", "company_name": "Tesla"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodGet, "/api/watchlist", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var items []models.WatchlistItem
	decode(t, w, &items)
	require.Len(t, items, 2)
	names := map[string]string{}
	for _, it := range items {
		names[it.Symbol] = it.CompanyName
	}
	assert.Equal(t, map[string]string{"MSFT": "Microsoft Corp", "TSLA": "Tesla"}, names)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/watchlist/msft", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/watchlist/MSFT", nil).Code)
}

func TestMarketEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.market.quotes["AAPL"] = models.Quote{Current: 190.5, Timestamp: 1}

	w := s.do(t, http.MethodGet, "/api/trending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":2`)

	w = s.do(t, http.MethodGet, "/api/search?q=apple", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "apple", s.market.query)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/search", nil).Code)

	w = s.do(t, http.MethodGet, "/api/stocks/AAPL/quote", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var q models.Quote
	decode(t, w, &q)
	assert.Equal(t, 190.5, q.Current)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/stocks/AAPL", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/stocks/ZZZZ/quote", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/stocks/ZZZZ/profile", nil).Code)

	w = s.do(t, http.MethodGet, "/api/stocks/AAPL/candles?from=1700000000&to=1700086400&resolution=60", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "1700000000")
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/stocks/AAPL/candles?from=yesterday", nil).Code)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/stocks/AAPL/news?from=2024-01-01&to=2024-01-07", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/stocks/AAPL/news?from=01/01/2024", nil).Code)

	assert.NotContains(t, s.market.channels, gateway.Trading)
}

func TestHistoryEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/stocks/aapl/history?range=weekly", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Symbol string       `json:"symbol"`
		Range  string       `json:"range"`
		Bars   []models.Bar `json:"bars"`
	}
	decode(t, w, &body)
	assert.Equal(t, "AAPL", body.Symbol)
	assert.Equal(t, "weekly", body.Range)
	assert.Len(t, body.Bars, 1)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/stocks/AAPL/history?range=hourly", nil).Code)
}

func TestErrorRendering(t *testing.T) {
	s := newTestServer(t)

	s.market.err = &apperr.UpstreamError{Status: 503, Endpoint: "/stock/symbol"}
	w := s.do(t, http.MethodGet, "/api/trending", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "status 503")

	s.market.err = errors.New("dsn=secret")
	w = s.do(t, http.MethodGet, "/api/trending", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
}
