// Package handlers exposes the market, portfolio, trade and watchlist
// operations over HTTP.
package handlers

import (
	"context"
	"net/http"
	"time"

	"paper-trader/apperr"
	"paper-trader/gateway"
	"paper-trader/history"
	"paper-trader/market"
	"paper-trader/models"
	"paper-trader/portfolio"
	"paper-trader/trading"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MarketData is the quote and reference data aggregator.
type MarketData interface {
	GetQuote(ctx context.Context, ch gateway.Channel, symbol string) (*models.Quote, error)
	GetProfile(ctx context.Context, ch gateway.Channel, symbol string) (*models.Profile, error)
	SearchSymbols(ctx context.Context, ch gateway.Channel, query string) ([]models.Symbol, error)
	GetCandles(ctx context.Context, ch gateway.Channel, symbol, resolution string, from, to time.Time) (*models.Candles, error)
	GetCompanyNews(ctx context.Context, ch gateway.Channel, symbol string, from, to time.Time) ([]models.NewsItem, error)
	GetTrendingSymbols(ctx context.Context, ch gateway.Channel) ([]models.Symbol, error)
	GetDetails(ctx context.Context, ch gateway.Channel, symbol string) (*market.Details, error)
}

type History interface {
	GetBars(ctx context.Context, symbol string, r history.Range) ([]models.Bar, error)
}

// Ledger is the read side of the portfolio ledger plus the watchlist.
type Ledger interface {
	GetUserStocks(ctx context.Context, userID string) ([]models.Holding, error)
	GetTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error)
	GetNetWorthHistory(ctx context.Context, userID string, days int) ([]models.NetWorthSnapshot, error)
	GetUserWatchlist(ctx context.Context, userID string) ([]models.WatchlistItem, error)
	AddToWatchlist(ctx context.Context, userID, symbol, companyName string) (*models.WatchlistItem, error)
	RemoveFromWatchlist(ctx context.Context, userID, symbol string) error
}

type Valuer interface {
	Summary(ctx context.Context, userID string) (*portfolio.Summary, error)
	SnapshotNetWorth(ctx context.Context, userID string) (*models.NetWorthSnapshot, error)
}

type Trader interface {
	Execute(ctx context.Context, req trading.Request) (*trading.Result, error)
}

// Budget reports what is left of the shared upstream request budget.
type Budget interface {
	Remaining() int
}

// Deps are the services the handlers call into.
type Deps struct {
	Market    MarketData
	History   History
	Ledger    Ledger
	Portfolio Valuer
	Trader    Trader
	Budget    Budget
}

type Handler struct {
	deps    Deps
	timeout time.Duration
	log     zerolog.Logger
}

// New creates the handlers. Every request is bounded by timeout.
func New(deps Deps, timeout time.Duration, log zerolog.Logger) *Handler {
	return &Handler{
		deps:    deps,
		timeout: timeout,
		log:     log.With().Str("component", "http").Logger(),
	}
}

// Register mounts the routes. Everything under /api goes through auth.
func (h *Handler) Register(r gin.IRouter, auth gin.HandlerFunc) {
	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	api.Use(auth)
	{
		api.GET("/trending", h.GetTrending)
		api.GET("/search", h.Search)

		api.GET("/stocks/:symbol", h.GetDetails)
		api.GET("/stocks/:symbol/quote", h.GetQuote)
		api.GET("/stocks/:symbol/profile", h.GetProfile)
		api.GET("/stocks/:symbol/candles", h.GetCandles)
		api.GET("/stocks/:symbol/news", h.GetNews)
		api.GET("/stocks/:symbol/history", h.GetHistory)

		api.GET("/portfolio", h.GetPortfolio)
		api.GET("/portfolio/holdings", h.GetHoldings)
		api.GET("/portfolio/transactions", h.GetTransactions)
		api.GET("/portfolio/networth", h.GetNetWorth)
		api.POST("/portfolio/networth", h.RecordNetWorth)

		api.POST("/trades", h.PlaceTrade)

		api.GET("/watchlist", h.GetWatchlist)
		api.POST("/watchlist", h.AddToWatchlist)
		api.DELETE("/watchlist/:symbol", h.RemoveFromWatchlist)
	}
}

func (h *Handler) Health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.deps.Budget != nil {
		body["gateway_remaining"] = h.deps.Budget.Remaining()
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) context(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

// fail renders err as {"error": msg} with the status its kind maps to.
func (h *Handler) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusGatewayTimeout {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
