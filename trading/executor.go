// Package trading validates simulated market orders and applies them to
// the ledger.
package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"paper-trader/apperr"
	"paper-trader/ledger"
	"paper-trader/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultMaxAttempts bounds retries after a concurrent modification.
const DefaultMaxAttempts = 3

// State is where a trade request ended up.
type State string

const (
	Pending   State = "pending"
	Validated State = "validated"
	Applied   State = "applied"
	Rejected  State = "rejected"
)

// Ledger runs a trade's reads and writes in one transaction.
type Ledger interface {
	InTx(ctx context.Context, fn func(w ledger.Writer) error) error
}

// Request is an immediate market order at Price.
type Request struct {
	UserID   string
	Symbol   string
	Side     models.Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

type Result struct {
	State       State               `json:"state"`
	Portfolio   *models.Portfolio   `json:"portfolio,omitempty"`
	Holding     *models.Holding     `json:"holding,omitempty"` // nil once a position is closed
	Transaction *models.Transaction `json:"transaction,omitempty"`
}

type Executor struct {
	ledger      Ledger
	locks       *userLocks
	maxAttempts int
	log         zerolog.Logger
	now         func() time.Time
}

func NewExecutor(l Ledger, log zerolog.Logger) *Executor {
	return &Executor{
		ledger:      l,
		locks:       newUserLocks(),
		maxAttempts: DefaultMaxAttempts,
		log:         log.With().Str("component", "trading").Logger(),
		now:         time.Now,
	}
}

// Execute validates req against a fresh ledger snapshot and applies it.
// Cash, holding and transaction writes commit together or not at all.
// Trades of the same user never interleave; a conflicting write from
// another process restarts the trade from a new snapshot.
//
// A rejected trade returns a Result in state Rejected together with an
// *apperr.RejectionError or a validation error, and leaves the ledger
// untouched.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))

	unlock, err := e.locks.Lock(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		res, err := e.execute(ctx, req)
		if errors.Is(err, apperr.ErrConflict) && attempt < e.maxAttempts {
			e.log.Warn().
				Str("user_id", req.UserID).
				Str("symbol", req.Symbol).
				Int("attempt", attempt).
				Msg("Ledger changed underneath trade, retrying")
			continue
		}
		return res, err
	}
}

func (e *Executor) execute(ctx context.Context, req Request) (*Result, error) {
	res := &Result{State: Pending}

	err := e.ledger.InTx(ctx, func(w ledger.Writer) error {
		p, err := w.GetOrCreatePortfolio(ctx, req.UserID)
		if err != nil {
			return err
		}
		h, err := w.GetHolding(ctx, req.UserID, req.Symbol)
		if err != nil {
			return err
		}
		var held int64
		if h != nil {
			held = h.Quantity
		}

		qty, err := Validate(req, p.CashBalance, held)
		if err != nil {
			res.State = Rejected
			return err
		}
		res.State = Validated

		return e.apply(ctx, w, req, qty, p, h, res)
	})
	if err != nil {
		if res.State == Rejected {
			e.log.Info().
				Err(err).
				Str("user_id", req.UserID).
				Str("symbol", req.Symbol).
				Str("side", string(req.Side)).
				Str("quantity", req.Quantity.String()).
				Msg("Trade rejected")
			return &Result{State: Rejected}, err
		}
		return nil, fmt.Errorf("execute %s %s: %w", req.Side, req.Symbol, err)
	}

	e.log.Info().
		Str("user_id", req.UserID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Int64("quantity", res.Transaction.Quantity).
		Str("price", req.Price.String()).
		Str("cash", res.Portfolio.CashBalance.String()).
		Msg("Trade applied")
	return res, nil
}

func (e *Executor) apply(ctx context.Context, w ledger.Writer, req Request, qty int64, snapshot *models.Portfolio, h *models.Holding, res *Result) error {
	amount := req.Price.Mul(decimal.NewFromInt(qty))

	var (
		delta       decimal.Decimal
		total       decimal.Decimal
		description string
	)
	switch req.Side {
	case models.Buy:
		delta = amount.Neg()
		total = amount.Neg()
		description = fmt.Sprintf("Bought %s of %s at $%s", shares(qty), req.Symbol, req.Price.StringFixed(2))
	case models.Sell:
		delta = amount
		total = amount
		description = fmt.Sprintf("Sold %s of %s at $%s", shares(qty), req.Symbol, req.Price.StringFixed(2))
	}

	p, err := w.ApplyCashDelta(ctx, req.UserID, delta)
	if err != nil {
		return err
	}
	// The balance was validated against snapshot; any other write in
	// between invalidates that.
	if p.Version != snapshot.Version+1 {
		return fmt.Errorf("portfolio of %s moved from version %d to %d: %w",
			req.UserID, snapshot.Version, p.Version-1, apperr.ErrConflict)
	}
	res.Portfolio = p

	var held int64
	if h != nil {
		held = h.Quantity
	}

	switch req.Side {
	case models.Buy:
		avg := req.Price
		if h != nil {
			avg = AverageCost(held, h.AvgCost, qty, req.Price)
		}
		res.Holding, err = w.UpsertHolding(ctx, req.UserID, req.Symbol, held+qty, avg)
	case models.Sell:
		if remaining := held - qty; remaining == 0 {
			err = w.DeleteHolding(ctx, req.UserID, req.Symbol)
		} else {
			res.Holding, err = w.UpsertHolding(ctx, req.UserID, req.Symbol, remaining, h.AvgCost)
		}
	}
	if err != nil {
		return err
	}

	tx := &models.Transaction{
		UserID:      req.UserID,
		Symbol:      req.Symbol,
		Type:        req.Side,
		Quantity:    qty,
		Price:       req.Price,
		TotalAmount: total,
		Description: description,
		Timestamp:   e.now().UTC(),
	}
	if err := w.AppendTransaction(ctx, tx); err != nil {
		return err
	}
	res.Transaction = tx
	res.State = Applied
	return nil
}

func shares(n int64) string {
	if n == 1 {
		return "1 share"
	}
	return fmt.Sprintf("%d shares", n)
}
