// Package ledger persists portfolios, holdings, the transaction log,
// watchlists and daily net-worth snapshots.
//
// The ledger does not validate trades. Callers that need several writes to
// land together run them through InTx.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paper-trader/apperr"
	"paper-trader/database"
	"paper-trader/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DateLayout is the calendar-day key of net-worth snapshots.
const DateLayout = "2006-01-02"

// Writer is the set of ledger operations a trade is applied with.
type Writer interface {
	GetOrCreatePortfolio(ctx context.Context, userID string) (*models.Portfolio, error)
	GetHolding(ctx context.Context, userID, symbol string) (*models.Holding, error)
	ApplyCashDelta(ctx context.Context, userID string, delta decimal.Decimal) (*models.Portfolio, error)
	UpsertHolding(ctx context.Context, userID, symbol string, quantity int64, avgCost decimal.Decimal) (*models.Holding, error)
	DeleteHolding(ctx context.Context, userID, symbol string) error
	AppendTransaction(ctx context.Context, t *models.Transaction) error
}

type Store struct {
	db           *gorm.DB
	startingCash decimal.Decimal
	now          func() time.Time
}

var _ Writer = (*Store)(nil)

// New creates a store. startingCash is the balance new portfolios open with.
func New(db *gorm.DB, startingCash decimal.Decimal) *Store {
	return &Store{
		db:           db,
		startingCash: startingCash,
		now:          time.Now,
	}
}

// StartingCash returns the opening balance of new portfolios.
func (s *Store) StartingCash() decimal.Decimal {
	return s.startingCash
}

// InTx runs fn against a store bound to a single database transaction.
// Every write made through w is rolled back if fn returns an error.
func (s *Store) InTx(ctx context.Context, fn func(w Writer) error) error {
	return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		return fn(&Store{db: tx, startingCash: s.startingCash, now: s.now})
	})
}

// GetOrCreatePortfolio returns the user's portfolio, opening one with the
// starting cash on first access.
func (s *Store) GetOrCreatePortfolio(ctx context.Context, userID string) (*models.Portfolio, error) {
	p, err := s.GetUserPortfolio(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	fresh := models.Portfolio{
		UserID:      userID,
		CashBalance: s.startingCash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	// A concurrent first access may win the insert; both then read its row.
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
		return nil, wrap("create portfolio", err)
	}
	return s.GetUserPortfolio(ctx, userID)
}

// GetUserPortfolio returns the user's portfolio or ErrNotFound.
func (s *Store) GetUserPortfolio(ctx context.Context, userID string) (*models.Portfolio, error) {
	var p models.Portfolio
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, wrap("get portfolio", err)
	}
	return &p, nil
}

// ApplyCashDelta adds delta (possibly negative) to the cash balance. No
// floor is enforced. The update is conditional on the version just read, so
// a write that raced it fails with ErrConflict instead of being lost.
func (s *Store) ApplyCashDelta(ctx context.Context, userID string, delta decimal.Decimal) (*models.Portfolio, error) {
	p, err := s.GetUserPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.updateCash(ctx, p, delta)
}

// updateCash writes p's balance plus delta only if the stored version is
// still p.Version.
func (s *Store) updateCash(ctx context.Context, p *models.Portfolio, delta decimal.Decimal) (*models.Portfolio, error) {
	userID := p.UserID
	cash := p.CashBalance.Add(delta)
	now := s.now().UTC()
	res := s.db.WithContext(ctx).
		Model(&models.Portfolio{}).
		Where("user_id = ? AND version = ?", userID, p.Version).
		Updates(map[string]interface{}{
			"cash_balance": cash,
			"version":      p.Version + 1,
			"updated_at":   now,
		})
	if res.Error != nil {
		return nil, wrap("update cash", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("update cash for %s: %w", userID, apperr.ErrConflict)
	}

	p.CashBalance = cash
	p.Version++
	p.UpdatedAt = now
	return p, nil
}

// GetHolding returns the user's position in symbol, or nil when there is none.
func (s *Store) GetHolding(ctx context.Context, userID, symbol string) (*models.Holding, error) {
	var h models.Holding
	err := s.db.WithContext(ctx).Where("user_id = ? AND symbol = ?", userID, symbol).First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get holding", err)
	}
	return &h, nil
}

// GetUserStocks returns every open position of the user, by symbol.
func (s *Store) GetUserStocks(ctx context.Context, userID string) ([]models.Holding, error) {
	var holdings []models.Holding
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("symbol").Find(&holdings).Error; err != nil {
		return nil, wrap("list holdings", err)
	}
	return holdings, nil
}

// UpsertHolding creates or replaces the user's position in symbol.
func (s *Store) UpsertHolding(ctx context.Context, userID, symbol string, quantity int64, avgCost decimal.Decimal) (*models.Holding, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("upsert holding %s: %w", symbol, apperr.ErrInvalidQuantity)
	}
	if !avgCost.IsPositive() {
		return nil, fmt.Errorf("upsert holding %s: %w", symbol, apperr.ErrInvalidPrice)
	}

	now := s.now().UTC()
	h := models.Holding{
		UserID:    userID,
		Symbol:    symbol,
		Quantity:  quantity,
		AvgCost:   avgCost,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "avg_cost", "updated_at"}),
	}).Create(&h).Error
	if err != nil {
		return nil, wrap("upsert holding", err)
	}
	return &h, nil
}

// DeleteHolding removes the user's position in symbol.
func (s *Store) DeleteHolding(ctx context.Context, userID, symbol string) error {
	res := s.db.WithContext(ctx).Where("user_id = ? AND symbol = ?", userID, symbol).Delete(&models.Holding{})
	if res.Error != nil {
		return wrap("delete holding", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete holding %s: %w", symbol, apperr.ErrNotFound)
	}
	return nil
}

// AppendTransaction inserts t into the log as-is.
func (s *Store) AppendTransaction(ctx context.Context, t *models.Transaction) error {
	if t.Timestamp.IsZero() {
		t.Timestamp = s.now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return wrap("append transaction", err)
	}
	return nil
}

// GetTransactions returns the user's most recent limit transactions in
// creation order. limit <= 0 returns the whole log.
func (s *Store) GetTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("timestamp DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var txs []models.Transaction
	if err := q.Find(&txs).Error; err != nil {
		return nil, wrap("list transactions", err)
	}
	for i, j := 0, len(txs)-1; i < j; i, j = i+1, j-1 {
		txs[i], txs[j] = txs[j], txs[i]
	}
	return txs, nil
}

// UserIDs lists every user with a portfolio.
func (s *Store) UserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.Portfolio{}).Order("user_id").Pluck("user_id", &ids).Error; err != nil {
		return nil, wrap("list users", err)
	}
	return ids, nil
}

func wrap(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	return apperr.FromContext(fmt.Errorf("%s: %w", op, err))
}
