package ledger

import (
	"context"

	"paper-trader/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// RecordDailyNetWorth upserts today's snapshot for the user.
func (s *Store) RecordDailyNetWorth(ctx context.Context, userID string, netWorth, cash, holdingsValue decimal.Decimal) (*models.NetWorthSnapshot, error) {
	now := s.now().UTC()
	snap := models.NetWorthSnapshot{
		UserID:            userID,
		Date:              now.Format(DateLayout),
		NetWorth:          netWorth,
		CashComponent:     cash,
		HoldingsComponent: holdingsValue,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"net_worth", "cash_component", "holdings_component", "updated_at"}),
	}).Create(&snap).Error
	if err != nil {
		return nil, wrap("record net worth", err)
	}
	return &snap, nil
}

// GetNetWorthHistory returns the user's snapshots of the last days days,
// oldest first. days <= 0 returns all of them.
func (s *Store) GetNetWorthHistory(ctx context.Context, userID string, days int) ([]models.NetWorthSnapshot, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if days > 0 {
		since := s.now().UTC().AddDate(0, 0, -(days - 1)).Format(DateLayout)
		q = q.Where("date >= ?", since)
	}

	var snaps []models.NetWorthSnapshot
	if err := q.Order("date").Find(&snaps).Error; err != nil {
		return nil, wrap("net worth history", err)
	}
	return snaps, nil
}
