package ledger

import (
	"context"
	"fmt"

	"paper-trader/apperr"
	"paper-trader/models"

	"gorm.io/gorm/clause"
)

// GetUserWatchlist returns the user's watchlist, oldest first.
func (s *Store) GetUserWatchlist(ctx context.Context, userID string) ([]models.WatchlistItem, error) {
	var items []models.WatchlistItem
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("added_at, symbol").Find(&items).Error; err != nil {
		return nil, wrap("list watchlist", err)
	}
	return items, nil
}

// AddToWatchlist adds symbol to the watchlist. Adding it again only
// refreshes the company name.
func (s *Store) AddToWatchlist(ctx context.Context, userID, symbol, companyName string) (*models.WatchlistItem, error) {
	item := models.WatchlistItem{
		UserID:      userID,
		Symbol:      symbol,
		CompanyName: companyName,
		AddedAt:     s.now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"company_name"}),
	}).Create(&item).Error
	if err != nil {
		return nil, wrap("add to watchlist", err)
	}

	var stored models.WatchlistItem
	if err := s.db.WithContext(ctx).Where("user_id = ? AND symbol = ?", userID, symbol).First(&stored).Error; err != nil {
		return nil, wrap("add to watchlist", err)
	}
	return &stored, nil
}

func (s *Store) RemoveFromWatchlist(ctx context.Context, userID, symbol string) error {
	res := s.db.WithContext(ctx).Where("user_id = ? AND symbol = ?", userID, symbol).Delete(&models.WatchlistItem{})
	if res.Error != nil {
		return wrap("remove from watchlist", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("remove %s from watchlist: %w", symbol, apperr.ErrNotFound)
	}
	return nil
}
