package database

import (
	"context"
	"fmt"

	"paper-trader/apperr"
	"paper-trader/models"

	"gorm.io/gorm"
)

// AutoMigrate creates or updates the ledger tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Portfolio{},
		&models.Holding{},
		&models.Transaction{},
		&models.WatchlistItem{},
		&models.NetWorthSnapshot{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// WithTransaction runs fn inside a database transaction. The transaction is
// committed when fn returns nil and rolled back on error or panic.
func WithTransaction(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) (err error) {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return apperr.FromContext(fmt.Errorf("begin transaction: %w", tx.Error))
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return apperr.FromContext(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}
