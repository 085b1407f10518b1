package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Valid reports whether s is buy or sell.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Portfolio holds a user's virtual cash. Version is bumped on every cash
// write and guards against concurrent read-modify-write.
type Portfolio struct {
	UserID      string          `gorm:"primaryKey;size:64" json:"user_id"`
	CashBalance decimal.Decimal `gorm:"type:numeric;not null" json:"cash_balance"`
	Version     int64           `gorm:"not null;default:0" json:"-"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Holding is a user's open position in one symbol.
type Holding struct {
	UserID    string          `gorm:"primaryKey;size:64" json:"user_id"`
	Symbol    string          `gorm:"primaryKey;size:32" json:"symbol"`
	Quantity  int64           `gorm:"not null" json:"quantity"`
	AvgCost   decimal.Decimal `gorm:"type:numeric;not null" json:"avg_cost"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Transaction is an immutable ledger entry. TotalAmount is negative for buys
// and positive for sells.
type Transaction struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	UserID      string          `gorm:"index;size:64;not null" json:"user_id"`
	Symbol      string          `gorm:"size:32;not null" json:"symbol"`
	Type        Side            `gorm:"size:8;not null" json:"type"`
	Quantity    int64           `gorm:"not null" json:"quantity"`
	Price       decimal.Decimal `gorm:"type:numeric;not null" json:"price"`
	TotalAmount decimal.Decimal `gorm:"type:numeric;not null" json:"total_amount"`
	Description string          `json:"description"`
	Timestamp   time.Time       `gorm:"index;not null" json:"timestamp"`
}

// BeforeCreate assigns a time-ordered id so that id order matches creation order.
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		t.ID = id.String()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	return nil
}

// WatchlistItem is a symbol a user follows, independent of holdings.
type WatchlistItem struct {
	UserID      string    `gorm:"primaryKey;size:64" json:"user_id"`
	Symbol      string    `gorm:"primaryKey;size:32" json:"symbol"`
	CompanyName string    `json:"company_name"`
	AddedAt     time.Time `json:"added_at"`
}

// NetWorthSnapshot is the daily point-in-time total for one user.
type NetWorthSnapshot struct {
	UserID            string          `gorm:"primaryKey;size:64" json:"user_id"`
	Date              string          `gorm:"primaryKey;size:10" json:"date"`
	NetWorth          decimal.Decimal `gorm:"type:numeric;not null" json:"net_worth"`
	CashComponent     decimal.Decimal `gorm:"type:numeric;not null" json:"cash_component"`
	HoldingsComponent decimal.Decimal `gorm:"type:numeric;not null" json:"holdings_component"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
