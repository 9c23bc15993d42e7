package budget

import (
	"time"

	"github.com/shopspring/decimal"
)

// REQUESTS START:
type CategoryRequest struct {
	Name string
}

type TransactionRequest struct {
	CategoryID string
	Item       string
	Amount     decimal.Decimal
	OccurredAt time.Time
	Note       string
}

// REQUESTS END:

// MODELS:

type Category struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}

// Transaction is a signed money movement of one user. An empty CategoryID
// means the transaction is uncategorized.
type Transaction struct {
	ID         string
	UserID     string
	CategoryID string
	Item       string
	Amount     decimal.Decimal
	OccurredAt time.Time
	Note       string
}

// TimeRange bounds are inclusive. A zero bound leaves that side open.
type TimeRange struct {
	From time.Time
	To   time.Time
}

func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// CategoryAmount is one categorized transaction joined with its category name.
type CategoryAmount struct {
	CategoryName string
	Amount       decimal.Decimal
}

// FILTERS:

type TransactionList struct {
	CategoryIDs []string
	Range       TimeRange
	IsAllNil    bool
}
