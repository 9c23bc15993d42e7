package storage

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type dbTransaction struct {
	ID         string
	UserID     string
	CategoryID sql.NullString
	Item       string
	Amount     decimal.Decimal
	OccurredAt time.Time
	Note       string
}

type dbCategoryAmount struct {
	CategoryName string
	Amount       decimal.Decimal
}
