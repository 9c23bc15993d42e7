package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// CategoryTotal is the summed amount of every transaction tagged with one
// category name.
type CategoryTotal struct {
	Name  string
	Total decimal.Decimal
}

// DailyTotal is the summed amount of one calendar day. Date is midnight of
// that day in the engine's location.
type DailyTotal struct {
	Date  time.Time
	Total decimal.Decimal
}

type SummaryRequest struct {
	TopN     int
	DaysBack int
	DateFrom time.Time
	DateTo   time.Time
}

type Summary struct {
	TotalSpent    decimal.Decimal
	TopCategories []CategoryTotal
	Daily         []DailyTotal
	Forecast      decimal.Decimal
}
