// Package analytics computes spend views over one user's transactions: totals,
// top categories, a gap-filled daily series and a month-end forecast.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	appErrors "github.com/fatali-fataliyev/finance_analytics/customErrors"
	"github.com/fatali-fataliyev/finance_analytics/internal/budget"
	"github.com/fatali-fataliyev/finance_analytics/internal/contextutil"
	"github.com/fatali-fataliyev/finance_analytics/logging"
	"github.com/shopspring/decimal"
)

const endOfDay = 24*time.Hour - time.Nanosecond

// Store is the read side of the transaction store. Both queries are scoped to
// a single owner and treat the range bounds as inclusive.
type Store interface {
	QueryTransactions(ctx context.Context, userID string, r budget.TimeRange) ([]budget.Transaction, error)
	QueryCategoryAmounts(ctx context.Context, userID string, r budget.TimeRange) ([]budget.CategoryAmount, error)
}

type Engine struct {
	store    Store
	now      func() time.Time
	location *time.Location
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLocation sets the calendar used to cut days and months.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		now:      time.Now,
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) today() time.Time {
	return startOfDay(e.now(), e.location)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// daysBetween counts calendar days from a to b. Both must be midnights in the
// same location; rounding absorbs 23h and 25h days around DST changes.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Round(24*time.Hour) / (24 * time.Hour))
}

func requireUser(userID string) error {
	if userID == "" {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "User id cannot be empty!",
		}
	}
	return nil
}

func sum(transactions []budget.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range transactions {
		total = total.Add(t.Amount)
	}
	return total
}

// TotalSpent sums every amount of userID inside r. Signed amounts are summed
// as they are, so income and expenses net out.
func (e *Engine) TotalSpent(ctx context.Context, userID string, r budget.TimeRange) (decimal.Decimal, error) {
	if err := requireUser(userID); err != nil {
		return decimal.Zero, err
	}

	transactions, err := e.store.QueryTransactions(ctx, userID, r)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get total spent: %w", err)
	}
	return sum(transactions), nil
}

// TopCategories returns at most n categories ordered by summed amount,
// largest first. Uncategorized transactions are left out. Equal totals are
// ordered by name.
func (e *Engine) TopCategories(ctx context.Context, userID string, n int, r budget.TimeRange) ([]CategoryTotal, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Number of categories must be positive, got %d", n),
		}
	}

	rows, err := e.store.QueryCategoryAmounts(ctx, userID, r)
	if err != nil {
		return nil, fmt.Errorf("failed to get top categories: %w", err)
	}

	index := make(map[string]int)
	totals := []CategoryTotal{}
	for _, row := range rows {
		i, ok := index[row.CategoryName]
		if !ok {
			i = len(totals)
			index[row.CategoryName] = i
			totals = append(totals, CategoryTotal{Name: row.CategoryName, Total: decimal.Zero})
		}
		totals[i].Total = totals[i].Total.Add(row.Amount)
	}

	sort.SliceStable(totals, func(i, j int) bool {
		if c := totals[i].Total.Cmp(totals[j].Total); c != 0 {
			return c > 0
		}
		return totals[i].Name < totals[j].Name
	})

	if len(totals) > n {
		totals = totals[:n]
	}
	return totals, nil
}

// DailySpending returns one entry per calendar day from daysBack days ago up
// to today, oldest first. Days without transactions are zero.
func (e *Engine) DailySpending(ctx context.Context, userID string, daysBack int) ([]DailyTotal, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if daysBack < 0 {
		return nil, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Days back cannot be negative, got %d", daysBack),
		}
	}

	endDate := e.today()
	startDate := endDate.AddDate(0, 0, -daysBack)
	r := budget.TimeRange{
		From: startDate,
		To:   endDate.Add(endOfDay),
	}

	transactions, err := e.store.QueryTransactions(ctx, userID, r)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily spending: %w", err)
	}

	series := make([]DailyTotal, daysBack+1)
	for i := range series {
		series[i] = DailyTotal{
			Date:  startDate.AddDate(0, 0, i),
			Total: decimal.Zero,
		}
	}

	for _, t := range transactions {
		i := daysBetween(startDate, startOfDay(t.OccurredAt, e.location))
		if i < 0 || i >= len(series) {
			logging.Logger.Warnf("[TraceID=%s] | transaction %s at %s is outside of the daily window, skipped",
				contextutil.TraceIDFromContext(ctx), t.ID, t.OccurredAt.Format(time.RFC3339))
			continue
		}
		series[i].Total = series[i].Total.Add(t.Amount)
	}

	return series, nil
}

// ForecastMonthEnd extrapolates the average daily amount since dateFrom (the
// first of the current month when zero) over the days left in the month. On
// the last day of the month nothing is left to forecast and the result is 0.
func (e *Engine) ForecastMonthEnd(ctx context.Context, userID string, dateFrom time.Time) (decimal.Decimal, error) {
	if err := requireUser(userID); err != nil {
		return decimal.Zero, err
	}

	today := e.today()
	start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, e.location)
	if !dateFrom.IsZero() {
		start = startOfDay(dateFrom, e.location)
	}

	transactions, err := e.store.QueryTransactions(ctx, userID, budget.TimeRange{
		From: start,
		To:   today.Add(endOfDay),
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to forecast month end: %w", err)
	}
	totalSpent := sum(transactions)

	avgPerDay := decimal.Zero
	if daysUsed := daysBetween(start, today) + 1; daysUsed > 0 {
		avgPerDay = totalSpent.Div(decimal.NewFromInt(int64(daysUsed)))
	}

	// Day 0 of the next month is the last day of this one.
	lastDay := time.Date(today.Year(), today.Month()+1, 0, 0, 0, 0, 0, e.location)
	daysLeft := daysBetween(today, lastDay)

	return avgPerDay.Mul(decimal.NewFromInt(int64(daysLeft))).Round(2), nil
}

// Summary runs the four views one after another for the dashboard.
func (e *Engine) Summary(ctx context.Context, userID string, req SummaryRequest) (Summary, error) {
	r := budget.TimeRange{From: req.DateFrom, To: req.DateTo}

	total, err := e.TotalSpent(ctx, userID, r)
	if err != nil {
		return Summary{}, err
	}
	top, err := e.TopCategories(ctx, userID, req.TopN, r)
	if err != nil {
		return Summary{}, err
	}
	daily, err := e.DailySpending(ctx, userID, req.DaysBack)
	if err != nil {
		return Summary{}, err
	}
	forecast, err := e.ForecastMonthEnd(ctx, userID, req.DateFrom)
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		TotalSpent:    total,
		TopCategories: top,
		Daily:         daily,
		Forecast:      forecast,
	}, nil
}
