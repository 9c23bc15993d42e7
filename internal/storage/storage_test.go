package storage

import (
	"context"
	"testing"
	"time"

	appErrors "github.com/fatali-fataliyev/finance_analytics/customErrors"
	"github.com/fatali-fataliyev/finance_analytics/internal/analytics"
	"github.com/fatali-fataliyev/finance_analytics/internal/budget"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type store interface {
	budget.Storage
	analytics.Store
}

func newSQLiteStorage(t *testing.T) *SQLStorage {
	t.Helper()
	db, err := InitSQLite(":memory:")
	require.NoError(t, err)
	s := NewSQLStorage(db, "sqlite")
	t.Cleanup(func() { s.Close() })
	return s
}

func eachStorage(t *testing.T, fn func(t *testing.T, s store)) {
	t.Run("inmemory", func(t *testing.T) {
		fn(t, NewInMemoryStorage())
	})
	t.Run("sqlite", func(t *testing.T) {
		fn(t, newSQLiteStorage(t))
	})
}

func at(d int, hour int) time.Time {
	return time.Date(2026, 10, d, hour, 0, 0, 0, time.UTC)
}

// seed stores two users with a category each and a mix of categorized and
// uncategorized transactions.
func seed(t *testing.T, s store) {
	t.Helper()
	ctx := context.Background()

	categories := []budget.Category{
		{ID: "cat-food", UserID: "john", Name: "Food", CreatedAt: at(1, 0)},
		{ID: "cat-transport", UserID: "john", Name: "Transport", CreatedAt: at(1, 0)},
		{ID: "cat-jane", UserID: "jane", Name: "Travel", CreatedAt: at(1, 0)},
	}
	for _, c := range categories {
		require.NoError(t, s.SaveCategory(ctx, c))
	}

	transactions := []budget.Transaction{
		{ID: "ts-1", UserID: "john", CategoryID: "cat-food", Item: "bread", Amount: decimal.RequireFromString("10.50"), OccurredAt: at(1, 8)},
		{ID: "ts-2", UserID: "john", CategoryID: "cat-transport", Item: "bus", Amount: decimal.RequireFromString("2.25"), OccurredAt: at(3, 9)},
		{ID: "ts-3", UserID: "john", Item: "salary", Amount: decimal.RequireFromString("-3000"), OccurredAt: at(5, 10), Note: "october"},
		{ID: "ts-4", UserID: "john", CategoryID: "cat-food", Item: "dinner", Amount: decimal.RequireFromString("40.00"), OccurredAt: at(5, 20)},
		// A foreign category id must never leak into john's category view.
		{ID: "ts-5", UserID: "john", CategoryID: "cat-jane", Item: "ticket", Amount: decimal.RequireFromString("500"), OccurredAt: at(6, 7)},
		{ID: "ts-6", UserID: "jane", CategoryID: "cat-jane", Item: "hotel", Amount: decimal.RequireFromString("99.99"), OccurredAt: at(3, 9)},
	}
	for _, txn := range transactions {
		require.NoError(t, s.SaveTransaction(ctx, txn))
	}
}

func ids(ts []budget.Transaction) []string {
	result := make([]string, 0, len(ts))
	for _, t := range ts {
		result = append(result, t.ID)
	}
	return result
}

func TestQueryTransactions(t *testing.T) {
	eachStorage(t, func(t *testing.T, s store) {
		seed(t, s)
		ctx := context.Background()

		tests := []struct {
			name string
			r    budget.TimeRange
			want []string
		}{
			{name: "open range", r: budget.TimeRange{}, want: []string{"ts-1", "ts-2", "ts-3", "ts-4", "ts-5"}},
			{name: "inclusive bounds", r: budget.TimeRange{From: at(3, 9), To: at(5, 10)}, want: []string{"ts-2", "ts-3"}},
			{name: "lower bound only", r: budget.TimeRange{From: at(5, 11)}, want: []string{"ts-4", "ts-5"}},
			{name: "upper bound only", r: budget.TimeRange{To: at(1, 8)}, want: []string{"ts-1"}},
			{name: "empty", r: budget.TimeRange{From: at(20, 0)}, want: []string{}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				ts, err := s.QueryTransactions(ctx, "john", tt.r)
				require.NoError(t, err)
				assert.Equal(t, tt.want, ids(ts))
			})
		}
	})
}

func TestQueryTransactionsRoundTrip(t *testing.T) {
	eachStorage(t, func(t *testing.T, s store) {
		seed(t, s)

		ts, err := s.QueryTransactions(context.Background(), "john", budget.TimeRange{From: at(5, 10), To: at(5, 10)})
		require.NoError(t, err)
		require.Len(t, ts, 1)

		got := ts[0]
		assert.Equal(t, "ts-3", got.ID)
		assert.Equal(t, "john", got.UserID)
		assert.Empty(t, got.CategoryID)
		assert.Equal(t, "salary", got.Item)
		assert.Equal(t, "october", got.Note)
		assert.True(t, decimal.RequireFromString("-3000").Equal(got.Amount))
		assert.True(t, at(5, 10).Equal(got.OccurredAt))
	})
}

func TestQueryTransactionsNonUTCBounds(t *testing.T) {
	baku, err := time.LoadLocation("Asia/Baku")
	require.NoError(t, err)

	eachStorage(t, func(t *testing.T, s store) {
		seed(t, s)

		// 12:00 Baku is 08:00 UTC, exactly ts-1.
		ts, err := s.QueryTransactions(context.Background(), "john", budget.TimeRange{
			From: time.Date(2026, 10, 1, 12, 0, 0, 0, baku),
			To:   time.Date(2026, 10, 1, 23, 59, 59, 0, baku),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"ts-1"}, ids(ts))
	})
}

func TestQueryCategoryAmounts(t *testing.T) {
	eachStorage(t, func(t *testing.T, s store) {
		seed(t, s)
		ctx := context.Background()

		amounts, err := s.QueryCategoryAmounts(ctx, "john", budget.TimeRange{})
		require.NoError(t, err)

		names := []string{}
		for _, a := range amounts {
			names = append(names, a.CategoryName)
		}
		assert.Equal(t, []string{"Food", "Transport", "Food"}, names)

		ranged, err := s.QueryCategoryAmounts(ctx, "john", budget.TimeRange{From: at(4, 0)})
		require.NoError(t, err)
		require.Len(t, ranged, 1)
		assert.True(t, decimal.RequireFromString("40").Equal(ranged[0].Amount))

		none, err := s.QueryCategoryAmounts(ctx, "nobody", budget.TimeRange{})
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestGetFilteredTransactions(t *testing.T) {
	eachStorage(t, func(t *testing.T, s store) {
		seed(t, s)
		ctx := context.Background()

		all, err := s.GetFilteredTransactions(ctx, "john", &budget.TransactionList{IsAllNil: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"ts-5", "ts-4", "ts-3", "ts-2", "ts-1"}, ids(all))

		food, err := s.GetFilteredTransactions(ctx, "john", &budget.TransactionList{
			CategoryIDs: []string{"cat-food"},
			Range:       budget.TimeRange{From: at(2, 0)},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"ts-4"}, ids(food))
	})
}

func TestCategories(t *testing.T) {
	eachStorage(t, func(t *testing.T, s store) {
		seed(t, s)
		ctx := context.Background()

		category, err := s.GetCategoryById(ctx, "john", "cat-food")
		require.NoError(t, err)
		assert.Equal(t, "Food", category.Name)

		_, err = s.GetCategoryById(ctx, "john", "cat-jane")
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrNotFound, appErrors.CodeOf(err))

		err = s.SaveCategory(ctx, budget.Category{ID: "cat-food-2", UserID: "john", Name: "Food", CreatedAt: at(2, 0)})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrConflict, appErrors.CodeOf(err))

		// Same name for another owner is fine.
		require.NoError(t, s.SaveCategory(ctx, budget.Category{ID: "cat-jane-food", UserID: "jane", Name: "Food", CreatedAt: at(2, 0)}))
	})
}

func TestGetCategories(t *testing.T) {
	eachStorage(t, func(t *testing.T, s store) {
		seed(t, s)
		ctx := context.Background()

		categories, err := s.GetCategories(ctx, "john")
		require.NoError(t, err)
		names := []string{}
		for _, c := range categories {
			names = append(names, c.Name)
		}
		assert.Equal(t, []string{"Food", "Transport"}, names)

		none, err := s.GetCategories(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestDeleteCategoryKeepsTransactions(t *testing.T) {
	eachStorage(t, func(t *testing.T, s store) {
		seed(t, s)
		ctx := context.Background()
		engine := analytics.NewEngine(s, analytics.WithClock(func() time.Time { return at(6, 12) }))

		err := s.DeleteCategory(ctx, "jane", "cat-food")
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrNotFound, appErrors.CodeOf(err))

		require.NoError(t, s.DeleteCategory(ctx, "john", "cat-food"))

		err = s.DeleteCategory(ctx, "john", "cat-food")
		assert.Equal(t, appErrors.ErrNotFound, appErrors.CodeOf(err))

		amounts, err := s.QueryCategoryAmounts(ctx, "john", budget.TimeRange{})
		require.NoError(t, err)
		require.Len(t, amounts, 1)
		assert.Equal(t, "Transport", amounts[0].CategoryName)

		txn, err := s.GetTransactionById(ctx, "john", "ts-1")
		require.NoError(t, err)
		assert.Empty(t, txn.CategoryID)

		total, err := engine.TotalSpent(ctx, "john", budget.TimeRange{})
		require.NoError(t, err)
		assert.Equal(t, "-2447.25", total.StringFixed(2))

		top, err := engine.TopCategories(ctx, "john", 5, budget.TimeRange{})
		require.NoError(t, err)
		require.Len(t, top, 1)
		assert.Equal(t, "Transport", top[0].Name)
	})
}

func TestGetAndDeleteTransaction(t *testing.T) {
	eachStorage(t, func(t *testing.T, s store) {
		seed(t, s)
		ctx := context.Background()

		txn, err := s.GetTransactionById(ctx, "john", "ts-2")
		require.NoError(t, err)
		assert.Equal(t, "bus", txn.Item)
		assert.Equal(t, "cat-transport", txn.CategoryID)

		_, err = s.GetTransactionById(ctx, "jane", "ts-2")
		assert.Equal(t, appErrors.ErrNotFound, appErrors.CodeOf(err))

		err = s.DeleteTransaction(ctx, "jane", "ts-2")
		assert.Equal(t, appErrors.ErrNotFound, appErrors.CodeOf(err))

		require.NoError(t, s.DeleteTransaction(ctx, "john", "ts-2"))
		_, err = s.GetTransactionById(ctx, "john", "ts-2")
		assert.Equal(t, appErrors.ErrNotFound, appErrors.CodeOf(err))

		rest, err := s.QueryTransactions(ctx, "john", budget.TimeRange{})
		require.NoError(t, err)
		assert.Equal(t, []string{"ts-1", "ts-3", "ts-4", "ts-5"}, ids(rest))
	})
}

func TestEngineOverStorage(t *testing.T) {
	eachStorage(t, func(t *testing.T, s store) {
		seed(t, s)
		ctx := context.Background()
		engine := analytics.NewEngine(s, analytics.WithClock(func() time.Time { return at(6, 12) }))

		total, err := engine.TotalSpent(ctx, "john", budget.TimeRange{})
		require.NoError(t, err)
		assert.Equal(t, "-2447.25", total.StringFixed(2))

		top, err := engine.TopCategories(ctx, "john", 5, budget.TimeRange{})
		require.NoError(t, err)
		require.Len(t, top, 2)
		assert.Equal(t, "Food", top[0].Name)
		assert.Equal(t, "50.50", top[0].Total.StringFixed(2))
		assert.Equal(t, "Transport", top[1].Name)

		series, err := engine.DailySpending(ctx, "john", 5)
		require.NoError(t, err)
		require.Len(t, series, 6)
		want := []string{"10.50", "0.00", "2.25", "0.00", "-2960.00", "500.00"}
		for i, entry := range series {
			assert.Equal(t, want[i], entry.Total.StringFixed(2))
		}
	})
}

func TestInitSQLiteIsIdempotent(t *testing.T) {
	path := t.TempDir() + "/analytics.db"

	db, err := InitSQLite(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = InitSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM migration").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestFilterNewMigrations(t *testing.T) {
	all := []string{"0001_init.sql", "0002_goals.sql", "0003_index.sql"}

	assert.Equal(t, all, filterNewMigrations(all, ""))
	assert.Equal(t, []string{"0002_goals.sql", "0003_index.sql"}, filterNewMigrations(all, "0001_init.sql"))
	assert.Empty(t, filterNewMigrations(all, "0003_index.sql"))
}
