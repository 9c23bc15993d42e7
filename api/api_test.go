package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appErrors "github.com/fatali-fataliyev/finance_analytics/customErrors"
	"github.com/fatali-fataliyev/finance_analytics/internal/analytics"
	"github.com/fatali-fataliyev/finance_analytics/internal/budget"
	"github.com/fatali-fataliyev/finance_analytics/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser = "john-1234"

// 2026-10-15 14:30 UTC.
var testNow = time.Date(2026, 10, 15, 14, 30, 0, 0, time.UTC)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store := storage.NewInMemoryStorage()
	bt := budget.NewBudgetTracker(store)
	engine := analytics.NewEngine(store, analytics.WithClock(func() time.Time { return testNow }))
	return NewApi(&bt, engine, time.UTC).Routes()
}

func call(t *testing.T, h http.Handler, method string, target string, body string, user string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seedRouter creates a Food category and three transactions: rent on the
// first of the month, lunch yesterday and coffee this morning.
func seedRouter(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := call(t, h, "POST", "/api/category", `{"name":"Food"}`, testUser)
	require.Equal(t, 201, rec.Code, rec.Body.String())
	food := decode[CategoryItem](t, rec)
	require.NotEmpty(t, food.ID)

	bodies := []string{
		`{"item":"rent","amount":"500","occurred_at":"2026-10-01"}`,
		`{"item":"lunch","amount":"12.50","occurred_at":"2026-10-14","category_id":"` + food.ID + `"}`,
		`{"item":"coffee","amount":"3.20","occurred_at":"2026-10-15T09:00:00Z","category_id":"` + food.ID + `"}`,
	}
	for _, body := range bodies {
		rec := call(t, h, "POST", "/api/transaction", body, testUser)
		require.Equal(t, 201, rec.Code, rec.Body.String())
	}
	return food.ID
}

func TestAnalyticsEndpoints(t *testing.T) {
	h := newTestRouter(t)
	seedRouter(t, h)

	t.Run("total", func(t *testing.T) {
		rec := call(t, h, "GET", "/api/analytics/total", "", testUser)
		require.Equal(t, 200, rec.Code)
		assert.Equal(t, "515.70", decode[TotalSpentResponse](t, rec).TotalSpent)
	})

	t.Run("total for one day", func(t *testing.T) {
		rec := call(t, h, "GET", "/api/analytics/total?date_from=2026-10-14&date_to=2026-10-14", "", testUser)
		require.Equal(t, 200, rec.Code)
		assert.Equal(t, "12.50", decode[TotalSpentResponse](t, rec).TotalSpent)
	})

	t.Run("top categories", func(t *testing.T) {
		rec := call(t, h, "GET", "/api/analytics/top-categories?n=1", "", testUser)
		require.Equal(t, 200, rec.Code)
		resp := decode[ListCategoryTotalsResponse](t, rec)
		assert.Equal(t, []CategoryTotalItem{{Name: "Food", TotalSpent: "15.70"}}, resp.Categories)
	})

	t.Run("daily", func(t *testing.T) {
		rec := call(t, h, "GET", "/api/analytics/daily?days_back=2", "", testUser)
		require.Equal(t, 200, rec.Code)
		resp := decode[ListDailyTotalsResponse](t, rec)
		assert.Equal(t, []DailyTotalItem{
			{Date: "2026-10-13", TotalSpent: "0.00"},
			{Date: "2026-10-14", TotalSpent: "12.50"},
			{Date: "2026-10-15", TotalSpent: "3.20"},
		}, resp.Days)
	})

	t.Run("forecast", func(t *testing.T) {
		// 515.70 over 15 days is 34.38 a day, 16 days left.
		rec := call(t, h, "GET", "/api/analytics/forecast", "", testUser)
		require.Equal(t, 200, rec.Code)
		assert.Equal(t, "550.08", decode[ForecastResponse](t, rec).Forecast)
	})

	t.Run("summary", func(t *testing.T) {
		rec := call(t, h, "GET", "/api/analytics/summary", "", testUser)
		require.Equal(t, 200, rec.Code)
		resp := decode[SummaryResponse](t, rec)
		assert.Equal(t, "515.70", resp.TotalSpent)
		assert.Len(t, resp.TopCategories, 1)
		assert.Len(t, resp.Days, DEFAULT_DAYS_BACK+1)
		assert.Equal(t, "550.08", resp.Forecast)
	})

	t.Run("other user sees nothing", func(t *testing.T) {
		rec := call(t, h, "GET", "/api/analytics/top-categories", "", "jane")
		require.Equal(t, 200, rec.Code)
		assert.Empty(t, decode[ListCategoryTotalsResponse](t, rec).Categories)
	})
}

func TestAnalyticsBadRequests(t *testing.T) {
	h := newTestRouter(t)

	tests := []struct {
		name   string
		target string
		user   string
		status int
		code   string
	}{
		{name: "missing user", target: "/api/analytics/total", status: 401, code: appErrors.ErrAuth},
		{name: "zero n", target: "/api/analytics/top-categories?n=0", user: testUser, status: 400, code: appErrors.ErrInvalidInput},
		{name: "n too large", target: "/api/analytics/top-categories?n=101", user: testUser, status: 400, code: appErrors.ErrInvalidInput},
		{name: "n not a number", target: "/api/analytics/top-categories?n=five", user: testUser, status: 400, code: appErrors.ErrInvalidInput},
		{name: "negative days back", target: "/api/analytics/daily?days_back=-1", user: testUser, status: 400, code: appErrors.ErrInvalidInput},
		{name: "bad date", target: "/api/analytics/total?date_from=15.10.2026", user: testUser, status: 400, code: appErrors.ErrInvalidInput},
		{name: "bad forecast date", target: "/api/analytics/forecast?date_from=yesterday", user: testUser, status: 400, code: appErrors.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(t, h, "GET", tt.target, "", tt.user)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[appErrors.ErrorResponse](t, rec).Code)
		})
	}
}

func TestCategoryAndTransactionEndpoints(t *testing.T) {
	h := newTestRouter(t)
	foodID := seedRouter(t, h)

	t.Run("duplicate category", func(t *testing.T) {
		rec := call(t, h, "POST", "/api/category", `{"name":"Food"}`, testUser)
		assert.Equal(t, 409, rec.Code)
	})

	t.Run("empty category name", func(t *testing.T) {
		rec := call(t, h, "POST", "/api/category", `{"name":"  "}`, testUser)
		assert.Equal(t, 400, rec.Code)
	})

	t.Run("broken body", func(t *testing.T) {
		rec := call(t, h, "POST", "/api/transaction", `{"item":`, testUser)
		assert.Equal(t, 400, rec.Code)
	})

	t.Run("bad amount", func(t *testing.T) {
		rec := call(t, h, "POST", "/api/transaction", `{"item":"tea","amount":"1,5"}`, testUser)
		assert.Equal(t, 400, rec.Code)
	})

	t.Run("category of another user", func(t *testing.T) {
		rec := call(t, h, "POST", "/api/transaction", `{"item":"tea","amount":"1.50","category_id":"`+foodID+`"}`, "jane")
		assert.Equal(t, 404, rec.Code)
	})

	t.Run("list newest first", func(t *testing.T) {
		rec := call(t, h, "GET", "/api/transaction", "", testUser)
		require.Equal(t, 200, rec.Code)
		resp := decode[ListTransactionResponse](t, rec)
		require.Len(t, resp.Transactions, 3)
		assert.Equal(t, "coffee", resp.Transactions[0].Item)
		assert.Equal(t, "3.20", resp.Transactions[0].Amount)
		assert.Equal(t, "rent", resp.Transactions[2].Item)
		assert.Empty(t, resp.Transactions[2].CategoryID)
	})

	t.Run("list by category", func(t *testing.T) {
		rec := call(t, h, "GET", "/api/transaction?category_ids="+foodID+"&date_to=2026-10-14", "", testUser)
		require.Equal(t, 200, rec.Code)
		resp := decode[ListTransactionResponse](t, rec)
		require.Len(t, resp.Transactions, 1)
		assert.Equal(t, "lunch", resp.Transactions[0].Item)
	})
}

func TestCategoryListAndDelete(t *testing.T) {
	h := newTestRouter(t)
	foodID := seedRouter(t, h)

	rec := call(t, h, "GET", "/api/category", "", testUser)
	require.Equal(t, 200, rec.Code)
	categories := decode[ListCategoryResponse](t, rec).Categories
	require.Len(t, categories, 1)
	assert.Equal(t, foodID, categories[0].ID)

	rec = call(t, h, "DELETE", "/api/category/"+foodID, "", "jane")
	assert.Equal(t, 404, rec.Code)

	rec = call(t, h, "DELETE", "/api/category/"+foodID, "", testUser)
	require.Equal(t, 200, rec.Code, rec.Body.String())

	rec = call(t, h, "GET", "/api/category", "", testUser)
	require.Equal(t, 200, rec.Code)
	assert.Empty(t, decode[ListCategoryResponse](t, rec).Categories)

	// Its transactions stay and still count in the total.
	rec = call(t, h, "GET", "/api/analytics/total", "", testUser)
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "515.70", decode[TotalSpentResponse](t, rec).TotalSpent)

	rec = call(t, h, "GET", "/api/analytics/top-categories", "", testUser)
	require.Equal(t, 200, rec.Code)
	assert.Empty(t, decode[ListCategoryTotalsResponse](t, rec).Categories)
}

func TestTransactionGetAndDelete(t *testing.T) {
	h := newTestRouter(t)
	seedRouter(t, h)

	rec := call(t, h, "GET", "/api/transaction", "", testUser)
	require.Equal(t, 200, rec.Code)
	coffee := decode[ListTransactionResponse](t, rec).Transactions[0]

	rec = call(t, h, "GET", "/api/transaction/"+coffee.ID, "", testUser)
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, coffee, decode[TransactionItem](t, rec))

	rec = call(t, h, "GET", "/api/transaction/"+coffee.ID, "", "jane")
	assert.Equal(t, 404, rec.Code)

	rec = call(t, h, "DELETE", "/api/transaction/"+coffee.ID, "", testUser)
	require.Equal(t, 200, rec.Code)

	rec = call(t, h, "GET", "/api/transaction/"+coffee.ID, "", testUser)
	assert.Equal(t, 404, rec.Code)

	rec = call(t, h, "GET", "/api/analytics/total", "", testUser)
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "512.50", decode[TotalSpentResponse](t, rec).TotalSpent)
}

func TestTraceHeader(t *testing.T) {
	h := newTestRouter(t)

	rec := call(t, h, "GET", "/api/health", "", "")
	require.Equal(t, 200, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(TraceHeader))

	req := httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set(TraceHeader, "trace-42")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "trace-42", rec.Header().Get(TraceHeader))
}

func TestParseDate(t *testing.T) {
	from, err := ParseDate("2026-10-14", false, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), from)

	to, err := ParseDate("2026-10-14", true, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 14, 23, 59, 59, 999999999, time.UTC), to)

	ts, err := ParseDate("2026-10-14T10:00:00+04:00", true, time.UTC)
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC)))

	empty, err := ParseDate("", false, time.UTC)
	require.NoError(t, err)
	assert.True(t, empty.IsZero())
}

func TestHttpStatusFromError(t *testing.T) {
	assert.Equal(t, 404, httpStatusFromError(appErrors.New(appErrors.ErrNotFound, "x")))
	assert.Equal(t, 400, httpStatusFromError(appErrors.New(appErrors.ErrInvalidInput, "x")))
	assert.Equal(t, 409, httpStatusFromError(appErrors.New(appErrors.ErrConflict, "x")))
	assert.Equal(t, 500, httpStatusFromError(assert.AnError))

	resp := errorToHttp(assert.AnError)
	assert.Equal(t, appErrors.ErrInternal, resp.Code)
	assert.NotContains(t, resp.Message, assert.AnError.Error())
}
