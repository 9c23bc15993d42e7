package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/0xcafe-io/iz"
	appErrors "github.com/fatali-fataliyev/finance_analytics/customErrors"
	"github.com/fatali-fataliyev/finance_analytics/internal/analytics"
	"github.com/fatali-fataliyev/finance_analytics/internal/budget"
	"github.com/fatali-fataliyev/finance_analytics/internal/contextutil"
	"github.com/fatali-fataliyev/finance_analytics/logging"
	"github.com/shopspring/decimal"
)

// UserHeader carries the owner id resolved by the authenticating gateway.
const UserHeader = "X-User-ID"

type Api struct {
	Service   *budget.BudgetTracker
	Analytics *analytics.Engine
	Location  *time.Location
}

func NewApi(service *budget.BudgetTracker, engine *analytics.Engine, loc *time.Location) *Api {
	if loc == nil {
		loc = time.UTC
	}
	return &Api{
		Service:   service,
		Analytics: engine,
		Location:  loc,
	}
}

func failed(err error) iz.Responder {
	return iz.Respond().Status(httpStatusFromError(err)).JSON(errorToHttp(err))
}

func unauthorized() iz.Responder {
	return iz.Respond().Status(401).JSON(appErrors.ErrorResponse{
		Code:    appErrors.ErrAuth,
		Message: fmt.Sprintf("authorization failed: %s header is required.", UserHeader),
	})
}

func userFromRequest(r *iz.Request) string {
	if userID := contextutil.UserIDFromContext(r.Context()); userID != "" {
		return userID
	}
	return strings.TrimSpace(r.Header.Get(UserHeader))
}

func (api *Api) TotalSpentHandler(r *iz.Request) iz.Responder {
	userId := userFromRequest(r)
	if userId == "" {
		return unauthorized()
	}

	timeRange, err := RangeValidateParams(r.URL.Query(), api.Location)
	if err != nil {
		return failed(err)
	}

	total, err := api.Analytics.TotalSpent(r.Context(), userId, timeRange)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to get total spent: %v", contextutil.TraceIDFromContext(r.Context()), err)
		return failed(err)
	}
	return iz.Respond().Status(200).JSON(TotalSpentResponse{TotalSpent: total.StringFixed(2)})
}

func (api *Api) TopCategoriesHandler(r *iz.Request) iz.Responder {
	userId := userFromRequest(r)
	if userId == "" {
		return unauthorized()
	}

	params := r.URL.Query()
	n, err := intParam(params, "n", DEFAULT_TOP_N, 1, MAX_TOP_N)
	if err != nil {
		return failed(err)
	}
	timeRange, err := RangeValidateParams(params, api.Location)
	if err != nil {
		return failed(err)
	}

	top, err := api.Analytics.TopCategories(r.Context(), userId, n, timeRange)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to get top categories: %v", contextutil.TraceIDFromContext(r.Context()), err)
		return failed(err)
	}
	return iz.Respond().Status(200).JSON(ListCategoryTotalsResponse{Categories: CategoryTotalsToHttp(top)})
}

func (api *Api) DailySpendingHandler(r *iz.Request) iz.Responder {
	userId := userFromRequest(r)
	if userId == "" {
		return unauthorized()
	}

	daysBack, err := intParam(r.URL.Query(), "days_back", DEFAULT_DAYS_BACK, 0, MAX_DAYS_BACK)
	if err != nil {
		return failed(err)
	}

	days, err := api.Analytics.DailySpending(r.Context(), userId, daysBack)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to get daily spending: %v", contextutil.TraceIDFromContext(r.Context()), err)
		return failed(err)
	}
	return iz.Respond().Status(200).JSON(ListDailyTotalsResponse{Days: DailyTotalsToHttp(days)})
}

func (api *Api) ForecastHandler(r *iz.Request) iz.Responder {
	userId := userFromRequest(r)
	if userId == "" {
		return unauthorized()
	}

	dateFrom, err := ParseDate(r.URL.Query().Get("date_from"), false, api.Location)
	if err != nil {
		return failed(err)
	}

	forecast, err := api.Analytics.ForecastMonthEnd(r.Context(), userId, dateFrom)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to forecast month end: %v", contextutil.TraceIDFromContext(r.Context()), err)
		return failed(err)
	}
	return iz.Respond().Status(200).JSON(ForecastResponse{Forecast: forecast.StringFixed(2)})
}

func (api *Api) SummaryHandler(r *iz.Request) iz.Responder {
	userId := userFromRequest(r)
	if userId == "" {
		return unauthorized()
	}

	params := r.URL.Query()
	n, err := intParam(params, "n", DEFAULT_TOP_N, 1, MAX_TOP_N)
	if err != nil {
		return failed(err)
	}
	daysBack, err := intParam(params, "days_back", DEFAULT_DAYS_BACK, 0, MAX_DAYS_BACK)
	if err != nil {
		return failed(err)
	}
	timeRange, err := RangeValidateParams(params, api.Location)
	if err != nil {
		return failed(err)
	}

	summary, err := api.Analytics.Summary(r.Context(), userId, analytics.SummaryRequest{
		TopN:     n,
		DaysBack: daysBack,
		DateFrom: timeRange.From,
		DateTo:   timeRange.To,
	})
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to build summary: %v", contextutil.TraceIDFromContext(r.Context()), err)
		return failed(err)
	}

	return iz.Respond().Status(200).JSON(SummaryResponse{
		TotalSpent:    summary.TotalSpent.StringFixed(2),
		TopCategories: CategoryTotalsToHttp(summary.TopCategories),
		Days:          DailyTotalsToHttp(summary.Daily),
		Forecast:      summary.Forecast.StringFixed(2),
	})
}

func (api *Api) SaveCategoryHandler(r *iz.Request) iz.Responder {
	userId := userFromRequest(r)
	if userId == "" {
		return unauthorized()
	}

	var newCategoryReq CreateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&newCategoryReq); err != nil {
		return failed(appErrors.New(appErrors.ErrInvalidInput, "invalid request body: %v", err))
	}

	category, err := api.Service.SaveCategory(r.Context(), userId, budget.CategoryRequest{Name: newCategoryReq.Name})
	if err != nil {
		return failed(err)
	}
	return iz.Respond().Status(201).JSON(CategoryToHttp(category))
}

func (api *Api) GetCategoriesHandler(r *iz.Request) iz.Responder {
	userId := userFromRequest(r)
	if userId == "" {
		return unauthorized()
	}

	categories, err := api.Service.GetCategories(r.Context(), userId)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to get categories: %v", contextutil.TraceIDFromContext(r.Context()), err)
		return failed(err)
	}

	categoriesForHttp := make([]CategoryItem, 0, len(categories))
	for _, c := range categories {
		categoriesForHttp = append(categoriesForHttp, CategoryToHttp(c))
	}
	return iz.Respond().Status(200).JSON(ListCategoryResponse{Categories: categoriesForHttp})
}

func (api *Api) DeleteCategoryHandler(r *iz.Request) iz.Responder {
	userId := userFromRequest(r)
	if userId == "" {
		return unauthorized()
	}

	categoryId := r.PathValue("id")
	if err := api.Service.DeleteCategory(r.Context(), userId, categoryId); err != nil {
		return failed(err)
	}
	return iz.Respond().Status(200).Text("category deleted, its transactions are now uncategorized")
}

func (api *Api) SaveTransactionHandler(r *iz.Request) iz.Responder {
	userId := userFromRequest(r)
	if userId == "" {
		return unauthorized()
	}

	var newTransactionReq CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&newTransactionReq); err != nil {
		return failed(appErrors.New(appErrors.ErrInvalidInput, "invalid request body: %v", err))
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(newTransactionReq.Amount))
	if err != nil {
		return failed(appErrors.New(appErrors.ErrInvalidInput, "invalid transaction amount format: '%s'", newTransactionReq.Amount))
	}

	occurredAt, err := ParseDate(newTransactionReq.OccurredAt, false, api.Location)
	if err != nil {
		return failed(err)
	}

	transaction, err := api.Service.SaveTransaction(r.Context(), userId, budget.TransactionRequest{
		CategoryID: newTransactionReq.CategoryID,
		Item:       newTransactionReq.Item,
		Amount:     amount,
		OccurredAt: occurredAt,
		Note:       newTransactionReq.Note,
	})
	if err != nil {
		return failed(err)
	}
	return iz.Respond().Status(201).JSON(TransactionToHttp(transaction))
}

func (api *Api) GetFilteredTransactionsHandler(r *iz.Request) iz.Responder {
	userId := userFromRequest(r)
	if userId == "" {
		return unauthorized()
	}

	filters, err := TransactionListValidateParams(r.URL.Query(), api.Location)
	if err != nil {
		return failed(err)
	}

	ts, err := api.Service.GetFilteredTransactions(r.Context(), userId, filters)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to get filtered transactions: %v", contextutil.TraceIDFromContext(r.Context()), err)
		return failed(err)
	}

	tsForHttp := make([]TransactionItem, 0, len(ts))
	for _, t := range ts {
		tsForHttp = append(tsForHttp, TransactionToHttp(t))
	}
	return iz.Respond().Status(200).JSON(ListTransactionResponse{Transactions: tsForHttp})
}

func (api *Api) GetTransactionByIdHandler(r *iz.Request) iz.Responder {
	userId := userFromRequest(r)
	if userId == "" {
		return unauthorized()
	}

	t, err := api.Service.GetTransactionById(r.Context(), userId, r.PathValue("id"))
	if err != nil {
		return failed(err)
	}
	return iz.Respond().Status(200).JSON(TransactionToHttp(t))
}

func (api *Api) DeleteTransactionHandler(r *iz.Request) iz.Responder {
	userId := userFromRequest(r)
	if userId == "" {
		return unauthorized()
	}

	if err := api.Service.DeleteTransaction(r.Context(), userId, r.PathValue("id")); err != nil {
		return failed(err)
	}
	return iz.Respond().Status(200).Text("transaction deleted")
}

func (api *Api) HealthHandler(r *iz.Request) iz.Responder {
	return iz.Respond().Status(200).JSON(map[string]string{
		"status":  "ok",
		"storage": api.Service.GetStorageType(),
	})
}

// Routes registers every endpoint on a fresh mux.
func (api *Api) Routes() http.Handler {
	server := http.NewServeMux()

	// ANALYTICS ENDPOINTS.
	server.HandleFunc("GET /api/analytics/total", iz.Bind(api.TotalSpentHandler))             // Total spent, optional date range
	server.HandleFunc("GET /api/analytics/top-categories", iz.Bind(api.TopCategoriesHandler)) // Top N categories by spend
	server.HandleFunc("GET /api/analytics/daily", iz.Bind(api.DailySpendingHandler))          // Daily series, gaps filled with zero
	server.HandleFunc("GET /api/analytics/forecast", iz.Bind(api.ForecastHandler))            // Month end forecast
	server.HandleFunc("GET /api/analytics/summary", iz.Bind(api.SummaryHandler))              // All of the above at once

	// CATEGORY ENDPOINTS.
	server.HandleFunc("POST /api/category", iz.Bind(api.SaveCategoryHandler))          // Create Category
	server.HandleFunc("GET /api/category", iz.Bind(api.GetCategoriesHandler))          // List Categories
	server.HandleFunc("DELETE /api/category/{id}", iz.Bind(api.DeleteCategoryHandler)) // Delete Category, keeps its transactions

	// TRANSACTION ENDPOINTS.
	server.HandleFunc("POST /api/transaction", iz.Bind(api.SaveTransactionHandler))          // Create Transaction
	server.HandleFunc("GET /api/transaction", iz.Bind(api.GetFilteredTransactionsHandler))   // Get Transactions with filters
	server.HandleFunc("GET /api/transaction/{id}", iz.Bind(api.GetTransactionByIdHandler))   // Get Transaction by ID
	server.HandleFunc("DELETE /api/transaction/{id}", iz.Bind(api.DeleteTransactionHandler)) // Delete Transaction

	server.HandleFunc("GET /api/health", iz.Bind(api.HealthHandler))

	return withTrace(corsConf.Handler(server))
}
