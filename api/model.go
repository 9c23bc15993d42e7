package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	appErrors "github.com/fatali-fataliyev/finance_analytics/customErrors"
	"github.com/fatali-fataliyev/finance_analytics/internal/analytics"
	"github.com/fatali-fataliyev/finance_analytics/internal/budget"
)

const (
	DEFAULT_TOP_N     = 5
	MAX_TOP_N         = 100
	DEFAULT_DAYS_BACK = 30
	MAX_DAYS_BACK     = 366
	DATE_LAYOUT       = "2006-01-02"
)

// REQUESTS START:
type CreateTransactionRequest struct {
	CategoryID string `json:"category_id"`
	Item       string `json:"item"`
	Amount     string `json:"amount"` // keep as string to allow "-145.00" without float rounding
	OccurredAt string `json:"occurred_at"`
	Note       string `json:"note"`
}

type CreateCategoryRequest struct {
	Name string `json:"name"`
}

//REQUESTS END:

//RESPONSES:

type TotalSpentResponse struct {
	TotalSpent string `json:"total_spent"`
}

type CategoryTotalItem struct {
	Name       string `json:"name"`
	TotalSpent string `json:"total_spent"`
}

type ListCategoryTotalsResponse struct {
	Categories []CategoryTotalItem `json:"categories"`
}

type DailyTotalItem struct {
	Date       string `json:"date"`
	TotalSpent string `json:"total_spent"`
}

type ListDailyTotalsResponse struct {
	Days []DailyTotalItem `json:"days"`
}

type ForecastResponse struct {
	Forecast string `json:"forecast"`
}

type SummaryResponse struct {
	TotalSpent    string              `json:"total_spent"`
	TopCategories []CategoryTotalItem `json:"top_categories"`
	Days          []DailyTotalItem    `json:"days"`
	Forecast      string              `json:"forecast"`
}

type CategoryItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type ListCategoryResponse struct {
	Categories []CategoryItem `json:"categories"`
}

type TransactionItem struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id,omitempty"`
	Item       string `json:"item"`
	Amount     string `json:"amount"`
	OccurredAt string `json:"occurred_at"`
	Note       string `json:"note"`
}

type ListTransactionResponse struct {
	Transactions []TransactionItem `json:"transactions"`
}

func httpStatusFromError(err error) int {
	switch appErrors.CodeOf(err) {
	case appErrors.ErrNotFound:
		return 404 // not found
	case appErrors.ErrInvalidInput:
		return 400 // bad request
	case appErrors.ErrAuth:
		return 401 // unauthorized
	case appErrors.ErrAccessDenied:
		return 403 // access denied
	case appErrors.ErrConflict:
		return 409 // conflict
	default:
		return 500 //internal error
	}
}

// errorToHttp hides driver details of internal errors.
func errorToHttp(err error) appErrors.ErrorResponse {
	code := appErrors.CodeOf(err)
	if code == appErrors.ErrInternal {
		return appErrors.ErrorResponse{
			Code:    code,
			Message: "Something went wrong, try again later.",
		}
	}
	return appErrors.ErrorResponse{
		Code:    code,
		Message: appErrors.MessageOf(err),
	}
}

func CategoryTotalsToHttp(totals []analytics.CategoryTotal) []CategoryTotalItem {
	items := make([]CategoryTotalItem, 0, len(totals))
	for _, total := range totals {
		items = append(items, CategoryTotalItem{
			Name:       total.Name,
			TotalSpent: total.Total.StringFixed(2),
		})
	}
	return items
}

func DailyTotalsToHttp(days []analytics.DailyTotal) []DailyTotalItem {
	items := make([]DailyTotalItem, 0, len(days))
	for _, day := range days {
		items = append(items, DailyTotalItem{
			Date:       day.Date.Format(DATE_LAYOUT),
			TotalSpent: day.Total.StringFixed(2),
		})
	}
	return items
}

func CategoryToHttp(category budget.Category) CategoryItem {
	return CategoryItem{
		ID:        category.ID,
		Name:      category.Name,
		CreatedAt: category.CreatedAt.Format(time.RFC3339),
	}
}

func TransactionToHttp(transaction budget.Transaction) TransactionItem {
	return TransactionItem{
		ID:         transaction.ID,
		CategoryID: transaction.CategoryID,
		Item:       transaction.Item,
		Amount:     transaction.Amount.StringFixed(2),
		OccurredAt: transaction.OccurredAt.Format(time.RFC3339),
		Note:       transaction.Note,
	}
}

// ParseDate accepts a calendar date or an RFC 3339 timestamp. A bare date
// used as an upper bound covers the whole day.
func ParseDate(value string, upper bool, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if date, err := time.ParseInLocation(DATE_LAYOUT, value, loc); err == nil {
		if upper {
			return date.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
		}
		return date, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, appErrors.ErrorResponse{
		Code:    appErrors.ErrInvalidInput,
		Message: fmt.Sprintf("invalid date: %q, expected format is YYYY-MM-DD or RFC 3339", value),
	}
}

func RangeValidateParams(params url.Values, loc *time.Location) (budget.TimeRange, error) {
	from, err := ParseDate(params.Get("date_from"), false, loc)
	if err != nil {
		return budget.TimeRange{}, err
	}
	to, err := ParseDate(params.Get("date_to"), true, loc)
	if err != nil {
		return budget.TimeRange{}, err
	}
	return budget.TimeRange{From: from, To: to}, nil
}

// intParam reads an integer query parameter bounded to [min, max].
func intParam(params url.Values, name string, def int, min int, max int) (int, error) {
	raw := strings.TrimSpace(params.Get(name))
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("invalid %s: %q", name, raw),
		}
	}
	if value < min || value > max {
		return 0, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("%s must be between %d and %d", name, min, max),
		}
	}
	return value, nil
}

func TransactionListValidateParams(params url.Values, loc *time.Location) (*budget.TransactionList, error) {
	var filters budget.TransactionList
	if len(params) == 0 {
		filters.IsAllNil = true
		return &filters, nil
	}

	r, err := RangeValidateParams(params, loc)
	if err != nil {
		return nil, err
	}
	filters.Range = r

	if categories := params.Get("category_ids"); categories != "" {
		for _, id := range strings.Split(categories, ",") {
			if id = strings.TrimSpace(id); id != "" {
				filters.CategoryIDs = append(filters.CategoryIDs, id)
			}
		}
	}
	return &filters, nil
}
