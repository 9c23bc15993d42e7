package storage

import (
	"context"
	"sort"
	"sync"

	appErrors "github.com/fatali-fataliyev/finance_analytics/customErrors"
	"github.com/fatali-fataliyev/finance_analytics/internal/analytics"
	"github.com/fatali-fataliyev/finance_analytics/internal/budget"
)

var (
	_ budget.Storage  = (*InMemoryStorage)(nil)
	_ analytics.Store = (*InMemoryStorage)(nil)
)

type InMemoryStorage struct {
	mu           sync.RWMutex
	categories   []budget.Category
	transactions []budget.Transaction
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{}
}

func (inMem *InMemoryStorage) GetStorageType() string {
	return "inmemory"
}

func (inMem *InMemoryStorage) SaveCategory(ctx context.Context, category budget.Category) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for _, c := range inMem.categories {
		if c.ID == category.ID || (c.UserID == category.UserID && c.Name == category.Name) {
			return appErrors.ErrorResponse{
				Code:    appErrors.ErrConflict,
				Message: "The category already exists.",
			}
		}
	}
	inMem.categories = append(inMem.categories, category)
	return nil
}

func (inMem *InMemoryStorage) GetCategoryById(ctx context.Context, userID string, categoryID string) (budget.Category, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	category, ok := inMem.findCategory(userID, categoryID)
	if !ok {
		return budget.Category{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrNotFound,
			Message: "The category does not exist.",
		}
	}
	return category, nil
}

func (inMem *InMemoryStorage) GetCategories(ctx context.Context, userID string) ([]budget.Category, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	result := []budget.Category{}
	for _, c := range inMem.categories {
		if c.UserID == userID {
			result = append(result, c)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// DeleteCategory drops the category and leaves its transactions uncategorized.
func (inMem *InMemoryStorage) DeleteCategory(ctx context.Context, userID string, categoryID string) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for i, c := range inMem.categories {
		if c.ID != categoryID || c.UserID != userID {
			continue
		}
		inMem.categories = append(inMem.categories[:i], inMem.categories[i+1:]...)
		for j := range inMem.transactions {
			if inMem.transactions[j].CategoryID == categoryID {
				inMem.transactions[j].CategoryID = ""
			}
		}
		return nil
	}
	return appErrors.ErrorResponse{
		Code:    appErrors.ErrNotFound,
		Message: "The category does not exist.",
	}
}

func (inMem *InMemoryStorage) findCategory(userID string, categoryID string) (budget.Category, bool) {
	for _, c := range inMem.categories {
		if c.ID == categoryID && c.UserID == userID {
			return c, true
		}
	}
	return budget.Category{}, false
}

func (inMem *InMemoryStorage) SaveTransaction(ctx context.Context, t budget.Transaction) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for _, existing := range inMem.transactions {
		if existing.ID == t.ID {
			return appErrors.ErrorResponse{
				Code:    appErrors.ErrConflict,
				Message: "The transaction already exists.",
			}
		}
	}
	t.OccurredAt = t.OccurredAt.UTC()
	inMem.transactions = append(inMem.transactions, t)
	return nil
}

// byOwner returns the user's transactions inside r, oldest first. Callers
// must hold the read lock.
func (inMem *InMemoryStorage) byOwner(userID string, r budget.TimeRange) []budget.Transaction {
	result := []budget.Transaction{}
	for _, t := range inMem.transactions {
		if t.UserID == userID && r.Contains(t.OccurredAt) {
			result = append(result, t)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OccurredAt.Before(result[j].OccurredAt)
	})
	return result
}

func (inMem *InMemoryStorage) GetFilteredTransactions(ctx context.Context, userID string, filters *budget.TransactionList) ([]budget.Transaction, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	if filters == nil || filters.IsAllNil {
		filters = &budget.TransactionList{}
	}

	wanted := make(map[string]bool, len(filters.CategoryIDs))
	for _, id := range filters.CategoryIDs {
		wanted[id] = true
	}

	owned := inMem.byOwner(userID, filters.Range)
	result := make([]budget.Transaction, 0, len(owned))
	for i := len(owned) - 1; i >= 0; i-- {
		if len(wanted) > 0 && !wanted[owned[i].CategoryID] {
			continue
		}
		result = append(result, owned[i])
	}
	return result, nil
}

func (inMem *InMemoryStorage) GetTransactionById(ctx context.Context, userID string, transactionID string) (budget.Transaction, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	for _, t := range inMem.transactions {
		if t.ID == transactionID && t.UserID == userID {
			return t, nil
		}
	}
	return budget.Transaction{}, appErrors.ErrorResponse{
		Code:    appErrors.ErrNotFound,
		Message: "The transaction does not exist.",
	}
}

func (inMem *InMemoryStorage) DeleteTransaction(ctx context.Context, userID string, transactionID string) error {
	inMem.mu.Lock()
	defer inMem.mu.Unlock()

	for i, t := range inMem.transactions {
		if t.ID == transactionID && t.UserID == userID {
			inMem.transactions = append(inMem.transactions[:i], inMem.transactions[i+1:]...)
			return nil
		}
	}
	return appErrors.ErrorResponse{
		Code:    appErrors.ErrNotFound,
		Message: "The transaction does not exist.",
	}
}

func (inMem *InMemoryStorage) QueryTransactions(ctx context.Context, userID string, r budget.TimeRange) ([]budget.Transaction, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	return inMem.byOwner(userID, r), nil
}

func (inMem *InMemoryStorage) QueryCategoryAmounts(ctx context.Context, userID string, r budget.TimeRange) ([]budget.CategoryAmount, error) {
	inMem.mu.RLock()
	defer inMem.mu.RUnlock()

	amounts := []budget.CategoryAmount{}
	for _, t := range inMem.byOwner(userID, r) {
		if t.CategoryID == "" {
			continue
		}
		category, ok := inMem.findCategory(userID, t.CategoryID)
		if !ok {
			continue
		}
		amounts = append(amounts, budget.CategoryAmount{CategoryName: category.Name, Amount: t.Amount})
	}
	return amounts, nil
}
