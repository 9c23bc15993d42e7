package budget

import (
	"context"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/fatali-fataliyev/finance_analytics/customErrors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MAX_TRANSACTION_ITEM_LENGTH = 255
	MAX_TRANSACTION_NOTE_LENGTH = 1000
	MAX_CATEGORY_NAME_LENGTH    = 255
	MAX_AMOUNT_FRACTION_DIGITS  = 2
)

// Amounts are stored as NUMERIC(12, 2).
var MAX_TRANSACTION_AMOUNT_LIMIT = decimal.RequireFromString("9999999999.99")

type BudgetTracker struct {
	storage     Storage
	StorageType string
}

func NewBudgetTracker(s Storage) BudgetTracker {
	return BudgetTracker{
		storage:     s,
		StorageType: s.GetStorageType(),
	}
}

type Storage interface {
	SaveCategory(ctx context.Context, category Category) error
	GetCategoryById(ctx context.Context, userID string, categoryID string) (Category, error)
	GetCategories(ctx context.Context, userID string) ([]Category, error)
	DeleteCategory(ctx context.Context, userID string, categoryID string) error
	SaveTransaction(ctx context.Context, t Transaction) error
	GetFilteredTransactions(ctx context.Context, userID string, filters *TransactionList) ([]Transaction, error)
	GetTransactionById(ctx context.Context, userID string, transactionID string) (Transaction, error)
	DeleteTransaction(ctx context.Context, userID string, transactionID string) error
	GetStorageType() string
}

func (bt *BudgetTracker) SaveCategory(ctx context.Context, userID string, category CategoryRequest) (Category, error) {
	name := strings.TrimSpace(category.Name)
	if name == "" {
		return Category{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Category name cannot be empty!",
		}
	}
	if len(name) > MAX_CATEGORY_NAME_LENGTH {
		return Category{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Category name so long, maximum length is %d", MAX_CATEGORY_NAME_LENGTH),
		}
	}

	item := Category{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	if err := bt.storage.SaveCategory(ctx, item); err != nil {
		return Category{}, fmt.Errorf("failed to save category: %w", err)
	}
	return item, nil
}

func (bt *BudgetTracker) SaveTransaction(ctx context.Context, userID string, transaction TransactionRequest) (Transaction, error) {
	if err := validateTransaction(transaction); err != nil {
		return Transaction{}, err
	}

	if transaction.CategoryID != "" {
		if _, err := bt.storage.GetCategoryById(ctx, userID, transaction.CategoryID); err != nil {
			return Transaction{}, fmt.Errorf("failed to check transaction category: %w", err)
		}
	}

	occurredAt := transaction.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	txn := Transaction{
		ID:         uuid.New().String(),
		UserID:     userID,
		CategoryID: transaction.CategoryID,
		Item:       strings.TrimSpace(transaction.Item),
		Amount:     transaction.Amount,
		OccurredAt: occurredAt.UTC(),
		Note:       transaction.Note,
	}

	if err := bt.storage.SaveTransaction(ctx, txn); err != nil {
		return Transaction{}, fmt.Errorf("failed to save transaction to db: %w", err)
	}
	return txn, nil
}

func validateTransaction(transaction TransactionRequest) error {
	if strings.TrimSpace(transaction.Item) == "" {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Item cannot be empty!",
		}
	}
	if len(transaction.Item) > MAX_TRANSACTION_ITEM_LENGTH {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Item so long, maximum allowed length is: %d", MAX_TRANSACTION_ITEM_LENGTH),
		}
	}
	if transaction.Amount.IsZero() {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Transaction amount is zero.",
		}
	}
	if transaction.Amount.Abs().GreaterThan(MAX_TRANSACTION_AMOUNT_LIMIT) {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Maximum allowed amount per transaction is: %s", MAX_TRANSACTION_AMOUNT_LIMIT.StringFixed(2)),
		}
	}
	if !transaction.Amount.Equal(transaction.Amount.Round(MAX_AMOUNT_FRACTION_DIGITS)) {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Amount can have at most %d fractional digits.", MAX_AMOUNT_FRACTION_DIGITS),
		}
	}
	if len(transaction.Note) > MAX_TRANSACTION_NOTE_LENGTH {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Note so long, maximum allowed length is: %d", MAX_TRANSACTION_NOTE_LENGTH),
		}
	}
	return nil
}

func (bt *BudgetTracker) GetFilteredTransactions(ctx context.Context, userID string, filters *TransactionList) ([]Transaction, error) {
	if filters == nil {
		filters = &TransactionList{IsAllNil: true}
	}
	ts, err := bt.storage.GetFilteredTransactions(ctx, userID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	return ts, nil
}

func (bt *BudgetTracker) GetCategories(ctx context.Context, userID string) ([]Category, error) {
	categories, err := bt.storage.GetCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	return categories, nil
}

// DeleteCategory removes the category. Its transactions are kept and become
// uncategorized.
func (bt *BudgetTracker) DeleteCategory(ctx context.Context, userID string, categoryID string) error {
	if strings.TrimSpace(categoryID) == "" {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Category id cannot be empty!",
		}
	}
	if err := bt.storage.DeleteCategory(ctx, userID, categoryID); err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return nil
}

func (bt *BudgetTracker) GetTransactionById(ctx context.Context, userID string, transactionID string) (Transaction, error) {
	if strings.TrimSpace(transactionID) == "" {
		return Transaction{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Transaction id cannot be empty!",
		}
	}
	t, err := bt.storage.GetTransactionById(ctx, userID, transactionID)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

func (bt *BudgetTracker) DeleteTransaction(ctx context.Context, userID string, transactionID string) error {
	if strings.TrimSpace(transactionID) == "" {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Transaction id cannot be empty!",
		}
	}
	if err := bt.storage.DeleteTransaction(ctx, userID, transactionID); err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return nil
}

func (bt *BudgetTracker) GetStorageType() string {
	return bt.storage.GetStorageType()
}
