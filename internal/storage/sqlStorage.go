package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	appErrors "github.com/fatali-fataliyev/finance_analytics/customErrors"
	"github.com/fatali-fataliyev/finance_analytics/internal/analytics"
	"github.com/fatali-fataliyev/finance_analytics/internal/budget"
	"github.com/fatali-fataliyev/finance_analytics/internal/config"
	"github.com/fatali-fataliyev/finance_analytics/internal/contextutil"
	"github.com/fatali-fataliyev/finance_analytics/logging"
	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	_ budget.Storage  = (*SQLStorage)(nil)
	_ analytics.Store = (*SQLStorage)(nil)
)

// --- INIT START --- //

func InitMySQL(cfg *config.Config) (*sql.DB, error) {
	dbname := cfg.DBName
	if dbname == "" {
		dbname = "finance_analytics"
	}

	var adminDsn string
	if cfg.FullDSN != "" {
		parts := strings.Split(cfg.FullDSN, "/")
		adminDsn = strings.Join(parts[:len(parts)-1], "/") + "/"
	} else {
		if cfg.DBUser == "" || cfg.DBPass == "" || cfg.DBHost == "" || cfg.DBPort == "" {
			return nil, fmt.Errorf("missing required DB environment variables")
		}
		adminDsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/?parseTime=true", cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort)
	}

	logging.Logger.Info("Connecting to MySQL server for initialization...")
	adminDb, err := sql.Open("mysql", adminDsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open admin mysql handle: %v", err)
	}
	connected := false
	for i := 0; i < 15; i++ {
		if err := adminDb.Ping(); err == nil {
			connected = true
			break
		}
		logging.Logger.Warnf("Database not ready, retrying... (%d/15)", i+1)
		time.Sleep(3 * time.Second)
	}
	if !connected {
		adminDb.Close()
		return nil, fmt.Errorf("database unreachable after multiple attempts")
	}

	var dbnameExistence string
	checkDbnameExistQuery := "SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?"
	err = adminDb.QueryRow(checkDbnameExistQuery, dbname).Scan(&dbnameExistence)

	if err == sql.ErrNoRows {
		logging.Logger.Infof("Database '%s' does not exist, creating...", dbname)
		createDbSql := fmt.Sprintf("CREATE DATABASE `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci;", dbname)
		if _, err := adminDb.Exec(createDbSql); err != nil {
			adminDb.Close()
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	} else if err != nil {
		adminDb.Close()
		return nil, fmt.Errorf("failed to check database existence: %v", err)
	}

	adminDb.Close()

	finalDsn := cfg.FullDSN
	if finalDsn == "" {
		finalDsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC", cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, dbname)
	}

	logging.Logger.Info("Connecting to database...")
	db, err := sql.Open("mysql", finalDsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database handle: %v", err)
	}

	if _, err := db.Exec("SET time_zone = '+00:00'"); err != nil {
		logging.Logger.Warn("failed to set database timezone(UTC+0)")
	}

	logging.Logger.Info("Connected to database successfully")
	logging.Logger.Info("Running migrations...")

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	return db, nil
}

// InitSQLite opens (or creates) the database file at path. ":memory:" keeps
// the whole database in a single connection.
func InitSQLite(path string) (*sql.DB, error) {
	logging.Logger.Infof("Opening sqlite database %q...", path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite handle: %v", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %v", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}
	return db, nil
}

func runMigrations(db *sql.DB) error {
	migrationFiles, err := getMigrationFiles(migrationsFS)
	if err != nil {
		return fmt.Errorf("failed to get migration files: %v", err)
	}

	lastAppliedMigration, err := getLastAppliedMigration(db)
	if err != nil {
		return fmt.Errorf("failed to get last applied migration name: %v", err)
	}

	newMigrations := filterNewMigrations(migrationFiles, lastAppliedMigration)

	if len(newMigrations) == 0 {
		logging.Logger.Info("no new migration")
		return nil
	}

	for _, migrationFile := range newMigrations {
		logging.Logger.Info("applying migration: ", migrationFile)
		migrationContent, err := fs.ReadFile(migrationsFS, "migrations/"+migrationFile)
		if err != nil {
			return fmt.Errorf("failed to read this '%s' migration file, error: %v", migrationFile, err)
		}

		err = applyMigration(db, migrationFile, string(migrationContent))
		if err != nil {
			return fmt.Errorf("failed to apply this '%s' migration file, error: %v", migrationFile, err)
		}
	}

	logging.Logger.Info("all migrations applied successfully")
	return nil
}

func getMigrationFiles(fsys fs.FS) ([]string, error) {
	files, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, err
	}

	var migrationFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			migrationFiles = append(migrationFiles, file.Name())
		}
	}

	sort.Strings(migrationFiles)
	return migrationFiles, nil
}

func getLastAppliedMigration(db *sql.DB) (string, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS migration (
        migration_name VARCHAR(255) NOT NULL PRIMARY KEY,
        applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );`)

	if err != nil {
		return "", err
	}

	var lastMigration string
	err = db.QueryRow("SELECT migration_name FROM migration ORDER BY migration_name DESC LIMIT 1").Scan(&lastMigration)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return lastMigration, err
}

func filterNewMigrations(all []string, lastApplied string) []string {
	if lastApplied == "" {
		return all
	}

	var result []string
	for _, migration := range all {
		if migration > lastApplied {
			result = append(result, migration)
		}
	}
	return result
}

func applyMigration(db *sql.DB, name, sqlContent string) error {
	txn, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	statements := strings.Split(sqlContent, ";")

	for _, statement := range statements {
		trimmedStmt := strings.TrimSpace(statement)
		if trimmedStmt == "" {
			continue
		}

		if _, err := txn.Exec(trimmedStmt); err != nil {
			txn.Rollback()
			return fmt.Errorf("migration statement failed: %w\nStatement: %s", err, trimmedStmt)
		}
	}

	if _, err := txn.Exec("INSERT INTO migration (migration_name) VALUES (?)", name); err != nil {
		txn.Rollback()
		return fmt.Errorf("failed to record migration name: %w", err)
	}

	return txn.Commit()
}

// --- INIT END --- //

// SQLStorage works on top of both the mysql and the sqlite driver; every
// statement sticks to the SQL both of them understand.
type SQLStorage struct {
	db     *sql.DB
	driver string
}

func NewSQLStorage(db *sql.DB, driver string) *SQLStorage {
	return &SQLStorage{db: db, driver: driver}
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}

func (s *SQLStorage) GetStorageType() string {
	return s.driver
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(sqliteErr.Error(), "UNIQUE")
		}
	}
	return false
}

// appendRange adds inclusive bounds on column. Bounds are bound in UTC so
// textual timestamps compare correctly.
func appendRange(query string, args []interface{}, column string, r budget.TimeRange) (string, []interface{}) {
	if !r.From.IsZero() {
		query += " AND " + column + " >= ?"
		args = append(args, r.From.UTC())
	}
	if !r.To.IsZero() {
		query += " AND " + column + " <= ?"
		args = append(args, r.To.UTC())
	}
	return query, args
}

func (s *SQLStorage) SaveCategory(ctx context.Context, category budget.Category) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "INSERT INTO categories (id, user_id, name, created_at) VALUES (?, ?, ?, ?);"
	_, err := s.db.ExecContext(ctx, query, category.ID, category.UserID, category.Name, category.CreatedAt.UTC().Truncate(time.Second))
	if err != nil {
		if isDuplicateKey(err) {
			return appErrors.ErrorResponse{
				Code:    appErrors.ErrConflict,
				Message: "The category already exists.",
			}
		}

		logging.Logger.Errorf("[TraceID=%s] | failed to save category in Storage.SaveCategory() function | Error: %v", traceID, err)
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to save the category, try again later.",
		}
	}
	return nil
}

func (s *SQLStorage) GetCategoryById(ctx context.Context, userID string, categoryID string) (budget.Category, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "SELECT id, user_id, name, created_at FROM categories WHERE user_id = ? AND id = ?;"
	var category budget.Category
	err := s.db.QueryRowContext(ctx, query, userID, categoryID).Scan(&category.ID, &category.UserID, &category.Name, &category.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return budget.Category{}, appErrors.ErrorResponse{
				Code:    appErrors.ErrNotFound,
				Message: "The category does not exist.",
			}
		}

		logging.Logger.Errorf("[TraceID=%s] | failed to scan row in Storage.GetCategoryById() function | Error : %v", traceID, err)
		return budget.Category{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to get the category, try again later.",
		}
	}
	category.CreatedAt = category.CreatedAt.UTC()
	return category, nil
}

func (s *SQLStorage) GetCategories(ctx context.Context, userID string) ([]budget.Category, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "SELECT id, user_id, name, created_at FROM categories WHERE user_id = ? ORDER BY name ASC;"
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to get categories in Storage.GetCategories() function | Error : %v", traceID, err)
		return nil, appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to get categories, try again later.",
		}
	}
	defer rows.Close()

	categories := []budget.Category{}
	for rows.Next() {
		var category budget.Category
		if err := rows.Scan(&category.ID, &category.UserID, &category.Name, &category.CreatedAt); err != nil {
			logging.Logger.Errorf("[TraceID=%s] | failed to scan row in Storage.GetCategories() function | Error : %v", traceID, err)
			return nil, appErrors.ErrorResponse{
				Code:    appErrors.ErrInternal,
				Message: "Failed to get categories, try again later.",
			}
		}
		category.CreatedAt = category.CreatedAt.UTC()
		categories = append(categories, category)
	}

	if err := rows.Err(); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to iterate rows in Storage.GetCategories() function | Error : %v", traceID, err)
		return nil, appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to get categories, try again later.",
		}
	}
	return categories, nil
}

// DeleteCategory removes the category and detaches every transaction that
// pointed at it. The explicit UPDATE covers sqlite connections where foreign
// keys are off.
func (s *SQLStorage) DeleteCategory(ctx context.Context, userID string, categoryID string) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] |  failed to start SQL transaction in Storage.DeleteCategory() function | Error : %v", traceID, err)
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to delete the category.",
		}
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM categories WHERE user_id = ? AND id = ?;", userID, categoryID)
	if err != nil {
		tx.Rollback()
		logging.Logger.Errorf("[TraceID=%s] |  failed to delete category in Storage.DeleteCategory() function | Error : %v", traceID, err)
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to delete the category.",
		}
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		tx.Rollback()
		logging.Logger.Errorf("[TraceID=%s] | failed to check category delete status in Storage.DeleteCategory() function | Error : %v", traceID, err)
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to delete the category.",
		}
	}
	if rowsAffected == 0 {
		tx.Rollback()
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrNotFound,
			Message: "The category does not exist.",
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE transactions SET category_id = NULL WHERE category_id = ?;", categoryID); err != nil {
		tx.Rollback()
		logging.Logger.Errorf("[TraceID=%s] |  failed to detach related transactions in Storage.DeleteCategory() function | Error : %v", traceID, err)
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to delete the category.",
		}
	}

	if err := tx.Commit(); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to commit SQL transaction in Storage.DeleteCategory() function | Error : %v", traceID, err)
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to delete the category.",
		}
	}
	return nil
}

func (s *SQLStorage) SaveTransaction(ctx context.Context, t budget.Transaction) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	var categoryID sql.NullString
	if t.CategoryID != "" {
		categoryID = sql.NullString{String: t.CategoryID, Valid: true}
	}

	query := "INSERT INTO transactions (id, user_id, category_id, item, amount, occurred_at, note) VALUES (?, ?, ?, ?, ?, ?, ?);"
	// DATETIME keeps whole seconds; truncating here stops MySQL from rounding
	// 23:59:59.9 into the next day.
	_, err := s.db.ExecContext(ctx, query, t.ID, t.UserID, categoryID, t.Item, t.Amount, t.OccurredAt.UTC().Truncate(time.Second), t.Note)
	if err != nil {
		if isDuplicateKey(err) {
			return appErrors.ErrorResponse{
				Code:    appErrors.ErrConflict,
				Message: "The transaction already exists.",
			}
		}

		logging.Logger.Errorf("[TraceID=%s] | failed to save transaction in Storage.SaveTransaction() function | Error: %v", traceID, err)
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to save the transaction, try again later.",
		}
	}
	return nil
}

func (s *SQLStorage) processTransactionRows(ctx context.Context, rows *sql.Rows) ([]budget.Transaction, error) {
	traceID := contextutil.TraceIDFromContext(ctx)
	defer rows.Close()

	transactions := []budget.Transaction{}

	for rows.Next() {
		var row dbTransaction

		err := rows.Scan(&row.ID, &row.UserID, &row.CategoryID, &row.Item, &row.Amount, &row.OccurredAt, &row.Note)
		if err != nil {
			logging.Logger.Errorf("[TraceID=%s] | failed to scan row in Storage.processTransactionRows() | Error : %v", traceID, err)
			return nil, appErrors.ErrorResponse{
				Code:    appErrors.ErrInternal,
				Message: "Failed to process transactions, try again later.",
			}
		}
		transactions = append(transactions, budget.Transaction{
			ID:         row.ID,
			UserID:     row.UserID,
			CategoryID: row.CategoryID.String,
			Item:       row.Item,
			Amount:     row.Amount,
			OccurredAt: row.OccurredAt.UTC(),
			Note:       row.Note,
		})
	}

	if err := rows.Err(); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to iterate rows in Storage.processTransactionRows() | Error : %v", traceID, err)
		return nil, appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to process transactions, try again later.",
		}
	}

	return transactions, nil
}

func (s *SQLStorage) GetFilteredTransactions(ctx context.Context, userID string, filters *budget.TransactionList) ([]budget.Transaction, error) {
	traceID := contextutil.TraceIDFromContext(ctx)
	query := "SELECT id, user_id, category_id, item, amount, occurred_at, note FROM transactions WHERE user_id = ?"
	args := []interface{}{userID}

	if filters != nil && !filters.IsAllNil {
		if len(filters.CategoryIDs) > 0 {
			query += " AND category_id IN (?" + strings.Repeat(",?", len(filters.CategoryIDs)-1) + ")"
			for _, id := range filters.CategoryIDs {
				args = append(args, id)
			}
		}
		query, args = appendRange(query, args, "occurred_at", filters.Range)
	}

	query += " ORDER BY occurred_at DESC;"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to get filtered transactions from Storage.GetFilteredTransactions() function | Error : %v", traceID, err)
		return nil, appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to get transactions, try again later.",
		}
	}

	return s.processTransactionRows(ctx, rows)
}

func (s *SQLStorage) GetTransactionById(ctx context.Context, userID string, transactionID string) (budget.Transaction, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	query := "SELECT id, user_id, category_id, item, amount, occurred_at, note FROM transactions WHERE user_id = ? AND id = ?;"
	rows, err := s.db.QueryContext(ctx, query, userID, transactionID)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to get transaction in Storage.GetTransactionById() function | Error : %v", traceID, err)
		return budget.Transaction{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to get the transaction, try again later.",
		}
	}

	ts, err := s.processTransactionRows(ctx, rows)
	if err != nil {
		return budget.Transaction{}, err
	}
	if len(ts) == 0 {
		return budget.Transaction{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrNotFound,
			Message: "The transaction does not exist.",
		}
	}
	return ts[0], nil
}

func (s *SQLStorage) DeleteTransaction(ctx context.Context, userID string, transactionID string) error {
	traceID := contextutil.TraceIDFromContext(ctx)

	result, err := s.db.ExecContext(ctx, "DELETE FROM transactions WHERE user_id = ? AND id = ?;", userID, transactionID)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to delete transaction in Storage.DeleteTransaction() function | Error : %v", traceID, err)
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to delete the transaction.",
		}
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to check transaction delete status in Storage.DeleteTransaction() function | Error : %v", traceID, err)
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to delete the transaction.",
		}
	}
	if rowsAffected == 0 {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrNotFound,
			Message: "The transaction does not exist.",
		}
	}
	return nil
}

func (s *SQLStorage) QueryTransactions(ctx context.Context, userID string, r budget.TimeRange) ([]budget.Transaction, error) {
	traceID := contextutil.TraceIDFromContext(ctx)
	query, args := appendRange(
		"SELECT id, user_id, category_id, item, amount, occurred_at, note FROM transactions WHERE user_id = ?",
		[]interface{}{userID}, "occurred_at", r)
	query += " ORDER BY occurred_at ASC;"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to query transactions in Storage.QueryTransactions() function | Error : %v", traceID, err)
		return nil, appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to get transactions, try again later.",
		}
	}

	return s.processTransactionRows(ctx, rows)
}

// QueryCategoryAmounts only joins categories of the transaction's own owner.
func (s *SQLStorage) QueryCategoryAmounts(ctx context.Context, userID string, r budget.TimeRange) ([]budget.CategoryAmount, error) {
	traceID := contextutil.TraceIDFromContext(ctx)
	query, args := appendRange(`SELECT c.name, t.amount
		FROM transactions t
		JOIN categories c ON c.id = t.category_id AND c.user_id = t.user_id
		WHERE t.user_id = ?`,
		[]interface{}{userID}, "t.occurred_at", r)
	query += " ORDER BY t.occurred_at ASC;"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to query category amounts in Storage.QueryCategoryAmounts() function | Error : %v", traceID, err)
		return nil, appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to get category totals, try again later.",
		}
	}
	defer rows.Close()

	amounts := []budget.CategoryAmount{}
	for rows.Next() {
		var row dbCategoryAmount
		if err := rows.Scan(&row.CategoryName, &row.Amount); err != nil {
			logging.Logger.Errorf("[TraceID=%s] | failed to scan row in Storage.QueryCategoryAmounts() function | Error : %v", traceID, err)
			return nil, appErrors.ErrorResponse{
				Code:    appErrors.ErrInternal,
				Message: "Failed to get category totals, try again later.",
			}
		}
		amounts = append(amounts, budget.CategoryAmount{CategoryName: row.CategoryName, Amount: row.Amount})
	}

	if err := rows.Err(); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to iterate rows in Storage.QueryCategoryAmounts() function | Error : %v", traceID, err)
		return nil, appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Failed to get category totals, try again later.",
		}
	}
	return amounts, nil
}
