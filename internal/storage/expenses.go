package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/common"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/session"
)

// SaveExpense inserts a reviewed draft into the ledger. A second expense
// with the same (user, hash) pair is rejected with common.ErrDuplicateEntry;
// duplicates come from double-saves and re-imported statements, and the
// first write wins.
func (s *SQLiteStorage) SaveExpense(ctx context.Context, expense *model.Expense) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateExpense(expense); err != nil {
		return err
	}

	if expense.SavedAt.IsZero() {
		expense.SavedAt = time.Now()
	}
	if expense.Draft.NormalizedMerchant == "" {
		expense.Draft.NormalizedMerchant = model.NormalizeMerchant(expense.Draft.Merchant)
	}

	items, err := marshalItems(expense.Draft.Items)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO expenses (
			id, user_id, hash, status, date, merchant, normalized_merchant,
			category, store_type, currency, notes, source, items, total,
			confidence, saved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		expense.ID,
		expense.UserID,
		expense.Hash,
		string(expense.Status),
		expense.Draft.Date,
		expense.Draft.Merchant,
		expense.Draft.NormalizedMerchant,
		expense.Draft.Category,
		expense.Draft.StoreType,
		expense.Draft.Currency,
		expense.Draft.Notes,
		string(expense.Draft.Source),
		items,
		expense.Draft.Total,
		expense.Draft.Confidence,
		expense.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save expense: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check save result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: expense %s for %s on %s",
			common.ErrDuplicateEntry,
			expense.Draft.Merchant,
			expense.Draft.Currency,
			expense.Draft.Date.Format("2006-01-02"))
	}
	return nil
}

// GetExpenseByID retrieves one expense.
func (s *SQLiteStorage) GetExpenseByID(ctx context.Context, id string) (*model.Expense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, expenseSelect+` WHERE id = ?`, id)
	return scanExpense(row)
}

// GetExpenseByHash retrieves a user's expense by its content hash. Used for
// duplicate detection before a save is attempted.
func (s *SQLiteStorage) GetExpenseByHash(ctx context.Context, userID, hash string) (*model.Expense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(hash, "hash"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, expenseSelect+` WHERE user_id = ? AND hash = ?`, userID, hash)
	return scanExpense(row)
}

// ListExpenses returns expenses matching the filter, newest first.
func (s *SQLiteStorage) ListExpenses(ctx context.Context, filter session.ExpenseFilter) ([]model.Expense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := expenseSelect + ` WHERE 1=1`
	args := []any{}

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.StartDate != nil {
		query += ` AND date >= ?`
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		query += ` AND date < ?`
		args = append(args, *filter.EndDate)
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.Merchant != "" {
		query += ` AND normalized_merchant = ?`
		args = append(args, model.NormalizeMerchant(filter.Merchant))
	}

	query += ` ORDER BY date DESC, saved_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var expenses []model.Expense
	for rows.Next() {
		expense, err := scanExpenseRows(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *expense)
	}
	return expenses, rows.Err()
}

// DeleteExpense removes an expense from the ledger.
func (s *SQLiteStorage) DeleteExpense(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: expense %s", common.ErrNotFound, id)
	}
	return nil
}

// CategoryTotals aggregates spending per category over a period.
func (s *SQLiteStorage) CategoryTotals(ctx context.Context, userID string, start, end time.Time) ([]session.CategoryTotal, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(NULLIF(category, ''), 'Uncategorized'), SUM(total), COUNT(*)
		FROM expenses
		WHERE user_id = ? AND date >= ? AND date < ?
		GROUP BY 1
		ORDER BY SUM(total) DESC
	`, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var totals []session.CategoryTotal
	for rows.Next() {
		var t session.CategoryTotal
		if err := rows.Scan(&t.Category, &t.Total, &t.Count); err != nil {
			return nil, fmt.Errorf("failed to scan category total: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

const expenseSelect = `
	SELECT id, user_id, hash, status, date, merchant, normalized_merchant,
	       category, store_type, currency, notes, source, items, total,
	       confidence, saved_at
	FROM expenses`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row *sql.Row) (*model.Expense, error) {
	expense, err := scanExpenseFrom(row)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	return expense, err
}

func scanExpenseRows(rows *sql.Rows) (*model.Expense, error) {
	return scanExpenseFrom(rows)
}

func scanExpenseFrom(row rowScanner) (*model.Expense, error) {
	var (
		expense model.Expense
		status  string
		source  string
		items   sql.NullString
		notes   sql.NullString
	)

	err := row.Scan(
		&expense.ID,
		&expense.UserID,
		&expense.Hash,
		&status,
		&expense.Draft.Date,
		&expense.Draft.Merchant,
		&expense.Draft.NormalizedMerchant,
		&expense.Draft.Category,
		&expense.Draft.StoreType,
		&expense.Draft.Currency,
		&notes,
		&source,
		&items,
		&expense.Draft.Total,
		&expense.Draft.Confidence,
		&expense.SavedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan expense: %w", err)
	}

	expense.Status = model.SaveStatus(status)
	expense.Draft.Source = model.DraftSource(source)
	expense.Draft.Notes = notes.String
	if items.Valid && items.String != "" {
		if err := json.Unmarshal([]byte(items.String), &expense.Draft.Items); err != nil {
			return nil, fmt.Errorf("failed to decode expense items: %w", err)
		}
	}
	return &expense, nil
}

func marshalItems(items []model.ReceiptItem) (sql.NullString, error) {
	if len(items) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode expense items: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
