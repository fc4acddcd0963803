package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/common"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/session"
)

// createTestStorage opens a migrated, seeded database in a temp dir.
func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err, "failed to create storage")

	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx), "failed to migrate")
	require.NoError(t, store.SeedDefaultCategories(ctx), "failed to seed categories")

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testExpense(id string, date time.Time, merchant string, total float64) *model.Expense {
	draft := model.TransactionDraft{
		Date:       date,
		Merchant:   merchant,
		Category:   "Groceries",
		Currency:   "CLP",
		Source:     model.SourceScan,
		Total:      total,
		Confidence: 0.95,
		Items: []model.ReceiptItem{
			{Name: "item", Quantity: 1, Price: total},
		},
	}
	return &model.Expense{
		ID:     id,
		UserID: "user-1",
		Hash:   draft.GenerateHash(),
		Status: model.StatusSavedFromScan,
		Draft:  draft,
	}
}

func TestSaveAndGetExpense(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	date := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	expense := testExpense("exp-1", date, "Jumbo Los Trapenses", 45990)
	expense.Draft.Notes = "weekly shop"

	require.NoError(t, store.SaveExpense(ctx, expense))

	got, err := store.GetExpenseByID(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, "Jumbo Los Trapenses", got.Draft.Merchant)
	assert.Equal(t, "jumbo los trapenses", got.Draft.NormalizedMerchant)
	assert.Equal(t, "weekly shop", got.Draft.Notes)
	assert.Equal(t, model.StatusSavedFromScan, got.Status)
	assert.InDelta(t, 45990, got.Draft.Total, 0.001)
	require.Len(t, got.Draft.Items, 1)
	assert.Equal(t, "item", got.Draft.Items[0].Name)
	assert.False(t, got.SavedAt.IsZero())

	byHash, err := store.GetExpenseByHash(ctx, "user-1", expense.Hash)
	require.NoError(t, err)
	assert.Equal(t, got.ID, byHash.ID)
}

func TestSaveExpenseRejectsDuplicates(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	date := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	first := testExpense("exp-1", date, "Lider Express", 12500)
	require.NoError(t, store.SaveExpense(ctx, first))

	// Same content, different ID: the hash collides.
	second := testExpense("exp-2", date, "Lider Express", 12500)
	err := store.SaveExpense(ctx, second)
	require.ErrorIs(t, err, common.ErrDuplicateEntry)

	// Only the first write survives.
	_, err = store.GetExpenseByID(ctx, "exp-2")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSaveExpenseValidation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		mutate  func(*model.Expense)
		name    string
		wantErr error
	}{
		{
			name:    "missing ID",
			mutate:  func(e *model.Expense) { e.ID = "" },
			wantErr: ErrInvalidExpense,
		},
		{
			name:    "missing user",
			mutate:  func(e *model.Expense) { e.UserID = "" },
			wantErr: ErrInvalidExpense,
		},
		{
			name:    "missing hash",
			mutate:  func(e *model.Expense) { e.Hash = "" },
			wantErr: ErrInvalidExpense,
		},
		{
			name:    "invalid draft",
			mutate:  func(e *model.Expense) { e.Draft.Merchant = "" },
			wantErr: ErrInvalidExpense,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expense := testExpense("exp-v", time.Now(), "Somewhere", 100)
			tt.mutate(expense)
			err := store.SaveExpense(ctx, expense)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	err := store.SaveExpense(ctx, nil)
	assert.ErrorIs(t, err, ErrNilParameter)
}

func TestListExpenses(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	merchants := []string{"Jumbo", "Copec", "Jumbo", "Farmacia Cruz Verde"}
	categories := []string{"Groceries", "Transport", "Groceries", "Health"}
	for i := 0; i < 4; i++ {
		expense := testExpense(
			fmt.Sprintf("exp-%d", i),
			base.AddDate(0, 0, i*7),
			merchants[i],
			float64(1000*(i+1)),
		)
		expense.Draft.Category = categories[i]
		require.NoError(t, store.SaveExpense(ctx, expense))
	}

	t.Run("newest first", func(t *testing.T) {
		expenses, err := store.ListExpenses(ctx, session.ExpenseFilter{UserID: "user-1"})
		require.NoError(t, err)
		require.Len(t, expenses, 4)
		assert.Equal(t, "exp-3", expenses[0].ID)
		assert.Equal(t, "exp-0", expenses[3].ID)
	})

	t.Run("filter by category", func(t *testing.T) {
		expenses, err := store.ListExpenses(ctx, session.ExpenseFilter{UserID: "user-1", Category: "Groceries"})
		require.NoError(t, err)
		assert.Len(t, expenses, 2)
	})

	t.Run("filter by merchant ignores case", func(t *testing.T) {
		expenses, err := store.ListExpenses(ctx, session.ExpenseFilter{UserID: "user-1", Merchant: "JUMBO"})
		require.NoError(t, err)
		assert.Len(t, expenses, 2)
	})

	t.Run("date range is half open", func(t *testing.T) {
		start := base.AddDate(0, 0, 7)
		end := base.AddDate(0, 0, 21)
		expenses, err := store.ListExpenses(ctx, session.ExpenseFilter{
			UserID:    "user-1",
			StartDate: &start,
			EndDate:   &end,
		})
		require.NoError(t, err)
		require.Len(t, expenses, 2)
		assert.Equal(t, "exp-2", expenses[0].ID)
		assert.Equal(t, "exp-1", expenses[1].ID)
	})

	t.Run("limit and offset", func(t *testing.T) {
		expenses, err := store.ListExpenses(ctx, session.ExpenseFilter{UserID: "user-1", Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, expenses, 2)
		assert.Equal(t, "exp-2", expenses[0].ID)
	})

	t.Run("other user sees nothing", func(t *testing.T) {
		expenses, err := store.ListExpenses(ctx, session.ExpenseFilter{UserID: "user-2"})
		require.NoError(t, err)
		assert.Empty(t, expenses)
	})
}

func TestDeleteExpense(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	expense := testExpense("exp-1", time.Now(), "Jumbo", 9990)
	require.NoError(t, store.SaveExpense(ctx, expense))

	require.NoError(t, store.DeleteExpense(ctx, "exp-1"))

	_, err := store.GetExpenseByID(ctx, "exp-1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	err = store.DeleteExpense(ctx, "exp-1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCategoryTotals(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	saves := []struct {
		category string
		total    float64
	}{
		{"Groceries", 10000},
		{"Groceries", 5000},
		{"Transport", 3000},
		{"", 1500},
	}
	for i, save := range saves {
		expense := testExpense(
			fmt.Sprintf("exp-%d", i),
			base.AddDate(0, 0, i),
			fmt.Sprintf("Merchant %d", i),
			save.total,
		)
		expense.Draft.Category = save.category
		require.NoError(t, store.SaveExpense(ctx, expense))
	}

	totals, err := store.CategoryTotals(ctx, "user-1", base, base.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, totals, 3)

	assert.Equal(t, "Groceries", totals[0].Category)
	assert.InDelta(t, 15000, totals[0].Total, 0.001)
	assert.Equal(t, 2, totals[0].Count)

	assert.Equal(t, "Transport", totals[1].Category)
	assert.Equal(t, "Uncategorized", totals[2].Category)
	assert.InDelta(t, 1500, totals[2].Total, 0.001)
}

func TestValidationHelpers(t *testing.T) {
	store := createTestStorage(t)

	//nolint:staticcheck // passing nil context is the point of the test
	_, err := store.GetExpenseByID(nil, "exp-1")
	assert.ErrorIs(t, err, ErrNilContext)

	_, err = store.GetExpenseByID(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyString)
}
