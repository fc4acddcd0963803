// Package session orchestrates the scan pipeline: it is the single logical
// owner of the scan and review state machines, serializes all access to
// them, and drives the asynchronous collaborators (vision analysis, batch
// workers, persistence, enrichment) whose outcomes feed back into the
// machines through their guarded operations.
package session

import (
	"context"
	"time"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/capture"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/scan"
)

// ExpenseFilter defines filtering options for expense queries.
type ExpenseFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Category  string
	Merchant  string
	UserID    string
	Limit     int
	Offset    int
}

// CategoryTotal is one row of a spending summary.
type CategoryTotal struct {
	Category string
	Total    float64
	Count    int
}

// CreditBalance is a user's remaining spend, per bucket.
type CreditBalance struct {
	Regular int
	Super   int
}

// Covers reports whether the balance can pay for a reservation.
func (b CreditBalance) Covers(t scan.CreditType, count int) bool {
	return b.For(t) >= count
}

// For returns the balance of one bucket.
func (b CreditBalance) For(t scan.CreditType) int {
	if t == scan.CreditSuper {
		return b.Super
	}
	return b.Regular
}

// Storage defines the contract for the persistence layer.
type Storage interface {
	// Expense operations
	SaveExpense(ctx context.Context, expense *model.Expense) error
	GetExpenseByID(ctx context.Context, id string) (*model.Expense, error)
	GetExpenseByHash(ctx context.Context, userID, hash string) (*model.Expense, error)
	ListExpenses(ctx context.Context, filter ExpenseFilter) ([]model.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
	CategoryTotals(ctx context.Context, userID string, start, end time.Time) ([]CategoryTotal, error)

	// Category operations
	GetCategories(ctx context.Context) ([]model.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*model.Category, error)
	CreateCategory(ctx context.Context, name, description string) (*model.Category, error)
	UpdateCategory(ctx context.Context, id int, name, description string) error
	DeactivateCategory(ctx context.Context, id int) error
	SeedDefaultCategories(ctx context.Context) error

	// Merchant mapping operations
	GetMerchantMapping(ctx context.Context, merchant string) (*model.MerchantMapping, error)
	SaveMerchantMapping(ctx context.Context, mapping *model.MerchantMapping) error
	GetAllMerchantMappings(ctx context.Context) ([]model.MerchantMapping, error)
	IncrementMappingUse(ctx context.Context, merchant string) error

	// Credit operations
	GetCreditBalance(ctx context.Context, userID string) (CreditBalance, error)
	GrantCredits(ctx context.Context, userID string, creditType scan.CreditType, count int, note string) error
	ConsumeCredits(ctx context.Context, userID string, creditType scan.CreditType, count int, requestID string) error
	RefundCredits(ctx context.Context, userID string, creditType scan.CreditType, count int, requestID string) error

	// Statement import tracking
	WasStatementImported(ctx context.Context, userID, fileHash string) (bool, error)
	RecordStatementImport(ctx context.Context, userID, fileHash, source string, txCount int) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// SnapshotStore persists in-flight scan state across restarts.
type SnapshotStore interface {
	Put(ctx context.Context, userID string, snap scan.Snapshot) error
	Get(ctx context.Context, userID string) (*scan.Snapshot, error)
	Delete(ctx context.Context, userID string) error
	Close() error
}

// Analyzer extracts structured transaction data from a receipt image.
type Analyzer interface {
	Analyze(ctx context.Context, img capture.Image, hints Hints) (model.TransactionDraft, error)
	AnalyzeStatement(ctx context.Context, img capture.Image, hints Hints) ([]model.TransactionDraft, error)
}

// Hints carries contextual capture information into analysis.
type Hints struct {
	StoreType string
	Currency  string
}

// StatementParser turns a bank statement file into transaction drafts.
type StatementParser interface {
	Parse(ctx context.Context, path string) ([]model.TransactionDraft, error)
	Hash(path string) (string, error)
}

// Enricher applies best-effort learned mappings to a draft. Implementations
// must return the input unchanged on failure, never an error that would
// block the transition to review.
type Enricher interface {
	ApplyCategoryMappings(ctx context.Context, draft model.TransactionDraft) model.TransactionDraft
	FindMerchantMatch(ctx context.Context, merchant string) (string, bool)
}

// ImageLoader normalizes a captured file into an analyzable image.
type ImageLoader interface {
	Load(path string) (capture.Image, error)
}

// Prompter renders a blocking dialog and returns the user's decision.
// Implementations must honor context cancellation: a canceled prompt should
// come back dismissed rather than hang.
type Prompter interface {
	Resolve(ctx context.Context, d scan.Dialog) scan.DialogResult
}
