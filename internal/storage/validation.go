// Package storage provides the persistence layer: expenses, categories,
// merchant mappings and credit balances in SQLite, and in-flight scan
// snapshots in a bbolt store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrInvalidExpense    = errors.New("invalid expense")
	ErrInvalidMapping    = errors.New("invalid merchant mapping")
	ErrInvalidCount      = errors.New("count must be positive")
	ErrInvalidCreditType = errors.New("unknown credit type")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateExpense validates an expense before it touches the database.
func validateExpense(e *model.Expense) error {
	if e == nil {
		return fmt.Errorf("%w: expense", ErrNilParameter)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidExpense)
	}
	if e.UserID == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidExpense)
	}
	if e.Hash == "" {
		return fmt.Errorf("%w: missing hash", ErrInvalidExpense)
	}
	if err := model.ValidateDraft(&e.Draft); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidExpense, err)
	}
	return nil
}

// validateMapping validates a merchant mapping.
func validateMapping(m *model.MerchantMapping) error {
	if m == nil {
		return fmt.Errorf("%w: mapping", ErrNilParameter)
	}
	if strings.TrimSpace(m.Merchant) == "" {
		return fmt.Errorf("%w: missing merchant", ErrInvalidMapping)
	}
	if strings.TrimSpace(m.Category) == "" {
		return fmt.Errorf("%w: missing category", ErrInvalidMapping)
	}
	return nil
}
