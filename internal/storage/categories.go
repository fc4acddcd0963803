package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/common"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
)

// GetCategories returns all active categories.
func (s *SQLiteStorage) GetCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_at, is_active
		FROM categories
		WHERE is_active = 1
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		var cat model.Category
		var description sql.NullString
		if err := rows.Scan(&cat.ID, &cat.Name, &description, &cat.CreatedAt, &cat.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		cat.Description = description.String
		categories = append(categories, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	slog.Debug("retrieved categories", "count", len(categories))
	return categories, nil
}

// GetCategoryByName returns a category by name, or nil when absent.
func (s *SQLiteStorage) GetCategoryByName(ctx context.Context, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	var cat model.Category
	var description sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, is_active
		FROM categories
		WHERE name = ? AND is_active = 1`, name).Scan(
		&cat.ID, &cat.Name, &description, &cat.CreatedAt, &cat.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category: %w", err)
	}

	cat.Description = description.String
	return &cat, nil
}

// CreateCategory creates a new category. Re-creating an inactive category
// reactivates it instead of failing on the unique name.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, name, description string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	var existing model.Category
	var existingDescription sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, is_active
		FROM categories
		WHERE name = ?`, name).Scan(
		&existing.ID, &existing.Name, &existingDescription, &existing.CreatedAt, &existing.IsActive,
	)
	switch {
	case err == sql.ErrNoRows:
		// Fall through to insert.
	case err != nil:
		return nil, fmt.Errorf("failed to check existing category: %w", err)
	case existing.IsActive:
		return nil, fmt.Errorf("%w: category %q", common.ErrDuplicateEntry, name)
	default:
		if _, err := s.db.ExecContext(ctx, `
			UPDATE categories SET is_active = 1, description = ? WHERE id = ?`,
			description, existing.ID); err != nil {
			return nil, fmt.Errorf("failed to reactivate category: %w", err)
		}
		existing.IsActive = true
		existing.Description = description
		return &existing, nil
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (name, description) VALUES (?, ?)`, name, description)
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get category ID: %w", err)
	}

	return s.getCategoryByID(ctx, int(id))
}

func (s *SQLiteStorage) getCategoryByID(ctx context.Context, id int) (*model.Category, error) {
	var cat model.Category
	var description sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, is_active
		FROM categories
		WHERE id = ?`, id).Scan(
		&cat.ID, &cat.Name, &description, &cat.CreatedAt, &cat.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: category %d", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category: %w", err)
	}
	cat.Description = description.String
	return &cat, nil
}

// UpdateCategory renames a category and updates its description.
func (s *SQLiteStorage) UpdateCategory(ctx context.Context, id int, name, description string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(name, "name"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE categories SET name = ?, description = ? WHERE id = ?`,
		name, description, id)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: category %d", common.ErrNotFound, id)
	}
	return nil
}

// DeactivateCategory soft-deletes a category; history referencing it stays
// intact.
func (s *SQLiteStorage) DeactivateCategory(ctx context.Context, id int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE categories SET is_active = 0 WHERE id = ? AND is_active = 1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate category: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deactivate result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: active category %d", common.ErrNotFound, id)
	}
	return nil
}

// SeedDefaultCategories inserts the default category set, skipping names
// that already exist. Safe to call on every startup.
func (s *SQLiteStorage) SeedDefaultCategories(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, cat := range model.DefaultCategories() {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO categories (name, description) VALUES (?, ?)`,
				cat.Name, cat.Description); err != nil {
				return fmt.Errorf("failed to seed category %q: %w", cat.Name, err)
			}
		}
		return nil
	})
}
