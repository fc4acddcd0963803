package storage

import (
	"context"
	"fmt"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/common"
)

// WasStatementImported reports whether a statement file has already been
// imported for this user.
func (s *SQLiteStorage) WasStatementImported(ctx context.Context, userID, fileHash string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return false, err
	}
	if err := validateString(fileHash, "fileHash"); err != nil {
		return false, err
	}

	var imported bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM statement_imports WHERE user_id = ? AND file_hash = ?)
	`, userID, fileHash).Scan(&imported)
	if err != nil {
		return false, fmt.Errorf("failed to check statement import: %w", err)
	}
	return imported, nil
}

// RecordStatementImport marks a statement file as imported so the same file
// is not ingested twice.
func (s *SQLiteStorage) RecordStatementImport(ctx context.Context, userID, fileHash, source string, txCount int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if err := validateString(fileHash, "fileHash"); err != nil {
		return err
	}
	if err := validateString(source, "source"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO statement_imports (user_id, file_hash, source, tx_count)
		VALUES (?, ?, ?, ?)
	`, userID, fileHash, source, txCount)
	if err != nil {
		return fmt.Errorf("failed to record statement import: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: statement %s already imported", common.ErrDuplicateEntry, fileHash)
	}
	return nil
}
