package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/common"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/scan"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/session"
)

// Ledger reasons recorded alongside every balance change.
const (
	ledgerReasonGrant   = "grant"
	ledgerReasonReserve = "reserve"
	ledgerReasonRefund  = "refund"
)

// GetCreditBalance returns the user's remaining credits per bucket. Users
// with no rows yet have a zero balance, not an error.
func (s *SQLiteStorage) GetCreditBalance(ctx context.Context, userID string) (session.CreditBalance, error) {
	var balance session.CreditBalance
	if err := validateContext(ctx); err != nil {
		return balance, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return balance, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT credit_type, balance
		FROM credit_balances
		WHERE user_id = ?
	`, userID)
	if err != nil {
		return balance, fmt.Errorf("failed to query credit balance: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var creditType string
		var amount int
		if err := rows.Scan(&creditType, &amount); err != nil {
			return balance, fmt.Errorf("failed to scan credit balance: %w", err)
		}
		switch scan.CreditType(creditType) {
		case scan.CreditSuper:
			balance.Super = amount
		case scan.CreditRegular:
			balance.Regular = amount
		}
	}

	return balance, rows.Err()
}

// GrantCredits adds credits to a user's balance and records the grant in the
// ledger.
func (s *SQLiteStorage) GrantCredits(ctx context.Context, userID string, creditType scan.CreditType, count int, note string) error {
	if err := validateCreditArgs(ctx, userID, creditType, count); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := addCreditsTx(ctx, tx, userID, creditType, count); err != nil {
			return err
		}
		return recordLedgerTx(ctx, tx, userID, creditType, count, ledgerReasonGrant, "", note)
	})
}

// ConsumeCredits debits a reservation from the user's balance. The debit and
// its ledger entry commit atomically; a balance too small for the request
// leaves both untouched and returns ErrInsufficientCredits.
func (s *SQLiteStorage) ConsumeCredits(ctx context.Context, userID string, creditType scan.CreditType, count int, requestID string) error {
	if err := validateCreditArgs(ctx, userID, creditType, count); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE credit_balances
			SET balance = balance - ?
			WHERE user_id = ? AND credit_type = ? AND balance >= ?
		`, count, userID, string(creditType), count)
		if err != nil {
			return fmt.Errorf("failed to consume credits: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("%w: need %d %s credit(s)", common.ErrInsufficientCredits, count, creditType)
		}

		return recordLedgerTx(ctx, tx, userID, creditType, -count, ledgerReasonReserve, requestID, "")
	})
}

// RefundCredits returns a reservation to the user's balance. Refunds are
// idempotent per request: a second refund for the same requestID is a no-op,
// so a crash between refunding and clearing the in-flight snapshot cannot
// credit the user twice on restore.
func (s *SQLiteStorage) RefundCredits(ctx context.Context, userID string, creditType scan.CreditType, count int, requestID string) error {
	if err := validateCreditArgs(ctx, userID, creditType, count); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if requestID != "" {
			var refunded bool
			err := tx.QueryRowContext(ctx, `
				SELECT EXISTS(
					SELECT 1 FROM credit_ledger
					WHERE user_id = ? AND request_id = ? AND reason = ?
				)
			`, userID, requestID, ledgerReasonRefund).Scan(&refunded)
			if err != nil {
				return fmt.Errorf("failed to check refund ledger: %w", err)
			}
			if refunded {
				return nil
			}
		}

		if err := addCreditsTx(ctx, tx, userID, creditType, count); err != nil {
			return err
		}
		return recordLedgerTx(ctx, tx, userID, creditType, count, ledgerReasonRefund, requestID, "")
	})
}

func validateCreditArgs(ctx context.Context, userID string, creditType scan.CreditType, count int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if creditType != scan.CreditRegular && creditType != scan.CreditSuper {
		return fmt.Errorf("%w: %q", ErrInvalidCreditType, creditType)
	}
	if count <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	return nil
}

func addCreditsTx(ctx context.Context, tx *sql.Tx, userID string, creditType scan.CreditType, count int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_balances (user_id, credit_type, balance)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, credit_type) DO UPDATE SET
			balance = balance + excluded.balance
	`, userID, string(creditType), count)
	if err != nil {
		return fmt.Errorf("failed to add credits: %w", err)
	}
	return nil
}

func recordLedgerTx(ctx context.Context, tx *sql.Tx, userID string, creditType scan.CreditType, delta int, reason, requestID, note string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_ledger (user_id, credit_type, delta, reason, request_id, note)
		VALUES (?, ?, ?, ?, ?, ?)
	`, userID, string(creditType), delta, reason, nullableString(requestID), nullableString(note))
	if err != nil {
		return fmt.Errorf("failed to record credit ledger entry: %w", err)
	}
	return nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
