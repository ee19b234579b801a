package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voicepay/internal/core"
)

// Transfer moves money between two accounts as a single atomic unit:
// debit sender, credit recipient, one debit and one credit ledger entry.
// All four effects commit together or none do. BEGIN IMMEDIATE takes the
// write lock up front so two transfers touching the same account can
// never interleave their balance reads and writes.
func (r *SQLiteRepository) Transfer(ctx context.Context, senderID, recipientID int64, amount core.Money) (core.Money, error) {
	if err := amount.Validate(); err != nil {
		return core.Money{}, err
	}
	if senderID == recipientID {
		return core.Money{}, core.ErrSelfTransfer
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return core.Money{}, wrapErr("transfer acquire connection", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return core.Money{}, wrapErr("transfer begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(ctx, "ROLLBACK")
		}
	}()

	var senderName string
	var senderBalance int64
	err = conn.QueryRowContext(ctx,
		"SELECT name, balance_paise FROM accounts WHERE id = ?", senderID).
		Scan(&senderName, &senderBalance)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Money{}, core.ErrAccountNotFound
	}
	if err != nil {
		return core.Money{}, wrapErr("transfer read sender", err)
	}

	var recipientName string
	err = conn.QueryRowContext(ctx,
		"SELECT name FROM accounts WHERE id = ?", recipientID).Scan(&recipientName)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Money{}, core.ErrAccountNotFound
	}
	if err != nil {
		return core.Money{}, wrapErr("transfer read recipient", err)
	}

	if senderBalance < amount.Paise {
		return core.Money{}, core.ErrInsufficientFunds
	}

	now := time.Now().UTC()
	if _, err := conn.ExecContext(ctx,
		"UPDATE accounts SET balance_paise = balance_paise - ? WHERE id = ?",
		amount.Paise, senderID); err != nil {
		return core.Money{}, wrapErr("transfer debit sender", err)
	}
	if _, err := conn.ExecContext(ctx,
		"UPDATE accounts SET balance_paise = balance_paise + ? WHERE id = ?",
		amount.Paise, recipientID); err != nil {
		return core.Money{}, wrapErr("transfer credit recipient", err)
	}
	if _, err := conn.ExecContext(ctx, `
		INSERT INTO ledger_entries (account_id, direction, amount_paise, description, counterparty, created_at)
		VALUES (?, 'debit', ?, ?, ?, ?)`,
		senderID, amount.Paise,
		fmt.Sprintf("Paid %.2f to %s", amount.Rupees(), recipientName),
		recipientName, now); err != nil {
		return core.Money{}, wrapErr("transfer debit entry", err)
	}
	if _, err := conn.ExecContext(ctx, `
		INSERT INTO ledger_entries (account_id, direction, amount_paise, description, counterparty, created_at)
		VALUES (?, 'credit', ?, ?, ?, ?)`,
		recipientID, amount.Paise,
		fmt.Sprintf("Received %.2f from %s", amount.Rupees(), senderName),
		senderName, now); err != nil {
		return core.Money{}, wrapErr("transfer credit entry", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return core.Money{}, wrapErr("transfer commit", err)
	}
	committed = true

	newBalance := core.Money{Paise: senderBalance - amount.Paise}

	slog.InfoContext(ctx, "Transfer committed",
		"sender_id", senderID,
		"recipient_id", recipientID,
		"amount_paise", amount.Paise,
		"new_sender_balance_paise", newBalance.Paise)

	return newBalance, nil
}

// ListLedgerEntries returns the newest entries for an account.
func (r *SQLiteRepository) ListLedgerEntries(ctx context.Context, accountID int64, limit int) ([]core.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, direction, amount_paise, description, counterparty, created_at
		FROM ledger_entries
		WHERE account_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, wrapErr("list ledger entries", err)
	}
	defer rows.Close()

	var entries []core.LedgerEntry
	for rows.Next() {
		var e core.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Direction, &e.Amount.Paise,
			&e.Description, &e.Counterparty, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list ledger entries", err)
	}
	return entries, nil
}

// UnauditedEntries returns ledger entries the audit worker has not
// processed yet, oldest first.
func (r *SQLiteRepository) UnauditedEntries(ctx context.Context, limit int) ([]core.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, direction, amount_paise, description, counterparty, created_at
		FROM ledger_entries
		WHERE audited = 0
		ORDER BY id
		LIMIT ?`, limit)
	if err != nil {
		return nil, wrapErr("list unaudited entries", err)
	}
	defer rows.Close()

	var entries []core.LedgerEntry
	for rows.Next() {
		var e core.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Direction, &e.Amount.Paise,
			&e.Description, &e.Counterparty, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan unaudited entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list unaudited entries", err)
	}
	return entries, nil
}

// MarkAudited flags a ledger entry as processed by the audit worker.
func (r *SQLiteRepository) MarkAudited(ctx context.Context, entryID int64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE ledger_entries SET audited = 1 WHERE id = ?", entryID)
	return wrapErr("mark audited", err)
}
