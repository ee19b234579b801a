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

// Invest buys into an asset: the amount leaves the balance, a holding
// row records the units bought and an investment ledger entry records
// the spend. Same atomicity discipline as Transfer.
func (r *SQLiteRepository) Invest(ctx context.Context, h core.Holding) (core.Money, error) {
	if err := h.Amount.Validate(); err != nil {
		return core.Money{}, err
	}
	if h.UnitPrice <= 0 || h.Units <= 0 {
		return core.Money{}, fmt.Errorf("invest: %w: non-positive units or price", core.ErrInvalidAmount)
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return core.Money{}, wrapErr("invest acquire connection", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return core.Money{}, wrapErr("invest begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(ctx, "ROLLBACK")
		}
	}()

	var balance int64
	err = conn.QueryRowContext(ctx,
		"SELECT balance_paise FROM accounts WHERE id = ?", h.AccountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Money{}, core.ErrAccountNotFound
	}
	if err != nil {
		return core.Money{}, wrapErr("invest read balance", err)
	}
	if balance < h.Amount.Paise {
		return core.Money{}, core.ErrInsufficientFunds
	}

	now := time.Now().UTC()
	if _, err := conn.ExecContext(ctx,
		"UPDATE accounts SET balance_paise = balance_paise - ? WHERE id = ?",
		h.Amount.Paise, h.AccountID); err != nil {
		return core.Money{}, wrapErr("invest debit balance", err)
	}
	if _, err := conn.ExecContext(ctx, `
		INSERT INTO holdings (account_id, asset_type, amount_paise, units, unit_price, purchased_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.AccountID, h.AssetType, h.Amount.Paise, h.Units, h.UnitPrice, now); err != nil {
		return core.Money{}, wrapErr("invest insert holding", err)
	}
	if _, err := conn.ExecContext(ctx, `
		INSERT INTO ledger_entries (account_id, direction, amount_paise, description, counterparty, created_at)
		VALUES (?, 'investment', ?, ?, ?, ?)`,
		h.AccountID, h.Amount.Paise,
		fmt.Sprintf("Invested %.2f in %s", h.Amount.Rupees(), h.AssetType),
		h.AssetType, now); err != nil {
		return core.Money{}, wrapErr("invest insert entry", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return core.Money{}, wrapErr("invest commit", err)
	}
	committed = true

	newBalance := core.Money{Paise: balance - h.Amount.Paise}

	slog.InfoContext(ctx, "Investment recorded",
		"account_id", h.AccountID,
		"asset_type", h.AssetType,
		"amount_paise", h.Amount.Paise,
		"units", h.Units)

	return newBalance, nil
}

// ListHoldings returns an account's holdings, newest purchase first.
func (r *SQLiteRepository) ListHoldings(ctx context.Context, accountID int64) ([]core.Holding, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, asset_type, amount_paise, units, unit_price, purchased_at
		FROM holdings
		WHERE account_id = ?
		ORDER BY purchased_at DESC, id DESC`, accountID)
	if err != nil {
		return nil, wrapErr("list holdings", err)
	}
	defer rows.Close()

	var holdings []core.Holding
	for rows.Next() {
		var h core.Holding
		if err := rows.Scan(&h.ID, &h.AccountID, &h.AssetType, &h.Amount.Paise,
			&h.Units, &h.UnitPrice, &h.PurchasedAt); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list holdings", err)
	}
	return holdings, nil
}

// AssetPosition aggregates every purchase of one asset type.
type AssetPosition struct {
	AssetType string
	Invested  core.Money
	Units     float64
}

// HoldingsSummary groups an account's holdings by asset type.
func (r *SQLiteRepository) HoldingsSummary(ctx context.Context, accountID int64) ([]AssetPosition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT asset_type, SUM(amount_paise), SUM(units)
		FROM holdings
		WHERE account_id = ?
		GROUP BY asset_type
		ORDER BY asset_type`, accountID)
	if err != nil {
		return nil, wrapErr("holdings summary", err)
	}
	defer rows.Close()

	var positions []AssetPosition
	for rows.Next() {
		var p AssetPosition
		if err := rows.Scan(&p.AssetType, &p.Invested.Paise, &p.Units); err != nil {
			return nil, fmt.Errorf("scan asset position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("holdings summary", err)
	}
	return positions, nil
}
