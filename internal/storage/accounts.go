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

const accountColumns = "id, name, email, phone, google_id, picture, balance_paise, pin, created_at"

// CreateAccount inserts a new account and returns its id.
func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) (int64, error) {
	if err := a.Validate(); err != nil {
		return 0, fmt.Errorf("validate account: %w", err)
	}
	pin := a.PIN
	if pin == "" {
		pin = "1234"
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (name, email, phone, google_id, picture, balance_paise, pin, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Name, nullIfEmpty(a.Email), nullIfEmpty(a.Phone), nullIfEmpty(a.GoogleID),
		a.Picture, a.Balance.Paise, pin, time.Now().UTC())
	if err != nil {
		return 0, wrapErr("create account", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create account id: %w", err)
	}

	slog.InfoContext(ctx, "Account created",
		"id", id,
		"name", a.Name,
		"phone_set", a.Phone != "",
		"balance_paise", a.Balance.Paise)

	return id, nil
}

// CreatePhoneAccount auto-creates a zero-balance placeholder account for
// a phone number that received money before its owner signed up.
func (r *SQLiteRepository) CreatePhoneAccount(ctx context.Context, name, phone string) (int64, error) {
	if err := core.ValidatePhone(phone); err != nil {
		return 0, err
	}
	return r.CreateAccount(ctx, core.Account{Name: name, Phone: phone})
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id int64) (*core.Account, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	return scanAccount(row)
}

func (r *SQLiteRepository) GetAccountByPhone(ctx context.Context, phone string) (*core.Account, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE phone = ?", phone)
	return scanAccount(row)
}

func (r *SQLiteRepository) GetAccountByEmail(ctx context.Context, email string) (*core.Account, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE email = ?", email)
	return scanAccount(row)
}

func (r *SQLiteRepository) GetAccountByGoogleID(ctx context.Context, googleID string) (*core.Account, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE google_id = ?", googleID)
	return scanAccount(row)
}

// ListAccounts returns every account ordered alphabetically by name.
// The resolver relies on this ordering for its deterministic tie-break.
func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts ORDER BY name")
	if err != nil {
		return nil, wrapErr("list accounts", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		a, err := scanAccountRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list accounts", err)
	}
	return accounts, nil
}

func (r *SQLiteRepository) UpdateAccountPhone(ctx context.Context, id int64, phone string) error {
	if err := core.ValidatePhone(phone); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		"UPDATE accounts SET phone = ? WHERE id = ?", phone, id)
	return wrapErr("update account phone", err)
}

func (r *SQLiteRepository) UpdateAccountGoogle(ctx context.Context, id int64, googleID, picture string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE accounts SET google_id = ?, picture = ? WHERE id = ?",
		nullIfEmpty(googleID), picture, id)
	return wrapErr("update account google info", err)
}

// VerifyPIN checks the authorization PIN for an account.
func (r *SQLiteRepository) VerifyPIN(ctx context.Context, id int64, pin string) (bool, error) {
	var stored string
	err := r.db.QueryRowContext(ctx,
		"SELECT pin FROM accounts WHERE id = ?", id).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, core.ErrAccountNotFound
	}
	if err != nil {
		return false, wrapErr("verify pin", err)
	}
	return stored == pin, nil
}

// LinkAccounts merges a placeholder phone-only account into the account
// of the real owner who just claimed that phone number. Balance, ledger
// history and holdings move over atomically; the placeholder is deleted.
func (r *SQLiteRepository) LinkAccounts(ctx context.Context, ownerID, placeholderID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("link accounts begin", err)
	}
	defer tx.Rollback()

	var placeholderBalance int64
	err = tx.QueryRowContext(ctx,
		"SELECT balance_paise FROM accounts WHERE id = ?", placeholderID).Scan(&placeholderBalance)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrAccountNotFound
	}
	if err != nil {
		return wrapErr("link accounts read placeholder", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE accounts SET balance_paise = balance_paise + ? WHERE id = ?",
		placeholderBalance, ownerID); err != nil {
		return wrapErr("link accounts credit owner", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE ledger_entries SET account_id = ? WHERE account_id = ?",
		ownerID, placeholderID); err != nil {
		return wrapErr("link accounts move ledger", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE holdings SET account_id = ? WHERE account_id = ?",
		ownerID, placeholderID); err != nil {
		return wrapErr("link accounts move holdings", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM accounts WHERE id = ?", placeholderID); err != nil {
		return wrapErr("link accounts delete placeholder", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("link accounts commit", err)
	}

	slog.InfoContext(ctx, "Linked placeholder account",
		"owner_id", ownerID,
		"placeholder_id", placeholderID,
		"absorbed_paise", placeholderBalance)

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row *sql.Row) (*core.Account, error) {
	a, err := scanAccountRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrAccountNotFound
	}
	if err != nil {
		return nil, wrapErr("get account", err)
	}
	return a, nil
}

func scanAccountRow(s rowScanner) (*core.Account, error) {
	var (
		a                      core.Account
		email, phone, googleID sql.NullString
	)
	err := s.Scan(&a.ID, &a.Name, &email, &phone, &googleID, &a.Picture,
		&a.Balance.Paise, &a.PIN, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Email = email.String
	a.Phone = phone.String
	a.GoogleID = googleID.String
	return &a, nil
}
