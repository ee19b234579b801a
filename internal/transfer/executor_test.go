package transfer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"voicepay/internal/core"
	"voicepay/internal/storage"
)

func newTestExecutor(t *testing.T) (*Executor, *storage.SQLiteRepository) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return NewExecutor(repo, nil), repo
}

func TestExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("authorized transfer", func(t *testing.T) {
		exec, repo := newTestExecutor(t)
		senderID, _ := repo.CreateAccount(ctx, core.Account{Name: "Asha", PIN: "4321", Balance: core.Money{Paise: 100000}})
		recipientID, _ := repo.CreateAccount(ctx, core.Account{Name: "Niraj"})

		newBalance, err := exec.Execute(ctx, senderID, recipientID, core.Money{Paise: 30000}, "4321")
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if newBalance.Paise != 70000 {
			t.Errorf("new balance = %d paise, want 70000", newBalance.Paise)
		}
	})

	t.Run("wrong pin fails without moving money", func(t *testing.T) {
		exec, repo := newTestExecutor(t)
		senderID, _ := repo.CreateAccount(ctx, core.Account{Name: "Asha", PIN: "4321", Balance: core.Money{Paise: 100000}})
		recipientID, _ := repo.CreateAccount(ctx, core.Account{Name: "Niraj"})

		_, err := exec.Execute(ctx, senderID, recipientID, core.Money{Paise: 30000}, "0000")
		if !errors.Is(err, core.ErrAuthorizationFailed) {
			t.Fatalf("Execute(wrong pin) error = %v, want ErrAuthorizationFailed", err)
		}
		sender, _ := repo.GetAccount(ctx, senderID)
		if sender.Balance.Paise != 100000 {
			t.Errorf("sender balance = %d, want untouched 100000", sender.Balance.Paise)
		}
	})

	t.Run("self transfer rejected before storage", func(t *testing.T) {
		exec, repo := newTestExecutor(t)
		id, _ := repo.CreateAccount(ctx, core.Account{Name: "Asha", PIN: "4321", Balance: core.Money{Paise: 100000}})

		_, err := exec.Execute(ctx, id, id, core.Money{Paise: 100}, "4321")
		if !errors.Is(err, core.ErrSelfTransfer) {
			t.Errorf("Execute(self) error = %v, want ErrSelfTransfer", err)
		}
	})

	t.Run("insufficient funds surfaces", func(t *testing.T) {
		exec, repo := newTestExecutor(t)
		senderID, _ := repo.CreateAccount(ctx, core.Account{Name: "Asha", PIN: "4321", Balance: core.Money{Paise: 100}})
		recipientID, _ := repo.CreateAccount(ctx, core.Account{Name: "Niraj"})

		_, err := exec.Execute(ctx, senderID, recipientID, core.Money{Paise: 30000}, "4321")
		if !errors.Is(err, core.ErrInsufficientFunds) {
			t.Errorf("Execute() error = %v, want ErrInsufficientFunds", err)
		}
	})

	t.Run("invalid amount", func(t *testing.T) {
		exec, repo := newTestExecutor(t)
		senderID, _ := repo.CreateAccount(ctx, core.Account{Name: "Asha", PIN: "4321"})
		recipientID, _ := repo.CreateAccount(ctx, core.Account{Name: "Niraj"})

		_, err := exec.Execute(ctx, senderID, recipientID, core.Money{Paise: -5}, "4321")
		if !errors.Is(err, core.ErrInvalidAmount) {
			t.Errorf("Execute(negative) error = %v, want ErrInvalidAmount", err)
		}
	})
}
