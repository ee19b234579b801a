package worker

import (
	"context"
	"path/filepath"
	"testing"

	"voicepay/internal/amqp"
	"voicepay/internal/core"
	"voicepay/internal/storage"
)

func newTestWorker(t *testing.T, batchSize int) (*AuditWorker, *storage.SQLiteRepository) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return NewAuditWorker(repo, batchSize), repo
}

func seedTransfers(t *testing.T, repo *storage.SQLiteRepository, n int) {
	t.Helper()
	ctx := context.Background()
	sender, _ := repo.CreateAccount(ctx, core.Account{Name: "Asha", Balance: core.Money{Paise: 1_000_000}})
	recipient, _ := repo.CreateAccount(ctx, core.Account{Name: "Niraj"})
	for i := 0; i < n; i++ {
		if _, err := repo.Transfer(ctx, sender, recipient, core.Money{Paise: 10000}); err != nil {
			t.Fatalf("Transfer() error = %v", err)
		}
	}
}

func TestHandleTransferEvent(t *testing.T) {
	ctx := context.Background()
	w, repo := newTestWorker(t, 10)
	seedTransfers(t, repo, 1)

	ev := amqp.NewTransferEvent(1, 2, 10000)
	if err := w.HandleTransferEvent(ctx, ev); err != nil {
		t.Fatalf("HandleTransferEvent() error = %v", err)
	}

	remaining, err := repo.UnauditedEntries(ctx, 10)
	if err != nil {
		t.Fatalf("UnauditedEntries() error = %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("unaudited after event = %d, want 0", len(remaining))
	}
}

func TestProcessUnaudited(t *testing.T) {
	ctx := context.Background()

	t.Run("sweeps a batch", func(t *testing.T) {
		w, repo := newTestWorker(t, 10)
		// Three transfers write six entries.
		seedTransfers(t, repo, 3)

		if err := w.ProcessUnaudited(ctx); err != nil {
			t.Fatalf("ProcessUnaudited() error = %v", err)
		}
		remaining, _ := repo.UnauditedEntries(ctx, 10)
		if len(remaining) != 0 {
			t.Errorf("unaudited after sweep = %d, want 0", len(remaining))
		}
	})

	t.Run("respects the batch size", func(t *testing.T) {
		w, repo := newTestWorker(t, 2)
		seedTransfers(t, repo, 3)

		if err := w.ProcessUnaudited(ctx); err != nil {
			t.Fatalf("ProcessUnaudited() error = %v", err)
		}
		remaining, _ := repo.UnauditedEntries(ctx, 10)
		if len(remaining) != 4 {
			t.Errorf("unaudited after one batch of 2 = %d, want 4", len(remaining))
		}
	})

	t.Run("nothing to do", func(t *testing.T) {
		w, _ := newTestWorker(t, 10)
		if err := w.ProcessUnaudited(ctx); err != nil {
			t.Errorf("ProcessUnaudited() on empty ledger error = %v", err)
		}
	})
}

func TestStartupAuditCheck(t *testing.T) {
	ctx := context.Background()
	w, repo := newTestWorker(t, 2)
	// Startup uses five times the batch, so 4 transfers (8 entries) fit.
	seedTransfers(t, repo, 4)

	if err := w.StartupAuditCheck(ctx); err != nil {
		t.Fatalf("StartupAuditCheck() error = %v", err)
	}
	remaining, _ := repo.UnauditedEntries(ctx, 20)
	if len(remaining) != 0 {
		t.Errorf("unaudited after startup check = %d, want 0", len(remaining))
	}
}
