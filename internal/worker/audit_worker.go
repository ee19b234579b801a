// Package worker audits committed ledger entries in the background.
// Transfers publish an event per commit; the worker consumes them and
// additionally sweeps periodically so a lost message never leaves an
// entry unaudited forever.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"voicepay/internal/amqp"
	"voicepay/internal/core"
	"voicepay/internal/storage"
)

type AuditWorker struct {
	storage   *storage.SQLiteRepository
	batchSize int
}

func NewAuditWorker(storage *storage.SQLiteRepository, batchSize int) *AuditWorker {
	return &AuditWorker{
		storage:   storage,
		batchSize: batchSize,
	}
}

// HandleTransferEvent processes a single transfer event from AMQP. The
// event carries the transfer identity; the entries themselves come from
// the ledger, which is the source of truth.
func (w *AuditWorker) HandleTransferEvent(ctx context.Context, ev *amqp.TransferEvent) error {
	slog.InfoContext(ctx, "Processing transfer event",
		"sender_id", ev.SenderID,
		"recipient_id", ev.RecipientID,
		"amount_paise", ev.AmountPaise)

	audited, err := w.auditBatch(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("audit after transfer event: %w", err)
	}
	if audited == 0 {
		// Already swept by a previous event or the periodic pass.
		slog.InfoContext(ctx, "No unaudited entries for transfer event",
			"sender_id", ev.SenderID,
			"recipient_id", ev.RecipientID)
	}
	return nil
}

// ProcessUnaudited sweeps any entries that have not been audited yet.
// This is a backup mechanism in case AMQP messages are lost.
func (w *AuditWorker) ProcessUnaudited(ctx context.Context) error {
	audited, err := w.auditBatch(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("process unaudited entries: %w", err)
	}
	if audited > 0 {
		slog.InfoContext(ctx, "Periodic audit pass completed", "audited", audited)
	}
	return nil
}

// StartupAuditCheck sweeps a larger backlog at worker startup. This is
// useful to recover from missed AMQP messages or worker downtime.
func (w *AuditWorker) StartupAuditCheck(ctx context.Context) error {
	entries, err := w.storage.UnauditedEntries(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get unaudited entries for startup check: %w", err)
	}

	if len(entries) == 0 {
		slog.InfoContext(ctx, "No unaudited entries found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found unaudited entries on startup, processing...",
		"count", len(entries))

	successCount := 0
	errorCount := 0
	for _, e := range entries {
		if err := w.auditEntry(ctx, e); err != nil {
			slog.ErrorContext(ctx, "Failed to audit entry during startup",
				"entry_id", e.ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup audit completed",
		"total", len(entries),
		"audited", successCount,
		"errors", errorCount)

	return nil
}

func (w *AuditWorker) auditBatch(ctx context.Context, limit int) (int, error) {
	entries, err := w.storage.UnauditedEntries(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get unaudited entries: %w", err)
	}

	audited := 0
	for _, e := range entries {
		if err := w.auditEntry(ctx, e); err != nil {
			slog.ErrorContext(ctx, "Failed to audit entry", "entry_id", e.ID, "error", err)
			continue
		}
		audited++
	}
	return audited, nil
}

func (w *AuditWorker) auditEntry(ctx context.Context, e core.LedgerEntry) error {
	if err := e.Validate(); err != nil {
		// Invalid entries stay unaudited so an operator notices them.
		return fmt.Errorf("entry %d failed validation: %w", e.ID, err)
	}

	if err := w.storage.MarkAudited(ctx, e.ID); err != nil {
		return fmt.Errorf("mark audited: %w", err)
	}

	slog.InfoContext(ctx, "Entry audited",
		"entry_id", e.ID,
		"account_id", e.AccountID,
		"direction", e.Direction,
		"amount_paise", e.Amount.Paise)

	return nil
}
