// Package transfer is the single path through which money moves.
package transfer

import (
	"context"
	"fmt"
	"log/slog"

	"voicepay/internal/amqp"
	"voicepay/internal/core"
	"voicepay/internal/storage"
)

// Executor authorizes and performs transfers, then announces them for
// auditing. Every conversational branch that ends in a payment funnels
// through Execute.
type Executor struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewExecutor(storage *storage.SQLiteRepository, amqpClient *amqp.Client) *Executor {
	return &Executor{
		storage:    storage,
		amqpClient: amqpClient,
	}
}

// Execute checks the PIN and moves the money atomically, returning the
// sender's new balance. The transfer event is published after commit;
// a publish failure never fails a committed transfer.
func (e *Executor) Execute(ctx context.Context, senderID, recipientID int64, amount core.Money, pin string) (core.Money, error) {
	if err := amount.Validate(); err != nil {
		return core.Money{}, err
	}
	if senderID == recipientID {
		return core.Money{}, core.ErrSelfTransfer
	}

	ok, err := e.storage.VerifyPIN(ctx, senderID, pin)
	if err != nil {
		return core.Money{}, fmt.Errorf("verify pin: %w", err)
	}
	if !ok {
		return core.Money{}, core.ErrAuthorizationFailed
	}

	newBalance, err := e.storage.Transfer(ctx, senderID, recipientID, amount)
	if err != nil {
		return core.Money{}, err
	}

	if err := e.publishEvent(ctx, senderID, recipientID, amount.Paise); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transfer event",
			"sender_id", senderID,
			"recipient_id", recipientID,
			"error", err)
		// Don't fail the request - the transfer is committed
	}

	return newBalance, nil
}

func (e *Executor) publishEvent(ctx context.Context, senderID, recipientID, amountPaise int64) error {
	if e.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping transfer event")
		return nil
	}
	return e.amqpClient.PublishTransferEvent(ctx, amqp.NewTransferEvent(senderID, recipientID, amountPaise))
}
