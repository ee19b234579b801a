package amqp

import (
	"encoding/json"
	"time"
)

// TransferEvent announces a committed money movement. It carries only
// identifiers; the audit worker reads the ledger rows from the database.
type TransferEvent struct {
	SenderID    int64     `json:"sender_id"`
	RecipientID int64     `json:"recipient_id"`
	AmountPaise int64     `json:"amount_paise"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewTransferEvent(senderID, recipientID, amountPaise int64) *TransferEvent {
	return &TransferEvent{
		SenderID:    senderID,
		RecipientID: recipientID,
		AmountPaise: amountPaise,
		Timestamp:   time.Now(),
	}
}

func (e *TransferEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func TransferEventFromJSON(data []byte) (*TransferEvent, error) {
	var ev TransferEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
