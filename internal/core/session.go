package core

import (
	"errors"
	"time"
)

// Saga steps. A session has at most one SessionState row; the step tag
// names the variant and exactly one payload below is populated for it.
const (
	// StepActive carries only the locked language, no in-flight saga.
	StepActive SagaStep = "active"
	// StepAwaitingPhoneResponse: recipient was not found, the user was
	// offered to add a phone number and has not answered yet.
	StepAwaitingPhoneResponse SagaStep = "awaiting_phone_response"
	// StepAwaitingPhoneDigits: the user agreed; the next numeric
	// utterance is phone digits, not an amount.
	StepAwaitingPhoneDigits SagaStep = "awaiting_phone_digits"
	// StepConfirmingPhone: 10 digits received, waiting for yes/no.
	StepConfirmingPhone SagaStep = "confirming_phone"
	// StepAwaitingRemainingDigits: a partial phone number (5-9 digits)
	// was given as the recipient; waiting for the rest.
	StepAwaitingRemainingDigits SagaStep = "awaiting_remaining_digits"
)

type (
	SagaStep string

	// PendingPayment is carried while a payment waits on phone collection.
	PendingPayment struct {
		RecipientLabel string `json:"recipient_label"`
		Amount         Money  `json:"amount"`
	}

	// PhoneConfirmation is carried while 10 collected digits await a
	// yes/no from the user.
	PhoneConfirmation struct {
		Phone          string `json:"phone"`
		RecipientLabel string `json:"recipient_label"`
		Amount         Money  `json:"amount"`
	}

	// PartialPhone is carried while the rest of a cut-off phone number
	// is awaited.
	PartialPhone struct {
		Digits       string `json:"digits"`
		Amount       Money  `json:"amount"`
		DigitsNeeded int    `json:"digits_needed"`
	}

	// SessionState is the single source of truth for what turn comes
	// next in a session. It is replaced wholesale on every transition;
	// Language survives every replacement until an explicit reset.
	SessionState struct {
		SessionID  int64
		Step       SagaStep
		Language   string
		Pending    *PendingPayment
		Confirming *PhoneConfirmation
		Partial    *PartialPhone
		UpdatedAt  time.Time
	}
)

var errSessionPayload = errors.New("session payload does not match step")

// Validate checks that exactly the payload required by the step is set.
func (s SessionState) Validate() error {
	if s.SessionID == 0 {
		return errors.New("session state without session id")
	}
	switch s.Step {
	case StepActive:
		if s.Pending != nil || s.Confirming != nil || s.Partial != nil {
			return errSessionPayload
		}
	case StepAwaitingPhoneResponse, StepAwaitingPhoneDigits:
		if s.Pending == nil || s.Confirming != nil || s.Partial != nil {
			return errSessionPayload
		}
	case StepConfirmingPhone:
		if s.Confirming == nil || s.Pending != nil || s.Partial != nil {
			return errSessionPayload
		}
	case StepAwaitingRemainingDigits:
		if s.Partial == nil || s.Pending != nil || s.Confirming != nil {
			return errSessionPayload
		}
	default:
		return errors.New("unknown saga step")
	}
	return nil
}

// WithLanguage returns a copy carrying the given locked language. The
// lock is copy-on-write: transitions build the next state and stamp the
// previous language onto it before saving.
func (s SessionState) WithLanguage(language string) SessionState {
	s.Language = language
	return s
}
