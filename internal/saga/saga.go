// Package saga drives the multi-turn phone-collection conversation.
//
// One saga per session. Every transition replaces the stored state
// wholesale through a single upsert, and the locked response language
// rides along on every replacement until an explicit reset.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"voicepay/internal/core"
	"voicepay/internal/resolver"
)

// Scenario tags handed to the response-text generator. They name what
// happened this turn, not how to phrase it.
const (
	ScenarioPaymentToContact  = "payment_to_existing_contact"
	ScenarioPaymentToPhone    = "payment_to_existing_phone"
	ScenarioPaymentToNewPhone = "payment_to_new_phone"
	ScenarioPaymentToSelf     = "payment_to_self"
	ScenarioRecipientNotFound = "recipient_not_found"
	ScenarioIncompletePhone   = "incomplete_phone_number"
	ScenarioPromptForDigits   = "prompt_for_phone_digits"
	ScenarioInvalidPhone      = "invalid_phone_number"
	ScenarioConfirmPhone      = "confirm_phone_number"
	ScenarioPhoneRejected     = "phone_rejected_retry"
	ScenarioPhoneConfirmed    = "phone_confirmed_ready_for_pin"
	ScenarioNoPendingRequest  = "no_pending_phone_request"
	ScenarioNoPhoneToConfirm  = "no_phone_to_confirm"
)

type Store interface {
	GetSessionState(ctx context.Context, sessionID int64) (*core.SessionState, error)
	SaveSessionState(ctx context.Context, s core.SessionState) error
	ClearSessionState(ctx context.Context, sessionID int64) error
	GetAccount(ctx context.Context, id int64) (*core.Account, error)
	GetAccountByPhone(ctx context.Context, phone string) (*core.Account, error)
	CreatePhoneAccount(ctx context.Context, name, phone string) (int64, error)
}

type RecipientResolver interface {
	Resolve(ctx context.Context, reference string, excludeID int64) (resolver.Resolution, error)
}

// Outcome is what one saga turn produced. Scenario is always set; the
// remaining fields are populated per scenario.
type Outcome struct {
	Success     bool
	Scenario    string
	RequiresPIN bool

	// Recipient is the final identity when the turn ends ready for
	// authorization.
	Recipient *core.Account
	Amount    core.Money

	Phone            string
	PartialDigits    string
	DigitsNeeded     int
	DigitsReceived   int
	PendingRecipient string
	AutoCreated      bool
}

type Machine struct {
	store    Store
	resolver RecipientResolver
}

func NewMachine(store Store, res RecipientResolver) *Machine {
	return &Machine{store: store, resolver: res}
}

// Pay handles a fresh payment intent: resolve the reference and either
// come back ready for authorization or open the saga that collects what
// is missing. Any prior saga for the session is replaced.
func (m *Machine) Pay(ctx context.Context, sessionID int64, reference string, amount core.Money, language string) (Outcome, error) {
	if err := amount.Validate(); err != nil {
		return Outcome{}, err
	}

	locked, err := m.lockedLanguage(ctx, sessionID, language)
	if err != nil {
		return Outcome{}, err
	}

	res, err := m.resolver.Resolve(ctx, reference, sessionID)
	if errors.Is(err, core.ErrSelfTransfer) {
		if err := m.saveActive(ctx, sessionID, locked); err != nil {
			return Outcome{}, err
		}
		return Outcome{Scenario: ScenarioPaymentToSelf}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve recipient: %w", err)
	}

	switch {
	case res.PartialDigits != "":
		next := core.SessionState{
			SessionID: sessionID,
			Step:      core.StepAwaitingRemainingDigits,
			Language:  locked,
			Partial: &core.PartialPhone{
				Digits:       res.PartialDigits,
				Amount:       amount,
				DigitsNeeded: res.DigitsNeeded,
			},
		}
		if err := m.store.SaveSessionState(ctx, next); err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Scenario:       ScenarioIncompletePhone,
			PartialDigits:  res.PartialDigits,
			DigitsReceived: len(res.PartialDigits),
			DigitsNeeded:   res.DigitsNeeded,
			Amount:         amount,
		}, nil

	case res.Match.Found():
		if err := m.saveActive(ctx, sessionID, locked); err != nil {
			return Outcome{}, err
		}
		scenario := ScenarioPaymentToContact
		if res.Match.Strategy == core.MatchPhone {
			scenario = ScenarioPaymentToPhone
		}
		return Outcome{
			Success:     true,
			Scenario:    scenario,
			RequiresPIN: true,
			Recipient:   res.Match.Account,
			Amount:      amount,
			Phone:       res.Phone,
		}, nil

	case res.Phone != "":
		// Complete number nobody owns yet. Create the placeholder and
		// proceed straight to authorization.
		recipient, err := m.createPlaceholder(ctx, res.Phone)
		if err != nil {
			return Outcome{}, err
		}
		if err := m.saveActive(ctx, sessionID, locked); err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Success:     true,
			Scenario:    ScenarioPaymentToNewPhone,
			RequiresPIN: true,
			Recipient:   recipient,
			Amount:      amount,
			Phone:       res.Phone,
			AutoCreated: true,
		}, nil

	default:
		next := core.SessionState{
			SessionID: sessionID,
			Step:      core.StepAwaitingPhoneResponse,
			Language:  locked,
			Pending:   &core.PendingPayment{RecipientLabel: reference, Amount: amount},
		}
		if err := m.store.SaveSessionState(ctx, next); err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Scenario:         ScenarioRecipientNotFound,
			PendingRecipient: reference,
			Amount:           amount,
		}, nil
	}
}

// AgreeToAddPhone moves the saga from the offer to digit collection.
func (m *Machine) AgreeToAddPhone(ctx context.Context, sessionID int64, language string) (Outcome, error) {
	state, err := m.store.GetSessionState(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if state == nil || state.Step != core.StepAwaitingPhoneResponse {
		return Outcome{Scenario: ScenarioNoPendingRequest}, nil
	}

	next := core.SessionState{
		SessionID: sessionID,
		Step:      core.StepAwaitingPhoneDigits,
		Language:  carryLanguage(state, language),
		Pending:   state.Pending,
	}
	if err := m.store.SaveSessionState(ctx, next); err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Success:          true,
		Scenario:         ScenarioPromptForDigits,
		PendingRecipient: state.Pending.RecipientLabel,
		Amount:           state.Pending.Amount,
	}, nil
}

// DeclineAddPhone abandons the pending payment but keeps the language lock.
func (m *Machine) DeclineAddPhone(ctx context.Context, sessionID int64, language string) (Outcome, error) {
	state, err := m.store.GetSessionState(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if state == nil || state.Step != core.StepAwaitingPhoneResponse {
		return Outcome{Scenario: ScenarioNoPendingRequest}, nil
	}
	if err := m.saveActive(ctx, sessionID, carryLanguage(state, language)); err != nil {
		return Outcome{}, err
	}
	return Outcome{Success: true, Scenario: ScenarioPhoneRejected}, nil
}

// CollectPhoneDigits validates spoken digits while the saga awaits them.
// A wrong count leaves the saga exactly where it is and reports how many
// digits actually arrived.
func (m *Machine) CollectPhoneDigits(ctx context.Context, sessionID int64, raw string, language string) (Outcome, error) {
	state, err := m.store.GetSessionState(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if state == nil || state.Step != core.StepAwaitingPhoneDigits {
		return Outcome{Scenario: ScenarioNoPendingRequest}, nil
	}

	digits := core.DigitsOf(raw)
	if len(digits) != core.PhoneDigits {
		return Outcome{
			Scenario:       ScenarioInvalidPhone,
			DigitsReceived: len(digits),
		}, nil
	}

	next := core.SessionState{
		SessionID: sessionID,
		Step:      core.StepConfirmingPhone,
		Language:  carryLanguage(state, language),
		Confirming: &core.PhoneConfirmation{
			Phone:          digits,
			RecipientLabel: state.Pending.RecipientLabel,
			Amount:         state.Pending.Amount,
		},
	}
	if err := m.store.SaveSessionState(ctx, next); err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Success:  true,
		Scenario: ScenarioConfirmPhone,
		Phone:    digits,
		Amount:   state.Pending.Amount,
	}, nil
}

// ConfirmPhone closes the saga. Yes finds or creates the account for the
// confirmed number and comes back ready for authorization; no abandons
// the collected digits so the flow can restart.
func (m *Machine) ConfirmPhone(ctx context.Context, sessionID int64, confirmed bool, language string) (Outcome, error) {
	state, err := m.store.GetSessionState(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if state == nil || state.Step != core.StepConfirmingPhone {
		return Outcome{Scenario: ScenarioNoPhoneToConfirm}, nil
	}
	locked := carryLanguage(state, language)

	if !confirmed {
		if err := m.saveActive(ctx, sessionID, locked); err != nil {
			return Outcome{}, err
		}
		return Outcome{Scenario: ScenarioPhoneRejected}, nil
	}

	phone := state.Confirming.Phone
	recipient, err := m.store.GetAccountByPhone(ctx, phone)
	if err != nil && !errors.Is(err, core.ErrAccountNotFound) {
		return Outcome{}, err
	}
	autoCreated := false
	if recipient == nil {
		recipient, err = m.createPlaceholder(ctx, phone)
		if err != nil {
			return Outcome{}, err
		}
		autoCreated = true
	} else if recipient.ID == sessionID {
		if err := m.saveActive(ctx, sessionID, locked); err != nil {
			return Outcome{}, err
		}
		return Outcome{Scenario: ScenarioPaymentToSelf}, nil
	}

	if err := m.saveActive(ctx, sessionID, locked); err != nil {
		return Outcome{}, err
	}

	slog.InfoContext(ctx, "Phone confirmed",
		"session_id", sessionID,
		"recipient_id", recipient.ID,
		"auto_created", autoCreated)

	return Outcome{
		Success:     true,
		Scenario:    ScenarioPhoneConfirmed,
		RequiresPIN: true,
		Recipient:   recipient,
		Amount:      state.Confirming.Amount,
		Phone:       phone,
		AutoCreated: autoCreated,
	}, nil
}

// ProvideRemainingDigits appends newly spoken digits to a partial phone
// number. A completed number re-enters normal payment resolution; a
// still-short one keeps waiting with an updated count.
func (m *Machine) ProvideRemainingDigits(ctx context.Context, sessionID int64, raw string, language string) (Outcome, error) {
	state, err := m.store.GetSessionState(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if state == nil || state.Step != core.StepAwaitingRemainingDigits {
		return Outcome{Scenario: ScenarioNoPendingRequest}, nil
	}
	locked := carryLanguage(state, language)

	combined := state.Partial.Digits + core.DigitsOf(raw)
	switch {
	case len(combined) == core.PhoneDigits:
		return m.Pay(ctx, sessionID, combined, state.Partial.Amount, locked)

	case len(combined) < core.PhoneDigits:
		next := core.SessionState{
			SessionID: sessionID,
			Step:      core.StepAwaitingRemainingDigits,
			Language:  locked,
			Partial: &core.PartialPhone{
				Digits:       combined,
				Amount:       state.Partial.Amount,
				DigitsNeeded: core.PhoneDigits - len(combined),
			},
		}
		if err := m.store.SaveSessionState(ctx, next); err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Scenario:       ScenarioIncompletePhone,
			PartialDigits:  combined,
			DigitsReceived: len(combined),
			DigitsNeeded:   core.PhoneDigits - len(combined),
			Amount:         state.Partial.Amount,
		}, nil

	default:
		// Too many digits. The saga stays put; the user retries.
		return Outcome{
			Scenario:       ScenarioInvalidPhone,
			DigitsReceived: len(combined),
		}, nil
	}
}

// LockLanguage records the detected language for a session with no
// saga in flight, so later turns answer in the language the session
// started in. An existing state, saga or not, is left untouched.
func (m *Machine) LockLanguage(ctx context.Context, sessionID int64, detected string) (string, error) {
	state, err := m.store.GetSessionState(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if state != nil {
		return carryLanguage(state, detected), nil
	}
	if err := m.saveActive(ctx, sessionID, detected); err != nil {
		return "", err
	}
	return detected, nil
}

// Reset clears the session completely, releasing the language lock.
func (m *Machine) Reset(ctx context.Context, sessionID int64) error {
	return m.store.ClearSessionState(ctx, sessionID)
}

// State exposes the current session state for context-sensitive dispatch.
func (m *Machine) State(ctx context.Context, sessionID int64) (*core.SessionState, error) {
	return m.store.GetSessionState(ctx, sessionID)
}

func (m *Machine) createPlaceholder(ctx context.Context, phone string) (*core.Account, error) {
	id, err := m.store.CreatePhoneAccount(ctx, core.PlaceholderName(phone), phone)
	if err != nil {
		return nil, fmt.Errorf("create placeholder account: %w", err)
	}
	return m.store.GetAccount(ctx, id)
}

// saveActive replaces any in-flight saga with the bare language lock.
func (m *Machine) saveActive(ctx context.Context, sessionID int64, language string) error {
	return m.store.SaveSessionState(ctx, core.SessionState{
		SessionID: sessionID,
		Step:      core.StepActive,
		Language:  language,
	})
}

// lockedLanguage returns the stored language if one is locked, otherwise
// the one detected this turn.
func (m *Machine) lockedLanguage(ctx context.Context, sessionID int64, detected string) (string, error) {
	state, err := m.store.GetSessionState(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return carryLanguage(state, detected), nil
}

func carryLanguage(state *core.SessionState, detected string) string {
	if state != nil && state.Language != "" {
		return state.Language
	}
	return detected
}
