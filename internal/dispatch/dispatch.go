// Package dispatch is the boundary between the oracle and the core. The
// oracle only ever picks one tool per utterance; every state transition,
// validation and guard lives on this side of the line.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"voicepay/internal/auth"
	"voicepay/internal/core"
	"voicepay/internal/lang"
	"voicepay/internal/market"
	"voicepay/internal/oracle"
	"voicepay/internal/portfolio"
	"voicepay/internal/saga"
	"voicepay/internal/storage"
)

// Tool names advertised to the oracle. The names are part of the
// dispatch contract; renaming one silently breaks classification.
const (
	toolProcessPayment     = "process_payment_intent"
	toolCheckBalance       = "check_balance"
	toolUserInfo           = "get_user_info"
	toolTransactionHistory = "get_transaction_history"
	toolQueryInvestments   = "query_investments"
	toolAgreeToAddPhone    = "user_agrees_to_add_phone"
	toolCollectPhone       = "collect_phone_number"
	toolConfirmPhone       = "confirm_phone_number"
	toolSavePhoneOnSignup  = "save_phone_on_signup"
)

const (
	IntentUnrecognized    = "unrecognized"
	ScenarioDispatchError = "dispatch_failure"
)

// Oracle picks one tool call for an utterance, or nil when none applies.
type Oracle interface {
	SelectTool(ctx context.Context, systemPrompt, utterance string, tools []oracle.Tool) (*oracle.ToolCall, error)
}

// Outcome is the structured result of one voice turn, handed to the
// response generator and the frontend.
type Outcome struct {
	Intent   string         `json:"intent"`
	Scenario string         `json:"scenario,omitempty"`
	Language string         `json:"language"`
	Data     map[string]any `json:"data,omitempty"`
}

type Dispatcher struct {
	oracle    Oracle
	machine   *saga.Machine
	storage   *storage.SQLiteRepository
	portfolio *portfolio.Service
	auth      *auth.Service
}

func NewDispatcher(o Oracle, machine *saga.Machine, storage *storage.SQLiteRepository, pf *portfolio.Service, authSvc *auth.Service) *Dispatcher {
	return &Dispatcher{
		oracle:    o,
		machine:   machine,
		storage:   storage,
		portfolio: pf,
		auth:      authSvc,
	}
}

// Dispatch classifies one utterance and executes the selected action.
// Oracle failures and malformed arguments come back as a recoverable
// outcome with the session state untouched; the caller can simply ask
// the user to repeat.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID int64, utterance string) (Outcome, error) {
	detected := lang.Detect(utterance)
	language, err := d.machine.LockLanguage(ctx, sessionID, detected)
	if err != nil {
		return Outcome{}, err
	}

	state, err := d.machine.State(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}

	call, err := d.oracle.SelectTool(ctx, systemPrompt(language)+contextHint(state), utterance, Catalogue())
	if err != nil {
		slog.ErrorContext(ctx, "Oracle dispatch failed", "session_id", sessionID, "error", err)
		return Outcome{Intent: IntentUnrecognized, Scenario: ScenarioDispatchError, Language: language}, nil
	}
	if call == nil {
		return Outcome{Intent: IntentUnrecognized, Language: language}, nil
	}

	out, err := d.execute(ctx, sessionID, state, *call, language)
	if err != nil {
		return Outcome{}, err
	}
	out.Language = language
	return out, nil
}

func (d *Dispatcher) execute(ctx context.Context, sessionID int64, state *core.SessionState, call oracle.ToolCall, language string) (Outcome, error) {
	switch call.Name {
	case toolProcessPayment:
		var args struct {
			Recipient string  `json:"recipient"`
			Amount    float64 `json:"amount"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return badArguments(ctx, call, err), nil
		}
		res, err := d.machine.Pay(ctx, sessionID, args.Recipient, core.FromRupees(args.Amount), language)
		if err != nil {
			return Outcome{}, err
		}
		return sagaOutcome(call.Name, res), nil

	case toolAgreeToAddPhone:
		res, err := d.machine.AgreeToAddPhone(ctx, sessionID, language)
		if err != nil {
			return Outcome{}, err
		}
		return sagaOutcome(call.Name, res), nil

	case toolCollectPhone:
		var args struct {
			PhoneNumber string `json:"phone_number"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return badArguments(ctx, call, err), nil
		}
		var res saga.Outcome
		var err error
		if state != nil && state.Step == core.StepAwaitingRemainingDigits {
			res, err = d.machine.ProvideRemainingDigits(ctx, sessionID, args.PhoneNumber, language)
		} else {
			res, err = d.machine.CollectPhoneDigits(ctx, sessionID, args.PhoneNumber, language)
		}
		if err != nil {
			return Outcome{}, err
		}
		return sagaOutcome(call.Name, res), nil

	case toolConfirmPhone:
		var args struct {
			Confirmation bool `json:"confirmation"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return badArguments(ctx, call, err), nil
		}
		// The oracle regularly classifies the yes/no to the add-a-phone
		// offer as a confirmation; route it by the actual saga step.
		var res saga.Outcome
		var err error
		if state != nil && state.Step == core.StepAwaitingPhoneResponse {
			if args.Confirmation {
				res, err = d.machine.AgreeToAddPhone(ctx, sessionID, language)
			} else {
				res, err = d.machine.DeclineAddPhone(ctx, sessionID, language)
			}
		} else {
			res, err = d.machine.ConfirmPhone(ctx, sessionID, args.Confirmation, language)
		}
		if err != nil {
			return Outcome{}, err
		}
		return sagaOutcome(call.Name, res), nil

	case toolCheckBalance:
		return d.checkBalance(ctx, sessionID)

	case toolUserInfo:
		return d.userInfo(ctx, sessionID)

	case toolTransactionHistory:
		var args struct {
			Limit int `json:"limit"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return badArguments(ctx, call, err), nil
		}
		return d.transactionHistory(ctx, sessionID, args.Limit)

	case toolQueryInvestments:
		return d.queryInvestments(ctx, sessionID)

	case toolSavePhoneOnSignup:
		var args struct {
			PhoneNumber string `json:"phone_number"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return badArguments(ctx, call, err), nil
		}
		return d.savePhone(ctx, sessionID, args.PhoneNumber)

	default:
		slog.WarnContext(ctx, "Oracle selected an unknown tool", "tool", call.Name)
		return Outcome{Intent: IntentUnrecognized}, nil
	}
}

func (d *Dispatcher) checkBalance(ctx context.Context, sessionID int64) (Outcome, error) {
	account, err := d.storage.GetAccount(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Intent: toolCheckBalance,
		Data: map[string]any{
			"balance_paise":  account.Balance.Paise,
			"balance_rupees": account.Balance.Rupees(),
		},
	}, nil
}

func (d *Dispatcher) userInfo(ctx context.Context, sessionID int64) (Outcome, error) {
	account, err := d.storage.GetAccount(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Intent: toolUserInfo,
		Data: map[string]any{
			"name":           account.Name,
			"email":          account.Email,
			"phone":          account.Phone,
			"balance_rupees": account.Balance.Rupees(),
		},
	}, nil
}

func (d *Dispatcher) transactionHistory(ctx context.Context, sessionID int64, limit int) (Outcome, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	entries, err := d.storage.ListLedgerEntries(ctx, sessionID, limit)
	if err != nil {
		return Outcome{}, err
	}

	var totalSpent int64
	history := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		if e.Direction == core.DirectionDebit {
			totalSpent += e.Amount.Paise
		}
		history = append(history, map[string]any{
			"direction":     string(e.Direction),
			"amount_rupees": e.Amount.Rupees(),
			"description":   e.Description,
			"counterparty":  e.Counterparty,
			"created_at":    e.CreatedAt,
		})
	}
	return Outcome{
		Intent: toolTransactionHistory,
		Data: map[string]any{
			"transactions":       history,
			"count":              len(history),
			"total_spent_rupees": core.Money{Paise: totalSpent}.Rupees(),
		},
	}, nil
}

func (d *Dispatcher) queryInvestments(ctx context.Context, sessionID int64) (Outcome, error) {
	summary, err := d.portfolio.Portfolio(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}

	positions := make([]map[string]any, 0, len(summary.Positions))
	for _, p := range summary.Positions {
		positions = append(positions, map[string]any{
			"asset_type":      p.AssetType,
			"invested_rupees": p.Invested.Rupees(),
			"units":           p.Units,
			"current_value":   p.CurrentValue.Rupees(),
			"return_percent":  p.ReturnPercent,
		})
	}
	data := map[string]any{
		"positions":       positions,
		"total_invested":  summary.TotalInvested.Rupees(),
		"current_value":   summary.CurrentValue.Rupees(),
		"total_return":    summary.TotalReturn.Rupees(),
		"return_percent":  summary.ReturnPercent,
		"available_types": market.AssetTypes(),
	}

	if rec, err := d.portfolio.RoundOffRecommendation(ctx, sessionID); err == nil && rec != nil {
		data["round_off"] = map[string]any{
			"transaction_count":  rec.TransactionCount,
			"total_round_off":    rec.TotalRoundOff.Rupees(),
			"potential_earnings": rec.PotentialEarnings.Rupees(),
			"asset_type":         rec.AssetType,
			"month":              rec.Month,
		}
	} else if err != nil {
		slog.WarnContext(ctx, "Round-off recommendation unavailable", "error", err)
	}

	return Outcome{Intent: toolQueryInvestments, Data: data}, nil
}

func (d *Dispatcher) savePhone(ctx context.Context, sessionID int64, phone string) (Outcome, error) {
	res, err := d.auth.SavePhoneOnSignup(ctx, sessionID, phone)
	if err != nil {
		return Outcome{}, err
	}
	scenario := "phone_saved"
	if res.Linked {
		scenario = "accounts_linked"
	}
	return Outcome{
		Intent:   toolSavePhoneOnSignup,
		Scenario: scenario,
		Data: map[string]any{
			"phone":          res.Phone,
			"linked":         res.Linked,
			"balance_rupees": res.NewBalance.Rupees(),
		},
	}, nil
}

func badArguments(ctx context.Context, call oracle.ToolCall, err error) Outcome {
	slog.ErrorContext(ctx, "Oracle returned malformed arguments",
		"tool", call.Name, "error", err)
	return Outcome{Intent: call.Name, Scenario: ScenarioDispatchError}
}

// sagaOutcome flattens a saga turn into the wire outcome.
func sagaOutcome(intent string, res saga.Outcome) Outcome {
	data := map[string]any{
		"success":      res.Success,
		"requires_pin": res.RequiresPIN,
	}
	if res.Recipient != nil {
		data["recipient_id"] = res.Recipient.ID
		data["recipient_name"] = res.Recipient.Name
	}
	if res.Amount.Paise != 0 {
		data["amount_rupees"] = res.Amount.Rupees()
	}
	if res.Phone != "" {
		data["phone"] = res.Phone
	}
	if res.PartialDigits != "" {
		data["partial_digits"] = res.PartialDigits
		data["digits_needed"] = res.DigitsNeeded
	}
	if res.DigitsReceived != 0 {
		data["digits_received"] = res.DigitsReceived
	}
	if res.PendingRecipient != "" {
		data["pending_recipient"] = res.PendingRecipient
	}
	if res.AutoCreated {
		data["auto_created"] = true
	}
	return Outcome{Intent: intent, Scenario: res.Scenario, Data: data}
}

func systemPrompt(language string) string {
	prompt := "You are the intent classifier for a voice payment assistant. " +
		"Pick exactly one tool for the user's utterance. " +
		"Amounts are in rupees. Do not invent recipients or amounts the user did not say."
	if language == lang.Hindi {
		prompt += " The user speaks Hindi; utterances may be romanized or in Devanagari."
	}
	return prompt
}

// contextHint tells the oracle what the in-flight saga is waiting for,
// so a bare number or a yes/no lands on the right tool.
func contextHint(state *core.SessionState) string {
	if state == nil {
		return ""
	}
	switch state.Step {
	case core.StepAwaitingPhoneResponse:
		return fmt.Sprintf(
			" The user was just asked whether to add a phone number for %q. A yes or no answers that question; use confirm_phone_number.",
			state.Pending.RecipientLabel)
	case core.StepAwaitingPhoneDigits:
		return " The user was just asked for a 10-digit phone number. A numeric utterance is phone digits, not an amount; use collect_phone_number."
	case core.StepConfirmingPhone:
		return fmt.Sprintf(
			" The user was just asked to confirm the phone number %s. A yes or no is that confirmation; use confirm_phone_number.",
			state.Confirming.Phone)
	case core.StepAwaitingRemainingDigits:
		return fmt.Sprintf(
			" The user gave a partial phone number and owes %d more digits. A numeric utterance is those digits; use collect_phone_number.",
			state.Partial.DigitsNeeded)
	default:
		return ""
	}
}
