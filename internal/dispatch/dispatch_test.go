package dispatch

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"voicepay/internal/auth"
	"voicepay/internal/core"
	"voicepay/internal/oracle"
	"voicepay/internal/portfolio"
	"voicepay/internal/resolver"
	"voicepay/internal/saga"
	"voicepay/internal/storage"
	"voicepay/internal/transfer"
)

type oracleFunc func(ctx context.Context, systemPrompt, utterance string, tools []oracle.Tool) (*oracle.ToolCall, error)

func (f oracleFunc) SelectTool(ctx context.Context, systemPrompt, utterance string, tools []oracle.Tool) (*oracle.ToolCall, error) {
	return f(ctx, systemPrompt, utterance, tools)
}

func selects(name, args string) oracleFunc {
	return func(context.Context, string, string, []oracle.Tool) (*oracle.ToolCall, error) {
		return &oracle.ToolCall{Name: name, Arguments: json.RawMessage(args)}, nil
	}
}

type fixedPrice float64

func (f fixedPrice) Price(context.Context, string) (float64, error) { return float64(f), nil }

type testEnv struct {
	repo    *storage.SQLiteRepository
	machine *saga.Machine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return &testEnv{
		repo:    repo,
		machine: saga.NewMachine(repo, resolver.New(repo)),
	}
}

func (e *testEnv) dispatcher(o Oracle) *Dispatcher {
	authSvc := auth.NewService(e.repo, auth.Config{JWTSecret: "test", TokenTTL: time.Hour})
	return NewDispatcher(o, e.machine, e.repo, portfolio.NewService(e.repo, fixedPrice(100)), authSvc)
}

func TestDispatchPayment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	caller, _ := env.repo.CreateAccount(ctx, core.Account{Name: "Chirag", Balance: core.Money{Paise: 1_200_000}})
	recipient, _ := env.repo.CreateAccount(ctx, core.Account{Name: "Niraj", Phone: "7319821062"})

	d := env.dispatcher(selects(toolProcessPayment, `{"recipient":"Niraj","amount":500}`))
	out, err := d.Dispatch(ctx, caller, "send 500 to Niraj")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if out.Intent != toolProcessPayment {
		t.Errorf("intent = %q, want %q", out.Intent, toolProcessPayment)
	}
	if out.Scenario != saga.ScenarioPaymentToContact {
		t.Errorf("scenario = %q, want payment_to_existing_contact", out.Scenario)
	}
	if out.Data["requires_pin"] != true {
		t.Errorf("requires_pin = %v, want true", out.Data["requires_pin"])
	}
	if out.Data["recipient_id"] != recipient {
		t.Errorf("recipient_id = %v, want %d", out.Data["recipient_id"], recipient)
	}
	if out.Data["amount_rupees"] != 500.0 {
		t.Errorf("amount_rupees = %v, want 500", out.Data["amount_rupees"])
	}
}

func TestDispatchFailuresAreRecoverable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	caller, _ := env.repo.CreateAccount(ctx, core.Account{Name: "Chirag"})

	t.Run("oracle error", func(t *testing.T) {
		d := env.dispatcher(oracleFunc(func(context.Context, string, string, []oracle.Tool) (*oracle.ToolCall, error) {
			return nil, core.ErrOracleDispatch
		}))
		out, err := d.Dispatch(ctx, caller, "send money")
		if err != nil {
			t.Fatalf("Dispatch() error = %v, want recoverable outcome", err)
		}
		if out.Scenario != ScenarioDispatchError {
			t.Errorf("scenario = %q, want %q", out.Scenario, ScenarioDispatchError)
		}
	})

	t.Run("no tool selected", func(t *testing.T) {
		d := env.dispatcher(oracleFunc(func(context.Context, string, string, []oracle.Tool) (*oracle.ToolCall, error) {
			return nil, nil
		}))
		out, err := d.Dispatch(ctx, caller, "what a nice day")
		if err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
		if out.Intent != IntentUnrecognized {
			t.Errorf("intent = %q, want %q", out.Intent, IntentUnrecognized)
		}
	})

	t.Run("malformed arguments leave the saga alone", func(t *testing.T) {
		d := env.dispatcher(selects(toolProcessPayment, `{broken`))
		out, err := d.Dispatch(ctx, caller, "send 500 to Niraj")
		if err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
		if out.Scenario != ScenarioDispatchError {
			t.Errorf("scenario = %q, want %q", out.Scenario, ScenarioDispatchError)
		}
		state, _ := env.machine.State(ctx, caller)
		if state != nil && state.Step != core.StepActive {
			t.Errorf("step after malformed arguments = %q, want no saga", state.Step)
		}
	})
}

func TestDispatchPhoneSaga(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	caller, _ := env.repo.CreateAccount(ctx, core.Account{Name: "Chirag", Balance: core.Money{Paise: 1_200_000}})

	// Unknown recipient opens the saga.
	out, err := env.dispatcher(selects(toolProcessPayment, `{"recipient":"Mohan","amount":250}`)).
		Dispatch(ctx, caller, "send 250 to Mohan")
	if err != nil {
		t.Fatalf("Dispatch(pay) error = %v", err)
	}
	if out.Scenario != saga.ScenarioRecipientNotFound {
		t.Fatalf("scenario = %q, want recipient_not_found", out.Scenario)
	}

	// A yes at the offer step arrives as confirm_phone_number and must
	// route to agreement, not confirmation.
	out, err = env.dispatcher(selects(toolConfirmPhone, `{"confirmation":true}`)).
		Dispatch(ctx, caller, "yes please")
	if err != nil {
		t.Fatalf("Dispatch(yes) error = %v", err)
	}
	if out.Scenario != saga.ScenarioPromptForDigits {
		t.Fatalf("scenario = %q, want prompt_for_phone_digits", out.Scenario)
	}

	out, err = env.dispatcher(selects(toolCollectPhone, `{"phone_number":"96862 70688"}`)).
		Dispatch(ctx, caller, "96862 70688")
	if err != nil {
		t.Fatalf("Dispatch(digits) error = %v", err)
	}
	if out.Scenario != saga.ScenarioConfirmPhone {
		t.Fatalf("scenario = %q, want confirm_phone_number", out.Scenario)
	}

	out, err = env.dispatcher(selects(toolConfirmPhone, `{"confirmation":true}`)).
		Dispatch(ctx, caller, "yes")
	if err != nil {
		t.Fatalf("Dispatch(confirm) error = %v", err)
	}
	if out.Scenario != saga.ScenarioPhoneConfirmed {
		t.Fatalf("scenario = %q, want phone_confirmed_ready_for_pin", out.Scenario)
	}
	if out.Data["auto_created"] != true {
		t.Errorf("auto_created = %v, want true", out.Data["auto_created"])
	}
	if out.Data["amount_rupees"] != 250.0 {
		t.Errorf("amount_rupees = %v, want the original 250 carried through", out.Data["amount_rupees"])
	}
}

func TestDispatchRemainingDigits(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	caller, _ := env.repo.CreateAccount(ctx, core.Account{Name: "Chirag", Balance: core.Money{Paise: 1_200_000}})

	out, err := env.dispatcher(selects(toolProcessPayment, `{"recipient":"73198","amount":100}`)).
		Dispatch(ctx, caller, "send 100 to 73198")
	if err != nil {
		t.Fatalf("Dispatch(partial) error = %v", err)
	}
	if out.Scenario != saga.ScenarioIncompletePhone {
		t.Fatalf("scenario = %q, want incomplete_phone_number", out.Scenario)
	}

	// Digit utterances at this step go through collect_phone_number but
	// must continue the partial number instead of starting fresh.
	out, err = env.dispatcher(selects(toolCollectPhone, `{"phone_number":"21062"}`)).
		Dispatch(ctx, caller, "21062")
	if err != nil {
		t.Fatalf("Dispatch(rest) error = %v", err)
	}
	if out.Scenario != saga.ScenarioPaymentToNewPhone {
		t.Fatalf("scenario = %q, want payment_to_new_phone", out.Scenario)
	}
	if out.Data["phone"] != "7319821062" {
		t.Errorf("phone = %v, want the combined number", out.Data["phone"])
	}
}

func TestDispatchQueries(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	caller, _ := env.repo.CreateAccount(ctx, core.Account{Name: "Chirag", Email: "c@example.com", Balance: core.Money{Paise: 1_200_000}})
	friend, _ := env.repo.CreateAccount(ctx, core.Account{Name: "Niraj"})

	if _, err := transfer.NewExecutor(env.repo, nil).Execute(ctx, caller, friend, core.Money{Paise: 20000}, "1234"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	t.Run("balance", func(t *testing.T) {
		out, err := env.dispatcher(selects(toolCheckBalance, `{}`)).Dispatch(ctx, caller, "what is my balance")
		if err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
		if out.Data["balance_rupees"] != 11800.0 {
			t.Errorf("balance_rupees = %v, want 11800 after the 200 transfer", out.Data["balance_rupees"])
		}
	})

	t.Run("user info", func(t *testing.T) {
		out, err := env.dispatcher(selects(toolUserInfo, `{}`)).Dispatch(ctx, caller, "who am I")
		if err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
		if out.Data["name"] != "Chirag" || out.Data["email"] != "c@example.com" {
			t.Errorf("user info = %v, want name and email", out.Data)
		}
	})

	t.Run("history with total spent", func(t *testing.T) {
		out, err := env.dispatcher(selects(toolTransactionHistory, `{"limit":5}`)).
			Dispatch(ctx, caller, "show my transactions")
		if err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
		if out.Data["count"] != 1 {
			t.Errorf("count = %v, want 1", out.Data["count"])
		}
		if out.Data["total_spent_rupees"] != 200.0 {
			t.Errorf("total_spent_rupees = %v, want 200", out.Data["total_spent_rupees"])
		}
	})

	t.Run("investments", func(t *testing.T) {
		out, err := env.dispatcher(selects(toolQueryInvestments, `{}`)).
			Dispatch(ctx, caller, "how are my investments")
		if err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
		if out.Intent != toolQueryInvestments {
			t.Errorf("intent = %q, want %q", out.Intent, toolQueryInvestments)
		}
		if out.Data["total_invested"] != 0.0 {
			t.Errorf("total_invested = %v, want 0 for a fresh account", out.Data["total_invested"])
		}
	})
}

func TestDispatchSavePhone(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	caller, _ := env.repo.CreateAccount(ctx, core.Account{Name: "Chirag", Balance: core.Money{Paise: 1_200_000}})

	out, err := env.dispatcher(selects(toolSavePhoneOnSignup, `{"phone_number":"9686270688"}`)).
		Dispatch(ctx, caller, "my number is 9686270688")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if out.Scenario != "phone_saved" {
		t.Errorf("scenario = %q, want phone_saved", out.Scenario)
	}
	account, _ := env.repo.GetAccount(ctx, caller)
	if account.Phone != "9686270688" {
		t.Errorf("stored phone = %q, want 9686270688", account.Phone)
	}
}

func TestDispatchLanguageLock(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	caller, _ := env.repo.CreateAccount(ctx, core.Account{Name: "Chirag", Balance: core.Money{Paise: 1_200_000}})
	env.repo.CreateAccount(ctx, core.Account{Name: "Niraj"})

	d := env.dispatcher(selects(toolProcessPayment, `{"recipient":"Niraj","amount":500}`))

	out, err := d.Dispatch(ctx, caller, "Niraj ko 500 bhejo")
	if err != nil {
		t.Fatalf("Dispatch(hindi) error = %v", err)
	}
	if out.Language != "hi" {
		t.Fatalf("language = %q, want hi", out.Language)
	}

	// The lock survives a later English utterance.
	out, err = d.Dispatch(ctx, caller, "send 500 to Niraj")
	if err != nil {
		t.Fatalf("Dispatch(english) error = %v", err)
	}
	if out.Language != "hi" {
		t.Errorf("language after lock = %q, want hi", out.Language)
	}
}
