package core

import (
	"errors"
	"testing"
)

func TestValidatePhone(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"9686270688", true},
		{"968627068", false},  // 9 digits
		{"96862706881", false}, // 11 digits
		{"96862a0688", false},
		{"", false},
	}
	for _, tc := range cases {
		err := ValidatePhone(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("ValidatePhone(%q) unexpected error: %v", tc.in, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidPhoneFormat) {
			t.Fatalf("ValidatePhone(%q) expected ErrInvalidPhoneFormat, got %v", tc.in, err)
		}
	}
}

func TestDigitsOf(t *testing.T) {
	cases := []struct {
		in, out string
	}{
		{"9686270688", "9686270688"},
		{"96862 70688", "9686270688"},
		{"7, 3, 1", "731"},
		{"pay Anuj", ""},
	}
	for _, tc := range cases {
		if got := DigitsOf(tc.in); got != tc.out {
			t.Fatalf("DigitsOf(%q) = %q, want %q", tc.in, got, tc.out)
		}
	}
}

func TestPlaceholderName(t *testing.T) {
	if got := PlaceholderName("9686270688"); got != "User 0688" {
		t.Fatalf("PlaceholderName = %q", got)
	}
}

func TestAccountValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		a := Account{Name: "Niraj", Balance: Money{Paise: 100}}
		if err := a.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	t.Run("bad phone", func(t *testing.T) {
		a := Account{Name: "Niraj", Phone: "123"}
		if err := a.Validate(); !errors.Is(err, ErrInvalidPhoneFormat) {
			t.Fatalf("expected ErrInvalidPhoneFormat, got %v", err)
		}
	})
	t.Run("negative balance", func(t *testing.T) {
		a := Account{Name: "Niraj", Balance: Money{Paise: -1}}
		if err := a.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestLedgerEntryValidate(t *testing.T) {
	e := LedgerEntry{AccountID: 1, Direction: DirectionDebit, Amount: Money{Paise: 100}}
	if err := e.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e.Direction = "refund"
	if err := e.Validate(); err == nil {
		t.Fatal("expected error for unknown direction")
	}
}

func TestSessionStateValidate(t *testing.T) {
	pending := &PendingPayment{RecipientLabel: "anuj", Amount: Money{Paise: 50000}}

	cases := []struct {
		name  string
		state SessionState
		ok    bool
	}{
		{"active bare", SessionState{SessionID: 1, Step: StepActive, Language: "hi"}, true},
		{"awaiting response", SessionState{SessionID: 1, Step: StepAwaitingPhoneResponse, Pending: pending}, true},
		{"awaiting digits", SessionState{SessionID: 1, Step: StepAwaitingPhoneDigits, Pending: pending}, true},
		{"confirming", SessionState{SessionID: 1, Step: StepConfirmingPhone, Confirming: &PhoneConfirmation{Phone: "9686270688", Amount: Money{Paise: 100}}}, true},
		{"remaining digits", SessionState{SessionID: 1, Step: StepAwaitingRemainingDigits, Partial: &PartialPhone{Digits: "731", Amount: Money{Paise: 100}, DigitsNeeded: 7}}, true},
		{"missing payload", SessionState{SessionID: 1, Step: StepConfirmingPhone}, false},
		{"stale payload", SessionState{SessionID: 1, Step: StepActive, Pending: pending}, false},
		{"mixed payloads", SessionState{SessionID: 1, Step: StepAwaitingPhoneDigits, Pending: pending, Partial: &PartialPhone{}}, false},
		{"unknown step", SessionState{SessionID: 1, Step: "teleporting"}, false},
		{"no session", SessionState{Step: StepActive}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.state.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
