package resolver

import (
	"context"
	"errors"
	"testing"

	"voicepay/internal/core"
)

type fakeStore struct {
	accounts []core.Account
}

func (f *fakeStore) ListAccounts(_ context.Context) ([]core.Account, error) {
	return f.accounts, nil
}

func (f *fakeStore) GetAccountByPhone(_ context.Context, phone string) (*core.Account, error) {
	for i := range f.accounts {
		if f.accounts[i].Phone == phone {
			return &f.accounts[i], nil
		}
	}
	return nil, core.ErrAccountNotFound
}

func testRoster() *fakeStore {
	// Alphabetical, matching the storage ordering the tie-break uses.
	return &fakeStore{accounts: []core.Account{
		{ID: 1, Name: "Anuj", Phone: "9686270688"},
		{ID: 3, Name: "Niraj", Phone: "7319821062"},
		{ID: 4, Name: "Rahul Sharma"},
	}}
}

func TestResolveNames(t *testing.T) {
	r := New(testRoster())
	ctx := context.Background()

	tests := []struct {
		name         string
		reference    string
		wantAccount  int64
		wantStrategy core.MatchStrategy
	}{
		{"exact case-insensitive", "niraj", 3, core.MatchExact},
		{"contains", "raj", 3, core.MatchContains},
		{"fuzzy full name typo", "Neeraj", 3, core.MatchFuzzyName},
		{"fuzzy first name typo", "Rahool", 4, core.MatchFuzzyFirstName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.reference, 99)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.reference, err)
			}
			if !got.Match.Found() {
				t.Fatalf("Resolve(%q) found nothing", tt.reference)
			}
			if got.Match.Account.ID != tt.wantAccount {
				t.Errorf("matched account = %d (%s), want %d",
					got.Match.Account.ID, got.Match.Account.Name, tt.wantAccount)
			}
			if got.Match.Strategy != tt.wantStrategy {
				t.Errorf("strategy = %q, want %q", got.Match.Strategy, tt.wantStrategy)
			}
		})
	}

	t.Run("fuzzy scores honor the floors", func(t *testing.T) {
		got, err := r.Resolve(ctx, "Neeraj", 99)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got.Match.Score < fullNameThreshold {
			t.Errorf("fuzzy score = %d, want >= %d", got.Match.Score, fullNameThreshold)
		}
	})

	t.Run("same reference resolves identically", func(t *testing.T) {
		first, err := r.Resolve(ctx, "Neeraj", 99)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		second, err := r.Resolve(ctx, "Neeraj", 99)
		if err != nil {
			t.Fatalf("Resolve() second call error = %v", err)
		}
		if !first.Match.Found() || !second.Match.Found() {
			t.Fatalf("matches = %+v / %+v, want both found", first.Match, second.Match)
		}
		if first.Match.Account.ID != second.Match.Account.ID ||
			first.Match.Strategy != second.Match.Strategy ||
			first.Match.Score != second.Match.Score {
			t.Errorf("repeated resolve diverged: %+v vs %+v", first.Match, second.Match)
		}
	})

	t.Run("no match", func(t *testing.T) {
		got, err := r.Resolve(ctx, "xyz-no-match", 99)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got.Match.Found() || got.Phone != "" || got.PartialDigits != "" {
			t.Errorf("Resolve(no match) = %+v, want empty resolution", got)
		}
	})

	t.Run("self reference is distinct from not found", func(t *testing.T) {
		_, err := r.Resolve(ctx, "Niraj", 3)
		if !errors.Is(err, core.ErrSelfTransfer) {
			t.Errorf("Resolve(self) error = %v, want ErrSelfTransfer", err)
		}
	})

	t.Run("empty roster", func(t *testing.T) {
		empty := New(&fakeStore{})
		got, err := empty.Resolve(ctx, "Niraj", 99)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got.Match.Found() {
			t.Errorf("Resolve(empty roster) = %+v, want not found", got)
		}
	})
}

func TestResolvePhones(t *testing.T) {
	r := New(testRoster())
	ctx := context.Background()

	t.Run("complete known phone", func(t *testing.T) {
		got, err := r.Resolve(ctx, "7319821062", 99)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !got.Match.Found() || got.Match.Account.ID != 3 {
			t.Fatalf("Resolve(known phone) = %+v, want Niraj", got)
		}
		if got.Match.Strategy != core.MatchPhone {
			t.Errorf("strategy = %q, want %q", got.Match.Strategy, core.MatchPhone)
		}
	})

	t.Run("separators stripped", func(t *testing.T) {
		got, err := r.Resolve(ctx, "731 982-1062", 99)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !got.Match.Found() || got.Match.Account.ID != 3 {
			t.Errorf("Resolve(spaced phone) = %+v, want Niraj", got)
		}
	})

	t.Run("complete unknown phone signals auto-create", func(t *testing.T) {
		got, err := r.Resolve(ctx, "9999999999", 99)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got.Match.Found() {
			t.Errorf("Resolve(unknown phone) matched %+v", got.Match)
		}
		if got.Phone != "9999999999" {
			t.Errorf("phone = %q, want the full digits", got.Phone)
		}
	})

	t.Run("own phone is self reference", func(t *testing.T) {
		_, err := r.Resolve(ctx, "7319821062", 3)
		if !errors.Is(err, core.ErrSelfTransfer) {
			t.Errorf("Resolve(own phone) error = %v, want ErrSelfTransfer", err)
		}
	})

	partials := []struct {
		reference  string
		wantDigits string
		wantNeeded int
	}{
		{"731", "731", 7},
		{"98765", "98765", 5},
		{"986862706", "986862706", 1},
	}
	for _, tt := range partials {
		t.Run("partial "+tt.reference, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.reference, 99)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.reference, err)
			}
			if got.PartialDigits != tt.wantDigits || got.DigitsNeeded != tt.wantNeeded {
				t.Errorf("Resolve(%q) = partial %q need %d, want %q need %d",
					tt.reference, got.PartialDigits, got.DigitsNeeded, tt.wantDigits, tt.wantNeeded)
			}
			if got.Match.Found() {
				t.Errorf("partial reference matched an account: %+v", got.Match)
			}
		})
	}

	t.Run("eleven digits is not a phone", func(t *testing.T) {
		got, err := r.Resolve(ctx, "98765432109", 99)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got.Match.Found() || got.Phone != "" || got.PartialDigits != "" {
			t.Errorf("Resolve(11 digits) = %+v, want empty resolution", got)
		}
	})
}

func TestResolveDevanagari(t *testing.T) {
	r := New(&fakeStore{accounts: []core.Account{
		{ID: 2, Name: "Neeraja"},
	}})

	got, err := r.Resolve(context.Background(), "नीरज", 99)
	if err != nil {
		t.Fatalf("Resolve(devanagari) error = %v", err)
	}
	if !got.Match.Found() || got.Match.Account.Name != "Neeraja" {
		t.Errorf("Resolve(devanagari) = %+v, want Neeraja via transliteration", got)
	}
}

func TestTransliterateDevanagari(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple name", "नीरज", "neeraja"},
		{"virama drops inherent vowel", "प्रिया", "priyaa"},
		{"mixed script passes through", "pay नीरज", "pay neeraja"},
		{"plain ascii untouched", "Rahul", "Rahul"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TransliterateDevanagari(tt.in); got != tt.want {
				t.Errorf("TransliterateDevanagari(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
