package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DirectionDebit      EntryDirection = "debit"
	DirectionCredit     EntryDirection = "credit"
	DirectionInvestment EntryDirection = "investment"
)

const (
	// MatchExact is a case-insensitive whole-name match.
	MatchExact MatchStrategy = "exact"
	// MatchContains is a case-insensitive substring match, alphabetical tie-break.
	MatchContains MatchStrategy = "contains"
	// MatchFuzzyName is a token-order-insensitive similarity match on full names.
	MatchFuzzyName MatchStrategy = "fuzzy_name"
	// MatchFuzzyFirstName is a similarity match on first tokens only.
	MatchFuzzyFirstName MatchStrategy = "fuzzy_first_name"
	// MatchPhone is an exact 10-digit phone number lookup.
	MatchPhone MatchStrategy = "phone"
)

// PhoneDigits is the required length of a complete phone number.
const PhoneDigits = 10

type (
	EntryDirection string

	MatchStrategy string

	// Account holds identity and balance for one wallet. Phone-only
	// accounts are auto-created with a zero balance and a placeholder
	// name until the real owner signs up and claims the number.
	Account struct {
		ID        int64
		Name      string
		Email     string
		Phone     string
		GoogleID  string
		Picture   string
		Balance   Money
		PIN       string
		CreatedAt time.Time
	}

	// LedgerEntry records one side of a money movement. Entries are
	// immutable once written; transfers always write a debit/credit pair.
	LedgerEntry struct {
		ID           int64
		AccountID    int64
		Direction    EntryDirection
		Amount       Money
		Description  string
		Counterparty string
		CreatedAt    time.Time
	}

	// Holding is one portfolio purchase: amount paid, units received and
	// the unit price at purchase time.
	Holding struct {
		ID          int64
		AccountID   int64
		AssetType   string
		Amount      Money
		Units       float64
		UnitPrice   float64
		PurchasedAt time.Time
	}

	// RecipientMatch is the transient result of recipient resolution.
	// Account is nil when nothing matched. Never persisted.
	RecipientMatch struct {
		Account  *Account
		Strategy MatchStrategy
		Score    int
	}
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAuthorizationFailed = errors.New("authorization failed")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidPhoneFormat  = errors.New("invalid phone format")
	ErrSelfTransfer        = errors.New("self transfer")
	ErrPersistenceTimeout  = errors.New("persistence timeout")
	ErrOracleDispatch      = errors.New("oracle dispatch failure")
	ErrPriceUnavailable    = errors.New("market price unavailable")
	ErrUnknownAsset        = errors.New("unknown asset type")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// Found reports whether resolution produced an account.
func (m RecipientMatch) Found() bool {
	return m.Account != nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("empty account name")
	}
	if a.Phone != "" {
		if err := ValidatePhone(a.Phone); err != nil {
			return err
		}
	}
	if a.Balance.Paise < 0 {
		return errors.New("negative balance")
	}
	return nil
}

func (e LedgerEntry) Validate() error {
	if e.AccountID == 0 {
		return errors.New("ledger entry without account")
	}
	switch e.Direction {
	case DirectionDebit, DirectionCredit, DirectionInvestment:
	default:
		return fmt.Errorf("invalid ledger direction %q", e.Direction)
	}
	return e.Amount.Validate()
}

// ValidatePhone requires exactly 10 numeric digits.
func ValidatePhone(phone string) error {
	if len(phone) != PhoneDigits {
		return ErrInvalidPhoneFormat
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return ErrInvalidPhoneFormat
		}
	}
	return nil
}

// DigitsOf strips every non-digit rune. Spoken numbers usually arrive
// from transcription with spaces, commas or dashes left in.
func DigitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PlaceholderName derives the display name used for auto-created
// phone-only accounts.
func PlaceholderName(phone string) string {
	if len(phone) >= 4 {
		return "User " + phone[len(phone)-4:]
	}
	return "User " + phone
}
