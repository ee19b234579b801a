// Package resolver maps a spoken recipient reference to an account.
//
// References arrive from speech transcription, so the matching chain has
// to absorb typos ("Neeraj" for "Niraj"), partial names, Devanagari
// script and phone numbers read out loud with gaps or separators. Tiers
// run in order and the first success wins.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"voicepay/internal/core"
)

// Similarity floors, on the 0-100 scale the scorers return.
const (
	fullNameThreshold  = 65
	firstNameThreshold = 60
)

type Store interface {
	ListAccounts(ctx context.Context) ([]core.Account, error)
	GetAccountByPhone(ctx context.Context, phone string) (*core.Account, error)
}

type Resolver struct {
	store Store
}

func New(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolution is the outcome of one resolve call. Exactly one of three
// shapes comes back: a match, a complete phone with no owner yet
// (Phone set, Match empty), or a partial phone needing continuation
// (PartialDigits set). All empty means not found.
type Resolution struct {
	Match core.RecipientMatch

	// Phone is set when the reference was a complete 10-digit number,
	// whether or not an account owns it. An unowned phone is the signal
	// to auto-create a placeholder account.
	Phone string

	// PartialDigits and DigitsNeeded are set when the reference was
	// numeric but short of 10 digits.
	PartialDigits string
	DigitsNeeded  int
}

// Resolve maps a reference to an account, excluding the caller's own.
// A resolved account equal to excludeID fails with ErrSelfTransfer,
// which is distinct from not-found.
func (r *Resolver) Resolve(ctx context.Context, reference string, excludeID int64) (Resolution, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return Resolution{}, nil
	}

	digits := core.DigitsOf(ref)
	if isPhoneIntent(ref, digits) {
		return r.resolvePhone(ctx, digits, excludeID)
	}

	// Devanagari references get a romanized second try against the
	// roster, which stores Roman-script names.
	match, err := r.resolveName(ctx, ref, excludeID)
	if err != nil {
		return Resolution{}, err
	}
	if !match.Found() {
		if roman := TransliterateDevanagari(ref); roman != ref {
			match, err = r.resolveName(ctx, roman, excludeID)
			if err != nil {
				return Resolution{}, err
			}
		}
	}
	return Resolution{Match: match}, nil
}

// isPhoneIntent decides whether a reference is an attempt at a phone
// number. Any digits in a reference that is otherwise only separators
// count, as does a longer digit run embedded in stray transcription.
func isPhoneIntent(ref, digits string) bool {
	if digits == "" {
		return false
	}
	if len(digits) >= 5 && len(digits) <= core.PhoneDigits {
		return true
	}
	for _, r := range ref {
		switch {
		case r >= '0' && r <= '9':
		case r == ' ' || r == '-' || r == '+' || r == '(' || r == ')' || r == '.' || r == ',':
		default:
			return false
		}
	}
	return len(digits) <= core.PhoneDigits
}

func (r *Resolver) resolvePhone(ctx context.Context, digits string, excludeID int64) (Resolution, error) {
	if len(digits) < core.PhoneDigits {
		return Resolution{
			PartialDigits: digits,
			DigitsNeeded:  core.PhoneDigits - len(digits),
		}, nil
	}

	account, err := r.store.GetAccountByPhone(ctx, digits)
	if err != nil && !isNotFound(err) {
		return Resolution{}, fmt.Errorf("resolve phone: %w", err)
	}
	if account == nil {
		return Resolution{Phone: digits}, nil
	}
	if account.ID == excludeID {
		return Resolution{}, core.ErrSelfTransfer
	}
	return Resolution{
		Phone: digits,
		Match: core.RecipientMatch{Account: account, Strategy: core.MatchPhone, Score: 100},
	}, nil
}

// resolveName runs the four name tiers against the full roster.
func (r *Resolver) resolveName(ctx context.Context, ref string, excludeID int64) (core.RecipientMatch, error) {
	accounts, err := r.store.ListAccounts(ctx)
	if err != nil {
		return core.RecipientMatch{}, fmt.Errorf("resolve name: %w", err)
	}
	if len(accounts) == 0 {
		return core.RecipientMatch{}, nil
	}

	lower := strings.ToLower(ref)

	// Tier 1: exact, case-insensitive.
	for i := range accounts {
		if strings.EqualFold(accounts[i].Name, ref) {
			return r.accept(&accounts[i], core.MatchExact, 100, excludeID)
		}
	}

	// Tier 2: substring. The roster arrives alphabetically sorted, so
	// the first hit is the deterministic tie-break.
	for i := range accounts {
		if strings.Contains(strings.ToLower(accounts[i].Name), lower) {
			return r.accept(&accounts[i], core.MatchContains, 100, excludeID)
		}
	}

	// Tier 3: token-order-insensitive similarity on full names.
	var best *core.Account
	bestScore := 0
	for i := range accounts {
		score := fuzzy.TokenSortRatio(lower, strings.ToLower(accounts[i].Name))
		if score > bestScore {
			best, bestScore = &accounts[i], score
		}
	}
	if best != nil && bestScore >= fullNameThreshold {
		return r.accept(best, core.MatchFuzzyName, bestScore, excludeID)
	}

	// Tier 4: first tokens only, keeping the higher of a full-string
	// ratio and a substring-tolerant ratio.
	best, bestScore = nil, 0
	for i := range accounts {
		first := strings.ToLower(strings.Fields(accounts[i].Name)[0])
		score := fuzzy.Ratio(lower, first)
		if partial := fuzzy.PartialRatio(lower, first); partial > score {
			score = partial
		}
		if score > bestScore {
			best, bestScore = &accounts[i], score
		}
	}
	if best != nil && bestScore >= firstNameThreshold {
		return r.accept(best, core.MatchFuzzyFirstName, bestScore, excludeID)
	}

	return core.RecipientMatch{}, nil
}

func (r *Resolver) accept(account *core.Account, strategy core.MatchStrategy, score int, excludeID int64) (core.RecipientMatch, error) {
	if account.ID == excludeID {
		return core.RecipientMatch{}, core.ErrSelfTransfer
	}
	return core.RecipientMatch{Account: account, Strategy: strategy, Score: score}, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, core.ErrAccountNotFound)
}
