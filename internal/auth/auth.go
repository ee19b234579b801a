// Package auth handles Google sign-in and the JWT bearer tokens the
// HTTP API accepts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"voicepay/internal/core"
	"voicepay/internal/storage"
)

// signupBalancePaise is the starting balance credited to accounts
// created through Google sign-in. Phone-only placeholders start at zero.
const signupBalancePaise = 1_200_000

type Config struct {
	GoogleClientID     string
	GoogleClientSecret string
	RedirectURL        string
	JWTSecret          string
	TokenTTL           time.Duration
}

type Service struct {
	storage   *storage.SQLiteRepository
	oauth     *oauth2.Config
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewService(storage *storage.SQLiteRepository, cfg Config) *Service {
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Service{
		storage: storage,
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		jwtSecret: []byte(cfg.JWTSecret),
		tokenTTL:  ttl,
	}
}

// AuthURL is where the frontend sends the user to start Google sign-in.
func (s *Service) AuthURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// HandleCallback exchanges the authorization code, reads the Google
// profile and returns the matching account plus a signed API token.
// First-time users get an account with the signup balance.
func (s *Service) HandleCallback(ctx context.Context, code string) (*core.Account, string, error) {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("exchange authorization code: %w", err)
	}

	svc, err := googleoauth.NewService(ctx, option.WithTokenSource(s.oauth.TokenSource(ctx, token)))
	if err != nil {
		return nil, "", fmt.Errorf("build userinfo service: %w", err)
	}
	info, err := svc.Userinfo.Get().Do()
	if err != nil {
		return nil, "", fmt.Errorf("fetch userinfo: %w", err)
	}

	account, err := s.getOrCreateGoogleAccount(ctx, info)
	if err != nil {
		return nil, "", err
	}

	apiToken, err := s.IssueToken(account.ID)
	if err != nil {
		return nil, "", err
	}
	return account, apiToken, nil
}

func (s *Service) getOrCreateGoogleAccount(ctx context.Context, info *googleoauth.Userinfo) (*core.Account, error) {
	if account, err := s.storage.GetAccountByGoogleID(ctx, info.Id); err == nil {
		return account, nil
	} else if !errors.Is(err, core.ErrAccountNotFound) {
		return nil, err
	}

	// Returning user who predates Google linkage, matched by email.
	if account, err := s.storage.GetAccountByEmail(ctx, info.Email); err == nil {
		if err := s.storage.UpdateAccountGoogle(ctx, account.ID, info.Id, info.Picture); err != nil {
			return nil, err
		}
		return s.storage.GetAccount(ctx, account.ID)
	} else if !errors.Is(err, core.ErrAccountNotFound) {
		return nil, err
	}

	id, err := s.storage.CreateAccount(ctx, core.Account{
		Name:     info.Name,
		Email:    info.Email,
		GoogleID: info.Id,
		Picture:  info.Picture,
		Balance:  core.Money{Paise: signupBalancePaise},
	})
	if err != nil {
		return nil, fmt.Errorf("create account from google profile: %w", err)
	}

	slog.InfoContext(ctx, "Created account from Google sign-in",
		"account_id", id, "email", info.Email)

	return s.storage.GetAccount(ctx, id)
}

// IssueToken signs a bearer token for the account.
func (s *Service) IssueToken(accountID int64) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(accountID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a bearer token and returns the account id it
// was issued for.
func (s *Service) VerifyToken(tokenString string) (int64, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.jwtSecret, nil
		})
	if err != nil || !parsed.Valid {
		return 0, fmt.Errorf("%w: %v", core.ErrAuthorizationFailed, err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return 0, core.ErrAuthorizationFailed
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", core.ErrAuthorizationFailed)
	}
	return id, nil
}

// LinkResult reports what happened when a phone number was claimed at
// signup.
type LinkResult struct {
	Linked     bool
	Phone      string
	NewBalance core.Money
}

// SavePhoneOnSignup records a phone number for a signed-up account. If
// a placeholder account already owns that number, its balance and
// history move into this account and the placeholder is deleted.
func (s *Service) SavePhoneOnSignup(ctx context.Context, accountID int64, rawPhone string) (LinkResult, error) {
	phone := core.DigitsOf(rawPhone)
	if err := core.ValidatePhone(phone); err != nil {
		return LinkResult{}, err
	}

	existing, err := s.storage.GetAccountByPhone(ctx, phone)
	if err != nil && !errors.Is(err, core.ErrAccountNotFound) {
		return LinkResult{}, err
	}

	if existing != nil && existing.ID != accountID {
		if err := s.storage.LinkAccounts(ctx, accountID, existing.ID); err != nil {
			return LinkResult{}, fmt.Errorf("link placeholder account: %w", err)
		}
	}
	if err := s.storage.UpdateAccountPhone(ctx, accountID, phone); err != nil {
		return LinkResult{}, err
	}

	account, err := s.storage.GetAccount(ctx, accountID)
	if err != nil {
		return LinkResult{}, err
	}
	return LinkResult{
		Linked:     existing != nil && existing.ID != accountID,
		Phone:      phone,
		NewBalance: account.Balance,
	}, nil
}
