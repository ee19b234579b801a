package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"voicepay/internal/core"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	accountIDKey contextKey = "account_id"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps core sentinel errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, core.ErrAuthorizationFailed):
		writeError(w, http.StatusUnauthorized, "authorization failed")
	case errors.Is(err, core.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, "insufficient funds")
	case errors.Is(err, core.ErrSelfTransfer):
		writeError(w, http.StatusUnprocessableEntity, "cannot pay yourself")
	case errors.Is(err, core.ErrInvalidAmount):
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
	case errors.Is(err, core.ErrInvalidPhoneFormat):
		writeError(w, http.StatusUnprocessableEntity, "invalid phone number")
	case errors.Is(err, core.ErrUnknownAsset):
		writeError(w, http.StatusUnprocessableEntity, "unknown asset type")
	case errors.Is(err, core.ErrPriceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "market price unavailable")
	case errors.Is(err, core.ErrPersistenceTimeout):
		writeError(w, http.StatusServiceUnavailable, "storage busy, try again")
	default:
		slog.ErrorContext(r.Context(), "Unhandled request error",
			"error", err, "url", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// requireAuth validates the bearer token and stores the account id on
// the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		accountID, err := s.auth.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), accountIDKey, accountID)
		next(w, r.WithContext(ctx))
	}
}

func accountIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(accountIDKey).(int64)
	return id
}

// pathAccountID reads the {id} path segment and checks it against the
// authenticated account. Tokens only open their own data.
func pathAccountID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid account id: %w", err)
	}
	if id != accountIDFromContext(r.Context()) {
		return 0, core.ErrAuthorizationFailed
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
