package http

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
)

// handleGoogleLogin redirects the browser into the Google consent flow.
func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := make([]byte, 16)
	if _, err := rand.Read(state); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	stateToken := hex.EncodeToString(state)

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    stateToken,
		Path:     "/api/auth",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.auth.AuthURL(stateToken), http.StatusTemporaryRedirect)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("oauth_state")
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		writeError(w, http.StatusBadRequest, "oauth state mismatch")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	account, token, err := s.auth.HandleCallback(r.Context(), code)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"account": map[string]any{
			"id":      account.ID,
			"name":    account.Name,
			"email":   account.Email,
			"phone":   account.Phone,
			"picture": account.Picture,
			"balance": account.Balance.Rupees(),
		},
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	account, err := s.storage.GetAccount(r.Context(), accountIDFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      account.ID,
		"name":    account.Name,
		"email":   account.Email,
		"phone":   account.Phone,
		"picture": account.Picture,
		"balance": account.Balance.Rupees(),
	})
}
