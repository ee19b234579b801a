package http

import (
	"encoding/json"
	"net/http"

	"voicepay/internal/core"
)

// handleProcessVoice feeds one transcribed utterance to the dispatcher.
// The authenticated account is the session.
func (s *Server) handleProcessVoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusUnprocessableEntity, "empty utterance")
		return
	}

	outcome, err := s.dispatcher.Dispatch(r.Context(), accountIDFromContext(r.Context()), req.Text)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// handlePayment authorizes and executes a transfer the conversation
// prepared. The PIN never travels through the dispatcher.
func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecipientID int64       `json:"recipient_id"`
		Amount      json.Number `json:"amount"`
		PIN         string      `json:"pin"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Parse the decimal text directly to paise; money never rides
	// through a float64 on this path.
	paise, err := core.ParseDecimalToPaise(req.Amount.String())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	amount := core.FromPaise(paise)

	senderID := accountIDFromContext(r.Context())
	newBalance, err := s.transfers.Execute(r.Context(), senderID, req.RecipientID, amount, req.PIN)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"new_balance":  newBalance.Rupees(),
		"amount":       amount.Rupees(),
		"recipient_id": req.RecipientID,
	})
}

func (s *Server) handleInvest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssetType string      `json:"asset_type"`
		Amount    json.Number `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	paise, err := core.ParseDecimalToPaise(req.Amount.String())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	res, err := s.portfolio.Invest(r.Context(), accountIDFromContext(r.Context()), req.AssetType, core.FromPaise(paise))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"asset_type":  res.AssetType,
		"invested":    res.Invested.Rupees(),
		"units":       res.Units,
		"unit_price":  res.UnitPrice,
		"new_balance": res.NewBalance.Rupees(),
	})
}

// handleClearConversation clears the conversation state, including the
// language lock.
func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathAccountID(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := s.machine.Reset(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleSavePhone attaches a phone number to a signed-up account,
// absorbing any placeholder account already holding that number.
func (s *Server) handleSavePhone(w http.ResponseWriter, r *http.Request) {
	id, err := pathAccountID(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var req struct {
		Phone string `json:"phone"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.auth.SavePhoneOnSignup(r.Context(), id, req.Phone)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"linked":      res.Linked,
		"phone":       res.Phone,
		"new_balance": res.NewBalance.Rupees(),
	})
}
