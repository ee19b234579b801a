package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voicepay/internal/core"
)

// sessionContext is the serialized form of the step payload. Only the
// field matching the step is ever populated, so a stale payload from an
// earlier step can never leak into a later one.
type sessionContext struct {
	Pending    *core.PendingPayment    `json:"pending,omitempty"`
	Confirming *core.PhoneConfirmation `json:"confirming,omitempty"`
	Partial    *core.PartialPhone      `json:"partial,omitempty"`
}

// SaveSessionState replaces the session's state in a single upsert.
// There is never a window where the session has no row or two rows.
func (r *SQLiteRepository) SaveSessionState(ctx context.Context, s core.SessionState) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validate session state: %w", err)
	}

	payload, err := json.Marshal(sessionContext{
		Pending:    s.Pending,
		Confirming: s.Confirming,
		Partial:    s.Partial,
	})
	if err != nil {
		return fmt.Errorf("marshal session context: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO session_states (session_id, step, language, context, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			step = excluded.step,
			language = excluded.language,
			context = excluded.context,
			updated_at = excluded.updated_at`,
		s.SessionID, string(s.Step), s.Language, string(payload), time.Now().UTC())
	if err != nil {
		return wrapErr("save session state", err)
	}

	slog.InfoContext(ctx, "Session state saved",
		"session_id", s.SessionID,
		"step", string(s.Step),
		"language", s.Language)

	return nil
}

// GetSessionState returns the session's state, or nil when the session
// has none yet.
func (r *SQLiteRepository) GetSessionState(ctx context.Context, sessionID int64) (*core.SessionState, error) {
	var (
		s       core.SessionState
		step    string
		payload string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT session_id, step, language, context, updated_at
		FROM session_states WHERE session_id = ?`, sessionID).
		Scan(&s.SessionID, &step, &s.Language, &payload, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get session state", err)
	}
	s.Step = core.SagaStep(step)

	var sc sessionContext
	if err := json.Unmarshal([]byte(payload), &sc); err != nil {
		return nil, fmt.Errorf("unmarshal session context: %w", err)
	}
	// Decode only the payload the step owns so stray fields in a stored
	// context blob cannot resurrect an abandoned saga.
	switch s.Step {
	case core.StepAwaitingPhoneResponse, core.StepAwaitingPhoneDigits:
		s.Pending = sc.Pending
	case core.StepConfirmingPhone:
		s.Confirming = sc.Confirming
	case core.StepAwaitingRemainingDigits:
		s.Partial = sc.Partial
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("stored session state invalid: %w", err)
	}
	return &s, nil
}

// ClearSessionState removes the session's state entirely, dropping the
// language lock along with any in-flight saga.
func (r *SQLiteRepository) ClearSessionState(ctx context.Context, sessionID int64) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM session_states WHERE session_id = ?", sessionID)
	return wrapErr("clear session state", err)
}
