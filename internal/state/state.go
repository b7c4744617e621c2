// Package state owns the per-session adaptive-difficulty records: the cached
// entity, its invariants and the manager that keeps it coherent.
package state

import (
	"time"

	"github.com/google/uuid"

	"github.com/prepdeck/prepdeck/internal/backend"
	"github.com/prepdeck/prepdeck/internal/difficulty"
)

// FallbackReason tags why a degraded state was synthesized instead of fetched
// from the difficulty-state endpoint.
type FallbackReason string

const (
	FallbackNone            FallbackReason = ""
	FallbackServerError     FallbackReason = "server_error"
	FallbackSessionNotFound FallbackReason = "session_not_found"
)

// ChangeRecord is one difficulty adjustment within a session. Records are
// append-only and ordered by timestamp.
type ChangeRecord struct {
	ID            string           `json:"id"`
	From          difficulty.Level `json:"from"`
	To            difficulty.Level `json:"to"`
	Reason        string           `json:"reason"`
	QuestionIndex *int             `json:"question_index,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// SessionState is the difficulty record for one practice session.
//
// Invariants:
//   - Current equals the last change's To when Changes is non-empty,
//     otherwise it equals Initial.
//   - Final is nil while the session is active; once set it is immutable.
//   - Changes is only ever appended to.
//
// The Manager is the sole writer; everything handed out is a deep copy.
type SessionState struct {
	SessionID      string            `json:"session_id"`
	Initial        difficulty.Level  `json:"initial_difficulty"`
	Current        difficulty.Level  `json:"current_difficulty"`
	Final          *difficulty.Level `json:"final_difficulty,omitempty"`
	Changes        []ChangeRecord    `json:"changes"`
	LastUpdated    time.Time         `json:"last_updated"`
	IsFallback     bool              `json:"is_fallback"`
	FallbackReason FallbackReason    `json:"fallback_reason,omitempty"`
}

// NewSessionState creates a fresh active state with no recorded changes.
func NewSessionState(sessionID string, initial difficulty.Level) *SessionState {
	if !initial.Valid() {
		initial = difficulty.Normalize(initial)
	}
	return &SessionState{
		SessionID:   sessionID,
		Initial:     initial,
		Current:     initial,
		Changes:     []ChangeRecord{},
		LastUpdated: time.Now(),
	}
}

// Clone returns a deep copy. Consumers must never mutate cached entries, so
// the manager only ever hands out clones.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	out := *s
	out.Changes = make([]ChangeRecord, len(s.Changes))
	copy(out.Changes, s.Changes)
	if s.Final != nil {
		f := *s.Final
		out.Final = &f
	}
	for i, c := range s.Changes {
		if c.QuestionIndex != nil {
			idx := *c.QuestionIndex
			out.Changes[i].QuestionIndex = &idx
		}
	}
	return &out
}

// HasChanged reports whether the session ever moved off its initial level.
func (s *SessionState) HasChanged() bool {
	return len(s.Changes) > 0 || s.Current != s.Initial
}

// IsCompleted reports whether the session's final difficulty was recorded.
func (s *SessionState) IsCompleted() bool {
	return s.Final != nil
}

// ChangeCount returns the number of recorded adjustments.
func (s *SessionState) ChangeCount() int {
	return len(s.Changes)
}

// EffectiveFinal is the difficulty a child session should inherit: the final
// level when recorded, otherwise the current one.
func (s *SessionState) EffectiveFinal() difficulty.Level {
	if s.Final != nil {
		return *s.Final
	}
	return s.Current
}

// appendChange records an adjustment and keeps Current consistent with it.
func (s *SessionState) appendChange(to difficulty.Level, reason string, questionIndex *int) ChangeRecord {
	rec := ChangeRecord{
		ID:            uuid.New().String(),
		From:          s.Current,
		To:            to,
		Reason:        reason,
		QuestionIndex: questionIndex,
		Timestamp:     time.Now(),
	}
	s.Changes = append(s.Changes, rec)
	s.Current = to
	s.LastUpdated = rec.Timestamp
	return rec
}

// fromPayload normalizes a backend difficulty-state payload into a
// SessionState. Every difficulty representation passes through Normalize, so
// construction is total.
func fromPayload(sessionID string, payload *backend.DifficultyStatePayload) *SessionState {
	st := NewSessionState(sessionID, difficulty.Normalize(payload.InitialDifficulty))
	st.Current = difficulty.Normalize(payload.CurrentDifficulty)
	if payload.FinalDifficulty != nil {
		f := difficulty.Normalize(payload.FinalDifficulty)
		st.Final = &f
	}
	for _, c := range payload.Changes {
		ts, err := time.Parse(time.RFC3339, c.Timestamp)
		if err != nil {
			ts = time.Now()
		}
		st.Changes = append(st.Changes, ChangeRecord{
			ID:            uuid.New().String(),
			From:          difficulty.Normalize(c.From),
			To:            difficulty.Normalize(c.To),
			Reason:        c.Reason,
			QuestionIndex: c.QuestionIndex,
			Timestamp:     ts,
		})
	}
	// The payload is authoritative but may be internally inconsistent;
	// re-derive Current from the change list when one exists.
	if n := len(st.Changes); n > 0 {
		st.Current = st.Changes[n-1].To
	}
	if ts, err := time.Parse(time.RFC3339, payload.LastUpdated); err == nil {
		st.LastUpdated = ts
	}
	return st
}

// newFallbackState synthesizes a degraded state when the difficulty-state
// endpoint cannot be reached.
func newFallbackState(sessionID string, level difficulty.Level, reason FallbackReason) *SessionState {
	st := NewSessionState(sessionID, level)
	st.IsFallback = true
	st.FallbackReason = reason
	return st
}
