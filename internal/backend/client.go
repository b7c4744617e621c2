// Package backend is the typed client for the interview-practice backend.
// The backend owns session storage and the adaptive-difficulty computation;
// this package only consumes its contract.
package backend

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnavailable     = errors.New("backend unavailable")
)

// StatusError carries the HTTP status returned by the backend so callers can
// classify failures without parsing error strings.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend error (status %d): %s", e.Code, e.Body)
}

// Client is the consumed backend contract. Difficulty fields are declared as
// `any` because the backend emits heterogeneous representations (ordinal
// numbers, canonical strings, legacy strings); normalization happens in the
// state layer.
type Client interface {
	// DifficultyState fetches the adaptive-difficulty record for a session.
	DifficultyState(ctx context.Context, sessionID string) (*DifficultyStatePayload, error)
	// RecordDifficulty records a manual or adaptive difficulty change.
	RecordDifficulty(ctx context.Context, sessionID string, req RecordDifficultyRequest) error
	// CreatePractice creates a derived "practice again" session.
	CreatePractice(ctx context.Context, sessionID string) (*PracticeCreationResponse, error)
	// Session fetches the plain session record; fallback source when the
	// difficulty-state endpoint is unavailable.
	Session(ctx context.Context, sessionID string) (*SessionPayload, error)
}

// DifficultyStatePayload mirrors GET .../difficulty-state.
type DifficultyStatePayload struct {
	SessionID         string          `json:"session_id"`
	InitialDifficulty any             `json:"initial_difficulty"`
	CurrentDifficulty any             `json:"current_difficulty"`
	FinalDifficulty   any             `json:"final_difficulty,omitempty"`
	Changes           []ChangePayload `json:"changes"`
	LastUpdated       string          `json:"last_updated,omitempty"`
}

// ChangePayload is one recorded difficulty adjustment.
type ChangePayload struct {
	From          any    `json:"from"`
	To            any    `json:"to"`
	Reason        string `json:"reason"`
	QuestionIndex *int   `json:"question_index,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// RecordDifficultyRequest mirrors PUT .../difficulty.
type RecordDifficultyRequest struct {
	Difficulty    string `json:"difficulty"`
	Reason        string `json:"reason"`
	QuestionIndex *int   `json:"question_index,omitempty"`
}

// SessionPayload mirrors GET .../sessions/{id}.
type SessionPayload struct {
	ID                   string `json:"id"`
	DifficultyLevel      any    `json:"difficulty_level"`
	FinalDifficultyLevel any    `json:"final_difficulty_level,omitempty"`
	Status               string `json:"status,omitempty"`
}

// InheritedSettings is the settings block a practice session inherits from
// its parent.
type InheritedSettings struct {
	DifficultyLevel any `json:"difficulty_level"`
}

// ParentSessionInfo summarizes the parent's difficulty history at creation
// time.
type ParentSessionInfo struct {
	InitialDifficulty any  `json:"initial_difficulty"`
	FinalDifficulty   any  `json:"final_difficulty"`
	WasAdjusted       bool `json:"was_adjusted"`
}

// PracticeCreationResponse mirrors POST .../practice-again.
type PracticeCreationResponse struct {
	Session                 SessionPayload     `json:"session"`
	InheritedSettings       *InheritedSettings `json:"inherited_settings"`
	ParentSessionInfo       *ParentSessionInfo `json:"parent_session_info,omitempty"`
	InheritanceVerification map[string]any     `json:"inheritance_verification,omitempty"`
}
