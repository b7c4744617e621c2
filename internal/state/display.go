package state

import "github.com/prepdeck/prepdeck/internal/difficulty"

// Display is the full presentation view of a session's difficulty state,
// derived on demand and never stored.
type Display struct {
	Current     difficulty.DisplayInfo  `json:"current"`
	Initial     difficulty.DisplayInfo  `json:"initial"`
	Final       *difficulty.DisplayInfo `json:"final,omitempty"`
	HasChanged  bool                    `json:"has_changed"`
	IsCompleted bool                    `json:"is_completed"`
	ChangeCount int                     `json:"change_count"`
	IsFallback  bool                    `json:"is_fallback"`
}

// Display derives the presentation view for all facets of the state.
func (s *SessionState) Display() Display {
	d := Display{
		Current:     difficulty.Format(s.Current),
		Initial:     difficulty.Format(s.Initial),
		HasChanged:  s.HasChanged(),
		IsCompleted: s.IsCompleted(),
		ChangeCount: s.ChangeCount(),
		IsFallback:  s.IsFallback,
	}
	if s.Final != nil {
		f := difficulty.Format(*s.Final)
		d.Final = &f
	}
	return d
}

// Direction summarizes the net movement of a session's difficulty.
type Direction string

const (
	DirectionFlat Direction = "flat"
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Summary is the derived read model used by the session-summary surface and
// by practice-session creation (parent context).
type Summary struct {
	SessionID   string            `json:"session_id"`
	Initial     difficulty.Level  `json:"initial_difficulty"`
	Current     difficulty.Level  `json:"current_difficulty"`
	Final       *difficulty.Level `json:"final_difficulty,omitempty"`
	ChangeCount int               `json:"change_count"`
	Direction   Direction         `json:"direction"`
	WasAdjusted bool              `json:"was_adjusted"`
}

// Summarize derives the summary read model.
func (s *SessionState) Summarize() Summary {
	sum := Summary{
		SessionID:   s.SessionID,
		Initial:     s.Initial,
		Current:     s.Current,
		Final:       s.Final,
		ChangeCount: s.ChangeCount(),
		WasAdjusted: s.HasChanged(),
		Direction:   DirectionFlat,
	}
	switch {
	case s.Current > s.Initial:
		sum.Direction = DirectionUp
	case s.Current < s.Initial:
		sum.Direction = DirectionDown
	}
	return sum
}
