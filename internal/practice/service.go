// Package practice orchestrates "practice again" session creation: it calls
// the backend, seeds the difficulty cache for the new session and validates
// the inheritance before handing control back to navigation.
package practice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/prepdeck/prepdeck/internal/backend"
	"github.com/prepdeck/prepdeck/internal/difficulty"
	"github.com/prepdeck/prepdeck/internal/events"
	"github.com/prepdeck/prepdeck/internal/inherit"
	"github.com/prepdeck/prepdeck/internal/state"
)

var (
	ErrParentSessionRequired = errors.New("parent session id required")
	ErrCreationInProgress    = errors.New("practice session creation already in progress")
)

// Result composes everything the UI needs after a practice session is
// created. Validation failure does not block the session: the caller
// navigates regardless and surfaces the findings as a warning.
type Result struct {
	Session     backend.SessionPayload `json:"session"`
	Inherited   difficulty.Level       `json:"inherited_difficulty"`
	ParentState *state.SessionState    `json:"parent_state"`
	Validation  inherit.Result         `json:"validation"`
}

// Service creates practice sessions derived from a parent session.
type Service struct {
	client backend.Client
	states *state.Manager
	bus    *events.Bus
	logger *slog.Logger

	mu       sync.Mutex
	creating map[string]bool // parent session ids with creation in flight
}

// NewService creates a practice orchestrator. bus may be nil.
func NewService(client backend.Client, states *state.Manager, bus *events.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client:   client,
		states:   states,
		bus:      bus,
		logger:   logger,
		creating: make(map[string]bool),
	}
}

// CreatePracticeSession creates a new practice session inheriting the
// parent's final difficulty. A second concurrent call for the same parent is
// rejected with ErrCreationInProgress, not queued.
func (s *Service) CreatePracticeSession(ctx context.Context, parentSessionID string) (*Result, error) {
	if parentSessionID == "" {
		return nil, ErrParentSessionRequired
	}

	s.mu.Lock()
	if s.creating[parentSessionID] {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: parent %s", ErrCreationInProgress, parentSessionID)
	}
	s.creating[parentSessionID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.creating, parentSessionID)
		s.mu.Unlock()
	}()

	// The parent's state supplies the adjustment context the validator needs
	// when the backend omits parent_session_info. Get never fails; at worst
	// it degrades to a fallback state.
	parentState, err := s.states.Get(ctx, parentSessionID, state.GetOptions{})
	if err != nil {
		return nil, err
	}

	resp, err := s.client.CreatePractice(ctx, parentSessionID)
	if err != nil {
		return nil, fmt.Errorf("create practice session: %w", err)
	}

	if resp.ParentSessionInfo == nil {
		resp.ParentSessionInfo = &backend.ParentSessionInfo{
			InitialDifficulty: parentState.Initial.String(),
			FinalDifficulty:   parentState.EffectiveFinal().String(),
			WasAdjusted:       parentState.HasChanged(),
		}
	}

	inherited := difficulty.Default
	if resp.InheritedSettings != nil && resp.InheritedSettings.DifficultyLevel != nil {
		inherited = difficulty.Normalize(resp.InheritedSettings.DifficultyLevel)
	}

	if resp.Session.ID != "" {
		if _, err := s.states.Seed(resp.Session.ID, inherited); err != nil {
			s.logger.Warn("seed practice session state failed",
				"session_id", resp.Session.ID, "error", err)
		}
	}

	validation := inherit.Validate(resp)
	if !validation.IsValid {
		s.logger.Warn("practice session inheritance validation failed",
			"parent_session_id", parentSessionID,
			"session_id", resp.Session.ID,
			"errors", validation.Errors,
		)
	}

	s.publish(resp.Session.ID, inherited, validation)

	return &Result{
		Session:     resp.Session,
		Inherited:   inherited,
		ParentState: parentState,
		Validation:  validation,
	}, nil
}

func (s *Service) publish(sessionID string, inherited difficulty.Level, validation inherit.Result) {
	if s.bus == nil {
		return
	}
	if validation.IsValid {
		s.bus.Publish(events.NewEvent(events.TypePracticeCreated, sessionID, inherited, "inherited"))
		return
	}
	s.bus.Publish(events.NewEvent(events.TypePracticeCreatedWarning, sessionID, inherited,
		strings.Join(validation.Errors, "; ")))
}
