package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prepdeck/prepdeck/internal/backend"
	"github.com/prepdeck/prepdeck/internal/difficulty"
	"github.com/prepdeck/prepdeck/internal/events"
)

var (
	ErrSessionIDRequired = errors.New("session id required")
	ErrSessionFinalized  = errors.New("session already finalized")
)

// History persists difficulty states and their change records for audit and
// warm starts. Implementations must tolerate repeated saves of the same state.
type History interface {
	SaveState(st *SessionState) error
	AppendChange(sessionID string, rec ChangeRecord) error
}

// inflight is the memoized future for one session's pending fetch. Every
// concurrent caller waits on done and reads the same settled state.
type inflight struct {
	done  chan struct{}
	state *SessionState
}

// Manager is the difficulty state cache. It is the sole writer of cached
// entries; all reads return deep copies. Fetches are de-duplicated per
// session id, and fetch failures degrade to a tagged fallback state instead
// of surfacing transport errors.
type Manager struct {
	client  backend.Client
	bus     *events.Bus
	history History
	logger  *slog.Logger

	mu       sync.Mutex
	gen      int // bumped on Clear so in-flight settles don't repopulate
	cache    map[string]*SessionState
	inflight map[string]*inflight
}

// NewManager creates a state manager. bus may be nil (no notifications),
// history may be nil (no persistence).
func NewManager(client backend.Client, bus *events.Bus, history History, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		client:   client,
		bus:      bus,
		history:  history,
		logger:   logger,
		cache:    make(map[string]*SessionState),
		inflight: make(map[string]*inflight),
	}
}

// GetOptions controls cache behavior of Get.
type GetOptions struct {
	// ForceRefresh bypasses the cached entry and any shared in-flight fetch.
	ForceRefresh bool
}

// Get returns the difficulty state for a session. Cache hits return a deep
// copy. On a miss, concurrent callers for the same session share a single
// backend fetch. Transport failures never surface: the result degrades to a
// fallback state tagged with the failure reason. The only returned error is
// the programmer error of a missing session id.
func (m *Manager) Get(ctx context.Context, sessionID string, opts GetOptions) (*SessionState, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}

	m.mu.Lock()
	if !opts.ForceRefresh {
		if st, ok := m.cache[sessionID]; ok {
			m.mu.Unlock()
			return st.Clone(), nil
		}
		if fl, ok := m.inflight[sessionID]; ok {
			m.mu.Unlock()
			<-fl.done
			return fl.state.Clone(), nil
		}
	}

	fl := &inflight{done: make(chan struct{})}
	m.inflight[sessionID] = fl
	gen := m.gen
	m.mu.Unlock()

	st := m.fetch(ctx, sessionID)

	m.mu.Lock()
	if m.gen == gen {
		m.cache[sessionID] = st
	}
	if m.inflight[sessionID] == fl {
		delete(m.inflight, sessionID)
	}
	m.mu.Unlock()

	fl.state = st
	close(fl.done)

	return st.Clone(), nil
}

// fetch resolves a session state from the backend, degrading through the
// fallback tiers on failure. It always returns a usable state.
func (m *Manager) fetch(ctx context.Context, sessionID string) *SessionState {
	payload, err := m.client.DifficultyState(ctx, sessionID)
	if err == nil {
		st := fromPayload(sessionID, payload)
		m.persistState(st)
		return st
	}

	m.logger.Warn("difficulty state fetch failed, falling back to session record",
		"session_id", sessionID, "error", err)

	sess, serr := m.client.Session(ctx, sessionID)
	if serr == nil {
		st := newFallbackState(sessionID, difficulty.Normalize(sess.DifficultyLevel), FallbackServerError)
		if sess.FinalDifficultyLevel != nil {
			f := difficulty.Normalize(sess.FinalDifficultyLevel)
			st.Final = &f
		}
		return st
	}

	reason := FallbackServerError
	if errors.Is(serr, backend.ErrSessionNotFound) {
		reason = FallbackSessionNotFound
	}
	m.logger.Error("session fallback fetch failed, using default difficulty",
		"session_id", sessionID, "reason", string(reason), "error", serr)
	return newFallbackState(sessionID, difficulty.Default, reason)
}

// UpdateOptions carries optional context for a difficulty change.
type UpdateOptions struct {
	QuestionIndex *int
}

// Update records a difficulty change: it is sent to the backend first, then
// appended to the cached entry, persisted and broadcast. Updating a session
// whose final difficulty is already recorded fails with ErrSessionFinalized.
func (m *Manager) Update(ctx context.Context, sessionID string, newLevel difficulty.Level, reason string, opts UpdateOptions) (*SessionState, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	newLevel = difficulty.Normalize(newLevel)

	// Ensure the session has a cache entry so the change has a base state.
	current, err := m.Get(ctx, sessionID, GetOptions{})
	if err != nil {
		return nil, err
	}
	if current.IsCompleted() {
		return nil, fmt.Errorf("%w: %s", ErrSessionFinalized, sessionID)
	}

	if err := m.client.RecordDifficulty(ctx, sessionID, backend.RecordDifficultyRequest{
		Difficulty:    newLevel.String(),
		Reason:        reason,
		QuestionIndex: opts.QuestionIndex,
	}); err != nil {
		return nil, fmt.Errorf("record difficulty: %w", err)
	}

	return m.applyChange(sessionID, newLevel, reason, opts.QuestionIndex)
}

// ApplyRemoteChange applies a change the adaptive engine already recorded on
// the backend (delivered as a push event), without re-sending it.
func (m *Manager) ApplyRemoteChange(sessionID string, newLevel difficulty.Level, reason string, questionIndex *int) (*SessionState, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	return m.applyChange(sessionID, difficulty.Normalize(newLevel), reason, questionIndex)
}

func (m *Manager) applyChange(sessionID string, newLevel difficulty.Level, reason string, questionIndex *int) (*SessionState, error) {
	m.mu.Lock()
	st, ok := m.cache[sessionID]
	if !ok {
		// Entry evicted between the backend call and the merge; create a
		// minimal base so the change is not lost.
		st = NewSessionState(sessionID, newLevel)
		m.cache[sessionID] = st
	}
	if st.IsCompleted() {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionFinalized, sessionID)
	}
	rec := st.appendChange(newLevel, reason, questionIndex)
	out := st.Clone()
	m.mu.Unlock()

	// Snapshot first: the change record references the session row, and a
	// recorded change makes the session auditable even when the base state
	// was a fallback.
	if m.history != nil {
		if err := m.history.SaveState(out); err != nil {
			m.logger.Warn("persist session state failed", "session_id", sessionID, "error", err)
		} else if err := m.history.AppendChange(sessionID, rec); err != nil {
			m.logger.Warn("persist change record failed", "session_id", sessionID, "error", err)
		}
	}

	if m.bus != nil {
		m.bus.Publish(events.NewEvent(events.TypeDifficultyChanged, sessionID, newLevel, reason))
	}
	return out, nil
}

// Seed installs a fresh state for a newly created session, replacing any
// previous entry. Used when a practice session inherits its parent's level.
func (m *Manager) Seed(sessionID string, initial difficulty.Level) (*SessionState, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	st := NewSessionState(sessionID, difficulty.Normalize(initial))

	m.mu.Lock()
	m.cache[sessionID] = st
	out := st.Clone()
	m.mu.Unlock()

	m.persistState(out)
	return out, nil
}

// Restore installs a persisted state into the cache without overwriting a
// live entry. Used to warm-start display data from history after a daemon
// restart; restored entries serve reads until a refresh replaces them.
func (m *Manager) Restore(st *SessionState) {
	if st == nil || st.SessionID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cache[st.SessionID]; ok {
		return
	}
	m.cache[st.SessionID] = st.Clone()
}

// Peek returns the cached state without fetching, or nil when absent.
func (m *Manager) Peek(sessionID string) *SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.cache[sessionID]; ok {
		return st.Clone()
	}
	return nil
}

// Refresh evicts the cached entry and in-flight marker for a session, then
// performs a forced fetch.
func (m *Manager) Refresh(ctx context.Context, sessionID string) (*SessionState, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	m.mu.Lock()
	delete(m.cache, sessionID)
	delete(m.inflight, sessionID)
	m.mu.Unlock()

	return m.Get(ctx, sessionID, GetOptions{ForceRefresh: true})
}

// Clear evicts every cached entry (logout). Fetches that are still in flight
// settle for their waiters but do not repopulate the cache. Persisted history
// is untouched.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.gen++
	m.cache = make(map[string]*SessionState)
	m.inflight = make(map[string]*inflight)
	m.mu.Unlock()
}

// Size returns the number of cached entries.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}

func (m *Manager) persistState(st *SessionState) {
	if m.history == nil || st.IsFallback {
		return
	}
	if err := m.history.SaveState(st); err != nil {
		m.logger.Warn("persist session state failed", "session_id", st.SessionID, "error", err)
	}
}
