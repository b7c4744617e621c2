// Package render replaces the original client's direct DOM queries with a
// registration interface: UI bindings subscribe per session id and are
// re-rendered with fresh display data whenever that session's difficulty
// changes.
package render

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prepdeck/prepdeck/internal/events"
	"github.com/prepdeck/prepdeck/internal/state"
)

// Renderer is a UI element bound to one session's difficulty display.
type Renderer interface {
	Render(sessionID string, display state.Display)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(sessionID string, display state.Display)

func (f RendererFunc) Render(sessionID string, display state.Display) {
	f(sessionID, display)
}

type binding struct {
	renderer Renderer
	removed  bool
}

// Registry keeps the difficulty indicators for a session consistent: every
// bound renderer receives the same derived Display whenever the session's
// level changes.
type Registry struct {
	states *state.Manager
	logger *slog.Logger

	mu       sync.Mutex
	bindings map[string][]*binding
}

// NewRegistry creates a registry and subscribes it to the bus so difficulty
// changes trigger a sync automatically.
func NewRegistry(states *state.Manager, bus *events.Bus, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		states:   states,
		logger:   logger,
		bindings: make(map[string][]*binding),
	}
	if bus != nil {
		bus.Subscribe(func(ev events.Event) {
			if ev.Type == events.TypeDifficultyChanged {
				r.Sync(ev.SessionID)
			}
		})
	}
	return r
}

// Bind registers a renderer for a session id and returns its unbind function.
// The renderer is immediately synced if the session is cached.
func (r *Registry) Bind(sessionID string, renderer Renderer) func() {
	b := &binding{renderer: renderer}

	r.mu.Lock()
	r.bindings[sessionID] = append(r.bindings[sessionID], b)
	r.mu.Unlock()

	if st := r.states.Peek(sessionID); st != nil {
		renderer.Render(sessionID, st.Display())
	}

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if b.removed {
			return
		}
		b.removed = true
		list := r.bindings[sessionID]
		for i, cand := range list {
			if cand == b {
				r.bindings[sessionID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(r.bindings[sessionID]) == 0 {
			delete(r.bindings, sessionID)
		}
	}
}

// Sync recomputes the session's display record and re-renders every binding
// for that session. It is idempotent and safe to call redundantly.
func (r *Registry) Sync(sessionID string) {
	st, err := r.states.Get(context.Background(), sessionID, state.GetOptions{})
	if err != nil {
		r.logger.Warn("render sync skipped", "session_id", sessionID, "error", err)
		return
	}
	display := st.Display()

	r.mu.Lock()
	list := make([]*binding, len(r.bindings[sessionID]))
	copy(list, r.bindings[sessionID])
	r.mu.Unlock()

	for _, b := range list {
		b.renderer.Render(sessionID, display)
	}
}

// BindingCount returns the number of renderers bound to a session.
func (r *Registry) BindingCount(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings[sessionID])
}
