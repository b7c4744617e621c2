package state

import (
	"testing"

	"github.com/prepdeck/prepdeck/internal/backend"
	"github.com/prepdeck/prepdeck/internal/difficulty"
)

func TestNewSessionState(t *testing.T) {
	st := NewSessionState("s-1", difficulty.Hard)

	if st.Initial != difficulty.Hard || st.Current != difficulty.Hard {
		t.Errorf("initial/current = %v/%v, want hard/hard", st.Initial, st.Current)
	}
	if st.Final != nil {
		t.Error("fresh state has non-nil final")
	}
	if len(st.Changes) != 0 {
		t.Errorf("fresh state has %d changes", len(st.Changes))
	}
	if st.HasChanged() || st.IsCompleted() {
		t.Error("fresh state reports changed/completed")
	}
}

func TestSessionState_CurrentTracksLastChange(t *testing.T) {
	st := NewSessionState("s-1", difficulty.Medium)
	st.appendChange(difficulty.Hard, "strong_performance", nil)
	st.appendChange(difficulty.Expert, "strong_performance", nil)

	if st.Current != difficulty.Expert {
		t.Errorf("current = %v, want expert", st.Current)
	}
	if got := st.Changes[len(st.Changes)-1].To; got != st.Current {
		t.Errorf("invariant violated: last change to %v, current %v", got, st.Current)
	}
	if st.Changes[1].From != difficulty.Hard {
		t.Errorf("second change from = %v, want hard", st.Changes[1].From)
	}
	if !st.HasChanged() {
		t.Error("HasChanged() = false after changes")
	}
	if st.ChangeCount() != 2 {
		t.Errorf("ChangeCount() = %d, want 2", st.ChangeCount())
	}
}

func TestSessionState_Clone_IsDeep(t *testing.T) {
	idx := 2
	st := NewSessionState("s-1", difficulty.Medium)
	st.appendChange(difficulty.Hard, "manual", &idx)
	f := difficulty.Hard
	st.Final = &f

	clone := st.Clone()
	clone.Current = difficulty.Easy
	clone.Changes[0].Reason = "mutated"
	*clone.Changes[0].QuestionIndex = 99
	*clone.Final = difficulty.Easy
	clone.Changes = append(clone.Changes, ChangeRecord{})

	if st.Current != difficulty.Hard {
		t.Error("clone mutation leaked into current")
	}
	if st.Changes[0].Reason != "manual" {
		t.Error("clone mutation leaked into change record")
	}
	if *st.Changes[0].QuestionIndex != 2 {
		t.Error("clone mutation leaked into question index")
	}
	if *st.Final != difficulty.Hard {
		t.Error("clone mutation leaked into final")
	}
	if len(st.Changes) != 1 {
		t.Error("clone append leaked into changes")
	}
}

func TestSessionState_EffectiveFinal(t *testing.T) {
	st := NewSessionState("s-1", difficulty.Medium)
	st.appendChange(difficulty.Hard, "adaptive", nil)
	if got := st.EffectiveFinal(); got != difficulty.Hard {
		t.Errorf("EffectiveFinal() = %v, want hard (current)", got)
	}

	f := difficulty.Expert
	st.Final = &f
	if got := st.EffectiveFinal(); got != difficulty.Expert {
		t.Errorf("EffectiveFinal() = %v, want expert (final)", got)
	}
	if !st.IsCompleted() {
		t.Error("IsCompleted() = false with final set")
	}
}

func TestFromPayload_NormalizesAndRederivesCurrent(t *testing.T) {
	payload := &backend.DifficultyStatePayload{
		SessionID:         "s-1",
		InitialDifficulty: "beginner",    // legacy alias for easy
		CurrentDifficulty: float64(2),    // stale: contradicted by changes
		Changes: []backend.ChangePayload{
			{From: "beginner", To: "intermediate", Reason: "warmup", Timestamp: "2026-03-01T10:00:00Z"},
			{From: float64(2), To: "hard", Reason: "strong_performance", Timestamp: "2026-03-01T10:05:00Z"},
		},
		LastUpdated: "2026-03-01T10:05:00Z",
	}

	st := fromPayload("s-1", payload)

	if st.Initial != difficulty.Easy {
		t.Errorf("initial = %v, want easy", st.Initial)
	}
	if st.Current != difficulty.Hard {
		t.Errorf("current = %v, want hard (re-derived from last change)", st.Current)
	}
	if len(st.Changes) != 2 {
		t.Fatalf("changes = %d, want 2", len(st.Changes))
	}
	if st.Changes[0].To != difficulty.Medium {
		t.Errorf("first change to = %v, want medium", st.Changes[0].To)
	}
	if st.IsFallback {
		t.Error("fetched state marked fallback")
	}
}

func TestFromPayload_FinalDifficulty(t *testing.T) {
	payload := &backend.DifficultyStatePayload{
		SessionID:         "s-1",
		InitialDifficulty: "medium",
		CurrentDifficulty: "hard",
		FinalDifficulty:   "hard",
	}
	st := fromPayload("s-1", payload)
	if st.Final == nil || *st.Final != difficulty.Hard {
		t.Errorf("final = %v, want hard", st.Final)
	}
}

func TestDisplay_Facets(t *testing.T) {
	st := NewSessionState("s-1", difficulty.Medium)
	st.appendChange(difficulty.Hard, "adaptive", nil)

	d := st.Display()
	if d.Current.Level != difficulty.Hard || d.Initial.Level != difficulty.Medium {
		t.Errorf("display facets = %+v", d)
	}
	if d.Final != nil {
		t.Error("display final set for active session")
	}
	if !d.HasChanged || d.IsCompleted || d.ChangeCount != 1 {
		t.Errorf("derived flags = %+v", d)
	}

	f := difficulty.Hard
	st.Final = &f
	d = st.Display()
	if d.Final == nil || d.Final.Level != difficulty.Hard {
		t.Errorf("display final = %+v", d.Final)
	}
	if !d.IsCompleted {
		t.Error("IsCompleted = false with final set")
	}
}

func TestSummarize_Direction(t *testing.T) {
	up := NewSessionState("s-1", difficulty.Medium)
	up.appendChange(difficulty.Expert, "adaptive", nil)
	if got := up.Summarize().Direction; got != DirectionUp {
		t.Errorf("direction = %v, want up", got)
	}

	down := NewSessionState("s-2", difficulty.Hard)
	down.appendChange(difficulty.Easy, "struggling", nil)
	if got := down.Summarize().Direction; got != DirectionDown {
		t.Errorf("direction = %v, want down", got)
	}

	flat := NewSessionState("s-3", difficulty.Medium)
	sum := flat.Summarize()
	if sum.Direction != DirectionFlat || sum.WasAdjusted {
		t.Errorf("flat summary = %+v", sum)
	}
}
