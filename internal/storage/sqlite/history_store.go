package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/prepdeck/prepdeck/internal/difficulty"
	"github.com/prepdeck/prepdeck/internal/state"
)

// ErrNotFound is returned when no history exists for a session.
var ErrNotFound = errors.New("session history not found")

// HistoryStore implements state.History backed by SQLite. States upsert;
// change records only ever insert.
type HistoryStore struct {
	db *DB
}

// NewHistoryStore creates a new SQLite-backed history store.
func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// SaveState persists a session state snapshot (insert or update).
func (s *HistoryStore) SaveState(st *state.SessionState) error {
	var final sql.NullInt64
	if st.Final != nil {
		final = sql.NullInt64{Int64: int64(*st.Final), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO session_states (session_id, initial_level, current_level, final_level,
			is_fallback, fallback_reason, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			current_level=excluded.current_level,
			final_level=excluded.final_level,
			is_fallback=excluded.is_fallback,
			fallback_reason=excluded.fallback_reason,
			last_updated=excluded.last_updated,
			updated_at=datetime('now')`,
		st.SessionID, int(st.Initial), int(st.Current), final,
		st.IsFallback, string(st.FallbackReason), st.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert session state: %w", err)
	}
	return nil
}

// AppendChange persists one change record.
func (s *HistoryStore) AppendChange(sessionID string, rec state.ChangeRecord) error {
	var questionIndex sql.NullInt64
	if rec.QuestionIndex != nil {
		questionIndex = sql.NullInt64{Int64: int64(*rec.QuestionIndex), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO difficulty_changes (id, session_id, from_level, to_level, reason, question_index, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, sessionID, int(rec.From), int(rec.To), rec.Reason, questionIndex, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert change record: %w", err)
	}
	return nil
}

// GetState retrieves a persisted state with its change records, ordered by
// timestamp.
func (s *HistoryStore) GetState(sessionID string) (*state.SessionState, error) {
	row := s.db.QueryRow(`
		SELECT session_id, initial_level, current_level, final_level,
			is_fallback, fallback_reason, last_updated
		FROM session_states WHERE session_id = ?`, sessionID)

	var st state.SessionState
	var final sql.NullInt64
	var fallbackReason string
	err := row.Scan(&st.SessionID, &st.Initial, &st.Current, &final,
		&st.IsFallback, &fallbackReason, &st.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session state: %w", err)
	}
	if final.Valid {
		f := difficulty.Level(final.Int64)
		st.Final = &f
	}
	st.FallbackReason = state.FallbackReason(fallbackReason)

	changes, err := s.listChanges(sessionID)
	if err != nil {
		return nil, err
	}
	st.Changes = changes

	return &st, nil
}

func (s *HistoryStore) listChanges(sessionID string) ([]state.ChangeRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, from_level, to_level, reason, question_index, created_at
		FROM difficulty_changes
		WHERE session_id = ?
		ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list change records: %w", err)
	}
	defer rows.Close()

	changes := []state.ChangeRecord{}
	for rows.Next() {
		var rec state.ChangeRecord
		var questionIndex sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.From, &rec.To, &rec.Reason, &questionIndex, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan change record: %w", err)
		}
		if questionIndex.Valid {
			idx := int(questionIndex.Int64)
			rec.QuestionIndex = &idx
		}
		changes = append(changes, rec)
	}
	return changes, rows.Err()
}

// ListSessions returns all session ids with persisted history, most recent
// first.
func (s *HistoryStore) ListSessions() ([]string, error) {
	rows, err := s.db.Query("SELECT session_id FROM session_states ORDER BY last_updated DESC")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
