package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPClient_DifficultyState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/v1/sessions/s-1/difficulty-state" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(DifficultyStatePayload{
			SessionID:         "s-1",
			InitialDifficulty: "medium",
			CurrentDifficulty: float64(3),
			Changes: []ChangePayload{
				{From: "medium", To: "hard", Reason: "strong_performance"},
			},
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	payload, err := client.DifficultyState(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("DifficultyState() error = %v", err)
	}
	if payload.SessionID != "s-1" {
		t.Errorf("SessionID = %q", payload.SessionID)
	}
	if len(payload.Changes) != 1 || payload.Changes[0].Reason != "strong_performance" {
		t.Errorf("Changes = %+v", payload.Changes)
	}
}

func TestHTTPClient_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such session", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	_, err := client.Session(context.Background(), "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Session() error = %v, want ErrSessionNotFound", err)
	}
}

func TestHTTPClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	_, err := client.DifficultyState(context.Background(), "s-1")

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.Code != http.StatusServiceUnavailable {
		t.Errorf("Code = %d, want 503", se.Code)
	}
	if !isRetryableError(err) {
		t.Error("503 should be retryable")
	}
}

func TestHTTPClient_RecordDifficulty(t *testing.T) {
	var got RecordDifficultyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	idx := 4
	client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	err := client.RecordDifficulty(context.Background(), "s-1", RecordDifficultyRequest{
		Difficulty:    "hard",
		Reason:        "manual",
		QuestionIndex: &idx,
	})
	if err != nil {
		t.Fatalf("RecordDifficulty() error = %v", err)
	}
	if got.Difficulty != "hard" || got.QuestionIndex == nil || *got.QuestionIndex != 4 {
		t.Errorf("request body = %+v", got)
	}
}

func TestHTTPClient_AuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(SessionPayload{ID: "s-1", DifficultyLevel: "easy"})
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, APIToken: "tok-1"})
	if _, err := client.Session(context.Background(), "s-1"); err != nil {
		t.Fatalf("Session() error = %v", err)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", ErrSessionNotFound, false},
		{"429", &StatusError{Code: 429}, true},
		{"500", &StatusError{Code: 500}, true},
		{"400", &StatusError{Code: 400}, false},
		{"409", &StatusError{Code: 409}, false},
		{"transport", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
