package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spigell/tg-responder/internal/model"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubStats struct {
	snapshot *model.Statistics
	err      error
}

func (s stubStats) Snapshot(context.Context) (*model.Statistics, error) { return s.snapshot, s.err }

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "ok", code: http.StatusOK},
		{name: "database down", err: errors.New("connection refused"), code: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(":0", stubPinger{err: tt.err}, stubStats{}, nil)
			if rec := get(t, s, "/health"); rec.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rec.Code)
			}
		})
	}
}

func TestStats(t *testing.T) {
	snapshot := &model.Statistics{AppliedToRecruiter: 3, AppliedToOperator: 2, RepliedVacancies: 1, UpdatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	s := New(":0", stubPinger{}, stubStats{snapshot: snapshot}, nil)

	rec := get(t, s, "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["applied_to_recruiter"] != float64(3) || body["replied_vacancies"] != float64(1) {
		t.Fatalf("unexpected body: %v", body)
	}

	failing := New(":0", stubPinger{}, stubStats{err: errors.New("boom")}, nil)
	if rec := get(t, failing, "/stats"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New("127.0.0.1:0", stubPinger{}, stubStats{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
