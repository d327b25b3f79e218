package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/spigell/tg-responder/internal/model"
)

func TestNewEvent(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("MSK", 3*3600))
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	e := New(VacancyCreated, &model.Vacancy{ID: 7, Title: "Go developer", Score: 8, ChatID: 42})

	if e.ID == "" {
		t.Fatal("expected an event id")
	}
	if e.Type != VacancyCreated || e.VacancyID != 7 || e.Score != 8 || e.ChatID != 42 {
		t.Fatalf("unexpected event: %+v", e)
	}
	if !e.OccurredAt.Equal(fixed) || e.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", e.OccurredAt)
	}

	if other := New(VacancyCreated, &model.Vacancy{ID: 7}); other.ID == e.ID {
		t.Fatal("event ids must be unique")
	}
}

func TestEncode(t *testing.T) {
	e := Event{
		ID:         "id-1",
		Type:       VacancyDispatched,
		VacancyID:  3,
		Title:      "Backend engineer",
		Score:      5,
		Outcome:    "recruiter",
		Recruiter:  "real_recruiter",
		OccurredAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}

	payload, err := Encode(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}

	want := map[string]any{
		"type":       "vacancy.dispatched",
		"vacancy_id": float64(3),
		"outcome":    "recruiter",
		"recruiter":  "real_recruiter",
	}
	for key, value := range want {
		if decoded[key] != value {
			t.Fatalf("expected %s=%v, got %v", key, value, decoded[key])
		}
	}
	if _, ok := decoded["chat_id"]; ok {
		t.Fatal("empty chat id must be omitted")
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	if err := p.Publish(context.Background(), Event{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
