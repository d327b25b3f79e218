// Package events publishes vacancy lifecycle events for external consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/spigell/tg-responder/internal/model"
)

// Type is also the Redis channel the event is published on.
type Type string

const (
	VacancyCreated    Type = "vacancy.created"
	VacancyDispatched Type = "vacancy.dispatched"
	VacancyReplied    Type = "vacancy.replied"
)

type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	VacancyID  int64     `json:"vacancy_id"`
	Title      string    `json:"title"`
	Score      int       `json:"score"`
	ChatID     int64     `json:"chat_id,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Recruiter  string    `json:"recruiter,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

var now = time.Now

// New builds an event about v with a fresh id.
func New(t Type, v *model.Vacancy) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		VacancyID:  v.ID,
		Title:      v.Title,
		Score:      v.Score,
		ChatID:     v.ChatID,
		OccurredAt: now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Redis publishes events as JSON on a channel named after the event type.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to redisURL and verifies the connection.
func NewRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Redis{client: client}, nil
}

func (r *Redis) Publish(ctx context.Context, e Event) error {
	payload, err := Encode(e)
	if err != nil {
		return err
	}

	if err := r.client.Publish(ctx, string(e.Type), payload).Err(); err != nil {
		return fmt.Errorf("publishing %s: %w", e.Type, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Encode returns the wire form of e.
func Encode(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", e.Type, err)
	}
	return payload, nil
}
