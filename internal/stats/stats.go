// Package stats maintains the applied/replied counters.
package stats

import (
	"context"
	"errors"
	"fmt"

	"github.com/spigell/tg-responder/internal/model"
)

// Delta is an increment applied to the counters in one transaction.
type Delta struct {
	AppliedToRecruiter int64
	AppliedToOperator  int64
	RepliedVacancies   int64
}

// IsZero reports whether d changes nothing.
func (d Delta) IsZero() bool {
	return d == Delta{}
}

func (d Delta) validate() error {
	if d.AppliedToRecruiter < 0 || d.AppliedToOperator < 0 || d.RepliedVacancies < 0 {
		return errors.New("counters are monotonic, negative delta is not allowed")
	}
	return nil
}

// Store applies deltas atomically to the singleton counter record.
type Store interface {
	IncrementStatistics(ctx context.Context, d Delta) error
	Statistics(ctx context.Context) (*model.Statistics, error)
}

type Aggregator struct {
	store Store
}

func New(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// Increment adds d to the counters and refreshes the update time.
func (a *Aggregator) Increment(ctx context.Context, d Delta) error {
	if err := d.validate(); err != nil {
		return err
	}
	if d.IsZero() {
		return nil
	}

	if err := a.store.IncrementStatistics(ctx, d); err != nil {
		return fmt.Errorf("incrementing statistics: %w", err)
	}
	return nil
}

// Snapshot returns the current counters.
func (a *Aggregator) Snapshot(ctx context.Context) (*model.Statistics, error) {
	s, err := a.store.Statistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading statistics: %w", err)
	}
	return s, nil
}
