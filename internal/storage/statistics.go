package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spigell/tg-responder/internal/model"
	"github.com/spigell/tg-responder/internal/stats"
)

// IncrementStatistics adds d to the singleton row, creating it on first use.
func (s *Store) IncrementStatistics(ctx context.Context, d stats.Delta) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO statistics (id, applied_to_recruiter, applied_to_operator, replied_vacancies)
			 VALUES (1, $1, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET
				applied_to_recruiter = statistics.applied_to_recruiter + EXCLUDED.applied_to_recruiter,
				applied_to_operator  = statistics.applied_to_operator + EXCLUDED.applied_to_operator,
				replied_vacancies    = statistics.replied_vacancies + EXCLUDED.replied_vacancies,
				updated_at           = now()`,
			d.AppliedToRecruiter, d.AppliedToOperator, d.RepliedVacancies,
		)
		if err != nil {
			return fmt.Errorf("updating statistics: %w", err)
		}
		return nil
	})
}

// Statistics returns the counters. Before the first increment all of them are zero.
func (s *Store) Statistics(ctx context.Context) (*model.Statistics, error) {
	var st model.Statistics
	err := s.pool.QueryRow(ctx,
		`SELECT applied_to_recruiter, applied_to_operator, replied_vacancies, updated_at FROM statistics WHERE id = 1`,
	).Scan(&st.AppliedToRecruiter, &st.AppliedToOperator, &st.RepliedVacancies, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.Statistics{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selecting statistics: %w", err)
	}
	return &st, nil
}
