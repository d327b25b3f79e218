package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spigell/tg-responder/internal/model"
)

const vacancyColumns = `id, title, text, score, chat_id, recruiter_id, replied_at, created_at`

func scanVacancy(row pgx.Row) (*model.Vacancy, error) {
	var v model.Vacancy
	var recruiterID *int64
	if err := row.Scan(&v.ID, &v.Title, &v.Text, &v.Score, &v.ChatID, &recruiterID, &v.RepliedAt, &v.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	if recruiterID != nil {
		v.RecruiterID = *recruiterID
	}
	return &v, nil
}

func (s *Store) CreateVacancy(ctx context.Context, v *model.Vacancy) (*model.Vacancy, error) {
	created, err := scanVacancy(s.pool.QueryRow(ctx,
		`INSERT INTO vacancies (title, text, score, chat_id, recruiter_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+vacancyColumns,
		v.Title, v.Text, v.Score, v.ChatID, nullableID(v.RecruiterID),
	))
	if err != nil {
		return nil, fmt.Errorf("inserting vacancy: %w", err)
	}
	return created, nil
}

// LatestVacancyByRecruiter returns the most recently created vacancy of the recruiter.
func (s *Store) LatestVacancyByRecruiter(ctx context.Context, recruiterID int64) (*model.Vacancy, error) {
	v, err := scanVacancy(s.pool.QueryRow(ctx,
		`SELECT `+vacancyColumns+` FROM vacancies WHERE recruiter_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		recruiterID,
	))
	if err != nil {
		return nil, fmt.Errorf("selecting latest vacancy of recruiter %d: %w", recruiterID, err)
	}
	return v, nil
}

// MarkVacancyReplied sets replied_at unless it is already set and reports whether it did.
func (s *Store) MarkVacancyReplied(ctx context.Context, vacancyID int64, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE vacancies SET replied_at = $2 WHERE id = $1 AND replied_at IS NULL`, vacancyID, at)
	if err != nil {
		return false, fmt.Errorf("updating vacancy %d: %w", vacancyID, err)
	}
	return tag.RowsAffected() == 1, nil
}
