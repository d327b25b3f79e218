package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spigell/tg-responder/internal/model"
)

const recruiterColumns = `id, external_id, handle, phone, first_name, last_name, created_at`

func scanRecruiter(row pgx.Row) (*model.Recruiter, error) {
	var r model.Recruiter
	if err := row.Scan(&r.ID, &r.ExternalID, &r.Handle, &r.Phone, &r.FirstName, &r.LastName, &r.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// RecruiterByHandle compares handles case-insensitively.
func (s *Store) RecruiterByHandle(ctx context.Context, handle string) (*model.Recruiter, error) {
	r, err := scanRecruiter(s.pool.QueryRow(ctx,
		`SELECT `+recruiterColumns+` FROM recruiters WHERE lower(handle) = lower($1) ORDER BY id LIMIT 1`, handle))
	if err != nil {
		return nil, fmt.Errorf("selecting recruiter @%s: %w", handle, err)
	}
	return r, nil
}

func (s *Store) RecruiterByExternalID(ctx context.Context, externalID int64) (*model.Recruiter, error) {
	r, err := scanRecruiter(s.pool.QueryRow(ctx,
		`SELECT `+recruiterColumns+` FROM recruiters WHERE external_id = $1`, externalID))
	if err != nil {
		return nil, fmt.Errorf("selecting recruiter %d: %w", externalID, err)
	}
	return r, nil
}

// CreateRecruiter fails with model.ErrConflict when the external id is taken.
func (s *Store) CreateRecruiter(ctx context.Context, r *model.Recruiter) (*model.Recruiter, error) {
	created, err := scanRecruiter(s.pool.QueryRow(ctx,
		`INSERT INTO recruiters (external_id, handle, phone, first_name, last_name)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+recruiterColumns,
		r.ExternalID, r.Handle, r.Phone, r.FirstName, r.LastName,
	))
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("inserting recruiter %d: %w", r.ExternalID, model.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("inserting recruiter %d: %w", r.ExternalID, err)
	}
	return created, nil
}

func (s *Store) UpdateRecruiterHandle(ctx context.Context, id int64, handle string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE recruiters SET handle = $2 WHERE id = $1`, id, handle)
	if err != nil {
		return fmt.Errorf("updating recruiter %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating recruiter %d: %w", id, model.ErrNotFound)
	}
	return nil
}
