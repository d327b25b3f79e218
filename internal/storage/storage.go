// Package storage keeps the pipeline state in PostgreSQL.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spigell/tg-responder/internal/model"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS chats (
	id          BIGSERIAL PRIMARY KEY,
	external_id BIGINT NOT NULL UNIQUE,
	title       TEXT NOT NULL,
	kind        TEXT NOT NULL DEFAULT '',
	active      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rules (
	id     BIGSERIAL PRIMARY KEY,
	title  TEXT NOT NULL UNIQUE,
	text   TEXT NOT NULL,
	weight INTEGER NOT NULL DEFAULT 1,
	active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS reply_templates (
	id     BIGSERIAL PRIMARY KEY,
	title  TEXT NOT NULL UNIQUE,
	text   TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS recruiters (
	id          BIGSERIAL PRIMARY KEY,
	external_id BIGINT NOT NULL UNIQUE,
	handle      TEXT NOT NULL DEFAULT '',
	phone       TEXT NOT NULL DEFAULT '',
	first_name  TEXT NOT NULL DEFAULT '',
	last_name   TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS recruiters_handle_idx ON recruiters (lower(handle));

CREATE TABLE IF NOT EXISTS vacancies (
	id           BIGSERIAL PRIMARY KEY,
	title        TEXT NOT NULL,
	text         TEXT NOT NULL,
	score        INTEGER NOT NULL,
	chat_id      BIGINT NOT NULL REFERENCES chats (id),
	recruiter_id BIGINT REFERENCES recruiters (id),
	replied_at   TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS vacancies_recruiter_idx ON vacancies (recruiter_id, created_at DESC);

CREATE TABLE IF NOT EXISTS seen_messages (
	chat_id    BIGINT NOT NULL REFERENCES chats (id),
	message_id BIGINT NOT NULL,
	seen_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chat_id, message_id)
);

CREATE TABLE IF NOT EXISTS statistics (
	id                   SMALLINT PRIMARY KEY CHECK (id = 1),
	applied_to_recruiter BIGINT NOT NULL DEFAULT 0,
	applied_to_operator  BIGINT NOT NULL DEFAULT 0,
	replied_vacancies    BIGINT NOT NULL DEFAULT 0,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL, verifies the connection and creates missing tables.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// nullableID maps the zero id to NULL.
func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
