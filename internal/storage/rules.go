package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spigell/tg-responder/internal/model"
)

func (s *Store) ActiveRules(ctx context.Context) ([]model.Rule, error) {
	return s.queryRules(ctx, `SELECT id, title, text, weight, active FROM rules WHERE active ORDER BY id`)
}

func (s *Store) Rules(ctx context.Context) ([]model.Rule, error) {
	return s.queryRules(ctx, `SELECT id, title, text, weight, active FROM rules ORDER BY id`)
}

func (s *Store) queryRules(ctx context.Context, query string) ([]model.Rule, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("selecting rules: %w", err)
	}
	defer rows.Close()

	var rules []model.Rule
	for rows.Next() {
		var r model.Rule
		if err := rows.Scan(&r.ID, &r.Title, &r.Text, &r.Weight, &r.Active); err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *Store) ActiveTemplates(ctx context.Context) ([]*model.ReplyTemplate, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, title, text, active FROM reply_templates WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("selecting reply templates: %w", err)
	}
	defer rows.Close()

	var templates []*model.ReplyTemplate
	for rows.Next() {
		var t model.ReplyTemplate
		if err := rows.Scan(&t.ID, &t.Title, &t.Text, &t.Active); err != nil {
			return nil, fmt.Errorf("scanning reply template: %w", err)
		}
		templates = append(templates, &t)
	}
	return templates, rows.Err()
}

// ImportRules upserts rules and templates by title in one transaction.
func (s *Store) ImportRules(ctx context.Context, rules []model.Rule, templates []model.ReplyTemplate) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, r := range rules {
			if _, err := tx.Exec(ctx,
				`INSERT INTO rules (title, text, weight, active) VALUES ($1, $2, $3, $4)
				 ON CONFLICT (title) DO UPDATE SET text = EXCLUDED.text, weight = EXCLUDED.weight, active = EXCLUDED.active`,
				r.Title, r.Text, r.Weight, r.Active,
			); err != nil {
				return fmt.Errorf("upserting rule %q: %w", r.Title, err)
			}
		}

		for _, t := range templates {
			if _, err := tx.Exec(ctx,
				`INSERT INTO reply_templates (title, text, active) VALUES ($1, $2, $3)
				 ON CONFLICT (title) DO UPDATE SET text = EXCLUDED.text, active = EXCLUDED.active`,
				t.Title, t.Text, t.Active,
			); err != nil {
				return fmt.Errorf("upserting reply template %q: %w", t.Title, err)
			}
		}
		return nil
	})
}
