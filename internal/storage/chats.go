package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spigell/tg-responder/internal/model"
)

const chatColumns = `id, external_id, title, kind, active, created_at`

func scanChat(row pgx.Row) (*model.ChatSource, error) {
	var c model.ChatSource
	var kind string
	if err := row.Scan(&c.ID, &c.ExternalID, &c.Title, &kind, &c.Active, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Kind = model.ChatKind(kind)
	return &c, nil
}

// GetOrCreateChat returns the chat with externalID, inserting an inactive one when missing.
func (s *Store) GetOrCreateChat(ctx context.Context, externalID int64, title string, kind model.ChatKind) (*model.ChatSource, bool, error) {
	chat, err := scanChat(s.pool.QueryRow(ctx,
		`INSERT INTO chats (external_id, title, kind) VALUES ($1, $2, $3)
		 ON CONFLICT (external_id) DO NOTHING
		 RETURNING `+chatColumns,
		externalID, title, string(kind),
	))
	if err == nil {
		return chat, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("inserting chat: %w", err)
	}

	chat, err = s.ChatByExternalID(ctx, externalID)
	if err != nil {
		return nil, false, err
	}
	return chat, false, nil
}

func (s *Store) ChatByExternalID(ctx context.Context, externalID int64) (*model.ChatSource, error) {
	chat, err := scanChat(s.pool.QueryRow(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE external_id = $1`, externalID))
	if err != nil {
		return nil, fmt.Errorf("selecting chat %d: %w", externalID, notFound(err))
	}
	return chat, nil
}

func (s *Store) ActiveChats(ctx context.Context) ([]*model.ChatSource, error) {
	return s.queryChats(ctx, `SELECT `+chatColumns+` FROM chats WHERE active ORDER BY id`)
}

func (s *Store) Chats(ctx context.Context) ([]*model.ChatSource, error) {
	return s.queryChats(ctx, `SELECT `+chatColumns+` FROM chats ORDER BY id`)
}

func (s *Store) queryChats(ctx context.Context, query string) ([]*model.ChatSource, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("selecting chats: %w", err)
	}
	defer rows.Close()

	var chats []*model.ChatSource
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chat: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// SetChatActive flips the activation flag of a chat.
func (s *Store) SetChatActive(ctx context.Context, externalID int64, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE chats SET active = $2 WHERE external_id = $1`, externalID, active)
	if err != nil {
		return fmt.Errorf("updating chat %d: %w", externalID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating chat %d: %w", externalID, model.ErrNotFound)
	}
	return nil
}

// MarkSeen records the message and reports whether it was new.
func (s *Store) MarkSeen(ctx context.Context, chatID, messageID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO seen_messages (chat_id, message_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		chatID, messageID,
	)
	if err != nil {
		return false, fmt.Errorf("inserting seen message: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
