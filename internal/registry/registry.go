// Package registry tracks the chat sources the bot has seen and the messages it already processed.
package registry

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/tg-responder/internal/model"
)

// Store is the persistence needed by the registry.
type Store interface {
	// GetOrCreateChat returns the chat with externalID, inserting an inactive one when missing.
	GetOrCreateChat(ctx context.Context, externalID int64, title string, kind model.ChatKind) (*model.ChatSource, bool, error)
	// MarkSeen records the message and reports whether it was new.
	MarkSeen(ctx context.Context, chatID, messageID int64) (bool, error)
	ActiveChats(ctx context.Context) ([]*model.ChatSource, error)
}

type Registry struct {
	store  Store
	logger *zap.Logger
}

func New(store Store, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, logger: logger}
}

// Observe returns the chat source for externalID. A chat seen for the first
// time is stored inactive and reported with created set; its content must
// not be processed until an operator activates it.
func (r *Registry) Observe(ctx context.Context, externalID int64, title string, kind model.ChatKind) (*model.ChatSource, bool, error) {
	if title == "" {
		title = "Unknown"
	}

	chat, created, err := r.store.GetOrCreateChat(ctx, externalID, title, kind)
	if err != nil {
		return nil, false, fmt.Errorf("observing chat %d: %w", externalID, err)
	}

	if created {
		r.logger.Info("added new chat",
			zap.Int64("chat_id", externalID),
			zap.String("title", chat.Title),
			zap.String("kind", string(kind)),
			zap.String("hint", "activate it with 'chats activate' to score its messages"),
		)
	}

	return chat, created, nil
}

// MarkSeen returns true exactly once per chat and message id.
func (r *Registry) MarkSeen(ctx context.Context, chat *model.ChatSource, messageID int64) (bool, error) {
	fresh, err := r.store.MarkSeen(ctx, chat.ID, messageID)
	if err != nil {
		return false, fmt.Errorf("marking message %d of chat %d as seen: %w", messageID, chat.ExternalID, err)
	}
	return fresh, nil
}

// Active returns the chats whose content is scored.
func (r *Registry) Active(ctx context.Context) ([]*model.ChatSource, error) {
	chats, err := r.store.ActiveChats(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active chats: %w", err)
	}
	return chats, nil
}
