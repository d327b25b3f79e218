// Package telegram is the chat transport backed by the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/spigell/tg-responder/internal/model"
)

const (
	pollTimeout     = 60
	maxCaptionRunes = 1024
	defaultHistory  = 200
)

// Handler receives every inbound message.
type Handler func(ctx context.Context, msg model.InboundMessage) error

type Client struct {
	bot     *tgbotapi.BotAPI
	history *history
	logger  *zap.Logger
}

// New logs the bot in with token. historySize bounds the per-chat buffer used
// to serve FetchRecentHistory.
func New(token string, historySize int, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if historySize <= 0 {
		historySize = defaultHistory
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("logging in to telegram: %w", err)
	}

	logger.Info("logged in to telegram", zap.String("bot", bot.Self.UserName))

	return &Client{
		bot:     bot,
		history: newHistory(historySize),
		logger:  logger,
	}, nil
}

// Listen delivers updates to handler until ctx is done. Handler errors are logged.
func (c *Client) Listen(ctx context.Context, handler Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := c.bot.GetUpdatesChan(u)
	defer c.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return errors.New("telegram updates channel closed")
			}

			msg, ok := FromUpdate(update)
			if !ok {
				continue
			}

			if msg.ChatKind != model.ChatPrivate {
				c.history.add(msg)
			}

			if err := handler(ctx, msg); err != nil {
				c.logger.Warn("failed to handle message",
					zap.Int64("chat_id", msg.ChatID),
					zap.Int64("message_id", msg.ID),
					zap.Error(err),
				)
			}
		}
	}
}

// FetchRecentHistory returns up to limit of the latest buffered posts of the chat.
// The Bot API has no history endpoint, so only posts received since start are known.
func (c *Client) FetchRecentHistory(_ context.Context, chatID int64, limit int) ([]model.InboundMessage, error) {
	return c.history.recent(chatID, limit), nil
}

// LookupIdentity resolves a public handle. model.ErrNotFound is returned for unknown handles.
// The Bot API resolves public groups and channels by handle, but not user accounts.
func (c *Client) LookupIdentity(_ context.Context, handle string) (*model.Identity, error) {
	chat, err := c.bot.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{SuperGroupUsername: "@" + strings.TrimPrefix(handle, "@")},
	})
	if err != nil {
		return nil, lookupError(handle, err)
	}

	return &model.Identity{
		ID:        chat.ID,
		Handle:    chat.UserName,
		FirstName: chat.FirstName,
		LastName:  chat.LastName,
	}, nil
}

func (c *Client) SendMessage(_ context.Context, to *model.Identity, text string) error {
	if to == nil || to.ID == 0 {
		return errors.New("recipient has no chat id")
	}

	if _, err := c.bot.Send(tgbotapi.NewMessage(to.ID, text)); err != nil {
		return fmt.Errorf("sending message to %d: %w", to.ID, err)
	}
	return nil
}

// SendDocument sends the file with caption. Captions over the API limit follow
// the document as a separate message.
func (c *Client) SendDocument(ctx context.Context, to *model.Identity, path, caption string) error {
	if to == nil || to.ID == 0 {
		return errors.New("recipient has no chat id")
	}

	doc := tgbotapi.NewDocument(to.ID, tgbotapi.FilePath(path))
	long := len([]rune(caption)) > maxCaptionRunes
	if !long {
		doc.Caption = caption
	}

	if _, err := c.bot.Send(doc); err != nil {
		return fmt.Errorf("sending document to %d: %w", to.ID, err)
	}

	if long {
		return c.SendMessage(ctx, to, caption)
	}
	return nil
}

func lookupError(handle string, err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Message), "not found") {
		return fmt.Errorf("looking up @%s: %w", handle, model.ErrNotFound)
	}
	return fmt.Errorf("looking up @%s: %w", handle, err)
}

// FromUpdate converts messages and channel posts. Other updates are skipped.
func FromUpdate(update tgbotapi.Update) (model.InboundMessage, bool) {
	m := update.Message
	if m == nil {
		m = update.ChannelPost
	}
	if m == nil || m.Chat == nil {
		return model.InboundMessage{}, false
	}

	msg := model.InboundMessage{
		ID:        int64(m.MessageID),
		ChatID:    m.Chat.ID,
		ChatTitle: chatTitle(m.Chat),
		ChatKind:  model.ChatKind(m.Chat.Type),
		Text:      m.Text,
		Caption:   m.Caption,
		Date:      time.Unix(int64(m.Date), 0),
	}

	if m.From != nil {
		msg.Sender = &model.Identity{
			ID:        m.From.ID,
			Handle:    m.From.UserName,
			FirstName: m.From.FirstName,
			LastName:  m.From.LastName,
		}
	}

	return msg, true
}

func chatTitle(chat *tgbotapi.Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	return strings.TrimSpace(chat.FirstName + " " + chat.LastName)
}
