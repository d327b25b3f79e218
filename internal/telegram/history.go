package telegram

import (
	"sync"

	"github.com/spigell/tg-responder/internal/model"
)

// history keeps the latest posts of every chat, oldest first.
type history struct {
	mu    sync.Mutex
	size  int
	chats map[int64][]model.InboundMessage
}

func newHistory(size int) *history {
	return &history{size: size, chats: make(map[int64][]model.InboundMessage)}
}

func (h *history) add(msg model.InboundMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	posts := append(h.chats[msg.ChatID], msg)
	if len(posts) > h.size {
		posts = append([]model.InboundMessage(nil), posts[len(posts)-h.size:]...)
	}
	h.chats[msg.ChatID] = posts
}

func (h *history) recent(chatID int64, limit int) []model.InboundMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	posts := h.chats[chatID]
	if limit > 0 && len(posts) > limit {
		posts = posts[len(posts)-limit:]
	}
	return append([]model.InboundMessage(nil), posts...)
}
