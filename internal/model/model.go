// Package model holds the records shared by the ingestion pipeline and the storage layer.
package model

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup has no result. It is a normal negative outcome.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by the storage layer when a unique constraint rejects an insert.
	ErrConflict = errors.New("conflict")
)

// ChatKind is the type of conversation a message arrived from.
type ChatKind string

const (
	ChatPrivate    ChatKind = "private"
	ChatGroup      ChatKind = "group"
	ChatSupergroup ChatKind = "supergroup"
	ChatChannel    ChatKind = "channel"
)

// IsGroup reports whether the kind is a multi-user group chat.
func (k ChatKind) IsGroup() bool {
	return k == ChatGroup || k == ChatSupergroup
}

// ChatSource is a conversation the bot observes. New sources are inactive.
type ChatSource struct {
	ID         int64
	ExternalID int64
	Title      string
	Kind       ChatKind
	Active     bool
	CreatedAt  time.Time
}

// Rule is a weighted phrase set. Text holds variants separated by ", ".
type Rule struct {
	ID     int64  `mapstructure:"-"`
	Title  string `mapstructure:"title"`
	Text   string `mapstructure:"text"`
	Weight int    `mapstructure:"weight"`
	Active bool   `mapstructure:"active"`
}

// TitlePlaceholder is substituted with the vacancy title in reply templates.
const TitlePlaceholder = "{vacancy_title}"

// ReplyTemplate is a canned answer sent to recruiters.
type ReplyTemplate struct {
	ID     int64  `mapstructure:"-"`
	Title  string `mapstructure:"title"`
	Text   string `mapstructure:"text"`
	Active bool   `mapstructure:"active"`
}

// Recruiter is a resolved identity of a person posting vacancies.
type Recruiter struct {
	ID         int64
	ExternalID int64
	Handle     string
	Phone      string
	FirstName  string
	LastName   string
	CreatedAt  time.Time
}

// Vacancy is one scored inbound posting. RecruiterID is zero when no recruiter was resolved.
type Vacancy struct {
	ID          int64
	Title       string
	Text        string
	Score       int
	ChatID      int64
	RecruiterID int64
	RepliedAt   *time.Time
	CreatedAt   time.Time
}

// HasRecruiter reports whether the vacancy is owned by a recruiter.
func (v *Vacancy) HasRecruiter() bool {
	return v.RecruiterID != 0
}

// Statistics is the singleton counter record.
type Statistics struct {
	AppliedToRecruiter int64     `json:"applied_to_recruiter"`
	AppliedToOperator  int64     `json:"applied_to_operator"`
	RepliedVacancies   int64     `json:"replied_vacancies"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Identity is a transport-level user or chat.
type Identity struct {
	ID        int64
	Handle    string
	Phone     string
	FirstName string
	LastName  string
}

// InboundMessage is a message delivered by the transport.
type InboundMessage struct {
	ID        int64
	ChatID    int64
	ChatTitle string
	ChatKind  ChatKind
	Sender    *Identity
	Text      string
	Caption   string
	Date      time.Time
}

// Body returns the text of the message, falling back to the media caption.
func (m InboundMessage) Body() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}
