// Package reply closes the loop when a recruiter answers in a private chat.
package reply

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/tg-responder/internal/events"
	"github.com/spigell/tg-responder/internal/logger"
	"github.com/spigell/tg-responder/internal/model"
	"github.com/spigell/tg-responder/internal/stats"
	"github.com/spigell/tg-responder/internal/utils"
)

type Store interface {
	RecruiterByExternalID(ctx context.Context, externalID int64) (*model.Recruiter, error)
	LatestVacancyByRecruiter(ctx context.Context, recruiterID int64) (*model.Vacancy, error)
	// MarkVacancyReplied sets the reply time unless it is already set and reports whether it did.
	MarkVacancyReplied(ctx context.Context, vacancyID int64, at time.Time) (bool, error)
}

type Counter interface {
	Increment(ctx context.Context, d stats.Delta) error
}

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type Deps struct {
	Store     Store
	Counter   Counter
	Operator  Notifier
	Publisher events.Publisher
	Logger    *zap.Logger
}

type Capturer struct {
	store     Store
	counter   Counter
	operator  Notifier
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func New(deps Deps) *Capturer {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}

	return &Capturer{
		store:     deps.Store,
		counter:   deps.Counter,
		operator:  deps.Operator,
		publisher: publisher,
		logger:    logger.WithFields(deps.Logger),
		now:       time.Now,
	}
}

// Capture handles a private message. It reports whether the message answered
// a vacancy; follow-ups to an answered vacancy and strangers are dropped.
func (c *Capturer) Capture(ctx context.Context, msg model.InboundMessage) (bool, error) {
	if msg.ChatKind != model.ChatPrivate || msg.Sender == nil {
		return false, nil
	}

	rec, err := c.store.RecruiterByExternalID(ctx, msg.Sender.ID)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up sender %d: %w", msg.Sender.ID, err)
	}

	v, err := c.store.LatestVacancyByRecruiter(ctx, rec.ID)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up vacancy of recruiter %d: %w", rec.ID, err)
	}

	log := logger.WithFields(c.logger, logger.VacancyFields(v)...).With(zap.String(logger.FieldHandle, rec.Handle))

	if v.RepliedAt != nil {
		log.Debug("vacancy already answered, dropping message")
		return false, nil
	}

	marked, err := c.store.MarkVacancyReplied(ctx, v.ID, c.now())
	if err != nil {
		return false, fmt.Errorf("marking vacancy %d replied: %w", v.ID, err)
	}
	if !marked {
		log.Debug("vacancy answered concurrently, dropping message")
		return false, nil
	}

	if err := c.counter.Increment(ctx, stats.Delta{RepliedVacancies: 1}); err != nil {
		log.Error("failed to count reply", zap.Error(err))
	}

	e := events.New(events.VacancyReplied, v)
	e.Recruiter = rec.Handle
	if err := c.publisher.Publish(ctx, e); err != nil {
		log.Warn("failed to publish event", zap.String("event", string(e.Type)), zap.Error(err))
	}

	if err := c.operator.Notify(ctx, Notice(rec, v, msg.Body())); err != nil {
		return true, fmt.Errorf("forwarding reply to operator: %w", err)
	}

	log.Info("forwarded recruiter reply to operator",
		zap.String("reply", utils.TruncateForLog(utils.SingleLine(msg.Body()), 80)),
	)
	return true, nil
}

// ContactLink returns a link to the recruiter's profile.
func ContactLink(rec *model.Recruiter) string {
	if rec.Handle == "" {
		return "no username"
	}
	return "https://t.me/" + rec.Handle
}

// Notice formats the reply forwarded to the operator.
func Notice(rec *model.Recruiter, v *model.Vacancy, text string) string {
	from := "@" + rec.Handle
	if rec.Handle == "" {
		from = fmt.Sprintf("id %d", rec.ExternalID)
	}

	return fmt.Sprintf("Reply from recruiter %s:\n\n%s\n\nRecruiter contact: %s\nVacancy: %s (%d points)\n\n%s",
		from, text, ContactLink(rec), v.Title, v.Score, v.Text)
}
