// Package dispatch decides what happens to a stored vacancy: a templated reply
// to its recruiter or an escalation to the operator.
package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/tg-responder/internal/events"
	"github.com/spigell/tg-responder/internal/logger"
	"github.com/spigell/tg-responder/internal/model"
	"github.com/spigell/tg-responder/internal/stats"
	"github.com/spigell/tg-responder/internal/utils"
)

// Outcome is the terminal state of a dispatch.
type Outcome string

const (
	OutcomeRecruiter  Outcome = "recruiter"
	OutcomeOperator   Outcome = "operator"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeSkipped    Outcome = "skipped"
)

// Sender delivers outbound messages through the chat transport.
type Sender interface {
	SendMessage(ctx context.Context, to *model.Identity, text string) error
	SendDocument(ctx context.Context, to *model.Identity, path, caption string) error
}

type TemplateStore interface {
	ActiveTemplates(ctx context.Context) ([]*model.ReplyTemplate, error)
}

type Counter interface {
	Increment(ctx context.Context, d stats.Delta) error
}

// Notifier forwards text to the operator.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type Config struct {
	// Delay before a reply is sent to a recruiter.
	Delay                  time.Duration
	NotifyMissingRecruiter bool
	ResumeDir              string
	// Rand picks templates. A time seeded source is used when nil.
	Rand *rand.Rand
}

type Deps struct {
	Sender    Sender
	Templates TemplateStore
	Counter   Counter
	Operator  Notifier
	Publisher events.Publisher
	Logger    *zap.Logger
}

type Dispatcher struct {
	cfg       Config
	sender    Sender
	templates TemplateStore
	counter   Counter
	operator  Notifier
	publisher events.Publisher
	logger    *zap.Logger

	mu   sync.Mutex
	rand *rand.Rand
}

func New(cfg Config, deps Deps) *Dispatcher {
	r := cfg.Rand
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}

	return &Dispatcher{
		cfg:       cfg,
		sender:    deps.Sender,
		templates: deps.Templates,
		counter:   deps.Counter,
		operator:  deps.Operator,
		publisher: publisher,
		logger:    logger.WithFields(deps.Logger),
		rand:      r,
	}
}

// Dispatch runs the engagement for v. The vacancy must already be stored.
// rec is nil when no recruiter was resolved.
func (d *Dispatcher) Dispatch(ctx context.Context, v *model.Vacancy, rec *model.Recruiter) (Outcome, error) {
	log := logger.WithFields(d.logger, logger.VacancyFields(v)...)
	log.Info("applying vacancy")

	if rec == nil {
		return d.escalate(ctx, v, log)
	}
	return d.reply(ctx, v, rec, log.With(zap.String(logger.FieldHandle, rec.Handle)))
}

func (d *Dispatcher) escalate(ctx context.Context, v *model.Vacancy, log *zap.Logger) (Outcome, error) {
	outcome := OutcomeSuppressed

	if d.cfg.NotifyMissingRecruiter {
		if err := d.operator.Notify(ctx, MissingRecruiterNotice(v)); err != nil {
			return "", fmt.Errorf("notifying operator about vacancy %d: %w", v.ID, err)
		}
		outcome = OutcomeOperator
		log.Info("notified operator about vacancy without recruiter")
	} else {
		log.Info("operator notification suppressed")
	}

	if err := d.counter.Increment(ctx, stats.Delta{AppliedToOperator: 1}); err != nil {
		return outcome, err
	}

	d.publish(ctx, v, outcome, "", log)
	return outcome, nil
}

func (d *Dispatcher) reply(ctx context.Context, v *model.Vacancy, rec *model.Recruiter, log *zap.Logger) (Outcome, error) {
	templates, err := d.templates.ActiveTemplates(ctx)
	if err != nil {
		return "", fmt.Errorf("loading reply templates: %w", err)
	}

	if len(templates) == 0 {
		log.Warn("no active reply templates, vacancy is not answered",
			zap.String("hint", "add templates with 'rules import'"),
		)
		return OutcomeSkipped, nil
	}

	text := Render(d.pick(templates), v.Title)

	log.Debug("waiting before reply", zap.Duration("delay", d.cfg.Delay))
	if err := utils.WaitFor(ctx, d.cfg.Delay); err != nil {
		return "", fmt.Errorf("waiting before reply to vacancy %d: %w", v.ID, err)
	}

	to := &model.Identity{ID: rec.ExternalID, Handle: rec.Handle}

	resume := FindResume(d.cfg.ResumeDir, log)
	if resume != "" {
		err = d.sender.SendDocument(ctx, to, resume, text)
	} else {
		err = d.sender.SendMessage(ctx, to, text)
	}
	if err != nil {
		return "", fmt.Errorf("replying to @%s: %w", rec.Handle, err)
	}

	log.Info("notified recruiter about vacancy", zap.Bool("resume_attached", resume != ""))

	if err := d.counter.Increment(ctx, stats.Delta{AppliedToRecruiter: 1}); err != nil {
		return OutcomeRecruiter, err
	}

	d.publish(ctx, v, OutcomeRecruiter, rec.Handle, log)
	return OutcomeRecruiter, nil
}

func (d *Dispatcher) pick(templates []*model.ReplyTemplate) *model.ReplyTemplate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return templates[d.rand.Intn(len(templates))]
}

func (d *Dispatcher) publish(ctx context.Context, v *model.Vacancy, outcome Outcome, handle string, log *zap.Logger) {
	e := events.New(events.VacancyDispatched, v)
	e.Outcome = string(outcome)
	e.Recruiter = handle

	if err := d.publisher.Publish(ctx, e); err != nil {
		log.Warn("failed to publish event", zap.String("event", string(e.Type)), zap.Error(err))
	}
}

// Render substitutes the vacancy title into the template text.
func Render(t *model.ReplyTemplate, title string) string {
	return strings.ReplaceAll(t.Text, model.TitlePlaceholder, title)
}

// MissingRecruiterNotice is sent to the operator for a vacancy nobody can be contacted about.
func MissingRecruiterNotice(v *model.Vacancy) string {
	return fmt.Sprintf("Interesting vacancy without a recruiter contact\nVacancy: %s (%d points)\n\n%s",
		v.Title, v.Score, v.Text)
}
