// Package pipeline routes inbound messages through the registry, the scoring
// gate, recruiter resolution, persistence and engagement dispatch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spigell/tg-responder/internal/dispatch"
	"github.com/spigell/tg-responder/internal/events"
	"github.com/spigell/tg-responder/internal/logger"
	"github.com/spigell/tg-responder/internal/model"
	"github.com/spigell/tg-responder/internal/scoring"
	"github.com/spigell/tg-responder/internal/utils"
)

// Result tells how far a message got through Process.
type Result int

const (
	ResultInactive Result = iota
	ResultDuplicate
	ResultBlank
	ResultBelowThreshold
	ResultCreated
)

func (r Result) String() string {
	switch r {
	case ResultInactive:
		return "inactive"
	case ResultDuplicate:
		return "duplicate"
	case ResultBlank:
		return "blank"
	case ResultBelowThreshold:
		return "below threshold"
	case ResultCreated:
		return "created"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

type Registry interface {
	Observe(ctx context.Context, externalID int64, title string, kind model.ChatKind) (*model.ChatSource, bool, error)
	MarkSeen(ctx context.Context, chat *model.ChatSource, messageID int64) (bool, error)
	Active(ctx context.Context) ([]*model.ChatSource, error)
}

type RuleStore interface {
	ActiveRules(ctx context.Context) ([]model.Rule, error)
}

type VacancyStore interface {
	CreateVacancy(ctx context.Context, v *model.Vacancy) (*model.Vacancy, error)
}

type Resolver interface {
	Resolve(ctx context.Context, text string) (*model.Recruiter, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, v *model.Vacancy, rec *model.Recruiter) (dispatch.Outcome, error)
}

type ReplyCapturer interface {
	Capture(ctx context.Context, msg model.InboundMessage) (bool, error)
}

type NoteSink interface {
	Write(v *model.Vacancy, rec *model.Recruiter) (string, error)
}

type Config struct {
	// ScoreGroupMessages scores group messages as they arrive instead of
	// waiting for the poller.
	ScoreGroupMessages bool
}

type Deps struct {
	Registry   Registry
	Rules      RuleStore
	Vacancies  VacancyStore
	Engine     *scoring.Engine
	Resolver   Resolver
	Dispatcher Dispatcher
	Replies    ReplyCapturer
	Notes      NoteSink
	Publisher  events.Publisher
	Logger     *zap.Logger
}

type Pipeline struct {
	cfg        Config
	registry   Registry
	rules      RuleStore
	vacancies  VacancyStore
	engine     *scoring.Engine
	resolver   Resolver
	dispatcher Dispatcher
	replies    ReplyCapturer
	notes      NoteSink
	publisher  events.Publisher
	logger     *zap.Logger

	wg sync.WaitGroup
}

func New(cfg Config, deps Deps) *Pipeline {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}

	return &Pipeline{
		cfg:        cfg,
		registry:   deps.Registry,
		rules:      deps.Rules,
		vacancies:  deps.Vacancies,
		engine:     deps.Engine,
		resolver:   deps.Resolver,
		dispatcher: deps.Dispatcher,
		replies:    deps.Replies,
		notes:      deps.Notes,
		publisher:  publisher,
		logger:     logger.WithFields(deps.Logger),
	}
}

// HandleInbound is the push callback of the transport. A failure or a panic
// is confined to the message that caused it.
func (p *Pipeline) HandleInbound(ctx context.Context, msg model.InboundMessage) (err error) {
	log := logger.WithFields(p.logger, logger.MessageFields(msg)...)

	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered from panic while handling message", zap.Any("panic", r))
			err = fmt.Errorf("handling message %d: panic: %v", msg.ID, r)
		}
	}()

	switch {
	case msg.ChatKind == model.ChatPrivate:
		captured, err := p.replies.Capture(ctx, msg)
		if err != nil {
			return fmt.Errorf("capturing reply: %w", err)
		}
		log.Debug("private message", zap.Bool("captured", captured))
		return nil

	case msg.ChatKind.IsGroup(), msg.ChatKind == model.ChatChannel:
		chat, created, err := p.registry.Observe(ctx, msg.ChatID, msg.ChatTitle, msg.ChatKind)
		if err != nil {
			return err
		}
		if created || msg.ChatKind == model.ChatChannel || !p.cfg.ScoreGroupMessages {
			return nil
		}

		result, err := p.Process(ctx, chat, msg)
		if err != nil {
			return err
		}
		log.Debug("group message processed", zap.Stringer("result", result))
		return nil

	default:
		log.Info("unknown chat type", zap.String("kind", string(msg.ChatKind)))
		return nil
	}
}

// Process scores a message of chat and, when it qualifies, stores the vacancy
// and starts its dispatch in the background.
func (p *Pipeline) Process(ctx context.Context, chat *model.ChatSource, msg model.InboundMessage) (Result, error) {
	if !chat.Active {
		return ResultInactive, nil
	}

	fresh, err := p.registry.MarkSeen(ctx, chat, msg.ID)
	if err != nil {
		return 0, err
	}
	if !fresh {
		return ResultDuplicate, nil
	}

	text := msg.Body()
	if strings.TrimSpace(text) == "" {
		return ResultBlank, nil
	}

	rules, err := p.rules.ActiveRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading rules: %w", err)
	}

	log := logger.WithFields(p.logger, logger.MessageFields(msg)...)

	score := p.engine.Score(text, rules)
	if !p.engine.Qualifies(score) {
		log.Debug("message is below threshold",
			zap.Int(logger.FieldScore, score),
			zap.String("text", utils.TruncateForLog(utils.SingleLine(text), 60)),
		)
		return ResultBelowThreshold, nil
	}

	rec, err := p.resolver.Resolve(ctx, text)
	if err != nil {
		log.Error("failed to resolve recruiter, storing vacancy without one", zap.Error(err))
		rec = nil
	}

	v := &model.Vacancy{
		Title:  scoring.ExtractTitle(text),
		Text:   text,
		Score:  score,
		ChatID: chat.ID,
	}
	if rec != nil {
		v.RecruiterID = rec.ID
	}

	v, err = p.vacancies.CreateVacancy(ctx, v)
	if err != nil {
		return 0, fmt.Errorf("storing vacancy: %w", err)
	}

	log = logger.WithFields(log, logger.VacancyFields(v)...)
	log.Info("new vacancy", zap.Bool("has_recruiter", rec != nil))

	if p.notes != nil {
		if path, err := p.notes.Write(v, rec); err != nil {
			log.Warn("failed to write note", zap.Error(err))
		} else if path != "" {
			log.Debug("note written", zap.String("path", path))
		}
	}

	if err := p.publisher.Publish(ctx, events.New(events.VacancyCreated, v)); err != nil {
		log.Warn("failed to publish event", zap.String("event", string(events.VacancyCreated)), zap.Error(err))
	}

	p.dispatchAsync(ctx, v, rec, log)
	return ResultCreated, nil
}

func (p *Pipeline) dispatchAsync(ctx context.Context, v *model.Vacancy, rec *model.Recruiter, log *zap.Logger) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error("recovered from panic while dispatching vacancy", zap.Any("panic", r))
			}
		}()

		outcome, err := p.dispatcher.Dispatch(ctx, v, rec)
		switch {
		case errors.Is(err, context.Canceled):
			log.Info("dispatch abandoned on shutdown")
		case err != nil:
			log.Error("failed to dispatch vacancy", zap.Error(err))
		default:
			log.Debug("vacancy dispatched", zap.String("outcome", string(outcome)))
		}
	}()
}

// Wait blocks until background dispatches are finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}
