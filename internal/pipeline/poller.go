package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spigell/tg-responder/internal/model"
)

type HistoryFetcher interface {
	FetchRecentHistory(ctx context.Context, chatExternalID int64, limit int) ([]model.InboundMessage, error)
}

// CycleStats are the totals of one poll cycle.
type CycleStats struct {
	Chats   int
	Fetched int
	Seen    int
	Created int
}

// Poller periodically feeds the recent history of active chats into the pipeline.
type Poller struct {
	pipeline *Pipeline
	fetcher  HistoryFetcher
	interval time.Duration
	limit    int
	logger   *zap.Logger
}

func NewPoller(p *Pipeline, fetcher HistoryFetcher, interval time.Duration, limit int, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		pipeline: p,
		fetcher:  fetcher,
		interval: interval,
		limit:    limit,
		logger:   logger.With(zap.String("component", "poller")),
	}
}

// Run polls once right away and then on every interval until ctx is done.
// Cycles never overlap.
func (p *Poller) Run(ctx context.Context) error {
	if p.interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", p.interval)
	}

	clog := cronLogger{logger: p.logger.Sugar()}
	job := cron.NewChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)).
		Then(cron.FuncJob(func() { p.Cycle(ctx) }))

	scheduler := cron.New(cron.WithLogger(clog))
	scheduler.Schedule(cron.Every(p.interval), job)
	scheduler.Start()

	p.logger.Info("poller started", zap.Duration("interval", p.interval), zap.Int("history_limit", p.limit))
	job.Run()

	<-ctx.Done()
	<-scheduler.Stop().Done()
	p.logger.Info("poller stopped")
	return nil
}

// Cycle processes the recent history of every active chat once.
func (p *Poller) Cycle(ctx context.Context) CycleStats {
	var stats CycleStats

	chats, err := p.pipeline.registry.Active(ctx)
	if err != nil {
		p.logger.Error("failed to list active chats", zap.Error(err))
		return stats
	}
	stats.Chats = len(chats)

	for _, chat := range chats {
		if ctx.Err() != nil {
			break
		}

		log := p.logger.With(zap.Int64("chat_id", chat.ExternalID), zap.String("title", chat.Title))

		messages, err := p.fetcher.FetchRecentHistory(ctx, chat.ExternalID, p.limit)
		if err != nil {
			log.Warn("failed to fetch chat history", zap.Error(err))
			continue
		}

		for _, msg := range messages {
			stats.Fetched++

			result, err := p.process(ctx, chat, msg)
			if err != nil {
				log.Error("failed to process message", zap.Int64("message_id", msg.ID), zap.Error(err))
				continue
			}

			if result != ResultDuplicate && result != ResultInactive {
				stats.Seen++
			}
			if result == ResultCreated {
				stats.Created++
			}
		}
	}

	p.logger.Info("poll cycle finished",
		zap.Int("chats", stats.Chats),
		zap.Int("fetched", stats.Fetched),
		zap.Int("seen", stats.Seen),
		zap.Int("created", stats.Created),
	)
	return stats
}

func (p *Poller) process(ctx context.Context, chat *model.ChatSource, msg model.InboundMessage) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.pipeline.Process(ctx, chat, msg)
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
