package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/tg-responder/internal/dispatch"
	"github.com/spigell/tg-responder/internal/events"
	"github.com/spigell/tg-responder/internal/notes"
	"github.com/spigell/tg-responder/internal/pipeline"
	"github.com/spigell/tg-responder/internal/recruiter"
	"github.com/spigell/tg-responder/internal/registry"
	"github.com/spigell/tg-responder/internal/reply"
	"github.com/spigell/tg-responder/internal/scoring"
	"github.com/spigell/tg-responder/internal/secrets"
	"github.com/spigell/tg-responder/internal/stats"
	"github.com/spigell/tg-responder/internal/status"
	"github.com/spigell/tg-responder/internal/telegram"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Listen to telegram, score vacancies and answer recruiters",
	Run: func(_ *cobra.Command, _ []string) {
		run()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// run is the main command for the cli.
func run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the tg-responder", zap.String("version", version))

	// secrets are never printed, only the non-secret sections
	pretty, _ := json.MarshalIndent(struct {
		Matching  MatchingConfig
		Recruiter RecruiterConfig
		Dispatch  DispatchConfig
		Poll      PollConfig
		Ingest    IngestConfig
	}{config.Matching, config.Recruiter, config.Dispatch, config.Poll, config.Ingest}, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	store, err := openStore(ctx, config)
	if err != nil {
		logger.Fatal("connecting to the database", zap.Error(err))
	}
	defer store.Close()

	token, err := secrets.Load(secrets.Source{
		Name:  "telegram token",
		Value: config.Telegram.Token,
		File:  config.Telegram.TokenFile,
	})
	if err != nil {
		logger.Fatal(
			"loading telegram token",
			zap.Error(err),
			zap.String("hint", "set TELEGRAM_TOKEN_FILE environment variable or the 'telegram.token-file' key in the configuration file"),
		)
	}

	tg, err := telegram.New(token, config.Telegram.HistorySize, logger)
	if err != nil {
		logger.Fatal("starting telegram client", zap.Error(err))
	}

	publisher, closePublisher := newPublisher(ctx, config, logger)
	defer closePublisher()

	if config.Dispatch.Operator == "" && config.Dispatch.NotifyMissingRecruiter {
		logger.Warn("operator is not configured, notifications will fail",
			zap.String("hint", "set HOST_USERNAME or 'dispatch.operator'"),
		)
	}

	aggregator := stats.New(store)
	operator := dispatch.NewOperator(config.Dispatch.Operator, tg, tg)

	dispatcher := dispatch.New(dispatch.Config{
		Delay:                  time.Duration(config.Dispatch.SendDelay) * time.Second,
		NotifyMissingRecruiter: config.Dispatch.NotifyMissingRecruiter,
		ResumeDir:              config.Dispatch.ResumeDir,
	}, dispatch.Deps{
		Sender:    tg,
		Templates: store,
		Counter:   aggregator,
		Operator:  operator,
		Publisher: publisher,
		Logger:    logger,
	})

	replies := reply.New(reply.Deps{
		Store:     store,
		Counter:   aggregator,
		Operator:  operator,
		Publisher: publisher,
		Logger:    logger,
	})

	p := pipeline.New(pipeline.Config{
		ScoreGroupMessages: config.Ingest.ScoreGroupMessages,
	}, pipeline.Deps{
		Registry:   registry.New(store, logger),
		Rules:      store,
		Vacancies:  store,
		Engine:     scoring.New(config.Matching.Threshold, config.Matching.Exceptions),
		Resolver:   recruiter.New(store, tg, config.Recruiter.Ignore, logger),
		Dispatcher: dispatcher,
		Replies:    replies,
		Notes:      notes.New(config.Notes.Dir, logger),
		Publisher:  publisher,
		Logger:     logger,
	})

	if config.Ingest.ScoreGroupMessages {
		logger.Warn("group messages are scored as they arrive", zap.String("hint", "prefer activating chats and polling"))
	}

	poller := pipeline.NewPoller(p, tg, config.Poll.Interval, config.Poll.HistoryLimit, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tg.Listen(gctx, p.HandleInbound)
	})
	g.Go(func() error {
		return poller.Run(gctx)
	})
	if config.Status.Addr != "" {
		srv := status.New(config.Status.Addr, store, aggregator, logger)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	err = g.Wait()

	// pending dispatches see the cancelled context and give up
	p.Wait()

	if err != nil {
		logger.Error("exiting", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("exiting", zap.String("reason", "shutdown requested"))
}

func newPublisher(ctx context.Context, config *Config, logger *zap.Logger) (events.Publisher, func()) {
	if config.Redis.URL == "" {
		return events.Nop{}, func() {}
	}

	publisher, err := events.NewRedis(ctx, config.Redis.URL)
	if err != nil {
		logger.Fatal("connecting to redis", zap.Error(err))
	}

	logger.Info("publishing vacancy events to redis")
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("closing redis client", zap.Error(err))
		}
	}
}
