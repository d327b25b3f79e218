package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/tg-responder/internal/logger"
	"github.com/spigell/tg-responder/internal/recruiter"
	"github.com/spigell/tg-responder/internal/scoring"
	"github.com/spigell/tg-responder/internal/secrets"
	"github.com/spigell/tg-responder/internal/storage"
)

const (
	app = "tg-responder"
)

type Config struct {
	Matching  MatchingConfig  `mapstructure:"matching"`
	Recruiter RecruiterConfig `mapstructure:"recruiter"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Notes     NotesConfig     `mapstructure:"notes"`
	Poll      PollConfig      `mapstructure:"poll"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Status    StatusConfig    `mapstructure:"status"`
}

type MatchingConfig struct {
	Threshold  int      `mapstructure:"threshold"`
	Exceptions []string `mapstructure:"exceptions"`
}

type RecruiterConfig struct {
	Ignore []string `mapstructure:"ignore"`
}

type DispatchConfig struct {
	// SendDelay is in seconds.
	SendDelay              int    `mapstructure:"send-delay"`
	Operator               string `mapstructure:"operator"`
	NotifyMissingRecruiter bool   `mapstructure:"notify-missing-recruiter"`
	ResumeDir              string `mapstructure:"resume-dir"`
}

type NotesConfig struct {
	Dir string `mapstructure:"dir"`
}

type PollConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	HistoryLimit int           `mapstructure:"history-limit"`
}

type IngestConfig struct {
	ScoreGroupMessages bool `mapstructure:"score-group-messages"`
}

type DatabaseConfig struct {
	URL     string `mapstructure:"url"`
	URLFile string `mapstructure:"url-file"`
}

type TelegramConfig struct {
	Token       string `mapstructure:"token"`
	TokenFile   string `mapstructure:"token-file"`
	HistorySize int    `mapstructure:"history-size"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

var envBindings = map[string]string{
	"matching.threshold":                "THRESHOLD",
	"matching.exceptions":               "MATCHING_EXCEPTIONS",
	"recruiter.ignore":                  "RECRUITER_IGNORE",
	"dispatch.send-delay":               "SEND_DELAY",
	"dispatch.operator":                 "HOST_USERNAME",
	"dispatch.notify-missing-recruiter": "NOTIFY_MISSING_RECRUITER",
	"dispatch.resume-dir":               "RESUME_DIR",
	"notes.dir":                         "NOTES_DIR",
	"poll.interval":                     "POLL_INTERVAL",
	"poll.history-limit":                "POLL_HISTORY_LIMIT",
	"ingest.score-group-messages":       "SCORE_GROUP_MESSAGES",
	"database.url":                      "DATABASE_URL",
	"database.url-file":                 "DATABASE_URL_FILE",
	"telegram.token":                    "TELEGRAM_TOKEN",
	"telegram.token-file":               "TELEGRAM_TOKEN_FILE",
	"redis.url":                         "REDIS_URL",
	"status.addr":                       "STATUS_ADDR",
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "tg-responder scores vacancies posted in telegram chats and answers their recruiters",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	viper.SetDefault("matching.threshold", 0)
	viper.SetDefault("matching.exceptions", scoring.DefaultExceptions)
	viper.SetDefault("recruiter.ignore", recruiter.DefaultIgnore)
	viper.SetDefault("dispatch.send-delay", 300)
	viper.SetDefault("dispatch.notify-missing-recruiter", true)
	viper.SetDefault("dispatch.resume-dir", "files")
	viper.SetDefault("poll.interval", "1m")
	viper.SetDefault("poll.history-limit", 50)
	viper.SetDefault("telegram.history-size", 200)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is tg-responder.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Variables from .env never override the real environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env file: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
	}

	// The config file is optional, everything can come from the environment.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config == nil {
		return nil, errors.New("config is required")
	}

	return config, config.validate()
}

func (c *Config) validate() error {
	if c.Dispatch.SendDelay < 0 {
		return fmt.Errorf("dispatch.send-delay must not be negative, got %d", c.Dispatch.SendDelay)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive, got %s", c.Poll.Interval)
	}
	if c.Poll.HistoryLimit <= 0 {
		return fmt.Errorf("poll.history-limit must be positive, got %d", c.Poll.HistoryLimit)
	}
	return nil
}

func newLogger() *zap.Logger {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	return logger
}

func openStore(ctx context.Context, config *Config) (*storage.Store, error) {
	db := config.Database

	url, err := secrets.Load(secrets.Source{
		Name:  "database url",
		Value: db.URL,
		File:  db.URLFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set DATABASE_URL or DATABASE_URL_FILE)", err)
	}

	return storage.New(ctx, url)
}
