package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/tg-responder/internal/model"
	"github.com/spigell/tg-responder/internal/storage"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage scoring rules and reply templates",
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Upsert rules and reply templates by title from a yaml or json file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withStore(cmd.Context(), func(ctx context.Context, store *storage.Store, logger *zap.Logger) error {
			rules, templates, err := readRulesFile(args[0])
			if err != nil {
				return err
			}

			if err := store.ImportRules(ctx, rules, templates); err != nil {
				return err
			}

			logger.Info("imported rules", zap.Int("rules", len(rules)), zap.Int("templates", len(templates)))
			return nil
		})
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scoring rules",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		withStore(cmd.Context(), func(ctx context.Context, store *storage.Store, _ *zap.Logger) error {
			rules, err := store.Rules(ctx)
			if err != nil {
				return err
			}
			for _, r := range rules {
				fmt.Printf("%s (weight %d, active %t): %s\n", r.Title, r.Weight, r.Active, r.Text)
			}
			return nil
		})
	},
}

func init() {
	rulesCmd.AddCommand(rulesImportCmd, rulesListCmd)
	rootCmd.AddCommand(rulesCmd)
}

// rulesFile is the import format. Entries are active unless said otherwise.
type rulesFile struct {
	Rules []struct {
		Title  string `mapstructure:"title"`
		Text   string `mapstructure:"text"`
		Weight int    `mapstructure:"weight"`
		Active *bool  `mapstructure:"active"`
	} `mapstructure:"rules"`
	Templates []struct {
		Title  string `mapstructure:"title"`
		Text   string `mapstructure:"text"`
		Active *bool  `mapstructure:"active"`
	} `mapstructure:"templates"`
}

func readRulesFile(path string) ([]model.Rule, []model.ReplyTemplate, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("reading rules file: %w", err)
	}

	var file rulesFile
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &file,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, nil, fmt.Errorf("decoding rules file: %w", err)
	}

	var errs []error
	rules := make([]model.Rule, 0, len(file.Rules))
	for i, r := range file.Rules {
		if strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.Text) == "" {
			errs = append(errs, fmt.Errorf("rule #%d: title and text are required", i+1))
			continue
		}
		if r.Weight <= 0 {
			errs = append(errs, fmt.Errorf("rule %q: weight must be positive", r.Title))
			continue
		}
		rules = append(rules, model.Rule{Title: r.Title, Text: r.Text, Weight: r.Weight, Active: isActive(r.Active)})
	}

	templates := make([]model.ReplyTemplate, 0, len(file.Templates))
	for i, t := range file.Templates {
		if strings.TrimSpace(t.Title) == "" || strings.TrimSpace(t.Text) == "" {
			errs = append(errs, fmt.Errorf("template #%d: title and text are required", i+1))
			continue
		}
		templates = append(templates, model.ReplyTemplate{Title: t.Title, Text: t.Text, Active: isActive(t.Active)})
	}

	if err := errors.Join(errs...); err != nil {
		return nil, nil, err
	}
	return rules, templates, nil
}

func isActive(v *bool) bool {
	return v == nil || *v
}
