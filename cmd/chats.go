package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/tg-responder/internal/model"
	"github.com/spigell/tg-responder/internal/storage"
)

const PromptCancel = "cancel"

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Manage the chats the bot watches",
}

var chatsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known chats",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		withStore(cmd.Context(), func(ctx context.Context, store *storage.Store, _ *zap.Logger) error {
			chats, err := store.Chats(ctx)
			if err != nil {
				return err
			}
			for _, chat := range chats {
				fmt.Println(chatLabel(chat))
			}
			return nil
		})
	},
}

var chatsActivateCmd = &cobra.Command{
	Use:   "activate [external-id]",
	Short: "Start scoring messages of a chat. Without an id an inactive chat is picked interactively",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withStore(cmd.Context(), func(ctx context.Context, store *storage.Store, logger *zap.Logger) error {
			var id int64
			var err error
			if len(args) == 1 {
				id, err = parseChatID(args[0])
			} else {
				id, err = pickInactiveChat(ctx, store)
			}
			if err != nil || id == 0 {
				return err
			}

			if err := store.SetChatActive(ctx, id, true); err != nil {
				return err
			}
			logger.Info("chat activated", zap.Int64("chat_id", id))
			return nil
		})
	},
}

var chatsDeactivateCmd = &cobra.Command{
	Use:   "deactivate <external-id>",
	Short: "Stop scoring messages of a chat",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withStore(cmd.Context(), func(ctx context.Context, store *storage.Store, logger *zap.Logger) error {
			id, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			if err := store.SetChatActive(ctx, id, false); err != nil {
				return err
			}
			logger.Info("chat deactivated", zap.Int64("chat_id", id))
			return nil
		})
	},
}

func init() {
	chatsCmd.AddCommand(chatsListCmd, chatsActivateCmd, chatsDeactivateCmd)
	rootCmd.AddCommand(chatsCmd)
}

type chatStore interface {
	Chats(ctx context.Context) ([]*model.ChatSource, error)
	SetChatActive(ctx context.Context, externalID int64, active bool) error
}

// withStore runs fn against the configured database and exits on failure.
func withStore(ctx context.Context, fn func(ctx context.Context, store *storage.Store, logger *zap.Logger) error) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := newLogger()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	store, err := openStore(ctx, config)
	if err != nil {
		logger.Fatal("connecting to the database", zap.Error(err))
	}
	defer store.Close()

	if err := fn(ctx, store, logger); err != nil {
		logger.Fatal("exiting", zap.Error(err))
	}
}

func pickInactiveChat(ctx context.Context, store chatStore) (int64, error) {
	chats, err := store.Chats(ctx)
	if err != nil {
		return 0, err
	}

	items := make([]string, 0, len(chats)+1)
	for _, chat := range chats {
		if !chat.Active {
			items = append(items, chatLabel(chat))
		}
	}
	if len(items) == 0 {
		fmt.Println("there are no inactive chats")
		return 0, nil
	}

	chatPrompt := promptui.Select{
		Label: "Choose a chat to activate and press ENTER",
		Items: append(items, PromptCancel),
	}

	_, selected, err := chatPrompt.Run()
	if err != nil {
		return 0, err
	}
	if selected == PromptCancel {
		return 0, nil
	}

	return parseChatID(strings.Fields(selected)[0])
}

func chatLabel(chat *model.ChatSource) string {
	state := "inactive"
	if chat.Active {
		state = "active"
	}
	return fmt.Sprintf("%d %s / %s / %s", chat.ExternalID, chat.Title, chat.Kind, state)
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", s, err)
	}
	return id, nil
}
