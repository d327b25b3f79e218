package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/tg-responder/internal/stats"
	"github.com/spigell/tg-responder/internal/storage"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the applied and replied counters",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		withStore(cmd.Context(), func(ctx context.Context, store *storage.Store, _ *zap.Logger) error {
			snapshot, err := stats.New(store).Snapshot(ctx)
			if err != nil {
				return err
			}

			pretty, err := json.MarshalIndent(snapshot, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(pretty))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
