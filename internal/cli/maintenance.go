package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/faceguard/internal/control"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the response cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached response",
	Run: func(cmd *cobra.Command, args []string) {
		app, stop := openApp(cmd)
		defer stop()

		n := app.Cache().Len()
		if err := app.Cache().InvalidateAll(cmd.Context()); err != nil {
			slog.Error("Failed to clear cache", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Cleared %d cached responses\n", n)
	},
}

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Manage the durable store",
}

var storageResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all queued writes and cached responses",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		ctx := cmd.Context()

		store, err := control.OpenStore(ctx, *cfg)
		if err != nil {
			slog.Error("Failed to open store", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = store.Close()
		}()

		if err := store.Clear(ctx); err != nil {
			slog.Error("Failed to reset store", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Reset %s store\n", cfg.Storage.Backend)
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	storageCmd.AddCommand(storageResetCmd)
	rootCmd.AddCommand(cacheCmd, storageCmd)
}
