package cli

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/faceguard/internal/control"
	"github.com/vietddude/faceguard/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "faceguard",
	Short: "Resilient client for the face-recognition security service",
	Long: `faceguard talks to the face-recognition service with retries, a response
cache and a durable offline queue for writes made while the service is down.`,
	Run: runClient,
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the client: probe connectivity, replay the queue and serve health",
		Run:   runClient,
	})
}

// loadConfig reads the config file and sets up logging. A missing default
// config file falls back to built-in defaults.
func loadConfig(cmd *cobra.Command) *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}
	if cfg.Logging.Format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))
		return cfg
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return cfg
}

// openApp builds the client without starting background workers.
func openApp(cmd *cobra.Command) (*control.App, func()) {
	cfg := loadConfig(cmd)
	app, err := control.NewApp(cmd.Context(), *cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize client", "error", err)
		os.Exit(1)
	}
	return app, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.Stop(stopCtx); err != nil {
			slog.Warn("Error during shutdown", "error", err)
		}
	}
}

func runClient(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := control.NewApp(ctx, *cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize client", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start client", "error", err)
		os.Exit(1)
	}

	slog.Info("Client started", "config", cfgPath, "remote", cfg.Remote.URL)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}
