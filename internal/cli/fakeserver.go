package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/faceguard/internal/remote/fakeserver"
)

var (
	fakePort     int
	fakeStudents int
	fakeToken    string
	fakeDirect   bool
)

var fakeServerCmd = &cobra.Command{
	Use:   "fake-server",
	Short: "Serve an in-memory recognition service for local testing",
	Run: func(cmd *cobra.Command, args []string) {
		loadConfig(cmd)

		fake := fakeserver.New(fakeserver.Seed(fakeStudents))
		fake.SetDirectLookup(fakeDirect)
		if fakeToken != "" {
			fake.RequireToken(fakeToken)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", fakePort),
			Handler:           fake.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Fake server failed", "error", err)
				os.Exit(1)
			}
		}()
		slog.Info("Fake service listening", "port", fakePort, "students", fakeStudents)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	},
}

func init() {
	fakeServerCmd.Flags().IntVar(&fakePort, "port", 8000, "listen port")
	fakeServerCmd.Flags().IntVar(&fakeStudents, "students", 50, "number of seeded students")
	fakeServerCmd.Flags().StringVar(&fakeToken, "token", "", "require this bearer token")
	fakeServerCmd.Flags().BoolVar(&fakeDirect, "direct-lookup", true, "serve GET /students/{id}")
	rootCmd.AddCommand(fakeServerCmd)
}
