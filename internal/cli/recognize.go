package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/faceguard/internal/capture"
)

var (
	recognizeRetries int
	recognizeAck     bool
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize [image]",
	Short: "Submit an image file for recognition",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app, stop := openApp(cmd)
		defer stop()

		ctx := cmd.Context()
		session := app.NewSession(capture.FileCamera{Path: args[0]})

		err := session.Capture(ctx)
		for i := 0; err != nil && i < recognizeRetries && session.Snapshot().State == capture.StateFailed; i++ {
			slog.Warn("Recognition failed, resubmitting same image", "error", err, "attempt", i+1)
			err = session.RetrySameImage(ctx)
		}
		if err != nil {
			slog.Error("Recognition failed", "error", err)
			os.Exit(1)
		}

		snap := session.Snapshot()
		out, _ := json.MarshalIndent(snap.Result, "", "  ")
		fmt.Println(string(out))

		if snap.AlertPending {
			fmt.Printf("SECURITY ALERT %s (%s): %s\n",
				snap.Result.Alert.ID, snap.Result.Alert.Level, snap.Result.Alert.Message)
			if !recognizeAck {
				return
			}
			if err := session.AcknowledgeAlert(ctx); err != nil && !errors.Is(err, capture.ErrNoAlert) {
				slog.Error("Failed to acknowledge alert", "error", err)
				os.Exit(1)
			}
			fmt.Println("Alert acknowledged")
		}
	},
}

func init() {
	recognizeCmd.Flags().IntVar(&recognizeRetries, "retries", 0, "resubmit the same image this many times after a failure")
	recognizeCmd.Flags().BoolVar(&recognizeAck, "ack", false, "acknowledge a security alert immediately")
	rootCmd.AddCommand(recognizeCmd)
}
