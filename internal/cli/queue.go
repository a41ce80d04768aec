package cli

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/faceguard/internal/core/domain"
	"github.com/vietddude/faceguard/internal/offline"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the offline write queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending and dead-lettered writes",
	Run: func(cmd *cobra.Command, args []string) {
		app, stop := openApp(cmd)
		defer stop()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
		_, _ = fmt.Fprintln(w, "ID\tSTATUS\tOPERATION\tRETRIES\tENQUEUED\tLAST ERROR")
		printItems(w, app.Queue().Pending())
		printItems(w, app.Queue().DeadLettered())
		_ = w.Flush()
	},
}

var queueReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Send every pending write now",
	Run: func(cmd *cobra.Command, args []string) {
		app, stop := openApp(cmd)
		defer stop()

		res, err := app.Queue().Replay(cmd.Context())
		fmt.Println(replaySummary(res, len(app.Queue().Pending())))
		if err != nil {
			slog.Error("Replay interrupted", "error", err)
			os.Exit(1)
		}
	},
}

var queueRequeueCmd = &cobra.Command{
	Use:   "requeue [id]",
	Short: "Move a dead-lettered write back to pending",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app, stop := openApp(cmd)
		defer stop()

		if err := app.Queue().Requeue(cmd.Context(), args[0]); err != nil {
			slog.Error("Failed to requeue", "id", args[0], "error", err)
			os.Exit(1)
		}
		fmt.Printf("Requeued %s\n", args[0])
	},
}

var queueDiscardCmd = &cobra.Command{
	Use:   "discard [id]",
	Short: "Drop a dead-lettered write",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app, stop := openApp(cmd)
		defer stop()

		if err := app.Queue().Discard(cmd.Context(), args[0]); err != nil {
			slog.Error("Failed to discard", "id", args[0], "error", err)
			os.Exit(1)
		}
		fmt.Printf("Discarded %s\n", args[0])
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd, queueReplayCmd, queueRequeueCmd, queueDiscardCmd)
	rootCmd.AddCommand(queueCmd)
}

func replaySummary(res offline.ReplayResult, pending int) string {
	return fmt.Sprintf("succeeded: %d, dead-lettered: %d, still pending: %d",
		len(res.Succeeded), len(res.DeadLettered), pending)
}

func printItems(w *tabwriter.Writer, items []domain.QueueItem) {
	for _, it := range items {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s %s\t%d\t%s\t%s\n",
			it.ID,
			it.Status,
			it.Operation.Method,
			it.Operation.Path,
			it.Retries,
			it.EnqueuedAt.Format(time.RFC3339),
			it.LastError,
		)
	}
}
