package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe the service and show queue and cache state",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	app, stop := openApp(cmd)
	defer stop()

	ctx := cmd.Context()
	app.Connectivity().Probe(ctx)
	report := app.Health(ctx)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "STATUS\tONLINE\tPENDING\tDEAD\tCACHED")
	_, _ = fmt.Fprintf(w, "%s\t%t\t%d\t%d\t%d\n",
		report.SystemStatus,
		report.Remote.Online,
		report.Queue.Pending,
		report.Queue.DeadLettered,
		report.CacheEntries,
	)
	_ = w.Flush()

	if report.Remote.LastError != "" {
		fmt.Printf("last error: %s\n", report.Remote.LastError)
	}
}
