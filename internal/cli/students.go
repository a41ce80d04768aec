package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/faceguard/internal/core/domain"
	"github.com/vietddude/faceguard/internal/paging"
)

var (
	searchClass string
	searchPages int
)

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "Browse enrolled students",
}

var studentsSearchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Search the student listing page by page",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app, stop := openApp(cmd)
		defer stop()

		filter := paging.Filter{Params: map[string]string{"class": searchClass}}
		if len(args) == 1 {
			filter.Search = args[0]
		}

		ctrl := app.NewSearch()
		defer ctrl.Close()

		ctx := cmd.Context()
		if err := ctrl.Apply(ctx, filter); err != nil {
			slog.Error("Search failed", "error", err)
			os.Exit(1)
		}
		for loaded := 1; loaded < searchPages && ctrl.Snapshot().HasMore(); loaded++ {
			if _, err := ctrl.LoadNextPage(ctx); err != nil {
				slog.Warn("Stopped paging", "error", err)
				break
			}
		}

		snap := ctrl.Snapshot()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
		_, _ = fmt.Fprintln(w, "ID\tNAME\tCLASS\tSTATUS")
		for _, item := range snap.Items {
			var s domain.Student
			if err := json.Unmarshal(item.Data, &s); err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Class, s.Status)
		}
		_ = w.Flush()
		fmt.Printf("page %d of %d\n", snap.Page, snap.TotalPages)
	},
}

var studentsFindCmd = &cobra.Command{
	Use:   "find [student_id]",
	Short: "Look a student up by id",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app, stop := openApp(cmd)
		defer stop()

		student, err := app.Service().FindStudent(cmd.Context(), args[0])
		if err != nil {
			slog.Error("Lookup failed", "student_id", args[0], "error", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(student, "", "  ")
		fmt.Println(string(out))
	},
}

func init() {
	studentsSearchCmd.Flags().StringVar(&searchClass, "class", "", "only students of this class")
	studentsSearchCmd.Flags().IntVar(&searchPages, "pages", 1, "number of pages to load")
	studentsCmd.AddCommand(studentsSearchCmd, studentsFindCmd)
	rootCmd.AddCommand(studentsCmd)
}
