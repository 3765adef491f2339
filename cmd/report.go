package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/facegate/rollcall/internal/attendance"
	"github.com/facegate/rollcall/internal/config"
	"github.com/facegate/rollcall/internal/store"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the absentee report for a day",
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("date", "", "Day to report on, YYYY-MM-DD (defaults to today)")
	reportCmd.Flags().String("class", "", "Restrict the roster to one class")
	reportCmd.Flags().String("section", "", "Restrict the roster to one section")
	reportCmd.Flags().String("house", "", "Restrict the roster to one house")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	day := mustGetString(cmd, "date")
	if day == "" {
		day = time.Now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", day); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD")
	}

	st, err := store.New(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening embedding store: %w", err)
	}
	ledger, err := attendance.NewLedger(filepath.Join(cfg.Storage.DataDir, "attendance.csv"))
	if err != nil {
		return fmt.Errorf("opening attendance ledger: %w", err)
	}

	filter := attendance.ReportFilter{
		Class:   mustGetString(cmd, "class"),
		Section: mustGetString(cmd, "section"),
		House:   mustGetString(cmd, "house"),
	}

	attendees, err := ledger.AttendeesOn(day)
	if err != nil {
		return fmt.Errorf("reading attendance log: %w", err)
	}
	report := attendance.Absentees(st.UsersWithMetadata(), attendees, day, filter)

	fmt.Printf("Attendance for %s: %d present, %d absent (%d in scope)\n",
		report.Date, report.PresentCount, report.AbsentCount, report.TotalInScope)

	if len(report.Absent) > 0 {
		fmt.Println("\nAbsent:")
		for _, user := range report.Absent {
			line := "  " + user.Name
			if user.StudentClass != "" || user.Section != "" {
				line += fmt.Sprintf(" (class %s%s)", user.StudentClass, user.Section)
			}
			fmt.Println(line)
		}
	}
	return nil
}
