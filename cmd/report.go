package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/config"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Rewrite the attendance report of a session",
	Long: `Rebuild the attendance report of a past session from the recorded marks
(the CSV ledger, or PostgreSQL when DATABASE_URL is set).

Examples:
  attendance report --list
  attendance report --session CS101_2026-02-04 --format csv --report cs101.csv`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("session", "", "Session ID")
	reportCmd.Flags().String("report", "", "Report path (overrides REPORT_PATH)")
	reportCmd.Flags().String("format", "", "Report format: text or csv (overrides REPORT_FORMAT)")
	reportCmd.Flags().Bool("list", false, "List recorded sessions")
}

func runReport(cmd *cobra.Command, args []string) error {
	sessionID := mustGetString(cmd, "session")

	cfg, log, err := loadConfig(cmd, func(c *config.Config) {
		if v := mustGetString(cmd, "report"); v != "" {
			c.Paths.ReportPath = v
		}
		if v := mustGetString(cmd, "format"); v != "" {
			c.Paths.ReportFormat = v
		}
	})
	if err != nil {
		return err
	}
	ctx := context.Background()

	db, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if mustGetBool(cmd, "list") {
		return listSessions(ctx, cfg, db)
	}
	if sessionID == "" {
		return errors.New("--session is required")
	}

	students, err := loadStudents(ctx, cfg, log)
	if err != nil {
		return err
	}

	tracker := attendance.NewTracker(1, 0)
	if err := restoreSession(ctx, db.markStore(cfg), sessionID, tracker); err != nil {
		return err
	}

	rows := attendance.BuildRows(students, tracker.Snapshot(), time.Now())
	if err := attendance.WriteReport(cfg.Paths.ReportPath, cfg.Paths.ReportFormat, rows, sessionID); err != nil {
		return err
	}
	fmt.Printf("Session %s: %d/%d present, report written to %s\n",
		sessionID, tracker.PresentCount(), len(students), cfg.Paths.ReportPath)
	return nil
}

func listSessions(ctx context.Context, cfg *config.Config, db *backend) error {
	if db.sessions != nil {
		sessions, err := db.sessions.Sessions(ctx)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			fmt.Printf("%-30s %-15s %s\n", s.ID, s.ClassName, s.StartedAt.Format(time.DateTime))
		}
		return nil
	}

	sessions, err := attendance.NewLedger(cfg.Paths.LedgerPath).Sessions(ctx)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		fmt.Println(s)
	}
	return nil
}
