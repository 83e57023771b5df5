package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/camera"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/embedding"
	"github.com/kozaktomas/attendance/internal/pipeline"
	"github.com/kozaktomas/attendance/internal/recognition"
	"github.com/kozaktomas/attendance/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kiosk API",
	Long: `Start an HTTP server that takes attendance from snapshots posted by door
cameras or tablets instead of a local webcam. Every snapshot goes through the
same detection, matching and confirmation steps as the camera loop.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().String("session", "", "Session ID (default <class>_<date> or a random ID)")
	serveCmd.Flags().String("class", "", "Class name used for the default session ID")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd, func(c *config.Config) {
		if v := mustGetInt(cmd, "port"); v > 0 {
			c.Web.Port = v
		}
		if v := mustGetString(cmd, "host"); v != "" {
			c.Web.Host = v
		}
		if v := mustGetString(cmd, "session"); v != "" {
			c.Attendance.SessionID = v
		}
		if v := mustGetString(cmd, "class"); v != "" {
			c.Attendance.ClassName = v
		}
	})
	if err != nil {
		return err
	}
	ctx := context.Background()

	students, err := loadStudents(ctx, cfg, log)
	if err != nil {
		return err
	}
	db, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	reg, err := loadRegistry(ctx, cfg, log, db, students)
	if err != nil {
		return err
	}
	index, err := buildIndex(cfg, log, db, reg)
	if err != nil {
		return err
	}

	sessionID := attendance.SessionID(cfg.Attendance.SessionID, cfg.Attendance.ClassName, time.Now())
	tracker := attendance.NewTracker(cfg.Attendance.Confirmations, cfg.Attendance.MinConfidence)
	marks := db.markStore(cfg)
	if err := restoreSession(ctx, marks, sessionID, tracker); err != nil {
		return err
	}

	detector, err := camera.NewDetector(cfg.Camera)
	if err != nil {
		return err
	}
	defer detector.Close()

	runner := pipeline.NewRunner(nil, embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Model),
		recognition.NewMatcher(index, cfg.Threshold()), tracker, marks, nil, log, pipeline.Options{
			SessionID:    sessionID,
			ClassName:    cfg.Attendance.ClassName,
			Students:     students,
			ReportPath:   cfg.Paths.ReportPath,
			ReportFormat: cfg.Paths.ReportFormat,
		})
	if err := runner.StartSession(ctx); err != nil {
		return err
	}

	server := web.NewServer(cfg, web.Session{
		ID:        sessionID,
		Students:  students,
		Registry:  reg,
		Tracker:   tracker,
		Detector:  detector,
		Processor: runner,
		Reports:   runner,
	}, log)

	stopped := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
		close(stopped)
	}()

	fmt.Printf("Session %s: kiosk API on http://%s:%d/api/v1\n", sessionID, cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-stopped
	return nil
}
