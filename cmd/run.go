package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/camera"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/embedding"
	"github.com/kozaktomas/attendance/internal/pipeline"
	"github.com/kozaktomas/attendance/internal/recognition"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Take attendance from the camera",
	Long: `Read the camera feed, recognise faces and mark students present after
they have been recognised the configured number of times. The report is
rewritten whenever a student is confirmed and once more when the run ends.

The run ends when the stream ends, on Ctrl+C, after --duration, when q is
pressed in the preview window or, with --stop-when-complete, once every
registered student is present.

Examples:
  # Default webcam with a preview window
  attendance run --preview --class CS101

  # IP camera for 10 minutes, CSV report
  attendance run --device rtsp://10.0.0.5/stream --duration 10m --format csv`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("device", "", "Camera index, video file or stream URL (overrides CAMERA_DEVICE)")
	runCmd.Flags().String("session", "", "Session ID (default <class>_<date> or a random ID)")
	runCmd.Flags().String("class", "", "Class name used for the default session ID")
	runCmd.Flags().Int("confirmations", 0, "Detections required before a student is present (overrides ATTENDANCE_CONFIRMATIONS)")
	runCmd.Flags().Float64("threshold", 0, "Distance threshold (overrides RECOGNITION_THRESHOLD)")
	runCmd.Flags().Duration("duration", 0, "Stop after this long (0 runs until stopped)")
	runCmd.Flags().Bool("preview", false, "Show the preview window")
	runCmd.Flags().Bool("stop-when-complete", false, "Stop once every registered student is present")
	runCmd.Flags().String("report", "", "Report path (overrides REPORT_PATH)")
	runCmd.Flags().String("format", "", "Report format: text or csv (overrides REPORT_FORMAT)")
}

// runFlagOverrides applies the run command line flags to the configuration.
func runFlagOverrides(cmd *cobra.Command) func(*config.Config) {
	return func(c *config.Config) {
		if v := mustGetString(cmd, "device"); v != "" {
			c.Camera.Device = v
		}
		if v := mustGetString(cmd, "session"); v != "" {
			c.Attendance.SessionID = v
		}
		if v := mustGetString(cmd, "class"); v != "" {
			c.Attendance.ClassName = v
		}
		if cmd.Flags().Changed("confirmations") {
			c.Attendance.Confirmations = mustGetInt(cmd, "confirmations")
		}
		if v := mustGetFloat64(cmd, "threshold"); v > 0 {
			c.Recognition.Threshold = v
		}
		if mustGetBool(cmd, "preview") {
			c.Camera.Preview = true
		}
		if v := mustGetString(cmd, "report"); v != "" {
			c.Paths.ReportPath = v
		}
		if v := mustGetString(cmd, "format"); v != "" {
			c.Paths.ReportFormat = v
		}
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd, runFlagOverrides(cmd))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	matcher := recognition.NewMatcher(index, cfg.Threshold())

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

	source, err := camera.Open(cfg.Camera, detector)
	if err != nil {
		return err
	}
	defer source.Close()

	var preview pipeline.Previewer
	if cfg.Camera.Preview {
		p := camera.NewPreview(source)
		defer p.Close()
		preview = p
	}

	runner := pipeline.NewRunner(source, embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Model),
		matcher, tracker, marks, preview, log, pipeline.Options{
			SessionID:        sessionID,
			ClassName:        cfg.Attendance.ClassName,
			Students:         students,
			ReportPath:       cfg.Paths.ReportPath,
			ReportFormat:     cfg.Paths.ReportFormat,
			MaxDuration:      mustGetDuration(cmd, "duration"),
			StopWhenComplete: mustGetBool(cmd, "stop-when-complete"),
		})

	fmt.Printf("Session %s: %d students, threshold %.3f (%s), %d confirmations\n",
		sessionID, len(students), matcher.Threshold(), cfg.Recognition.Metric, tracker.Confirmations())
	if restored := tracker.PresentCount(); restored > 0 {
		fmt.Printf("Resumed with %d students already present\n", restored)
	}
	fmt.Println("Press Ctrl+C to stop")

	summary, err := runner.Run(ctx)
	printSummary(summary)
	return err
}

func printSummary(s pipeline.Summary) {
	fmt.Printf("\nSession %s finished (%s) after %s\n", s.SessionID, s.StopReason, s.Finished.Sub(s.Started).Round(time.Second))
	fmt.Printf("  Frames: %d, faces: %d, recognised: %d, unknown: %d, embedding errors: %d\n",
		s.Frames, s.Faces, s.Recognized, s.Unknown, s.EmbedErrors)

	present := color.New(color.FgGreen, color.Bold)
	present.Printf("  Present: %d/%d\n", len(s.Present), s.Students)
	for _, id := range s.Present {
		fmt.Printf("    %s\n", id)
	}
	if s.ReportPath != "" {
		fmt.Printf("  Report written to %s (%s)\n", s.ReportPath, s.ReportFormat)
	}
}
