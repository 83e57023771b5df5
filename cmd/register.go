package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/recognition"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Compute reference embeddings for the registered students",
	Long: `Scan the registered faces directory (one sub-directory per student, named
like ROLLNO_NAME, holding reference photos), compute an embedding for every
photo and save them to the embeddings cache.

Photos in which the embedding service finds no face are skipped with a warning.
When DATABASE_URL is set the embeddings are stored in PostgreSQL as well.

Examples:
  # Register everyone in data/registered_faces
  attendance register

  # Use a different directory and more parallel requests
  attendance register --dir /srv/faces --concurrency 8`,
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().String("dir", "", "Registered faces directory (overrides REGISTERED_FACES_DIR)")
	registerCmd.Flags().Int("concurrency", constants.DefaultConcurrency, "Number of parallel embedding requests")
}

func runRegister(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	concurrency := mustGetInt(cmd, "concurrency")

	cfg, log, err := loadConfig(cmd, func(c *config.Config) {
		if dir != "" {
			c.Paths.RegisteredFacesDir = dir
		}
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	students, err := loadStudents(ctx, cfg, log)
	if err != nil {
		return err
	}
	fmt.Printf("Found %d students in %s\n", len(students), cfg.Paths.RegisteredFacesDir)

	db, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	start := time.Now()
	reg, result, err := registerStudents(ctx, cfg, log, students, concurrency)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	if err := saveRegistry(ctx, cfg, log, db, reg, students); err != nil {
		return err
	}

	if cfg.Recognition.Index == config.IndexHNSW && cfg.Database.HNSWIndexPath != "" {
		metric, err := recognition.ParseMetric(cfg.Recognition.Metric)
		if err != nil {
			return err
		}
		if err := recognition.NewHNSWIndex(reg, metric).Save(cfg.Database.HNSWIndexPath); err != nil {
			return err
		}
		fmt.Printf("Saved HNSW index to %s\n", cfg.Database.HNSWIndexPath)
	}

	fmt.Printf("\nCompleted in %s: %d embeddings from %d images, %d skipped\n",
		time.Since(start).Round(time.Millisecond), result.Embeddings, result.Images, len(result.Skipped))
	for _, s := range result.Skipped {
		fmt.Printf("  skipped %s: %v\n", s.Path, s.Err)
	}
	for _, id := range reg.Students() {
		if len(reg.Embeddings(id)) == 0 {
			fmt.Printf("  warning: %s has no usable reference photo and can never be recognised\n", id)
		}
	}
	return nil
}
