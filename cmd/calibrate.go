package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/recognition"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Suggest a distance threshold from the registered embeddings",
	Long: `Compare distances between reference embeddings of the same student (genuine
pairs) with distances between different students (impostor pairs) and suggest
a threshold midway between the genuine 95th percentile and the impostor 5th
percentile. Students need at least two reference photos for genuine pairs.`,
	RunE: runCalibrate,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)

	calibrateCmd.Flags().String("metric", "", "Distance metric (overrides RECOGNITION_METRIC)")
	calibrateCmd.Flags().Bool("json", false, "Output as JSON")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	cfg, log, err := loadConfig(cmd, func(c *config.Config) {
		if m := mustGetString(cmd, "metric"); m != "" {
			c.Recognition.Metric = m
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
	metric, err := recognition.ParseMetric(cfg.Recognition.Metric)
	if err != nil {
		return err
	}

	report := recognition.Calibrate(reg, metric)
	if jsonOutput {
		return outputJSON(report)
	}

	fmt.Printf("Metric %s, %d students, %d embeddings\n\n", metric, reg.Len(), reg.EmbeddingCount())
	printDistances("Genuine (same student)", report.Genuine)
	printDistances("Impostor (different students)", report.Impostor)

	fmt.Printf("\nCurrent threshold: %.4f\n", cfg.Threshold())
	if report.Suggested == 0 {
		color.Yellow("Not enough pairs to suggest a threshold")
		return nil
	}
	color.New(color.FgGreen, color.Bold).Printf("Suggested threshold: %.4f\n", report.Suggested)
	if report.Overlap {
		color.Red("Genuine and impostor distances overlap; add clearer reference photos")
	}
	return nil
}

func printDistances(title string, s recognition.DistanceSummary) {
	fmt.Printf("%s: %d pairs\n", title, s.Count)
	if s.Count == 0 {
		return
	}
	fmt.Printf("  min %.4f  p5 %.4f  median %.4f  mean %.4f  p95 %.4f  max %.4f\n",
		s.Min, s.P5, s.Median, s.Mean, s.P95, s.Max)
}
