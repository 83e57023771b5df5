package cmd

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance/internal/camera"
	"github.com/kozaktomas/attendance/internal/embedding"
	"github.com/kozaktomas/attendance/internal/recognition"
)

var matchCmd = &cobra.Command{
	Use:   "match <image>...",
	Short: "Recognise faces in still images",
	Long: `Detect faces in still images and print the nearest registered student for
each of them. No attendance is recorded.

By default faces are found with the Haar cascade, like the camera loop. With
--service-detect the whole image is sent to the embedding service, which
detects the faces itself.

Examples:
  attendance match group.jpg
  attendance match --service-detect --json door1.jpg door2.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().Bool("service-detect", false, "Let the embedding service detect faces")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
}

// MatchResult is one recognised face of a still image.
type MatchResult struct {
	File  string            `json:"file"`
	Face  int               `json:"face"`
	Box   [4]int            `json:"box"`
	Label string            `json:"label"`
	Match recognition.Match `json:"match"`
	Error string            `json:"error,omitempty"`
}

func runMatch(cmd *cobra.Command, args []string) error {
	serviceDetect := mustGetBool(cmd, "service-detect")
	jsonOutput := mustGetBool(cmd, "json")

	cfg, log, err := loadConfig(cmd)
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
	matcher := recognition.NewMatcher(index, cfg.Threshold())
	client := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Model)

	var detector *camera.Detector
	if !serviceDetect {
		detector, err = camera.NewDetector(cfg.Camera)
		if err != nil {
			return err
		}
		defer detector.Close()
	}

	var results []MatchResult
	for i, file := range args {
		data, err := os.ReadFile(file) //nolint:gosec // path is given by the user
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}

		var fileResults []MatchResult
		if serviceDetect {
			fileResults, err = matchWithService(ctx, client, matcher, file, data)
		} else {
			fileResults, err = matchWithDetector(ctx, detector, client, matcher, file, data, i)
		}
		if err != nil {
			return err
		}
		results = append(results, fileResults...)
	}

	if jsonOutput {
		return outputJSON(results)
	}
	for _, r := range results {
		if r.Error != "" {
			fmt.Printf("%s face %d %v: %s\n", r.File, r.Face, r.Box, r.Error)
			continue
		}
		fmt.Printf("%s face %d %v: %s (distance %.4f)\n", r.File, r.Face, r.Box, r.Label, r.Match.Distance)
	}
	return nil
}

func boxOf(r image.Rectangle) [4]int {
	return [4]int{r.Min.X, r.Min.Y, r.Dx(), r.Dy()}
}

func matchWithDetector(ctx context.Context, detector *camera.Detector, client *embedding.Client,
	matcher *recognition.Matcher, file string, data []byte, index int) ([]MatchResult, error) {
	frame, err := detector.DetectImage(data, index)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	results := make([]MatchResult, 0, len(frame.Faces))
	for i, face := range frame.Faces {
		r := MatchResult{File: file, Face: i, Box: boxOf(face.Box)}
		emb, err := client.EmbedFace(ctx, face.Image)
		if err != nil {
			r.Error = err.Error()
			results = append(results, r)
			continue
		}
		if r.Match, err = matcher.Match(ctx, emb); err != nil {
			return nil, err
		}
		r.Label = r.Match.String()
		results = append(results, r)
	}
	return results, nil
}

func matchWithService(ctx context.Context, client *embedding.Client, matcher *recognition.Matcher,
	file string, data []byte) ([]MatchResult, error) {
	resp, err := client.ComputeFaceEmbeddings(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	results := make([]MatchResult, 0, len(resp.Faces))
	for _, face := range resp.Faces {
		r := MatchResult{File: file, Face: face.FaceIndex}
		if len(face.BBox) == 4 {
			r.Box = [4]int{int(face.BBox[0]), int(face.BBox[1]), int(face.BBox[2] - face.BBox[0]), int(face.BBox[3] - face.BBox[1])}
		}
		if len(face.Embedding) == 0 {
			r.Error = "empty embedding returned"
			results = append(results, r)
			continue
		}
		if r.Match, err = matcher.Match(ctx, face.Embedding); err != nil {
			return nil, err
		}
		r.Label = r.Match.String()
		results = append(results, r)
	}
	return results, nil
}
