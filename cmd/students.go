package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance/internal/recognition"
)

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "List registered students and their reference embeddings",
	Long: `List every registered student with the number of reference photos and
embeddings in the cache. Students without embeddings can never be recognised
and are highlighted.`,
	RunE: runStudents,
}

func init() {
	rootCmd.AddCommand(studentsCmd)

	studentsCmd.Flags().Bool("json", false, "Output as JSON")
}

// StudentInfo is one line of the students listing.
type StudentInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Images     int    `json:"images"`
	Embeddings int    `json:"embeddings"`
	Stored     int    `json:"stored,omitempty"` // embeddings in PostgreSQL
}

func runStudents(cmd *cobra.Command, args []string) error {
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

	reg, meta, err := recognition.LoadCache(cfg.Paths.EmbeddingsCache, "", "")
	cacheMissing := errors.Is(err, fs.ErrNotExist)
	if err != nil && !cacheMissing {
		return err
	}
	if cacheMissing {
		reg = recognition.NewRegistry(0)
	}

	db, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	stored := make(map[string]int)
	if db.students != nil {
		dbStudents, err := db.students.Students(ctx)
		if err != nil {
			return err
		}
		for _, s := range dbStudents {
			stored[s.ID] = s.Embeddings
		}
	}

	infos := make([]StudentInfo, 0, len(students))
	for _, s := range students {
		infos = append(infos, StudentInfo{
			ID:         s.ID,
			Name:       s.DisplayName(),
			Images:     len(s.Images),
			Embeddings: len(reg.Embeddings(s.ID)),
			Stored:     stored[s.ID],
		})
	}

	if jsonOutput {
		return outputJSON(infos)
	}

	bold := color.New(color.Bold)
	warn := color.New(color.FgRed)
	ok := color.New(color.FgGreen)

	if cacheMissing {
		warn.Printf("No embeddings cache at %s, run `attendance register`\n\n", cfg.Paths.EmbeddingsCache)
	} else {
		fmt.Printf("Cache %s: model %s, %d-dim, %s embeddings, built %s\n",
			cfg.Paths.EmbeddingsCache, meta.Model, meta.Dim, humanize.Comma(int64(meta.Embeddings)), humanize.Time(meta.BuildTime))
		if meta.Model != cfg.Embedding.Model {
			warn.Printf("Cache was built with %s but EMBEDDING_MODEL is %s\n", meta.Model, cfg.Embedding.Model)
		}
		fmt.Println()
	}

	bold.Printf("%-30s %-25s %6s %10s\n", "ID", "Name", "Photos", "Embeddings")
	missing := 0
	for _, info := range infos {
		line := fmt.Sprintf("%-30s %-25s %6d %10d", info.ID, info.Name, info.Images, info.Embeddings)
		if info.Embeddings == 0 {
			missing++
			warn.Println(line)
			continue
		}
		ok.Println(line)
	}

	fmt.Printf("\n%d students", len(infos))
	if missing > 0 {
		warn.Printf(", %d without embeddings", missing)
	}
	fmt.Println()
	if db.students != nil {
		count, err := db.students.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("PostgreSQL: %s embeddings for %d students\n", humanize.Comma(int64(count)), len(stored))
	}
	return nil
}
