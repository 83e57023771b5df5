package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/database/mariadb"
	"github.com/kozaktomas/attendance/internal/database/postgres"
	"github.com/kozaktomas/attendance/internal/embedding"
	"github.com/kozaktomas/attendance/internal/recognition"
	"github.com/kozaktomas/attendance/internal/registration"
	"github.com/kozaktomas/attendance/internal/roster"
)

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

// backend holds the optional PostgreSQL repositories. Without DATABASE_URL all
// fields are nil.
type backend struct {
	pool     *postgres.Pool
	students *postgres.StudentRepository
	sessions *postgres.SessionRepository
}

func openBackend(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*backend, error) {
	if cfg.Database.URL == "" {
		return &backend{}, nil
	}
	pool, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	log.Debug("connected to PostgreSQL")
	return &backend{
		pool:     pool,
		students: postgres.NewStudentRepository(pool),
		sessions: postgres.NewSessionRepository(pool),
	}, nil
}

func (b *backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

// markStore returns the session repository when PostgreSQL is configured and the
// CSV ledger otherwise.
func (b *backend) markStore(cfg *config.Config) attendance.MarkStore {
	if b.sessions != nil {
		return b.sessions
	}
	return attendance.NewLedger(cfg.Paths.LedgerPath)
}

// loadStudents scans the registered faces directory and applies display names
// from the school database and the roster file. The roster file wins.
func loadStudents(ctx context.Context, cfg *config.Config, log *logrus.Logger) ([]roster.Student, error) {
	students, err := roster.ScanDir(cfg.Paths.RegisteredFacesDir)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string)
	if cfg.Roster.DatabaseURL != "" {
		pool, err := mariadb.NewPool(ctx, cfg.Roster.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to roster database: %w", err)
		}
		defer pool.Close()

		dbNames, err := pool.LoadRoster(ctx, cfg.Roster.Query)
		if err != nil {
			return nil, err
		}
		log.WithField("students", len(dbNames)).Info("loaded roster from school database")
		maps.Copy(names, dbNames)
	}
	if cfg.Paths.RosterFile != "" {
		fileNames, err := roster.LoadFile(cfg.Paths.RosterFile)
		if err != nil {
			return nil, err
		}
		maps.Copy(names, fileNames)
	}

	return roster.Merge(students, names), nil
}

// registerStudents embeds every reference image with a progress bar.
func registerStudents(ctx context.Context, cfg *config.Config, log *logrus.Logger,
	students []roster.Student, concurrency int) (*recognition.Registry, registration.Result, error) {
	client := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Model)
	builder := registration.NewBuilder(client, cfg.Embedding.MaxImageSize, concurrency, log)

	images := 0
	for _, s := range students {
		images += len(s.Images)
	}
	bar := progressbar.NewOptions(images,
		progressbar.OptionSetDescription("Computing embeddings"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
	builder.OnImage = func() { bar.Add(1) }

	reg, result, err := builder.Build(ctx, students, 0)
	bar.Finish()
	fmt.Println()
	if err != nil {
		return nil, result, err
	}
	if cfg.Embedding.Dim > 0 && reg.Dim() > 0 && reg.Dim() != cfg.Embedding.Dim {
		log.WithFields(logrus.Fields{"configured": cfg.Embedding.Dim, "model": reg.Dim()}).
			Warn("embedding dimension differs from EMBEDDING_DIM")
	}
	return reg, result, nil
}

// registryStore returns the cache and, when configured, PostgreSQL store.
func registryStore(cfg *config.Config, log *logrus.Logger, db *backend) *registration.Store {
	store := &registration.Store{
		CachePath: cfg.Paths.EmbeddingsCache,
		Model:     cfg.Embedding.Model,
		Log:       log,
	}
	if db.students != nil {
		store.DB = db.students
	}
	return store
}

// saveRegistry writes the cache and, when configured, PostgreSQL.
func saveRegistry(ctx context.Context, cfg *config.Config, log *logrus.Logger, db *backend,
	reg *recognition.Registry, students []roster.Student) error {
	meta, err := registryStore(cfg, log, db).Save(ctx, reg, students)
	if err != nil {
		return err
	}
	fmt.Printf("Saved %d embeddings for %d students to %s\n", meta.Embeddings, meta.StudentCount, cfg.Paths.EmbeddingsCache)
	if db.students != nil {
		fmt.Println("Saved embeddings to PostgreSQL")
	}
	return nil
}

// loadRegistry returns the stored registry when it matches the roster. A missing
// or stale cache falls back to PostgreSQL and then to computing the embeddings,
// which are saved for the next run. The result holds exactly the roster students.
func loadRegistry(ctx context.Context, cfg *config.Config, log *logrus.Logger, db *backend,
	students []roster.Student) (*recognition.Registry, error) {
	reg, err := registryStore(cfg, log, db).Load(ctx, students)
	if err != nil {
		return nil, err
	}

	if reg == nil {
		fmt.Printf("Computing embeddings for %d students...\n", len(students))
		var result registration.Result
		reg, result, err = registerStudents(ctx, cfg, log, students, constants.DefaultConcurrency)
		if err != nil {
			return nil, err
		}
		if len(result.Skipped) > 0 {
			fmt.Printf("Skipped %d of %d images\n", len(result.Skipped), result.Images)
		}
		if err := saveRegistry(ctx, cfg, log, db, reg, students); err != nil {
			log.WithError(err).Warn("failed to save embeddings")
		}
	}

	for _, s := range students {
		reg.Ensure(s.ID)
	}
	if missing := registration.Unembedded(reg, students); len(missing) > 0 {
		log.WithField("students", missing).Warn("students have reference images but no embeddings and can never be recognised")
	}
	return reg, nil
}

// buildIndex creates the nearest-neighbour index configured by RECOGNITION_INDEX.
func buildIndex(cfg *config.Config, log *logrus.Logger, db *backend, reg *recognition.Registry) (recognition.Index, error) {
	metric, err := recognition.ParseMetric(cfg.Recognition.Metric)
	if err != nil {
		return nil, err
	}

	switch cfg.Recognition.Index {
	case config.IndexHNSW:
		return hnswIndex(cfg.Database.HNSWIndexPath, log, reg, metric), nil
	case config.IndexPGVector:
		if db.students == nil {
			return nil, errors.New("pgvector index requires DATABASE_URL")
		}
		return postgres.NewVectorIndex(db.students, metric), nil
	}
	return recognition.NewLinearIndex(reg, metric), nil
}

func hnswIndex(path string, log *logrus.Logger, reg *recognition.Registry, metric recognition.Metric) *recognition.HNSWIndex {
	if path != "" {
		idx, err := recognition.LoadHNSWIndex(path, reg, metric)
		if err == nil {
			log.WithField("nodes", idx.Len()).Info("loaded HNSW index")
			return idx
		}
		log.WithError(err).Info("rebuilding HNSW index")
	}

	start := time.Now()
	idx := recognition.NewHNSWIndex(reg, metric)
	log.WithFields(logrus.Fields{"nodes": idx.Len(), "took": time.Since(start).String()}).Info("built HNSW index")

	if path != "" {
		if err := idx.Save(path); err != nil {
			log.WithError(err).Warn("failed to save HNSW index")
		}
	}
	return idx
}

// restoreSession marks students already recorded for the session as present, so
// a restarted run does not ask them to be seen again.
func restoreSession(ctx context.Context, store attendance.MarkStore, sessionID string, tracker *attendance.Tracker) error {
	marks, err := store.Marks(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, m := range marks {
		tracker.Restore(m.StudentID, m.At)
	}
	return nil
}
