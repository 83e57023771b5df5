package registration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/recognition"
	"github.com/kozaktomas/attendance/internal/roster"
)

// Store persists registries in the embeddings cache and, when DB is set, in the
// database. A stored registry is only used when it matches the current roster.
type Store struct {
	CachePath string
	Model     string
	DB        database.StudentStore // optional
	Log       *logrus.Logger
}

// Load returns the stored registry for the roster, or nil without error when
// nothing usable is stored and the embeddings must be computed. Students that
// are no longer on the roster are dropped from the result.
func (s *Store) Load(ctx context.Context, students []roster.Student) (*recognition.Registry, error) {
	fingerprint, err := roster.Fingerprint(students)
	if err != nil {
		return nil, err
	}

	reg, meta, err := recognition.LoadCache(s.CachePath, s.Model, fingerprint)
	switch {
	case err == nil:
		s.Log.WithFields(logrus.Fields{
			"students":   meta.StudentCount,
			"embeddings": meta.Embeddings,
			"built":      humanize.Time(meta.BuildTime),
		}).Info("loaded embeddings cache")
		return s.retain(reg, students), nil
	case errors.Is(err, recognition.ErrStaleCache):
		s.Log.WithError(err).Warn("embeddings cache is stale, recomputing")
		return nil, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}

	if s.DB == nil {
		return nil, nil
	}
	reg, err = s.DB.LoadRegistry(ctx)
	if err != nil {
		return nil, err
	}
	if reg.EmbeddingCount() == 0 {
		return nil, nil
	}
	if missing := Unembedded(reg, students); len(missing) > 0 {
		s.Log.WithField("students", missing).Warn("database has no embeddings for some students, recomputing")
		return nil, nil
	}
	s.Log.WithField("embeddings", reg.EmbeddingCount()).Info("loaded embeddings from database")
	return s.retain(reg, students), nil
}

func (s *Store) retain(reg *recognition.Registry, students []roster.Student) *recognition.Registry {
	if dropped := reg.Retain(roster.IDs(students)); len(dropped) > 0 {
		s.Log.WithField("students", dropped).Info("ignoring stored students not on the roster")
	}
	return reg
}

// Save writes the cache tagged with the roster fingerprint and, when configured,
// the database.
func (s *Store) Save(ctx context.Context, reg *recognition.Registry, students []roster.Student) (recognition.CacheMetadata, error) {
	fingerprint, err := roster.Fingerprint(students)
	if err != nil {
		return recognition.CacheMetadata{}, err
	}
	meta, err := recognition.SaveCache(s.CachePath, reg, s.Model, fingerprint)
	if err != nil {
		return meta, err
	}

	if s.DB != nil {
		names := make(map[string]string, len(students))
		for _, st := range students {
			if st.Name != "" {
				names[st.ID] = st.Name
			}
		}
		if err := s.DB.SaveRegistry(ctx, reg, s.Model, names); err != nil {
			return meta, fmt.Errorf("failed to save embeddings to database: %w", err)
		}
	}
	return meta, nil
}

// Unembedded returns the students that have reference images but no embeddings
// in the registry. They can never be matched.
func Unembedded(reg *recognition.Registry, students []roster.Student) []string {
	var ids []string
	for _, st := range students {
		if len(st.Images) > 0 && len(reg.Embeddings(st.ID)) == 0 {
			ids = append(ids, st.ID)
		}
	}
	return ids
}
