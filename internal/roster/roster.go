package roster

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoRegisteredFaces is returned when the registered faces directory does not exist.
var ErrNoRegisteredFaces = errors.New("registered faces directory not found")

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

// Student is one registered student. ID is the directory name under the
// registered faces directory, usually ROLLNO_NAME.
type Student struct {
	ID     string
	Name   string
	Images []string
}

// DisplayName returns the roster name when known, otherwise the ID.
func (s Student) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// ScanDir lists every student directory with its reference images, sorted by ID.
// A student directory without images is still returned.
func ScanDir(dir string) ([]Student, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoRegisteredFaces, dir)
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var students []Student
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		images, err := scanImages(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		students = append(students, Student{ID: entry.Name(), Images: images})
	}

	slices.SortFunc(students, func(a, b Student) int { return strings.Compare(a.ID, b.ID) })
	return students, nil
}

// scanImages collects image files below a student directory, including nested
// folders such as images/.
func scanImages(dir string) ([]string, error) {
	var images []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if imageExtensions[strings.ToLower(filepath.Ext(path))] {
			images = append(images, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	slices.Sort(images)
	return images, nil
}

// LoadFile reads an optional YAML roster mapping student IDs to display names:
//
//	students:
//	  "21CS001_RAHUL": "Rahul Sharma"
func LoadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}

	var file struct {
		Students map[string]string `yaml:"students"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse roster %s: %w", path, err)
	}
	return file.Students, nil
}

// Merge applies display names to students. Keys are matched exactly first and then
// after normalisation, so "21cs001-rahul" in a roster still finds "21CS001_RAHUL".
// When several keys normalise to the same student the first key in sorted order
// wins. Roster entries without a directory are added as students without images,
// so they show up as absent in the report.
func Merge(students []Student, names map[string]string) []Student {
	if len(names) == 0 {
		return students
	}

	byID := make(map[string]int, len(students))
	byNorm := make(map[string]int, len(students))
	for i, s := range students {
		byID[s.ID] = i
		byNorm[NormalizeID(s.ID)] = i
	}

	keys := slices.Sorted(maps.Keys(names))
	out := slices.Clone(students)
	used := make(map[int]bool)

	var rest []string
	for _, id := range keys {
		if idx, ok := byID[id]; ok {
			out[idx].Name = names[id]
			used[idx] = true
			continue
		}
		rest = append(rest, id)
	}

	var extra []Student
	for _, id := range rest {
		idx, ok := byNorm[NormalizeID(id)]
		if !ok {
			extra = append(extra, Student{ID: id, Name: names[id]})
			continue
		}
		if !used[idx] {
			out[idx].Name = names[id]
			used[idx] = true
		}
	}

	out = append(out, extra...)
	slices.SortFunc(out, func(a, b Student) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Fingerprint identifies the reference images of a roster by student ID, image
// path, size and modification time. It changes when a student or image is added,
// removed or replaced.
func Fingerprint(students []Student) (string, error) {
	sorted := slices.Clone(students)
	slices.SortFunc(sorted, func(a, b Student) int { return strings.Compare(a.ID, b.ID) })

	h := sha256.New()
	for _, s := range sorted {
		fmt.Fprintf(h, "%s\n", s.ID)
		images := slices.Sorted(slices.Values(s.Images))
		for _, path := range images {
			info, err := os.Stat(path)
			if err != nil {
				return "", fmt.Errorf("failed to stat %s: %w", path, err)
			}
			fmt.Fprintf(h, "\t%s %d %d\n", path, info.Size(), info.ModTime().UnixNano())
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IDs returns the student IDs in order.
func IDs(students []Student) []string {
	ids := make([]string, len(students))
	for i, s := range students {
		ids[i] = s.ID
	}
	return ids
}
