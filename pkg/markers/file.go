package markers

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const fileSuffix = ".done.yaml"

// record is the on-disk form of a Marker. OutputsCount is encoded last, so a
// file cut short anywhere either lacks it or disagrees with the outputs read.
type record struct {
	Marker       `yaml:",inline"`
	OutputsCount *int `yaml:"outputsCount"`
}

func (r record) complete(id string) bool {
	return r.wellFormed(id) && r.OutputsCount != nil && *r.OutputsCount == len(r.Outputs)
}

// FileStore keeps one YAML file per step under a directory. The directory is
// created on first write.
type FileStore struct {
	dir   string
	locks sync.Map // step id -> *sync.RWMutex
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the directory markers are written to.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the marker file for id.
func (s *FileStore) Path(id string) string {
	return filepath.Join(s.dir, id+fileSuffix)
}

func (s *FileStore) lock(id string) *sync.RWMutex {
	l, _ := s.locks.LoadOrStore(id, &sync.RWMutex{})
	return l.(*sync.RWMutex)
}

// Has implements Store.
func (s *FileStore) Has(id string) (bool, error) {
	_, err := s.Get(id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Get implements Store. Unreadable YAML and records that do not describe id
// are reported as ErrNotFound so a crash during a write can never mark a
// step as done.
func (s *FileStore) Get(id string) (Marker, error) {
	if err := ValidateID(id); err != nil {
		return Marker{}, err
	}

	l := s.lock(id)
	l.RLock()
	defer l.RUnlock()

	return s.read(id)
}

func (s *FileStore) read(id string) (Marker, error) {
	path := s.Path(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Marker{}, ErrNotFound
		}
		return Marker{}, fmt.Errorf("reading marker %s: %w", path, err)
	}

	var r record
	if err := yaml.Unmarshal(data, &r); err != nil {
		slog.Warn("ignoring malformed marker", "path", path, "error", err)
		return Marker{}, ErrNotFound
	}
	if !r.complete(id) {
		slog.Warn("ignoring incomplete marker", "path", path)
		return Marker{}, ErrNotFound
	}
	return r.Marker, nil
}

// Put implements Store. The record is written to a temporary file in the
// same directory, synced and renamed over the final path.
func (s *FileStore) Put(m Marker) error {
	if err := ValidateID(m.StepID); err != nil {
		return err
	}
	if m.CompletedAt.IsZero() {
		m.CompletedAt = time.Now().UTC()
	}

	count := len(m.Outputs)
	data, err := yaml.Marshal(&record{Marker: m, OutputsCount: &count})
	if err != nil {
		return fmt.Errorf("encoding marker %q: %w", m.StepID, err)
	}

	l := s.lock(m.StepID)
	l.Lock()
	defer l.Unlock()

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("creating marker directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+m.StepID+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary marker: %w", err)
	}
	tmpPath := tmp.Name()

	if err := writeAndSync(tmp, data); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing marker %q: %w", m.StepID, err)
	}

	if err := os.Rename(tmpPath, s.Path(m.StepID)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("committing marker %q: %w", m.StepID, err)
	}

	slog.Debug("marker written", "step", m.StepID, "path", s.Path(m.StepID))
	return nil
}

func writeAndSync(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Clear implements Store.
func (s *FileStore) Clear(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	l := s.lock(id)
	l.Lock()
	defer l.Unlock()

	if err := os.Remove(s.Path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing marker %q: %w", id, err)
	}
	return nil
}

// List implements Store. Temporary and malformed files are skipped.
func (s *FileStore) List() ([]Marker, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading marker directory: %w", err)
	}

	var out []Marker
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		id := strings.TrimSuffix(name, fileSuffix)
		if ValidateID(id) != nil {
			continue
		}
		m, err := s.Get(id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}

	slices.SortFunc(out, func(a, b Marker) int { return strings.Compare(a.StepID, b.StepID) })
	return out, nil
}

var _ Store = (*FileStore)(nil)
