package calibration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrCorrupt matches every *CorruptError.
var ErrCorrupt = pkgerrors.New("corrupt calibration data")

// CorruptError reports a calibration file that exists but cannot be used.
// Readings of that probe stay disabled until it is recalibrated.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt calibration file %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

func (e *CorruptError) Is(target error) bool { return target == ErrCorrupt }

// rawRecord tells a missing bound apart from a zero one.
type rawRecord struct {
	WetVoltage   *float64   `json:"min_value"`
	DryVoltage   *float64   `json:"max_value"`
	LastLevel    *float64   `json:"last_level"`
	CalibratedAt *time.Time `json:"calibrated_at"`

	DryCapturedAt *time.Time `json:"dry_captured_at"`
	WetCapturedAt *time.Time `json:"wet_captured_at"`
}

// stateKeys are written by Save. A file carrying none of them predates the
// calibration state and was only ever written after both bounds were
// captured.
var stateKeys = []string{"calibrated_at", "dry_captured_at", "wet_captured_at"}

type Store interface {
	// Load returns the record of id, or DefaultRecord if none was saved yet.
	Load(id string) (*Record, error)
	// Save replaces the record of id.
	Save(id string, r *Record) error
}

var _ Store = &FileStore{}

// FileStore keeps one JSON file per probe.
type FileStore struct {
	dir   string
	paths map[string]string
	mu    *sync.Mutex
}

// NewFileStore stores records under dir. paths overrides the file of
// individual ids; relative overrides are resolved against dir.
func NewFileStore(dir string, paths map[string]string) *FileStore {
	s := &FileStore{
		dir:   dir,
		paths: make(map[string]string, len(paths)),
		mu:    &sync.Mutex{},
	}
	for id, p := range paths {
		if p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		s.paths[id] = p
	}
	return s
}

func (s *FileStore) Path(id string) string {
	if p, ok := s.paths[id]; ok {
		return p
	}
	return filepath.Join(s.dir, fmt.Sprintf("calibration_%s.json", id))
}

func (s *FileStore) Load(id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(id)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.WithFields(logrus.Fields{
				"plant": id,
				"path":  path,
			}).Info("no calibration found, using uncalibrated defaults")
			return DefaultRecord(), nil
		}
		return nil, pkgerrors.Wrapf(err, "failed to read calibration file %s", path)
	}

	if len(bytes.TrimSpace(b)) == 0 {
		return nil, &CorruptError{Path: path, Err: pkgerrors.New("file is empty")}
	}

	raw := rawRecord{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	if raw.WetVoltage == nil || raw.DryVoltage == nil {
		return nil, &CorruptError{Path: path, Err: pkgerrors.New("min_value and max_value are required")}
	}

	r := &Record{
		WetVoltage:    *raw.WetVoltage,
		DryVoltage:    *raw.DryVoltage,
		LastLevel:     raw.LastLevel,
		CalibratedAt:  raw.CalibratedAt,
		DryCapturedAt: raw.DryCapturedAt,
		WetCapturedAt: raw.WetCapturedAt,
	}
	if err := r.Validate(); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}

	legacy, err := isLegacy(b)
	if err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	if legacy {
		info, err := os.Stat(path)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to stat calibration file %s", path)
		}
		at := info.ModTime().UTC().Round(0)
		r.CalibratedAt = &at
		logrus.WithFields(logrus.Fields{
			"plant": id,
			"path":  path,
		}).Debug("calibration file without state, treating it as calibrated")
	}

	return r, nil
}

func isLegacy(b []byte) (bool, error) {
	keys := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &keys); err != nil {
		return false, err
	}
	for _, k := range stateKeys {
		if _, ok := keys[k]; ok {
			return false, nil
		}
	}
	return true, nil
}

// Save writes the record to a temporary file next to the target and renames
// it into place, so a concurrent reader sees either the old or the new file.
func (s *FileStore) Save(id string, r *Record) error {
	if r == nil {
		return pkgerrors.New("calibration record is nil")
	}
	if err := r.Validate(); err != nil {
		return pkgerrors.Wrapf(err, "refusing to save calibration of %s", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(id)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create calibration directory %s", dir)
	}

	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode calibration of %s", id)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op once the rename succeeded.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return pkgerrors.Wrapf(err, "failed to write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return pkgerrors.Wrapf(err, "failed to sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return pkgerrors.Wrapf(err, "failed to close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return pkgerrors.Wrapf(err, "failed to chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return pkgerrors.Wrapf(err, "failed to replace %s", path)
	}

	return nil
}
