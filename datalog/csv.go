package datalog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CSVSink appends entries to one CSV file per plant. The header is written
// whenever a file is empty.
type CSVSink struct {
	dir string
	mu  sync.Mutex
}

func NewCSVSink(dir string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to create csv directory %s", dir)
	}
	return &CSVSink{dir: dir}, nil
}

func (s *CSVSink) Path(plantID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("plant_data_%s.csv", plantID))
}

func (s *CSVSink) Write(e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(e.PlantID)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open %s", path)
	}
	defer func(f *os.File) {
		if err := f.Close(); err != nil {
			logrus.Warnf("failed to close file %s", path)
		}
	}(f)

	info, err := f.Stat()
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to stat %s", path)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Headers); err != nil {
			return pkgerrors.Wrapf(err, "failed to write header to %s", path)
		}
	}
	if err := w.Write(e.Row()); err != nil {
		return pkgerrors.Wrapf(err, "failed to write entry to %s", path)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return pkgerrors.Wrapf(err, "failed to flush %s", path)
	}

	logrus.WithField("path", path).Debug("logging OK")
	return nil
}

func (s *CSVSink) Close() error {
	return nil
}
