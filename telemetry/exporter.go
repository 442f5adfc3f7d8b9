package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// ErrNoSnapshot is returned when archiving before anything was published.
var ErrNoSnapshot = errors.New("no snapshot published")

// ArchivePrefix starts every archive file name.
const ArchivePrefix = "hive_state_ARCHIVE_"

// archiveLayout is the timestamp layout used in archive names.
const archiveLayout = "2006-01-02_150405"

// Exporter publishes the live state. Every Publish replaces the file
// atomically, so readers never see a partial write, and keeps the bytes
// for in-process readers.
type Exporter struct {
	path       string
	archiveDir string
	latest     atomic.Pointer[[]byte]
}

// NewExporter creates an exporter writing to path and archiving into
// archiveDir. An empty path keeps snapshots in memory only.
func NewExporter(path, archiveDir string) *Exporter {
	return &Exporter{path: path, archiveDir: archiveDir}
}

// Path returns the export file path.
func (e *Exporter) Path() string { return e.path }

// ArchiveDir returns where archives are written.
func (e *Exporter) ArchiveDir() string { return e.archiveDir }

// Publish serializes s, stores it and writes it to disk. The in-memory
// copy is updated even when the file write fails.
func (e *Exporter) Publish(s HiveState) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	e.latest.Store(&data)

	if e.path == "" {
		return nil
	}
	if err := WriteFileAtomic(e.path, data); err != nil {
		return fmt.Errorf("export state: %w", err)
	}
	return nil
}

// Latest returns the last published bytes, or nil.
func (e *Exporter) Latest() []byte {
	if p := e.latest.Load(); p != nil {
		return *p
	}
	return nil
}

// Archive copies the last published snapshot into the archive directory
// and returns the archive path.
func (e *Exporter) Archive(now time.Time) (string, error) {
	data := e.Latest()
	if data == nil {
		return "", ErrNoSnapshot
	}
	if err := os.MkdirAll(e.archiveDir, 0755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	path := filepath.Join(e.archiveDir, ArchiveName(now))
	// Two archives in the same second get a numeric suffix
	for i := 1; fileExists(path); i++ {
		path = filepath.Join(e.archiveDir, fmt.Sprintf("%s%s_%d.json", ArchivePrefix, now.Format(archiveLayout), i))
	}
	if err := WriteFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}
	return path, nil
}

// ArchiveName returns the archive file name for now.
func ArchiveName(now time.Time) string {
	return ArchivePrefix + now.Format(archiveLayout) + ".json"
}

// WriteFileAtomic writes data to a temporary file in the target directory
// and renames it over path.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0644); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
