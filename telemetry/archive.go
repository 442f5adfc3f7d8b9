package telemetry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrBadArchiveName is returned for names that are not archive files.
var ErrBadArchiveName = errors.New("not an archive name")

// ArchiveInfo describes one archived state.
type ArchiveInfo struct {
	Name string    `json:"name"`
	Date time.Time `json:"date"`
	Size int64     `json:"size"`
}

// ListArchives returns the archives in dir, newest first. A missing
// directory has no archives.
func ListArchives(dir string) ([]ArchiveInfo, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []ArchiveInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read archive dir: %w", err)
	}

	out := []ArchiveInfo{}
	for _, entry := range entries {
		if entry.IsDir() || ValidArchiveName(entry.Name()) != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, ArchiveInfo{Name: entry.Name(), Date: info.ModTime(), Size: info.Size()})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// ReadArchive returns the contents of one archive.
func ReadArchive(dir, name string) ([]byte, error) {
	if err := ValidArchiveName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", name, err)
	}
	return data, nil
}

// ValidArchiveName rejects anything but a plain archive file name.
func ValidArchiveName(name string) error {
	if name != filepath.Base(name) || strings.ContainsAny(name, `/\`) ||
		!strings.HasPrefix(name, ArchivePrefix) || !strings.HasSuffix(name, ".json") {
		return fmt.Errorf("%w: %q", ErrBadArchiveName, name)
	}
	return nil
}
