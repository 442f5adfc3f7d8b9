package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/slimehive/config"
)

var publishSource string

// publishCmd copies recordings into a viewer directory
var publishCmd = &cobra.Command{
	Use:   "publish <viewer_dir>",
	Short: "Copy recordings into a viewer directory and rebuild index.json",
	Long: `Publish copies every .slimehive recording into the viewer directory, skipping
files already there with the same size, and rewrites index.json listing all
recordings in the viewer directory, newest first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := publishSource
		if src == "" {
			src = config.Cfg().Recorder.Dir
		}
		copied, index, err := publishRecordings(src, args[0])
		if err != nil {
			return err
		}
		slog.Info("recordings published", "dir", args[0], "copied", copied, "total", len(index))
		return nil
	},
}

func init() {
	publishCmd.Flags().StringVar(&publishSource, "from", "", "Recordings directory (empty = recorder.dir)")
}

// IndexEntry describes one published recording.
type IndexEntry struct {
	Name string `json:"name"`
	Date string `json:"date"`
	Size int64  `json:"size"`
}

// publishRecordings copies new recordings from src into dst and rewrites
// dst/index.json. It returns the number copied and the index written.
func publishRecordings(src, dst string) (int, []IndexEntry, error) {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return 0, nil, fmt.Errorf("create viewer dir: %w", err)
	}

	sources, err := filepath.Glob(filepath.Join(src, "*.slimehive"))
	if err != nil {
		return 0, nil, err
	}

	copied := 0
	for _, path := range sources {
		target := filepath.Join(dst, filepath.Base(path))
		if sameSize(path, target) {
			continue
		}
		if err := copyFile(path, target); err != nil {
			return copied, nil, err
		}
		copied++
	}

	published, err := filepath.Glob(filepath.Join(dst, "*.slimehive"))
	if err != nil {
		return copied, nil, err
	}
	index := make([]IndexEntry, 0, len(published))
	for _, path := range published {
		info, err := os.Stat(path)
		if err != nil {
			return copied, nil, err
		}
		index = append(index, IndexEntry{
			Name: info.Name(),
			Date: info.ModTime().UTC().Format(time.RFC3339),
			Size: info.Size(),
		})
	}
	sort.Slice(index, func(i, j int) bool {
		if index[i].Date != index[j].Date {
			return index[i].Date > index[j].Date
		}
		return index[i].Name > index[j].Name
	})

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return copied, nil, err
	}
	if err := os.WriteFile(filepath.Join(dst, "index.json"), data, 0644); err != nil {
		return copied, nil, fmt.Errorf("write index: %w", err)
	}
	return copied, index, nil
}

func sameSize(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return ai.Size() == bi.Size()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}
	return out.Close()
}
