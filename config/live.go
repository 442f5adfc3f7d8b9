package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ErrNonFinite is returned for a live config holding NaN or infinite values.
var ErrNonFinite = errors.New("live config value is not finite")

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize live config watcher")

// Live holds the tunables that may change while the hive is running.
// The file format is YAML; JSON files parse as well.
type Live struct {
	DecayRate       float64 `yaml:"decay_rate" json:"decay_rate"`
	DepositAmount   float64 `yaml:"deposit_amount" json:"deposit_amount"`
	GhostDeposit    float64 `yaml:"ghost_deposit" json:"ghost_deposit"`
	DetectionRadius int     `yaml:"detection_radius" json:"detection_radius"`
	PheromoneBoost  float64 `yaml:"pheromone_boost" json:"pheromone_boost"`
	DeathMode       string  `yaml:"death_mode" json:"death_mode"`
}

// Live returns the current live tunables.
func (c *Config) Live() Live {
	return Live{
		DecayRate:       c.Pheromones.DecayRate,
		DepositAmount:   c.Pheromones.DepositAmount,
		GhostDeposit:    c.Pheromones.GhostDeposit,
		DetectionRadius: c.Behavior.DetectionRadius,
		PheromoneBoost:  c.Food.PheromoneBoost,
		DeathMode:       c.Hunger.DeathMode,
	}
}

// ApplyLive overwrites the live tunables and recomputes derived values.
// Non-finite values keep their current setting.
func (c *Config) ApplyLive(l Live) {
	l = l.orBase(c.Live()).Clamp()
	c.Pheromones.DecayRate = l.DecayRate
	c.Pheromones.DepositAmount = l.DepositAmount
	c.Pheromones.GhostDeposit = l.GhostDeposit
	c.Behavior.DetectionRadius = l.DetectionRadius
	c.Food.PheromoneBoost = l.PheromoneBoost
	c.Hunger.DeathMode = l.DeathMode
	c.computeDerived()
}

// Clamp bounds every tunable to its accepted range.
// Unknown death modes fall back to freeze.
func (l Live) Clamp() Live {
	l.DecayRate = clampF(l.DecayRate, 0.1, 1.0)
	l.DepositAmount = clampF(l.DepositAmount, 0, 20)
	l.GhostDeposit = clampF(l.GhostDeposit, 0, 5)
	l.DetectionRadius = clampI(l.DetectionRadius, 5, 50)
	l.PheromoneBoost = clampF(l.PheromoneBoost, 1, 10)
	switch l.DeathMode {
	case "freeze", "die", "respawn", "yes", "no":
	default:
		l.DeathMode = "freeze"
	}
	return l
}

// LoadLive reads a live config file on top of base and clamps the result.
func LoadLive(path string, base Live) (Live, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("reading live config: %w", err)
	}
	l := base
	if err := yaml.Unmarshal(data, &l); err != nil {
		return base, fmt.Errorf("parsing live config: %w", err)
	}
	if key := l.nonFinite(); key != "" {
		return base, fmt.Errorf("%w: %s", ErrNonFinite, key)
	}
	return l.Clamp(), nil
}

// nonFinite returns the key of the first NaN or infinite tunable.
func (l Live) nonFinite() string {
	for _, f := range []struct {
		key string
		v   float64
	}{
		{"decay_rate", l.DecayRate},
		{"deposit_amount", l.DepositAmount},
		{"ghost_deposit", l.GhostDeposit},
		{"pheromone_boost", l.PheromoneBoost},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return f.key
		}
	}
	return ""
}

// orBase replaces NaN tunables with the ones from base.
func (l Live) orBase(base Live) Live {
	pick := func(v, b float64) float64 {
		if math.IsNaN(v) {
			return b
		}
		return v
	}
	l.DecayRate = pick(l.DecayRate, base.DecayRate)
	l.DepositAmount = pick(l.DepositAmount, base.DepositAmount)
	l.GhostDeposit = pick(l.GhostDeposit, base.GhostDeposit)
	l.PheromoneBoost = pick(l.PheromoneBoost, base.PheromoneBoost)
	return l
}

// WriteLive writes l to path through a temporary file and rename,
// so a watcher never sees a half-written file.
func WriteLive(path string, l Live) error {
	data, err := yaml.Marshal(l.Clamp())
	if err != nil {
		return fmt.Errorf("marshaling live config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create live config dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing live config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming live config: %w", err)
	}
	return nil
}

// WatchLive calls fn with the clamped tunables every time the file at path
// is written or replaced. It blocks until ctx is done.
func WatchLive(ctx context.Context, path string, base Live, fn func(Live)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	defer watcher.Close()

	// Watch the directory: atomic writers replace the file's inode.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create live config dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			l, err := LoadLive(path, base)
			if err != nil {
				slog.Warn("ignoring live config", "path", path, "error", err)
				continue
			}
			base = l
			fn(l)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("live config watcher", "error", err)
		}
	}
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampI(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
