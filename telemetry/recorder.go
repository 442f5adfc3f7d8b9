package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/pthm-cable/slimehive/field"
)

// RecordingVersion is incremented when the format changes.
const RecordingVersion = 2

// RecordingExt is the recording file extension.
const RecordingExt = ".slimehive"

// ErrChecksumMismatch is returned when final grids do not match their checksum.
var ErrChecksumMismatch = errors.New("final grid checksum mismatch")

// Metadata describes a recorded session.
type Metadata struct {
	SessionID          string    `json:"session_id"`
	Mode               string    `json:"mode"`
	DroneCount         int       `json:"drone_count"`
	GridSize           int       `json:"grid_size"`
	TickRate           float64   `json:"tick_rate"`
	KeyframeInterval   float64   `json:"keyframe_interval"`
	StartedAt          time.Time `json:"started_at"`
	Duration           float64   `json:"duration"`
	Ticks              uint64    `json:"ticks"`
	KeyframeCount      int       `json:"keyframe_count"`
	EventCount         int       `json:"event_count"`
	StopReason         string    `json:"stop_reason,omitempty"`
	FinalGridsChecksum string    `json:"final_grids_checksum"`
}

// AgentFrame is the per-agent part of a keyframe.
type AgentFrame struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Hunger int    `json:"hunger"`
	State  string `json:"state"`
	Role   string `json:"role"`
}

// FoodFrame is the per-source part of a keyframe, in source order.
type FoodFrame struct {
	Amount   float64 `json:"amount"`
	Consumed bool    `json:"consumed"`
}

// Keyframe samples agents, food and counters. Grids are only kept in the
// initial state and the final grids.
type Keyframe struct {
	Time       float64               `json:"time"`
	Tick       uint64                `json:"tick"`
	Agents     map[string]AgentFrame `json:"agents"`
	Food       []FoodFrame           `json:"food"`
	Alive      int                   `json:"alive"`
	Dead       int                   `json:"dead"`
	QueenStock float64               `json:"queen_stock"`
	Trips      int                   `json:"trips"`
	Mood       string                `json:"mood"`
}

// NewKeyframe projects s down to a keyframe taken at elapsed.
func NewKeyframe(elapsed float64, s HiveState) Keyframe {
	kf := Keyframe{
		Time:       elapsed,
		Tick:       s.Tick,
		Agents:     make(map[string]AgentFrame, len(s.Drones)),
		Food:       make([]FoodFrame, len(s.FoodSources)),
		Alive:      s.Alive,
		Dead:       s.Dead,
		QueenStock: s.QueenStock,
		Trips:      s.Trips,
		Mood:       s.Mood,
	}
	for id, d := range s.Drones {
		kf.Agents[id] = AgentFrame{X: d.X, Y: d.Y, Hunger: d.Hunger, State: d.State, Role: d.Role}
	}
	for i, f := range s.FoodSources {
		kf.Food[i] = FoodFrame{Amount: f.Amount, Consumed: f.Consumed}
	}
	return kf
}

// Grids holds both pheromone grids.
type Grids struct {
	Active [][]float64 `json:"active"`
	Ghost  [][]float64 `json:"ghost"`
}

// Checksum fingerprints both grids.
func (g Grids) Checksum() string { return field.Checksum(g.Active, g.Ghost) }

// Recording is a whole session.
type Recording struct {
	Version      int        `json:"version"`
	Metadata     Metadata   `json:"metadata"`
	InitialState HiveState  `json:"initial_state"`
	Keyframes    []Keyframe `json:"keyframes"`
	Events       []Event    `json:"events"`
	FinalGrids   Grids      `json:"final_grids"`
}

// Verify checks the final grids against the recorded checksum.
func (r *Recording) Verify() error {
	if got := r.FinalGrids.Checksum(); got != r.Metadata.FinalGridsChecksum {
		return fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, got, r.Metadata.FinalGridsChecksum)
	}
	return nil
}

// Recorder captures keyframes and events inside the tick loop. A nil
// *Recorder is a no-op, so recording can be disabled by not creating one.
type Recorder struct {
	interval float64
	lastKey  float64
	rec      Recording
	started  bool
}

// NewRecorder creates a recorder that keeps at most one keyframe per
// interval seconds.
func NewRecorder(interval float64) *Recorder {
	return &Recorder{interval: interval, lastKey: math.Inf(-1)}
}

// Start begins a session. A session id is assigned when meta has none.
func (r *Recorder) Start(meta Metadata, initial HiveState) {
	if r == nil {
		return
	}
	if meta.SessionID == "" {
		meta.SessionID = uuid.NewString()
	}
	if meta.StartedAt.IsZero() {
		meta.StartedAt = time.Now().UTC()
	}
	meta.KeyframeInterval = r.interval
	r.rec = Recording{
		Version:      RecordingVersion,
		Metadata:     meta,
		InitialState: initial,
		Keyframes:    []Keyframe{},
		Events:       []Event{},
	}
	r.lastKey = math.Inf(-1)
	r.started = true
}

// Started reports whether Start was called.
func (r *Recorder) Started() bool { return r != nil && r.started }

// Due reports whether a keyframe would be taken at elapsed.
func (r *Recorder) Due(elapsed float64) bool {
	return r.Started() && elapsed-r.lastKey >= r.interval
}

// RecordTick stores a keyframe of frame if at least the keyframe interval
// has passed since the previous one. It reports whether it did.
func (r *Recorder) RecordTick(elapsed float64, frame HiveState) bool {
	if !r.Due(elapsed) {
		return false
	}
	r.rec.Keyframes = append(r.rec.Keyframes, NewKeyframe(elapsed, frame))
	r.lastKey = elapsed
	return true
}

// RecordEvent appends an event.
func (r *Recorder) RecordEvent(ev Event) {
	if !r.Started() {
		return
	}
	r.rec.Events = append(r.rec.Events, ev)
}

// Finish closes the session with the final grids.
func (r *Recorder) Finish(final Grids, duration float64, ticks uint64, reason string) *Recording {
	if !r.Started() {
		return nil
	}
	r.rec.FinalGrids = final
	m := &r.rec.Metadata
	m.Duration = duration
	m.Ticks = ticks
	m.StopReason = reason
	m.KeyframeCount = len(r.rec.Keyframes)
	m.EventCount = len(r.rec.Events)
	m.FinalGridsChecksum = final.Checksum()
	return &r.rec
}

// Recording returns the session recorded so far.
func (r *Recorder) Recording() *Recording {
	if !r.Started() {
		return nil
	}
	return &r.rec
}

// Save writes rec as gzipped JSON.
func Save(path string, rec *Recording) error {
	if rec == nil {
		return errors.New("save recording: nothing recorded")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create recording dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	if err := json.NewEncoder(zw).Encode(rec); err != nil {
		zw.Close()
		return fmt.Errorf("encode recording: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress recording: %w", err)
	}
	return f.Close()
}

// LoadRecording reads a recording written by Save.
func LoadRecording(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("decompress recording: %w", err)
	}
	defer zr.Close()

	var rec Recording
	if err := json.NewDecoder(zr).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode recording: %w", err)
	}
	if rec.Version != RecordingVersion {
		return nil, fmt.Errorf("unsupported recording version %d", rec.Version)
	}
	return &rec, nil
}

// RecordingName returns the file name for a session.
func RecordingName(mode string, drones int, now time.Time) string {
	safe := strings.NewReplacer(",", "+", "/", "_", " ", "").Replace(mode)
	return fmt.Sprintf("sim_%s_%ddrones_%s%s", safe, drones, now.Format(archiveLayout), RecordingExt)
}
