// Package config provides configuration loading and access for the hive.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all hive configuration parameters.
type Config struct {
	Grid       GridConfig      `yaml:"grid"`
	Boundary   BoundaryConfig  `yaml:"boundary"`
	Anchors    []AnchorConfig  `yaml:"anchors"`
	Position   PositionConfig  `yaml:"position"`
	Pheromones PheromoneConfig `yaml:"pheromones"`
	Swarm      SwarmConfig     `yaml:"swarm"`
	Behavior   BehaviorConfig  `yaml:"behavior"`
	Hunger     HungerConfig    `yaml:"hunger"`
	Hopper     HopperConfig    `yaml:"hopper"`
	Food       FoodConfig      `yaml:"food"`
	Tick       TickConfig      `yaml:"tick"`
	Recorder   RecorderConfig  `yaml:"recorder"`
	Export     ExportConfig    `yaml:"export"`
	FlightLog  FlightLogConfig `yaml:"flight_log"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
	Transport  TransportConfig `yaml:"transport"`
	Status     StatusConfig    `yaml:"status"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// GridConfig holds pheromone grid dimensions.
type GridConfig struct {
	Size   int `yaml:"size"`   // N for the N×N grids
	Margin int `yaml:"margin"` // Boundary inset when boundary is not given explicitly
}

// BoundaryConfig is the operational rectangle agents are confined to.
// All zero means "derive from grid size and margin".
type BoundaryConfig struct {
	MinX int `yaml:"min_x"`
	MinY int `yaml:"min_y"`
	MaxX int `yaml:"max_x"`
	MaxY int `yaml:"max_y"`
}

// AnchorConfig is a fixed receiver at a known grid coordinate.
type AnchorConfig struct {
	ID string  `yaml:"id"`
	X  float64 `yaml:"x"`
	Y  float64 `yaml:"y"`
}

// PositionConfig holds RSSI position estimation parameters.
type PositionConfig struct {
	Method      string  `yaml:"method"`        // centroid or trilateration
	QueenAnchor string  `yaml:"queen_anchor"`  // Anchor id treated as the queen
	StaleAfter  float64 `yaml:"stale_after"`   // Seconds before a sample buffer is ignored
	MaxSamples  int     `yaml:"max_samples"`   // Readings kept per (agent, anchor)
	MinAnchors  int     `yaml:"min_anchors"`   // Fresh anchors required for an estimate
	WeakRSSI    int     `yaml:"weak_rssi"`     // Below this the deposit is penalized
	WeakPenalty float64 `yaml:"weak_penalty"`  // Intensity multiplier for weak links
	DefaultRSSI int     `yaml:"default_rssi"`  // Assumed for 3-field legacy payloads
	TxPower     float64 `yaml:"tx_power"`      // RSSI at 1 cell, trilateration only
	PathLossExp float64 `yaml:"path_loss_exp"` // Log-distance exponent, trilateration only
}

// PheromoneConfig holds field parameters. Fields tagged live may be changed at runtime.
type PheromoneConfig struct {
	DecayRate     float64 `yaml:"decay_rate"`     // live
	DepositAmount float64 `yaml:"deposit_amount"` // live; per agent step
	GhostDeposit  float64 `yaml:"ghost_deposit"`  // live; ghost share of deposit_amount
	Diffusion     bool    `yaml:"diffusion"`      // Convolve Active before decay
	MaxValue      float64 `yaml:"max_value"`
}

// SwarmConfig holds virtual swarm setup.
type SwarmConfig struct {
	Mode         string  `yaml:"mode"`          // e.g. "FORAGE,AVOID"
	VirtualCount int     `yaml:"virtual_count"` // Virtual agents at start
	HopperRatio  float64 `yaml:"hopper_ratio"`  // Fraction of new virtual agents that are hoppers
	Spawn        string  `yaml:"spawn"`         // random, center, corners, line
	TrailLength  int     `yaml:"trail_length"`
}

// BehaviorConfig holds movement primitive parameters.
type BehaviorConfig struct {
	SeparationDistance float64            `yaml:"separation_distance"`
	NeighborRadius     float64            `yaml:"neighbor_radius"`
	DetectionRadius    int                `yaml:"detection_radius"` // live
	MoveProbability    float64            `yaml:"move_probability"`
	StepThreshold      float64            `yaml:"step_threshold"`  // |component| above this becomes a step
	RandomFallback     float64            `yaml:"random_fallback"` // Chance of a random step when stuck
	Weights            map[string]float64 `yaml:"weights"`         // Per-primitive weight
}

// HungerConfig holds the hunger and death policy.
type HungerConfig struct {
	DecayInterval       int     `yaml:"decay_interval"`        // Ticks per hunger point lost
	HopperDecayFraction float64 `yaml:"hopper_decay_fraction"` // Hoppers lose hunger with this probability
	DeathMode           string  `yaml:"death_mode"`            // live; freeze, die, respawn
	FreezeActChance     float64 `yaml:"freeze_act_chance"`
	RespawnJitter       int     `yaml:"respawn_jitter"`
}

// HopperConfig holds scout movement parameters.
type HopperConfig struct {
	Cooldown    int     `yaml:"cooldown"`     // Ticks between hops
	Distance    float64 `yaml:"distance"`     // Leap length in cells
	SmellRadius float64 `yaml:"smell_radius"` // Beyond adjacency, food within this leaves a weak beacon
	FoundBeacon float64 `yaml:"found_beacon"`
	SmellBeacon float64 `yaml:"smell_beacon"`
	Consume     float64 `yaml:"consume"` // Amount eaten on landing next to food
}

// FoodConfig holds food source layout and interaction parameters.
type FoodConfig struct {
	Sources        int     `yaml:"sources"`
	Radius         float64 `yaml:"radius"`
	Amount         float64 `yaml:"amount"`
	PickupAmount   float64 `yaml:"pickup_amount"`   // Deliver mode load per trip
	GrazeRate      float64 `yaml:"graze_rate"`      // Graze mode consumption per tick
	PheromoneBoost float64 `yaml:"pheromone_boost"` // live; deposit multiplier near food
	QueenRadius    float64 `yaml:"queen_radius"`    // Delivery distance to the queen
	MinQueenDist   float64 `yaml:"min_queen_dist"`  // Sources are placed at least this far from the queen
}

// TickConfig holds loop timing and inbox sizing.
type TickConfig struct {
	Rate          float64 `yaml:"rate"` // Ticks per second
	InboxCapacity int     `yaml:"inbox_capacity"`
	StopOnExtinct bool    `yaml:"stop_on_extinct"`
}

// RecorderConfig holds session recording parameters.
type RecorderConfig struct {
	Enabled          bool    `yaml:"enabled"`
	Dir              string  `yaml:"dir"`
	KeyframeInterval float64 `yaml:"keyframe_interval"` // Seconds
}

// ExportConfig holds live state export parameters.
type ExportConfig struct {
	Path       string `yaml:"path"`
	ArchiveDir string `yaml:"archive_dir"`
}

// FlightLogConfig holds deposit CSV logging parameters.
type FlightLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// TelemetryConfig holds metrics collection parameters.
type TelemetryConfig struct {
	StatsWindow float64 `yaml:"stats_window"` // Seconds per stats window
	PerfWindow  int     `yaml:"perf_window"`  // Ticks of perf history
}

// TransportConfig holds broker connection parameters.
type TransportConfig struct {
	URL            string  `yaml:"url"`
	DepositSubject string  `yaml:"deposit_subject"`
	ModeSubject    string  `yaml:"mode_subject"`
	SwarmSubject   string  `yaml:"swarm_subject"`
	ResetSubject   string  `yaml:"reset_subject"`
	MaxReconnects  int     `yaml:"max_reconnects"`
	ReconnectWait  float64 `yaml:"reconnect_wait"`  // Seconds
	ConnectTimeout float64 `yaml:"connect_timeout"` // Seconds
}

// StatusConfig holds the read-only status server parameters.
type StatusConfig struct {
	Addr           string `yaml:"addr"`
	LiveConfigPath string `yaml:"live_config_path"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	QueenX, QueenY int     // Queen anchor cell
	GhostRatio     float64 // ghost_deposit / deposit_amount
	TickSeconds    float64
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from path (or embedded defaults if empty)
// and sets the global config.
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns a fresh copy of the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in the file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Grid.Size < 5 {
		return fmt.Errorf("grid.size must be at least 5, got %d", c.Grid.Size)
	}
	b := c.Boundary
	if b != (BoundaryConfig{}) {
		if b.MinX < 0 || b.MinY < 0 || b.MaxX >= c.Grid.Size || b.MaxY >= c.Grid.Size {
			return fmt.Errorf("boundary %+v outside %dx%d grid", b, c.Grid.Size, c.Grid.Size)
		}
		if b.MinX > b.MaxX || b.MinY > b.MaxY {
			return fmt.Errorf("boundary %+v is inverted", b)
		}
	} else if 2*c.Grid.Margin >= c.Grid.Size {
		return fmt.Errorf("grid.margin %d leaves no room in a %d grid", c.Grid.Margin, c.Grid.Size)
	}
	if c.Tick.Rate <= 0 {
		return fmt.Errorf("tick.rate must be positive, got %v", c.Tick.Rate)
	}
	if c.Tick.InboxCapacity <= 0 {
		return fmt.Errorf("tick.inbox_capacity must be positive, got %d", c.Tick.InboxCapacity)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	// Boundary defaults to the grid inset by the margin
	if c.Boundary == (BoundaryConfig{}) {
		c.Boundary = BoundaryConfig{
			MinX: c.Grid.Margin,
			MinY: c.Grid.Margin,
			MaxX: c.Grid.Size - c.Grid.Margin,
			MaxY: c.Grid.Size - c.Grid.Margin,
		}
		if c.Boundary.MaxX >= c.Grid.Size {
			c.Boundary.MaxX = c.Grid.Size - 1
		}
		if c.Boundary.MaxY >= c.Grid.Size {
			c.Boundary.MaxY = c.Grid.Size - 1
		}
	}

	// Queen at the min corner and a sentinel at the max corner unless given
	if len(c.Anchors) == 0 {
		c.Anchors = []AnchorConfig{
			{ID: "QUEEN", X: float64(c.Boundary.MinX), Y: float64(c.Boundary.MinY)},
			{ID: "SENTINEL", X: float64(c.Boundary.MaxX), Y: float64(c.Boundary.MaxY)},
		}
	}
	if c.Position.QueenAnchor == "" {
		c.Position.QueenAnchor = c.Anchors[0].ID
	}

	c.Derived.QueenX, c.Derived.QueenY = c.Boundary.MinX, c.Boundary.MinY
	for _, a := range c.Anchors {
		if a.ID == c.Position.QueenAnchor {
			c.Derived.QueenX, c.Derived.QueenY = int(a.X), int(a.Y)
			break
		}
	}

	c.Derived.GhostRatio = 0.1
	if c.Pheromones.DepositAmount > 0 {
		c.Derived.GhostRatio = c.Pheromones.GhostDeposit / c.Pheromones.DepositAmount
	}
	c.Derived.TickSeconds = 1 / c.Tick.Rate
}

// Refresh validates c and recomputes derived values after fields were
// changed in code.
func (c *Config) Refresh() error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.computeDerived()
	return nil
}

// Clone returns a deep copy, safe to mutate by a single owner.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Anchors = append([]AnchorConfig(nil), c.Anchors...)
	cp.Behavior.Weights = make(map[string]float64, len(c.Behavior.Weights))
	for k, v := range c.Behavior.Weights {
		cp.Behavior.Weights[k] = v
	}
	return &cp
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
