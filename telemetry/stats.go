package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartTick uint64  `csv:"-"`
	WindowEndTick   uint64  `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Population at window end
	Drones   int `csv:"drones"`
	Physical int `csv:"physical"`
	Virtual  int `csv:"virtual"`
	Alive    int `csv:"alive"`
	Frozen   int `csv:"frozen"`

	// Events during window
	Deaths     int `csv:"deaths"`
	Respawns   int `csv:"respawns"`
	Pickups    int `csv:"pickups"`
	Deliveries int `csv:"deliveries"`
	Depleted   int `csv:"food_depleted"`
	FoundFood  int `csv:"found_food"`
	SmellFood  int `csv:"smell_food"`

	// Ingress during window
	Deposits     int `csv:"deposits"`
	DecodeErrors int `csv:"decode_errors"`
	Dropped      int `csv:"dropped"`

	// Hunger distribution (virtual agents, sampled at window end)
	HungerMean float64 `csv:"hunger_mean"`
	HungerP10  float64 `csv:"hunger_p10"`
	HungerP50  float64 `csv:"hunger_p50"`
	HungerP90  float64 `csv:"hunger_p90"`

	// Field
	ActiveTotal float64 `csv:"active_total"`
	ActivePeak  float64 `csv:"active_peak"`
	Coverage    float64 `csv:"coverage"`

	// Food
	FoodRemaining float64 `csv:"food_remaining"`
	QueenStock    float64 `csv:"queen_stock"`
}

// HungerQuantiles returns the mean and the empirical 10th, 50th and 90th
// percentiles of values. Each percentile is an observed value. Empty input
// yields zeros.
func HungerQuantiles(values []float64) (mean, p10, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	q := func(p float64) float64 { return stat.Quantile(p, stat.Empirical, sorted, nil) }
	return stat.Mean(sorted, nil), q(0.10), q(0.50), q(0.90)
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("window_start", s.WindowStartTick),
		slog.Uint64("window_end", s.WindowEndTick),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("drones", s.Drones),
		slog.Int("physical", s.Physical),
		slog.Int("virtual", s.Virtual),
		slog.Int("alive", s.Alive),
		slog.Int("frozen", s.Frozen),
		slog.Int("deaths", s.Deaths),
		slog.Int("respawns", s.Respawns),
		slog.Int("pickups", s.Pickups),
		slog.Int("deliveries", s.Deliveries),
		slog.Int("food_depleted", s.Depleted),
		slog.Int("found_food", s.FoundFood),
		slog.Int("smell_food", s.SmellFood),
		slog.Int("deposits", s.Deposits),
		slog.Int("decode_errors", s.DecodeErrors),
		slog.Int("dropped", s.Dropped),
		slog.Float64("hunger_mean", s.HungerMean),
		slog.Float64("hunger_p10", s.HungerP10),
		slog.Float64("hunger_p50", s.HungerP50),
		slog.Float64("hunger_p90", s.HungerP90),
		slog.Float64("active_total", s.ActiveTotal),
		slog.Float64("active_peak", s.ActivePeak),
		slog.Float64("coverage", s.Coverage),
		slog.Float64("food_remaining", s.FoodRemaining),
		slog.Float64("queen_stock", s.QueenStock),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"drones", s.Drones,
		"alive", s.Alive,
		"frozen", s.Frozen,
		"deaths", s.Deaths,
		"respawns", s.Respawns,
		"pickups", s.Pickups,
		"deliveries", s.Deliveries,
		"deposits", s.Deposits,
		"decode_errors", s.DecodeErrors,
		"dropped", s.Dropped,
		"hunger_mean", s.HungerMean,
		"active_total", s.ActiveTotal,
		"coverage", s.Coverage,
		"queen_stock", s.QueenStock,
	)
}
