package telemetry

import (
	"log/slog"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Phase identifies a section of the tick loop.
type Phase uint8

const (
	PhaseIngest Phase = iota
	PhaseDecay
	PhaseBehavior
	PhaseFood
	PhaseLifecycle
	PhaseRecord
	PhaseExport
	numPhases
)

var phaseNames = [numPhases]string{"ingest", "decay", "behavior", "food", "lifecycle", "record", "export"}

func (p Phase) String() string {
	if p < numPhases {
		return phaseNames[p]
	}
	return "unknown"
}

// Phases lists every phase in tick order.
func Phases() []Phase {
	out := make([]Phase, numPhases)
	for i := range out {
		out[i] = Phase(i)
	}
	return out
}

// tickSample holds timing data for a single tick.
type tickSample struct {
	total  time.Duration
	phases [numPhases]time.Duration
}

// PerfCollector keeps tick timings in a ring of the last windowSize ticks.
// It is owned by the tick loop and not safe for concurrent use.
type PerfCollector struct {
	ring   []tickSample
	next   int
	filled int

	cur        tickSample
	tickStart  time.Time
	phaseStart time.Time
	inPhase    bool
	phase      Phase

	budget   time.Duration // 0 = no pacing
	overruns int
}

// NewPerfCollector creates a collector averaging over windowSize ticks
// (120 covers 12 seconds at 10 Hz).
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 120
	}
	return &PerfCollector{ring: make([]tickSample, windowSize)}
}

// SetBudget sets the slot length of a paced tick. Ticks longer than it are
// counted as overruns.
func (p *PerfCollector) SetBudget(d time.Duration) { p.budget = d }

// StartTick begins timing a tick.
func (p *PerfCollector) StartTick() {
	p.tickStart = time.Now()
	p.cur = tickSample{}
	p.inPhase = false
}

// StartPhase closes the running phase, if any, and opens phase.
func (p *PerfCollector) StartPhase(phase Phase) {
	now := time.Now()
	p.closePhase(now)
	p.phase, p.phaseStart, p.inPhase = phase, now, true
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.inPhase && p.phase < numPhases {
		p.cur.phases[p.phase] += now.Sub(p.phaseStart)
	}
	p.inPhase = false
}

// EndTick stores the tick in the ring and returns its duration.
func (p *PerfCollector) EndTick() time.Duration {
	now := time.Now()
	p.closePhase(now)
	p.cur.total = now.Sub(p.tickStart)

	p.ring[p.next] = p.cur
	p.next = (p.next + 1) % len(p.ring)
	if p.filled < len(p.ring) {
		p.filled++
	}
	if p.budget > 0 && p.cur.total > p.budget {
		p.overruns++
	}
	return p.cur.total
}

// PerfStats aggregates the ticks currently in the window.
type PerfStats struct {
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration
	P95TickDuration time.Duration

	// Average duration and share of tick time per phase
	PhaseAvg map[Phase]time.Duration
	PhasePct map[Phase]float64

	// Throughput the loop could sustain; the configured rate caps the real one
	TicksPerSecond float64

	// Paced ticks that overran their slot since start
	Overruns int
}

// Stats computes statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	s := PerfStats{
		PhaseAvg: make(map[Phase]time.Duration),
		PhasePct: make(map[Phase]float64),
		Overruns: p.overruns,
	}
	if p.filled == 0 {
		return s
	}

	ticks := make([]float64, p.filled)
	var phaseSum [numPhases]time.Duration
	for i := 0; i < p.filled; i++ {
		ticks[i] = float64(p.ring[i].total)
		for ph, d := range p.ring[i].phases {
			phaseSum[ph] += d
		}
	}
	sort.Float64s(ticks)

	n := time.Duration(p.filled)
	s.AvgTickDuration = time.Duration(stat.Mean(ticks, nil))
	s.MinTickDuration = time.Duration(ticks[0])
	s.MaxTickDuration = time.Duration(ticks[len(ticks)-1])
	s.P95TickDuration = time.Duration(stat.Quantile(0.95, stat.Empirical, ticks, nil))

	for ph, sum := range phaseSum {
		if sum == 0 {
			continue
		}
		avg := sum / n
		s.PhaseAvg[Phase(ph)] = avg
		if s.AvgTickDuration > 0 {
			s.PhasePct[Phase(ph)] = float64(avg) / float64(s.AvgTickDuration) * 100
		}
	}
	if s.AvgTickDuration > 0 {
		s.TicksPerSecond = float64(time.Second) / float64(s.AvgTickDuration)
	}
	return s
}

// LogStats logs the window at info level.
func (s PerfStats) LogStats() {
	slog.Info("perf", "perf", s)
}

// LogValue implements slog.LogValuer.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("p95_tick_us", s.P95TickDuration.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTickDuration.Microseconds()),
		slog.Int("ticks_per_sec", int(s.TicksPerSecond)),
	}
	if s.Overruns > 0 {
		attrs = append(attrs, slog.Int("overruns", s.Overruns))
	}
	for _, ph := range Phases() {
		if pct := s.PhasePct[ph]; pct > 0.1 {
			attrs = append(attrs, slog.Float64(ph.String()+"_pct", float64(int(pct*10))/10))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is one perf.csv row.
type PerfStatsCSV struct {
	Tick         uint64  `csv:"tick"`
	AvgTickUS    int64   `csv:"avg_tick_us"`
	MinTickUS    int64   `csv:"min_tick_us"`
	MaxTickUS    int64   `csv:"max_tick_us"`
	P95TickUS    int64   `csv:"p95_tick_us"`
	TicksPerSec  float64 `csv:"ticks_per_sec"`
	Overruns     int     `csv:"overruns"`
	IngestPct    float64 `csv:"ingest_pct"`
	DecayPct     float64 `csv:"decay_pct"`
	BehaviorPct  float64 `csv:"behavior_pct"`
	FoodPct      float64 `csv:"food_pct"`
	LifecyclePct float64 `csv:"lifecycle_pct"`
	RecordPct    float64 `csv:"record_pct"`
	ExportPct    float64 `csv:"export_pct"`
}

// ToCSV flattens the stats for a window ending at tick.
func (s PerfStats) ToCSV(tick uint64) PerfStatsCSV {
	return PerfStatsCSV{
		Tick:         tick,
		AvgTickUS:    s.AvgTickDuration.Microseconds(),
		MinTickUS:    s.MinTickDuration.Microseconds(),
		MaxTickUS:    s.MaxTickDuration.Microseconds(),
		P95TickUS:    s.P95TickDuration.Microseconds(),
		TicksPerSec:  s.TicksPerSecond,
		Overruns:     s.Overruns,
		IngestPct:    s.PhasePct[PhaseIngest],
		DecayPct:     s.PhasePct[PhaseDecay],
		BehaviorPct:  s.PhasePct[PhaseBehavior],
		FoodPct:      s.PhasePct[PhaseFood],
		LifecyclePct: s.PhasePct[PhaseLifecycle],
		RecordPct:    s.PhasePct[PhaseRecord],
		ExportPct:    s.PhasePct[PhaseExport],
	}
}
