package main

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/slimehive/config"
)

var (
	tuneDuration   float64
	tuneSeeds      int
	tuneMaxEvals   int
	tunePopulation int
	tuneOutput     string
)

// tuneCmd searches field and behavior parameters with CMA-ES
var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Search field and behavior parameters with CMA-ES",
	Long: `Tune runs headless hives for each candidate parameter set and minimizes
negative fitness: food delivered to the queen plus field coverage, scaled by
how long the swarm survived. The best parameters are written as a config
file ready for --config.`,
	RunE: runTune,
}

func init() {
	f := tuneCmd.Flags()
	f.Float64Var(&tuneDuration, "duration", 120, "Simulated seconds per run")
	f.IntVar(&tuneSeeds, "seeds", 3, "Number of seeds per evaluation")
	f.IntVar(&tuneMaxEvals, "max-evals", 200, "Maximum number of evaluations")
	f.IntVar(&tunePopulation, "population", 0, "CMA-ES population size (0 = auto)")
	f.StringVar(&tuneOutput, "output", "tune_output", "Output directory for results")
}

// formatDuration formats a duration as HhMMmSSs or MmSSs for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func runTune(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(tuneOutput, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	baseCfg := config.Cfg()
	out := cmd.OutOrStdout()

	params := NewParamVector()

	evalSeeds := make([]int64, tuneSeeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}
	maxTicks := uint64(math.Ceil(tuneDuration * baseCfg.Tick.Rate))
	evaluator := NewFitnessEvaluator(params, maxTicks, evalSeeds, baseCfg)

	dim := params.Dim()
	initX := params.Normalize(params.ExtractFromConfig(baseCfg))

	popSize := tunePopulation
	if popSize == 0 {
		// Auto-size: 4 + floor(3*ln(n))
		popSize = 4 + int(3*math.Log(float64(dim)))
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}
	settings := &optimize.Settings{
		FuncEvaluations: tuneMaxEvals,
		Concurrent:      0, // Seeds already run in parallel
	}

	logFile, err := os.Create(filepath.Join(tuneOutput, "tune_log.csv"))
	if err != nil {
		return fmt.Errorf("create log file: %w", err)
	}
	defer logFile.Close()
	logWriter := csv.NewWriter(logFile)
	defer logWriter.Flush()

	header := []string{"eval", "fitness", "coverage"}
	for _, spec := range params.Specs {
		header = append(header, spec.Name)
	}
	logWriter.Write(header)

	evalCount := 0
	bestFitness := math.Inf(1)
	var bestParams []float64
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			// Log clamped values, which are the ones actually run
			clamped := params.Clamp(params.Denormalize(x))
			fitness := evaluator.Evaluate(clamped)
			evalCount++

			if fitness < bestFitness {
				bestFitness = fitness
				bestParams = clamped
			}

			quality := evaluator.LastQuality()
			row := []string{strconv.Itoa(evalCount), fmt.Sprintf("%.6f", fitness), fmt.Sprintf("%.3f", quality)}
			for _, v := range clamped {
				row = append(row, fmt.Sprintf("%.6f", v))
			}
			logWriter.Write(row)
			logWriter.Flush()

			elapsed := time.Since(startTime)
			remaining := time.Duration(tuneMaxEvals-evalCount) * (elapsed / time.Duration(evalCount))
			fmt.Fprintf(out, "Eval %d/%d: fitness=%.2f coverage=%.1f%% (best=%.2f) | elapsed: %s, ETA: %s\n",
				evalCount, tuneMaxEvals, fitness, quality, bestFitness,
				formatDuration(elapsed), formatDuration(remaining))
			return fitness
		},
	}

	fmt.Fprintf(out, "Starting CMA-ES with %d parameters, population=%d, max_evals=%d\n", dim, popSize, tuneMaxEvals)
	fmt.Fprintf(out, "Seeds per evaluation: %d, ticks per run: %d\n", tuneSeeds, maxTicks)

	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		slog.Warn("optimization ended", "error", err)
	}
	// Best seen may come from any evaluation, not just the last
	if bestParams == nil && result != nil {
		bestParams = params.Clamp(params.Denormalize(result.X))
	}
	if bestParams == nil {
		return fmt.Errorf("no evaluation completed")
	}

	fmt.Fprintf(out, "\nTuning complete after %d evaluations in %s\n", evalCount, formatDuration(time.Since(startTime)))
	fmt.Fprintf(out, "Best fitness: %.2f\n\nBest parameters:\n", bestFitness)
	for i, spec := range params.Specs {
		fmt.Fprintf(out, "  %s: %.6f\n", spec.Path, bestParams[i])
	}

	bestCfg := baseCfg.Clone()
	params.ApplyToConfig(bestCfg, bestParams)
	if err := bestCfg.Refresh(); err != nil {
		return err
	}
	configOutPath := filepath.Join(tuneOutput, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		return fmt.Errorf("write best config: %w", err)
	}
	fmt.Fprintf(out, "\nBest config saved to: %s\n", configOutPath)
	return nil
}
