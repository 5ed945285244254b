package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/cwbudde/convaccel/internal/accel"
	"github.com/cwbudde/convaccel/internal/array"
	"github.com/cwbudde/convaccel/internal/driver"
	"github.com/cwbudde/convaccel/internal/report"
	"github.com/cwbudde/convaccel/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	runConfig  = store.DefaultRunConfig()
	plotPath   string
	runDataDir string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Iterate a problem to convergence",
	Long: `Runs one fixed-point iteration with the selected accelerator. The final
iterate and the per-step trace are saved under --data-dir so the run can be
resumed, listed and plotted later.`,
	RunE: runIteration,
}

func init() {
	bindConfigFlags(runCmd.Flags(), &runConfig, problemFlags, accelFlags, limitFlags)
	runCmd.Flags().StringVar(&plotPath, "plot", "", "Write a convergence plot (.png, .svg or .html)")
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "./data", "Base directory for run storage (empty = do not save)")
	rootCmd.AddCommand(runCmd)
}

func runIteration(cmd *cobra.Command, args []string) error {
	if err := runConfig.Validate(); err != nil {
		return err
	}

	var runStore *store.FSStore
	if runDataDir != "" {
		var err error
		runStore, err = store.NewFSStore(runDataDir)
		if err != nil {
			return fmt.Errorf("failed to create run store: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	runID := uuid.New().String()
	out, err := execute(ctx, runStore, runID, runConfig, runConfig.Problem.InitialGuess(), nil)
	if out != nil {
		printSummary(cmd, runID, out, runStore != nil)
	}
	return err
}

// execution is the outcome of one invocation of execute.
type execution struct {
	result *driver.Result
	record *store.RunRecord
}

// execute runs cfg from x0, streaming steps to the run's trace and saving the
// resulting record. prior is the saved record of a resumed run; its
// iteration and restart counts carry over and the trace is appended to.
func execute(ctx context.Context, runStore *store.FSStore, runID string, cfg store.RunConfig, x0 *array.Array, prior *store.RunRecord) (*execution, error) {
	offset, priorRestarts := 0, 0
	if prior != nil {
		offset, priorRestarts = prior.Iterations, prior.Restarts
	}

	problem, err := cfg.Problem.Build()
	if err != nil {
		return nil, err
	}
	runLogger := slog.Default().With("run_id", runID)
	accelerator, err := accel.NewWithLogger(cfg.Accel, runLogger)
	if err != nil {
		return nil, err
	}

	runLogger.Info("Starting run",
		"problem", cfg.Problem.Description(),
		"method", accelerator.Name(),
		"max_iterations", cfg.MaxIterations,
		"tolerance", cfg.Tolerance,
		"offset", offset,
	)

	var observers []driver.Observer
	if runStore != nil {
		trace, err := store.NewTraceWriter(runStore.BaseDir(), runID, prior != nil)
		if err != nil {
			return nil, err
		}
		defer trace.Close()
		observers = append(observers, func(step driver.Step) {
			if err := trace.Write(store.NewTraceEntry(step, offset)); err != nil {
				runLogger.Warn("Failed to write trace entry", "error", err)
			}
		})
	}

	res, runErr := driver.Run(ctx, problem, accelerator, x0, cfg.Driver(), observers...)
	if res == nil {
		return nil, runErr
	}

	record := store.NewRunRecord(runID, res, cfg)
	record.Iterations += offset
	record.Restarts += priorRestarts
	if runStore != nil && res.Iterations > 0 {
		if err := runStore.SaveRecord(runID, record); err != nil {
			return nil, fmt.Errorf("failed to save run: %w", err)
		}
	}

	if plotPath != "" && len(res.Trace) > 0 {
		if err := writePlot(plotPath, cfg.Problem.Description(), res.Trace); err != nil {
			return nil, err
		}
		runLogger.Info("Wrote plot", "path", plotPath)
	}

	runLogger.Info("Run finished",
		"iterations", res.Iterations,
		"converged", res.Converged,
		"stalled", res.Stalled,
		"change", res.FinalChange,
		"restarts", res.Restarts,
	)
	return &execution{result: res, record: record}, runErr
}

// writePlot renders steps to path, choosing the format from its extension.
func writePlot(path, title string, steps []driver.Step) error {
	if strings.EqualFold(filepath.Ext(path), ".html") {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create chart: %w", err)
		}
		defer f.Close()
		return report.RenderChart(f, title, steps)
	}
	return report.PlotTrace(title, steps, path)
}

func printSummary(cmd *cobra.Command, runID string, out *execution, saved bool) {
	w := cmd.OutOrStdout()
	res := out.result
	status := "not converged"
	switch {
	case res.Converged:
		status = "converged"
	case res.Stalled:
		status = "stalled"
	}
	fmt.Fprintf(w, "Run %s: %s after %d iterations (change %.3e, %d restarts)\n",
		runID, status, out.record.Iterations, res.FinalChange, out.record.Restarts)
	if res.X != nil && res.X.Len() <= 8 {
		fmt.Fprintf(w, "Final iterate: %v\n", res.X.Data())
	}
	if saved {
		fmt.Fprintf(w, "Saved run %s\n", runID)
	}
}
