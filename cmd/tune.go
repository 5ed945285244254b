package main

import (
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/cwbudde/convaccel/internal/driver"
	"github.com/cwbudde/convaccel/internal/opt"
	"github.com/cwbudde/convaccel/internal/store"
	"github.com/spf13/cobra"
)

var (
	tuneConfig   = store.DefaultRunConfig()
	tuneSearch   = driver.DefaultTuneConfig()
	tuneIters    int
	tunePopSize  int
	tuneSeed     int64
	tuneFullGram bool
)

var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Search DIIS parameters that converge a problem fastest",
	Long: `Uses the mayfly optimiser to search eta, depth and restart for the DIIS
accelerator, minimising the number of iterations needed to converge the
selected problem. Every candidate is a complete run.`,
	RunE: runTune,
}

func init() {
	tuneConfig.MaxIterations = tuneSearch.Run.MaxIterations
	bindConfigFlags(tuneCmd.Flags(), &tuneConfig, problemFlags, limitFlags)
	tuneCmd.Flags().IntVar(&tuneSearch.MaxDepth, "max-depth", tuneSearch.MaxDepth, "Largest subspace size tried")
	tuneCmd.Flags().IntVar(&tuneSearch.MaxRestart, "max-restart", tuneSearch.MaxRestart, "Largest restart factor tried")
	tuneCmd.Flags().Float64Var(&tuneSearch.MinEta, "min-eta", tuneSearch.MinEta, "Smallest mixing fraction tried")
	tuneCmd.Flags().BoolVar(&tuneFullGram, "full-subspace", false, "Tune the full-subspace DIIS variant")
	tuneCmd.Flags().IntVar(&tuneIters, "iters", 30, "Optimiser iterations")
	tuneCmd.Flags().IntVar(&tunePopSize, "pop", 20, "Optimiser population size")
	tuneCmd.Flags().Int64Var(&tuneSeed, "seed", 42, "Random seed")
	rootCmd.AddCommand(tuneCmd)
}

func runTune(cmd *cobra.Command, args []string) error {
	if err := tuneConfig.Problem.Validate(); err != nil {
		return err
	}

	search := tuneSearch
	search.Run = tuneConfig.Driver()
	search.FullSubspace = tuneFullGram

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	best, err := driver.Tune(ctx, tuneConfig.Problem, opt.NewMayfly(tuneIters, tunePopSize, tuneSeed), search)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Problem:\t%s\n", tuneConfig.Problem.Description())
	fmt.Fprintf(w, "Eta:\t%.4f\n", best.Config.Eta)
	fmt.Fprintf(w, "Depth:\t%d\n", best.Config.Depth)
	fmt.Fprintf(w, "Restart:\t%d\n", best.Config.Restart)
	fmt.Fprintf(w, "Iterations:\t%d\n", best.Iterations)
	fmt.Fprintf(w, "Converged:\t%v\n", best.Converged)
	fmt.Fprintf(w, "Evaluations:\t%d\n", best.Evaluations)
	return w.Flush()
}
