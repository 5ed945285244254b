package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/cwbudde/convaccel/internal/store"
	"github.com/spf13/cobra"
)

var (
	resumeOverrides = store.DefaultRunConfig()
	resumeDataDir   string
)

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Continue a saved run from its last iterate",
	Long: `Loads a saved run and keeps iterating from its final iterate. Accelerator
and limit flags override the saved configuration; problem flags may be
given but must match the saved problem. DIIS history is not persisted, so a
resumed DIIS run starts with a fresh warm-up.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	bindConfigFlags(resumeCmd.Flags(), &resumeOverrides, problemFlags, accelFlags, limitFlags)
	resumeCmd.Flags().StringVar(&plotPath, "plot", "", "Write a convergence plot of this session (.png, .svg or .html)")
	resumeCmd.Flags().StringVar(&resumeDataDir, "data-dir", "./data", "Base directory for run storage")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	runID := args[0]
	runStore, err := store.NewFSStore(resumeDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	record, err := runStore.LoadRecord(runID)
	if err != nil {
		return err
	}

	cfg := record.Config
	applyChangedFlags(cmd.Flags(), &cfg, resumeOverrides, problemFlags, accelFlags, limitFlags)
	if err := record.IsCompatible(cfg); err != nil {
		return fmt.Errorf("cannot resume %s: %w", runID, err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	slog.Info("Resuming run", "run_id", runID, "iteration", record.Iterations, "change", record.FinalChange)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out, err := execute(ctx, runStore, runID, cfg, record.Final, record)
	if out != nil {
		printSummary(cmd, runID, out, true)
	}
	return err
}
