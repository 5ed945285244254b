package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/convaccel/internal/accel"
	"github.com/cwbudde/convaccel/internal/driver"
	"github.com/cwbudde/convaccel/internal/store"
)

// runJob iterates a job to completion in the background. When runStore is
// not nil the trace is streamed to disk and the final iterate is saved as a
// run record; checkpointEvery > 0 additionally saves the record periodically.
func runJob(ctx context.Context, jm *JobManager, runStore *store.FSStore, jobID string, checkpointEvery time.Duration) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if err := jm.UpdateJob(jobID, func(j *Job) { j.State = StateRunning }); err != nil {
		return err
	}
	jobsRunning.Inc()
	defer jobsRunning.Dec()

	cfg := job.Config
	logger := slog.Default().With("job_id", jobID)
	logger.Info("Starting job", "problem", cfg.Problem.Description(), "method", cfg.Accel.Method)

	problem, err := cfg.Problem.Build()
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	accelerator, err := accel.NewWithLogger(cfg.Accel, logger)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	var trace *store.TraceWriter
	if runStore != nil {
		trace, err = store.NewTraceWriter(runStore.BaseDir(), jobID, false)
		if err != nil {
			markJobFailed(jm, jobID, err)
			return err
		}
		defer trace.Close()
	}

	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	start := time.Now()
	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, progressDone)

	checkpointDone := make(chan struct{})
	if runStore != nil && checkpointEvery > 0 {
		go monitorCheckpoints(ctx, jm, runStore, jobID, checkpointEvery, checkpointDone)
	}

	method := accelerator.Name()
	last := start
	observe := func(step driver.Step) {
		now := time.Now()
		stepDuration.WithLabelValues(method).Observe(now.Sub(last).Seconds())
		last = now
		stepsTotal.WithLabelValues(method).Inc()
		if step.Restarted {
			restartsTotal.Inc()
		}

		jm.UpdateJob(jobID, func(j *Job) {
			j.Iterations = step.Iteration
			j.Change = step.Change
			j.Final = step.X
			if step.Restarted {
				j.Restarts++
			}
			j.trace = append(j.trace, step)
		})
		if trace != nil {
			if err := trace.Write(store.NewTraceEntry(step, 0)); err != nil {
				logger.Warn("Failed to write trace entry", "error", err)
			}
		}
	}

	res, runErr := driver.Run(ctx, problem, accelerator, cfg.Problem.InitialGuess(), cfg.Driver(), observe)
	close(progressDone)
	close(checkpointDone)

	if res != nil {
		jm.UpdateJob(jobID, func(j *Job) {
			j.Final = res.X
			j.Converged = res.Converged
		})
		if runStore != nil && res.Iterations > 0 {
			if err := runStore.SaveRecord(jobID, store.NewRunRecord(jobID, res, cfg)); err != nil {
				logger.Error("Failed to save run record", "error", err)
			}
		}
	}

	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		markJobCancelled(jm, jobID)
		return runErr
	default:
		if errors.Is(runErr, accel.ErrLinearSolve) {
			solveFailuresTotal.Inc()
		}
		markJobFailed(jm, jobID, runErr)
		return runErr
	}

	endTime := time.Now()
	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.EndTime = &endTime
	}); err != nil {
		return err
	}
	jobsTotal.WithLabelValues(string(StateCompleted)).Inc()

	logger.Info("Job completed",
		"elapsed", endTime.Sub(start),
		"iterations", res.Iterations,
		"converged", res.Converged,
		"change", res.FinalChange,
		"restarts", res.Restarts,
	)

	broadcastJob(jm, jobID)
	return nil
}

// monitorProgress periodically broadcasts progress events while a job runs.
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !broadcastJob(jm, jobID) {
				return
			}
		}
	}
}

// broadcastJob sends the current state of a job to its subscribers.
func broadcastJob(jm *JobManager, jobID string) bool {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return false
	}
	jm.hub.publish(newProgressEvent(job))
	return true
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	jobsTotal.WithLabelValues(string(StateFailed)).Inc()
	slog.Error("Job failed", "job_id", jobID, "error", err)
	broadcastJob(jm, jobID)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	jobsTotal.WithLabelValues(string(StateCancelled)).Inc()
	slog.Info("Job cancelled", "job_id", jobID)
	broadcastJob(jm, jobID)
}

// monitorCheckpoints periodically saves the latest iterate of a running job.
func monitorCheckpoints(ctx context.Context, jm *JobManager, runStore *store.FSStore, jobID string, interval time.Duration, done chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveCheckpoint(jm, runStore, jobID); err != nil {
				slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
			}
		}
	}
}

// saveCheckpoint stores the job's most recent iterate as a run record.
func saveCheckpoint(jm *JobManager, runStore *store.FSStore, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.Final == nil {
		slog.Debug("Skipping checkpoint, no iterate yet", "job_id", jobID)
		return nil
	}

	record := store.NewRunRecord(jobID, &driver.Result{
		X:           job.Final,
		Iterations:  job.Iterations,
		Converged:   job.Converged,
		FinalChange: job.Change,
		Restarts:    job.Restarts,
	}, job.Config)
	if err := runStore.SaveRecord(jobID, record); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Info("Checkpoint saved", "job_id", jobID, "iteration", job.Iterations, "change", job.Change)
	return nil
}
