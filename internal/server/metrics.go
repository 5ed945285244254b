package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convaccel_steps_total",
		Help: "Accepted iteration steps across all jobs",
	}, []string{"method"})

	restartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convaccel_diis_restarts_total",
		Help: "DIIS history resets triggered by the drift safeguard",
	})

	solveFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convaccel_solve_failures_total",
		Help: "Jobs that failed because the DIIS subspace system could not be solved",
	})

	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convaccel_jobs_total",
		Help: "Finished jobs by final state",
	}, []string{"state"})

	jobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "convaccel_jobs_running",
		Help: "Jobs currently iterating",
	})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "convaccel_step_duration_seconds",
		Help:    "Wall time of one accelerator step including the problem update",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
	}, []string{"method"})
)
