// Package ui renders the HTML pages of the job server.
package ui

import "time"

//go:generate templ generate

// JobListItem is one row of the job list page.
type JobListItem struct {
	ID         string
	State      string
	Problem    string
	Method     string
	Iterations int
	Change     float64
	Restarts   int
	Converged  bool
	StartTime  time.Time
	EndTime    *time.Time
	Error      string
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func duration(job JobListItem) string {
	end := time.Now()
	if job.EndTime != nil {
		end = *job.EndTime
	}
	return end.Sub(job.StartTime).Round(time.Millisecond).String()
}
