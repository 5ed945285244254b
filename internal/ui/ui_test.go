package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestJobList_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := JobList(nil).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No jobs yet") {
		t.Errorf("Expected empty-state message, got %s", buf.String())
	}
}

func TestJobList_Rows(t *testing.T) {
	end := time.Now()
	jobs := []JobListItem{
		{ID: "0123456789abcdef", State: "completed", Problem: "affine", Method: "diis", Iterations: 23, Change: 8.2e-4, Converged: true, StartTime: end.Add(-time.Second), EndTime: &end},
		{ID: "fedcba9876543210", State: "failed", Problem: "cosine", Method: "diis", Error: "<singular>", StartTime: end},
	}

	var buf bytes.Buffer
	if err := JobList(jobs).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	html := buf.String()

	for _, want := range []string{
		"<code>01234567</code>",
		"/api/v1/jobs/0123456789abcdef/chart",
		"state-failed",
		"8.200e-04",
		"&lt;singular&gt;",
		`<td class="state-completed">completed ✓</td>`,
		`/api/v1/jobs/fedcba9876543210/trace`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("Expected page to contain %q", want)
		}
	}
	if strings.Contains(html, "<singular>") {
		t.Error("Error text was not escaped")
	}
}
