package report

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/convaccel/internal/driver"
)

func sampleSteps() []driver.Step {
	return []driver.Step{
		{Iteration: 1, Change: 1.5, Measure: 2.25, HistoryLen: 1},
		{Iteration: 2, Change: 0.5, Measure: 0.25, HistoryLen: 2},
		{Iteration: 3, Change: 0.1, Measure: 0, HistoryLen: 0, Restarted: true},
		{Iteration: 4, Change: 0, Measure: 1e-6, HistoryLen: 1},
	}
}

func TestClampLog(t *testing.T) {
	got := clampLog([]float64{1, 0, 0.01, -2})
	want := []float64{1, 0.001, 0.01, 0.001}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-18 {
			t.Errorf("element %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	allZero := clampLog([]float64{0, 0})
	if allZero[0] != 1e-16 || allZero[1] != 1e-16 {
		t.Errorf("Expected 1e-16 floor for all-zero series, got %v", allZero)
	}
}

func TestPlotTrace(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"trace.png", "trace.svg"} {
		path := filepath.Join(dir, name)
		if err := PlotTrace("affine", sampleSteps(), path); err != nil {
			t.Fatalf("PlotTrace(%s) failed: %v", name, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat failed: %v", err)
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", name)
		}
	}
}

func TestPlotTrace_Empty(t *testing.T) {
	err := PlotTrace("empty", nil, filepath.Join(t.TempDir(), "x.png"))
	if !errors.Is(err, ErrEmptyTrace) {
		t.Errorf("Expected ErrEmptyTrace, got %v", err)
	}
}

func TestRenderChart(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderChart(&buf, "cosine run", sampleSteps()); err != nil {
		t.Fatalf("RenderChart failed: %v", err)
	}

	html := buf.String()
	for _, want := range []string{"<html", "cosine run", "max change", "drift measure", "triangle"} {
		if !strings.Contains(html, want) {
			t.Errorf("Expected chart HTML to contain %q", want)
		}
	}
}

func TestRenderChart_Empty(t *testing.T) {
	if err := RenderChart(&bytes.Buffer{}, "empty", nil); !errors.Is(err, ErrEmptyTrace) {
		t.Errorf("Expected ErrEmptyTrace, got %v", err)
	}
}
