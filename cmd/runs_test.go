package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/convaccel/internal/store"
)

func TestSelectRunsForDeletion_ByAge(t *testing.T) {
	now := time.Now()
	infos := []store.RunInfo{
		{RunID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{RunID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{RunID: "run3", Timestamp: now.AddDate(0, 0, -1)},
		{RunID: "run4", Timestamp: now.AddDate(0, 0, -30)},
	}

	toDelete := selectRunsForDeletion(infos, 0, 7, now)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 runs to delete, got %d", len(toDelete))
	}
	if toDelete[0].RunID != "run1" || toDelete[1].RunID != "run4" {
		t.Errorf("Expected run1 and run4 to be selected, got %s and %s", toDelete[0].RunID, toDelete[1].RunID)
	}
}

func TestSelectRunsForDeletion_ByCount(t *testing.T) {
	now := time.Now()
	infos := []store.RunInfo{
		{RunID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{RunID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{RunID: "run3", Timestamp: now.AddDate(0, 0, -1)},
		{RunID: "run4", Timestamp: now.AddDate(0, 0, -30)},
	}

	toDelete := selectRunsForDeletion(infos, 2, 0, now)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 runs to delete, got %d", len(toDelete))
	}
	// Oldest first
	if toDelete[0].RunID != "run4" || toDelete[1].RunID != "run1" {
		t.Errorf("Expected run4 and run1 to be selected, got %s and %s", toDelete[0].RunID, toDelete[1].RunID)
	}
}

func TestSelectRunsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	infos := []store.RunInfo{
		{RunID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{RunID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{RunID: "run3", Timestamp: now.AddDate(0, 0, -1)},
		{RunID: "run4", Timestamp: now.AddDate(0, 0, -30)},
	}

	// run4 and run1 are both too old and outside the newest two; each is
	// selected once.
	toDelete := selectRunsForDeletion(infos, 2, 7, now)
	if len(toDelete) != 2 {
		t.Errorf("Expected 2 runs to delete, got %d", len(toDelete))
	}

	toDelete = selectRunsForDeletion(infos, 1, 7, now)
	if len(toDelete) != 3 {
		t.Errorf("Expected 3 runs to delete, got %d", len(toDelete))
	}
}

func TestSelectRunsForDeletion_NothingSelected(t *testing.T) {
	now := time.Now()
	infos := []store.RunInfo{
		{RunID: "run1", Timestamp: now.Add(-time.Hour)},
		{RunID: "run2", Timestamp: now},
	}

	if toDelete := selectRunsForDeletion(infos, 5, 7, now); len(toDelete) != 0 {
		t.Errorf("Expected no runs to delete, got %d", len(toDelete))
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		if result := formatBytes(tt.bytes); result != tt.expected {
			t.Errorf("formatBytes(%d) = %s, expected %s", tt.bytes, result, tt.expected)
		}
	}
}

func TestGetDirSize(t *testing.T) {
	tempDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tempDir, "a.json"), make([]byte, 100), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	sub := filepath.Join(tempDir, "sub")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b.jsonl"), make([]byte, 50), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	size, err := getDirSize(tempDir)
	if err != nil {
		t.Fatalf("getDirSize failed: %v", err)
	}
	if size != 150 {
		t.Errorf("Expected 150 bytes, got %d", size)
	}

	if _, err := getDirSize(filepath.Join(tempDir, "missing")); err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestDisplayID(t *testing.T) {
	if got := displayID("short"); got != "short" {
		t.Errorf("Expected short, got %s", got)
	}
	if got := displayID("0123456789abcdef"); got != "0123456789ab..." {
		t.Errorf("Expected truncated ID, got %s", got)
	}
}
