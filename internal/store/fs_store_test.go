package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/convaccel/internal/array"
)

// setupTestStore creates a temporary directory and returns an FSStore for testing.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	return store, tempDir
}

// createTestRecord creates a converged record of the default affine run.
func createTestRecord(runID string) *RunRecord {
	return &RunRecord{
		RunID:       runID,
		Final:       array.Scalar(5.9999),
		Iterations:  23,
		Converged:   true,
		FinalChange: 8.2e-4,
		Restarts:    0,
		Timestamp:   time.Now(),
		Config:      DefaultRunConfig(),
	}
}

func TestNewFSStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	if store.BaseDir() != dir {
		t.Errorf("Expected base dir %s, got %s", dir, store.BaseDir())
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Fatal("Base directory was not created")
	}
}

func TestSaveAndLoadRecord(t *testing.T) {
	store, tempDir := setupTestStore(t)

	runID := "test-run-123"
	record := createTestRecord(runID)
	if err := store.SaveRecord(runID, record); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	expectedPath := filepath.Join(tempDir, "runs", runID, "record.json")
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Fatalf("Record file was not created at %s", expectedPath)
	}
	if _, err := os.Stat(expectedPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temp file was left behind")
	}

	loaded, err := store.LoadRecord(runID)
	if err != nil {
		t.Fatalf("LoadRecord failed: %v", err)
	}
	if loaded.RunID != runID {
		t.Errorf("Expected run ID %s, got %s", runID, loaded.RunID)
	}
	if !loaded.Final.Equal(record.Final) {
		t.Errorf("Expected final %v, got %v", record.Final, loaded.Final)
	}
	if loaded.Iterations != record.Iterations || loaded.Converged != record.Converged {
		t.Errorf("Expected %d iterations converged=%v, got %d converged=%v",
			record.Iterations, record.Converged, loaded.Iterations, loaded.Converged)
	}
	if loaded.Config.Accel != record.Config.Accel {
		t.Errorf("Expected accel config %+v, got %+v", record.Config.Accel, loaded.Config.Accel)
	}
	if loaded.Config.Problem != record.Config.Problem {
		t.Errorf("Expected problem %+v, got %+v", record.Config.Problem, loaded.Config.Problem)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("Loaded record invalid: %v", err)
	}
}

func TestSaveRecord_InvalidArguments(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.SaveRecord("", createTestRecord("x")); err == nil {
		t.Error("Expected error for empty runID")
	}
	if err := store.SaveRecord("x", nil); err == nil {
		t.Error("Expected error for nil record")
	}
	if _, err := store.LoadRecord(""); err == nil {
		t.Error("Expected error for empty runID on load")
	}
	if err := store.DeleteRecord(""); err == nil {
		t.Error("Expected error for empty runID on delete")
	}
}

func TestSaveRecord_Overwrite(t *testing.T) {
	store, _ := setupTestStore(t)

	runID := "overwrite"
	first := createTestRecord(runID)
	first.Iterations = 10
	if err := store.SaveRecord(runID, first); err != nil {
		t.Fatalf("First save failed: %v", err)
	}

	second := createTestRecord(runID)
	second.Iterations = 40
	if err := store.SaveRecord(runID, second); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	loaded, err := store.LoadRecord(runID)
	if err != nil {
		t.Fatalf("LoadRecord failed: %v", err)
	}
	if loaded.Iterations != 40 {
		t.Errorf("Expected overwritten iterations 40, got %d", loaded.Iterations)
	}
}

func TestLoadRecord_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.LoadRecord("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %T: %v", err, err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.RunID != "missing" {
		t.Errorf("Expected NotFoundError for run 'missing', got %v", err)
	}
}

func TestLoadRecord_Corrupt(t *testing.T) {
	store, tempDir := setupTestStore(t)

	dir := filepath.Join(tempDir, "runs", "broken")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "record.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.LoadRecord("broken"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Expected a decode error, got %v", err)
	}
}

// writeRawRecord stores record as JSON without going through SaveRecord.
func writeRawRecord(t *testing.T, baseDir, runID string, record *RunRecord) {
	t.Helper()
	dir := filepath.Join(baseDir, "runs", runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(record)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "record.json"), data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestSaveRecord_RejectsInvalid(t *testing.T) {
	store, tempDir := setupTestStore(t)

	record := createTestRecord("bad")
	record.Final = array.Full(1, 3)
	err := store.SaveRecord("bad", record)
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "Final" {
		t.Fatalf("Expected Final validation error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "runs", "bad", "record.json")); !os.IsNotExist(err) {
		t.Error("Invalid record was written")
	}
}

func TestLoadRecord_Invalid(t *testing.T) {
	store, tempDir := setupTestStore(t)

	mismatched := createTestRecord("mismatched")
	mismatched.Final = array.Full(1, 2, 2)
	writeRawRecord(t, tempDir, "mismatched", mismatched)

	writeRawRecord(t, tempDir, "renamed", createTestRecord("other"))

	tests := []struct {
		runID string
		field string
	}{
		{"mismatched", "Final"},
		{"renamed", "RunID"},
	}
	for _, tt := range tests {
		_, err := store.LoadRecord(tt.runID)
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != tt.field {
			t.Errorf("%s: expected %s validation error, got %v", tt.runID, tt.field, err)
		}
	}

	infos, err := store.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("Expected invalid records to be skipped, got %d", len(infos))
	}
}

func TestListRecords(t *testing.T) {
	store, tempDir := setupTestStore(t)

	infos, err := store.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("Expected no records, got %d", len(infos))
	}

	for _, id := range []string{"a", "b", "c"} {
		if err := store.SaveRecord(id, createTestRecord(id)); err != nil {
			t.Fatalf("SaveRecord failed: %v", err)
		}
	}

	// A directory without a record and a stray file are ignored.
	os.MkdirAll(filepath.Join(tempDir, "runs", "empty"), 0755)
	os.WriteFile(filepath.Join(tempDir, "runs", "stray.txt"), []byte("x"), 0644)

	infos, err = store.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(infos))
	}
	for _, info := range infos {
		if info.Problem != "affine" || info.Method != "diis" {
			t.Errorf("Unexpected info %+v", info)
		}
	}
}

func TestDeleteRecord(t *testing.T) {
	store, tempDir := setupTestStore(t)

	runID := "to-delete"
	if err := store.SaveRecord(runID, createTestRecord(runID)); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}
	tw, err := NewTraceWriter(tempDir, runID, false)
	if err != nil {
		t.Fatalf("NewTraceWriter failed: %v", err)
	}
	tw.Close()

	if err := store.DeleteRecord(runID); err != nil {
		t.Fatalf("DeleteRecord failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "runs", runID)); !os.IsNotExist(err) {
		t.Error("Run directory still exists after delete")
	}
	if _, err := store.LoadRecord(runID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteRecord(runID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestConcurrentSave(t *testing.T) {
	store, _ := setupTestStore(t)

	const numRuns = 10
	done := make(chan bool, numRuns)

	for i := 0; i < numRuns; i++ {
		go func(idx int) {
			runID := fmt.Sprintf("concurrent-run-%d", idx)
			if err := store.SaveRecord(runID, createTestRecord(runID)); err != nil {
				t.Errorf("Concurrent save failed for run %s: %v", runID, err)
			}
			done <- true
		}(i)
	}
	for i := 0; i < numRuns; i++ {
		<-done
	}

	infos, err := store.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(infos) != numRuns {
		t.Errorf("Expected %d records, got %d", numRuns, len(infos))
	}
}
