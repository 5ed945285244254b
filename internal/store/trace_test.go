package store

import (
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cwbudde/convaccel/internal/driver"
)

func writeEntries(t *testing.T, baseDir, runID string, appendMode bool, entries []TraceEntry) {
	t.Helper()

	writer, err := NewTraceWriter(baseDir, runID, appendMode)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}
}

func TestTraceWriter_WriteAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "trace-run"

	entries := []TraceEntry{
		{Iteration: 1, Change: 1.5, Measure: 2.25, HistoryLen: 1, Timestamp: time.Now()},
		{Iteration: 2, Change: 1.125, Measure: 1.27, HistoryLen: 2, Timestamp: time.Now()},
		{Iteration: 3, Change: 0.04, Measure: 0.0016, HistoryLen: 0, Restarted: true, Timestamp: time.Now()},
	}
	writeEntries(t, tmpDir, runID, false, entries)

	if _, err := os.Stat(TracePath(tmpDir, runID)); os.IsNotExist(err) {
		t.Fatalf("Trace file not created: %s", TracePath(tmpDir, runID))
	}

	read, err := ReadTrace(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to read trace: %v", err)
	}
	if len(read) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(read))
	}
	for i := range entries {
		if read[i].Iteration != entries[i].Iteration || read[i].Change != entries[i].Change ||
			read[i].HistoryLen != entries[i].HistoryLen || read[i].Restarted != entries[i].Restarted {
			t.Errorf("Entry %d mismatch: expected %+v, got %+v", i, entries[i], read[i])
		}
	}
}

func TestTraceWriter_AppendAndTruncate(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "append-run"

	writeEntries(t, tmpDir, runID, false, []TraceEntry{{Iteration: 1}, {Iteration: 2}})
	writeEntries(t, tmpDir, runID, true, []TraceEntry{{Iteration: 3}})

	read, err := ReadTrace(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to read trace: %v", err)
	}
	if len(read) != 3 || read[2].Iteration != 3 {
		t.Errorf("Expected 3 entries ending at iteration 3, got %+v", read)
	}

	writeEntries(t, tmpDir, runID, false, []TraceEntry{{Iteration: 9}})
	read, err = ReadTrace(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to read trace: %v", err)
	}
	if len(read) != 1 || read[0].Iteration != 9 {
		t.Errorf("Expected truncated trace with iteration 9, got %+v", read)
	}
}

func TestTraceWriter_Flush(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "flush-run"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	defer writer.Close()

	writer.Write(TraceEntry{Iteration: 1, Change: 0.5})
	if err := writer.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	info, err := os.Stat(writer.Path())
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() == 0 {
		t.Error("Expected data on disk after flush")
	}
}

func TestTraceReader_ReadIteratively(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "iter-run"
	writeEntries(t, tmpDir, runID, false, []TraceEntry{{Iteration: 1}, {Iteration: 2}})

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	defer reader.Close()

	for want := 1; want <= 2; want++ {
		entry, err := reader.Read()
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if entry.Iteration != want {
			t.Errorf("Expected iteration %d, got %d", want, entry.Iteration)
		}
	}
	if _, err := reader.Read(); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

func TestTraceReader_NotFound(t *testing.T) {
	_, err := NewTraceReader(t.TempDir(), "missing")
	if _, ok := err.(*NotFoundError); !ok {
		t.Errorf("Expected NotFoundError, got %T: %v", err, err)
	}
}

func TestDeleteTrace(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "delete-trace"
	writeEntries(t, tmpDir, runID, false, []TraceEntry{{Iteration: 1}})

	if err := DeleteTrace(tmpDir, runID); err != nil {
		t.Fatalf("DeleteTrace failed: %v", err)
	}
	if _, err := os.Stat(TracePath(tmpDir, runID)); !os.IsNotExist(err) {
		t.Error("Trace file still exists")
	}
	if err := DeleteTrace(tmpDir, runID); err != nil {
		t.Errorf("Deleting a missing trace should succeed, got %v", err)
	}
}

func TestNewTraceEntry(t *testing.T) {
	step := driver.Step{Iteration: 4, Change: 0.1, Measure: 0.01, HistoryLen: 0, Restarted: true}
	entry := NewTraceEntry(step, 20)

	if entry.Iteration != 24 {
		t.Errorf("Expected iteration 24, got %d", entry.Iteration)
	}
	if entry.Change != 0.1 || entry.Measure != 0.01 || !entry.Restarted {
		t.Errorf("Unexpected entry %+v", entry)
	}
	if entry.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}

	back := Steps([]TraceEntry{entry})
	if len(back) != 1 || back[0].Iteration != 24 || !back[0].Restarted || back[0].Change != 0.1 {
		t.Errorf("Unexpected round trip %+v", back)
	}
}

func TestTraceWriter_ConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "concurrent-trace"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	const goroutines, perGoroutine = 8, 50
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				if err := writer.Write(TraceEntry{Iteration: g*perGoroutine + i}); err != nil {
					t.Errorf("Write failed: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	read, err := ReadTrace(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to read trace: %v", err)
	}
	if len(read) != goroutines*perGoroutine {
		t.Errorf("Expected %d entries, got %d", goroutines*perGoroutine, len(read))
	}
}
