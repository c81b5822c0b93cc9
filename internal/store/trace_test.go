package store

import (
	"errors"
	"io"
	"testing"
	"time"
)

func TestTraceWriteAndRead(t *testing.T) {
	tempDir := t.TempDir()

	tw, err := NewTraceWriter(tempDir, "run-1", false)
	if err != nil {
		t.Fatalf("NewTraceWriter failed: %v", err)
	}

	residuals := []float64{0.8, 0.12, 0.004, 0.0007}
	for i, res := range residuals {
		entry := TraceEntry{Iteration: i + 1, Residual: res, Timestamp: time.Now()}
		if err := tw.Write(entry); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	tr, err := NewTraceReader(tempDir, "run-1")
	if err != nil {
		t.Fatalf("NewTraceReader failed: %v", err)
	}
	defer tr.Close()

	entries, err := tr.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(entries) != len(residuals) {
		t.Fatalf("Expected %d entries, got %d", len(residuals), len(entries))
	}
	for i, entry := range entries {
		if entry.Iteration != i+1 {
			t.Errorf("entry %d: iteration = %d, want %d", i, entry.Iteration, i+1)
		}
		if entry.Residual != residuals[i] {
			t.Errorf("entry %d: residual = %g, want %g", i, entry.Residual, residuals[i])
		}
	}

	// A drained reader returns io.EOF.
	if _, err := tr.Read(); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

func TestTraceAppendMode(t *testing.T) {
	tempDir := t.TempDir()

	tw, err := NewTraceWriter(tempDir, "run-1", false)
	if err != nil {
		t.Fatalf("NewTraceWriter failed: %v", err)
	}
	if err := tw.Write(TraceEntry{Iteration: 1, Residual: 0.5, Timestamp: time.Now()}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	tw, err = NewTraceWriter(tempDir, "run-1", true)
	if err != nil {
		t.Fatalf("NewTraceWriter append failed: %v", err)
	}
	if err := tw.Write(TraceEntry{Iteration: 2, Residual: 0.1, Timestamp: time.Now()}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	tr, err := NewTraceReader(tempDir, "run-1")
	if err != nil {
		t.Fatalf("NewTraceReader failed: %v", err)
	}
	defer tr.Close()

	entries, err := tr.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries after append, got %d", len(entries))
	}
	if entries[1].Iteration != 2 {
		t.Errorf("Second entry iteration = %d, want 2", entries[1].Iteration)
	}
}

func TestTraceReaderNotFound(t *testing.T) {
	_, err := NewTraceReader(t.TempDir(), "missing")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("Expected NotFoundError, got %v", err)
	}
	if nf != nil && nf.RunID != "missing" {
		t.Errorf("RunID = %q, want %q", nf.RunID, "missing")
	}
}
