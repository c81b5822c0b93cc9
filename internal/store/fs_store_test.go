package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/sinkhorn/internal/balance"
)

// setupTestStore creates a temporary directory and returns an FSStore.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	fsStore, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}

	return fsStore, tempDir
}

// createTestRecord creates a record with plausible run data.
func createTestRecord(runID string) *Record {
	return &Record{
		RunID:      runID,
		Size:       2,
		RowScale:   []float64{2.33, 0.23},
		ColScale:   []float64{2.38, 2.68},
		Iterations: 14,
		Residual:   4.1e-4,
		Converged:  true,
		StoppedBy:  string(balance.StoppedByTolerance),
		Timestamp:  time.Now(),
		Config:     RunConfigFrom(balance.DefaultConfig()),
	}
}

func TestNewFSStore(t *testing.T) {
	tempDir := t.TempDir()

	fsStore, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	if fsStore == nil {
		t.Fatal("Expected non-nil store")
	}
	if fsStore.BaseDir() != tempDir {
		t.Errorf("BaseDir = %q, want %q", fsStore.BaseDir(), tempDir)
	}
}

func TestSaveAndLoadRecord(t *testing.T) {
	fsStore, tempDir := setupTestStore(t)

	record := createTestRecord("run-1")
	if err := fsStore.SaveRecord("run-1", record); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	// The record file must exist on disk.
	path := filepath.Join(tempDir, "runs", "run-1", "result.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Expected record file at %s: %v", path, err)
	}

	loaded, err := fsStore.LoadRecord("run-1")
	if err != nil {
		t.Fatalf("LoadRecord failed: %v", err)
	}

	if loaded.RunID != record.RunID {
		t.Errorf("RunID = %q, want %q", loaded.RunID, record.RunID)
	}
	if loaded.Size != record.Size {
		t.Errorf("Size = %d, want %d", loaded.Size, record.Size)
	}
	if loaded.Iterations != record.Iterations {
		t.Errorf("Iterations = %d, want %d", loaded.Iterations, record.Iterations)
	}
	if !loaded.Converged {
		t.Error("Expected converged record")
	}
	if len(loaded.RowScale) != 2 || loaded.RowScale[0] != record.RowScale[0] {
		t.Errorf("RowScale = %v, want %v", loaded.RowScale, record.RowScale)
	}
	if loaded.Config.MaxIterations != record.Config.MaxIterations {
		t.Errorf("Config.MaxIterations = %d, want %d", loaded.Config.MaxIterations, record.Config.MaxIterations)
	}
}

func TestSaveRecordOverwrites(t *testing.T) {
	fsStore, _ := setupTestStore(t)

	first := createTestRecord("run-1")
	if err := fsStore.SaveRecord("run-1", first); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	second := createTestRecord("run-1")
	second.Iterations = 99
	if err := fsStore.SaveRecord("run-1", second); err != nil {
		t.Fatalf("SaveRecord overwrite failed: %v", err)
	}

	loaded, err := fsStore.LoadRecord("run-1")
	if err != nil {
		t.Fatalf("LoadRecord failed: %v", err)
	}
	if loaded.Iterations != 99 {
		t.Errorf("Iterations = %d, want 99", loaded.Iterations)
	}
}

func TestSaveRecordValidation(t *testing.T) {
	fsStore, _ := setupTestStore(t)

	if err := fsStore.SaveRecord("", createTestRecord("x")); err == nil {
		t.Error("Expected error for empty runID")
	}
	if err := fsStore.SaveRecord("run-1", nil); err == nil {
		t.Error("Expected error for nil record")
	}
}

func TestLoadRecordNotFound(t *testing.T) {
	fsStore, _ := setupTestStore(t)

	_, err := fsStore.LoadRecord("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.RunID != "missing" {
		t.Errorf("Expected NotFoundError with run ID, got %v", err)
	}
}

func TestListRecords(t *testing.T) {
	fsStore, _ := setupTestStore(t)

	// Empty store lists nothing.
	infos, err := fsStore.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("Expected 0 records, got %d", len(infos))
	}

	for i := 0; i < 3; i++ {
		runID := fmt.Sprintf("run-%d", i)
		if err := fsStore.SaveRecord(runID, createTestRecord(runID)); err != nil {
			t.Fatalf("SaveRecord failed: %v", err)
		}
	}

	infos, err = fsStore.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(infos))
	}
	for _, info := range infos {
		if info.Size != 2 || info.Iterations != 14 {
			t.Errorf("Unexpected listing entry: %+v", info)
		}
	}
}

func TestDeleteRecord(t *testing.T) {
	fsStore, tempDir := setupTestStore(t)

	if err := fsStore.SaveRecord("run-1", createTestRecord("run-1")); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	if err := fsStore.DeleteRecord("run-1"); err != nil {
		t.Fatalf("DeleteRecord failed: %v", err)
	}

	// The whole run directory must be gone.
	if _, err := os.Stat(filepath.Join(tempDir, "runs", "run-1")); !os.IsNotExist(err) {
		t.Error("Expected run directory to be removed")
	}

	if err := fsStore.DeleteRecord("run-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on double delete, got %v", err)
	}
}

func TestNewRecordFromResult(t *testing.T) {
	result := &balance.Result{
		RowScale:    []float64{1, 2},
		ColScale:    []float64{3, 4},
		Iterations:  7,
		Residual:    2e-4,
		Converged:   true,
		StoppedBy:   balance.StoppedByTolerance,
		Diagnostics: []balance.Diagnostic{balance.DiagImbalance},
	}

	record := NewRecord("run-1", result, balance.DefaultConfig())

	if record.Size != 2 {
		t.Errorf("Size = %d, want 2", record.Size)
	}
	if record.StoppedBy != "tolerance" {
		t.Errorf("StoppedBy = %q, want %q", record.StoppedBy, "tolerance")
	}
	if len(record.Diagnostics) != 1 || record.Diagnostics[0] != "imbalance" {
		t.Errorf("Diagnostics = %v", record.Diagnostics)
	}
	if record.Timestamp.IsZero() {
		t.Error("Expected non-zero timestamp")
	}
}
