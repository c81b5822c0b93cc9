package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// JobConfig is the payload submitted to create a balancing job: the
// matrix itself plus optional balancer overrides. Zero-valued fields
// fall back to the balancer defaults.
type JobConfig struct {
	Matrix         [][]float64 `json:"matrix"`
	MaxIterations  int         `json:"maxIterations,omitempty"`
	Epsilon        float64     `json:"epsilon,omitempty"`
	Tolerance      float64     `json:"tolerance,omitempty"`
	CheckTolerance float64     `json:"checkTolerance,omitempty"`
}

// Job represents one balancing run tracked by the server
type Job struct {
	ID          string     `json:"id"`
	State       JobState   `json:"state"`
	Config      JobConfig  `json:"config"`
	Size        int        `json:"size"`
	RowScale    []float64  `json:"rowScale,omitempty"`
	ColScale    []float64  `json:"colScale,omitempty"`
	Iterations  int        `json:"iterations"`
	Residual    float64    `json:"residual"`
	Converged   bool       `json:"converged"`
	StoppedBy   string     `json:"stoppedBy,omitempty"`
	Diagnostics []string   `json:"diagnostics,omitempty"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	cancels     map[string]context.CancelFunc
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		cancels:     make(map[string]context.CancelFunc),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob creates a new job with the given configuration and returns
// a snapshot of it.
func (jm *JobManager) CreateJob(config JobConfig) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		Size:      len(config.Matrix),
		StartTime: time.Now(),
	}

	jm.jobs[job.ID] = job
	snapshot := *job
	return &snapshot
}

// GetJob returns a snapshot of the job with the given ID. The worker
// mutates jobs through UpdateJob under the manager lock, so callers
// always get a copy they can read or serialize without synchronization.
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// ListJobs returns snapshots of all jobs
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	return jobs
}

// RegisterCancel associates a cancellation function with a running job.
func (jm *JobManager) RegisterCancel(id string, cancel context.CancelFunc) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	jm.cancels[id] = cancel
}

// ReleaseCancel invokes and drops the job's cancellation function once
// the worker settles. Calling it after completion is a no-op for the
// worker but releases the context's resources.
func (jm *JobManager) ReleaseCancel(id string) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if cancel, ok := jm.cancels[id]; ok {
		cancel()
		delete(jm.cancels, id)
	}
}

// Cancel invokes the cancellation function registered for the job.
// It reports false when the job has no registered cancellation, which
// means it already settled or was never started through the server.
func (jm *JobManager) Cancel(id string) bool {
	jm.mu.RLock()
	cancel, ok := jm.cancels[id]
	jm.mu.RUnlock()

	if !ok {
		return false
	}
	cancel()
	return true
}

// UpdateJob applies fn to the job with the given ID under the lock.
func (jm *JobManager) UpdateJob(id string, fn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	fn(job)
	return nil
}
