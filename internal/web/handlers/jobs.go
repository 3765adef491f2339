package handlers

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the status of an async enrollment job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// EnrollJob tracks one async batch enrollment.
type EnrollJob struct {
	ID          string        `json:"id"`
	Status      JobStatus     `json:"status"`
	TotalImages int           `json:"total_images"`
	Processed   int           `json:"processed"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Result      *EnrollResult `json:"result,omitempty"`

	mu sync.Mutex
}

// Snapshot returns a copy safe to serialize while the job mutates.
func (j *EnrollJob) Snapshot() EnrollJob {
	j.mu.Lock()
	defer j.mu.Unlock()
	return EnrollJob{
		ID:          j.ID,
		Status:      j.Status,
		TotalImages: j.TotalImages,
		Processed:   j.Processed,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Result:      j.Result,
	}
}

func (j *EnrollJob) setRunning() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = JobStatusRunning
}

func (j *EnrollJob) advance() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Processed++
}

func (j *EnrollJob) complete(result *EnrollResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.Result = result
}

func (j *EnrollJob) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err.Error()
}

// JobManager tracks async enrollment jobs by id.
type JobManager struct {
	jobs map[string]*EnrollJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*EnrollJob),
	}
}

// CreateJob registers a new pending job and returns it.
func (m *JobManager) CreateJob(totalImages int) *EnrollJob {
	job := &EnrollJob{
		ID:          uuid.NewString(),
		Status:      JobStatusPending,
		TotalImages: totalImages,
		StartedAt:   time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	return job
}

// GetJob retrieves a job by id; nil when unknown.
func (m *JobManager) GetJob(id string) *EnrollJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// DeleteJob removes a finished job.
func (m *JobManager) DeleteJob(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}
