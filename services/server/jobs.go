package server

import (
	"sync"
	"time"

	pb "breakout-backtest/proto"
	"breakout-backtest/services/backtest"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

func (s JobStatus) Terminal() bool { return s == JobCompleted || s == JobFailed }

// Job is one asynchronous backtest. Its state changes only through set, which
// wakes every watcher.
type Job struct {
	ID        string
	Request   *pb.BacktestRequest
	CreatedAt time.Time

	mu        sync.RWMutex
	status    JobStatus
	err       string
	result    *Result
	artifacts map[string]string
	finished  time.Time
	changed   chan struct{}
}

// JobView is the JSON shape of a job.
type JobView struct {
	ID         string               `json:"job_id"`
	Status     JobStatus            `json:"status"`
	Error      string               `json:"error,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
	Artifacts  map[string]string    `json:"artifacts,omitempty"`
	Result     *pb.BacktestResponse `json:"result,omitempty"`
}

func newJob(id string, req *pb.BacktestRequest, now time.Time) *Job {
	return &Job{ID: id, Request: req, CreatedAt: now, status: JobQueued, changed: make(chan struct{})}
}

func (j *Job) set(status JobStatus, apply func(*Job)) {
	j.mu.Lock()
	j.status = status
	if apply != nil {
		apply(j)
	}
	if status.Terminal() {
		j.finished = time.Now()
	}
	close(j.changed)
	j.changed = make(chan struct{})
	j.mu.Unlock()
}

func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Report returns the finished report, or nil before completion.
func (j *Job) Report() *backtest.Report {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.result == nil {
		return nil
	}
	return j.result.Report
}

func (j *Job) View() JobView {
	v, _ := j.Watch()
	return v
}

// Watch returns the current view and a channel closed on the next change.
func (j *Job) Watch() (JobView, <-chan struct{}) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	v := JobView{
		ID:        j.ID,
		Status:    j.status,
		Error:     j.err,
		CreatedAt: j.CreatedAt,
		Artifacts: j.artifacts,
	}
	if !j.finished.IsZero() {
		f := j.finished
		v.FinishedAt = &f
	}
	if j.result != nil {
		v.Result = j.result.Response()
	}
	return v, j.changed
}

type jobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	ttl  time.Duration
}

func newJobRegistry(ttl time.Duration) *jobRegistry {
	return &jobRegistry{jobs: make(map[string]*Job), ttl: ttl}
}

func (r *jobRegistry) add(j *Job) {
	r.mu.Lock()
	r.jobs[j.ID] = j
	r.mu.Unlock()
}

func (r *jobRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

func (r *jobRegistry) get(id string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	return j, ok
}

// expire drops finished jobs older than the TTL and returns how many went.
func (r *jobRegistry) expire(now time.Time) int {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, j := range r.jobs {
		j.mu.RLock()
		stale := j.status.Terminal() && now.Sub(j.finished) > r.ttl
		j.mu.RUnlock()
		if stale {
			delete(r.jobs, id)
			n++
		}
	}
	return n
}
