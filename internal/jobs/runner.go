// Package jobs runs background IMPORT and SWEEP jobs on a bounded worker pool.
package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"repairdesk/internal/config"
	"repairdesk/internal/metrics"
	"repairdesk/internal/store"
)

// Status values for jobs.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Stage names a kind of job.
type Stage string

const (
	StageImport Stage = "IMPORT"
	StageSweep  Stage = "SWEEP"
)

// SweepSubject is the subject used for whole-ledger sweeps.
const SweepSubject = "all"

// ErrQueueFull is returned when the job channel has no room.
var ErrQueueFull = errors.New("queue full")

const (
	logRingSize   = 200
	maxLoggedJobs = 256
)

// ExecutionContext bundles dependencies for stage execution.
type ExecutionContext struct {
	Cfg   config.Config
	Store *store.Store
	JobID int64
	Logf  func(format string, args ...any)
}

// StageFunc is a stage implementation.
type StageFunc func(ctx context.Context, exec ExecutionContext, subject string, params map[string]any) error

// Registry maps stages to implementations.
type Registry map[Stage]StageFunc

// Stats exposes current queue counters.
type Stats struct {
	Length      int    `json:"length"`
	Capacity    int    `json:"capacity"`
	WorkerCount int    `json:"worker_count"`
	Processed   uint64 `json:"processed"`
	Failed      uint64 `json:"failed"`
}

// Runner executes jobs using worker pool.
type Runner struct {
	cfg       config.Config
	store     *store.Store
	reg       Registry
	metrics   *metrics.Metrics
	log       *slog.Logger
	queue     chan *store.Job
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	processed uint64
	failed    uint64
	logMu     sync.Mutex
	logBuffer map[int64][]string
	logOrder  []int64

	// enqueueMu orders the insert and the pending mark across callers.
	enqueueMu sync.Mutex
	pendingMu sync.Mutex
	pending   map[int64]struct{}
}

// NewRunner constructs a runner.
func NewRunner(cfg config.Config, st *store.Store, reg Registry, m *metrics.Metrics, log *slog.Logger) *Runner {
	return &Runner{
		cfg:       cfg,
		store:     st,
		reg:       reg,
		metrics:   m,
		log:       log,
		queue:     make(chan *store.Job, cfg.JobQueueSize),
		logBuffer: make(map[int64][]string),
		pending:   make(map[int64]struct{}),
	}
}

// Start spins worker pool.
func (r *Runner) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	for i := 0; i < r.cfg.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
}

// Stop waits for workers to finish.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Enqueue inserts a job respecting idempotency. A pending job with the same
// subject, stage and params is returned instead of a new one.
func (r *Runner) Enqueue(ctx context.Context, subject string, stage Stage, params map[string]any) (*store.Job, error) {
	if params == nil {
		params = map[string]any{}
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	r.enqueueMu.Lock()
	defer r.enqueueMu.Unlock()
	now := config.Now()
	job := &store.Job{
		Subject:        subject,
		Stage:          string(stage),
		Status:         StatusQueued,
		ParamsJSON:     string(payload),
		IdempotencyKey: idempotencyKey(subject, stage, payload),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	j, err := r.store.InsertJobIdempotent(ctx, job)
	if errors.Is(err, store.ErrConflict) {
		if r.isPending(j.ID) {
			return j, nil
		}
		// Left unfinished by an earlier process; nothing will ever pick it up.
		r.log.Warn("cancelling stale job", "job", j.ID, "subject", subject, "stage", stage)
		if err := r.store.MarkJobFinished(ctx, j.ID, StatusCancelled, now); err != nil {
			return nil, err
		}
		j, err = r.store.InsertJobIdempotent(ctx, job)
	}
	if err != nil {
		return nil, err
	}
	r.setPending(j.ID, true)
	select {
	case r.queue <- j:
		r.metrics.QueueLength.Set(float64(len(r.queue)))
		return j, nil
	default:
		r.setPending(j.ID, false)
		// Release the idempotency key so a later enqueue can retry.
		_ = r.store.MarkJobFinished(ctx, j.ID, StatusCancelled, config.Now())
		r.metrics.RecordJob(string(stage), StatusCancelled)
		r.log.Warn("job queue full, dropping job", "subject", subject, "stage", stage)
		return nil, ErrQueueFull
	}
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.queue:
			r.metrics.QueueLength.Set(float64(len(r.queue)))
			r.execute(ctx, job)
		}
	}
}

func (r *Runner) execute(ctx context.Context, job *store.Job) {
	start := time.Now()
	stage := Stage(job.Stage)
	status := r.run(ctx, job)
	atomic.AddUint64(&r.processed, 1)
	if status != StatusSucceeded {
		atomic.AddUint64(&r.failed, 1)
	}
	// Use a fresh context so the final status lands even during shutdown.
	_ = r.store.MarkJobFinished(context.Background(), job.ID, status, config.Now())
	r.setPending(job.ID, false)
	r.metrics.RecordJob(string(stage), status)
	r.log.Info("job finished", "job", job.ID, "stage", stage, "subject", job.Subject,
		"status", status, "duration_ms", time.Since(start).Milliseconds())
}

func (r *Runner) run(ctx context.Context, job *store.Job) (status string) {
	fn, ok := r.reg[Stage(job.Stage)]
	if !ok {
		r.appendLog(job.ID, "no handler for stage")
		return StatusFailed
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.appendLog(job.ID, fmt.Sprintf("panic recovered: %v", rec))
			r.log.Error("job panic recovered", "job", job.ID, "panic", rec)
			status = StatusFailed
		}
	}()

	_ = r.store.MarkJobStarted(ctx, job.ID, config.Now())
	exec := ExecutionContext{
		Cfg:   r.cfg,
		Store: r.store,
		JobID: job.ID,
		Logf:  func(format string, args ...any) { r.appendLog(job.ID, fmt.Sprintf(format, args...)) },
	}
	params := map[string]any{}
	_ = json.Unmarshal([]byte(job.ParamsJSON), &params)

	jobCtx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout())
	defer cancel()
	if err := fn(jobCtx, exec, job.Subject, params); err != nil {
		r.appendLog(job.ID, "error: "+err.Error())
		if ctx.Err() != nil {
			return StatusCancelled
		}
		return StatusFailed
	}
	return StatusSucceeded
}

func (r *Runner) appendLog(jobID int64, msg string) {
	r.logMu.Lock()
	defer r.logMu.Unlock()
	ts := config.Now()
	_ = r.store.AppendJobLog(context.Background(), jobID, msg, ts)
	if _, ok := r.logBuffer[jobID]; !ok {
		r.logOrder = append(r.logOrder, jobID)
		if len(r.logOrder) > maxLoggedJobs {
			delete(r.logBuffer, r.logOrder[0])
			r.logOrder = r.logOrder[1:]
		}
	}
	r.logBuffer[jobID] = append(r.logBuffer[jobID], fmt.Sprintf("%s %s", ts.Format(time.RFC3339), msg))
	if len(r.logBuffer[jobID]) > logRingSize {
		r.logBuffer[jobID] = r.logBuffer[jobID][len(r.logBuffer[jobID])-logRingSize:]
	}
}

func (r *Runner) isPending(id int64) bool {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	_, ok := r.pending[id]
	return ok
}

func (r *Runner) setPending(id int64, queued bool) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	if queued {
		r.pending[id] = struct{}{}
	} else {
		delete(r.pending, id)
	}
}

// Logs returns the in-memory log lines for a job. Only the most recent
// jobs are kept; older lines remain in the store.
func (r *Runner) Logs(jobID int64) []string {
	r.logMu.Lock()
	defer r.logMu.Unlock()
	return append([]string(nil), r.logBuffer[jobID]...)
}

// Stats returns current queue counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Length:      len(r.queue),
		Capacity:    cap(r.queue),
		WorkerCount: r.cfg.WorkerCount,
		Processed:   atomic.LoadUint64(&r.processed),
		Failed:      atomic.LoadUint64(&r.failed),
	}
}

func idempotencyKey(subject string, stage Stage, payload []byte) string {
	h := sha256.Sum256([]byte(subject + string(stage) + string(payload)))
	return hex.EncodeToString(h[:])
}
