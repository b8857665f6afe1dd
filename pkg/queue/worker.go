package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/agendawatch/agendawatch/pkg/config"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth is a snapshot of one worker's state.
type WorkerHealth struct {
	ID            string       `json:"id"`
	Status        WorkerStatus `json:"status"`
	CurrentJobID  string       `json:"current_job_id,omitempty"`
	JobsProcessed int          `json:"jobs_processed"`
	LastActivity  time.Time    `json:"last_activity"`
}

// workerPollInterval is the base delay between claim attempts when the
// queue is empty. Jitter spreads workers so they do not thunder together.
const (
	workerPollInterval = 2 * time.Second
	workerPollJitter   = 500 * time.Millisecond
)

// Worker is a single queue worker that claims and executes jobs.
type Worker struct {
	id       string
	queue    *Queue
	cfg      *config.QueueConfig
	executor Executor
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Health tracking
	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a queue worker.
func NewWorker(id string, q *Queue, cfg *config.QueueConfig, executor Executor) *Worker {
	return &Worker{
		id:           id,
		queue:        q,
		cfg:          cfg,
		executor:     executor,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for the current job to finish.
// Safe to call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health snapshot.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        w.status,
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.claimAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoJobsAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing job", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// claimAndProcess drains one claim batch and runs every entry in it
// through the executor. Entries stranded by a bookkeeping error stay
// claimed and come back through lease recovery.
func (w *Worker) claimAndProcess(ctx context.Context) error {
	entries, err := w.queue.Claim(ctx, w.cfg.ClaimBatchSize)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := w.process(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// process runs one claimed entry through the executor.
func (w *Worker) process(ctx context.Context, entry *Entry) error {
	log := slog.With("entry_id", entry.ID, "job_type", entry.JobType, "worker_id", w.id)
	log.Info("Job claimed", "attempts", entry.Attempts)

	w.setStatus(WorkerStatusWorking, entry.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	execErr := w.executor.Execute(jobCtx, entry)

	// Terminal bookkeeping uses a background context: the job context may
	// already be cancelled.
	if execErr == nil {
		if err := w.queue.Complete(context.Background(), entry.ID); err != nil {
			return err
		}
		log.Info("Job completed")
	} else {
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			execErr = fmt.Errorf("job timed out after %v: %w", w.cfg.JobTimeout, execErr)
		}
		retryable := IsRetryable(execErr) || errors.Is(jobCtx.Err(), context.DeadlineExceeded)
		if err := w.queue.Fail(context.Background(), entry.ID, execErr, retryable); err != nil {
			return err
		}
		log.Warn("Job failed", "error", execErr, "retryable", retryable)
	}

	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()
	return nil
}

// pollInterval returns the empty-queue poll delay with jitter.
// Range: [base - jitter, base + jitter].
func (w *Worker) pollInterval() time.Duration {
	offset := time.Duration(rand.Int63n(int64(2 * workerPollJitter)))
	return workerPollInterval - workerPollJitter + offset
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
