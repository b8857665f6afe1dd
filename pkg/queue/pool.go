package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/agendawatch/agendawatch/pkg/config"
)

// WorkerPool manages a bounded set of queue workers.
type WorkerPool struct {
	queue    *Queue
	cfg      *config.QueueConfig
	executor Executor
	workers  []*Worker
	mu       sync.Mutex
	started  bool
}

// PoolHealth summarizes the pool state for the health surface.
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	QueueDepth    int            `json:"queue_depth"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
}

// NewWorkerPool creates a worker pool.
func NewWorkerPool(q *Queue, cfg *config.QueueConfig, executor Executor) *WorkerPool {
	return &WorkerPool{
		queue:    q,
		cfg:      cfg,
		executor: executor,
		workers:  make([]*Worker, 0, cfg.WorkerCount),
	}
}

// Start spawns the worker goroutines. Safe to call multiple times;
// subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call")
		return
	}
	p.started = true

	slog.Info("Starting worker pool", "worker_count", p.cfg.WorkerCount)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		worker := NewWorker(fmt.Sprintf("worker-%d", i), p.queue, p.cfg, p.executor)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}
}

// Stop signals all workers to stop and waits for in-flight jobs to finish.
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")
	for _, worker := range p.workers {
		worker.Stop()
	}
	slog.Info("Worker pool stopped")
}

// Health returns the current pool health.
func (p *WorkerPool) Health(ctx context.Context) *PoolHealth {
	stats, err := p.queue.Stats(ctx)
	if err != nil {
		slog.Error("Failed to query queue stats for health check", "error", err)
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		workerStats[i] = worker.Health()
		if workerStats[i].Status == WorkerStatusWorking {
			activeWorkers++
		}
	}

	return &PoolHealth{
		IsHealthy:     len(p.workers) > 0 && err == nil,
		ActiveWorkers: activeWorkers,
		TotalWorkers:  len(p.workers),
		QueueDepth:    stats[StatusPending],
		WorkerStats:   workerStats,
	}
}
