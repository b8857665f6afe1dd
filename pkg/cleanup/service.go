// Package cleanup enforces queue retention: terminal entries past the
// retention window are deleted on a fixed interval.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/agendawatch/agendawatch/pkg/config"
	"github.com/agendawatch/agendawatch/pkg/queue"
)

// Service periodically garbage-collects completed and failed queue
// entries. Deletion is idempotent; running a cycle twice is harmless.
type Service struct {
	config *config.RetentionConfig
	queue  *queue.Queue

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service.
func NewService(cfg *config.RetentionConfig, q *queue.Queue) *Service {
	return &Service{
		config: cfg,
		queue:  q,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"terminal_retention", s.config.TerminalRetention,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.collectTerminal(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.collectTerminal(ctx)
		}
	}
}

func (s *Service) collectTerminal(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.config.TerminalRetention)
	count, err := s.queue.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: queue cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted terminal queue entries", "count", count)
	}
}
