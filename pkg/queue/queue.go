package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/agendawatch/agendawatch/pkg/config"
	"github.com/agendawatch/agendawatch/pkg/models"
)

// Queue is the persistent job queue over the embedded database.
type Queue struct {
	db  bun.IDB
	cfg *config.QueueConfig
}

// New creates a Queue.
func New(db bun.IDB, cfg *config.QueueConfig) *Queue {
	return &Queue{db: db, cfg: cfg}
}

// fingerprinter is implemented by every typed payload.
type fingerprinter interface {
	Fingerprint() string
	Validate() error
}

// Enqueue persists a typed job. When a non-terminal entry already carries
// the same fingerprint the call is a no-op and returns ErrDuplicate, which
// callers usually treat as success.
func (q *Queue) Enqueue(ctx context.Context, jobType models.JobType, payload fingerprinter) (*Entry, error) {
	if !jobType.Valid() {
		return nil, fmt.Errorf("unknown job type %q", jobType)
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	var entry *Entry
	err = q.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*Entry)(nil)).
			Where("fingerprint = ?", payload.Fingerprint()).
			Where("status IN (?, ?)", StatusPending, StatusClaimed).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("checking for duplicate: %w", err)
		}
		if exists {
			return ErrDuplicate
		}

		now := time.Now().UTC()
		entry = &Entry{
			ID:          uuid.New().String(),
			JobType:     jobType,
			Fingerprint: payload.Fingerprint(),
			Payload:     raw,
			Status:      StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if _, err := tx.NewInsert().Model(entry).Exec(ctx); err != nil {
			return fmt.Errorf("inserting queue entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Claim atomically transitions up to limit pending entries to claimed,
// oldest first (ties broken by id), stamping the lease.
func (q *Queue) Claim(ctx context.Context, limit int) ([]*Entry, error) {
	if limit < 1 {
		limit = 1
	}
	var claimed []*Entry
	err := q.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var pending []*Entry
		err := tx.NewSelect().
			Model(&pending).
			Where("status = ?", StatusPending).
			Order("created_at ASC", "id ASC").
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return fmt.Errorf("querying pending entries: %w", err)
		}
		if len(pending) == 0 {
			return ErrNoJobsAvailable
		}

		now := time.Now().UTC()
		ids := make([]string, len(pending))
		for i, e := range pending {
			ids[i] = e.ID
			e.Status = StatusClaimed
			e.ClaimedAt = &now
			e.UpdatedAt = now
		}
		_, err = tx.NewUpdate().
			Model((*Entry)(nil)).
			Set("status = ?", StatusClaimed).
			Set("claimed_at = ?", now).
			Set("updated_at = ?", now).
			Where("id IN (?)", bun.In(ids)).
			Where("status = ?", StatusPending).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("claiming entries: %w", err)
		}
		claimed = pending
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Complete marks an entry completed. Idempotent: completing a completed
// entry is a no-op.
func (q *Queue) Complete(ctx context.Context, id string) error {
	_, err := q.db.NewUpdate().
		Model((*Entry)(nil)).
		Set("status = ?", StatusCompleted).
		Set("claimed_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status IN (?, ?, ?)", StatusClaimed, StatusPending, StatusCompleted).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("completing entry %s: %w", id, err)
	}
	return nil
}

// Fail records a failure. Retryable failures below the attempt budget
// return to pending; everything else is terminal.
func (q *Queue) Fail(ctx context.Context, id string, failure error, retryable bool) error {
	msg := ""
	if failure != nil {
		msg = failure.Error()
	}
	return q.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var entry Entry
		err := tx.NewSelect().Model(&entry).Where("id = ?", id).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("queue entry %s not found", id)
		}
		if err != nil {
			return fmt.Errorf("loading entry %s: %w", id, err)
		}
		if entry.Status.Terminal() {
			return nil
		}

		attempts := entry.Attempts + 1
		next := StatusFailed
		if retryable && attempts < q.cfg.MaxAttempts {
			next = StatusPending
		}

		_, err = tx.NewUpdate().
			Model((*Entry)(nil)).
			Set("status = ?", next).
			Set("attempts = ?", attempts).
			Set("last_error = ?", msg).
			Set("claimed_at = NULL").
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failing entry %s: %w", id, err)
		}

		if next == StatusFailed {
			slog.Warn("Queue entry terminally failed",
				"entry_id", id, "job_type", entry.JobType,
				"attempts", attempts, "error", msg)
		} else {
			slog.Info("Queue entry requeued",
				"entry_id", id, "attempts", attempts, "error", msg)
		}
		return nil
	})
}

// RecoverLeases returns claimed entries whose lease expired to pending.
// Called at startup and on every conductor tick; idempotent.
func (q *Queue) RecoverLeases(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-q.cfg.Lease)
	res, err := q.db.NewUpdate().
		Model((*Entry)(nil)).
		Set("status = ?", StatusPending).
		Set("claimed_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("status = ?", StatusClaimed).
		Where("claimed_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("recovering leases: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.Warn("Recovered expired leases", "count", n, "lease", q.cfg.Lease)
	}
	return int(n), nil
}

// Stats counts entries per status.
func (q *Queue) Stats(ctx context.Context) (map[Status]int, error) {
	var counts []struct {
		Status Status `bun:"status"`
		Count  int    `bun:"count"`
	}
	err := q.db.NewSelect().
		Model((*Entry)(nil)).
		ColumnExpr("status, count(*) AS count").
		Group("status").
		Scan(ctx, &counts)
	if err != nil {
		return nil, fmt.Errorf("counting queue entries: %w", err)
	}
	stats := make(map[Status]int, len(counts))
	for _, c := range counts {
		stats[c.Status] = c.Count
	}
	return stats, nil
}

// Reset moves all entries in the given status back to pending with a fresh
// attempt budget. Used by the CLI to retry failures in bulk.
func (q *Queue) Reset(ctx context.Context, status Status) (int, error) {
	res, err := q.db.NewUpdate().
		Model((*Entry)(nil)).
		Set("status = ?", StatusPending).
		Set("attempts = 0").
		Set("last_error = NULL").
		Set("claimed_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("status = ?", status).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("resetting %s entries: %w", status, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteTerminalBefore garbage-collects terminal entries older than the
// cutoff. Returns the number deleted.
func (q *Queue) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := q.db.NewDelete().
		Model((*Entry)(nil)).
		Where("status IN (?, ?)", StatusCompleted, StatusFailed).
		Where("updated_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("deleting terminal entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
