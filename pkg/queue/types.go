// Package queue persists typed jobs and runs the worker pool that drains
// them. Jobs follow a claim/complete/fail protocol with lease-based
// recovery so an interrupted worker never strands work.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/agendawatch/agendawatch/pkg/models"
)

// Status is the lifecycle state of a queue entry.
type Status string

// Queue entry states. Completed and failed are terminal.
const (
	StatusPending   Status = "pending"
	StatusClaimed   Status = "claimed"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrNoJobsAvailable is returned by Claim when the queue is empty.
	ErrNoJobsAvailable = errors.New("no jobs available")

	// ErrDuplicate is returned by Enqueue when a non-terminal entry with
	// the same fingerprint already exists.
	ErrDuplicate = errors.New("duplicate queue entry")
)

// Entry is one row of the queue table.
type Entry struct {
	bun.BaseModel `bun:"table:queue,alias:q"`

	ID          string          `bun:"id,pk"`
	JobType     models.JobType  `bun:"job_type,notnull"`
	Fingerprint string          `bun:"fingerprint,notnull"`
	Payload     json.RawMessage `bun:"payload,notnull"`
	Status      Status          `bun:"status,notnull"`
	Attempts    int             `bun:"attempts,notnull"`
	LastError   *string         `bun:"last_error"`
	ClaimedAt   *time.Time      `bun:"claimed_at"`
	CreatedAt   time.Time       `bun:"created_at,notnull"`
	UpdatedAt   time.Time       `bun:"updated_at,notnull"`
}

// Executor processes one claimed entry. Implementations return a nil error
// on success; failures are routed through Fail with their retryable flag.
type Executor interface {
	Execute(ctx context.Context, entry *Entry) error
}

// retryabler is the error contract consumed when routing failures.
type retryabler interface {
	Retryable() bool
}

// IsRetryable walks the error chain for a Retryable() verdict. Unknown
// errors default to non-retryable so bugs do not loop forever.
func IsRetryable(err error) bool {
	var r retryabler
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
