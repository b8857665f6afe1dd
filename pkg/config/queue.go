package config

import "time"

// QueueConfig controls how jobs are claimed, leased, and retried.
type QueueConfig struct {
	// WorkerCount is the number of processor goroutines.
	WorkerCount int `env:"WORKER_COUNT" envDefault:"4"`

	// ClaimBatchSize is how many pending jobs a dispatch drains at once.
	ClaimBatchSize int `env:"CLAIM_BATCH_SIZE" envDefault:"4"`

	// Lease is how long a claimed job belongs to a worker before lease
	// recovery returns it to pending.
	Lease time.Duration `env:"LEASE_SECONDS" envDefault:"900s"`

	// MaxAttempts is the retry budget for retryable failures. A job that
	// fails retryably with attempts >= MaxAttempts is terminally failed.
	MaxAttempts int `env:"MAX_ATTEMPTS" envDefault:"3"`

	// JobTimeout bounds a single job execution.
	JobTimeout time.Duration `env:"JOB_TIMEOUT" envDefault:"10m"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:    4,
		ClaimBatchSize: 4,
		Lease:          15 * time.Minute,
		MaxAttempts:    3,
		JobTimeout:     10 * time.Minute,
	}
}

// ConductorConfig controls the poll cycle.
type ConductorConfig struct {
	// PollInterval is the conductor tick: each tick polls every active
	// city, enqueues new work, recovers leases, and dispatches workers.
	PollInterval time.Duration `env:"POLL_INTERVAL_SECONDS" envDefault:"300s"`
}

// DefaultConductorConfig returns the built-in conductor defaults.
func DefaultConductorConfig() *ConductorConfig {
	return &ConductorConfig{
		PollInterval: 5 * time.Minute,
	}
}

// RetentionConfig controls queue garbage collection.
type RetentionConfig struct {
	// TerminalRetention is how long completed/failed queue entries are
	// kept before deletion.
	TerminalRetention time.Duration `env:"QUEUE_RETENTION" envDefault:"168h"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		TerminalRetention: 7 * 24 * time.Hour,
		CleanupInterval:   1 * time.Hour,
	}
}
