package domain

import (
	"context"

	"github.com/google/uuid"
)

// LinkRepository defines the interface for product link data operations
type LinkRepository interface {
	// Create inserts a new pending product link
	Create(ctx context.Context, link *ProductLink) error

	// GetByID retrieves a product link by its UUID
	GetByID(ctx context.Context, id uuid.UUID) (*ProductLink, error)

	// ApplyOutcome writes the terminal state of one validation run in a
	// single statement: status, is_valid, metadata and (on success) domain
	ApplyOutcome(ctx context.Context, id uuid.UUID, outcome ValidationOutcome) (*ProductLink, error)

	// ListPending returns links still waiting for validation
	ListPending(ctx context.Context, limit int) ([]*ProductLink, error)

	// CountByStatus returns the number of links per status
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// QueueRepository defines the interface for job queue operations
type QueueRepository interface {
	// Enqueue adds a new job to the queue
	Enqueue(ctx context.Context, jobType string, payload interface{}) error

	// Dequeue retrieves the next job from the queue, nil when none arrived
	// before the blocking timeout
	Dequeue(ctx context.Context, jobType string) (*QueueJob, error)

	// Complete marks a job as completed
	Complete(ctx context.Context, jobID string) error

	// Fail marks a job as failed with error details
	Fail(ctx context.Context, jobID string, errorMsg string) error

	// ProcessRetryJobs moves due retries back to the main queue
	ProcessRetryJobs(ctx context.Context, jobType string) error

	// RecoverProcessing requeues jobs left in flight by a dead worker
	RecoverProcessing(ctx context.Context, jobType string) (int, error)

	// GetPendingCount returns the number of pending jobs
	GetPendingCount(ctx context.Context, jobType string) (int, error)

	// GetQueueStats returns counters and current list sizes
	GetQueueStats(ctx context.Context, jobType string) (map[string]int64, error)
}

// QueueJob represents a job in the processing queue
type QueueJob struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Payload    map[string]interface{} `json:"payload"`
	Status     string                 `json:"status"`
	RetryCount int                    `json:"retry_count"`
	CreatedAt  string                 `json:"created_at"`
	UpdatedAt  *string                `json:"updated_at"`
}

// ValidationJob is the payload of a validate_link job
type ValidationJob struct {
	LinkID string `json:"link_id"`
	URL    string `json:"url"`
}

// Job types
const (
	JobTypeValidateLink = "validate_link"
)

// Job statuses
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)
