package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"fitfeed/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis key patterns, each suffixed with the job type (or job id)
const (
	queueKeyPrefix   = "fitfeed:queue:"
	jobKeyPrefix     = "fitfeed:job:"
	processingPrefix = "fitfeed:processing:"
	retryKeyPrefix   = "fitfeed:retry:"
	deadLetterPrefix = "fitfeed:dead:"
	statsKeyPrefix   = "fitfeed:stats:"
)

// Retry policy for jobs that fail on infrastructure errors
const (
	defaultMaxRetries = 5
	initialBackoff    = time.Second
	maxBackoff        = 5 * time.Minute
	jobTTL            = 24 * time.Hour
	completedJobTTL   = 6 * time.Hour
)

// QueueOptions tunes the queue
type QueueOptions struct {
	// BlockTimeout is how long Dequeue waits for a job before returning nil
	BlockTimeout time.Duration
	// MaxRetries before a job lands in the dead-letter list
	MaxRetries int
}

// QueueRepository implements domain.QueueRepository on Redis lists.
// Dequeue moves a job id atomically into a processing list, so jobs held by
// a crashed worker survive until RecoverProcessing puts them back.
type QueueRepository struct {
	client       *redis.Client
	logger       *slog.Logger
	blockTimeout time.Duration
	maxRetries   int
}

// NewQueueRepository creates a new Redis queue repository
func NewQueueRepository(client *redis.Client, logger *slog.Logger, opts QueueOptions) *QueueRepository {
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = 5 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	return &QueueRepository{
		client:       client,
		logger:       logger,
		blockTimeout: opts.BlockTimeout,
		maxRetries:   opts.MaxRetries,
	}
}

// storedJob is the JSON document kept in the job hash
type storedJob struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Payload    map[string]interface{} `json:"payload"`
	Status     string                 `json:"status"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  *time.Time             `json:"updated_at,omitempty"`
	RetryCount int                    `json:"retry_count"`
	MaxRetries int                    `json:"max_retries"`
	NextRetry  *time.Time             `json:"next_retry,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

func (j *storedJob) toDomain() *domain.QueueJob {
	job := &domain.QueueJob{
		ID:         j.ID,
		Type:       j.Type,
		Payload:    j.Payload,
		Status:     j.Status,
		RetryCount: j.RetryCount,
		CreatedAt:  j.CreatedAt.Format(time.RFC3339),
	}
	if j.UpdatedAt != nil {
		updatedAt := j.UpdatedAt.Format(time.RFC3339)
		job.UpdatedAt = &updatedAt
	}
	return job
}

func (r *QueueRepository) loadJob(ctx context.Context, jobID string) (*storedJob, error) {
	data, err := r.client.HGet(ctx, jobKeyPrefix+jobID, "data").Result()
	if err != nil {
		return nil, err
	}
	var job storedJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	return &job, nil
}

// saveJob queues the hash update for job onto pipe
func saveJob(ctx context.Context, pipe redis.Pipeliner, job *storedJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	fields := map[string]interface{}{
		"data":        string(data),
		"status":      job.Status,
		"type":        job.Type,
		"retry_count": job.RetryCount,
	}
	if job.UpdatedAt != nil {
		fields["updated_at"] = job.UpdatedAt.Unix()
	}
	pipe.HSet(ctx, jobKeyPrefix+job.ID, fields)
	return nil
}

// Enqueue adds a new job to the queue
func (r *QueueRepository) Enqueue(ctx context.Context, jobType string, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var payloadMap map[string]interface{}
	if err := json.Unmarshal(payloadBytes, &payloadMap); err != nil {
		return fmt.Errorf("payload must encode as a JSON object: %w", err)
	}

	job := &storedJob{
		ID:         uuid.New().String(),
		Type:       jobType,
		Payload:    payloadMap,
		Status:     domain.JobStatusPending,
		CreatedAt:  time.Now(),
		MaxRetries: r.maxRetries,
	}

	pipe := r.client.TxPipeline()
	if err := saveJob(ctx, pipe, job); err != nil {
		return err
	}
	pipe.Expire(ctx, jobKeyPrefix+job.ID, jobTTL)
	pipe.LPush(ctx, queueKeyPrefix+jobType, job.ID)

	statsKey := statsKeyPrefix + jobType
	pipe.HIncrBy(ctx, statsKey, "total_enqueued", 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	r.logger.Debug("Job enqueued",
		"job_id", job.ID,
		"job_type", jobType,
		"payload_size", len(payloadBytes),
	)

	return nil
}

// Dequeue blocks up to the configured timeout for the next job
func (r *QueueRepository) Dequeue(ctx context.Context, jobType string) (*domain.QueueJob, error) {
	processingKey := processingPrefix + jobType

	jobID, err := r.client.BLMove(ctx, queueKeyPrefix+jobType, processingKey, "RIGHT", "LEFT", r.blockTimeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	job, err := r.loadJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Hash expired under the id; nothing left to run
			r.logger.Warn("Job data not found, removing from processing", "job_id", jobID)
			r.client.LRem(ctx, processingKey, 1, jobID)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job data: %w", err)
	}

	now := time.Now()
	job.Status = domain.JobStatusProcessing
	job.UpdatedAt = &now

	pipe := r.client.TxPipeline()
	if err := saveJob(ctx, pipe, job); err != nil {
		return nil, err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to update job status", "error", err, "job_id", jobID)
	}

	r.logger.Debug("Job dequeued",
		"job_id", job.ID,
		"job_type", jobType,
		"retry_count", job.RetryCount,
	)

	return job.toDomain(), nil
}

// Complete marks a job as completed and removes it from processing
func (r *QueueRepository) Complete(ctx context.Context, jobID string) error {
	job, err := r.loadJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job for completion: %w", err)
	}

	now := time.Now()
	job.Status = domain.JobStatusCompleted
	job.UpdatedAt = &now

	pipe := r.client.TxPipeline()
	if err := saveJob(ctx, pipe, job); err != nil {
		return err
	}
	pipe.LRem(ctx, processingPrefix+job.Type, 1, jobID)
	pipe.HIncrBy(ctx, statsKeyPrefix+job.Type, "completed", 1)
	pipe.Expire(ctx, jobKeyPrefix+jobID, completedJobTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	r.logger.Debug("Job completed", "job_id", jobID, "job_type", job.Type)
	return nil
}

// Fail records the error and schedules a retry with exponential backoff, or
// moves the job to the dead-letter list once retries are exhausted
func (r *QueueRepository) Fail(ctx context.Context, jobID string, errorMsg string) error {
	job, err := r.loadJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job for failure: %w", err)
	}

	now := time.Now()
	job.Error = errorMsg
	job.UpdatedAt = &now
	job.RetryCount++

	pipe := r.client.TxPipeline()
	statsKey := statsKeyPrefix + job.Type

	if job.RetryCount <= job.MaxRetries {
		nextRetry := now.Add(retryBackoff(job.RetryCount))
		job.NextRetry = &nextRetry
		job.Status = domain.JobStatusPending

		pipe.ZAdd(ctx, retryKeyPrefix+job.Type, redis.Z{
			Score:  float64(nextRetry.Unix()),
			Member: jobID,
		})
		pipe.HIncrBy(ctx, statsKey, "retried", 1)

		r.logger.Info("Job scheduled for retry",
			"job_id", jobID,
			"job_type", job.Type,
			"retry_count", job.RetryCount,
			"next_retry", nextRetry,
			"error", errorMsg,
		)
	} else {
		job.Status = domain.JobStatusFailed
		pipe.LPush(ctx, deadLetterPrefix+job.Type, jobID)
		pipe.HIncrBy(ctx, statsKey, "failed", 1)

		r.logger.Error("Job failed permanently",
			"job_id", jobID,
			"job_type", job.Type,
			"retry_count", job.RetryCount,
			"error", errorMsg,
		)
	}

	if err := saveJob(ctx, pipe, job); err != nil {
		return err
	}
	pipe.HSet(ctx, jobKeyPrefix+jobID, "error", errorMsg)
	pipe.LRem(ctx, processingPrefix+job.Type, 1, jobID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to handle job failure: %w", err)
	}

	return nil
}

// retryBackoff doubles from initialBackoff per attempt, capped at maxBackoff
func retryBackoff(attempt int) time.Duration {
	backoff := float64(initialBackoff) * math.Pow(2, float64(attempt-1))
	return time.Duration(math.Min(backoff, float64(maxBackoff)))
}

// ProcessRetryJobs moves jobs from the retry set back to the main queue when
// their backoff has elapsed
func (r *QueueRepository) ProcessRetryJobs(ctx context.Context, jobType string) error {
	retryKey := retryKeyPrefix + jobType

	due, err := r.client.ZRangeByScore(ctx, retryKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to get retry jobs: %w", err)
	}

	moved := 0
	for _, jobID := range due {
		// ZREM decides the winner when several workers pump at once
		removed, err := r.client.ZRem(ctx, retryKey, jobID).Result()
		if err != nil {
			return fmt.Errorf("failed to claim retry job: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := r.client.LPush(ctx, queueKeyPrefix+jobType, jobID).Err(); err != nil {
			return fmt.Errorf("failed to requeue retry job: %w", err)
		}
		moved++
	}

	if moved > 0 {
		r.logger.Info("Processed retry jobs",
			"job_type", jobType,
			"count", moved,
		)
	}

	return nil
}

// RecoverProcessing pushes every job id left in the processing list back
// onto the queue. Call it before starting workers for the job type.
func (r *QueueRepository) RecoverProcessing(ctx context.Context, jobType string) (int, error) {
	processingKey := processingPrefix + jobType
	queueKey := queueKeyPrefix + jobType

	recovered := 0
	for {
		jobID, err := r.client.LMove(ctx, processingKey, queueKey, "LEFT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return recovered, fmt.Errorf("failed to recover job: %w", err)
		}
		r.logger.Debug("Recovered in-flight job", "job_id", jobID, "job_type", jobType)
		recovered++
	}

	return recovered, nil
}

// GetPendingCount returns the number of pending jobs for a job type
func (r *QueueRepository) GetPendingCount(ctx context.Context, jobType string) (int, error) {
	count, err := r.client.LLen(ctx, queueKeyPrefix+jobType).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get pending count: %w", err)
	}
	return int(count), nil
}

// GetQueueStats returns counters for a job type plus the current list sizes
func (r *QueueRepository) GetQueueStats(ctx context.Context, jobType string) (map[string]int64, error) {
	stats, err := r.client.HGetAll(ctx, statsKeyPrefix+jobType).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}

	result := make(map[string]int64)
	for key, value := range stats {
		if val, err := strconv.ParseInt(value, 10, 64); err == nil {
			result[key] = val
		}
	}

	pipe := r.client.Pipeline()
	pending := pipe.LLen(ctx, queueKeyPrefix+jobType)
	processing := pipe.LLen(ctx, processingPrefix+jobType)
	retrying := pipe.ZCard(ctx, retryKeyPrefix+jobType)
	dead := pipe.LLen(ctx, deadLetterPrefix+jobType)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to get queue lengths: %w", err)
	}

	result["current_pending"] = pending.Val()
	result["current_processing"] = processing.Val()
	result["current_retrying"] = retrying.Val()
	result["current_dead"] = dead.Val()

	return result, nil
}
