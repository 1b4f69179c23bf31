package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fitfeed/internal/config"
	"fitfeed/internal/domain"
	"fitfeed/internal/metrics"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// WorkerService processes background jobs
type WorkerService struct {
	config *config.Config
	logger *slog.Logger

	// Repositories
	linkRepo  domain.LinkRepository
	queueRepo domain.QueueRepository

	// Job processor
	processor *JobProcessor
	sweeper   *Sweeper

	// limiter caps validation starts across all workers
	limiter    *rate.Limiter
	cron       *cron.Cron
	jobTimeout time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	// WorkerStats tracks worker performance metrics
	stats *WorkerStats
}

// WorkerStats tracks worker performance metrics
type WorkerStats struct {
	JobsProcessed atomic.Int64
	JobsSucceeded atomic.Int64
	JobsFailed    atomic.Int64
	LastJobUnix   atomic.Int64
}

// New creates a new worker service
func New(
	config *config.Config,
	logger *slog.Logger,
	linkRepo domain.LinkRepository,
	queueRepo domain.QueueRepository,
) (*WorkerService, error) {
	if config.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("worker concurrency must be at least 1")
	}

	blacklist := NewBlacklist(config.Blacklist)
	fetcher := NewFetcher(FetcherConfig{
		Timeout:      config.FetchTimeout,
		MaxRedirects: config.FetchMaxRedirects,
		MaxBodyBytes: config.FetchMaxBodyBytes,
		Blacklist:    blacklist,
	}, logger)

	processor := NewJobProcessor(
		logger,
		linkRepo,
		blacklist,
		fetcher,
		NewExtractor(logger),
		config.ProbeFirst,
	)

	burst := int(config.ValidationRatePerSec)
	if burst < 1 {
		burst = 1
	}

	return &WorkerService{
		config:     config,
		logger:     logger,
		linkRepo:   linkRepo,
		queueRepo:  queueRepo,
		processor:  processor,
		sweeper:    NewSweeper(logger, linkRepo, queueRepo, config.SweepBatchSize),
		limiter:    rate.NewLimiter(rate.Limit(config.ValidationRatePerSec), burst),
		jobTimeout: 2*config.FetchTimeout + outcomeWriteTimeout + 5*time.Second,
		stats:      &WorkerStats{},
	}, nil
}

// Start runs the worker pool, the retry pump and the sweep schedule until
// Stop is called or ctx ends
func (w *WorkerService) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker service already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.cron = cron.New()
	w.running = true
	w.mu.Unlock()

	defer func() {
		cancel()
		close(w.done)
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	w.logger.Info("Starting worker service...",
		"concurrency", w.config.WorkerConcurrency,
		"rate_per_sec", w.config.ValidationRatePerSec,
		"probe_first", w.config.ProbeFirst,
	)

	// Jobs claimed by a previous process that died mid-run
	if recovered, err := w.queueRepo.RecoverProcessing(ctx, domain.JobTypeValidateLink); err != nil {
		w.logger.Warn("Failed to recover in-flight jobs", "error", err)
	} else if recovered > 0 {
		w.logger.Info("Recovered in-flight jobs", "count", recovered)
	}

	if w.config.SweepSchedule != "" {
		if _, err := w.cron.AddFunc(w.config.SweepSchedule, func() { w.runSweep(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule sweep: %w", err)
		}
		w.cron.Start()
		defer func() { <-w.cron.Stop().Done() }()
		w.logger.Info("Pending link sweep scheduled", "schedule", w.config.SweepSchedule)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.config.WorkerConcurrency; i++ {
		workerID := i
		g.Go(func() error {
			w.processJobs(gctx, workerID)
			return nil
		})
	}
	g.Go(func() error {
		w.pumpRetries(gctx)
		return nil
	})

	w.logger.Info("Worker service is running")
	err := g.Wait()
	w.logger.Info("Worker service stopped")
	return err
}

// Stop gracefully shuts down the worker service, letting in-flight jobs
// finish their single record write
func (w *WorkerService) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	w.logger.Info("Stopping worker service...")
	cancel()
	<-done
	return nil
}

// processJobs is the loop of one worker slot
func (w *WorkerService) processJobs(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)

	for ctx.Err() == nil {
		job, err := w.queueRepo.Dequeue(ctx, domain.JobTypeValidateLink)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("Failed to dequeue job", "error", err)
			sleepCtx(ctx, time.Second)
			continue
		}

		if job == nil {
			continue // No jobs before the blocking timeout
		}

		// The job stays in the processing list if we are stopped here
		if err := w.limiter.Wait(ctx); err != nil {
			break
		}

		w.processJob(ctx, job, logger)
	}

	logger.Debug("Job processing stopped")
}

// processJob processes a single job
func (w *WorkerService) processJob(ctx context.Context, job *domain.QueueJob, logger *slog.Logger) {
	startTime := time.Now()
	jobLogger := logger.With(
		"job_id", job.ID,
		"job_type", job.Type,
		"retry_count", job.RetryCount,
	)

	// In-flight jobs finish even when shutdown starts
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.jobTimeout)
	defer cancel()

	var processingErr error
	switch job.Type {
	case domain.JobTypeValidateLink:
		processingErr = w.processor.ProcessLinkValidation(jobCtx, job.Payload, jobLogger)
	default:
		processingErr = fmt.Errorf("unknown job type: %s", job.Type)
	}

	if processingErr != nil {
		jobLogger.Error("Job processing failed", "error", processingErr)

		if err := w.queueRepo.Fail(jobCtx, job.ID, processingErr.Error()); err != nil {
			jobLogger.Error("Failed to mark job as failed", "error", err)
		}

		w.stats.JobsFailed.Add(1)
		metrics.JobsTotal.WithLabelValues(job.Type, "failed").Inc()
	} else {
		if err := w.queueRepo.Complete(jobCtx, job.ID); err != nil {
			jobLogger.Error("Failed to mark job as completed", "error", err)
		}

		w.stats.JobsSucceeded.Add(1)
		metrics.JobsTotal.WithLabelValues(job.Type, "completed").Inc()
	}

	w.stats.JobsProcessed.Add(1)
	w.stats.LastJobUnix.Store(time.Now().Unix())

	jobLogger.Debug("Job processing completed",
		"duration", time.Since(startTime),
		"success", processingErr == nil,
	)
}

// pumpRetries moves due retries back onto the main queue
func (w *WorkerService) pumpRetries(ctx context.Context) {
	ticker := time.NewTicker(w.config.RetryPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queueRepo.ProcessRetryJobs(ctx, domain.JobTypeValidateLink); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("Failed to process retry jobs", "error", err)
			}
		}
	}
}

func (w *WorkerService) runSweep(ctx context.Context) {
	if _, err := w.sweeper.Sweep(ctx); err != nil {
		w.logger.Error("Scheduled sweep failed", "error", err)
	}
}

// GetStats returns current worker statistics
func (w *WorkerService) GetStats() *WorkerStats {
	return w.stats
}

// HealthCheck performs a health check on the worker service
func (w *WorkerService) HealthCheck(ctx context.Context) error {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if !running {
		return fmt.Errorf("worker service not running")
	}

	if _, err := w.queueRepo.GetPendingCount(ctx, domain.JobTypeValidateLink); err != nil {
		return fmt.Errorf("queue connectivity check failed: %w", err)
	}

	if _, err := w.linkRepo.CountByStatus(ctx); err != nil {
		return fmt.Errorf("database connectivity check failed: %w", err)
	}

	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
