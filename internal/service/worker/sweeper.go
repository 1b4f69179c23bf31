package worker

import (
	"context"
	"fmt"
	"log/slog"

	"fitfeed/internal/domain"
	"fitfeed/internal/metrics"
)

// EnqueueValidation queues one validation job for a link. Duplicate jobs for
// the same link are harmless: each run re-derives and overwrites the state.
func EnqueueValidation(ctx context.Context, queueRepo domain.QueueRepository, link *domain.ProductLink) error {
	job := domain.ValidationJob{
		LinkID: link.ID.String(),
		URL:    link.URL,
	}
	if err := queueRepo.Enqueue(ctx, domain.JobTypeValidateLink, job); err != nil {
		return fmt.Errorf("failed to enqueue validation for link %s: %w", link.ID, err)
	}
	metrics.JobsEnqueued.WithLabelValues(domain.JobTypeValidateLink).Inc()
	return nil
}

// Sweeper re-enqueues links that are still pending
type Sweeper struct {
	logger    *slog.Logger
	linkRepo  domain.LinkRepository
	queueRepo domain.QueueRepository
	batchSize int
}

// NewSweeper creates a sweeper enqueuing at most batchSize links per run
func NewSweeper(logger *slog.Logger, linkRepo domain.LinkRepository, queueRepo domain.QueueRepository, batchSize int) *Sweeper {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Sweeper{
		logger:    logger,
		linkRepo:  linkRepo,
		queueRepo: queueRepo,
		batchSize: batchSize,
	}
}

// Sweep enqueues one job per pending link and returns how many were queued.
// Overlapping sweeps only produce duplicate jobs, which are safe.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	links, err := s.linkRepo.ListPending(ctx, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending links: %w", err)
	}

	queued := 0
	for _, link := range links {
		if err := EnqueueValidation(ctx, s.queueRepo, link); err != nil {
			metrics.SweepLinksQueued.Add(float64(queued))
			return queued, err
		}
		queued++
	}

	metrics.SweepLinksQueued.Add(float64(queued))
	s.logger.Info("Queued pending links for validation", "count", queued)
	return queued, nil
}
