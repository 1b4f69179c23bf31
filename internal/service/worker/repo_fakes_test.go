package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"fitfeed/internal/domain"

	"github.com/google/uuid"
)

// memLinkRepo is an in-memory LinkRepository that counts outcome writes
type memLinkRepo struct {
	mu        sync.Mutex
	links     map[uuid.UUID]*domain.ProductLink
	writes    map[uuid.UUID]int
	applyErr  error
	listErr   error
	listCalls int
}

func newMemLinkRepo() *memLinkRepo {
	return &memLinkRepo{
		links:  make(map[uuid.UUID]*domain.ProductLink),
		writes: make(map[uuid.UUID]int),
	}
}

func (r *memLinkRepo) Create(ctx context.Context, link *domain.ProductLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	if link.Status == "" {
		link.Status = domain.LinkStatusPending
	}
	link.CreatedAt = time.Now()
	copied := *link
	r.links[link.ID] = &copied
	return nil
}

func (r *memLinkRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ProductLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[id]
	if !ok {
		return nil, domain.ErrLinkNotFound
	}
	copied := *link
	return &copied, nil
}

func (r *memLinkRepo) ApplyOutcome(ctx context.Context, id uuid.UUID, outcome domain.ValidationOutcome) (*domain.ProductLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.applyErr != nil {
		return nil, r.applyErr
	}
	link, ok := r.links[id]
	if !ok {
		return nil, domain.ErrLinkNotFound
	}
	r.writes[id]++

	now := time.Now()
	link.Status = outcome.Status()
	link.IsValid = outcome.IsValid()
	link.Metadata = outcome.Metadata
	if outcome.IsValid() {
		link.Domain = outcome.Domain
	}
	link.UpdatedAt = &now

	copied := *link
	return &copied, nil
}

func (r *memLinkRepo) ListPending(ctx context.Context, limit int) ([]*domain.ProductLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.listErr != nil {
		return nil, r.listErr
	}
	var pending []*domain.ProductLink
	for _, link := range r.links {
		if link.Status == domain.LinkStatusPending && len(pending) < limit {
			copied := *link
			pending = append(pending, &copied)
		}
	}
	return pending, nil
}

func (r *memLinkRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int)
	for _, link := range r.links {
		counts[link.Status]++
	}
	return counts, nil
}

func (r *memLinkRepo) writeCount(id uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes[id]
}

// addLink stores a pending link for url and returns its id
func (r *memLinkRepo) addLink(url string) uuid.UUID {
	link := &domain.ProductLink{OutfitID: uuid.New(), URL: url}
	_ = r.Create(context.Background(), link)
	return link.ID
}

// memQueueRepo is an in-memory QueueRepository backed by a channel
type memQueueRepo struct {
	mu         sync.Mutex
	jobs       chan *domain.QueueJob
	completed  []string
	failed     map[string]string
	enqueueErr error
	recovered  int
	retryPolls int
}

func newMemQueueRepo() *memQueueRepo {
	return &memQueueRepo{
		jobs:   make(chan *domain.QueueJob, 1024),
		failed: make(map[string]string),
	}
}

func (q *memQueueRepo) Enqueue(ctx context.Context, jobType string, payload interface{}) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	q.jobs <- &domain.QueueJob{
		ID:      uuid.New().String(),
		Type:    jobType,
		Payload: decoded,
		Status:  domain.JobStatusPending,
	}
	return nil
}

func (q *memQueueRepo) Dequeue(ctx context.Context, jobType string) (*domain.QueueJob, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(20 * time.Millisecond):
		return nil, nil
	}
}

func (q *memQueueRepo) Complete(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, jobID)
	return nil
}

func (q *memQueueRepo) Fail(ctx context.Context, jobID string, errorMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed[jobID] = errorMsg
	return nil
}

func (q *memQueueRepo) ProcessRetryJobs(ctx context.Context, jobType string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retryPolls++
	return nil
}

func (q *memQueueRepo) RecoverProcessing(ctx context.Context, jobType string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.recovered, nil
}

func (q *memQueueRepo) GetPendingCount(ctx context.Context, jobType string) (int, error) {
	return len(q.jobs), nil
}

func (q *memQueueRepo) GetQueueStats(ctx context.Context, jobType string) (map[string]int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return map[string]int64{
		"pending":   int64(len(q.jobs)),
		"completed": int64(len(q.completed)),
		"failed":    int64(len(q.failed)),
	}, nil
}

func (q *memQueueRepo) completedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.completed)
}

func (q *memQueueRepo) failedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.failed)
}

// drain returns the payloads of every queued job
func (q *memQueueRepo) drain() []map[string]interface{} {
	var payloads []map[string]interface{}
	for {
		select {
		case job := <-q.jobs:
			payloads = append(payloads, job.Payload)
		default:
			return payloads
		}
	}
}

var errStoreDown = fmt.Errorf("store unavailable")
