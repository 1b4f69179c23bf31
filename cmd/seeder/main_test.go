package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"fitfeed/internal/config"
	"fitfeed/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Only Create is exercised by the seeder
type stubLinkRepo struct {
	domain.LinkRepository
	created   []*domain.ProductLink
	createErr error
}

func (r *stubLinkRepo) Create(ctx context.Context, link *domain.ProductLink) error {
	if r.createErr != nil {
		return r.createErr
	}
	link.ID = uuid.New()
	link.Status = domain.LinkStatusPending
	r.created = append(r.created, link)
	return nil
}

type stubQueueRepo struct {
	domain.QueueRepository
	jobs       []interface{}
	enqueueErr error
}

func (q *stubQueueRepo) Enqueue(ctx context.Context, jobType string, payload interface{}) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.jobs = append(q.jobs, payload)
	return nil
}

func newTestSeeder(links *stubLinkRepo, queue *stubQueueRepo) *Seeder {
	return &Seeder{
		linkRepo:  links,
		queueRepo: queue,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSeederImportsRows(t *testing.T) {
	outfit := uuid.New()
	input := "outfit_id,url\n" +
		outfit.String() + ",https://Shop.Example.com/p/1\n" +
		"# comment line\n" +
		outfit.String() + ", https://store.example/p/2\n"

	links := &stubLinkRepo{}
	queue := &stubQueueRepo{}

	stats, err := newTestSeeder(links, queue).Run(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 3, stats.RowsProcessed)
	assert.Equal(t, 1, stats.RowsSkipped, "header row is skipped")
	assert.Equal(t, 2, stats.LinksCreated)
	assert.Equal(t, 2, stats.JobsQueued)
	assert.Zero(t, stats.Errors)

	require.Len(t, links.created, 2)
	assert.Equal(t, outfit, links.created[0].OutfitID)
	assert.Equal(t, "shop.example.com", links.created[0].Domain)
	assert.Equal(t, "https://store.example/p/2", links.created[1].URL)

	require.Len(t, queue.jobs, 2)
	job, ok := queue.jobs[0].(domain.ValidationJob)
	require.True(t, ok)
	assert.Equal(t, links.created[0].ID.String(), job.LinkID)
}

func TestSeederSkipsInvalidRows(t *testing.T) {
	outfit := uuid.New().String()
	input := "not-a-uuid,https://shop.example/p/1\n" +
		outfit + ",ftp://shop.example/file\n" +
		outfit + "\n"

	links := &stubLinkRepo{}
	stats, err := newTestSeeder(links, &stubQueueRepo{}).Run(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 3, stats.RowsSkipped)
	assert.Empty(t, links.created)
}

func TestSeederDryRunWritesNothing(t *testing.T) {
	input := uuid.New().String() + ",https://shop.example/p/1\n"

	links := &stubLinkRepo{}
	queue := &stubQueueRepo{}
	seeder := newTestSeeder(links, queue)
	seeder.dryRun = true

	stats, err := seeder.Run(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.LinksCreated)
	assert.Empty(t, links.created)
	assert.Empty(t, queue.jobs)
}

func TestSeederRespectsLimit(t *testing.T) {
	outfit := uuid.New().String()
	input := outfit + ",https://shop.example/p/1\n" +
		outfit + ",https://shop.example/p/2\n" +
		outfit + ",https://shop.example/p/3\n"

	links := &stubLinkRepo{}
	seeder := newTestSeeder(links, &stubQueueRepo{})
	seeder.limit = 2

	stats, err := seeder.Run(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 2, stats.RowsProcessed)
	assert.Len(t, links.created, 2)
}

func TestSeederCountsErrors(t *testing.T) {
	input := uuid.New().String() + ",https://shop.example/p/1\n"

	t.Run("create failure", func(t *testing.T) {
		links := &stubLinkRepo{createErr: errors.New("db down")}
		stats, err := newTestSeeder(links, &stubQueueRepo{}).Run(context.Background(), strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Errors)
		assert.Zero(t, stats.LinksCreated)
	})

	t.Run("enqueue failure leaves link created", func(t *testing.T) {
		links := &stubLinkRepo{}
		queue := &stubQueueRepo{enqueueErr: errors.New("redis down")}
		stats, err := newTestSeeder(links, queue).Run(context.Background(), strings.NewReader(input))
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Errors)
		assert.Equal(t, 1, stats.LinksCreated)
		assert.Zero(t, stats.JobsQueued)
	})
}

func TestSeederStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	links := &stubLinkRepo{}
	stats, err := newTestSeeder(links, &stubQueueRepo{}).Run(ctx, strings.NewReader(uuid.New().String()+",https://shop.example/p/1\n"))
	require.NoError(t, err)
	assert.Zero(t, stats.RowsProcessed)
	assert.Empty(t, links.created)
}

func TestNewSeederDryRunNeedsNoStores(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	seeder, cleanup, err := newSeeder(&config.Config{}, log, 0, true)
	require.NoError(t, err)
	defer cleanup()
	assert.Nil(t, seeder.linkRepo)
	assert.Nil(t, seeder.queueRepo)

	stats, err := seeder.Run(context.Background(), strings.NewReader(uuid.New().String()+",https://shop.example/p/1\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.LinksCreated)
	assert.Zero(t, stats.Errors)
}

func TestNewSeederRequiresStoresForRealRuns(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, _, err := newSeeder(&config.Config{}, log, 0, false)
	assert.ErrorContains(t, err, "DATABASE_URL")
}
