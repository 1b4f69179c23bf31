package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fitfeed/internal/config"
	"fitfeed/internal/domain"
	"fitfeed/internal/pkg/linkurl"
	"fitfeed/internal/pkg/logger"
	"fitfeed/internal/repository/postgres"
	"fitfeed/internal/repository/redis"
	"fitfeed/internal/service/worker"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

func main() {
	var (
		file   = flag.String("file", "", "CSV file of outfit_id,url rows (required, - for stdin)")
		limit  = flag.Int("limit", 0, "Maximum number of rows to import (0 = no limit)")
		dryRun = flag.Bool("dry-run", false, "Print what would be done without creating links")
	)

	// Load configuration (parses flags); stores are only needed for real runs
	cfg := config.LoadOptional()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: -file flag is required")
		flag.Usage()
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.Info("Starting product link seeder...",
		"file", *file,
		"limit", *limit,
		"dry_run", *dryRun,
	)

	input := os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			log.Error("Failed to open input file", "error", err)
			os.Exit(1)
		}
		defer f.Close()
		input = f
	}

	seeder, cleanup, err := newSeeder(cfg, log, *limit, *dryRun)
	if err != nil {
		log.Error("Failed to set up seeder", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("Shutdown signal received, stopping seeder...")
		cancel()
	}()

	stats, err := seeder.Run(ctx, input)
	if err != nil {
		log.Error("Seeder failed", "error", err)
		os.Exit(1)
	}

	log.Info("Seeding completed",
		"rows_processed", stats.RowsProcessed,
		"links_created", stats.LinksCreated,
		"rows_skipped", stats.RowsSkipped,
		"jobs_queued", stats.JobsQueued,
		"errors", stats.Errors,
	)
}

// newSeeder connects to Postgres and Redis unless dryRun is set, in which
// case no store is touched and none needs to be configured
func newSeeder(cfg *config.Config, log *slog.Logger, limit int, dryRun bool) (*Seeder, func(), error) {
	seeder := &Seeder{
		logger: log,
		limit:  limit,
		dryRun: dryRun,
	}
	if dryRun {
		return seeder, func() {}, nil
	}

	if err := cfg.ValidateForStores(); err != nil {
		return nil, nil, err
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.RedisURL, log)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	seeder.linkRepo = postgres.NewLinkRepository(db, log)
	seeder.queueRepo = redis.NewQueueRepository(redisClient, log, redis.QueueOptions{})

	cleanup := func() {
		redisClient.Close()
		db.Close()
	}
	return seeder, cleanup, nil
}

// SeedingStats tracks what a seeding run did
type SeedingStats struct {
	RowsProcessed int
	LinksCreated  int
	RowsSkipped   int
	JobsQueued    int
	Errors        int
}

// Seeder bulk-imports product links and queues them for validation
type Seeder struct {
	linkRepo  domain.LinkRepository
	queueRepo domain.QueueRepository
	logger    *slog.Logger

	limit  int
	dryRun bool
}

// Run reads outfit_id,url rows from r. A header row and blank or malformed
// rows are skipped; only I/O failures abort the run.
func (s *Seeder) Run(ctx context.Context, r io.Reader) (*SeedingStats, error) {
	stats := &SeedingStats{}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	for {
		if ctx.Err() != nil {
			s.logger.Warn("Context cancelled, stopping import")
			return stats, nil
		}
		if s.limit > 0 && stats.RowsProcessed >= s.limit {
			s.logger.Info("Reached row limit", "limit", s.limit)
			return stats, nil
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				s.logger.Warn("Skipping unparseable row", "error", err)
				stats.RowsSkipped++
				continue
			}
			return stats, fmt.Errorf("failed to read input: %w", err)
		}

		stats.RowsProcessed++
		s.processRow(ctx, record, stats)
	}
}

func (s *Seeder) processRow(ctx context.Context, record []string, stats *SeedingStats) {
	if len(record) < 2 {
		stats.RowsSkipped++
		return
	}

	outfitID, err := uuid.Parse(strings.TrimSpace(record[0]))
	if err != nil {
		// Usually the header row
		s.logger.Debug("Skipping row with invalid outfit id", "value", record[0])
		stats.RowsSkipped++
		return
	}

	rawURL := strings.TrimSpace(record[1])
	u, err := linkurl.Parse(rawURL)
	if err != nil {
		s.logger.Warn("Skipping row with invalid URL", "url", rawURL, "error", err)
		stats.RowsSkipped++
		return
	}

	link := &domain.ProductLink{
		OutfitID: outfitID,
		URL:      rawURL,
		Domain:   linkurl.Domain(u),
	}

	if s.dryRun {
		s.logger.Info("[DRY RUN] Would create product link",
			"outfit_id", outfitID,
			"url", rawURL,
			"domain", link.Domain,
		)
		stats.LinksCreated++
		stats.JobsQueued++
		return
	}

	if err := s.linkRepo.Create(ctx, link); err != nil {
		s.logger.Error("Failed to create product link", "error", err, "url", rawURL)
		stats.Errors++
		return
	}
	stats.LinksCreated++

	// A link left pending here is picked up by the next sweep
	if err := worker.EnqueueValidation(ctx, s.queueRepo, link); err != nil {
		s.logger.Warn("Failed to queue validation", "error", err, "link_id", link.ID)
		stats.Errors++
		return
	}
	stats.JobsQueued++
}
