package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fitfeed/internal/domain"
	"fitfeed/internal/metrics"
	"fitfeed/internal/pkg/linkurl"

	"github.com/google/uuid"
)

// Failure reasons written to FailureMetadata.Error
const (
	reasonBlacklisted = "Domain blacklisted"
	reasonNotHTML     = "Not HTML"
)

// outcomeWriteTimeout bounds the single record write of a run. The write
// gets its own deadline so a run that timed out can still be recorded.
const outcomeWriteTimeout = 5 * time.Second

// JobProcessor runs link validation jobs
type JobProcessor struct {
	logger     *slog.Logger
	linkRepo   domain.LinkRepository
	blacklist  *Blacklist
	fetcher    *Fetcher
	extractor  *Extractor
	probeFirst bool
	now        func() time.Time
}

// NewJobProcessor creates a new job processor. With probeFirst the fetch is
// a HEAD followed by a GET; otherwise a single GET does both.
func NewJobProcessor(
	logger *slog.Logger,
	linkRepo domain.LinkRepository,
	blacklist *Blacklist,
	fetcher *Fetcher,
	extractor *Extractor,
	probeFirst bool,
) *JobProcessor {
	return &JobProcessor{
		logger:     logger,
		linkRepo:   linkRepo,
		blacklist:  blacklist,
		fetcher:    fetcher,
		extractor:  extractor,
		probeFirst: probeFirst,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ProcessLinkValidation decodes a validate_link payload and runs the job
func (p *JobProcessor) ProcessLinkValidation(ctx context.Context, payload map[string]interface{}, logger *slog.Logger) error {
	linkIDStr, ok := payload["link_id"].(string)
	if !ok {
		return fmt.Errorf("missing or invalid link_id in payload")
	}

	linkID, err := uuid.Parse(linkIDStr)
	if err != nil {
		return fmt.Errorf("invalid link_id format: %w", err)
	}

	// Older or hand-made payloads may carry only the id; the record has the URL
	url, ok := payload["url"].(string)
	if !ok {
		link, err := p.linkRepo.GetByID(ctx, linkID)
		if err != nil {
			return fmt.Errorf("payload has no url and link lookup failed: %w", err)
		}
		url = link.URL
	}

	return p.ValidateLink(ctx, linkID, url, logger)
}

// ValidateLink determines the terminal state of one link and writes it with
// exactly one repository call. Validation failures are recorded, not
// returned; the only errors returned are a failed write or cancellation.
func (p *JobProcessor) ValidateLink(ctx context.Context, linkID uuid.UUID, rawURL string, logger *slog.Logger) error {
	start := time.Now()
	logger = logger.With("link_id", linkID, "url", rawURL)
	logger.Info("Validating link")

	outcome, label := p.evaluate(ctx, rawURL, logger)

	// A cancelled run has no verdict; the job stays in flight and is
	// recovered on the next worker start
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("validation aborted: %w", ctx.Err())
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outcomeWriteTimeout)
	defer cancel()

	if _, err := p.linkRepo.ApplyOutcome(writeCtx, linkID, outcome); err != nil {
		return fmt.Errorf("failed to record validation outcome: %w", err)
	}

	duration := time.Since(start)
	metrics.ValidationsTotal.WithLabelValues(label).Inc()
	metrics.ValidationDuration.Observe(duration.Seconds())

	if outcome.IsValid() {
		logger.Info("Link validated",
			"domain", outcome.Domain,
			"duration", duration,
		)
	} else {
		logger.Info("Link rejected",
			"reason", outcome.Reason(),
			"outcome", label,
			"duration", duration,
		)
	}

	return nil
}

// evaluate walks the validation steps, stopping at the first decisive one.
// A panic anywhere in here becomes an invalid outcome.
func (p *JobProcessor) evaluate(ctx context.Context, rawURL string, logger *slog.Logger) (outcome domain.ValidationOutcome, label string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Link validation panicked", "panic", r)
			outcome = domain.InvalidOutcome(fmt.Sprint(r), p.now())
			label = metrics.OutcomeFault
		}
	}()

	u, err := linkurl.Parse(rawURL)
	if err != nil {
		return domain.InvalidOutcome(err.Error(), p.now()), metrics.OutcomeNetworkFailed
	}

	if p.blacklist.IsBlacklisted(linkurl.Domain(u)) {
		return domain.InvalidOutcome(reasonBlacklisted, p.now()), metrics.OutcomeBlacklisted
	}

	mode := ModeFull
	if p.probeFirst {
		mode = ModeProbe
	}

	result, outcome, label, ok := p.fetchChecked(ctx, u.String(), mode)
	if !ok {
		return outcome, label
	}

	if mode == ModeProbe {
		logger.Debug("Probe passed, fetching body")
		result, outcome, label, ok = p.fetchChecked(ctx, u.String(), ModeFull)
		if !ok {
			return outcome, label
		}
	}

	// The fetcher stops at blacklisted hops when it shares this blacklist;
	// the final host is checked here either way
	resolved := linkurl.Domain(result.FinalURL)
	if p.blacklist.IsBlacklisted(resolved) {
		return domain.InvalidOutcome(reasonBlacklisted, p.now()), metrics.OutcomeBlacklisted
	}

	meta := p.extractor.Extract(result.Body)
	return domain.ValidOutcome(resolved, domain.SuccessMetadata{
		Title:       meta.Title,
		Image:       meta.Image,
		Price:       meta.Price,
		ValidatedAt: p.now(),
	}), metrics.OutcomeValid
}

// fetchChecked fetches and applies the status and content-type checks.
// ok is false when the returned outcome is terminal.
func (p *JobProcessor) fetchChecked(ctx context.Context, url string, mode FetchMode) (*FetchResult, domain.ValidationOutcome, string, bool) {
	result, err := p.fetcher.Fetch(ctx, url, mode)
	if errors.Is(err, ErrBlacklistedRedirect) {
		return nil, domain.InvalidOutcome(reasonBlacklisted, p.now()), metrics.OutcomeBlacklisted, false
	}
	if err != nil {
		return nil, domain.InvalidOutcome(err.Error(), p.now()), metrics.OutcomeNetworkFailed, false
	}

	if result.StatusCode != http.StatusOK {
		reason := fmt.Sprintf("HTTP %d", result.StatusCode)
		return nil, domain.InvalidOutcome(reason, p.now()), metrics.OutcomeNetworkFailed, false
	}

	if !isHTML(result.Header.Get("Content-Type")) {
		return nil, domain.InvalidOutcome(reasonNotHTML, p.now()), metrics.OutcomeNonHTML, false
	}

	return result, domain.ValidationOutcome{}, "", true
}

func isHTML(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.Contains(contentType, "text/html") ||
		strings.Contains(contentType, "application/xhtml+xml")
}
