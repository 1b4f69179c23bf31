package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"fitfeed/internal/domain"

	"github.com/google/uuid"
)

// LinkRepository implements the domain.LinkRepository interface using PostgreSQL
type LinkRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewLinkRepository creates a new PostgreSQL product link repository
func NewLinkRepository(db *sql.DB, logger *slog.Logger) *LinkRepository {
	return &LinkRepository{
		db:     db,
		logger: logger,
	}
}

const linkColumns = `id, outfit_id, url, domain, status, is_valid, metadata, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func (r *LinkRepository) scanLink(row rowScanner) (*domain.ProductLink, error) {
	link := &domain.ProductLink{}
	var linkDomain sql.NullString
	var updatedAt sql.NullTime
	var metadataBytes []byte

	err := row.Scan(
		&link.ID,
		&link.OutfitID,
		&link.URL,
		&linkDomain,
		&link.Status,
		&link.IsValid,
		&metadataBytes,
		&link.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	link.Domain = linkDomain.String
	if updatedAt.Valid {
		link.UpdatedAt = &updatedAt.Time
	}

	meta, err := domain.UnmarshalMetadata(metadataBytes)
	if err != nil {
		// A corrupt document reads as "not yet validated"; the next run replaces it
		r.logger.Warn("Failed to unmarshal link metadata",
			"error", err,
			"link_id", link.ID,
		)
	}
	link.Metadata = meta

	return link, nil
}

// Create inserts a new pending product link. ID and timestamps are assigned
// here when unset.
func (r *LinkRepository) Create(ctx context.Context, link *domain.ProductLink) error {
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	link.Status = domain.LinkStatusPending
	link.IsValid = false
	link.Metadata = nil

	query := `
		INSERT INTO product_links (id, outfit_id, url, domain, status, is_valid)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		link.ID,
		link.OutfitID,
		link.URL,
		link.Domain,
		link.Status,
		link.IsValid,
	).Scan(&link.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert product link",
			"error", err,
			"outfit_id", link.OutfitID,
		)
		return fmt.Errorf("failed to insert product link: %w", err)
	}

	r.logger.Debug("Product link created", "link_id", link.ID, "domain", link.Domain)
	return nil
}

// GetByID retrieves a product link by its UUID
func (r *LinkRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ProductLink, error) {
	query := `SELECT ` + linkColumns + ` FROM product_links WHERE id = $1`

	link, err := r.scanLink(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to query product link: %w", err)
	}

	return link, nil
}

// ApplyOutcome writes status, is_valid, metadata and (for valid outcomes) the
// resolved domain in one UPDATE, so a reader never sees a mix of two runs
func (r *LinkRepository) ApplyOutcome(ctx context.Context, id uuid.UUID, outcome domain.ValidationOutcome) (*domain.ProductLink, error) {
	if outcome.Metadata == nil {
		return nil, fmt.Errorf("validation outcome for link %s has no metadata", id)
	}

	metadata, err := domain.MarshalMetadata(outcome.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal link metadata: %w", err)
	}

	var resolvedDomain sql.NullString
	if outcome.IsValid() && outcome.Domain != "" {
		resolvedDomain = sql.NullString{String: outcome.Domain, Valid: true}
	}

	query := `
		UPDATE product_links
		SET status = $2,
		    is_valid = $3,
		    metadata = $4,
		    domain = COALESCE($5, domain),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + linkColumns

	link, err := r.scanLink(r.db.QueryRowContext(ctx, query,
		id,
		outcome.Status(),
		outcome.IsValid(),
		string(metadata),
		resolvedDomain,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrLinkNotFound
		}
		r.logger.Error("Failed to apply validation outcome",
			"error", err,
			"link_id", id,
		)
		return nil, fmt.Errorf("failed to update product link: %w", err)
	}

	return link, nil
}

// ListPending returns up to limit pending links, oldest first
func (r *LinkRepository) ListPending(ctx context.Context, limit int) ([]*domain.ProductLink, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM product_links
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, domain.LinkStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending links: %w", err)
	}
	defer rows.Close()

	var links []*domain.ProductLink
	for rows.Next() {
		link, err := r.scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending link: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending links: %w", err)
	}

	return links, nil
}

// CountByStatus returns the number of links per status. Every status is
// present in the result, zero when no link has it.
func (r *LinkRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM product_links GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count links: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{
		domain.LinkStatusPending: 0,
		domain.LinkStatusValid:   0,
		domain.LinkStatusInvalid: 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan link count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate link counts: %w", err)
	}

	return counts, nil
}
