package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"fitfeed/internal/domain"
	"fitfeed/internal/pkg/linkurl"
	"fitfeed/internal/service/worker"

	"github.com/google/uuid"
)

// maxCreateBodyBytes bounds the create request body
const maxCreateBodyBytes = 16 << 10

type LinksHandler struct {
	logger    *slog.Logger
	linkRepo  domain.LinkRepository
	queueRepo domain.QueueRepository
}

// CreateLinkRequest is the body of POST /api/v1/outfits/{outfitId}/products
type CreateLinkRequest struct {
	URL    string `json:"url"`
	Domain string `json:"domain,omitempty"`
}

func NewLinksHandler(logger *slog.Logger, linkRepo domain.LinkRepository, queueRepo domain.QueueRepository) *LinksHandler {
	return &LinksHandler{
		logger:    logger,
		linkRepo:  linkRepo,
		queueRepo: queueRepo,
	}
}

// CreateLink stores a pending product link and queues its validation
func (h *LinksHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	outfitID, err := uuid.Parse(r.PathValue("outfitId"))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid outfit ID")
		return
	}

	var req CreateLinkRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCreateBodyBytes)).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.URL == "" {
		writeError(w, h.logger, http.StatusBadRequest, "URL is required")
		return
	}

	u, err := linkurl.Parse(req.URL)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	linkDomain := linkurl.NormalizeHost(req.Domain)
	if linkDomain == "" {
		linkDomain = linkurl.Domain(u)
	}

	link := &domain.ProductLink{
		OutfitID: outfitID,
		URL:      req.URL,
		Domain:   linkDomain,
	}

	ctx := r.Context()
	if err := h.linkRepo.Create(ctx, link); err != nil {
		h.logger.Error("Failed to create product link", "error", err, "outfit_id", outfitID)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	// The link is stored as pending, so the sweep picks it up if this fails
	if err := worker.EnqueueValidation(ctx, h.queueRepo, link); err != nil {
		h.logger.Warn("Failed to enqueue validation, leaving link for the sweep",
			"error", err,
			"link_id", link.ID,
		)
	}

	h.logger.Info("Product link added",
		"link_id", link.ID,
		"outfit_id", outfitID,
		"domain", link.Domain,
	)
	writeJSON(w, h.logger, http.StatusCreated, link)
}

// GetLink returns one product link with its validation state
func (h *LinksHandler) GetLink(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid product link ID")
		return
	}

	link, err := h.linkRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrLinkNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "Product link not found")
			return
		}
		h.logger.Error("Failed to retrieve product link", "error", err, "link_id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, link)
}
