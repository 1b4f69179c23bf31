package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"fitfeed/internal/domain"
)

// Sweeper queues every pending link for validation
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type AdminHandler struct {
	logger    *slog.Logger
	linkRepo  domain.LinkRepository
	queueRepo domain.QueueRepository
	sweeper   Sweeper
}

// ValidateNowResponse is returned by POST /api/v1/admin/validate-now
type ValidateNowResponse struct {
	Success bool   `json:"success"`
	Queued  int    `json:"queued"`
	Message string `json:"message"`
}

// StatsResponse is returned by GET /api/v1/admin/stats
type StatsResponse struct {
	Pending int              `json:"pending"`
	Valid   int              `json:"valid"`
	Invalid int              `json:"invalid"`
	Queue   map[string]int64 `json:"queue,omitempty"`
}

func NewAdminHandler(logger *slog.Logger, linkRepo domain.LinkRepository, queueRepo domain.QueueRepository, sweeper Sweeper) *AdminHandler {
	return &AdminHandler{
		logger:    logger,
		linkRepo:  linkRepo,
		queueRepo: queueRepo,
		sweeper:   sweeper,
	}
}

// ValidateNow runs a sweep immediately instead of waiting for the schedule
func (h *AdminHandler) ValidateNow(w http.ResponseWriter, r *http.Request) {
	queued, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		h.logger.Error("Manual sweep failed", "error", err, "queued", queued)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.logger.Info("Manual validation triggered", "queued", queued)
	writeJSON(w, h.logger, http.StatusOK, ValidateNowResponse{
		Success: true,
		Queued:  queued,
		Message: "Validation triggered",
	})
}

// GetStats reports link counts per status and the queue state
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.linkRepo.CountByStatus(ctx)
	if err != nil {
		h.logger.Error("Failed to count links", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	response := StatsResponse{
		Pending: counts[domain.LinkStatusPending],
		Valid:   counts[domain.LinkStatusValid],
		Invalid: counts[domain.LinkStatusInvalid],
	}

	// Queue numbers are informational; link counts are still served without them
	queueStats, err := h.queueRepo.GetQueueStats(ctx, domain.JobTypeValidateLink)
	if err != nil {
		h.logger.Warn("Failed to read queue stats", "error", err)
	} else {
		response.Queue = queueStats
	}

	writeJSON(w, h.logger, http.StatusOK, response)
}
