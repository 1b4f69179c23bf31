package http

import (
	"log/slog"
	"net/http"

	"fitfeed/internal/domain"
	"fitfeed/internal/http/handlers"
	"fitfeed/internal/http/middleware"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps collects what the API routes need
type RouterDeps struct {
	LinkRepo     domain.LinkRepository
	QueueRepo    domain.QueueRepository
	Sweeper      handlers.Sweeper
	AdminAPIKey  string
	HealthChecks map[string]handlers.HealthCheck
}

type Router struct {
	mux           *http.ServeMux
	adminAuth     *middleware.AdminAuth
	healthHandler *handlers.HealthHandler
	linksHandler  *handlers.LinksHandler
	adminHandler  *handlers.AdminHandler
}

func NewRouter(logger *slog.Logger, deps RouterDeps) *Router {
	return &Router{
		mux:           http.NewServeMux(),
		adminAuth:     middleware.NewAdminAuth(deps.AdminAPIKey, logger),
		healthHandler: handlers.NewHealthHandler(logger, deps.HealthChecks),
		linksHandler:  handlers.NewLinksHandler(logger, deps.LinkRepo, deps.QueueRepo),
		adminHandler:  handlers.NewAdminHandler(logger, deps.LinkRepo, deps.QueueRepo, deps.Sweeper),
	}
}

func (r *Router) SetupRoutes() http.Handler {
	// Health check and metrics
	r.mux.HandleFunc("GET /health", r.healthHandler.HandleHealth)
	r.mux.Handle("GET /metrics", promhttp.Handler())

	// API v1 routes - Product links
	r.mux.HandleFunc("POST /api/v1/outfits/{outfitId}/products", r.linksHandler.CreateLink)
	r.mux.HandleFunc("GET /api/v1/products/{id}", r.linksHandler.GetLink)

	// API v1 routes - Admin
	r.mux.Handle("POST /api/v1/admin/validate-now", r.adminAuth.Middleware(http.HandlerFunc(r.adminHandler.ValidateNow)))
	r.mux.Handle("GET /api/v1/admin/stats", r.adminAuth.Middleware(http.HandlerFunc(r.adminHandler.GetStats)))

	return middleware.CORS(middleware.Metrics(r.mux))
}
