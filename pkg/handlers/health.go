package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/cache"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/config"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/logging"
)

// DatabaseChecker reports whether the store is reachable.
type DatabaseChecker interface {
	Healthy(ctx context.Context) error
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthResponse is the /health body. The cache never makes the service
// unhealthy: reads fall back to the store.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache,omitempty"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	db     DatabaseChecker
	cache  *cache.Cache
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. cache may be nil.
func NewHealthHandler(cfg *config.Config, db DatabaseChecker, c *cache.Cache, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, db: db, cache: c, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
// 503 when PostgreSQL is unreachable; a degraded cache is reported but stays 200.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Database: "ok"}
	status := http.StatusOK

	if err := h.db.Healthy(ctx); err != nil {
		h.logger.Warn("Database health check failed", zap.String("error", logging.SanitizeError(err)))
		resp.Status = "unavailable"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	if h.cache != nil {
		resp.Cache = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			resp.Cache = "unreachable"
			if status == http.StatusOK {
				resp.Status = "degraded"
			}
		}
	}

	if err := WriteJSON(w, status, resp); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "danovyhlidac",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
