package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/cache"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/models"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/services"
)

// CacheHandler exposes cache administration: health, clear, warm and counters.
type CacheHandler struct {
	cache   *cache.Cache
	queries services.ContractQueryService
	warm    []models.ContractFilter
	logger  *zap.Logger
}

// NewCacheHandler creates a new CacheHandler. warm lists the canonical list
// queries pre-computed by POST /api/cache/warm.
func NewCacheHandler(c *cache.Cache, queries services.ContractQueryService, warm []models.ContractFilter, logger *zap.Logger) *CacheHandler {
	return &CacheHandler{cache: c, queries: queries, warm: warm, logger: logger}
}

// RegisterRoutes registers the cache handler's routes on the given mux.
func (h *CacheHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/cache/health", h.Health)
	mux.HandleFunc("GET /api/cache/stats", h.Stats)
	mux.HandleFunc("POST /api/cache/clear", h.Clear)
	mux.HandleFunc("POST /api/cache/warm", h.Warm)
	mux.HandleFunc("POST /api/cache/stats/reset", h.ResetStats)
}

type clearResponse struct {
	Removed int `json:"removed"`
}

// Health handles GET /api/cache/health
// An unreachable backend answers 503 with the same body; reads keep working
// against the store either way.
func (h *CacheHandler) Health(w http.ResponseWriter, r *http.Request) {
	hm := h.cache.HealthMetrics(r.Context())
	status := http.StatusOK
	if !hm.Healthy {
		status = http.StatusServiceUnavailable
	}
	if err := WriteJSON(w, status, hm); err != nil {
		h.logger.Error("Failed to write cache health", zap.Error(err))
	}
}

// Stats handles GET /api/cache/stats
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, h.cache.Stats()); err != nil {
		h.logger.Error("Failed to write cache stats", zap.Error(err))
	}
}

// Clear handles POST /api/cache/clear
func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	removed, err := h.cache.ClearAll(r.Context())
	if err != nil {
		h.logger.Error("Failed to clear cache", zap.Error(err))
		status, code, message := errorStatus(err)
		ErrorResponse(w, status, code, message)
		return
	}
	if err := WriteJSON(w, http.StatusOK, clearResponse{Removed: removed}); err != nil {
		h.logger.Error("Failed to write clear response", zap.Error(err))
	}
}

// Warm handles POST /api/cache/warm
func (h *CacheHandler) Warm(w http.ResponseWriter, r *http.Request) {
	result := h.queries.WarmCommonQueries(r.Context(), h.warm)
	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to write warm result", zap.Error(err))
	}
}

// ResetStats handles POST /api/cache/stats/reset
func (h *CacheHandler) ResetStats(w http.ResponseWriter, r *http.Request) {
	h.cache.ResetStats()
	if err := WriteJSON(w, http.StatusOK, h.cache.Stats()); err != nil {
		h.logger.Error("Failed to write cache stats", zap.Error(err))
	}
}
