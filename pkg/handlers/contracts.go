package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/models"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/services"
)

const maxListLimit = 500

// ContractsHandler serves the cached read endpoints.
type ContractsHandler struct {
	queries services.ContractQueryService
	logger  *zap.Logger
}

// NewContractsHandler creates a new ContractsHandler.
func NewContractsHandler(queries services.ContractQueryService, logger *zap.Logger) *ContractsHandler {
	return &ContractsHandler{queries: queries, logger: logger}
}

// RegisterRoutes registers the contracts handler's routes on the given mux.
func (h *ContractsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/contracts", h.List)
	mux.HandleFunc("GET /api/contracts/{id}", h.Get)
	mux.HandleFunc("GET /api/stats", h.Stats)
}

// List handles GET /api/contracts?query=&kategorie=&limit=&offset=
func (h *ContractsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0, 0, maxListLimit)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_parameters", err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0, 0, int(^uint32(0)>>1))
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_parameters", err.Error())
		return
	}

	q := r.URL.Query()
	filter := models.ContractFilter{
		Query:    strings.TrimSpace(q.Get("query")),
		Category: strings.TrimSpace(q.Get("kategorie")),
		Limit:    limit,
		Offset:   offset,
	}

	page, err := h.queries.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list contracts", zap.Error(err))
		status, code, message := errorStatus(err)
		ErrorResponse(w, status, code, message)
		return
	}
	if err := WriteJSON(w, http.StatusOK, page); err != nil {
		h.logger.Error("Failed to write contract list", zap.Error(err))
	}
}

// Get handles GET /api/contracts/{id}
func (h *ContractsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseContractID(w, r, h.logger)
	if !ok {
		return
	}

	contract, err := h.queries.Get(r.Context(), id)
	if err != nil {
		status, code, message := errorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Failed to get contract",
				zap.String("contract_id", id.String()),
				zap.Error(err))
		}
		ErrorResponse(w, status, code, message)
		return
	}
	if err := WriteJSON(w, http.StatusOK, contract); err != nil {
		h.logger.Error("Failed to write contract", zap.Error(err))
	}
}

// Stats handles GET /api/stats
func (h *ContractsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queries.Stats(r.Context())
	if err != nil {
		h.logger.Error("Failed to compute stats", zap.Error(err))
		status, code, message := errorStatus(err)
		ErrorResponse(w, status, code, message)
		return
	}
	if err := WriteJSON(w, http.StatusOK, stats); err != nil {
		h.logger.Error("Failed to write stats", zap.Error(err))
	}
}
