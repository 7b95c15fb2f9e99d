package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/models"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/services"
)

// SyncHandler exposes the sync trigger and its status.
type SyncHandler struct {
	sync   services.SyncService
	logger *zap.Logger
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(sync services.SyncService, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{sync: sync, logger: logger}
}

// RegisterRoutes registers the sync handler's routes on the given mux.
func (h *SyncHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sync", h.Trigger)
	mux.HandleFunc("GET /api/sync/status", h.Status)
}

// Trigger handles POST /api/sync?year=&month=
// Without parameters the previous calendar month is synced. The run is
// detached from the request so a dropped client does not abort it.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	period, explicit, err := parsePeriod(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_period", err.Error())
		return
	}

	ctx := context.WithoutCancel(r.Context())
	var report *models.SyncReport
	if explicit {
		report, err = h.sync.Run(ctx, period)
	} else {
		report, err = h.sync.RunSync(ctx)
	}

	if err != nil {
		status, code, message := errorStatus(err)
		if report == nil {
			// rejected before starting
			ErrorResponse(w, status, code, message)
			return
		}
		h.logger.Error("Sync run failed",
			zap.String("run_id", report.RunID.String()),
			zap.String("period", report.Period.String()),
			zap.Error(err))
		if err := WriteJSON(w, status, report); err != nil {
			h.logger.Error("Failed to write sync report", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, report); err != nil {
		h.logger.Error("Failed to write sync report", zap.Error(err))
	}
}

// Status handles GET /api/sync/status
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, h.sync.Status()); err != nil {
		h.logger.Error("Failed to write sync status", zap.Error(err))
	}
}

// parsePeriod reads year and month. Both or neither must be given.
func parsePeriod(r *http.Request) (models.Period, bool, error) {
	q := r.URL.Query()
	yearSet := strings.TrimSpace(q.Get("year")) != ""
	monthSet := strings.TrimSpace(q.Get("month")) != ""
	if !yearSet && !monthSet {
		return models.Period{}, false, nil
	}
	if yearSet != monthSet {
		return models.Period{}, false, errors.New("year and month must be given together")
	}

	year, err := queryInt(r, "year", 0, 2000, 9999)
	if err != nil {
		return models.Period{}, false, err
	}
	month, err := queryInt(r, "month", 0, 1, 12)
	if err != nil {
		return models.Period{}, false, err
	}
	period, err := models.NewPeriod(year, month)
	return period, true, err
}
