package httpapi

import (
	"errors"
	"net/http"
	"time"

	"posture-monitor/internal/models"
	"posture-monitor/internal/notifier"
	"posture-monitor/internal/service"

	"go.uber.org/zap"
)

// PositionHandler 患者体位查询
type PositionHandler struct {
	svc    *service.PositionService
	logger *zap.Logger
}

func NewPositionHandler(svc *service.PositionService, logger *zap.Logger) *PositionHandler {
	return &PositionHandler{svc: svc, logger: logger}
}

// ListLatest GET /api/positions
func (h *PositionHandler) ListLatest(w http.ResponseWriter, r *http.Request) {
	positions, err := h.svc.ListLatest(r.Context())
	if err != nil {
		h.logger.Error("Failed to list latest positions", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}
	if positions == nil {
		positions = []*models.LatestPosition{}
	}
	writeJSON(w, http.StatusOK, Ok(positions))
}

// Latest GET /api/positions/{patientId}
func (h *PositionHandler) Latest(w http.ResponseWriter, r *http.Request, patientID string) {
	latest, err := h.svc.Latest(r.Context(), patientID)
	if err != nil {
		if errors.Is(err, notifier.ErrPositionNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("position not found"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(latest))
}

// Timeline GET /api/positions/{patientId}/timeline?minutes=&limit=
func (h *PositionHandler) Timeline(w http.ResponseWriter, r *http.Request, patientID string) {
	q := r.URL.Query()
	window := time.Duration(parseInt(q.Get("minutes"), 60)) * time.Minute
	limit := parseInt(q.Get("limit"), 0)

	observations, err := h.svc.Timeline(r.Context(), patientID, window, limit)
	if err != nil {
		if errors.Is(err, service.ErrTimelineDisabled) {
			writeJSON(w, http.StatusServiceUnavailable, Fail(err.Error()))
			return
		}
		h.logger.Error("Failed to query position timeline", zap.String("patient_id", patientID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}
	if observations == nil {
		observations = []models.PositionObservation{}
	}
	writeJSON(w, http.StatusOK, Ok(observations))
}
