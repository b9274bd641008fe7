package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"posture-monitor/internal/models"
	"posture-monitor/internal/repository"
	"posture-monitor/internal/service"

	"go.uber.org/zap"
)

// AlertHandler 告警接口
type AlertHandler struct {
	svc    *service.AlertService
	logger *zap.Logger
}

// NewAlertHandler 创建告警 Handler
func NewAlertHandler(svc *service.AlertService, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{svc: svc, logger: logger}
}

// ListAlerts GET /api/alerts?status=
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.svc.ListAlerts(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.writeAlertError(w, err)
		return
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"total":  len(alerts),
	})
}

type acknowledgeRequest struct {
	ID             string `json:"id"`
	AcknowledgedBy string `json:"acknowledgedBy"`
	// 兼容 snake_case 字段
	AcknowledgedBySnake string `json:"acknowledged_by"`
	AlertID             string `json:"alertId"`
}

// AcknowledgeAlert POST /api/alert/acknowledge
func (h *AlertHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	var req acknowledgeRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	id := req.ID
	if id == "" {
		id = req.AlertID
	}
	by := req.AcknowledgedBy
	if by == "" {
		by = req.AcknowledgedBySnake
	}

	result, err := h.svc.Acknowledge(r.Context(), id, by)
	if err != nil {
		h.writeAlertError(w, err)
		return
	}

	message := fmt.Sprintf("Alert %s acknowledged by %s", result.ID, result.AcknowledgedBy)
	if result.AlreadyAcknowledged {
		message = fmt.Sprintf("Alert %s was already acknowledged by %s", result.ID, result.AcknowledgedBy)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":               "success",
		"message":              message,
		"acknowledged_by":      result.AcknowledgedBy,
		"already_acknowledged": result.AlreadyAcknowledged,
	})
}

// DeleteAlert DELETE /api/alert/{id}
func (h *AlertHandler) DeleteAlert(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.svc.DeleteAlert(r.Context(), id); err != nil {
		h.writeAlertError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Alert deleted",
	})
}

// ExportAlerts GET /api/alerts/export?status=
func (h *AlertHandler) ExportAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.svc.ListAlerts(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.writeAlertError(w, err)
		return
	}

	excelData, err := GenerateAlertsExport(alerts)
	if err != nil {
		h.logger.Error("GenerateAlertsExport failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to generate export: %v", err))
		return
	}

	filename := fmt.Sprintf("alerts-%s.xlsx", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	w.Write(excelData)
}

func (h *AlertHandler) writeAlertError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), service.ErrInvalidArgument.Error()+": "))
	case errors.Is(err, repository.ErrAlertNotFound):
		writeError(w, http.StatusNotFound, "Alert not found")
	case errors.Is(err, service.ErrAlertsDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
