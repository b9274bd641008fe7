package httpapi

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	started := time.Now()
	r.mux.ServeHTTP(w, req)
	r.logger.Debug("HTTP request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Duration("elapsed", time.Since(started)),
	)
}

// method 限定请求方法
func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != m {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}

// RegisterMonitorRoutes 流式分析、批量分析与健康检查
func (r *Router) RegisterMonitorRoutes(h *MonitorHandler) {
	r.Handle("/stream_video_analysis", method(http.MethodPost, h.StreamVideo))
	r.Handle("/stream_rtsp_analysis", method(http.MethodPost, h.StreamURL))
	r.Handle("/predict", method(http.MethodPost, h.PredictImage))
	r.Handle("/predict_video", method(http.MethodPost, h.PredictVideo))
	r.Handle("/predict_video_frames", method(http.MethodPost, h.PredictVideoFrames))
	r.Handle("/predict_video_interval", method(http.MethodPost, h.PredictVideoInterval))
	r.Handle("/health", method(http.MethodGet, h.Health))
}

// RegisterAlertRoutes 告警查询、确认、删除与导出
func (r *Router) RegisterAlertRoutes(h *AlertHandler) {
	r.Handle("/api/alerts", method(http.MethodGet, h.ListAlerts))
	r.Handle("/api/alerts/export", method(http.MethodGet, h.ExportAlerts))
	r.Handle("/api/alert/acknowledge", method(http.MethodPost, h.AcknowledgeAlert))

	// alert/{id}
	r.Handle("/api/alert/", method(http.MethodDelete, func(w http.ResponseWriter, req *http.Request) {
		id := strings.TrimPrefix(req.URL.Path, "/api/alert/")
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.DeleteAlert(w, req, id)
	}))
}

// RegisterPositionRoutes 患者最新体位与时序
func (r *Router) RegisterPositionRoutes(h *PositionHandler) {
	r.Handle("/api/positions", method(http.MethodGet, h.ListLatest))

	// positions/{patientId} 与 positions/{patientId}/timeline
	r.Handle("/api/positions/", method(http.MethodGet, func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/api/positions/")
		if id, ok := strings.CutSuffix(rest, "/timeline"); ok {
			if id == "" || strings.Contains(id, "/") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			h.Timeline(w, req, id)
			return
		}
		if rest == "" || strings.Contains(rest, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.Latest(w, req, rest)
	}))
}
