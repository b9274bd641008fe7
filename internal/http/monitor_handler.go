package httpapi

import (
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"mime/multipart"
	"net/http"
	"strings"

	"posture-monitor/internal/classifier"
	"posture-monitor/internal/engine"
	"posture-monitor/internal/service"
	"posture-monitor/internal/source"

	"go.uber.org/zap"
)

// NDJSONContentType 流式分析响应类型
const NDJSONContentType = "application/x-ndjson"

const multipartMemory = 32 << 20

// MonitorHandler 流式分析 / 批量分析 / 健康检查
type MonitorHandler struct {
	svc       *service.MonitorService
	maxUpload int64
	logger    *zap.Logger
}

// NewMonitorHandler maxUploadBytes 为单次上传大小上限
func NewMonitorHandler(svc *service.MonitorService, maxUploadBytes int64, logger *zap.Logger) *MonitorHandler {
	return &MonitorHandler{svc: svc, maxUpload: maxUploadBytes, logger: logger}
}

// streamWriter 首次写入时才设置 NDJSON 响应头，
// 会话开始前的失败仍可返回普通 JSON 错误
type streamWriter struct {
	http.ResponseWriter
	started bool
}

func (s *streamWriter) Write(p []byte) (int, error) {
	if !s.started {
		s.started = true
		h := s.Header()
		h.Set("Content-Type", NDJSONContentType)
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Accel-Buffering", "no")
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(p)
}

func (s *streamWriter) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// StreamVideo 上传文件流式分析（multipart: file, patientId, patientName）
func (h *MonitorHandler) StreamVideo(w http.ResponseWriter, r *http.Request) {
	upload, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	defer upload.close()

	patient := engine.Patient{
		ID:   strings.TrimSpace(r.FormValue("patientId")),
		Name: strings.TrimSpace(r.FormValue("patientName")),
	}
	sw := &streamWriter{ResponseWriter: w}
	_, err := h.svc.StreamUpload(r.Context(), upload.Upload, patient, sw)
	h.finishStream(w, sw, err)
}

type streamURLRequest struct {
	URL         string `json:"url"`
	PatientID   string `json:"patientId"`
	PatientName string `json:"patientName"`
}

// StreamURL 直播流地址流式分析（JSON: url, patientId, patientName）
func (h *MonitorHandler) StreamURL(w http.ResponseWriter, r *http.Request) {
	var req streamURLRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "No URL provided")
		return
	}

	patient := engine.Patient{ID: strings.TrimSpace(req.PatientID), Name: strings.TrimSpace(req.PatientName)}
	sw := &streamWriter{ResponseWriter: w}
	_, err := h.svc.StreamURL(r.Context(), req.URL, patient, sw)
	h.finishStream(w, sw, err)
}

// finishStream 会话内的错误已作为 error 事件写出，这里只处理会话开始前的失败
func (h *MonitorHandler) finishStream(w http.ResponseWriter, sw *streamWriter, err error) {
	if err == nil || sw.started {
		return
	}
	if errors.Is(err, engine.ErrConsumerGone) {
		return
	}
	h.logger.Error("Stream session could not start", zap.Error(err))
	if errors.Is(err, service.ErrMissingSource) {
		writeError(w, http.StatusBadRequest, "No file part")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// PredictImage 单张图片分类
func (h *MonitorHandler) PredictImage(w http.ResponseWriter, r *http.Request) {
	upload, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	defer upload.close()

	img, _, err := image.Decode(upload.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid image")
		return
	}
	result, err := h.svc.ClassifyImage(r.Context(), img)
	if err != nil {
		h.writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PredictVideo 视频首帧分类
func (h *MonitorHandler) PredictVideo(w http.ResponseWriter, r *http.Request) {
	upload, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	defer upload.close()

	result, err := h.svc.FirstFrameUpload(r.Context(), upload.Upload)
	if err != nil {
		h.writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PredictVideoFrames 整段分析
func (h *MonitorHandler) PredictVideoFrames(w http.ResponseWriter, r *http.Request) {
	upload, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	defer upload.close()

	result, err := h.svc.AnalyzeClipUpload(r.Context(), upload.Upload)
	if err != nil {
		h.writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PredictVideoInterval 区间分析（start_time 默认 0，end_time 默认 5）
func (h *MonitorHandler) PredictVideoInterval(w http.ResponseWriter, r *http.Request) {
	upload, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	defer upload.close()

	start, err := parseFloat(r.FormValue("start_time"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_time")
		return
	}
	end, err := parseFloat(r.FormValue("end_time"), 5)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_time")
		return
	}

	result, err := h.svc.AnalyzeIntervalUpload(r.Context(), upload.Upload, start, end)
	if err != nil {
		h.writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Health 健康检查
func (h *MonitorHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Health(r.Context()))
}

func (h *MonitorHandler) writeAnalysisError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, classifier.ErrClassifierUnavailable):
		writeError(w, http.StatusInternalServerError, "Model not loaded")
	case errors.Is(err, engine.ErrNoFramesAnalyzed):
		writeError(w, http.StatusBadRequest, "No frames analyzed")
	case errors.Is(err, engine.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, source.ErrSourceUnavailable):
		writeError(w, http.StatusBadRequest, "Could not read video")
	default:
		h.logger.Error("Analysis failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type multipartUpload struct {
	service.Upload
	file multipart.File
}

func (u *multipartUpload) close() {
	_ = u.file.Close()
}

// readUpload 解析 multipart 中的 file 字段；失败时已写出响应
func (h *MonitorHandler) readUpload(w http.ResponseWriter, r *http.Request) (*multipartUpload, bool) {
	if h.maxUpload > 0 {
		if r.ContentLength > h.maxUpload {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return nil, false
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "No file part")
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file part")
		return nil, false
	}
	if header.Filename == "" {
		file.Close()
		writeError(w, http.StatusBadRequest, "No selected file")
		return nil, false
	}

	h.logger.Debug("Upload received",
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size),
	)
	return &multipartUpload{
		Upload: service.Upload{Filename: header.Filename, Body: file},
		file:   file,
	}, true
}
