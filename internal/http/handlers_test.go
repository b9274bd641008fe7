package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"posture-monitor/internal/classifier"
	"posture-monitor/internal/engine"
	"posture-monitor/internal/models"
	"posture-monitor/internal/notifier"
	"posture-monitor/internal/repository"
	"posture-monitor/internal/service"
	"posture-monitor/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// scriptedRunner 写出固定事件序列
type scriptedRunner struct {
	req    engine.Request
	events []any
}

func (r *scriptedRunner) Run(ctx context.Context, req engine.Request, w io.Writer) (engine.Summary, error) {
	r.req = req
	defer req.Scratch.Release()
	emitter := engine.NewEmitter(w)
	for _, ev := range r.events {
		if err := emitter.Emit(ev); err != nil {
			return engine.Summary{}, err
		}
	}
	return engine.Summary{SessionID: req.SessionID, Reason: engine.ReasonEndOfSource}, nil
}

type stubAnalyzer struct {
	err   error
	start float64
	end   float64
}

func (a *stubAnalyzer) AnalyzeClip(ctx context.Context, path string) (*models.ClipAnalysis, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &models.ClipAnalysis{Prediction: "supine", Confidence: 0.9}, nil
}

func (a *stubAnalyzer) AnalyzeInterval(ctx context.Context, path string, start, end float64) (*models.IntervalAnalysis, error) {
	a.start, a.end = start, end
	if a.err != nil {
		return nil, a.err
	}
	return &models.IntervalAnalysis{IntervalStart: start, IntervalEnd: end, DominantPosition: "left"}, nil
}

func (a *stubAnalyzer) ClassifyImage(ctx context.Context, img image.Image) (*models.ImagePrediction, error) {
	return &models.ImagePrediction{Prediction: "right", AllClasses: classifier.DefaultClasses}, nil
}

func (a *stubAnalyzer) ClassifyFirstFrame(ctx context.Context, path string) (*models.ImagePrediction, error) {
	return &models.ImagePrediction{Prediction: "left", Note: "Analysis based on first frame only"}, nil
}

func newMonitorRouter(t *testing.T, runner service.StreamRunner, analyzer service.ClipAnalyzer, maxUpload int64) *Router {
	t.Helper()
	svc := service.NewMonitorService(runner, analyzer, nil, t.TempDir(), zap.NewNop())
	router := NewRouter(zap.NewNop())
	router.RegisterMonitorRoutes(NewMonitorHandler(svc, maxUpload, zap.NewNop()))
	return router
}

func multipartRequest(t *testing.T, path string, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if content != nil {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestStreamVideo_WritesNDJSON(t *testing.T) {
	runner := &scriptedRunner{events: []any{
		models.MetadataEvent{Type: models.EventTypeMetadata, Duration: 2, FPS: 1, TotalFrames: 2},
		models.NewFrameEvent(models.PositionObservation{Label: "supine", Confidence: 0.9}),
	}}
	router := newMonitorRouter(t, runner, &stubAnalyzer{}, 0)

	req := multipartRequest(t, "/stream_video_analysis", "bed-4.mp4", []byte("video"), map[string]string{
		"patientId":   "p-9",
		"patientName": "Bob",
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, NDJSONContentType, rec.Header().Get("Content-Type"))
	assert.True(t, rec.Flushed)

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"type":"metadata"`)
	assert.Contains(t, lines[1], `"type":"frame"`)

	assert.Equal(t, "p-9", runner.req.Patient.ID)
	assert.Equal(t, "Bob", runner.req.Patient.Name)
	assert.NotNil(t, runner.req.Scratch)
}

func TestStreamVideo_MissingFile(t *testing.T) {
	router := newMonitorRouter(t, &scriptedRunner{}, &stubAnalyzer{}, 0)

	req := multipartRequest(t, "/stream_video_analysis", "", nil, map[string]string{"patientId": "p-1"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file part", decodeError(t, rec))
}

func TestStreamVideo_TooLarge(t *testing.T) {
	router := newMonitorRouter(t, &scriptedRunner{}, &stubAnalyzer{}, 64)

	req := multipartRequest(t, "/stream_video_analysis", "big.mp4", bytes.Repeat([]byte("x"), 4096), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestStreamURL(t *testing.T) {
	runner := &scriptedRunner{events: []any{models.NewErrorEvent("Could not open source: rtsp://cam")}}
	router := newMonitorRouter(t, runner, &stubAnalyzer{}, 0)

	body := `{"url":"rtsp://cam","patientId":"p-2","patientName":"Eve"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stream_rtsp_analysis", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rtsp://cam", runner.req.Source)
	assert.Equal(t, "p-2", runner.req.Patient.ID)
	assert.Contains(t, rec.Body.String(), `"type":"error"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stream_rtsp_analysis", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No URL provided", decodeError(t, rec))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream_rtsp_analysis", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPredictVideoInterval(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		analyzer := &stubAnalyzer{}
		router := newMonitorRouter(t, &scriptedRunner{}, analyzer, 0)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, multipartRequest(t, "/predict_video_interval", "c.mp4", []byte("v"), nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 0.0, analyzer.start)
		assert.Equal(t, 5.0, analyzer.end)

		var result models.IntervalAnalysis
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, "left", result.DominantPosition)
	})

	t.Run("no frames", func(t *testing.T) {
		router := newMonitorRouter(t, &scriptedRunner{}, &stubAnalyzer{err: engine.ErrNoFramesAnalyzed}, 0)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, multipartRequest(t, "/predict_video_interval", "c.mp4", []byte("v"),
			map[string]string{"start_time": "100", "end_time": "105"}))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No frames analyzed", decodeError(t, rec))
	})

	t.Run("bad number", func(t *testing.T) {
		router := newMonitorRouter(t, &scriptedRunner{}, &stubAnalyzer{}, 0)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, multipartRequest(t, "/predict_video_interval", "c.mp4", []byte("v"),
			map[string]string{"start_time": "abc"}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPredictVideoFrames_ModelNotLoaded(t *testing.T) {
	router := newMonitorRouter(t, &scriptedRunner{}, &stubAnalyzer{err: classifier.ErrClassifierUnavailable}, 0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "/predict_video_frames", "c.mp4", []byte("v"), nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Model not loaded", decodeError(t, rec))
}

func TestPredictImage(t *testing.T) {
	router := newMonitorRouter(t, &scriptedRunner{}, &stubAnalyzer{}, 0)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "/predict", "frame.png", buf.Bytes(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"prediction":"right"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "/predict", "frame.png", []byte("not an image"), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid image", decodeError(t, rec))
}

func TestHealth(t *testing.T) {
	router := newMonitorRouter(t, &scriptedRunner{}, &stubAnalyzer{}, 0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var report models.HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "healthy", report.Status)
	assert.False(t, report.ModelLoaded)
	assert.Equal(t, "2.0.0", report.Version)
}

// memAlertRepo 内存告警表
type memAlertRepo struct {
	alerts []*models.Alert
	err    error
}

func (r *memAlertRepo) ListAlerts(ctx context.Context, status string) ([]*models.Alert, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []*models.Alert
	for _, a := range r.alerts {
		if status == "" || a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memAlertRepo) AcknowledgeAlert(ctx context.Context, id, by string) (string, bool, error) {
	for _, a := range r.alerts {
		if a.ID != id {
			continue
		}
		if a.AcknowledgedBy != nil {
			return *a.AcknowledgedBy, true, nil
		}
		a.Status = models.AlertStatusAcknowledged
		a.AcknowledgedBy = &by
		return by, false, nil
	}
	return "", false, repository.ErrAlertNotFound
}

func (r *memAlertRepo) DeleteAlert(ctx context.Context, id string) error {
	for i, a := range r.alerts {
		if a.ID == id {
			r.alerts = append(r.alerts[:i], r.alerts[i+1:]...)
			return nil
		}
	}
	return repository.ErrAlertNotFound
}

func newAlertRouter(repo service.AlertRepository) *Router {
	router := NewRouter(zap.NewNop())
	router.RegisterAlertRoutes(NewAlertHandler(service.NewAlertService(repo, zap.NewNop()), zap.NewNop()))
	return router
}

func seedAlerts() *memAlertRepo {
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	return &memAlertRepo{alerts: []*models.Alert{
		{ID: "a-2", PatientID: "p-1", Position: "left", HeldDuration: 11, Status: models.AlertStatusPending, Timestamp: ts, SourceTime: 11, Type: models.AlertTypeNoMovement},
		{ID: "a-1", PatientID: "p-1", Position: "left", HeldDuration: 5, Status: models.AlertStatusPending, Timestamp: ts, SourceTime: 5, Type: models.AlertTypeNoMovement},
	}}
}

func TestAlerts_ListAndAcknowledge(t *testing.T) {
	router := newAlertRouter(seedAlerts())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/alerts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Alerts []models.Alert `json:"alerts"`
		Total  int            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, "a-2", list.Alerts[0].ID)

	ack := func(body string) map[string]any {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/alert/acknowledge", strings.NewReader(body)))
		require.Equal(t, http.StatusOK, rec.Code)
		var out map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		return out
	}

	first := ack(`{"id":"a-1","acknowledgedBy":"Nurse Kim"}`)
	assert.Equal(t, false, first["already_acknowledged"])
	assert.Equal(t, "Alert a-1 acknowledged by Nurse Kim", first["message"])

	second := ack(`{"id":"a-1","acknowledged_by":"Dr. Ortiz"}`)
	assert.Equal(t, true, second["already_acknowledged"])
	assert.Equal(t, "Nurse Kim", second["acknowledged_by"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/alerts?status=pending", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/alert/acknowledge", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No alert ID provided", decodeError(t, rec))
}

func TestAlerts_EmptyListIsArray(t *testing.T) {
	router := newAlertRouter(&memAlertRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/alerts", nil))
	assert.JSONEq(t, `{"alerts":[],"total":0}`, rec.Body.String())
}

func TestAlerts_Delete(t *testing.T) {
	router := newAlertRouter(seedAlerts())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/alert/a-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/alert/a-1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/alert/a-2", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAlerts_Disabled(t *testing.T) {
	router := newAlertRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/alerts", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAlerts_RepositoryFailure(t *testing.T) {
	router := newAlertRouter(&memAlertRepo{err: errors.New("db down")})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/alerts", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAlerts_Export(t *testing.T) {
	router := newAlertRouter(seedAlerts())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/alerts/export", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(alertsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, AlertsExportHeader[0], rows[0][0])
	assert.Equal(t, "a-2", rows[1][0])
	assert.Equal(t, "00:11", rows[1][7])
}

func TestPositions(t *testing.T) {
	recorder := notifier.NewPositionRecorder(nil, store.NewMemoryKV(), "pp:", time.Minute, zap.NewNop())
	recorder.Record(context.Background(), models.PositionObservation{
		SessionID: "s-1", PatientID: "p-1", Label: "left", Confidence: 0.7, ObservedAt: time.Now(),
	})
	router := NewRouter(zap.NewNop())
	router.RegisterPositionRoutes(NewPositionHandler(service.NewPositionService(recorder, nil), zap.NewNop()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions/p-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var res Result[models.LatestPosition]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, ResultSuccess, res.Code)
	assert.Equal(t, "left", res.Result.Label)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions/p-404", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list Result[[]models.LatestPosition]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Result, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions/p-1/timeline", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
