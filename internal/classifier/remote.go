package classifier

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// classifyResponse 推理服务 /classify 响应
type classifyResponse struct {
	Prediction    string             `json:"prediction"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
	Error         string             `json:"error"`
}

// healthResponse 推理服务 /health 响应
type healthResponse struct {
	Status      string   `json:"status"`
	ModelLoaded bool     `json:"model_loaded"`
	Classes     []string `json:"classes"`
}

// RemoteClassifier 通过 HTTP 调用推理服务
type RemoteClassifier struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewRemoteClassifier 创建推理服务客户端
func NewRemoteClassifier(baseURL string, timeout time.Duration, retryCount int, logger *zap.Logger) *RemoteClassifier {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(1 * time.Second).
		SetHeader("Accept", "application/json")

	return &RemoteClassifier{
		httpClient: client,
		logger:     logger,
	}
}

// Classify 以 PNG 请求体上传灰度图并返回分类结果
func (c *RemoteClassifier) Classify(ctx context.Context, img *image.Gray) (Prediction, error) {
	if img == nil {
		return Prediction{}, fmt.Errorf("nil image")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Prediction{}, fmt.Errorf("failed to encode frame: %w", err)
	}

	var response classifyResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "image/png").
		SetBody(buf.Bytes()).
		SetResult(&response).
		SetError(&response).
		Post("/classify")
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to call classifier: %w", err)
	}
	if resp.IsError() {
		msg := response.Error
		if msg == "" {
			msg = resp.Status()
		}
		c.logger.Warn("Classifier returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("error", msg),
		)
		return Prediction{}, fmt.Errorf("classifier error: %s (status: %d)", msg, resp.StatusCode())
	}
	if response.Prediction == "" {
		return Prediction{}, fmt.Errorf("classifier returned empty prediction")
	}

	return Prediction{
		Label:         response.Prediction,
		Confidence:    clampConfidence(response.Confidence),
		Probabilities: response.Probabilities,
	}, nil
}

// Status 查询推理服务模型状态
func (c *RemoteClassifier) Status(ctx context.Context) (Status, error) {
	var response healthResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&response).
		Get("/health")
	if err != nil {
		return Status{}, fmt.Errorf("failed to call classifier health: %w", err)
	}
	if resp.IsError() {
		return Status{}, fmt.Errorf("classifier health returned status %d", resp.StatusCode())
	}

	classes := response.Classes
	if len(classes) == 0 {
		classes = DefaultClasses
	}
	return Status{ModelLoaded: response.ModelLoaded, Classes: classes}, nil
}

func clampConfidence(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
