package watch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"posture-monitor/internal/models"

	"github.com/go-resty/resty/v2"
)

// Target 监测对象：直播流地址或本地视频文件（二选一）
type Target struct {
	URL         string
	File        string
	PatientID   string
	PatientName string
}

// Describe 界面标题用
func (t Target) Describe() string {
	if t.URL != "" {
		return t.URL
	}
	return t.File
}

// StreamClient 调用 posture-monitor 的流式分析接口
type StreamClient struct {
	client *resty.Client
}

// NewStreamClient 流式响应不设超时，由 ctx 取消
func NewStreamClient(baseURL string) *StreamClient {
	return &StreamClient{
		client: resty.New().SetBaseURL(strings.TrimRight(baseURL, "/")),
	}
}

// Open 发起分析请求，返回逐行读取的事件流
func (c *StreamClient) Open(ctx context.Context, target Target) (*EventStream, error) {
	req := c.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)

	var (
		resp *resty.Response
		err  error
	)
	switch {
	case target.URL != "":
		resp, err = req.
			SetHeader("Content-Type", "application/json").
			SetBody(map[string]string{
				"url":         target.URL,
				"patientId":   target.PatientID,
				"patientName": target.PatientName,
			}).
			Post("/stream_rtsp_analysis")
	case target.File != "":
		resp, err = req.
			SetFile("file", target.File).
			SetFormData(map[string]string{
				"patientId":   target.PatientID,
				"patientName": target.PatientName,
			}).
			Post("/stream_video_analysis")
	default:
		return nil, errors.New("either a stream URL or a video file is required")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start stream: %w", err)
	}

	body := resp.RawBody()
	if resp.StatusCode() != http.StatusOK {
		defer body.Close()
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode(), errorMessage(body))
	}
	return NewEventStream(body), nil
}

// errorMessage 解析 {"error": "..."}，否则返回原文
func errorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(data))
}

// EventStream NDJSON 事件读取
type EventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func NewEventStream(body io.ReadCloser) *EventStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	return &EventStream{body: body, scanner: scanner}
}

// Next 读取下一条事件；流结束返回 io.EOF
func (s *EventStream) Next() (models.StreamEvent, error) {
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev models.StreamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return models.StreamEvent{}, fmt.Errorf("malformed event: %w", err)
		}
		return ev, nil
	}
	if err := s.scanner.Err(); err != nil {
		return models.StreamEvent{}, err
	}
	return models.StreamEvent{}, io.EOF
}

func (s *EventStream) Close() error {
	return s.body.Close()
}
