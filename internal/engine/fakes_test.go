package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"sync"
	"testing"
	"time"

	"posture-monitor/internal/classifier"
	"posture-monitor/internal/models"
	"posture-monitor/internal/source"

	"github.com/stretchr/testify/require"
)

// labelTable 灰度像素值 -> 标签，fakeSource 与 fakeClassifier 共用
var labelTable = []string{"", "A", "B", "supine", "left", "right"}

func labelCode(label string) uint8 {
	for i, l := range labelTable {
		if l == label {
			return uint8(i)
		}
	}
	panic("unknown label " + label)
}

// fakeSource 按脚本输出帧；timestamps 为空时按 index/fps 推算
type fakeSource struct {
	desc       source.Descriptor
	labels     []string
	timestamps []float64
	// decodeFailAt >= 0 时该帧解码失败
	decodeFailAt int64
	// blockAt >= 0 时在该帧阻塞直到 ctx 取消
	blockAt int64

	pos     int64
	current int64
	closed  int
	mu      sync.Mutex
}

func newFakeSource(fps float64, labels ...string) *fakeSource {
	return &fakeSource{
		desc:         source.NewDescriptor("/tmp/fake.mp4", source.KindFile, fps, float64(len(labels)), source.DefaultFallbackFPS),
		labels:       labels,
		decodeFailAt: -1,
		blockAt:      -1,
		current:      -1,
	}
}

// perSecond 每秒一帧的标签序列
func perSecond(labels ...string) *fakeSource {
	return newFakeSource(1, labels...)
}

func (f *fakeSource) Descriptor() source.Descriptor { return f.desc }

func (f *fakeSource) Next(ctx context.Context) (source.Frame, error) {
	if err := ctx.Err(); err != nil {
		return source.Frame{}, err
	}
	if f.blockAt >= 0 && f.pos == f.blockAt {
		<-ctx.Done()
		return source.Frame{}, ctx.Err()
	}
	if f.pos >= int64(len(f.labels)) {
		return source.Frame{}, io.EOF
	}
	idx := f.pos
	f.pos++
	f.current = idx

	ts := float64(idx) / f.desc.NominalFPS
	if len(f.timestamps) > 0 {
		ts = f.timestamps[idx]
	}
	return source.Frame{Index: idx, Timestamp: ts}, nil
}

func (f *fakeSource) Decode() (image.Image, error) {
	if f.current < 0 {
		return nil, source.ErrDecodeFault
	}
	if f.decodeFailAt >= 0 && f.current == f.decodeFailAt {
		return nil, source.ErrDecodeFault
	}
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	img.Pix[0] = labelCode(f.labels[f.current])
	return img, nil
}

func (f *fakeSource) Seek(frameIndex int64) error {
	f.pos = frameIndex
	f.current = -1
	return nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSource) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeOpener 返回预置来源或错误
type fakeOpener struct {
	src    source.Source
	err    error
	opened []string
	mu     sync.Mutex
}

func (o *fakeOpener) Open(ctx context.Context, src string) (source.Source, error) {
	o.mu.Lock()
	o.opened = append(o.opened, src)
	o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	return o.src, nil
}

// fakeClassifier 根据像素值还原标签
type fakeClassifier struct {
	notLoaded bool
	failAfter int // > 0 时第 failAfter 次调用开始失败
	calls     int
	mu        sync.Mutex
}

func (c *fakeClassifier) Classify(ctx context.Context, img *image.Gray) (classifier.Prediction, error) {
	c.mu.Lock()
	c.calls++
	calls := c.calls
	c.mu.Unlock()
	if c.failAfter > 0 && calls >= c.failAfter {
		return classifier.Prediction{}, errors.New("inference backend crashed")
	}
	label := labelTable[img.Pix[0]]
	return classifier.Prediction{Label: label, Confidence: 0.9, Probabilities: map[string]float64{label: 0.9}}, nil
}

func (c *fakeClassifier) Status(ctx context.Context) (classifier.Status, error) {
	return classifier.Status{ModelLoaded: !c.notLoaded, Classes: classifier.DefaultClasses}, nil
}

// fakeSink 记录告警，可模拟持久化失败
type fakeSink struct {
	err    error
	alerts []*models.Alert
	mu     sync.Mutex
}

func (s *fakeSink) Persist(ctx context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return s.err
}

// fakeRecorder 记录观测；delay > 0 时每次写入按真实时间阻塞
type fakeRecorder struct {
	delay        time.Duration
	observations []models.PositionObservation
	mu           sync.Mutex
}

func (r *fakeRecorder) Record(ctx context.Context, obs models.PositionObservation) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observations = append(r.observations, obs)
}

func (r *fakeRecorder) recorded() []models.PositionObservation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.PositionObservation(nil), r.observations...)
}

// fakeClock 的 Sleep 立即推进时间
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
	mu     sync.Mutex
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingWriter 前 okWrites 次写成功，之后失败
type failingWriter struct {
	bytes.Buffer
	okWrites int
	writes   int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > w.okWrites {
		return 0, errors.New("broken pipe")
	}
	return w.Buffer.Write(p)
}

// decodeEvents 解析 NDJSON 输出
func decodeEvents(t *testing.T, data []byte) []models.StreamEvent {
	t.Helper()
	var events []models.StreamEvent
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var ev models.StreamEvent
		require.NoError(t, json.Unmarshal(line, &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}

func eventsOfType(events []models.StreamEvent, typ string) []models.StreamEvent {
	var out []models.StreamEvent
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func repeat(label string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = label
	}
	return out
}
