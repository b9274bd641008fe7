package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrConsumerGone 客户端已断开（写失败或请求被取消）
var ErrConsumerGone = errors.New("stream consumer gone")

// Emitter 以 NDJSON 逐条写出事件，每条写完立即 flush
type Emitter struct {
	w       io.Writer
	flusher http.Flusher
	count   int
	err     error
}

// NewEmitter 创建事件输出器；w 实现 http.Flusher 时逐条 flush
func NewEmitter(w io.Writer) *Emitter {
	e := &Emitter{w: w}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// Emit 写出一条事件；写失败后所有后续调用都返回 ErrConsumerGone
func (e *Emitter) Emit(event any) error {
	if e.err != nil {
		return e.err
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %w", err)
	}
	line = append(line, '\n')

	if _, err := e.w.Write(line); err != nil {
		e.err = fmt.Errorf("%w: %v", ErrConsumerGone, err)
		return e.err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	e.count++
	return nil
}

// Count 已成功写出的事件数
func (e *Emitter) Count() int {
	return e.count
}
