package source

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable 无法打开来源，不自动重试
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrDecodeFault 读取过程中帧解码失败，会话就此终止
	ErrDecodeFault = errors.New("frame decode fault")
)

// OpenError 打开失败，携带调用方传入的原始来源
type OpenError struct {
	Source string
	Err    error
}

func (e *OpenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Could not open source: %s (%v)", e.Source, e.Err)
	}
	return fmt.Sprintf("Could not open source: %s", e.Source)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// Is 使 errors.Is(err, ErrSourceUnavailable) 成立
func (e *OpenError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

// NewOpenError 创建打开失败错误
func NewOpenError(src string, err error) *OpenError {
	return &OpenError{Source: src, Err: err}
}
