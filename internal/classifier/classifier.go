// Package classifier 体位分类端口：灰度图 -> (标签, 置信度, 概率分布)
package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// ErrClassifierUnavailable 模型未加载或推理服务不可达
// 必须在会话开始前检测，不会在流中途出现
var ErrClassifierUnavailable = errors.New("classifier unavailable")

// DefaultClasses 默认体位类别
var DefaultClasses = []string{"supine", "left", "right"}

// Prediction 单次分类结果
type Prediction struct {
	Label         string             `json:"label"`
	Confidence    float64            `json:"confidence"` // [0,1]
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
}

// Status 模型状态
type Status struct {
	ModelLoaded bool     `json:"model_loaded"`
	Classes     []string `json:"classes"`
}

// Classifier 同步、无副作用的分类器，可被多个会话并发调用
type Classifier interface {
	Classify(ctx context.Context, img *image.Gray) (Prediction, error)
	Status(ctx context.Context) (Status, error)
}

// CheckReady 模型可用时返回 nil，否则返回包装了 ErrClassifierUnavailable 的错误
func CheckReady(ctx context.Context, c Classifier) error {
	if c == nil {
		return fmt.Errorf("%w: no classifier configured", ErrClassifierUnavailable)
	}
	st, err := c.Status(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}
	if !st.ModelLoaded {
		return fmt.Errorf("%w: model not loaded", ErrClassifierUnavailable)
	}
	return nil
}
