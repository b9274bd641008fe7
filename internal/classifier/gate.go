package classifier

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/sync/semaphore"
)

// Gate 限制同时进行的推理数量，多会话共享同一个 Gate
type Gate struct {
	next Classifier
	sem  *semaphore.Weighted
}

// NewGate 创建并发闸门（maxConcurrent <= 0 时为 1）
func NewGate(next Classifier, maxConcurrent int64) *Gate {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Gate{
		next: next,
		sem:  semaphore.NewWeighted(maxConcurrent),
	}
}

// Classify 获取令牌后调用下游分类器；ctx 取消时放弃等待
func (g *Gate) Classify(ctx context.Context, img *image.Gray) (Prediction, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return Prediction{}, fmt.Errorf("waiting for classifier slot: %w", err)
	}
	defer g.sem.Release(1)

	return g.next.Classify(ctx, img)
}

// Status 状态查询不占用令牌
func (g *Gate) Status(ctx context.Context) (Status, error) {
	return g.next.Status(ctx)
}
