package engine

import (
	"context"
	"time"
)

// Clock 时间源，测试中替换为假时钟
type Clock interface {
	Now() time.Time
	// Sleep 等待 d，ctx 取消时提前返回 ctx.Err()
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock 系统时钟
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Pacer 让录像按真实时间速度输出：源时间超前于墙钟时等待
// 只会晚发，不会早发
type Pacer struct {
	clock Clock
	start time.Time
}

// NewPacer 创建节拍器，start 取创建时刻
func NewPacer(clock Clock) *Pacer {
	if clock == nil {
		clock = RealClock()
	}
	return &Pacer{clock: clock, start: clock.Now()}
}

// Wait 阻塞到墙钟经过 ts 秒；已落后时立即返回
func (p *Pacer) Wait(ctx context.Context, ts float64) (time.Duration, error) {
	elapsed := p.clock.Now().Sub(p.start)
	target := time.Duration(ts * float64(time.Second))
	if target <= elapsed {
		return 0, ctx.Err()
	}
	delay := target - elapsed
	if err := p.clock.Sleep(ctx, delay); err != nil {
		return 0, err
	}
	return delay, nil
}

// Elapsed 自开始以来的墙钟时间
func (p *Pacer) Elapsed() time.Duration {
	return p.clock.Now().Sub(p.start)
}
