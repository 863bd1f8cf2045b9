package link

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Pacer 按帧数限制写出速率，避免压满设备端接收缓冲
type Pacer struct {
	limiter     *rate.Limiter
	framesPerS  int
	burst       int
	passedCount atomic.Int64
	waitedCount atomic.Int64
}

// NewPacer framesPerSec<=0 表示不限速
func NewPacer(framesPerSec, burst int) *Pacer {
	if framesPerSec <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{
		limiter:    rate.NewLimiter(rate.Limit(framesPerSec), burst),
		framesPerS: framesPerSec,
		burst:      burst,
	}
}

// Wait 阻塞直到允许写出下一帧
func (p *Pacer) Wait(ctx context.Context) error {
	if p.limiter.Allow() {
		p.passedCount.Add(1)
		return nil
	}
	p.waitedCount.Add(1)
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	p.passedCount.Add(1)
	return nil
}

// PacerStats 写出限速统计
type PacerStats struct {
	FramesPerSecond int   `json:"frames_per_second"`
	Burst           int   `json:"burst"`
	Passed          int64 `json:"passed"`
	Waited          int64 `json:"waited"`
}

func (p *Pacer) Stats() PacerStats {
	return PacerStats{
		FramesPerSecond: p.framesPerS,
		Burst:           p.burst,
		Passed:          p.passedCount.Load(),
		Waited:          p.waitedCount.Load(),
	}
}
