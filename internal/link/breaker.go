package link

import (
	"errors"
	"sync"
	"time"
)

// BreakerState 写端口熔断状态
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // 正常写出
	BreakerOpen                         // 端口疑似断开，直接拒绝写
	BreakerHalfOpen                     // 冷却结束，放行一帧试探
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrPortDown 连续写失败后熔断
var ErrPortDown = errors.New("link: port down")

// Breaker 连续写失败达到阈值后熔断，冷却后半开试探
type Breaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	openedAt  time.Time
	probing   bool
	tripCount int64

	threshold int
	cooldown  time.Duration
	now       func() time.Time

	onStateChange func(from, to BreakerState)
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 2 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// SetOnStateChange 状态变化回调，在锁内调用，不要阻塞
func (b *Breaker) SetOnStateChange(fn func(from, to BreakerState)) {
	b.mu.Lock()
	b.onStateChange = fn
	b.mu.Unlock()
}

// Allow 写之前调用
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrPortDown
		}
		b.transition(BreakerHalfOpen)
		b.probing = true
		return nil
	default:
		if b.probing {
			return ErrPortDown
		}
		b.probing = true
		return nil
	}
}

// Record 写之后调用
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	if err == nil {
		b.failures = 0
		if b.state != BreakerClosed {
			b.transition(BreakerClosed)
		}
		return
	}
	b.failures++
	if b.state == BreakerHalfOpen || (b.state == BreakerClosed && b.failures >= b.threshold) {
		b.openedAt = b.now()
		b.tripCount++
		b.transition(BreakerOpen)
	}
}

// Rejecting 熔断且仍在冷却期
func (b *Breaker) Rejecting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == BreakerOpen && b.now().Sub(b.openedAt) < b.cooldown
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) TripCount() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripCount
}

func (b *Breaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	if b.onStateChange != nil && from != to {
		b.onStateChange(from, to)
	}
}
