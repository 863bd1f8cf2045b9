package health

import (
	"context"
	"sync"
	"time"
)

// Aggregator 汇总链路、会话等检查项
type Aggregator struct {
	mu       sync.RWMutex
	checkers []Checker
	now      func() time.Time
}

func NewAggregator(checkers ...Checker) *Aggregator {
	return &Aggregator{checkers: checkers, now: time.Now}
}

// AddChecker 追加检查项
func (a *Aggregator) AddChecker(c Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers = append(a.checkers, c)
}

// Report 健康报告
type Report struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Check 并发执行所有检查，整体状态取最差一项
func (a *Aggregator) Check(ctx context.Context) Report {
	a.mu.RLock()
	checkers := append([]Checker(nil), a.checkers...)
	a.mu.RUnlock()

	results := make([]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			start := a.now()
			r := c.Check(ctx)
			if r.Latency == 0 {
				r.Latency = a.now().Sub(start)
			}
			results[i] = r
		}(i, c)
	}
	wg.Wait()

	rep := Report{Status: StatusHealthy, Timestamp: a.now(), Checks: make(map[string]CheckResult, len(checkers))}
	for i, c := range checkers {
		r := results[i]
		rep.Checks[c.Name()] = r
		if r.Status.severity() > rep.Status.severity() {
			rep.Status = r.Status
		}
	}
	return rep
}
