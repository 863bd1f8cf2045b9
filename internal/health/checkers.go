package health

import (
	"context"
	"sync/atomic"

	"github.com/hamptokr/dragon-dmc/internal/link"
	"github.com/hamptokr/dragon-dmc/internal/session"
)

// LinkChecker 写端口熔断状态：open 不健康，half_open 降级
func LinkChecker(stats func() link.Stats) Checker {
	return CheckerFunc{CheckName: "link", Fn: func(context.Context) CheckResult {
		st := stats()
		res := CheckResult{Status: StatusHealthy, Message: "ok", Details: map[string]any{
			"breaker":      st.Breaker,
			"write_errors": st.WriteErrors,
			"queued":       st.Queued,
		}}
		switch st.Breaker {
		case "open":
			res.Status, res.Message = StatusUnhealthy, "port writes failing"
		case "half_open":
			res.Status, res.Message = StatusDegraded, "probing port"
		}
		return res
	}}
}

// SessionChecker 会话是否已握手；最近的检查窗口内出现超时则降级
func SessionChecker(stats func() session.Stats, handshaken func() bool) Checker {
	var lastTimeouts atomic.Uint64
	return CheckerFunc{CheckName: "session", Fn: func(context.Context) CheckResult {
		st := stats()
		res := CheckResult{Status: StatusHealthy, Message: "ok", Details: map[string]any{
			"in_flight": st.InFlight,
			"queued":    st.Queued,
			"timeouts":  st.Timeouts,
			"retries":   st.Retries,
		}}
		newTimeouts := st.Timeouts - lastTimeouts.Swap(st.Timeouts)
		switch {
		case st.Closed:
			res.Status, res.Message = StatusUnhealthy, "session closed"
		case !handshaken():
			res.Status, res.Message = StatusUnhealthy, "waiting for device hello"
		case newTimeouts > 0:
			res.Status, res.Message = StatusDegraded, "requests timing out"
		}
		return res
	}}
}
