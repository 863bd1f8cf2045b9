package session

import (
	"time"

	"github.com/hamptokr/dragon-dmc/internal/protocol/dmc"
)

// 请求结束的结果标签
const (
	OutcomeOK       = "ok"
	OutcomeTimeout  = "timeout"
	OutcomeCanceled = "canceled"
	OutcomeClosed   = "closed"
)

// Observer 会话指标回调，实现方需自行保证并发安全
type Observer interface {
	OnSend(t dmc.MessageType, retry bool)
	OnResolve(t dmc.MessageType, outcome string, rtt time.Duration)
	OnFrame(ev dmc.FrameEvent)
	OnStray(m dmc.Message)
	OnInFlight(n int)
}

type nopObserver struct{}

func (nopObserver) OnSend(dmc.MessageType, bool)                     {}
func (nopObserver) OnResolve(dmc.MessageType, string, time.Duration) {}
func (nopObserver) OnFrame(dmc.FrameEvent)                           {}
func (nopObserver) OnStray(dmc.Message)                              {}
func (nopObserver) OnInFlight(int)                                   {}

func NopObserver() Observer { return nopObserver{} }
