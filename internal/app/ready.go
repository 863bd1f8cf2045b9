package app

import "sync/atomic"

// Ready 就绪状态：链路已运行且设备已完成 MSG_HI 握手
type Ready struct {
	link  atomic.Bool
	hello atomic.Bool
}

func NewReady() *Ready { return &Ready{} }

func (r *Ready) SetLinkReady(v bool)  { r.link.Store(v) }
func (r *Ready) SetHelloReady(v bool) { r.hello.Store(v) }

func (r *Ready) Ready() bool { return r.link.Load() && r.hello.Load() }
