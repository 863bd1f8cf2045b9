package dmc

import "sync"

// Handler 消息处理器
type Handler func(m Message) error

// Router 路由表（type -> handler），用于设备主动上报等未关联请求的帧
type Router struct {
	mu       sync.RWMutex
	handlers map[MessageType]Handler
	fallback Handler
}

func NewRouter() *Router { return &Router{handlers: make(map[MessageType]Handler)} }

func (r *Router) Register(t MessageType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

// SetFallback 未注册类型的处理器
func (r *Router) SetFallback(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = h
}

// Route 分发消息，没有处理器时返回 nil
func (r *Router) Route(m Message) error {
	r.mu.RLock()
	h := r.handlers[m.Type]
	if h == nil {
		h = r.fallback
	}
	r.mu.RUnlock()
	if h == nil {
		return nil
	}
	return h(m)
}
