package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/hamptokr/dragon-dmc/internal/protocol/dmc"
)

const (
	defaultAckTimeout = 500 * time.Millisecond
	defaultRetries    = 2
)

// Option 会话配置项
type Option func(*Session)

// WithCodec 替换编解码器（注册表、校验算法）
func WithCodec(c *dmc.Codec) Option {
	return func(s *Session) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithAckTimeout 单次发送等待应答的超时
func WithAckTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetries 超时后重发次数（不含首次发送）
func WithRetries(n uint8) Option {
	return func(s *Session) { s.retries = n }
}

// WithMaxInFlight 同时在途的请求数。默认1：协议未确认支持流水线，其余请求排队
func WithMaxInFlight(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxInFlight = n
		}
	}
}

// WithFirstID 第一个请求使用的 id
func WithFirstID(id uint32) Option {
	return func(s *Session) { s.nextID = id - 1 }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.obs = o
		}
	}
}

// WithEventHandler 接收未关联的帧与帧错误，在锁外调用
func WithEventHandler(h func(Event)) Option {
	return func(s *Session) { s.onEvent = h }
}

// WithRouter 设备主动发起的命令帧（非 ACK）按 type 路由
func WithRouter(r *dmc.Router) Option {
	return func(s *Session) { s.router = r }
}

// WithAutoAck 对设备主动发起的命令帧自动回 ACK：已知类型 Ok，未知类型 ErrUnsupported
func WithAutoAck(enable bool) Option {
	return func(s *Session) { s.autoAck = enable }
}

// WithSessionID 日志关联用的会话标识，默认随机 uuid
func WithSessionID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithNow 注入时钟（测试用）
func WithNow(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}
