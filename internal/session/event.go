package session

import (
	"time"

	"github.com/hamptokr/dragon-dmc/internal/protocol/dmc"
)

// EventKind 会话事件类型
type EventKind uint8

const (
	// EventStrayResponse 解码成功但 id 不匹配任何在途请求
	EventStrayResponse EventKind = iota + 1
	// EventFrameError 帧错误（已在重同步中恢复）
	EventFrameError
)

func (k EventKind) String() string {
	switch k {
	case EventStrayResponse:
		return "stray_response"
	case EventFrameError:
		return "frame_error"
	}
	return "unknown"
}

// Event 推送给应用的未关联帧或帧错误
type Event struct {
	Kind    EventKind
	Message *dmc.Message
	Header  *dmc.Header
	Err     error
	At      time.Time
}
