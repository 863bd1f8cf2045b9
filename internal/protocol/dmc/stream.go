package dmc

import (
	"bytes"
	"fmt"
)

// State 流式解码器状态
type State uint8

const (
	// Seeking 扫描下一个 "DF" marker
	Seeking State = iota
	// Accumulating 已定位候选帧，等待声明长度的字节到齐
	Accumulating
)

func (s State) String() string {
	if s == Accumulating {
		return "accumulating"
	}
	return "seeking"
}

// FrameEvent 流式解码产出：成功解码的消息或帧错误
type FrameEvent struct {
	Message *Message
	Err     error
	// Header 帧头可读但帧无效时（如校验失败）填充
	Header *Header
}

// Decoded 是否为成功解码的消息
func (e FrameEvent) Decoded() bool { return e.Message != nil }

// Reassembler 处理半包/粘包与损坏数据的流式解码器。
// 只保存当前未完成的一帧；Feed 必须由单一生产者调用
type Reassembler struct {
	codec *Codec
	buf   []byte
	state State
}

// NewReassembler 创建流式解码器，codec 为 nil 时使用默认编解码器
func NewReassembler(codec *Codec) *Reassembler {
	if codec == nil {
		codec = DefaultCodec()
	}
	return &Reassembler{codec: codec, buf: make([]byte, 0, MaxFrameLen)}
}

// Feed 追加数据并尽可能解出多帧
func (r *Reassembler) Feed(p []byte) []FrameEvent {
	r.buf = append(r.buf, p...)
	var events []FrameEvent

	for len(r.buf) > 0 {
		if r.state == Seeking {
			start := bytes.Index(r.buf, marker)
			if start < 0 {
				// 保留末尾的 'D'，应对跨边界的 marker
				keep := 0
				if r.buf[len(r.buf)-1] == marker[0] {
					keep = 1
				}
				if skipped := len(r.buf) - keep; skipped > 0 {
					events = append(events, FrameEvent{Err: fmt.Errorf("%w: skipped %d bytes", ErrBadMarker, skipped)})
					r.buf = append(r.buf[:0], r.buf[skipped:]...)
				}
				return events
			}
			if start > 0 {
				events = append(events, FrameEvent{Err: fmt.Errorf("%w: skipped %d bytes", ErrBadMarker, start)})
				r.buf = r.buf[start:]
			}
			r.state = Accumulating
		}

		res := r.codec.Decode(r.buf)
		switch res.Status {
		case Incomplete:
			return events
		case Complete:
			msg := res.Message
			events = append(events, FrameEvent{Message: &msg})
			r.buf = r.buf[res.Consumed:]
		default:
			ev := FrameEvent{Err: res.Err}
			if res.HasHeader {
				h := res.Header
				ev.Header = &h
			}
			events = append(events, ev)
			// 只丢弃1字节后重新同步，避免一帧内的损坏影响后续数据
			r.buf = r.buf[1:]
		}
		r.state = Seeking
	}
	r.buf = r.buf[:0]
	return events
}

// Reset 丢弃未完成的帧
func (r *Reassembler) Reset() {
	r.buf = r.buf[:0]
	r.state = Seeking
}

// Buffered 当前缓存的字节数
func (r *Reassembler) Buffered() int { return len(r.buf) }

func (r *Reassembler) State() State { return r.state }
