package session

import (
	"context"

	"github.com/hamptokr/dragon-dmc/internal/protocol/dmc"
)

// Request 已提交请求的句柄，结果只会被设置一次
type Request struct {
	id   uint32
	typ  dmc.MessageType
	s    *Session
	done chan struct{}

	// done 关闭之后只读
	msg dmc.Message
	err error
}

// ID 请求在线路上使用的帧 id
func (r *Request) ID() uint32 { return r.id }

func (r *Request) Type() dmc.MessageType { return r.typ }

// Done 请求结束（应答、超时、取消、会话关闭）时关闭
func (r *Request) Done() <-chan struct{} { return r.done }

// Result 非阻塞读取结果，未结束时返回 ErrPending
func (r *Request) Result() (dmc.Message, error) {
	select {
	case <-r.done:
		return r.msg, r.err
	default:
		return dmc.Message{}, ErrPending
	}
}

// Wait 阻塞等待结果；ctx 结束时取消请求
func (r *Request) Wait(ctx context.Context) (dmc.Message, error) {
	select {
	case <-r.done:
		return r.msg, r.err
	case <-ctx.Done():
		if r.Cancel() {
			return dmc.Message{}, ctx.Err()
		}
		<-r.done
		return r.msg, r.err
	}
}

// Cancel 取消尚未结束的请求，之后到达的应答按 stray 处理。
// 请求已结束时返回 false
func (r *Request) Cancel() bool { return r.s.cancel(r) }

func (r *Request) resolve(msg dmc.Message, err error) {
	r.msg = msg
	r.err = err
	close(r.done)
}
