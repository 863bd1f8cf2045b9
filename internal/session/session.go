package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamptokr/dragon-dmc/internal/protocol/dmc"
)

// Writer 帧发送通道（串口、模拟器、测试桩）。
// WriteBytes 内不得同步回调同一会话的 OnBytes
type Writer interface {
	WriteBytes(p []byte) error
}

// WriterFunc 函数适配 Writer
type WriterFunc func(p []byte) error

func (f WriterFunc) WriteBytes(p []byte) error { return f(p) }

type pending struct {
	req         *Request
	frame       []byte
	retriesLeft uint8
	inFlight    bool
	firstSentAt time.Time
	deadline    time.Time
	// removed 出表后置位，写出前检查，已结束的请求不再上线
	removed atomic.Bool
}

// outFrame 待写出的帧；pr 为空表示自动应答
type outFrame struct {
	pr    *pending
	frame []byte
}

// Stats 会话计数快照
type Stats struct {
	SessionID   string `json:"session_id"`
	Sent        uint64 `json:"sent"`
	Retries     uint64 `json:"retries"`
	Resolved    uint64 `json:"resolved"`
	Timeouts    uint64 `json:"timeouts"`
	Canceled    uint64 `json:"canceled"`
	Stray       uint64 `json:"stray"`
	FrameErrors uint64 `json:"frame_errors"`
	WriteErrors uint64 `json:"write_errors"`
	AutoAcks    uint64 `json:"auto_acks"`
	InFlight    int    `json:"in_flight"`
	Queued      int    `json:"queued"`
	Closed      bool   `json:"closed"`
}

// Session 主机侧请求/应答关联：分配 id、维护在途表与排队、超时重发
type Session struct {
	id          string
	w           Writer
	codec       *dmc.Codec
	log         *zap.Logger
	obs         Observer
	onEvent     func(Event)
	router      *dmc.Router
	autoAck     bool
	now         func() time.Time
	timeout     time.Duration
	retries     uint8
	maxInFlight int

	feedMu sync.Mutex
	reasm  *dmc.Reassembler

	// writeMu 在释放 mu 之前获取，帧按调度顺序写出
	writeMu     sync.Mutex
	writeErrors atomic.Uint64

	mu       sync.Mutex
	closed   bool
	nextID   uint32
	requests map[uint32]*pending
	queue    []*pending
	inFlight int
	stats    Stats
}

// New 创建会话，w 负责把帧写到设备
func New(w Writer, opts ...Option) *Session {
	s := &Session{
		id:          uuid.NewString(),
		w:           w,
		codec:       dmc.DefaultCodec(),
		log:         zap.NewNop(),
		obs:         nopObserver{},
		now:         time.Now,
		timeout:     defaultAckTimeout,
		retries:     defaultRetries,
		maxInFlight: 1,
		requests:    make(map[uint32]*pending),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("session_id", s.id))
	s.reasm = dmc.NewReassembler(s.codec)
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Codec() *dmc.Codec { return s.codec }

// Send 编码并提交请求。编码失败直接返回错误，不发送任何字节。
// 在途数已满时请求进入 FIFO 队列，id 在此时就已分配
func (s *Session) Send(ctx context.Context, p dmc.Payload) (*Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, dmc.ErrUnknownKind
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	id := s.allocIDLocked()
	frame, err := s.codec.Encode(id, p)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	req := &Request{id: id, typ: p.Type(), s: s, done: make(chan struct{})}
	pr := &pending{req: req, frame: frame, retriesLeft: s.retries}
	s.requests[id] = pr

	var out []outFrame
	if s.inFlight < s.maxInFlight {
		out = append(out, s.dispatchLocked(pr, s.now()))
	} else {
		s.queue = append(s.queue, pr)
		s.log.Debug("request queued", zap.Uint32("id", id), zap.String("type", req.typ.String()), zap.Int("queued", len(s.queue)))
	}
	s.unlockAndWrite(out)
	return req, nil
}

// Call 发送并等待结果
func (s *Session) Call(ctx context.Context, p dmc.Payload) (dmc.Message, error) {
	req, err := s.Send(ctx, p)
	if err != nil {
		return dmc.Message{}, err
	}
	return req.Wait(ctx)
}

// Hello 发送 MSG_HI 并返回设备能力
func (s *Session) Hello(ctx context.Context) (dmc.HiResponse, error) {
	msg, err := s.Call(ctx, dmc.HiRequest{})
	if err != nil {
		return dmc.HiResponse{}, err
	}
	hi, ok := msg.Payload.(dmc.HiResponse)
	if !ok {
		if code, isAck := msg.ResponseCode(); isAck {
			return dmc.HiResponse{}, fmt.Errorf("%w: hi answered with %s", ErrUnexpectedPayload, code)
		}
		return dmc.HiResponse{}, fmt.Errorf("%w: %T", ErrUnexpectedPayload, msg.Payload)
	}
	return hi, nil
}

// OnBytes 串口读到的原始字节
func (s *Session) OnBytes(p []byte) {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	for _, ev := range s.reasm.Feed(p) {
		s.OnFrameEvent(ev)
	}
}

// OnFrameEvent 处理重组器产出的事件
func (s *Session) OnFrameEvent(ev dmc.FrameEvent) {
	s.obs.OnFrame(ev)
	now := s.now()

	if !ev.Decoded() {
		s.mu.Lock()
		s.stats.FrameErrors++
		s.mu.Unlock()
		fields := []zap.Field{zap.String("reason", dmc.Reason(ev.Err)), zap.Error(ev.Err)}
		if ev.Header != nil {
			fields = append(fields, zap.Uint32("id", ev.Header.ID), zap.String("type", ev.Header.Type.String()))
		}
		s.log.Debug("frame error", fields...)
		s.emit(Event{Kind: EventFrameError, Header: ev.Header, Err: ev.Err, At: now})
		return
	}

	msg := *ev.Message
	s.mu.Lock()
	if pr, ok := s.requests[msg.ID]; ok && pr.inFlight && msg.Type.IsAck() {
		rtt := now.Sub(pr.firstSentAt)
		s.removeLocked(pr)
		s.stats.Resolved++
		pr.req.resolve(msg, nil)
		s.obs.OnResolve(pr.req.typ, OutcomeOK, rtt)
		out := s.pumpLocked(now)
		s.writeMu.Lock()
		s.mu.Unlock()

		s.log.Debug("response matched", zap.Uint32("id", msg.ID), zap.String("type", msg.Type.String()), zap.Duration("rtt", rtt))
		s.writeHeld(out)
		s.writeMu.Unlock()
		return
	}
	s.stats.Stray++
	s.mu.Unlock()

	s.obs.OnStray(msg)
	s.log.Debug("stray frame", zap.Uint32("id", msg.ID), zap.String("type", msg.Type.String()))
	s.emit(Event{Kind: EventStrayResponse, Message: &msg, Err: ErrStrayResponse, At: now})

	if msg.Type.IsAck() {
		return
	}
	if s.router != nil {
		if err := s.router.Route(msg); err != nil {
			s.log.Warn("unsolicited frame handler failed", zap.Uint32("id", msg.ID), zap.String("type", msg.Type.String()), zap.Error(err))
		}
	}
	if s.autoAck {
		s.ack(msg)
	}
}

// Tick 扫描在途请求：到期且有重试次数则原样重发，否则以 ErrTimeout 结束
func (s *Session) Tick(now time.Time) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	due := make([]*pending, 0, s.inFlight)
	for _, pr := range s.requests {
		if pr.inFlight && !now.Before(pr.deadline) {
			due = append(due, pr)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].req.id < due[j].req.id })

	var out []outFrame
	for _, pr := range due {
		if pr.retriesLeft > 0 {
			pr.retriesLeft--
			pr.deadline = now.Add(s.timeout)
			s.stats.Retries++
			s.obs.OnSend(pr.req.typ, true)
			out = append(out, outFrame{pr: pr, frame: pr.frame})
			s.log.Debug("request retry", zap.Uint32("id", pr.req.id), zap.String("type", pr.req.typ.String()), zap.Uint8("retries_left", pr.retriesLeft))
			continue
		}
		s.removeLocked(pr)
		s.stats.Timeouts++
		attempts := int(s.retries) + 1
		pr.req.resolve(dmc.Message{}, fmt.Errorf("%w: id=%d after %d attempts", ErrTimeout, pr.req.id, attempts))
		s.obs.OnResolve(pr.req.typ, OutcomeTimeout, now.Sub(pr.firstSentAt))
		s.log.Warn("request timed out", zap.Uint32("id", pr.req.id), zap.String("type", pr.req.typ.String()), zap.Int("attempts", attempts))
	}
	out = append(out, s.pumpLocked(now)...)
	s.unlockAndWrite(out)
}

// Close 以 ErrSessionClosed 结束所有未完成请求，之后 Send 返回错误
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	outstanding := make([]*pending, 0, len(s.requests))
	for _, pr := range s.requests {
		outstanding = append(outstanding, pr)
	}
	sort.Slice(outstanding, func(i, j int) bool { return outstanding[i].req.id < outstanding[j].req.id })
	for _, pr := range outstanding {
		pr.removed.Store(true)
		pr.req.resolve(dmc.Message{}, ErrSessionClosed)
		s.obs.OnResolve(pr.req.typ, OutcomeClosed, 0)
	}
	s.requests = make(map[uint32]*pending)
	s.queue = nil
	s.inFlight = 0
	s.obs.OnInFlight(0)
	s.mu.Unlock()

	s.feedMu.Lock()
	s.reasm.Reset()
	s.feedMu.Unlock()
	s.log.Info("session closed", zap.Int("outstanding", len(outstanding)))
	return nil
}

// Stats 返回计数快照
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.SessionID = s.id
	st.InFlight = s.inFlight
	st.Queued = len(s.queue)
	st.Closed = s.closed
	st.WriteErrors = s.writeErrors.Load()
	return st
}

func (s *Session) cancel(r *Request) bool {
	s.mu.Lock()
	pr, ok := s.requests[r.id]
	if !ok || pr.req != r {
		s.mu.Unlock()
		return false
	}
	s.removeLocked(pr)
	s.stats.Canceled++
	r.resolve(dmc.Message{}, ErrCanceled)
	s.obs.OnResolve(r.typ, OutcomeCanceled, 0)
	out := s.pumpLocked(s.now())
	s.log.Debug("request canceled", zap.Uint32("id", r.id), zap.String("type", r.typ.String()))
	s.unlockAndWrite(out)
	return true
}

// allocIDLocked 单调递增，溢出回绕，跳过仍在使用的 id
func (s *Session) allocIDLocked() uint32 {
	for {
		s.nextID++
		if _, used := s.requests[s.nextID]; !used {
			return s.nextID
		}
	}
}

func (s *Session) dispatchLocked(pr *pending, now time.Time) outFrame {
	pr.inFlight = true
	pr.firstSentAt = now
	pr.deadline = now.Add(s.timeout)
	s.inFlight++
	s.stats.Sent++
	s.obs.OnSend(pr.req.typ, false)
	s.obs.OnInFlight(s.inFlight)
	return outFrame{pr: pr, frame: pr.frame}
}

func (s *Session) removeLocked(pr *pending) {
	pr.removed.Store(true)
	delete(s.requests, pr.req.id)
	if pr.inFlight {
		pr.inFlight = false
		s.inFlight--
		s.obs.OnInFlight(s.inFlight)
		return
	}
	for i, q := range s.queue {
		if q == pr {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
}

// pumpLocked 从队列头部补齐在途请求
func (s *Session) pumpLocked(now time.Time) []outFrame {
	var out []outFrame
	for s.inFlight < s.maxInFlight && len(s.queue) > 0 {
		pr := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		out = append(out, s.dispatchLocked(pr, now))
	}
	return out
}

func (s *Session) ack(msg dmc.Message) {
	code := dmc.RespOk
	if _, unknown := msg.Payload.(dmc.Unknown); unknown {
		code = dmc.RespErrUnsupported
	}
	frame, err := s.codec.Encode(msg.ID, dmc.Ack{Command: msg.Type.Command(), Code: code})
	if err != nil {
		s.log.Warn("encode ack failed", zap.Uint32("id", msg.ID), zap.Error(err))
		return
	}
	s.mu.Lock()
	s.stats.AutoAcks++
	s.unlockAndWrite([]outFrame{{frame: frame}})
}

// unlockAndWrite 持有 mu 时调用：先取写锁再释放 mu，然后写出
func (s *Session) unlockAndWrite(out []outFrame) {
	if len(out) == 0 {
		s.mu.Unlock()
		return
	}
	s.writeMu.Lock()
	s.mu.Unlock()
	defer s.writeMu.Unlock()
	s.writeHeld(out)
}

// writeHeld 需持有 writeMu，不得获取 mu。
// 写失败只记录，丢失的帧由重发机制兜底
func (s *Session) writeHeld(out []outFrame) {
	for _, f := range out {
		if f.pr != nil && f.pr.removed.Load() {
			s.log.Debug("skip frame of finished request", zap.Uint32("id", f.pr.req.id))
			continue
		}
		if err := s.w.WriteBytes(f.frame); err != nil {
			s.writeErrors.Add(1)
			s.log.Warn("write frame failed", zap.Int("len", len(f.frame)), zap.Error(err))
		}
	}
}

func (s *Session) emit(ev Event) {
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}
