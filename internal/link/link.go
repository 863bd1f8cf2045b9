package link

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// 默认参数
const (
	defaultTickInterval = 20 * time.Millisecond
	defaultWriteQueue   = 64
	defaultEnqueueWait  = time.Second
	readBufferSize      = 4096
)

var (
	ErrClosed         = errors.New("link: closed")
	ErrWriteQueueFull = errors.New("link: write queue timeout")
)

// Sink 接收读到的字节与定时 tick，通常是 *session.Session
type Sink interface {
	OnBytes(p []byte)
	Tick(now time.Time)
}

// ByteObserver 收发字节计数回调
type ByteObserver interface {
	OnBytesIn(n int)
	OnBytesOut(n int)
}

// Config 链路参数
type Config struct {
	TickInterval time.Duration
	WriteQueue   int
	EnqueueWait  time.Duration
	WriteRate    int // 帧/秒，<=0 不限速
	WriteBurst   int
	BreakerFails int
	BreakerCool  time.Duration
}

// Link 在串口上运行读循环、写循环与 tick 循环。
// WriteBytes 只入队，实际写出在写循环中完成，可安全地从会话回调中调用
type Link struct {
	port    Port
	cfg     Config
	log     *zap.Logger
	pacer   *Pacer
	breaker *Breaker
	obs     ByteObserver

	writeC    chan []byte
	doneC     chan struct{}
	closeOnce sync.Once

	bytesIn     atomic.Uint64
	bytesOut    atomic.Uint64
	framesOut   atomic.Uint64
	writeErrors atomic.Uint64
	dropped     atomic.Uint64
}

func New(port Port, cfg Config, log *zap.Logger) *Link {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.WriteQueue <= 0 {
		cfg.WriteQueue = defaultWriteQueue
	}
	if cfg.EnqueueWait <= 0 {
		cfg.EnqueueWait = defaultEnqueueWait
	}
	if log == nil {
		log = zap.NewNop()
	}
	l := &Link{
		port:    port,
		cfg:     cfg,
		log:     log,
		pacer:   NewPacer(cfg.WriteRate, cfg.WriteBurst),
		breaker: NewBreaker(cfg.BreakerFails, cfg.BreakerCool),
		writeC:  make(chan []byte, cfg.WriteQueue),
		doneC:   make(chan struct{}),
	}
	l.breaker.SetOnStateChange(func(from, to BreakerState) {
		l.log.Warn("port breaker state changed", zap.String("from", from.String()), zap.String("to", to.String()))
	})
	return l
}

// SetObserver 安装字节计数回调，需在 Run 之前调用
func (l *Link) SetObserver(o ByteObserver) { l.obs = o }

// WriteBytes 复制后入队
func (l *Link) WriteBytes(p []byte) error {
	select {
	case <-l.doneC:
		return ErrClosed
	default:
	}
	if l.breaker.Rejecting() {
		return ErrPortDown
	}
	dup := make([]byte, len(p))
	copy(dup, p)

	t := time.NewTimer(l.cfg.EnqueueWait)
	defer t.Stop()
	select {
	case l.writeC <- dup:
		return nil
	case <-l.doneC:
		return ErrClosed
	case <-t.C:
		return ErrWriteQueueFull
	}
}

// Run 阻塞直到 ctx 结束或端口读失败；返回前关闭端口
func (l *Link) Run(ctx context.Context, sink Sink) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		defer cancel()
		if err := l.readLoop(sink); err != nil {
			readErr <- err
		}
	}()
	go func() {
		defer wg.Done()
		l.writeLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		l.tickLoop(ctx, sink)
	}()

	<-ctx.Done()
	_ = l.Close()
	wg.Wait()

	select {
	case err := <-readErr:
		return err
	default:
		return nil
	}
}

// Close 关闭端口并停止所有循环，可重复调用
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.doneC)
		err = l.port.Close()
	})
	return err
}

// Done 链路关闭通知
func (l *Link) Done() <-chan struct{} { return l.doneC }

func (l *Link) readLoop(sink Sink) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := l.port.Read(buf)
		if n > 0 {
			l.bytesIn.Add(uint64(n))
			if l.obs != nil {
				l.obs.OnBytesIn(n)
			}
			sink.OnBytes(buf[:n])
		}
		if err == nil {
			continue
		}
		if isTimeout(err) {
			continue
		}
		select {
		case <-l.doneC:
			return nil
		default:
		}
		l.log.Error("serial read failed", zap.Error(err))
		return err
	}
}

func (l *Link) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-l.writeC:
			if err := l.pacer.Wait(ctx); err != nil {
				return
			}
			if err := l.breaker.Allow(); err != nil {
				l.dropped.Add(1)
				continue
			}
			n, err := l.port.Write(msg)
			l.breaker.Record(err)
			if err != nil {
				l.writeErrors.Add(1)
				l.log.Warn("serial write failed", zap.Int("len", len(msg)), zap.Error(err))
				continue
			}
			l.bytesOut.Add(uint64(n))
			l.framesOut.Add(1)
			if l.obs != nil {
				l.obs.OnBytesOut(n)
			}
		}
	}
}

func (l *Link) tickLoop(ctx context.Context, sink Sink) {
	t := time.NewTicker(l.cfg.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			sink.Tick(now)
		}
	}
}

// Stats 链路统计
type Stats struct {
	BytesIn     uint64     `json:"bytes_in"`
	BytesOut    uint64     `json:"bytes_out"`
	FramesOut   uint64     `json:"frames_out"`
	WriteErrors uint64     `json:"write_errors"`
	Dropped     uint64     `json:"dropped"`
	Queued      int        `json:"queued"`
	Breaker     string     `json:"breaker"`
	Trips       int64      `json:"breaker_trips"`
	Pacer       PacerStats `json:"pacer"`
}

func (l *Link) Stats() Stats {
	return Stats{
		BytesIn:     l.bytesIn.Load(),
		BytesOut:    l.bytesOut.Load(),
		FramesOut:   l.framesOut.Load(),
		WriteErrors: l.writeErrors.Load(),
		Dropped:     l.dropped.Load(),
		Queued:      len(l.writeC),
		Breaker:     l.breaker.State().String(),
		Trips:       l.breaker.TripCount(),
		Pacer:       l.pacer.Stats(),
	}
}
