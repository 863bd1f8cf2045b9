// Package rigsim 设备端模拟器：应答主机命令，可注入丢包、损坏与延迟
package rigsim

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamptokr/dragon-dmc/internal/protocol/dmc"
)

// Option 模拟器配置项
type Option func(*Device)

func WithCodec(c *dmc.Codec) Option {
	return func(d *Device) {
		if c != nil {
			d.codec = c
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Device) {
		if l != nil {
			d.log = l
		}
	}
}

// WithDelay 每条应答写出前的延迟
func WithDelay(fn func(req dmc.Message) time.Duration) Option {
	return func(d *Device) { d.delay = fn }
}

// Device 模拟一台 DMC 设备
type Device struct {
	codec *dmc.Codec
	log   *zap.Logger
	delay func(dmc.Message) time.Duration

	mu          sync.Mutex
	reasm       *dmc.Reassembler
	hi          dmc.HiResponse
	dropNext    int
	corruptNext bool
	nextID      uint32
	received    []dmc.Message
	frameErrors int
	channels    map[uint16]uint8
	triggers    uint32

	writeMu sync.Mutex
	out     io.Writer
}

// New hi 为设备对 MSG_HI 的应答内容
func New(hi dmc.HiResponse, opts ...Option) *Device {
	d := &Device{
		codec:    dmc.DefaultCodec(),
		log:      zap.NewNop(),
		hi:       hi,
		channels: make(map[uint16]uint8),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.reasm = dmc.NewReassembler(d.codec)
	return d
}

// reply 应答帧与触发它的请求
type reply struct {
	req   dmc.Message
	frame []byte
}

// Handle 喂入主机发来的字节，返回需要写回的应答帧
func (d *Device) Handle(p []byte) [][]byte {
	replies := d.handle(p)
	out := make([][]byte, 0, len(replies))
	for _, r := range replies {
		out = append(out, r.frame)
	}
	return out
}

func (d *Device) handle(p []byte) []reply {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []reply
	for _, ev := range d.reasm.Feed(p) {
		var (
			req  dmc.Message
			resp dmc.Payload
		)
		switch {
		case ev.Decoded():
			req = *ev.Message
			d.received = append(d.received, req)
			resp = d.respondLocked(req)
		case errors.Is(ev.Err, dmc.ErrChecksumMismatch) && ev.Header != nil && !ev.Header.Type.IsAck():
			d.frameErrors++
			req = dmc.Message{ID: ev.Header.ID, Type: ev.Header.Type}
			resp = dmc.Ack{Command: ev.Header.Type.Command(), Code: dmc.RespErrChecksum}
		default:
			d.frameErrors++
			d.log.Debug("sim frame error", zap.Error(ev.Err))
		}
		if resp == nil {
			continue
		}
		if d.dropNext > 0 {
			d.dropNext--
			d.log.Debug("sim drop response", zap.Uint32("id", req.ID))
			continue
		}
		frame, err := d.codec.Encode(req.ID, resp)
		if err != nil {
			d.log.Warn("sim encode failed", zap.Uint32("id", req.ID), zap.Error(err))
			continue
		}
		if d.corruptNext {
			d.corruptNext = false
			frame[len(frame)-1] ^= 0xFF
		}
		out = append(out, reply{req: req, frame: frame})
	}
	return out
}

func (d *Device) respondLocked(req dmc.Message) dmc.Payload {
	if req.Type.IsAck() {
		return nil
	}
	cmd := req.Type.Command()
	switch p := req.Payload.(type) {
	case dmc.HiRequest:
		return d.hi
	case dmc.DmxRequest:
		if int(p.StartChannel)+len(p.Values) > int(d.hi.DmxCount) {
			return dmc.Ack{Command: cmd, Code: dmc.RespErrRange}
		}
		for i, v := range p.Values {
			d.channels[p.StartChannel+uint16(i)] = v
		}
		return dmc.Ack{Command: cmd, Code: dmc.RespOk}
	case dmc.GuiOutRequest:
		d.triggers = p.Triggers
		return dmc.Ack{Command: cmd, Code: dmc.RespOk}
	default:
		return dmc.Ack{Command: cmd, Code: dmc.RespErrUnsupported}
	}
}

// Serve 在端口上运行，直到 ctx 结束或端口关闭
func (d *Device) Serve(ctx context.Context, port io.ReadWriteCloser) error {
	d.writeMu.Lock()
	d.out = port
	d.writeMu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = port.Close()
		case <-stop:
		}
	}()

	buf := make([]byte, 1024)
	for {
		n, err := port.Read(buf)
		for _, r := range d.handle(buf[:n]) {
			if !d.wait(ctx, r.req) {
				return nil
			}
			if werr := d.write(r.frame); werr != nil {
				return werr
			}
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
	}
}

// Announce 设备主动发送 MSG_HI（例如重启后）
func (d *Device) Announce() error {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.mu.Unlock()
	frame, err := d.codec.Encode(id, dmc.HiRequest{})
	if err != nil {
		return err
	}
	return d.write(frame)
}

func (d *Device) write(frame []byte) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if d.out == nil {
		return errors.New("rigsim: not serving")
	}
	_, err := d.out.Write(frame)
	return err
}

func (d *Device) wait(ctx context.Context, req dmc.Message) bool {
	if d.delay == nil {
		return true
	}
	dl := d.delay(req)
	if dl <= 0 {
		return true
	}
	t := time.NewTimer(dl)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// DropNext 丢弃接下来 n 条应答
func (d *Device) DropNext(n int) {
	d.mu.Lock()
	d.dropNext = n
	d.mu.Unlock()
}

// CorruptNext 损坏下一条应答的校验和
func (d *Device) CorruptNext() {
	d.mu.Lock()
	d.corruptNext = true
	d.mu.Unlock()
}

// Received 已解码的主机帧（含重发）
func (d *Device) Received() []dmc.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dmc.Message(nil), d.received...)
}

func (d *Device) FrameErrors() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frameErrors
}

// Channel 当前 DMX 通道值
func (d *Device) Channel(ch uint16) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channels[ch]
}

func (d *Device) Triggers() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.triggers
}
