package dmc

import (
	"bytes"
	"errors"
	"fmt"
)

// Codec 帧编解码器：无状态，可被多个会话共享
type Codec struct {
	reg *Registry
	sum Checksummer
}

type CodecOption func(*Codec)

// WithRegistry 使用自定义注册表
func WithRegistry(r *Registry) CodecOption {
	return func(c *Codec) {
		if r != nil {
			c.reg = r
		}
	}
}

// WithChecksum 替换校验算法
func WithChecksum(s Checksummer) CodecOption {
	return func(c *Codec) {
		if s != nil {
			c.sum = s
		}
	}
}

func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{reg: DefaultRegistry(), sum: CRC16CCITT}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultCodec = NewCodec()

// DefaultCodec 默认注册表 + CRC16CCITT
func DefaultCodec() *Codec { return defaultCodec }

func (c *Codec) Registry() *Registry { return c.reg }

func (c *Codec) Checksummer() Checksummer { return c.sum }

// Encode 将类型化载荷编码为一帧
func (c *Codec) Encode(id uint32, p Payload) ([]byte, error) {
	data, err := c.reg.EncodePayload(p)
	if err != nil {
		return nil, err
	}
	return c.EncodeFrame(Frame{ID: id, Type: p.Type(), Payload: data})
}

// EncodeFrame 编码任意 type 的原始帧，不查注册表
func (c *Codec) EncodeFrame(f Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(f.Payload))
	}
	buf := make([]byte, 0, MinFrameLen+len(f.Payload))
	buf = appendHeader(buf, Header{ID: f.ID, Type: f.Type, Length: uint16(len(f.Payload))})
	buf = append(buf, f.Payload...)
	buf = ByteOrder.AppendUint16(buf, c.sum.Sum(buf))
	return buf, nil
}

// DecodeStatus 解码结果状态
type DecodeStatus uint8

const (
	// Incomplete 字节不足，调用方需要继续提供数据
	Incomplete DecodeStatus = iota
	Complete
	Invalid
)

func (s DecodeStatus) String() string {
	switch s {
	case Incomplete:
		return "incomplete"
	case Complete:
		return "complete"
	case Invalid:
		return "invalid"
	}
	return fmt.Sprintf("DecodeStatus(%d)", uint8(s))
}

// DecodeResult 解码结果。HasHeader 为 true 时 Header 可用（校验失败时也会填充）
type DecodeResult struct {
	Status    DecodeStatus
	Message   Message
	Consumed  int
	Header    Header
	HasHeader bool
	Err       error
}

// Decode 两阶段解码：
// 1) 校验 marker 并读取声明长度，不要求载荷已到齐；
// 2) 整帧到齐后先校验 checksum，再解释载荷。
// 校验失败优先于载荷形状错误；不会越过声明的帧边界读取。
func (c *Codec) Decode(buf []byte) DecodeResult {
	n := len(buf)
	if n > MarkerLen {
		n = MarkerLen
	}
	if !bytes.Equal(buf[:n], marker[:n]) {
		return DecodeResult{Status: Invalid, Err: ErrBadMarker}
	}
	if len(buf) < HeaderLen {
		return DecodeResult{Status: Incomplete}
	}

	h := parseHeader(buf)
	res := DecodeResult{Header: h, HasHeader: true}
	if h.Length > MaxPayloadLen {
		res.Status = Invalid
		res.Err = fmt.Errorf("%w: declared %d bytes exceeds %d", ErrLengthMismatch, h.Length, MaxPayloadLen)
		return res
	}
	total := h.FrameLen()
	if len(buf) < total {
		res.Status = Incomplete
		return res
	}

	frame := buf[:total]
	if !Verify(c.sum, frame) {
		res.Status = Invalid
		res.Err = ErrChecksumMismatch
		return res
	}

	data := frame[HeaderLen : HeaderLen+int(h.Length)]
	payload, err := c.reg.DecodePayload(h.Type, data)
	if errors.Is(err, ErrUnknownType) {
		raw := make([]byte, len(data))
		copy(raw, data)
		payload, err = Unknown{TypeCode: h.Type, Data: raw}, nil
	}
	if err != nil {
		res.Status = Invalid
		res.Err = err
		return res
	}

	res.Status = Complete
	res.Consumed = total
	res.Message = Message{ID: h.ID, Type: h.Type, Payload: payload}
	return res
}

// Encode 使用默认编解码器编码
func Encode(id uint32, p Payload) ([]byte, error) { return defaultCodec.Encode(id, p) }

// Decode 使用默认编解码器解码
func Decode(buf []byte) DecodeResult { return defaultCodec.Decode(buf) }
