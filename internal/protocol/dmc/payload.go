package dmc

import (
	"bytes"
	"fmt"
)

// Payload 已类型化的消息载荷。新的消息类型实现该接口并在编译期加入 Registry
type Payload interface {
	// Type 载荷对应的帧 type 字段
	Type() MessageType
	MarshalBinary() ([]byte, error)
}

const (
	hiNameLen      = 32
	HiResponseSize = hiNameLen + 3 + 1 + 2 + 1 + 1 + 1 + 4 + 4
	DmxRequestSize = 1 + 2 + 4
	GuiOutSize     = 4
	AckSize        = responseCodeSz
)

// HiRequest MSG_HI 请求：查询设备基础信息。主机总是先发此请求，设备启动时也会主动发送
type HiRequest struct{}

func (HiRequest) Type() MessageType              { return TypeOf(CmdHi, false) }
func (HiRequest) MarshalBinary() ([]byte, error) { return []byte{}, nil }

// HiResponse MSG_HI 应答数据
type HiResponse struct {
	Name             [hiNameLen]byte
	FwMajor          uint8 // 协议版本，当前为 2
	FwMinor          uint8 // 协议版本，当前为 2
	FwRev            uint8 // 设备自定义
	MotorCount       uint8
	DmxCount         uint16
	GioOutCount      uint8
	GioInputCount    uint8
	HwLimitCount     uint8
	UploadFrameCount uint32
	Capabilities     uint32
}

// NewHiResponse 构造应答，name 超过32字节截断
func NewHiResponse(name string) HiResponse {
	var h HiResponse
	copy(h.Name[:], name)
	h.FwMajor, h.FwMinor = 2, 2
	return h
}

// DeviceName 返回去掉尾部 NUL 的设备名
func (h HiResponse) DeviceName() string {
	return string(bytes.TrimRight(h.Name[:], "\x00"))
}

func (HiResponse) Type() MessageType { return TypeOf(CmdHi, true) }

func (h HiResponse) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, HiResponseSize)
	buf = append(buf, h.Name[:]...)
	buf = append(buf, h.FwMajor, h.FwMinor, h.FwRev, h.MotorCount)
	buf = ByteOrder.AppendUint16(buf, h.DmxCount)
	buf = append(buf, h.GioOutCount, h.GioInputCount, h.HwLimitCount)
	buf = ByteOrder.AppendUint32(buf, h.UploadFrameCount)
	buf = ByteOrder.AppendUint32(buf, h.Capabilities)
	return buf, nil
}

func decodeHiRequest(_ MessageType, _ []byte) (Payload, error) { return HiRequest{}, nil }

func decodeHiResponse(_ MessageType, b []byte) (Payload, error) {
	var h HiResponse
	off := copy(h.Name[:], b[:hiNameLen])
	h.FwMajor, h.FwMinor, h.FwRev, h.MotorCount = b[off], b[off+1], b[off+2], b[off+3]
	off += 4
	h.DmxCount = ByteOrder.Uint16(b[off:])
	off += 2
	h.GioOutCount, h.GioInputCount, h.HwLimitCount = b[off], b[off+1], b[off+2]
	off += 3
	h.UploadFrameCount = ByteOrder.Uint32(b[off:])
	off += 4
	h.Capabilities = ByteOrder.Uint32(b[off:])
	return h, nil
}

// DmxRequest 从 StartChannel 开始设置一个或多个灯光值。
// Ramp 为 true 时设备逐步过渡到目标值，而非立即切换。应答：ACK + 响应码
type DmxRequest struct {
	Ramp         bool
	StartChannel uint16
	Values       [4]uint8
}

func (DmxRequest) Type() MessageType { return TypeOf(CmdDmx, false) }

func (d DmxRequest) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, DmxRequestSize)
	var ramp byte
	if d.Ramp {
		ramp = 1
	}
	buf = append(buf, ramp)
	buf = ByteOrder.AppendUint16(buf, d.StartChannel)
	buf = append(buf, d.Values[:]...)
	return buf, nil
}

func decodeDmxRequest(_ MessageType, b []byte) (Payload, error) {
	d := DmxRequest{Ramp: b[0] != 0, StartChannel: ByteOrder.Uint16(b[1:3])}
	copy(d.Values[:], b[3:7])
	return d, nil
}

// GuiOutRequest 设置通用 I/O 输出触发状态，bit i 对应第 i 路
type GuiOutRequest struct {
	Triggers uint32
}

// Trigger 第 i 路是否置位
func (g GuiOutRequest) Trigger(i int) bool {
	if i < 0 || i >= 32 {
		return false
	}
	return g.Triggers&(1<<uint(i)) != 0
}

func (GuiOutRequest) Type() MessageType { return TypeOf(CmdGuiOut, false) }

func (g GuiOutRequest) MarshalBinary() ([]byte, error) {
	return ByteOrder.AppendUint32(make([]byte, 0, GuiOutSize), g.Triggers), nil
}

func decodeGuiOutRequest(_ MessageType, b []byte) (Payload, error) {
	return GuiOutRequest{Triggers: ByteOrder.Uint32(b)}, nil
}

// Ack 通用应答：命令码 + ACK 标志，载荷仅1字节响应码。
// 非 Ok 的响应码仍是正常解码结果，由调用方解释
type Ack struct {
	Command Command
	Code    ResponseCode
}

func (a Ack) Type() MessageType { return TypeOf(a.Command, true) }

func (a Ack) MarshalBinary() ([]byte, error) { return []byte{byte(a.Code)}, nil }

func decodeAck(t MessageType, b []byte) (Payload, error) {
	return Ack{Command: t.Command(), Code: ResponseCode(b[0])}, nil
}

// Unknown 未注册类型的原始载荷。协议要求每一帧都要应答，因此未知类型不视为帧错误
type Unknown struct {
	TypeCode MessageType
	Data     []byte
}

func (u Unknown) Type() MessageType { return u.TypeCode }

func (u Unknown) MarshalBinary() ([]byte, error) {
	out := make([]byte, len(u.Data))
	copy(out, u.Data)
	return out, nil
}

func (u Unknown) String() string {
	return fmt.Sprintf("Unknown(%s, %d bytes)", u.TypeCode, len(u.Data))
}
