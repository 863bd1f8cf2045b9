package dmc

import "fmt"

// Header 帧头（不含 marker）
type Header struct {
	ID     uint32
	Type   MessageType
	Length uint16
}

// FrameLen 按声明长度计算的整帧字节数
func (h Header) FrameLen() int { return HeaderLen + int(h.Length) + ChecksumLen }

// Frame 线上的一帧：原始载荷字节，未做类型解释
type Frame struct {
	ID      uint32
	Type    MessageType
	Payload []byte
}

// Message 解码后的逻辑消息
type Message struct {
	ID      uint32
	Type    MessageType
	Payload Payload
}

func (m Message) String() string {
	return fmt.Sprintf("dmc.Message{id=%d type=%s payload=%T}", m.ID, m.Type, m.Payload)
}

// IsAck 是否为应答消息
func (m Message) IsAck() bool { return m.Type.IsAck() }

// ResponseCode 通用 ACK 的响应码；非 ACK 载荷返回 false
func (m Message) ResponseCode() (ResponseCode, bool) {
	if a, ok := m.Payload.(Ack); ok {
		return a.Code, true
	}
	return 0, false
}

func parseHeader(b []byte) Header {
	return Header{
		ID:     ByteOrder.Uint32(b[2:6]),
		Type:   MessageType(ByteOrder.Uint16(b[6:8])),
		Length: ByteOrder.Uint16(b[8:10]),
	}
}

func appendHeader(buf []byte, h Header) []byte {
	buf = append(buf, marker...)
	buf = ByteOrder.AppendUint32(buf, h.ID)
	buf = ByteOrder.AppendUint16(buf, uint16(h.Type))
	buf = ByteOrder.AppendUint16(buf, h.Length)
	return buf
}
