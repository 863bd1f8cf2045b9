package dmc

import "fmt"

// DecodeFunc 将定长载荷字节解码为类型化载荷，调用前长度已校验
type DecodeFunc func(t MessageType, b []byte) (Payload, error)

// Entry 消息类型注册项
type Entry struct {
	Type   MessageType
	Name   string
	Size   int
	Decode DecodeFunc
}

// Registry type 字段到载荷形状的映射。构造后只读，可被多个会话并发使用
type Registry struct {
	entries map[MessageType]Entry
	ack     Entry
}

// 通用 ACK：任何带 ACK 位且没有专用应答的类型，载荷只有响应码
var ackEntry = Entry{Type: FlagAck, Name: "ack", Size: AckSize, Decode: decodeAck}

// DefaultEntries 协议内置的消息类型
func DefaultEntries() []Entry {
	return []Entry{
		{Type: TypeOf(CmdHi, false), Name: "hi", Size: 0, Decode: decodeHiRequest},
		{Type: TypeOf(CmdHi, true), Name: "hi_response", Size: HiResponseSize, Decode: decodeHiResponse},
		{Type: TypeOf(CmdDmx, false), Name: "dmx", Size: DmxRequestSize, Decode: decodeDmxRequest},
		{Type: TypeOf(CmdGuiOut, false), Name: "gui_out", Size: GuiOutSize, Decode: decodeGuiOutRequest},
	}
}

// NewRegistry 由注册项构造只读注册表，重复的 type 会 panic（编译期配置错误）
func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{entries: make(map[MessageType]Entry, len(entries)), ack: ackEntry}
	for _, e := range entries {
		if e.Decode == nil {
			panic(fmt.Sprintf("dmc: registry entry %s has no decoder", e.Type))
		}
		if e.Size < 0 || e.Size > MaxPayloadLen {
			panic(fmt.Sprintf("dmc: registry entry %s has invalid size %d", e.Type, e.Size))
		}
		if _, dup := r.entries[e.Type]; dup {
			panic(fmt.Sprintf("dmc: duplicate registry entry %s", e.Type))
		}
		r.entries[e.Type] = e
	}
	return r
}

var defaultRegistry = NewRegistry(DefaultEntries()...)

// DefaultRegistry 进程级只读注册表
func DefaultRegistry() *Registry { return defaultRegistry }

// Lookup 查找 type 对应的注册项；带 ACK 位的未注册类型回退到通用 ACK
func (r *Registry) Lookup(t MessageType) (Entry, bool) {
	if e, ok := r.entries[t]; ok {
		return e, true
	}
	if t.IsAck() {
		return r.ack, true
	}
	return Entry{}, false
}

func (r *Registry) knownCommand(t MessageType) bool {
	_, ok := r.entries[TypeOf(t.Command(), false)]
	return ok
}

// Name 类型名，未知类型返回十六进制码
func (r *Registry) Name(t MessageType) string {
	if e, ok := r.Lookup(t); ok {
		return e.Name
	}
	return t.String()
}

// DecodePayload 按注册项解码载荷。
// 命令未注册的 ACK 帧只有 1 字节载荷时按通用 ACK 解码，其余长度返回 ErrUnknownType
func (r *Registry) DecodePayload(t MessageType, b []byte) (Payload, error) {
	e, ok := r.Lookup(t)
	if !ok || (e.Type == FlagAck && !r.knownCommand(t) && len(b) != AckSize) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	if len(b) != e.Size {
		// 带专用应答的 ACK 类型出错时只回响应码
		if t.IsAck() && len(b) == AckSize {
			return r.ack.Decode(t, b)
		}
		return nil, fmt.Errorf("%w: %s expects %d bytes, got %d", ErrLengthMismatch, e.Name, e.Size, len(b))
	}
	return e.Decode(t, b)
}

// EncodePayload 序列化载荷并检查注册表中的长度约定
func (r *Registry) EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrUnknownKind)
	}
	e, ok := r.Lookup(p.Type())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, p.Type())
	}
	if _, isAck := p.(Ack); isAck {
		e = r.ack
	}
	b, err := p.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if len(b) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(b))
	}
	if len(b) != e.Size {
		return nil, fmt.Errorf("%w: %s expects %d bytes, got %d", ErrLengthMismatch, e.Name, e.Size, len(b))
	}
	return b, nil
}
