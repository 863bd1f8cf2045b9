package dmc

import (
	"encoding/binary"
	"fmt"
)

// 帧布局：marker[2] 'D''F' | id[4] | type[2] | length[2] | payload[length] | checksum[2]
const (
	MarkerLen      = 2
	HeaderLen      = MarkerLen + 4 + 2 + 2 // marker + id + type + length
	ChecksumLen    = 2
	MaxPayloadLen  = 2048
	MinFrameLen    = HeaderLen + ChecksumLen
	MaxFrameLen    = MinFrameLen + MaxPayloadLen
	responseCodeSz = 1
)

// ByteOrder 协议多字节字段的字节序，全局唯一
var ByteOrder = binary.BigEndian

var marker = []byte{'D', 'F'}

// Command 15 位基础命令码
type Command uint16

const (
	CmdHi     Command = 0x0001 // 设备基础信息
	CmdDmx    Command = 0x0020 // 设置 DMX 灯光值
	CmdGuiOut Command = 0x0030 // 设置通用 I/O 输出触发
)

// MessageType 帧 type 字段：Command 与 ACK 标志位的组合
type MessageType uint16

// FlagAck 应答标志位，设备对每个请求的回应都带此位
const FlagAck MessageType = 0x8000

const commandMask = 0x7FFF

// TypeOf 组合命令码与 ACK 标志
func TypeOf(cmd Command, ack bool) MessageType {
	t := MessageType(cmd & commandMask)
	if ack {
		t |= FlagAck
	}
	return t
}

// Command 返回去掉 ACK 位后的命令码
func (t MessageType) Command() Command { return Command(t &^ FlagAck) }

// IsAck 是否为应答帧
func (t MessageType) IsAck() bool { return t&FlagAck != 0 }

func (t MessageType) String() string { return fmt.Sprintf("0x%04X", uint16(t)) }

// ResponseCode 随 ACK 返回的响应码
type ResponseCode uint8

const (
	RespOk             ResponseCode = 0x10 // 已接收、理解并执行
	RespErrChecksum    ResponseCode = 0x11 // 校验和不匹配
	RespErrMoving      ResponseCode = 0x12 // 运动中无法处理该命令
	RespErrUnsupported ResponseCode = 0x13 // 未知或不支持的消息类型
	RespErrRange       ResponseCode = 0x14 // 参数越界
	RespErrGeneral     ResponseCode = 0x15
	RespErrSoftUp      ResponseCode = 0x20 // 软件上限位
	RespErrSoftLow     ResponseCode = 0x21 // 软件下限位
	RespErrHardUp      ResponseCode = 0x22 // 硬件上限位
	RespErrHardLow     ResponseCode = 0x23 // 硬件下限位
)

var responseCodeNames = map[ResponseCode]string{
	RespOk:             "ok",
	RespErrChecksum:    "err_checksum",
	RespErrMoving:      "err_moving",
	RespErrUnsupported: "err_unsupported",
	RespErrRange:       "err_range",
	RespErrGeneral:     "err_general",
	RespErrSoftUp:      "err_soft_up",
	RespErrSoftLow:     "err_soft_low",
	RespErrHardUp:      "err_hard_up",
	RespErrHardLow:     "err_hard_low",
}

// Valid 是否为协议定义的响应码
func (c ResponseCode) Valid() bool {
	_, ok := responseCodeNames[c]
	return ok
}

func (c ResponseCode) String() string {
	if name, ok := responseCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ResponseCode(0x%02X)", uint8(c))
}
