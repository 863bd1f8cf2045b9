package dmc

import "errors"

// 帧错误：本地可恢复，由流式解码器重同步处理
var (
	ErrBadMarker        = errors.New("dmc: bad marker")
	ErrChecksumMismatch = errors.New("dmc: checksum mismatch")
	ErrLengthMismatch   = errors.New("dmc: length mismatch")
	ErrUnknownType      = errors.New("dmc: unknown message type")
)

// 编码错误：调用方编程错误，立即返回，从不发送
var (
	ErrPayloadTooLarge = errors.New("dmc: payload too large")
	ErrUnknownKind     = errors.New("dmc: unknown message kind")
)

// IsFrameError 判断是否为帧错误
func IsFrameError(err error) bool {
	return errors.Is(err, ErrBadMarker) ||
		errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrLengthMismatch) ||
		errors.Is(err, ErrUnknownType)
}

// Reason 帧错误的短标签，用于日志与指标
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBadMarker):
		return "bad_marker"
	case errors.Is(err, ErrChecksumMismatch):
		return "checksum_mismatch"
	case errors.Is(err, ErrLengthMismatch):
		return "length_mismatch"
	case errors.Is(err, ErrUnknownType):
		return "unknown_type"
	default:
		return "other"
	}
}
