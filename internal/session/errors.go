package session

import "errors"

// 协议错误：只影响对应请求，不影响会话
var (
	ErrStrayResponse = errors.New("session: stray response")
	ErrTimeout       = errors.New("session: request timed out")
)

var (
	ErrCanceled          = errors.New("session: request canceled")
	ErrSessionClosed     = errors.New("session: closed")
	ErrUnexpectedPayload = errors.New("session: unexpected response payload")
	ErrPending           = errors.New("session: request pending")
)
