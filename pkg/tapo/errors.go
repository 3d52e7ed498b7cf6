package tapo

import (
	"errors"
	"fmt"
)

var (
	// ErrHandshake 握手阶段 HTTP 层失败或响应格式不对
	ErrHandshake = errors.New("tapo: handshake failed")
	// ErrAuth 设备返回的 server hash 与本地凭据不匹配（账号或密码错误）
	ErrAuth = errors.New("tapo: authentication rejected")
	// ErrSessionExpired 设备拒绝当前会话 cookie
	ErrSessionExpired = errors.New("tapo: session expired")
	// ErrProtocol 报文无法解密或解析
	ErrProtocol = errors.New("tapo: protocol error")
	// ErrDeviceCode 设备返回非零 error_code
	ErrDeviceCode = errors.New("tapo: device returned error code")
	// ErrModelMismatch 设备实际型号与配置不符
	ErrModelMismatch = errors.New("tapo: device model mismatch")
	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("tapo: session closed")
)

// DeviceError 携带设备返回的 error_code
type DeviceError struct {
	Method string
	Code   int
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("tapo: %s returned error_code %d", e.Method, e.Code)
}

func (e *DeviceError) Unwrap() error { return ErrDeviceCode }
