package device

import (
	"errors"
	"fmt"
)

// ErrUnsupportedType 未知的设备型号
var ErrUnsupportedType = errors.New("unsupported device type")

// ConnectError 握手/认证/超时失败。由 Collector 本地消化：计数后下一轮重连。
type ConnectError struct {
	Type Type
	Host string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s %s: %v", e.Type, e.Host, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Operations reported in RequestError.
const (
	OpGetPower = "get_power"
	OpGetState = "get_state"
)

// RequestError 已建立会话上的读请求失败
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request %s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// IsConnectError 判断错误链中是否包含 ConnectError
func IsConnectError(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce)
}

// IsRequestError 判断错误链中是否包含 RequestError
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}
