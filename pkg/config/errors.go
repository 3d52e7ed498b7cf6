package config

import "errors"

var (
	// ErrUnresolvedCredential 设备引用了不存在的凭据
	ErrUnresolvedCredential = errors.New("unresolved credential reference")
	// ErrDuplicate 名称重复
	ErrDuplicate = errors.New("duplicate entry")
)

// Error 配置加载/校验错误，启动阶段致命
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "config: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
