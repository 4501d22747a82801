// internal/pkg/errs/errors.go
package errs

import (
	"errors"
	"fmt"
)

// TerminalError 表示一个不可重试的错误：参数校验失败、业务规则拒绝、
// 非法状态流转等。重试同样的请求不会改变结果，调用方应当立即放弃
// 或触发补偿，而不是重试。
type TerminalError struct {
	// Code 是对外暴露的错误码，HTTP 接口层直接用它作为状态码。
	// 400 = 校验失败, 409 = 业务规则拒绝 / 状态冲突。
	Code    int
	Message string
}

func (e *TerminalError) Error() string {
	return e.Message
}

// NewTerminal 创建一个带错误码的终态错误。
func NewTerminal(code int, format string, args ...interface{}) *TerminalError {
	return &TerminalError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsTerminal 判断错误链上是否存在 TerminalError。
func IsTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}

// TerminalCode 返回错误链上 TerminalError 的错误码，没有则返回 0。
func TerminalCode(err error) int {
	var te *TerminalError
	if errors.As(err, &te) {
		return te.Code
	}
	return 0
}

// IsTransient 判断一个错误是否应当被重试层吸收。
// 约定：凡是非终态的错误（连接失败、超时、5xx 下游响应）都视为瞬时错误。
func IsTransient(err error) bool {
	return err != nil && !IsTerminal(err)
}

// RetriesExhaustedError 由失败转移客户端在重试预算耗尽时抛出。
// 它与业务上的 TerminalError 是两类失败：前者是"基础设施放弃了"，
// 后者是"业务说不行"。
type RetriesExhaustedError struct {
	Method   string
	Attempts int
	LastErr  error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("request to %s failed after %d attempts: %v", e.Method, e.Attempts, e.LastErr)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.LastErr
}

// IsRetriesExhausted 判断错误链上是否存在 RetriesExhaustedError。
func IsRetriesExhausted(err error) bool {
	var re *RetriesExhaustedError
	return errors.As(err, &re)
}
