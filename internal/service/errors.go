package service

import (
	"errors"
	"fmt"
	"time"
)

// ==================== 错误分类 ====================

// 哨兵错误：Token 链路
var (
	// ErrTokenUnavailable 所有候选 Token 均不可用且刷新失败
	ErrTokenUnavailable = errors.New("无可用 Token")
	// ErrOwnershipMismatch Token 校验通过但归属的卖家与请求不符
	ErrOwnershipMismatch = errors.New("Token 归属卖家不匹配")
	// ErrReauthorizationRequired 刷新也被拒绝，需要人工重新授权
	ErrReauthorizationRequired = errors.New("需要重新授权")
)

// 哨兵错误：业务链路
var (
	// ErrOrderNotFound 按引用找不到订单
	ErrOrderNotFound = errors.New("订单不存在")
	// ErrInvoiceNotFound 平台无匹配的授权发票
	ErrInvoiceNotFound = errors.New("未找到授权发票")
	// ErrAccountNotFound 卖家账号未接入
	ErrAccountNotFound = errors.New("卖家账号未接入")
)

// ==================== 开票错误 ====================

// EmissionError 的错误种类
const (
	EmitKindValidation  = "validation_failed"     // 本地前置校验失败，不发请求
	EmitKindScheduling  = "scheduling_restricted" // 平台排程限制，稍后重试
	EmitKindRejected    = "remote_rejected"       // 平台明确拒绝（4xx）
	EmitKindUnavailable = "remote_unavailable"    // 平台不可用（网络/5xx）
)

// EmissionError 开票失败的结构化错误
// Kind 决定调用方的处置：校验失败修数据，排程限制等到 AvailableAfter，
// 明确拒绝人工介入，不可用交给下一轮重试
type EmissionError struct {
	Kind           string
	Code           string
	Message        string
	AvailableAfter *time.Time
	cause          error
}

func (e *EmissionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("开票失败 [%s/%s]: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("开票失败 [%s]: %s", e.Kind, e.Message)
}

func (e *EmissionError) Unwrap() error {
	return e.cause
}

// Retryable 是否值得自动重试
func (e *EmissionError) Retryable() bool {
	return e.Kind == EmitKindScheduling || e.Kind == EmitKindUnavailable
}

// newEmissionError 构造辅助
func newEmissionError(kind, code, message string, cause error) *EmissionError {
	return &EmissionError{Kind: kind, Code: code, Message: message, cause: cause}
}
