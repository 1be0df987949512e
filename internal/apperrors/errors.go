// Package apperrors 定义了应用的错误分类，以及到 HTTP 响应的统一映射。
// 所有外部协作方（数据库、AI 服务、支付网关）的失败都在各组件边界
// 被转换为这里的错误种类，原始驱动/SDK 错误从不直接下发给客户端。
package apperrors

import (
	"errors"
	"net/http"
)

var (
	// ErrUnauthorized 表示缺失、无效或过期的访问令牌。
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials 在登录失败时返回。
	// 用户名不存在与密码错误共用这一个错误，避免账号枚举。
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateHandle 表示注册时用户名已被占用。
	ErrDuplicateHandle = errors.New("username already in use")
	// ErrValidation 表示请求字段缺失或不符合最小长度要求。
	ErrValidation = errors.New("validation failed")
	// ErrQuotaExhausted 表示免费额度已耗尽且用户请求了无限制模式。
	// 客户端依赖这个独立的种类来触发升级引导，不能与一般失败混用。
	ErrQuotaExhausted = errors.New("free quota exhausted, upgrade required")
	// ErrUpstreamEmpty 表示上游 AI 拒绝返回任何候选回复。
	ErrUpstreamEmpty = errors.New("the AI declined to answer this request")
	// ErrUpstreamUnavailable 表示上游 AI 或支付网关的网络/5xx failure。
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	// ErrNotFound 表示对话不存在，或存在但不属于当前用户。
	// 两种情况刻意不作区分，避免泄露他人数据的存在性。
	ErrNotFound = errors.New("not found")
	// ErrUnknownOrder 表示支付通知引用了一个未知订单。
	ErrUnknownOrder = errors.New("unknown order")
	// ErrInvalidPayload 表示支付通知的载荷无法解析或未通过网关校验。
	ErrInvalidPayload = errors.New("invalid notification payload")
)

// ErrorResponse 是所有失败响应的统一 JSON 结构。
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPError 将一个错误种类绑定到 HTTP 状态码和稳定的错误码。
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError 创建一个新的 HTTPError。
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Message: message, Code: code}
}

// ToErrorResponse 转换为可序列化的响应体。
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{Error: e.Message, Code: e.Code}
}

// MapToHTTP 将领域错误映射为 HTTP 错误。
// 未识别的错误一律作为 500 处理，不向客户端暴露内部细节。
func MapToHTTP(err error) *HTTPError {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return NewHTTPError(http.StatusUnauthorized, err.Error(), "UNAUTHORIZED")
	case errors.Is(err, ErrInvalidCredentials):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "INVALID_CREDENTIALS")
	case errors.Is(err, ErrDuplicateHandle):
		return NewHTTPError(http.StatusConflict, err.Error(), "DUPLICATE_HANDLE")
	case errors.Is(err, ErrValidation):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.Is(err, ErrQuotaExhausted):
		return NewHTTPError(http.StatusForbidden, err.Error(), "QUOTA_EXHAUSTED")
	case errors.Is(err, ErrUpstreamEmpty):
		return NewHTTPError(http.StatusBadGateway, err.Error(), "AI_EMPTY_RESPONSE")
	case errors.Is(err, ErrUpstreamUnavailable):
		return NewHTTPError(http.StatusBadGateway, err.Error(), "UPSTREAM_UNAVAILABLE")
	case errors.Is(err, ErrNotFound):
		return NewHTTPError(http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, ErrUnknownOrder):
		return NewHTTPError(http.StatusNotFound, err.Error(), "UNKNOWN_ORDER")
	case errors.Is(err, ErrInvalidPayload):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "INVALID_PAYLOAD")
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

// Wrap 在保留可识别种类的同时附加上下文信息。
func Wrap(kind error, detail string) error {
	return &wrapped{kind: kind, detail: detail}
}

type wrapped struct {
	kind   error
	detail string
}

func (w *wrapped) Error() string {
	if w.detail == "" {
		return w.kind.Error()
	}
	return w.kind.Error() + ": " + w.detail
}

func (w *wrapped) Unwrap() error {
	return w.kind
}
