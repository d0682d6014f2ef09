package llm

import (
	"context"
	"errors"
	"net"
	"net/http"

	xerrors "OpenAgents/internal/errors"
)

// ErrorKind 是模型调用失败的分类。
type ErrorKind string

const (
	KindRateLimit ErrorKind = "rate_limit"
	KindTimeout   ErrorKind = "timeout"
	KindAPIError  ErrorKind = "api_error"
	KindUnknown   ErrorKind = "unknown"
)

const (
	CodeRateLimit xerrors.Code = "LLM_RATE_LIMIT"
	CodeTimeout   xerrors.Code = "LLM_TIMEOUT"
	CodeAPIError  xerrors.Code = "LLM_API_ERROR"
	CodeUnknown   xerrors.Code = "LLM_UNKNOWN"
)

func init() {
	xerrors.Register(CodeRateLimit, xerrors.Attributes{
		Message:   "Rate limit exceeded",
		Kind:      xerrors.KindUpstream,
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
	xerrors.Register(CodeTimeout, xerrors.Attributes{
		Message:   "Request timed out",
		Kind:      xerrors.KindUpstream,
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
	xerrors.Register(CodeAPIError, xerrors.Attributes{
		Message:  "API error",
		Kind:     xerrors.KindUpstream,
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeUnknown, xerrors.Attributes{
		Message:  "Unknown error",
		Kind:     xerrors.KindUpstream,
		Severity: xerrors.SeverityCritical,
	})
}

var kindCodes = map[ErrorKind]xerrors.Code{
	KindRateLimit: CodeRateLimit,
	KindTimeout:   CodeTimeout,
	KindAPIError:  CodeAPIError,
	KindUnknown:   CodeUnknown,
}

// NewError 以指定分类包装底层错误。message 为空时使用分类的默认描述。
func NewError(kind ErrorKind, message string, cause error, opts ...xerrors.Option) *xerrors.Error {
	code, ok := kindCodes[kind]
	if !ok {
		kind, code = KindUnknown, CodeUnknown
	}
	opts = append([]xerrors.Option{xerrors.WithMetadata("kind", string(kind))}, opts...)
	return xerrors.Wrap(code, cause, message, opts...)
}

// ErrorKindOf 返回错误的分类，非模型错误视为 unknown。
func ErrorKindOf(err error) ErrorKind {
	switch xerrors.CodeOf(err) {
	case CodeRateLimit:
		return KindRateLimit
	case CodeTimeout:
		return KindTimeout
	case CodeAPIError:
		return KindAPIError
	default:
		return KindUnknown
	}
}

// Classify 把提供方调用失败映射为带分类的错误。status 为 0 表示未拿到 HTTP 响应。
func Classify(err error, status int, message string) *xerrors.Error {
	if e, ok := xerrors.From(err); ok && isLLMCode(e.Code()) {
		return e
	}
	switch {
	case status == http.StatusTooManyRequests:
		return NewError(KindRateLimit, "Rate limit exceeded", err)
	case IsTimeout(err):
		return NewError(KindTimeout, "Request timed out", err)
	case status > 0:
		if message == "" && err != nil {
			message = err.Error()
		}
		// 仅服务端 5xx 标记为可重试。
		return NewError(KindAPIError, "API error: "+message, err, xerrors.WithRetryable(status >= http.StatusInternalServerError))
	default:
		return NewError(KindUnknown, "Unknown error", err)
	}
}

func isLLMCode(code xerrors.Code) bool {
	for _, c := range kindCodes {
		if c == code {
			return true
		}
	}
	return false
}

// IsTimeout 判断错误是否由超时引起。
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
