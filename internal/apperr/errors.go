package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误分类，决定对外的 HTTP 状态码与错误类型
type Kind string

const (
	KindMalformedRequest     Kind = "malformed_request"
	KindNetwork              Kind = "network_error"
	KindUpstreamUnavailable  Kind = "upstream_unavailable"
	KindWorkflowFailed       Kind = "workflow_failed"
	KindWorkflowTimeout      Kind = "workflow_timeout"
	KindImageGenerationError Kind = "image_generation_failed"
	KindInternal             Kind = "internal_error"
)

// 哨兵错误，仅用于 errors.Is 按 Kind 比较
var (
	ErrMalformedRequest    = &Error{Kind: KindMalformedRequest}
	ErrNetwork             = &Error{Kind: KindNetwork}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
	ErrWorkflowFailed      = &Error{Kind: KindWorkflowFailed}
	ErrWorkflowTimeout     = &Error{Kind: KindWorkflowTimeout}
	ErrImageGeneration     = &Error{Kind: KindImageGenerationError}
)

// Error 适配层统一错误
type Error struct {
	Kind    Kind
	Message string
	// Detail 上游返回的原始错误信息，原样保留
	Detail string
	RunID  string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 同 Kind 即视为匹配
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func MalformedRequest(format string, args ...any) *Error {
	return New(KindMalformedRequest, format, args...)
}

func Network(err error, format string, args ...any) *Error {
	return Wrap(KindNetwork, err, format, args...)
}

func UpstreamUnavailable(err error, format string, args ...any) *Error {
	return Wrap(KindUpstreamUnavailable, err, format, args...)
}

// WorkflowFailed 远端报告失败，detail 为上游错误原文
func WorkflowFailed(runID, detail string) *Error {
	return &Error{Kind: KindWorkflowFailed, Message: "workflow run failed", Detail: detail, RunID: runID}
}

func WorkflowTimeout(runID string) *Error {
	return &Error{Kind: KindWorkflowTimeout, Message: "workflow run did not finish before the deadline", RunID: runID}
}

func ImageGeneration(err error) *Error {
	e := Wrap(KindImageGenerationError, err, "image generation failed")
	var inner *Error
	if errors.As(err, &inner) {
		e.RunID = inner.RunID
		e.Detail = inner.Detail
	}
	return e
}

// KindOf 返回错误链上第一个 *Error 的分类，其他错误归为 internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus 错误分类到 HTTP 状态码
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindMalformedRequest:
		return http.StatusBadRequest
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case KindWorkflowTimeout:
		return http.StatusGatewayTimeout
	case KindNetwork, KindWorkflowFailed, KindImageGenerationError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorType OpenAI 错误体中的 type 字段
func ErrorType(kind Kind) string {
	if kind == KindMalformedRequest {
		return "invalid_request_error"
	}
	if kind == KindInternal {
		return "server_error"
	}
	return "upstream_error"
}
