package service

import (
	"errors"
	"fmt"
)

// ErrorKind 错误分类
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindEmptyInput
	KindDecode
	KindProcessingFailed
	KindNotFound
)

// Code 返回对外稳定的错误码
func (k ErrorKind) Code() string {
	switch k {
	case KindEmptyInput:
		return "empty_upload"
	case KindDecode:
		return "decode_error"
	case KindProcessingFailed:
		return "processing_failed"
	case KindNotFound:
		return "mask_not_found_or_expired"
	default:
		return "unknown"
	}
}

func (k ErrorKind) String() string { return k.Code() }

// Error 带分类的服务错误，Err 为底层原因
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
	Err  error
}

var (
	ErrEmptyInput       = &Error{Kind: KindEmptyInput, Msg: "empty input"}
	ErrDecode           = &Error{Kind: KindDecode, Msg: "cannot decode image"}
	ErrProcessingFailed = &Error{Kind: KindProcessingFailed, Msg: "processing failed"}
	ErrNotFound         = &Error{Kind: KindNotFound, Msg: "mask not found or expired"}
)

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Msg
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 按分类匹配，使 errors.Is(err, ErrNotFound) 对任意 NotFound 成立
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf 提取错误分类
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind ErrorKind, op, msg string, err error) error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}
