package errprocess

import (
	"context"
	"errors"
	"fmt"
	"net"

	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// 錯誤分類，所有 use case 回傳的錯誤都必須 wrap 其中之一
var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("duplicate")
	ErrConflict        = errors.New("conflict")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrTransient       = errors.New("transient")
)

// Code 給 websocket 回應用的錯誤代碼
type Code string

const (
	CodeNotFound        Code = "not_found"
	CodeDuplicate       Code = "duplicate"
	CodeConflict        Code = "conflict"
	CodeInvalidArgument Code = "invalid_argument"
	CodeUnauthorized    Code = "unauthorized"
	CodeTransient       Code = "transient"
	CodeInternal        Code = "internal"
)

// Set set err info, wrap kind and log it
func Set(kind error, errMsg string) error {
	logger.Log.Error(errMsg, zap.String("kind", kind.Error()))
	return fmt.Errorf("%s: %w", errMsg, kind)
}

// Wrap 在不記 log 的情況下附加 kind
func Wrap(kind error, errMsg string) error {
	return fmt.Errorf("%s: %w", errMsg, kind)
}

// KindOf 回傳 err 所屬的分類, 無法判斷時回傳 nil
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrDuplicate, ErrConflict, ErrInvalidArgument, ErrUnauthorized, ErrTransient} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// ToCode map err to response code
func ToCode(err error) Code {
	switch KindOf(err) {
	case ErrNotFound:
		return CodeNotFound
	case ErrDuplicate:
		return CodeDuplicate
	case ErrConflict:
		return CodeConflict
	case ErrInvalidArgument:
		return CodeInvalidArgument
	case ErrUnauthorized:
		return CodeUnauthorized
	case ErrTransient:
		return CodeTransient
	}
	return CodeInternal
}

// IsTransient 判斷錯誤可否重試
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
