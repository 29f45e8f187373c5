package chaterr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind 失敗類型，所有跨組件傳遞的錯誤都必須屬於這個封閉集合.
type Kind string

const (
	// KindValidation 請求 payload 缺少必要欄位或格式錯誤.
	KindValidation Kind = "ValidationError"
	// KindNotFound 引用的消息或會話不存在，或已被墓碑化.
	KindNotFound Kind = "NotFound"
	// KindForbidden 授權方拒絕了該操作.
	KindForbidden Kind = "Forbidden"
	// KindConflict 併發修改違反不變量（例如重複墓碑競態）.
	KindConflict Kind = "Conflict"
	// KindTimeout 下游調用超時，結果不明確.
	KindTimeout Kind = "Timeout"
	// KindUnknownAction 分發器無法解析 action 名稱.
	KindUnknownAction Kind = "UnknownAction"
)

// Error 帶失敗類型的錯誤.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

// Error 實作 error 接口.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap 返回底層錯誤.
func (e *Error) Unwrap() error {
	return e.cause
}

// New 創建指定類型的錯誤.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Newf 創建指定類型的格式化錯誤.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap 將底層錯誤包裝為指定類型，保留原始錯誤鏈.
func Wrap(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, cause: err}
}

// KindOf 取出錯誤的失敗類型，非本包錯誤視為 Conflict（內部異常不外洩）.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindConflict
}

// Is 判斷錯誤是否屬於指定類型.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsRetryable 判斷客戶端是否可以安全重試.
// 只有 Timeout 可以重試，且僅限冪等操作或帶冪等令牌的 sendMessage.
func IsRetryable(err error) bool {
	return Is(err, KindTimeout)
}
