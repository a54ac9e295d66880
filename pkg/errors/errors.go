// Package errors 提供快取層的錯誤分類
package errors

import (
	"errors"
	"fmt"
)

// 定義錯誤碼
const (
	// ErrCodeInvalidInput 無效輸入（例如空的 entry 名稱）
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeNotFound 資源未找到
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeStore 後端儲存操作失敗
	ErrCodeStore = "STORE_ERROR"
	// ErrCodeExpire TTL 設定失敗（hash 已寫入）
	ErrCodeExpire = "EXPIRE_FAILED"
	// ErrCodeUnavailable 服務不可用
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
)

// AppError 應用程式錯誤
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 以錯誤碼比對
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 創建新的應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝錯誤
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails 返回帶詳細資訊的副本
//
// 預定義錯誤是共享的，這裡不能原地修改。
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// 預定義錯誤
var (
	// ErrEmptyName entry 名稱為空
	ErrEmptyName = New(ErrCodeInvalidInput, "cache entry name is required")

	// ErrInvalidExpire TTL 只能是 Forever（-1）或非負整數
	ErrInvalidExpire = New(ErrCodeInvalidInput, "expire must be -1 (forever) or >= 0")

	// ErrEmptyPattern 刪除時未指定 pattern
	ErrEmptyPattern = New(ErrCodeInvalidInput, "pattern is required")

	// ErrEmptyTag tag 名稱為空
	ErrEmptyTag = New(ErrCodeInvalidInput, "tag is required")

	// ErrStoreUnavailable Redis 不可用
	ErrStoreUnavailable = New(ErrCodeUnavailable, "redis service unavailable")

	// ErrEntryNotFound entry 不存在
	ErrEntryNotFound = New(ErrCodeNotFound, "cache entry not found")
)

// Code 返回錯誤碼，非 AppError 返回空字串
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsInvalidInput 檢查是否為無效輸入錯誤
func IsInvalidInput(err error) bool {
	return Code(err) == ErrCodeInvalidInput
}

// IsNotFound 檢查是否為未找到錯誤
func IsNotFound(err error) bool {
	return Code(err) == ErrCodeNotFound
}

// IsStore 檢查是否為儲存錯誤
func IsStore(err error) bool {
	return Code(err) == ErrCodeStore
}

// IsExpireFailed 檢查是否為 TTL 設定失敗
func IsExpireFailed(err error) bool {
	return Code(err) == ErrCodeExpire
}

// IsUnavailable 檢查是否為服務不可用錯誤
func IsUnavailable(err error) bool {
	return Code(err) == ErrCodeUnavailable
}
