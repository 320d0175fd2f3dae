package internal

import (
	"errors"
	"fmt"
)

// 驗證類錯誤：只回報給發出請求的玩家，不改變任何狀態
var (
	ErrUnsupportedMode  = errors.New("不支援的遊戲模式")
	ErrInvalidPayload   = errors.New("無效的請求內容")
	ErrAlreadyQueued    = errors.New("玩家已在配對佇列中")
	ErrAlreadyInSession = errors.New("玩家已在對局中")
)

// 查無資料類錯誤：非同步送達的遲到事件會碰到，呼叫端直接忽略
var (
	ErrSessionNotFound = errors.New("對局不存在")
	ErrPlayerNotFound  = errors.New("玩家不在對局中")
	ErrSessionClosed   = errors.New("對局已結束")
)

// ValidationError 請求驗證失敗
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation 判斷錯誤是否屬於驗證類
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound 判斷錯誤是否屬於查無資料類
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrPlayerNotFound) ||
		errors.Is(err, ErrSessionClosed)
}
