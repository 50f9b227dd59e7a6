package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidInterval 開始時刻が終了時刻以降の不正な区間
var ErrInvalidInterval = errors.New("不正な区間です")

// FetchError イベント・空き状況の取得失敗
//
// 呼び出し側は直前の安全な状態にフォールバックし、通知として扱う。
type FetchError struct {
	Op         string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s の取得に失敗しました (Status: %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s の取得に失敗しました: %v", e.Op, e.Err)
}

// Unwrap 元のエラーを返す
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ChannelError リアルタイムチャネルのソケットエラー・切断
type ChannelError struct {
	Target string
	Err    error
}

// Error implements the error interface.
func (e *ChannelError) Error() string {
	return fmt.Sprintf("チャネル %s でエラーが発生しました: %v", e.Target, e.Err)
}

// Unwrap 元のエラーを返す
func (e *ChannelError) Unwrap() error {
	return e.Err
}

// ErrorKind ログ出力用にエラーの種別を返す
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrInvalidInterval) {
		return "invalid_interval"
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return "fetch_failure"
	}
	var chErr *ChannelError
	if errors.As(err, &chErr) {
		return "channel_error"
	}
	return "unexpected"
}
