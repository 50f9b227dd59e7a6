package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID サーバーが払い出す不透明な識別子
//
// サーバーによってはUUID文字列ではなく数値で返すため、JSONでは両方を受け付ける。
type ID string

// IsZero 未設定かどうか
func (id ID) IsZero() bool {
	return id == ""
}

// String 文字列表現を返す
func (id ID) String() string {
	return string(id)
}

// UnmarshalJSON 文字列・数値・nullのいずれも受け付ける
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("IDの解析に失敗しました: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("IDの解析に失敗しました: %w", err)
	}
	*id = ID(n.String())
	return nil
}
