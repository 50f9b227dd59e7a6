package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultEventTitle タイトル未設定のイベントに使う表示名
const DefaultEventTitle = "Event"

// CalendarEvent スケジュールに属するカレンダーイベント
//
// 同一スケジュール内では ID が一意になる。
type CalendarEvent struct {
	ID          ID
	ScheduleID  ID
	Title       string
	Interval    Interval
	Description string
}

// calendarEventJSON サーバー・ソケット上のイベント表現
type calendarEventJSON struct {
	ID          ID     `json:"id"`
	ScheduleID  ID     `json:"scheduleId,omitempty"`
	Schedule    ID     `json:"schedule,omitempty"`
	Title       string `json:"title"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Description string `json:"description,omitempty"`
}

// Normalize タイトルの既定値と UTC 正規化を適用したコピーを返す
func (e CalendarEvent) Normalize() CalendarEvent {
	if strings.TrimSpace(e.Title) == "" {
		e.Title = DefaultEventTitle
	}
	e.Interval.Start = e.Interval.Start.UTC()
	e.Interval.End = e.Interval.End.UTC()
	return e
}

// MarshalJSON ワイヤ形式に変換
func (e CalendarEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(calendarEventJSON{
		ID:          e.ID,
		ScheduleID:  e.ScheduleID,
		Title:       e.Title,
		Start:       FormatInstant(e.Interval.Start),
		End:         FormatInstant(e.Interval.End),
		Description: e.Description,
	})
}

// UnmarshalJSON ワイヤ形式から変換。schedule / scheduleId のどちらも受け付ける
func (e *CalendarEvent) UnmarshalJSON(data []byte) error {
	var raw calendarEventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("イベントのJSON解析に失敗しました: %w", err)
	}

	start, err := ParseInstant(raw.Start)
	if err != nil {
		return fmt.Errorf("開始時刻の解析に失敗しました: %w", err)
	}
	end, err := ParseInstant(raw.End)
	if err != nil {
		return fmt.Errorf("終了時刻の解析に失敗しました: %w", err)
	}

	scheduleID := raw.ScheduleID
	if scheduleID.IsZero() {
		scheduleID = raw.Schedule
	}

	*e = CalendarEvent{
		ID:          raw.ID,
		ScheduleID:  scheduleID,
		Title:       raw.Title,
		Interval:    Interval{Start: start, End: end},
		Description: raw.Description,
	}.Normalize()
	return nil
}

// ParseInstant ISO-8601 (RFC3339) の時刻を UTC で解析
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("時刻が設定されていません")
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatInstant UTC のミリ秒精度 ISO-8601 文字列に変換
func FormatInstant(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
