package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/k-negishi/group-calendar-sync/internal/domain"
)

// 制御メッセージの type
const (
	typeDeleted             = "deleted"
	typeEventChanged        = "event_changed"
	typeGroupNameUpdated    = "group_name_updated"
	typeAvailabilityChanged = "availability_changed"
)

// ErrUnknownMessage 解釈できない type を持つメッセージ
var ErrUnknownMessage = errors.New("未対応のメッセージです")

// Message チャネル上を流れるメッセージ
type Message interface {
	isMessage()
}

// EventUpserted イベントの作成・更新
type EventUpserted struct {
	Event domain.CalendarEvent
}

// EventDeleted イベントの削除
type EventDeleted struct {
	ID domain.ID
}

// EventChanged サーバーからの「スケジュールが変わった」通知。内容は含まない
type EventChanged struct {
	ScheduleID domain.ID
}

// GroupNameUpdated グループ名の変更
type GroupNameUpdated struct {
	GroupID domain.ID
	Name    string
}

// AvailabilityChanged 空き状況が変わった通知。GroupID が空の場合は全グループが対象
type AvailabilityChanged struct {
	GroupID domain.ID
}

func (EventUpserted) isMessage()       {}
func (EventDeleted) isMessage()        {}
func (EventChanged) isMessage()        {}
func (GroupNameUpdated) isMessage()    {}
func (AvailabilityChanged) isMessage() {}

type envelope struct {
	Event json.RawMessage `json:"event"`
}

type controlPayload struct {
	Type       string    `json:"type"`
	ID         domain.ID `json:"id,omitempty"`
	GroupID    domain.ID `json:"groupId,omitempty"`
	ScheduleID domain.ID `json:"scheduleId,omitempty"`
	Name       string    `json:"name,omitempty"`
}

// Decode {"event": <payload>} 形式のフレームを解釈する
//
// event キーを持たない素のペイロードも受け付ける。
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("メッセージのJSON解析に失敗しました: %w", err)
	}

	payload := []byte(env.Event)
	if len(payload) == 0 {
		payload = data
	}
	if bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		return nil, errors.New("メッセージのペイロードが空です")
	}

	var head controlPayload
	if err := json.Unmarshal(payload, &head); err != nil {
		return nil, fmt.Errorf("メッセージのJSON解析に失敗しました: %w", err)
	}

	switch head.Type {
	case typeDeleted:
		if head.ID.IsZero() {
			return nil, errors.New("削除メッセージにIDがありません")
		}
		return EventDeleted{ID: head.ID}, nil
	case typeEventChanged:
		return EventChanged{ScheduleID: head.ScheduleID}, nil
	case typeGroupNameUpdated:
		return GroupNameUpdated{GroupID: head.GroupID, Name: head.Name}, nil
	case typeAvailabilityChanged:
		return AvailabilityChanged{GroupID: head.GroupID}, nil
	case "":
		var event domain.CalendarEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, err
		}
		if event.ID.IsZero() {
			return nil, errors.New("イベントにIDがありません")
		}
		return EventUpserted{Event: event}, nil
	default:
		return nil, fmt.Errorf("%w: type=%s", ErrUnknownMessage, head.Type)
	}
}

// Encode メッセージを {"event": <payload>} 形式のフレームに変換する
func Encode(msg Message) ([]byte, error) {
	var payload any
	switch m := msg.(type) {
	case EventUpserted:
		payload = m.Event
	case EventDeleted:
		payload = controlPayload{Type: typeDeleted, ID: m.ID}
	case EventChanged:
		payload = controlPayload{Type: typeEventChanged, ScheduleID: m.ScheduleID}
	case GroupNameUpdated:
		payload = controlPayload{Type: typeGroupNameUpdated, GroupID: m.GroupID, Name: m.Name}
	case AvailabilityChanged:
		payload = controlPayload{Type: typeAvailabilityChanged, GroupID: m.GroupID}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}

	return json.Marshal(struct {
		Event any `json:"event"`
	}{Event: payload})
}
