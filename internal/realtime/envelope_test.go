package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k-negishi/group-calendar-sync/internal/domain"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		expected Message
	}{
		{
			name:     "数値IDの削除",
			frame:    `{"event": {"id": 7, "type": "deleted"}}`,
			expected: EventDeleted{ID: "7"},
		},
		{
			name:     "サーバーからの変更通知",
			frame:    `{"event": {"type": "event_changed", "scheduleId": "s1"}}`,
			expected: EventChanged{ScheduleID: "s1"},
		},
		{
			name:     "グループ名の変更",
			frame:    `{"event": {"type": "group_name_updated", "groupId": 3, "name": "開発チーム"}}`,
			expected: GroupNameUpdated{GroupID: "3", Name: "開発チーム"},
		},
		{
			name:     "グループ指定なしの空き状況変更",
			frame:    `{"event": {"type": "availability_changed"}}`,
			expected: AvailabilityChanged{},
		},
		{
			name:     "eventキーのない素のペイロード",
			frame:    `{"type": "availability_changed", "groupId": "g1"}`,
			expected: AvailabilityChanged{GroupID: "g1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDecode_EventUpserted(t *testing.T) {
	frame := `{"event": {"id": "e1", "schedule": "s1", "title": "", "start": "2024-01-15T09:00:00Z", "end": "2024-01-15T10:00:00+09:00"}}`

	got, err := Decode([]byte(frame))
	require.NoError(t, err)

	upserted, ok := got.(EventUpserted)
	require.True(t, ok)
	assert.Equal(t, domain.ID("e1"), upserted.Event.ID)
	assert.Equal(t, domain.ID("s1"), upserted.Event.ScheduleID)
	assert.Equal(t, domain.DefaultEventTitle, upserted.Event.Title)
	assert.Equal(t, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), upserted.Event.Interval.Start)
	assert.Equal(t, time.Date(2024, 1, 15, 1, 0, 0, 0, time.UTC), upserted.Event.Interval.End)
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{name: "JSONでない", frame: `not json`},
		{name: "ペイロードがnull", frame: `{"event": null}`},
		{name: "IDのない削除", frame: `{"event": {"type": "deleted"}}`},
		{name: "IDのないイベント", frame: `{"event": {"title": "x", "start": "2024-01-15T09:00:00Z", "end": "2024-01-15T10:00:00Z"}}`},
		{name: "時刻が不正なイベント", frame: `{"event": {"id": "e1", "start": "yesterday", "end": "2024-01-15T10:00:00Z"}}`},
		{name: "未知のtype", frame: `{"event": {"type": "ping"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			assert.Error(t, err)
		})
	}

	_, err := Decode([]byte(`{"event": {"type": "ping"}}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestEncode(t *testing.T) {
	event := domain.CalendarEvent{
		ID:         "e1",
		ScheduleID: "s1",
		Title:      "朝会",
		Interval: domain.Interval{
			Start: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC),
		},
	}

	tests := []struct {
		name     string
		msg      Message
		expected string
	}{
		{
			name:     "イベント",
			msg:      EventUpserted{Event: event},
			expected: `{"event":{"id":"e1","scheduleId":"s1","title":"朝会","start":"2024-01-15T09:00:00.000Z","end":"2024-01-15T09:30:00.000Z"}}`,
		},
		{
			name:     "削除",
			msg:      EventDeleted{ID: "e1"},
			expected: `{"event":{"type":"deleted","id":"e1"}}`,
		},
		{
			name:     "グループ名の変更",
			msg:      GroupNameUpdated{GroupID: "g1", Name: "新しい名前"},
			expected: `{"event":{"type":"group_name_updated","groupId":"g1","name":"新しい名前"}}`,
		},
		{
			name:     "空き状況の変更",
			msg:      AvailabilityChanged{GroupID: "g1"},
			expected: `{"event":{"type":"availability_changed","groupId":"g1"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(data))

			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, decoded)
		})
	}
}
