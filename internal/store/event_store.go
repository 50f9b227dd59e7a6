// Package store はスケジュールごとのイベント集合を保持する。
//
// ローカルの楽観的更新もリモートの同期メッセージも Load / Upsert / Remove だけを通して
// 反映することで、両者を同じ規則で突き合わせる。
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/k-negishi/group-calendar-sync/internal/domain"
)

// ErrScheduleMismatch 別スケジュールのイベントを反映しようとした
var ErrScheduleMismatch = errors.New("別のスケジュールのイベントです")

// EventStore 1つのスケジュールに属するイベントの唯一の保持先
//
// 書き込みはソケットの受信ゴルーチンからも行われるため mutex で保護し、
// 読み取り側には常にコピーを返す。
type EventStore struct {
	scheduleID domain.ID

	mu      sync.RWMutex
	events  []domain.CalendarEvent
	index   map[domain.ID]int
	version uint64
}

// NewEventStore スケジュール用の空のストアを作成
func NewEventStore(scheduleID domain.ID) *EventStore {
	return &EventStore{
		scheduleID: scheduleID,
		events:     []domain.CalendarEvent{},
		index:      map[domain.ID]int{},
	}
}

// ScheduleID 対象スケジュール
func (s *EventStore) ScheduleID() domain.ID {
	return s.scheduleID
}

// Load 取得結果で全件を置き換える
//
// 不正なイベント・他スケジュールのイベントは読み飛ばし、その件数をエラーとして返す。
// 同じ ID が複数ある場合は後のものが前の位置を上書きする。
func (s *EventStore) Load(events []domain.CalendarEvent) error {
	next := make([]domain.CalendarEvent, 0, len(events))
	index := make(map[domain.ID]int, len(events))
	skipped := 0

	for _, e := range events {
		normalized, err := s.prepare(e)
		if err != nil {
			skipped++
			continue
		}
		if idx, ok := index[normalized.ID]; ok {
			next[idx] = normalized
			continue
		}
		index[normalized.ID] = len(next)
		next = append(next, normalized)
	}

	s.mu.Lock()
	s.events = next
	s.index = index
	s.version++
	s.mu.Unlock()

	if skipped > 0 {
		return fmt.Errorf("%d件のイベントを読み込めませんでした", skipped)
	}
	return nil
}

// Upsert 未知の ID なら末尾に追加し、既知なら位置を保ったまま置き換える
//
// 同じイベントを何度適用しても1回適用した場合と同じ状態になる。
func (s *EventStore) Upsert(event domain.CalendarEvent) error {
	normalized, err := s.prepare(event)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.index[normalized.ID]; ok {
		if s.events[idx] == normalized {
			return nil
		}
		s.events[idx] = normalized
	} else {
		s.index[normalized.ID] = len(s.events)
		s.events = append(s.events, normalized)
	}
	s.version++
	return nil
}

// Remove ID のイベントを削除。存在しなければ何もしない
func (s *EventStore) Remove(id domain.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.index[id]
	if !ok {
		return false
	}

	s.events = append(s.events[:idx], s.events[idx+1:]...)
	delete(s.index, id)
	for i := idx; i < len(s.events); i++ {
		s.index[s.events[i].ID] = i
	}
	s.version++
	return true
}

// Events 現在のイベント一覧のコピー
func (s *EventStore) Events() []domain.CalendarEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CalendarEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Intervals 現在のイベントの区間一覧
func (s *EventStore) Intervals() []domain.Interval {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Interval, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Interval)
	}
	return out
}

// Get ID のイベントを返す
func (s *EventStore) Get(id domain.ID) (domain.CalendarEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.index[id]
	if !ok {
		return domain.CalendarEvent{}, false
	}
	return s.events[idx], true
}

// Len イベント件数
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Version 状態が変わるたびに増える版数
func (s *EventStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// prepare 反映前の検証と正規化
func (s *EventStore) prepare(event domain.CalendarEvent) (domain.CalendarEvent, error) {
	if event.ID.IsZero() {
		return domain.CalendarEvent{}, fmt.Errorf("イベントIDが設定されていません")
	}
	if event.ScheduleID.IsZero() {
		event.ScheduleID = s.scheduleID
	}
	if event.ScheduleID != s.scheduleID {
		return domain.CalendarEvent{}, fmt.Errorf("%w: event=%s schedule=%s", ErrScheduleMismatch, event.ID, event.ScheduleID)
	}
	if err := event.Interval.Validate(); err != nil {
		return domain.CalendarEvent{}, fmt.Errorf("イベント %s: %w", event.ID, err)
	}
	return event.Normalize(), nil
}
