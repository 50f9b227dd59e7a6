package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/k-negishi/group-calendar-sync/internal/domain"
	"github.com/k-negishi/group-calendar-sync/internal/realtime"
	"github.com/k-negishi/group-calendar-sync/internal/store"
)

// EventFetcher スケジュールのイベントを全件取得するポート
type EventFetcher interface {
	GetScheduleEvents(ctx context.Context, scheduleID domain.ID) ([]domain.CalendarEvent, error)
}

// Broadcaster 購読中のチャネルへ送信するポート
type Broadcaster interface {
	Send(msg realtime.Message) bool
}

// AvailabilityInvalidator ストアの変更を空き状況の再計算につなぐ
type AvailabilityInvalidator interface {
	InvalidateAvailability()
}

// ScheduleSync 1つのスケジュールのイベントをサーバー・ソケットと同期する
//
// ローカル操作もリモートのメッセージも EventStore の Load / Upsert / Remove だけを通す。
type ScheduleSync struct {
	fetcher EventFetcher
	store   *store.EventStore
	logger  *slog.Logger

	mu          sync.RWMutex
	broadcaster Broadcaster
	invalidator AvailabilityInvalidator
}

// NewScheduleSync ScheduleSync を作成
func NewScheduleSync(fetcher EventFetcher, st *store.EventStore, logger *slog.Logger) *ScheduleSync {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScheduleSync{
		fetcher: fetcher,
		store:   st,
		logger:  logger.With("schedule_id", st.ScheduleID().String()),
	}
}

// SetBroadcaster ローカル操作の送信先を設定
func (s *ScheduleSync) SetBroadcaster(b Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcaster = b
}

// SetInvalidator ストアが変わったときに知らせる先を設定
func (s *ScheduleSync) SetInvalidator(inv AvailabilityInvalidator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidator = inv
}

// Store 同期対象のストア
func (s *ScheduleSync) Store() *store.EventStore {
	return s.store
}

// Reload サーバーから全件を取得してストアを置き換える
//
// 取得に失敗した場合はストアを変更せず、エラーを返す。
func (s *ScheduleSync) Reload(ctx context.Context) error {
	events, err := s.fetcher.GetScheduleEvents(ctx, s.store.ScheduleID())
	if err != nil {
		s.logger.Warn("イベントの取得に失敗したため直前の内容を維持します", "kind", domain.ErrorKind(err), "error", err)
		return err
	}

	if err := s.store.Load(events); err != nil {
		s.logger.Warn("一部のイベントを読み込めませんでした", "error", err)
	}
	s.logger.Info("イベントを再取得しました", "count", s.store.Len(), "version", s.store.Version())
	s.invalidate()
	return nil
}

// ApplyLocal ローカルでの作成・編集・削除をストアに反映し、他のクライアントへ送信する
func (s *ScheduleSync) ApplyLocal(m domain.Mutation) error {
	var msg realtime.Message

	switch m := m.(type) {
	case domain.EventCreated:
		if err := s.store.Upsert(m.Event); err != nil {
			return fmt.Errorf("作成したイベントを反映できませんでした: %w", err)
		}
		msg = realtime.EventUpserted{Event: s.withSchedule(m.Event)}
	case domain.EventUpdated:
		if err := s.store.Upsert(m.Event); err != nil {
			return fmt.Errorf("編集したイベントを反映できませんでした: %w", err)
		}
		msg = realtime.EventUpserted{Event: s.withSchedule(m.Event)}
	case domain.EventDeleted:
		s.store.Remove(m.ID)
		msg = realtime.EventDeleted{ID: m.ID}
	default:
		return fmt.Errorf("未対応の操作です: %T", m)
	}

	s.invalidate()

	s.mu.RLock()
	b := s.broadcaster
	s.mu.RUnlock()

	if b != nil && !b.Send(msg) {
		s.logger.Debug("接続中でないため変更を送信しませんでした")
	}
	return nil
}

// HandleMessage ソケットからのメッセージをストアに反映する
func (s *ScheduleSync) HandleMessage(ctx context.Context, msg realtime.Message) {
	switch m := msg.(type) {
	case realtime.EventUpserted:
		if err := s.store.Upsert(m.Event); err != nil {
			s.logger.Warn("受信したイベントを反映できませんでした", "event_id", m.Event.ID.String(), "error", err)
			return
		}
		s.invalidate()
	case realtime.EventDeleted:
		if s.store.Remove(m.ID) {
			s.invalidate()
		}
	case realtime.EventChanged:
		if !m.ScheduleID.IsZero() && m.ScheduleID != s.store.ScheduleID() {
			return
		}
		_ = s.Reload(ctx)
	default:
		s.logger.Debug("スケジュールに関係しないメッセージを無視しました", "message", fmt.Sprintf("%T", msg))
	}
}

// HandleReconnect 再接続後は全件を取得し直す
func (s *ScheduleSync) HandleReconnect(ctx context.Context) {
	_ = s.Reload(ctx)
}

// HandleError チャネルのエラーは通知のみ。REST の取得結果が正となる
func (s *ScheduleSync) HandleError(err error) {
	s.logger.Warn("スケジュールのチャネルでエラーが発生しました", "kind", domain.ErrorKind(err), "error", err)
}

func (s *ScheduleSync) invalidate() {
	s.mu.RLock()
	inv := s.invalidator
	s.mu.RUnlock()

	if inv != nil {
		inv.InvalidateAvailability()
	}
}

func (s *ScheduleSync) withSchedule(e domain.CalendarEvent) domain.CalendarEvent {
	if e.ScheduleID.IsZero() {
		e.ScheduleID = s.store.ScheduleID()
	}
	return e.Normalize()
}
