package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/k-negishi/group-calendar-sync/internal/domain"
	"github.com/k-negishi/group-calendar-sync/internal/overlap"
)

// GroupReader グループのメンバーとスケジュールのイベントを取得するポート
type GroupReader interface {
	GetGroupMembers(ctx context.Context, groupID domain.ID) ([]domain.Membership, error)
	EventFetcher
}

// BusySource グループ外の予定ソース（Google カレンダー、ICS フィードなど）
type BusySource interface {
	Name() string
	BusyIntervals(ctx context.Context, rng domain.Interval) ([]domain.Interval, error)
}

// OverlayUseCase 選択したメンバーの共通の空き時間を計算するユースケース
type OverlayUseCase struct {
	reader  GroupReader
	sources []BusySource
	logger  *slog.Logger
}

// NewOverlayUseCase ユースケースを生成
func NewOverlayUseCase(reader GroupReader, sources []BusySource, logger *slog.Logger) *OverlayUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &OverlayUseCase{
		reader:  reader,
		sources: sources,
		logger:  logger,
	}
}

// Execute メンバーの予定と外部の予定ソースを重ねて空きスロットを計算する
//
// selected が空の場合はグループの全メンバーを対象にする。
func (uc *OverlayUseCase) Execute(ctx context.Context, groupID domain.ID, selected []domain.ID, grid domain.TimeGrid) (overlap.Overlay, error) {
	if err := grid.Validate(); err != nil {
		return overlap.Overlay{}, err
	}

	members, err := uc.reader.GetGroupMembers(ctx, groupID)
	if err != nil {
		uc.logger.Warn("メンバーの取得に失敗しました", "group_id", groupID.String(), "error", err)
		return overlap.Overlay{}, err
	}

	if len(selected) == 0 {
		selected = make([]domain.ID, 0, len(members))
		for _, m := range members {
			selected = append(selected, m.MembershipID)
		}
	}

	eventsBySchedule, err := uc.fetchSelectedEvents(ctx, members, selected)
	if err != nil {
		return overlap.Overlay{}, err
	}

	external := make([][]domain.Interval, 0, len(uc.sources))
	for _, src := range uc.sources {
		intervals, err := src.BusyIntervals(ctx, grid.Bounds())
		if err != nil {
			uc.logger.Warn("外部の予定ソースの取得に失敗しました", "source", src.Name(), "error", err)
			return overlap.Overlay{}, fmt.Errorf("予定ソース %s の取得に失敗しました: %w", src.Name(), err)
		}
		external = append(external, intervals)
	}

	result, err := overlap.ComputeOverlay(grid, members, selected, eventsBySchedule, external...)
	if err != nil {
		return overlap.Overlay{}, err
	}

	if len(result.Excluded) > 0 {
		uc.logger.Info("アクティブなスケジュールがないメンバーを除外しました", "excluded", len(result.Excluded))
	}
	return result, nil
}

// fetchSelectedEvents 選択メンバーのアクティブなスケジュールのイベントを取得
func (uc *OverlayUseCase) fetchSelectedEvents(ctx context.Context, members []domain.Membership, selected []domain.ID) (map[domain.ID][]domain.CalendarEvent, error) {
	wanted := make(map[domain.ID]bool, len(selected))
	for _, id := range selected {
		wanted[id] = true
	}

	eventsBySchedule := make(map[domain.ID][]domain.CalendarEvent)
	for _, m := range members {
		if !wanted[m.MembershipID] || !m.HasActiveSchedule() {
			continue
		}
		if _, ok := eventsBySchedule[m.ActiveScheduleID]; ok {
			continue
		}

		events, err := uc.reader.GetScheduleEvents(ctx, m.ActiveScheduleID)
		if err != nil {
			uc.logger.Warn("メンバーのイベント取得に失敗しました", "membership_id", m.MembershipID.String(), "error", err)
			return nil, err
		}
		eventsBySchedule[m.ActiveScheduleID] = events
	}
	return eventsBySchedule, nil
}
