package usecase

import (
	"context"
	"log/slog"

	"github.com/k-negishi/group-calendar-sync/internal/domain"
)

// SnapshotFetcher グループの空き状況を取得するポート
type SnapshotFetcher interface {
	GetGroupAvailability(ctx context.Context, q domain.AvailabilityQuery) (domain.AvailabilitySnapshot, error)
}

// Notifier 通知を送信するポート
type Notifier interface {
	SendFreeSlotsNotification(ctx context.Context, groupName string, slots []domain.AvailabilitySlot, activeCount int) error
}

// NotifyFreeSlotsUseCase 共通の空き時間通知ユースケース
type NotifyFreeSlotsUseCase struct {
	fetcher  SnapshotFetcher
	notifier Notifier
	logger   *slog.Logger
}

// NewNotifyFreeSlotsUseCase ユースケースを生成
func NewNotifyFreeSlotsUseCase(fetcher SnapshotFetcher, notifier Notifier, logger *slog.Logger) *NotifyFreeSlotsUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyFreeSlotsUseCase{
		fetcher:  fetcher,
		notifier: notifier,
		logger:   logger,
	}
}

// Execute 空き状況を取得し、最少人数以上が空いているスロットを通知する
func (uc *NotifyFreeSlotsUseCase) Execute(ctx context.Context, groupName string, q domain.AvailabilityQuery) (skipped bool, err error) {
	if err := q.Grid().Validate(); err != nil {
		return false, err
	}

	// 空き状況を取得
	snapshot, err := uc.fetcher.GetGroupAvailability(ctx, q)
	if err != nil {
		uc.logger.Error("空き状況の取得に失敗しました", "group_id", q.GroupID.String(), "error", err)
		return false, err
	}

	// 強調対象のスロットがない場合はスキップ
	slots := snapshot.Highlighted(q.MinPeople)
	if len(slots) == 0 {
		uc.logger.Info("共通の空き時間がないため通知をスキップします", "active_count", snapshot.ActiveCount)
		return true, nil
	}

	// LINE通知を送信
	if err := uc.notifier.SendFreeSlotsNotification(ctx, groupName, slots, snapshot.ActiveCount); err != nil {
		uc.logger.Error("LINE通知の送信に失敗しました", "error", err)
		return false, err
	}

	return false, nil
}
