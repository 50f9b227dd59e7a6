package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"github.com/k-negishi/group-calendar-sync/internal/availability"
	"github.com/k-negishi/group-calendar-sync/internal/config"
	"github.com/k-negishi/group-calendar-sync/internal/gateway"
	"github.com/k-negishi/group-calendar-sync/internal/realtime"
	"github.com/k-negishi/group-calendar-sync/internal/store"
	"github.com/k-negishi/group-calendar-sync/internal/usecase"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "スケジュールとグループのチャネルを購読し、変更を反映し続ける",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "resync", Usage: "全件を取得し直す cron 式 (既定値は RESYNC_CRON)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)

			spec := cfg.ResyncCron
			if c.IsSet("resync") {
				spec = c.String("resync")
			}
			if _, err := cron.ParseStandard(spec); err != nil {
				return fmt.Errorf("cron式が不正です %q: %w", spec, err)
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, err := newWatcher(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer w.close()

			scheduler := cron.New()
			if _, err := scheduler.AddFunc(spec, func() { w.resync(ctx) }); err != nil {
				return fmt.Errorf("定期実行の登録に失敗しました: %w", err)
			}
			scheduler.Start()
			defer scheduler.Stop()

			logger.Info("購読を開始しました", "group_id", cfg.GroupID.String(), "schedule_id", cfg.ScheduleID.String(), "resync", spec)
			return w.run(ctx)
		},
	}
}

// watcher スケジュール・グループの購読と空き状況を束ねる
type watcher struct {
	cfg    *config.Config
	logger *slog.Logger
	auth   realtime.Auth

	snapshots *availability.SnapshotClient
	group     *usecase.GroupSync
	groupSub  *realtime.Subscription

	schedule    *usecase.ScheduleSync
	scheduleSub *realtime.Subscription
}

func newWatcher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*watcher, error) {
	apiClient := gateway.NewAPIClient(cfg.APIBaseURL, cfg.APIAccessToken, cfg.SelfUserID, logger)

	name, err := apiClient.GetGroupName(ctx, cfg.GroupID)
	if err != nil {
		logger.Warn("グループ名の取得に失敗しました", "error", err)
	}

	w := &watcher{
		cfg:       cfg,
		logger:    logger,
		auth:      realtime.Auth{Token: cfg.APIAccessToken, Ready: true},
		snapshots: availability.NewSnapshotClient(apiClient, logger),
	}

	w.group = usecase.NewGroupSync(cfg.GroupID, name, w.snapshots, logger)
	w.groupSub = realtime.NewSubscription(cfg.APIBaseURL, realtime.HandlerFor(realtime.GroupTarget(cfg.GroupID), w.group), realtime.WithLogger(logger))
	w.group.SetBroadcaster(w.groupSub)

	if !cfg.ScheduleID.IsZero() {
		w.schedule = usecase.NewScheduleSync(apiClient, store.NewEventStore(cfg.ScheduleID), logger)
		w.scheduleSub = realtime.NewSubscription(cfg.APIBaseURL, realtime.HandlerFor(realtime.ScheduleTarget(cfg.ScheduleID), w.schedule), realtime.WithLogger(logger))
		w.schedule.SetBroadcaster(w.scheduleSub)
		w.schedule.SetInvalidator(w.group)

		if err := w.schedule.Reload(ctx); err != nil {
			logger.Warn("初回のイベント取得に失敗しました", "error", err)
		}
	}

	w.fetchSnapshot(ctx)
	w.subscribe(ctx)
	return w, nil
}

// run 空き状況の変更通知を待ち、終了シグナルで戻る
func (w *watcher) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("購読を終了します")
			return nil
		case <-w.group.Changed():
			result, refreshed := w.group.SyncAvailability(ctx)
			if refreshed && result.Applied && result.Err == nil {
				w.reportSnapshot(result)
			}
		}
	}
}

// resync 定期的な全件取得。切断されたチャネルはここで張り直す
func (w *watcher) resync(ctx context.Context) {
	w.logger.Debug("定期的な再同期を実行します")

	if w.schedule != nil && w.scheduleSub.State() == realtime.StateOpen {
		if err := w.schedule.Reload(ctx); err != nil {
			w.logger.Warn("イベントの再取得に失敗しました", "error", err)
		}
	}
	w.fetchSnapshot(ctx)
	w.subscribe(ctx)
}

// subscribe 購読を最新の状態にする。切断されていれば再接続し、再接続時に全件を取り直す
func (w *watcher) subscribe(ctx context.Context) {
	if err := w.groupSub.Update(ctx, realtime.GroupTarget(w.cfg.GroupID), w.auth); err != nil {
		w.logger.Warn("グループの購読に失敗しました", "error", err)
	}
	if w.schedule == nil {
		return
	}
	if err := w.scheduleSub.Update(ctx, realtime.ScheduleTarget(w.cfg.ScheduleID), w.auth); err != nil {
		w.logger.Warn("スケジュールの購読に失敗しました", "error", err)
	}
}

// fetchSnapshot 日付が変わっても範囲が今日からになるようクエリを作り直して取得
func (w *watcher) fetchSnapshot(ctx context.Context) {
	query, err := w.cfg.AvailabilityQuery(time.Now())
	if err != nil {
		w.logger.Warn("空き状況のクエリを作成できませんでした", "error", err)
		return
	}
	result := w.snapshots.Fetch(ctx, query)
	if result.Applied && result.Err == nil {
		w.reportSnapshot(result)
	}
}

func (w *watcher) reportSnapshot(result availability.Result) {
	highlighted := result.Snapshot.Highlighted(w.cfg.MinPeople)
	w.logger.Info("空き状況を更新しました",
		"group", w.group.Name(),
		"slots", len(result.Snapshot.Slots),
		"highlighted", len(highlighted),
		"active", result.Snapshot.ActiveCount,
		"missing", result.Snapshot.MissingCount,
	)
	if w.schedule != nil {
		w.logger.Debug("スケジュールの状態", "events", w.schedule.Store().Len(), "version", w.schedule.Store().Version())
	}
}

func (w *watcher) close() {
	if w.scheduleSub != nil {
		_ = w.scheduleSub.Close()
	}
	_ = w.groupSub.Close()
	w.snapshots.Cancel()
}
