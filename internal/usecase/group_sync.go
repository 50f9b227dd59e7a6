package usecase

import (
	"context"
	"log/slog"
	"sync"

	"github.com/k-negishi/group-calendar-sync/internal/availability"
	"github.com/k-negishi/group-calendar-sync/internal/domain"
	"github.com/k-negishi/group-calendar-sync/internal/realtime"
)

// SnapshotRefresher 空き状況を再取得するポート
type SnapshotRefresher interface {
	Refresh(ctx context.Context) availability.Result
}

// GroupSync グループ単位の通知（名前変更・空き状況変更）を扱う
//
// 空き状況の変更は理由を持たないカウンタとして扱い、前回の同期から動いていれば再取得する。
type GroupSync struct {
	groupID domain.ID
	client  SnapshotRefresher
	logger  *slog.Logger
	nonce   domain.Nonce
	changed chan struct{}

	mu          sync.Mutex
	name        string
	synced      uint64
	broadcaster Broadcaster
}

// NewGroupSync GroupSync を作成
func NewGroupSync(groupID domain.ID, name string, client SnapshotRefresher, logger *slog.Logger) *GroupSync {
	if logger == nil {
		logger = slog.Default()
	}
	return &GroupSync{
		groupID: groupID,
		client:  client,
		logger:  logger.With("group_id", groupID.String()),
		changed: make(chan struct{}, 1),
		name:    name,
	}
}

// SetBroadcaster 名前変更の送信先を設定
func (g *GroupSync) SetBroadcaster(b Broadcaster) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.broadcaster = b
}

// Name 現在のグループ名
func (g *GroupSync) Name() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.name
}

// AvailabilityNonce 空き状況の変更カウンタ
func (g *GroupSync) AvailabilityNonce() uint64 {
	return g.nonce.Load()
}

// Changed 空き状況の変更カウンタが動いたときに通知される
//
// 通知は合流するため、受け取ったら SyncAvailability を1回呼べばよい。
func (g *GroupSync) Changed() <-chan struct{} {
	return g.changed
}

// HandleMessage グループ名・空き状況の変更を反映する
func (g *GroupSync) HandleMessage(_ context.Context, msg realtime.Message) {
	switch m := msg.(type) {
	case realtime.GroupNameUpdated:
		if m.GroupID != g.groupID {
			return
		}
		g.mu.Lock()
		g.name = m.Name
		g.mu.Unlock()
		g.logger.Info("グループ名が変更されました", "name", m.Name)
	case realtime.AvailabilityChanged:
		if !m.GroupID.IsZero() && m.GroupID != g.groupID {
			return
		}
		g.bump()
	}
}

// HandleReconnect 再接続後は空き状況の再取得を促す
func (g *GroupSync) HandleReconnect(ctx context.Context) {
	g.bump()
}

// InvalidateAvailability スケジュール側の変更で空き状況を古いものとして扱う
func (g *GroupSync) InvalidateAvailability() {
	g.bump()
}

// HandleError チャネルのエラーは通知のみ
func (g *GroupSync) HandleError(err error) {
	g.logger.Warn("グループのチャネルでエラーが発生しました", "kind", domain.ErrorKind(err), "error", err)
}

// SyncAvailability 前回の同期からカウンタが動いていれば空き状況を再取得する
func (g *GroupSync) SyncAvailability(ctx context.Context) (availability.Result, bool) {
	current := g.nonce.Load()

	g.mu.Lock()
	if current == g.synced {
		g.mu.Unlock()
		return availability.Result{}, false
	}
	g.synced = current
	g.mu.Unlock()

	result := g.client.Refresh(ctx)
	if result.Err != nil {
		g.logger.Warn("空き状況の再取得に失敗しました", "nonce", current, "error", result.Err)
	}
	return result, true
}

// AnnounceRename グループ名を変更し、他のクライアントへ送信する
func (g *GroupSync) AnnounceRename(name string) bool {
	g.mu.Lock()
	g.name = name
	b := g.broadcaster
	g.mu.Unlock()

	if b == nil {
		return false
	}
	return b.Send(realtime.GroupNameUpdated{GroupID: g.groupID, Name: name})
}

func (g *GroupSync) bump() {
	n := g.nonce.Bump()
	g.logger.Debug("空き状況の変更カウンタを進めました", "nonce", n)
	select {
	case g.changed <- struct{}{}:
	default:
	}
}
