// Package availability はサーバー集計の空き状況スナップショットを取得・保持する。
//
// 範囲やステップ幅が変わるたびに新しいリクエストを発行し、古いリクエストは
// キャンセルする。キャンセルが間に合わずに届いた古いレスポンスは世代番号で捨てる。
package availability

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/k-negishi/group-calendar-sync/internal/domain"
)

// ErrInvalidQuery グループ・範囲・ステップ幅のいずれかが不正で発行できないクエリ
var ErrInvalidQuery = errors.New("空き状況のクエリが不正です")

// SnapshotFetcher 空き状況スナップショットの取得元
type SnapshotFetcher interface {
	GetGroupAvailability(ctx context.Context, q domain.AvailabilityQuery) (domain.AvailabilitySnapshot, error)
}

// State 現在保持しているスナップショットと取得状況
type State struct {
	Query      domain.AvailabilityQuery
	Snapshot   domain.AvailabilitySnapshot
	Err        error
	Generation uint64
	Loading    bool
}

// Result 1回の Fetch の結果
//
// Applied が false の場合、より新しいリクエストが発行済みで結果は状態に反映されていない。
type Result struct {
	Snapshot domain.AvailabilitySnapshot
	Applied  bool
	Err      error
}

// SnapshotClient 最後に発行したリクエストの結果だけを反映するクライアント
type SnapshotClient struct {
	fetcher SnapshotFetcher
	logger  *slog.Logger

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	state      State
}

// NewSnapshotClient SnapshotClient を作成
func NewSnapshotClient(fetcher SnapshotFetcher, logger *slog.Logger) *SnapshotClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotClient{
		fetcher: fetcher,
		logger:  logger,
	}
}

// Fetch クエリのスナップショットを取得して状態に反映する
//
// 実行中の古いリクエストはキャンセルされる。取得に失敗した場合は空のスナップショットに
// フォールバックし、エラーは State.Err に残す。
func (c *SnapshotClient) Fetch(ctx context.Context, q domain.AvailabilityQuery) Result {
	if !q.Valid() {
		c.logger.Debug("不正なクエリのため空き状況を取得しません", "group_id", q.GroupID, "step", q.StepMinutes)
		return Result{Err: ErrInvalidQuery}
	}
	if q.Mode == "" {
		q.Mode = domain.AggregationActiveOnly
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.generation++
	gen := c.generation
	c.cancel = cancel
	c.state.Query = q
	c.state.Generation = gen
	c.state.Loading = true
	c.mu.Unlock()

	snapshot, err := c.fetcher.GetGroupAvailability(reqCtx, q)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.logger.Debug("古い空き状況のレスポンスを破棄しました", "generation", gen, "current", c.generation)
		return Result{Snapshot: snapshot, Err: err}
	}

	c.cancel = nil
	c.state.Loading = false

	if err != nil {
		c.logger.Warn("空き状況の取得に失敗しました", "group_id", q.GroupID, "kind", domain.ErrorKind(err), "error", err)
		c.state.Snapshot = domain.EmptySnapshot(q.StepMinutes)
		c.state.Err = err
		return Result{Snapshot: c.state.Snapshot, Applied: true, Err: err}
	}

	if snapshot.StepMinutes <= 0 {
		snapshot.StepMinutes = q.StepMinutes
	}
	c.state.Snapshot = snapshot
	c.state.Err = nil
	c.logger.Debug("空き状況を更新しました", "group_id", q.GroupID, "slots", len(snapshot.Slots), "generation", gen)
	return Result{Snapshot: snapshot, Applied: true}
}

// Refresh 現在のクエリで再取得する（パラメータが変わっていなくても発行する）
func (c *SnapshotClient) Refresh(ctx context.Context) Result {
	c.mu.Lock()
	q := c.state.Query
	c.mu.Unlock()

	return c.Fetch(ctx, q)
}

// Current 現在の状態を返す
func (c *SnapshotClient) Current() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.state
	if c.state.Snapshot.Slots != nil {
		s.Snapshot.Slots = make([]domain.AvailabilitySlot, len(c.state.Snapshot.Slots))
		copy(s.Snapshot.Slots, c.state.Snapshot.Slots)
	}
	return s
}

// Cancel 実行中のリクエストをキャンセルし、その結果を反映しないようにする
func (c *SnapshotClient) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
	c.generation++
	c.state.Generation = c.generation
	c.state.Loading = false
}
