package domain

import "time"

// Slot クライアント側で計算した空き判定スロット
type Slot struct {
	Start      time.Time
	End        time.Time
	FreeForAll bool
}

// AvailabilitySlot サーバー集計によるスロットごとの空き人数
type AvailabilitySlot struct {
	Start     time.Time
	End       time.Time
	Available int
}

// AvailabilitySnapshot サーバーが計算したグループ全体の空き状況
//
// 読み取り専用として扱い、ローカルで書き換えない。
type AvailabilitySnapshot struct {
	Slots        []AvailabilitySlot
	ActiveCount  int
	TotalMembers int
	MissingCount int
	StepMinutes  int
}

// EmptySnapshot 取得失敗時などに使う空のスナップショット
func EmptySnapshot(stepMinutes int) AvailabilitySnapshot {
	return AvailabilitySnapshot{Slots: []AvailabilitySlot{}, StepMinutes: stepMinutes}
}

// SlotAt 時刻 t を含むスロットを返す
func (s AvailabilitySnapshot) SlotAt(t time.Time) (AvailabilitySlot, bool) {
	for _, slot := range s.Slots {
		if !t.Before(slot.Start) && t.Before(slot.End) {
			return slot, true
		}
	}
	return AvailabilitySlot{}, false
}

// Highlighted minRequired 人以上が空いているスロットを返す
//
// アクティブなメンバーがいない、または minRequired が0以下の場合は何も強調しない。
func (s AvailabilitySnapshot) Highlighted(minRequired int) []AvailabilitySlot {
	if s.ActiveCount == 0 || minRequired <= 0 {
		return nil
	}
	out := make([]AvailabilitySlot, 0, len(s.Slots))
	for _, slot := range s.Slots {
		if slot.Available >= minRequired {
			out = append(out, slot)
		}
	}
	return out
}

// AggregationMode サーバー集計の対象メンバー
type AggregationMode string

const (
	// AggregationActiveOnly アクティブなスケジュールを持つメンバーのみ集計
	AggregationActiveOnly AggregationMode = "active_only"
	// AggregationAllMembers 全メンバーを集計（スケジュール未選択は空きとみなす）
	AggregationAllMembers AggregationMode = "all_members"
)

// AvailabilityQuery 空き状況取得のパラメータ
type AvailabilityQuery struct {
	GroupID     ID
	RangeStart  time.Time
	RangeEnd    time.Time
	StepMinutes int
	Mode        AggregationMode
	MinPeople   int
}

// Valid リクエストを発行できる条件を満たすか
func (q AvailabilityQuery) Valid() bool {
	return !q.GroupID.IsZero() &&
		!q.RangeStart.IsZero() &&
		q.RangeStart.Before(q.RangeEnd) &&
		q.StepMinutes > 0
}

// Grid 同じ範囲・ステップ幅のタイムグリッド
func (q AvailabilityQuery) Grid() TimeGrid {
	return TimeGrid{RangeStart: q.RangeStart, RangeEnd: q.RangeEnd, StepMinutes: q.StepMinutes}
}
