// Package overlap はメンバーごとの予定区間から全員が空いているスロットを計算する。
//
// サーバー集計のスナップショット (internal/availability) とは独立した経路で、
// 任意に選んだメンバーの組み合わせに対するオーバーレイを求める。
package overlap

import (
	"fmt"

	"github.com/k-negishi/group-calendar-sync/internal/domain"
)

// ComputeFreeSlots グリッドの各スロットについて、全参加者が空いているか判定
//
// いずれかの参加者の区間がスロットと重なれば、そのスロットは埋まっている。
// 参加者が0人の場合はすべてのスロットが空きになるが、意味のある結果ではないため
// 強調表示するかどうかは呼び出し側が判断する。
// 不正な区間が1つでも含まれていれば計算全体を失敗させ、スロットは返さない。
func ComputeFreeSlots(grid domain.TimeGrid, participantIntervalSets [][]domain.Interval) ([]domain.Slot, error) {
	slotIntervals, err := grid.Slots()
	if err != nil {
		return nil, err
	}

	for p, intervals := range participantIntervalSets {
		for i, interval := range intervals {
			if err := interval.Validate(); err != nil {
				return nil, fmt.Errorf("参加者 %d の区間 %d: %w", p, i, err)
			}
		}
	}

	slots := make([]domain.Slot, 0, len(slotIntervals))
	for _, slot := range slotIntervals {
		slots = append(slots, domain.Slot{
			Start:      slot.Start,
			End:        slot.End,
			FreeForAll: !anyBusy(slot, participantIntervalSets),
		})
	}
	return slots, nil
}

// anyBusy いずれかの参加者がスロット内に予定を持つか
func anyBusy(slot domain.Interval, participantIntervalSets [][]domain.Interval) bool {
	for _, intervals := range participantIntervalSets {
		if busy(slot, intervals) {
			return true
		}
	}
	return false
}

// busy 区間のいずれかがスロットと重なるか
func busy(slot domain.Interval, intervals []domain.Interval) bool {
	for _, interval := range intervals {
		if interval.Start.Before(slot.End) && slot.Start.Before(interval.End) {
			return true
		}
	}
	return false
}

// FreeSet 全員が空いているスロットの開始時刻 (Unix ミリ秒) の集合
//
// 描画時にセルの開始時刻から空き判定を引くために使う。
func FreeSet(slots []domain.Slot) map[int64]struct{} {
	set := make(map[int64]struct{}, len(slots))
	for _, slot := range slots {
		if slot.FreeForAll {
			set[slot.Start.UnixMilli()] = struct{}{}
		}
	}
	return set
}
