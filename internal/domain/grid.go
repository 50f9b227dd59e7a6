package domain

import (
	"fmt"
	"time"
)

// TimeGrid 重なり計算の離散化条件
type TimeGrid struct {
	RangeStart  time.Time
	RangeEnd    time.Time
	StepMinutes int
}

// Step スロット幅
func (g TimeGrid) Step() time.Duration {
	return time.Duration(g.StepMinutes) * time.Minute
}

// Bounds グリッド全体の区間
func (g TimeGrid) Bounds() Interval {
	return Interval{Start: g.RangeStart.UTC(), End: g.RangeEnd.UTC()}
}

// Validate 範囲とステップ幅を検証
func (g TimeGrid) Validate() error {
	if g.StepMinutes <= 0 {
		return fmt.Errorf("ステップ幅は正の値である必要があります: %d", g.StepMinutes)
	}
	return g.Bounds().Validate()
}

// Slots グリッドを構成するスロット区間を生成
//
// k 番目のスロットは [RangeStart + k*step, RangeStart + (k+1)*step) で、
// 最後のスロットは RangeEnd で切り詰める。
func (g TimeGrid) Slots() ([]Interval, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	bounds := g.Bounds()
	step := g.Step()
	count := int((bounds.Duration() + step - 1) / step)

	slots := make([]Interval, 0, count)
	for k := 0; k < count; k++ {
		start := bounds.Start.Add(time.Duration(k) * step)
		end := start.Add(step)
		if end.After(bounds.End) {
			end = bounds.End
		}
		slots = append(slots, Interval{Start: start, End: end})
	}
	return slots, nil
}
