package domain

import (
	"fmt"
	"time"
)

// Interval 半開区間 [Start, End) の予定時間帯
//
// 時刻は境界で UTC に正規化し、それ以降タイムゾーン情報は持ち回らない。
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval UTCに正規化した区間を作成
func NewInterval(start, end time.Time) (Interval, error) {
	i := Interval{Start: start.UTC(), End: end.UTC()}
	if err := i.Validate(); err != nil {
		return Interval{}, err
	}
	return i, nil
}

// Validate Start < End を満たすか検証
func (i Interval) Validate() error {
	if !i.Start.Before(i.End) {
		return fmt.Errorf("%w: start=%s end=%s", ErrInvalidInterval,
			i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
	}
	return nil
}

// Duration 区間の長さ
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Contains 時刻 t が区間に含まれるか（終端は含まない）
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Overlaps 2つの区間が重なるか判定
//
// 端が接しているだけ (a.End == b.Start) の場合は重ならない。
func Overlaps(a, b Interval) (bool, error) {
	if err := a.Validate(); err != nil {
		return false, err
	}
	if err := b.Validate(); err != nil {
		return false, err
	}
	return overlaps(a, b), nil
}

// Clip i を bounds に収まるよう切り詰める。重ならない場合は ok=false
func Clip(i, bounds Interval) (clipped Interval, ok bool, err error) {
	if err := i.Validate(); err != nil {
		return Interval{}, false, err
	}
	if err := bounds.Validate(); err != nil {
		return Interval{}, false, err
	}
	if !overlaps(i, bounds) {
		return Interval{}, false, nil
	}
	clipped = i
	if clipped.Start.Before(bounds.Start) {
		clipped.Start = bounds.Start
	}
	if clipped.End.After(bounds.End) {
		clipped.End = bounds.End
	}
	return clipped, true, nil
}

// overlaps 検証済みの区間同士の重なり判定
func overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}
