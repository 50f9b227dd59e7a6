package overlap

import "github.com/k-negishi/group-calendar-sync/internal/domain"

// Overlay 選択したメンバーに対する空き計算結果
type Overlay struct {
	Slots []domain.Slot
	// Participants 実際に計算に含めた参加者数（外部の予定ソースを含む）
	Participants int
	// Excluded アクティブなスケジュールがないため除外したメンバー
	Excluded []domain.ID
}

// Meaningful 強調表示に使ってよい結果か
//
// 参加者が0人の場合はすべてのスロットが空きになるため、意味を持たない。
func (o Overlay) Meaningful() bool {
	return o.Participants > 0
}

// ParticipantSets 選択したメンバーのアクティブなスケジュールから区間集合を組み立てる
//
// アクティブなスケジュールを持たないメンバーは予定を提供しないため除外し、
// 除外したメンバーの ID を返す。選択に含まれない・未知のメンバーは無視する。
func ParticipantSets(
	members []domain.Membership,
	selected []domain.ID,
	eventsBySchedule map[domain.ID][]domain.CalendarEvent,
) (sets [][]domain.Interval, excluded []domain.ID) {
	byID := make(map[domain.ID]domain.Membership, len(members))
	for _, m := range members {
		byID[m.MembershipID] = m
	}

	seen := make(map[domain.ID]bool, len(selected))
	for _, id := range selected {
		if seen[id] {
			continue
		}
		seen[id] = true

		m, ok := byID[id]
		if !ok {
			continue
		}
		if !m.HasActiveSchedule() {
			excluded = append(excluded, id)
			continue
		}

		events := eventsBySchedule[m.ActiveScheduleID]
		intervals := make([]domain.Interval, 0, len(events))
		for _, e := range events {
			intervals = append(intervals, e.Interval)
		}
		sets = append(sets, intervals)
	}
	return sets, excluded
}

// ComputeOverlay 選択メンバーと外部の予定ソースを合わせて空きスロットを計算
func ComputeOverlay(
	grid domain.TimeGrid,
	members []domain.Membership,
	selected []domain.ID,
	eventsBySchedule map[domain.ID][]domain.CalendarEvent,
	external ...[]domain.Interval,
) (Overlay, error) {
	sets, excluded := ParticipantSets(members, selected, eventsBySchedule)
	sets = append(sets, external...)

	slots, err := ComputeFreeSlots(grid, sets)
	if err != nil {
		return Overlay{}, err
	}
	return Overlay{
		Slots:        slots,
		Participants: len(sets),
		Excluded:     excluded,
	}, nil
}
