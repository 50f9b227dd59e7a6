package domain

// Membership グループへの所属情報
//
// ActiveScheduleID が空のメンバーは予定を提供しないため、重なり計算から除外される。
type Membership struct {
	MembershipID     ID
	UserID           ID
	ActiveScheduleID ID
	IsSelf           bool
}

// HasActiveSchedule アクティブなスケジュールが選択されているか
func (m Membership) HasActiveSchedule() bool {
	return !m.ActiveScheduleID.IsZero()
}
