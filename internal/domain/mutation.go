package domain

// Mutation ローカルの作成・編集・削除操作の結果
//
// EventCreated / EventUpdated / EventDeleted のいずれか。
type Mutation interface {
	isMutation()
}

// EventCreated イベント作成が成功した
type EventCreated struct {
	Event CalendarEvent
}

// EventUpdated イベント編集が成功した
type EventUpdated struct {
	Event CalendarEvent
}

// EventDeleted イベント削除が成功した
type EventDeleted struct {
	ID ID
}

func (EventCreated) isMutation() {}
func (EventUpdated) isMutation() {}
func (EventDeleted) isMutation() {}
