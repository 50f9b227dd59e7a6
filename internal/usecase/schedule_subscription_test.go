package usecase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k-negishi/group-calendar-sync/internal/domain"
	"github.com/k-negishi/group-calendar-sync/internal/realtime"
	"github.com/k-negishi/group-calendar-sync/internal/store"
)

// newScheduleSocketServer 接続ごとのサーバー側ソケットを conns に流す
func newScheduleSocketServer(t *testing.T) (*httptest.Server, <-chan *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conns := make(chan *websocket.Conn, 4)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts, conns
}

func nextConn(t *testing.T, conns <-chan *websocket.Conn) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("接続を待機中にタイムアウトしました")
	}
	return nil
}

func TestScheduleSync_SwitchingScheduleKeepsPreviousStore(t *testing.T) {
	ts, conns := newScheduleSocketServer(t)

	storeA := store.NewEventStore("A")
	require.NoError(t, storeA.Upsert(domain.CalendarEvent{
		ID:         "1",
		ScheduleID: "A",
		Title:      "定例",
		Interval: domain.Interval{
			Start: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		},
	}))
	syncA := NewScheduleSync(new(MockGroupReader), storeA, discardLogger())
	syncB := NewScheduleSync(new(MockGroupReader), store.NewEventStore("B"), discardLogger())

	syncs := map[realtime.Target]*ScheduleSync{
		realtime.ScheduleTarget("A"): syncA,
		realtime.ScheduleTarget("B"): syncB,
	}
	sub := realtime.NewSubscription(ts.URL, func(target realtime.Target) realtime.Handler {
		if s, ok := syncs[target]; ok {
			return s
		}
		return nil
	}, realtime.WithLogger(discardLogger()))
	t.Cleanup(func() { _ = sub.Close() })

	auth := realtime.Auth{Token: "token", Ready: true}
	ctx := context.Background()

	require.NoError(t, sub.Update(ctx, realtime.ScheduleTarget("A"), auth))
	nextConn(t, conns)
	require.NoError(t, sub.Update(ctx, realtime.ScheduleTarget("B"), auth))
	connB := nextConn(t, conns)

	require.NoError(t, connB.WriteMessage(websocket.TextMessage, []byte(`{"event": {"type": "deleted", "id": "1"}}`)))
	require.NoError(t, connB.WriteMessage(websocket.TextMessage,
		[]byte(`{"event": {"id": "2", "title": "新規", "start": "2024-01-15T11:00:00Z", "end": "2024-01-15T12:00:00Z"}}`)))

	// B の2通目が反映されていれば1通目の配送も終わっている
	assert.Eventually(t, func() bool { return syncB.Store().Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, realtime.ScheduleTarget("B"), sub.Target())
	assert.Equal(t, []domain.ID{"1"}, eventIDs(storeA.Events()))
	assert.Equal(t, []domain.ID{"2"}, eventIDs(syncB.Store().Events()))
}
