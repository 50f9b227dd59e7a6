package realtime

import (
	"context"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSubscription(t *testing.T, ts *testServer, handler Handler) *Subscription {
	t.Helper()
	sub := NewSubscription(ts.URL, func(Target) Handler { return handler }, WithLogger(testLogger()))
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

func TestSubscription_Update_NotReady(t *testing.T) {
	ts := newTestServer(t)
	sub := newTestSubscription(t, ts, newRecordingHandler())

	err := sub.Update(context.Background(), ScheduleTarget("s1"), Auth{Token: "valid-token"})
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, StateIdle, sub.State())
	assertNothing(t, ts.conns)
}

func TestSubscription_Update_SameTarget(t *testing.T) {
	ts := newTestServer(t)
	sub := newTestSubscription(t, ts, newRecordingHandler())

	require.NoError(t, sub.Update(context.Background(), ScheduleTarget("s1"), validAuth))
	receive(t, ts.conns)

	require.NoError(t, sub.Update(context.Background(), ScheduleTarget("s1"), validAuth))
	assertNothing(t, ts.conns)
	assert.Equal(t, StateOpen, sub.State())
}

func TestSubscription_Update_TargetChanged(t *testing.T) {
	ts := newTestServer(t)
	sub := newTestSubscription(t, ts, newRecordingHandler())

	require.NoError(t, sub.Update(context.Background(), ScheduleTarget("s1"), validAuth))
	first := receive(t, ts.conns)

	require.NoError(t, sub.Update(context.Background(), ScheduleTarget("s2"), validAuth))

	t.Run("古い接続を閉じる", func(t *testing.T) {
		closeErr := receive(t, first.closed)
		assert.True(t, websocket.IsCloseError(closeErr, websocket.CloseNormalClosure))
	})

	second := receive(t, ts.conns)
	assert.Equal(t, "/ws/schedules/s2/", second.path)
	assert.Equal(t, ScheduleTarget("s2"), sub.Target())
}

func TestSubscription_Update_ReconnectsDroppedChannel(t *testing.T) {
	ts := newTestServer(t)
	handler := newRecordingHandler()
	sub := newTestSubscription(t, ts, handler)

	require.NoError(t, sub.Update(context.Background(), GroupTarget("g1"), validAuth))
	first := receive(t, ts.conns)
	require.NoError(t, first.conn.Close())
	receive(t, handler.errs)
	assert.Equal(t, StateClosed, sub.State())

	require.NoError(t, sub.Update(context.Background(), GroupTarget("g1"), validAuth))
	receive(t, ts.conns)
	receive(t, handler.reconnects)
	assert.Equal(t, StateOpen, sub.State())
}

func TestSubscription_Update_LostAuthClosesChannel(t *testing.T) {
	ts := newTestServer(t)
	sub := newTestSubscription(t, ts, newRecordingHandler())

	require.NoError(t, sub.Update(context.Background(), ScheduleTarget("s1"), validAuth))
	sc := receive(t, ts.conns)

	err := sub.Update(context.Background(), ScheduleTarget("s1"), Auth{Ready: true})
	assert.ErrorIs(t, err, ErrNotReady)
	receive(t, sc.closed)
	assert.Equal(t, StateIdle, sub.State())
	assert.False(t, sub.Send(AvailabilityChanged{}))
}

func TestSubscription_Update_TargetChangedSwitchesHandler(t *testing.T) {
	ts := newTestServer(t)
	first := newRecordingHandler()
	second := newRecordingHandler()
	handlers := map[Target]Handler{
		ScheduleTarget("s1"): first,
		ScheduleTarget("s2"): second,
	}
	sub := NewSubscription(ts.URL, func(t Target) Handler { return handlers[t] }, WithLogger(testLogger()))
	t.Cleanup(func() { _ = sub.Close() })

	require.NoError(t, sub.Update(context.Background(), ScheduleTarget("s1"), validAuth))
	receive(t, ts.conns)
	require.NoError(t, sub.Update(context.Background(), ScheduleTarget("s2"), validAuth))
	sc := receive(t, ts.conns)

	require.NoError(t, sc.conn.WriteMessage(websocket.TextMessage, []byte(`{"event": {"type": "deleted", "id": "1"}}`)))

	assert.Equal(t, EventDeleted{ID: "1"}, receive(t, second.messages))
	assertNothing(t, first.messages)
}

func TestSubscription_Update_NoHandler(t *testing.T) {
	ts := newTestServer(t)
	handler := newRecordingHandler()
	sub := NewSubscription(ts.URL, HandlerFor(ScheduleTarget("s1"), handler), WithLogger(testLogger()))
	t.Cleanup(func() { _ = sub.Close() })

	require.NoError(t, sub.Update(context.Background(), ScheduleTarget("s1"), validAuth))
	sc := receive(t, ts.conns)

	err := sub.Update(context.Background(), ScheduleTarget("s2"), validAuth)
	assert.ErrorIs(t, err, ErrNoHandler)

	t.Run("古い接続は閉じる", func(t *testing.T) {
		receive(t, sc.closed)
		assert.Equal(t, StateIdle, sub.State())
	})
	assertNothing(t, ts.conns)
}

func TestHandlerFor(t *testing.T) {
	handler := newRecordingHandler()
	factory := HandlerFor(GroupTarget("g1"), handler)

	assert.Equal(t, Handler(handler), factory(GroupTarget("g1")))
	assert.Nil(t, factory(GroupTarget("g2")))
	assert.Nil(t, factory(ScheduleTarget("g1")))
}
