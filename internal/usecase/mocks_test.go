package usecase

import (
	"context"
	"io"
	"log/slog"

	"github.com/stretchr/testify/mock"

	"github.com/k-negishi/group-calendar-sync/internal/availability"
	"github.com/k-negishi/group-calendar-sync/internal/domain"
	"github.com/k-negishi/group-calendar-sync/internal/realtime"
)

// MockGroupReader は GroupReader / EventFetcher のテスト用モック
type MockGroupReader struct {
	mock.Mock
}

func (m *MockGroupReader) GetGroupMembers(ctx context.Context, groupID domain.ID) ([]domain.Membership, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Membership), args.Error(1)
}

func (m *MockGroupReader) GetScheduleEvents(ctx context.Context, scheduleID domain.ID) ([]domain.CalendarEvent, error) {
	args := m.Called(ctx, scheduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CalendarEvent), args.Error(1)
}

// MockBroadcaster は Broadcaster のテスト用モック
type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) Send(msg realtime.Message) bool {
	args := m.Called(msg)
	return args.Bool(0)
}

// MockSnapshotFetcher は SnapshotFetcher のテスト用モック
type MockSnapshotFetcher struct {
	mock.Mock
}

func (m *MockSnapshotFetcher) GetGroupAvailability(ctx context.Context, q domain.AvailabilityQuery) (domain.AvailabilitySnapshot, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(domain.AvailabilitySnapshot), args.Error(1)
}

// MockSnapshotRefresher は SnapshotRefresher のテスト用モック
type MockSnapshotRefresher struct {
	mock.Mock
}

func (m *MockSnapshotRefresher) Refresh(ctx context.Context) availability.Result {
	args := m.Called(ctx)
	return args.Get(0).(availability.Result)
}

// MockNotifier は Notifier のテスト用モック
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendFreeSlotsNotification(ctx context.Context, groupName string, slots []domain.AvailabilitySlot, activeCount int) error {
	args := m.Called(ctx, groupName, slots, activeCount)
	return args.Error(0)
}

// MockBusySource は BusySource のテスト用モック
type MockBusySource struct {
	mock.Mock
}

func (m *MockBusySource) Name() string {
	return "mock"
}

func (m *MockBusySource) BusyIntervals(ctx context.Context, rng domain.Interval) ([]domain.Interval, error) {
	args := m.Called(ctx, rng)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Interval), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
