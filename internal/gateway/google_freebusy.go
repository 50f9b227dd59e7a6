package gateway

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/k-negishi/group-calendar-sync/internal/domain"
)

// FreeBusyProvider Google Calendar の freebusy API を呼び出すポート
type FreeBusyProvider interface {
	QueryFreeBusy(ctx context.Context, req *calendar.FreeBusyRequest) (*calendar.FreeBusyResponse, error)
}

// calendarServiceProvider calendar.Service を使った FreeBusyProvider の実装
type calendarServiceProvider struct {
	service *calendar.Service
}

func (p *calendarServiceProvider) QueryFreeBusy(ctx context.Context, req *calendar.FreeBusyRequest) (*calendar.FreeBusyResponse, error) {
	return p.service.Freebusy.Query(req).Context(ctx).Do()
}

// NewGoogleFreeBusyProvider サービスアカウント認証で freebusy API クライアントを作成
func NewGoogleFreeBusyProvider(ctx context.Context, credentialsJSON []byte) (FreeBusyProvider, error) {
	creds, err := google.CredentialsFromJSON(
		ctx,
		credentialsJSON,
		calendar.CalendarReadonlyScope,
	)
	if err != nil {
		return nil, fmt.Errorf("google認証情報の読み込みに失敗しました: %v", err)
	}

	service, err := calendar.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("google Calendar APIサービスの作成に失敗しました: %v", err)
	}

	return &calendarServiceProvider{service: service}, nil
}

// GoogleFreeBusySource グループ外の参加者の Google カレンダーを予定ソースとして扱う
type GoogleFreeBusySource struct {
	provider   FreeBusyProvider
	calendarID string
}

// NewGoogleFreeBusySource カレンダー ID を対象にした予定ソースを作成
func NewGoogleFreeBusySource(provider FreeBusyProvider, calendarID string) *GoogleFreeBusySource {
	return &GoogleFreeBusySource{
		provider:   provider,
		calendarID: calendarID,
	}
}

// Name ログ用の識別名
func (s *GoogleFreeBusySource) Name() string {
	return "google:" + s.calendarID
}

// BusyIntervals 指定範囲の予定あり区間を取得
func (s *GoogleFreeBusySource) BusyIntervals(ctx context.Context, rng domain.Interval) ([]domain.Interval, error) {
	req := &calendar.FreeBusyRequest{
		TimeMin: rng.Start.UTC().Format(time.RFC3339),
		TimeMax: rng.End.UTC().Format(time.RFC3339),
		Items:   []*calendar.FreeBusyRequestItem{{Id: s.calendarID}},
	}

	res, err := s.provider.QueryFreeBusy(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("freebusy情報の取得に失敗しました: %v", err)
	}

	cal, ok := res.Calendars[s.calendarID]
	if !ok {
		return nil, fmt.Errorf("カレンダー %s の freebusy情報がありません", s.calendarID)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("カレンダー %s の freebusy情報の取得に失敗しました: %s", s.calendarID, cal.Errors[0].Reason)
	}

	intervals := make([]domain.Interval, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		interval, err := convertTimePeriod(period)
		if err != nil {
			return nil, err
		}
		if interval.Start.Equal(interval.End) {
			continue
		}
		intervals = append(intervals, interval)
	}
	return intervals, nil
}

// convertTimePeriod freebusy の期間を区間に変換
func convertTimePeriod(period *calendar.TimePeriod) (domain.Interval, error) {
	start, err := time.Parse(time.RFC3339, period.Start)
	if err != nil {
		return domain.Interval{}, fmt.Errorf("開始時刻の解析に失敗しました: %v", err)
	}
	end, err := time.Parse(time.RFC3339, period.End)
	if err != nil {
		return domain.Interval{}, fmt.Errorf("終了時刻の解析に失敗しました: %v", err)
	}
	return domain.Interval{Start: start.UTC(), End: end.UTC()}, nil
}
