package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/k-negishi/group-calendar-sync/internal/domain"
)

// maxOccurrencesPerEvent 繰り返し展開の上限
const maxOccurrencesPerEvent = 5000

// ICSBusySource ICS フィードを予定ソースとして扱う
//
// 透過 (TRANSP:TRANSPARENT) とキャンセル済みのイベントは予定ありとみなさない。
type ICSBusySource struct {
	feedURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// icsEvent 展開前の VEVENT
type icsEvent struct {
	uid        string
	start      time.Time
	end        time.Time
	allDay     bool
	rrule      string
	exDates    []time.Time
	recurrence *time.Time
}

// NewICSBusySource ICS フィード URL の予定ソースを作成
func NewICSBusySource(feedURL string, logger *slog.Logger) *ICSBusySource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ICSBusySource{
		feedURL: feedURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// Name ログ用の識別名（クエリ文字列は秘密情報を含みうるため除く）
func (s *ICSBusySource) Name() string {
	return "ics:" + redactURL(s.feedURL)
}

// BusyIntervals フィードを取得し、範囲と重なる予定あり区間を返す
func (s *ICSBusySource) BusyIntervals(ctx context.Context, rng domain.Interval) ([]domain.Interval, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}

	body, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ICSの解析に失敗しました: %v", err)
	}

	events := make([]icsEvent, 0)
	for _, ve := range cal.Events() {
		ev, ok, err := parseBusyEvent(ve)
		if err != nil {
			s.logger.Warn("VEVENTの変換をスキップしました", "source", s.Name(), "error", err)
			continue
		}
		if ok {
			events = append(events, ev)
		}
	}

	intervals := expandBusyEvents(events, rng)
	s.logger.Debug("ICSの予定を展開しました", "source", s.Name(), "events", len(events), "intervals", len(intervals))
	return intervals, nil
}

// fetch フィード本文を取得
func (s *ICSBusySource) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %v", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &domain.FetchError{Op: s.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.FetchError{Op: s.Name(), StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.FetchError{Op: s.Name(), StatusCode: resp.StatusCode, Err: err}
	}
	if len(body) == 0 {
		return nil, errors.New("ICSの本文が空です")
	}
	return body, nil
}

// parseBusyEvent VEVENT を変換。予定ありとみなさないイベントは ok=false
func parseBusyEvent(ve *ical.VEvent) (icsEvent, bool, error) {
	var ev icsEvent

	if p := ve.GetProperty(ical.ComponentProperty("TRANSP")); p != nil && strings.EqualFold(p.Value, "TRANSPARENT") {
		return ev, false, nil
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
		return ev, false, nil
	}

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		ev.uid = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, false, errors.New("DTSTARTがありません")
	}
	ev.allDay = isDateValue(dtStart)

	var err error
	if ev.allDay {
		ev.start, err = ve.GetAllDayStartAt()
	} else {
		ev.start, err = ve.GetStartAt()
	}
	if err != nil {
		return ev, false, fmt.Errorf("開始時刻の解析に失敗しました: %v", err)
	}

	switch {
	case ve.GetProperty(ical.ComponentPropertyDtEnd) != nil && ev.allDay:
		ev.end, err = ve.GetAllDayEndAt()
	case ve.GetProperty(ical.ComponentPropertyDtEnd) != nil:
		ev.end, err = ve.GetEndAt()
	case ev.allDay:
		ev.end = ev.start.AddDate(0, 0, 1)
	default:
		// DTEND も DURATION もない場合は瞬間のイベントで、予定として扱わない
		return ev, false, nil
	}
	if err != nil {
		return ev, false, fmt.Errorf("終了時刻の解析に失敗しました: %v", err)
	}
	if !ev.start.Before(ev.end) {
		return ev, false, nil
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.rrule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, ev.start.Location()); err == nil {
				ev.exDates = append(ev.exDates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, err := parseICSTime(p.Value, ev.start.Location()); err == nil {
			ev.recurrence = &t
		}
	}

	return ev, true, nil
}

// expandBusyEvents 繰り返しを展開して範囲と重なる区間を返す
//
// RECURRENCE-ID で差し替えられた回は元の繰り返しから除き、差し替え後の時間だけを使う。
func expandBusyEvents(events []icsEvent, rng domain.Interval) []domain.Interval {
	overridden := make(map[string][]time.Time)
	for _, ev := range events {
		if ev.recurrence != nil {
			overridden[ev.uid] = append(overridden[ev.uid], *ev.recurrence)
		}
	}

	intervals := make([]domain.Interval, 0)
	add := func(start, end time.Time) {
		i := domain.Interval{Start: start.UTC(), End: end.UTC()}
		if i.Start.Before(rng.End) && rng.Start.Before(i.End) {
			intervals = append(intervals, i)
		}
	}

	for _, ev := range events {
		if ev.rrule == "" || ev.recurrence != nil {
			add(ev.start, ev.end)
			continue
		}

		r, err := rrule.StrToRRule(ev.rrule)
		if err != nil {
			continue
		}
		r.DTStart(ev.start)

		var set rrule.Set
		set.RRule(r)
		for _, ex := range ev.exDates {
			set.ExDate(ex)
		}
		for _, rid := range overridden[ev.uid] {
			set.ExDate(rid.In(ev.start.Location()))
		}

		duration := ev.end.Sub(ev.start)
		// 範囲の開始前に始まって範囲内まで続く回も拾う
		occurrences := set.Between(rng.Start.Add(-duration), rng.End, true)
		if len(occurrences) > maxOccurrencesPerEvent {
			occurrences = occurrences[:maxOccurrencesPerEvent]
		}
		for _, occ := range occurrences {
			add(occ, occ.Add(duration))
		}
	}
	return intervals
}

// isDateValue DTSTART が日付のみ (終日) か
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// parseICSTime EXDATE / RECURRENCE-ID の日付・日時を解析
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("時刻が空です")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}

// redactURL ログに出す URL からクエリ文字列を除く
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
