package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/k-negishi/group-calendar-sync/internal/domain"
)

// APIClient スケジュール共有サーバーの REST API クライアント
//
// イベントの永続化とグループ全体の空き状況の計算はサーバー側の責務で、
// このクライアントはその結果を取得するだけ。
type APIClient struct {
	baseURL     string
	accessToken string
	selfUserID  domain.ID
	httpClient  *http.Client
	clock       func() time.Time
	logger      *slog.Logger
}

// apiErrorResponse REST API のエラーレスポンス
type apiErrorResponse struct {
	Detail string `json:"detail"`
}

// availabilityResponse 空き状況 API のレスポンス
type availabilityResponse struct {
	Slots []struct {
		Start     string `json:"start"`
		End       string `json:"end"`
		Available int    `json:"available"`
	} `json:"slots"`
	ActiveCount  int `json:"activeCount"`
	TotalMembers int `json:"totalMembers"`
	MissingCount int `json:"missingCount"`
	StepMinutes  int `json:"stepMinutes"`
	// MemberCount totalMembers を返さない旧サーバー向け
	MemberCount int `json:"memberCount"`
}

// memberResponse メンバー一覧 API の1件分
type memberResponse struct {
	ID             domain.ID       `json:"id"`
	User           json.RawMessage `json:"user"`
	ActiveSchedule domain.ID       `json:"active_schedule"`
}

// NewAPIClient API クライアントを作成
func NewAPIClient(baseURL, accessToken string, selfUserID domain.ID, logger *slog.Logger) *APIClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		selfUserID:  selfUserID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		clock:  time.Now,
		logger: logger,
	}
}

// GetScheduleEvents スケジュールの全イベントを取得
//
// 変換できないイベントは警告を出して読み飛ばす。
func (c *APIClient) GetScheduleEvents(ctx context.Context, scheduleID domain.ID) ([]domain.CalendarEvent, error) {
	const op = "スケジュールのイベント"

	var raw []json.RawMessage
	path := fmt.Sprintf("/api/schedules/%s/events/", url.PathEscape(scheduleID.String()))
	if err := c.getJSON(ctx, op, path, nil, &raw); err != nil {
		return nil, err
	}

	events := make([]domain.CalendarEvent, 0, len(raw))
	for _, item := range raw {
		var e domain.CalendarEvent
		if err := json.Unmarshal(item, &e); err != nil {
			c.logger.Warn("イベントの変換をスキップしました", "schedule_id", scheduleID, "error", err)
			continue
		}
		if e.ScheduleID.IsZero() {
			e.ScheduleID = scheduleID
		}
		events = append(events, e)
	}

	c.logger.Debug("イベントを取得しました", "schedule_id", scheduleID, "count", len(events))
	return events, nil
}

// GetGroupAvailability グループ全体の空き状況スナップショットを取得
func (c *APIClient) GetGroupAvailability(ctx context.Context, q domain.AvailabilityQuery) (domain.AvailabilitySnapshot, error) {
	const op = "グループの空き状況"

	mode := q.Mode
	if mode == "" {
		mode = domain.AggregationActiveOnly
	}
	params := url.Values{}
	params.Set("start", domain.FormatInstant(q.RangeStart))
	params.Set("end", domain.FormatInstant(q.RangeEnd))
	params.Set("step", strconv.Itoa(q.StepMinutes))
	params.Set("mode", string(mode))
	params.Set("min_people", strconv.Itoa(q.MinPeople))
	// キャッシュされた古い集計を避ける
	params.Set("_", strconv.FormatInt(c.clock().UnixMilli(), 10))

	var res availabilityResponse
	path := fmt.Sprintf("/api/groups/%s/availability/", url.PathEscape(q.GroupID.String()))
	if err := c.getJSON(ctx, op, path, params, &res); err != nil {
		return domain.AvailabilitySnapshot{}, err
	}

	snapshot := domain.AvailabilitySnapshot{
		Slots:        make([]domain.AvailabilitySlot, 0, len(res.Slots)),
		ActiveCount:  res.ActiveCount,
		TotalMembers: res.TotalMembers,
		MissingCount: res.MissingCount,
		StepMinutes:  res.StepMinutes,
	}
	if snapshot.TotalMembers == 0 {
		snapshot.TotalMembers = res.MemberCount
	}
	if snapshot.StepMinutes == 0 {
		snapshot.StepMinutes = q.StepMinutes
	}

	for _, s := range res.Slots {
		start, err := domain.ParseInstant(s.Start)
		if err != nil {
			c.logger.Warn("スロットの変換をスキップしました", "group_id", q.GroupID, "error", err)
			continue
		}
		end, err := domain.ParseInstant(s.End)
		if err != nil {
			c.logger.Warn("スロットの変換をスキップしました", "group_id", q.GroupID, "error", err)
			continue
		}
		snapshot.Slots = append(snapshot.Slots, domain.AvailabilitySlot{Start: start, End: end, Available: s.Available})
	}

	return snapshot, nil
}

// GetGroupMembers グループのメンバー一覧を取得
//
// 設定された自分のユーザー ID と一致するメンバーに IsSelf を付ける。
func (c *APIClient) GetGroupMembers(ctx context.Context, groupID domain.ID) ([]domain.Membership, error) {
	const op = "グループのメンバー"

	var res []memberResponse
	path := fmt.Sprintf("/api/groups/%s/members/", url.PathEscape(groupID.String()))
	if err := c.getJSON(ctx, op, path, nil, &res); err != nil {
		return nil, err
	}

	members := make([]domain.Membership, 0, len(res))
	for _, m := range res {
		userID, err := parseUserID(m.User)
		if err != nil {
			c.logger.Warn("メンバーの変換をスキップしました", "group_id", groupID, "membership_id", m.ID, "error", err)
			continue
		}
		members = append(members, domain.Membership{
			MembershipID:     m.ID,
			UserID:           userID,
			ActiveScheduleID: m.ActiveSchedule,
			IsSelf:           !c.selfUserID.IsZero() && userID == c.selfUserID,
		})
	}
	return members, nil
}

// GetGroupName グループ名を取得
func (c *APIClient) GetGroupName(ctx context.Context, groupID domain.ID) (string, error) {
	const op = "グループ"

	var res struct {
		Name string `json:"name"`
	}
	path := fmt.Sprintf("/api/groups/%s/", url.PathEscape(groupID.String()))
	if err := c.getJSON(ctx, op, path, nil, &res); err != nil {
		return "", err
	}
	return res.Name, nil
}

// parseUserID user フィールドはオブジェクトか ID のどちらか
func parseUserID(raw json.RawMessage) (domain.ID, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", errors.New("user が設定されていません")
	}
	if raw[0] == '{' {
		var user struct {
			ID domain.ID `json:"id"`
		}
		if err := json.Unmarshal(raw, &user); err != nil {
			return "", err
		}
		return user.ID, nil
	}
	var id domain.ID
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", err
	}
	return id, nil
}

// getJSON GET リクエストを送信しレスポンスを out にデコード
func (c *APIClient) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &domain.FetchError{Op: op, Err: fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	if c.accessToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.FetchError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var errorResponse apiErrorResponse
		detail := strings.TrimSpace(string(body))
		if err := json.Unmarshal(body, &errorResponse); err == nil && errorResponse.Detail != "" {
			detail = errorResponse.Detail
		}
		return &domain.FetchError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(detail)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.FetchError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("レスポンスの解析に失敗しました: %w", err)}
	}
	return nil
}
