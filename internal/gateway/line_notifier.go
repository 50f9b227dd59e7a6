package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/k-negishi/group-calendar-sync/internal/domain"
)

// LINENotifier LINE Messaging APIを使用した空き時間通知の実装
type LINENotifier struct {
	channelAccessToken string
	userID             string
	httpClient         *http.Client
	endpoint           string
	location           *time.Location
}

// lineMessage LINE APIに送信するメッセージ構造体
type lineMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// linePushRequest LINE Push APIのリクエスト構造体
type linePushRequest struct {
	To       string        `json:"to"`
	Messages []lineMessage `json:"messages"`
}

// lineErrorResponse LINE APIのエラーレスポンス構造体
type lineErrorResponse struct {
	Message string `json:"message"`
	Details []struct {
		Message  string `json:"message"`
		Property string `json:"property"`
	} `json:"details"`
}

// freeRange 連続した空きスロットをまとめた時間帯
type freeRange struct {
	start     time.Time
	end       time.Time
	available int
}

// NewLINENotifier LINE通知クライアントを作成
//
// location は通知メッセージ上の時刻表示に使うタイムゾーン。
func NewLINENotifier(channelAccessToken, userID string, location *time.Location) *LINENotifier {
	if location == nil {
		location = time.UTC
	}
	return &LINENotifier{
		channelAccessToken: channelAccessToken,
		userID:             userID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		endpoint: "https://api.line.me/v2/bot/message/push",
		location: location,
	}
}

// SendFreeSlotsNotification グループの共通の空き時間をLINEで通知
func (n *LINENotifier) SendFreeSlotsNotification(ctx context.Context, groupName string, slots []domain.AvailabilitySlot, activeCount int) error {
	message := n.buildFreeSlotsMessage(groupName, slots, activeCount)
	return n.sendPushMessage(ctx, message)
}

// buildFreeSlotsMessage 空き時間通知用のメッセージを構築
func (n *LINENotifier) buildFreeSlotsMessage(groupName string, slots []domain.AvailabilitySlot, activeCount int) string {
	var messageBuilder strings.Builder

	messageBuilder.WriteString("Group Calendar Sync\n\n")

	ranges := mergeSlots(slots)
	if len(ranges) == 0 {
		messageBuilder.WriteString(fmt.Sprintf("%s: 共通の空き時間なし\n", groupName))
		return messageBuilder.String()
	}

	messageBuilder.WriteString(fmt.Sprintf("%s の共通の空き時間 (%d件):\n", groupName, len(ranges)))
	for _, r := range ranges {
		appendRangeToMessage(&messageBuilder, r, activeCount, n.location)
	}
	return messageBuilder.String()
}

// mergeSlots 隣接するスロットを1つの時間帯にまとめる。空き人数は最小値
func mergeSlots(slots []domain.AvailabilitySlot) []freeRange {
	ranges := make([]freeRange, 0, len(slots))
	for _, s := range slots {
		if last := len(ranges) - 1; last >= 0 && ranges[last].end.Equal(s.Start) {
			ranges[last].end = s.End
			if s.Available < ranges[last].available {
				ranges[last].available = s.Available
			}
			continue
		}
		ranges = append(ranges, freeRange{start: s.Start, end: s.End, available: s.Available})
	}
	return ranges
}

// appendRangeToMessage 時間帯をメッセージに追加
func appendRangeToMessage(builder *strings.Builder, r freeRange, activeCount int, loc *time.Location) {
	start := r.start.In(loc)
	end := r.end.In(loc)

	endLabel := end.Format("15:04")
	if !sameDay(start, end) {
		endLabel = fmt.Sprintf("%s(%s) %s", end.Format("1/2"), getWeekdayJapanese(end.Weekday()), end.Format("15:04"))
	}
	builder.WriteString(fmt.Sprintf("🔸 %s(%s) %s〜%s (%d/%d人)\n",
		start.Format("1/2"),
		getWeekdayJapanese(start.Weekday()),
		start.Format("15:04"),
		endLabel,
		r.available,
		activeCount))
}

// sameDay 同じ日付か
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// sendPushMessage LINE Push APIでメッセージを送信
func (n *LINENotifier) sendPushMessage(ctx context.Context, message string) error {
	// リクエストボディを作成
	pushRequest := linePushRequest{
		To: n.userID,
		Messages: []lineMessage{
			{
				Type: "text",
				Text: message,
			},
		},
	}

	requestBody, err := json.Marshal(pushRequest)
	if err != nil {
		return fmt.Errorf("リクエストボディのJSON変換に失敗しました: %v", err)
	}

	// HTTPリクエストを作成
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		n.endpoint,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", n.channelAccessToken))

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("LINE APIリクエストの送信に失敗しました: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// エラーレスポンスの詳細を取得
		var errorResponse lineErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errorResponse); err != nil {
			return fmt.Errorf("LINE API呼び出しが失敗しました (Status: %d, レスポンス解析不可: %v)", resp.StatusCode, err)
		}

		errorDetails := errorResponse.Message
		if len(errorResponse.Details) > 0 {
			errorDetails += fmt.Sprintf(" (詳細: %s)", errorResponse.Details[0].Message)
		}

		return fmt.Errorf("LINE API呼び出しが失敗しました (Status: %d): %s", resp.StatusCode, errorDetails)
	}

	return nil
}

// getWeekdayJapanese 曜日を日本語に変換
func getWeekdayJapanese(weekday time.Weekday) string {
	weekdays := map[time.Weekday]string{
		time.Sunday:    "日",
		time.Monday:    "月",
		time.Tuesday:   "火",
		time.Wednesday: "水",
		time.Thursday:  "木",
		time.Friday:    "金",
		time.Saturday:  "土",
	}
	return weekdays[weekday]
}
