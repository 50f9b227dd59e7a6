package realtime

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/k-negishi/group-calendar-sync/internal/domain"
)

// State チャネルの接続状態
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateReconnecting
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Scope 購読対象の種別
type Scope string

const (
	ScopeSchedules Scope = "schedules"
	ScopeGroups    Scope = "groups"
)

// Target 購読対象（スケジュールまたはグループ）
type Target struct {
	Scope Scope
	ID    domain.ID
}

// ScheduleTarget スケジュールの購読対象
func ScheduleTarget(id domain.ID) Target {
	return Target{Scope: ScopeSchedules, ID: id}
}

// GroupTarget グループの購読対象
func GroupTarget(id domain.ID) Target {
	return Target{Scope: ScopeGroups, ID: id}
}

// IsZero 購読対象が未設定か
func (t Target) IsZero() bool {
	return t.Scope == "" || t.ID.IsZero()
}

// String implements fmt.Stringer.
func (t Target) String() string {
	return string(t.Scope) + "/" + t.ID.String()
}

// Auth 接続に使う認証情報
//
// Ready は認証情報の読み込みが完了したかどうか。未完了のトークンでは接続しない。
type Auth struct {
	Token string
	Ready bool
}

// Usable 接続に使える状態か
func (a Auth) Usable() bool {
	return a.Ready && a.Token != ""
}

// BuildURL 購読対象の WebSocket URL を組み立てる
//
// http / https のベース URL はそれぞれ ws / wss に読み替える。
func BuildURL(base string, target Target, token string) (string, error) {
	if target.IsZero() {
		return "", fmt.Errorf("購読対象が設定されていません")
	}
	if target.Scope != ScopeSchedules && target.Scope != ScopeGroups {
		return "", fmt.Errorf("未対応の購読対象です: %s", target.Scope)
	}

	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("ベースURLの解析に失敗しました: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("未対応のスキームです: %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("ベースURLにホストがありません: %q", base)
	}

	id := target.ID.String()
	u.Path = fmt.Sprintf("/ws/%s/%s/", target.Scope, id)
	u.RawPath = fmt.Sprintf("/ws/%s/%s/", target.Scope, url.PathEscape(id))
	u.RawQuery = url.Values{"token": []string{token}}.Encode()
	return u.String(), nil
}
