// Package realtime はスケジュール・グループ単位の WebSocket 購読を扱う。
//
// チャネルは自動で再接続しない。切断後は所有者が Reconnect を呼び、
// 再接続が完了したら Handler.HandleReconnect で全件の再取得を促す。
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/k-negishi/group-calendar-sync/internal/domain"
)

// closeTimeout クローズフレーム送信の待ち時間
const closeTimeout = time.Second

// ErrNotReady 購読対象・トークン・認証の読み込みのいずれかが揃っていない
var ErrNotReady = errors.New("接続の準備ができていません")

// Dialer WebSocket の接続を確立する
//
// *websocket.Dialer がそのまま満たす。
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Handler チャネルからの通知を受け取る
//
// HandleMessage は受信ごとに読み取り用ゴルーチンから順番に呼ばれる。
// 渡される ctx は接続が閉じられるとキャンセルされる。
// Close は配送中の HandleMessage の完了を待つため、HandleMessage から Close を呼んではならない。
type Handler interface {
	HandleMessage(ctx context.Context, msg Message)
	HandleReconnect(ctx context.Context)
	HandleError(err error)
}

// Option Channel の設定
type Option func(*Channel)

// WithDialer 接続に使う Dialer を指定
func WithDialer(d Dialer) Option {
	return func(c *Channel) {
		c.dialer = d
	}
}

// WithLogger ロガーを指定
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = l
	}
}

// WithStateObserver 状態遷移の通知先を指定
//
// ロックを保持したまま呼ばれるため、observer から Channel のメソッドを呼んではならない。
func WithStateObserver(f func(Target, State)) Option {
	return func(c *Channel) {
		c.observer = f
	}
}

// Channel 1つの購読対象に対する WebSocket 接続
type Channel struct {
	baseURL  string
	target   Target
	auth     Auth
	handler  Handler
	dialer   Dialer
	logger   *slog.Logger
	observer func(Target, State)

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	generation uuid.UUID
	connCtx    context.Context
	cancelConn context.CancelFunc

	writeMu   sync.Mutex
	deliverMu sync.Mutex
}

// NewChannel Channel を作成。接続は Connect で開始する
func NewChannel(baseURL string, target Target, auth Auth, handler Handler, opts ...Option) *Channel {
	c := &Channel{
		baseURL: baseURL,
		target:  target,
		auth:    auth,
		handler: handler,
		dialer:  websocket.DefaultDialer,
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Target 購読対象
func (c *Channel) Target() Target {
	return c.target
}

// Token 接続に使うトークン
func (c *Channel) Token() string {
	return c.auth.Token
}

// State 現在の状態
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect 接続を開始する
//
// 購読対象・トークン・認証の読み込みが揃っていない場合は ErrNotReady を返し、状態は変えない。
func (c *Channel) Connect(ctx context.Context) error {
	if !c.ready() {
		return ErrNotReady
	}

	c.mu.Lock()
	if c.state == StateOpen || c.state == StateConnecting || c.state == StateReconnecting {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return c.dial(ctx, StateConnecting)
}

// Reconnect 既存の接続を閉じて張り直す
//
// 接続できたら Handler.HandleReconnect を呼ぶ。切断中に届かなかったメッセージは
// 復元されないため、呼び出し側は全件を取得し直す。
func (c *Channel) Reconnect(ctx context.Context) error {
	if !c.ready() {
		return ErrNotReady
	}

	if err := c.dial(ctx, StateReconnecting); err != nil {
		return err
	}
	c.handler.HandleReconnect(c.connContext())
	return nil
}

// Send 接続中の場合のみメッセージを送る
//
// 接続中でなければキューに積まずに捨てる。送信できたかどうかを返す。
func (c *Channel) Send(msg Message) bool {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != StateOpen || conn == nil {
		c.logger.Debug("接続中でないため送信を破棄しました", "target", c.target.String(), "state", state.String())
		return false
	}

	data, err := Encode(msg)
	if err != nil {
		c.logger.Warn("メッセージの変換に失敗しました", "target", c.target.String(), "error", err)
		return false
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Warn("メッセージの送信に失敗しました", "target", c.target.String(), "error", err)
		return false
	}
	return true
}

// Close クローズフレームを送って接続を閉じる。以降のメッセージは配送しない
func (c *Channel) Close() error {
	c.mu.Lock()
	conn := c.teardownLocked()
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	c.waitDelivery()
	return closeGracefully(conn)
}

func (c *Channel) ready() bool {
	return !c.target.IsZero() && c.auth.Usable()
}

// dial 既存の接続を閉じてから新しい接続を張る
func (c *Channel) dial(ctx context.Context, via State) error {
	wsURL, err := BuildURL(c.baseURL, c.target, c.auth.Token)
	if err != nil {
		return &domain.ChannelError{Target: c.target.String(), Err: err}
	}

	gen := uuid.New()

	c.mu.Lock()
	old := c.teardownLocked()
	c.generation = gen
	c.setStateLocked(via)
	c.mu.Unlock()

	c.waitDelivery()
	if err := closeGracefully(old); err != nil {
		c.logger.Debug("古い接続のクローズに失敗しました", "target", c.target.String(), "error", err)
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c.mu.Lock()
	if c.generation != gen {
		// 接続中に Close・再接続された
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return &domain.ChannelError{Target: c.target.String(), Err: errors.New("接続中に購読が終了しました")}
	}
	if err != nil {
		c.generation = uuid.Nil
		c.setStateLocked(StateClosed)
		c.mu.Unlock()

		chErr := &domain.ChannelError{Target: c.target.String(), Err: err}
		c.logger.Warn("WebSocketの接続に失敗しました", "target", c.target.String(), "error", err)
		c.handler.HandleError(chErr)
		return chErr
	}

	connCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.connCtx = connCtx
	c.cancelConn = cancel
	c.setStateLocked(StateOpen)
	c.mu.Unlock()

	c.logger.Info("WebSocketに接続しました", "target", c.target.String(), "generation", gen.String())
	go c.readLoop(connCtx, conn, gen)
	return nil
}

// readLoop 受信したメッセージを Handler に配送する
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn, gen uuid.UUID) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(gen, err)
			return
		}

		msg, err := Decode(data)
		if err != nil {
			c.logger.Warn("受信メッセージを解釈できませんでした", "target", c.target.String(), "error", err)
			continue
		}

		if !c.deliver(ctx, gen, msg) {
			return
		}
	}
}

// deliver この接続がまだ現在の接続であれば配送する
//
// 確認と配送は deliverMu で直列化され、waitDelivery が配送中の完了を待てる。
func (c *Channel) deliver(ctx context.Context, gen uuid.UUID, msg Message) bool {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	if !c.isCurrent(gen) {
		return false
	}
	c.handler.HandleMessage(ctx, msg)
	return true
}

// waitDelivery 配送中のメッセージがあれば完了を待つ。世代を切り替えた後に呼ぶ
func (c *Channel) waitDelivery() {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
}

// handleDrop 想定外の切断。自動では再接続しない
func (c *Channel) handleDrop(gen uuid.UUID, err error) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	conn := c.teardownLocked()
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	chErr := &domain.ChannelError{Target: c.target.String(), Err: err}
	c.logger.Warn("WebSocketが切断されました", "target", c.target.String(), "error", err)
	c.handler.HandleError(chErr)
}

func (c *Channel) isCurrent(gen uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

func (c *Channel) connContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connCtx == nil {
		return context.Background()
	}
	return c.connCtx
}

// teardownLocked 現在の接続を切り離して返す。c.mu を保持して呼ぶ
func (c *Channel) teardownLocked() *websocket.Conn {
	conn := c.conn
	if c.cancelConn != nil {
		c.cancelConn()
	}
	c.conn = nil
	c.connCtx = nil
	c.cancelConn = nil
	c.generation = uuid.Nil
	return conn
}

func (c *Channel) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("チャネルの状態が変わりました", "target", c.target.String(), "from", c.state.String(), "to", s.String())
	c.state = s
	if c.observer != nil {
		c.observer(c.target, s)
	}
}

// closeGracefully クローズフレームを送ってから閉じる
func closeGracefully(conn *websocket.Conn) error {
	if conn == nil {
		return nil
	}

	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "close"),
		time.Now().Add(closeTimeout),
	)

	if cerr := conn.Close(); err == nil {
		err = cerr
	}
	return err
}
