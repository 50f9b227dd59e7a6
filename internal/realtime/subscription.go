package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoHandler 購読対象の受け取り先がない
var ErrNoHandler = errors.New("購読対象の受け取り先がありません")

// HandlerFactory 購読対象ごとの Handler を返す。受け取れない対象には nil を返す
type HandlerFactory func(Target) Handler

// HandlerFor 指定した購読対象にだけ h を返す HandlerFactory
func HandlerFor(target Target, h Handler) HandlerFactory {
	return func(t Target) Handler {
		if t != target {
			return nil
		}
		return h
	}
}

// Subscription 購読対象ごとにただ1つのチャネルを所有する
//
// 購読対象かトークンが変わったら古い接続を閉じてから新しく接続する。
// 新しいチャネルには新しい購読対象の Handler だけを渡す。
type Subscription struct {
	baseURL  string
	handlers HandlerFactory
	opts     []Option

	mu      sync.Mutex
	channel *Channel
}

// NewSubscription Subscription を作成
func NewSubscription(baseURL string, handlers HandlerFactory, opts ...Option) *Subscription {
	return &Subscription{
		baseURL:  baseURL,
		handlers: handlers,
		opts:     opts,
	}
}

// Update 購読対象と認証情報を反映する
//
// 準備が整っていない場合は既存の接続を閉じて ErrNotReady を返す。
// 新しい購読対象の Handler がない場合も既存の接続を閉じ、ErrNoHandler を返す。
// 対象とトークンが同じで切断されている場合は再接続する。
func (s *Subscription) Update(ctx context.Context, target Target, auth Auth) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if target.IsZero() || !auth.Usable() {
		s.closeLocked()
		return ErrNotReady
	}

	if ch := s.channel; ch != nil && ch.Target() == target && ch.Token() == auth.Token {
		switch ch.State() {
		case StateOpen, StateConnecting, StateReconnecting:
			return nil
		case StateClosed:
			return ch.Reconnect(ctx)
		default:
			return ch.Connect(ctx)
		}
	}

	s.closeLocked()

	handler := s.handlers(target)
	if handler == nil {
		return fmt.Errorf("%w: %s", ErrNoHandler, target)
	}
	s.channel = NewChannel(s.baseURL, target, auth, handler, s.opts...)
	return s.channel.Connect(ctx)
}

// Send 現在のチャネルで送信する。チャネルがなければ破棄
func (s *Subscription) Send(msg Message) bool {
	s.mu.Lock()
	ch := s.channel
	s.mu.Unlock()

	if ch == nil {
		return false
	}
	return ch.Send(msg)
}

// State 現在のチャネルの状態
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.channel == nil {
		return StateIdle
	}
	return s.channel.State()
}

// Target 現在の購読対象
func (s *Subscription) Target() Target {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.channel == nil {
		return Target{}
	}
	return s.channel.Target()
}

// Close 購読を終了する
func (s *Subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closeLocked()
}

func (s *Subscription) closeLocked() error {
	if s.channel == nil {
		return nil
	}
	err := s.channel.Close()
	s.channel = nil
	return err
}
