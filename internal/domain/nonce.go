package domain

import "sync/atomic"

// Nonce 「何かが変わった」ことだけを伝える単調増加カウンタ
//
// 値そのものに意味はなく、前回見た値と異なれば再計算・再取得する。
type Nonce struct {
	v atomic.Uint64
}

// Bump 値を1進めて新しい値を返す
func (n *Nonce) Bump() uint64 {
	return n.v.Add(1)
}

// Load 現在の値
func (n *Nonce) Load() uint64 {
	return n.v.Load()
}
