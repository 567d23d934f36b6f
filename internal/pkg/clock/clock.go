package clock

import (
	"sync"
	"time"
)

// Clock は現在時刻の取得を抽象化する
// 有効期限・受付期間の判定をテストで決定的に制御するための注入ポイント
type Clock interface {
	Now() time.Time
}

// Real は実時刻を返すクロック
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Fake はテスト用の固定時刻クロック
type Fake struct {
	mu      sync.Mutex
	current time.Time
}

// NewFake は指定時刻で固定されたクロックを作成する
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Advance は現在時刻を指定時間だけ進める
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

// Set は現在時刻を指定時刻に設定する
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
}
