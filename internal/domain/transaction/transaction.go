package transaction

import "context"

// Tx はトランザクションを表すインターフェース
// 座席確保と予約状態の変更を単一の作業単位としてコミットさせるための抽象化で、
// ドメイン層がインフラ層（sqlx等）に依存しないようにする
type Tx interface {
	// Commit はトランザクションをコミットする
	Commit() error
	// Rollback はトランザクションをロールバックする
	Rollback() error
}

// Manager はトランザクションを管理するインターフェース
type Manager interface {
	// Begin は新しいトランザクションを開始する
	Begin(ctx context.Context) (Tx, error)
}
