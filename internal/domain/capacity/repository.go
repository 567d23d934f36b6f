package capacity

import (
	"context"

	"github.com/sanosuguru/go-tour-reservation/internal/domain/transaction"
)

// Repository は座席枠リポジトリのインターフェース
type Repository interface {
	// Create は新しい座席枠を作成する
	Create(ctx context.Context, pool *Pool) error

	// GetByID はIDから座席枠を取得する
	GetByID(ctx context.Context, id string) (*Pool, error)

	// GetByTourID はツアーIDから座席枠一覧を取得する
	GetByTourID(ctx context.Context, tourID string) ([]*Pool, error)

	// Update は座席枠を更新する（楽観的ロック、トランザクション必須）
	// バージョンが一致しない場合は ErrVersionConflict を返す
	Update(ctx context.Context, tx transaction.Tx, pool *Pool) error
}
