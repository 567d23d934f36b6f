package tour

import (
	"context"

	"github.com/sanosuguru/go-tour-reservation/internal/domain/transaction"
)

// Repository はツアーリポジトリのインターフェース
// GetByID は座席枠・料金ルール・制限リストを含む集約全体を読み込む
type Repository interface {
	// Create は新しいツアーを作成する
	Create(ctx context.Context, t *Tour) error

	// GetByID はIDからツアー集約を取得する
	GetByID(ctx context.Context, id string) (*Tour, error)

	// List はツアー一覧を取得する
	List(ctx context.Context, limit, offset int) ([]*Tour, error)

	// Update はツアーを更新する（楽観的ロック、トランザクション必須）
	Update(ctx context.Context, tx transaction.Tx, t *Tour) error

	// CreatePricing は料金ルールを保存する
	CreatePricing(ctx context.Context, p *Pricing) error
}
