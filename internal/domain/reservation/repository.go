package reservation

import (
	"context"
	"time"

	"github.com/sanosuguru/go-tour-reservation/internal/domain/transaction"
)

// Repository は予約リポジトリのインターフェース
// 予約は参加者・価格スナップショットを含む集約単位で読み書きする
type Repository interface {
	// Create は新しい予約を作成する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, r *Reservation) error

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Reservation, error)

	// GetByTrackingCode は追跡コードから予約を取得する
	GetByTrackingCode(ctx context.Context, code string) (*Reservation, error)

	// GetByTourID はツアーIDから予約一覧を取得する
	GetByTourID(ctx context.Context, tourID string) ([]*Reservation, error)

	// GetByMemberAndTour は同一会員・同一ツアーの予約一覧を取得する
	// （競合検出と再利用候補の探索に使う）
	GetByMemberAndTour(ctx context.Context, memberID, tourID string) ([]*Reservation, error)

	// GetByMemberID は会員IDから予約一覧を取得する
	GetByMemberID(ctx context.Context, memberID string, limit, offset int) ([]*Reservation, error)

	// Update は予約を更新する（楽観的ロック、トランザクション必須）
	Update(ctx context.Context, tx transaction.Tx, r *Reservation) error

	// GetExpiredActive は有効期限を過ぎた Draft / Held / Paying の予約を取得する
	// 期限スイープが使用する
	GetExpiredActive(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)
}

// EventOutbox はドメインイベントの outbox を表すインターフェース
// 予約の状態変更と同一トランザクションで Append され、
// ディスパッチャが未配信分を取り出して配信する
type EventOutbox interface {
	// Append はイベントを outbox に追加する（トランザクション必須）
	Append(ctx context.Context, tx transaction.Tx, event *Event) error

	// FetchUnpublished は未配信イベントを古い順に取得する
	FetchUnpublished(ctx context.Context, limit int) ([]*Event, error)

	// MarkPublished は配信済みイベントに印をつける
	MarkPublished(ctx context.Context, eventIDs []string) error
}
