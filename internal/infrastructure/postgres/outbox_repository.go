package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sanosuguru/go-tour-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/transaction"
)

type outboxRow struct {
	EventID   string    `db:"event_id"`
	EventType string    `db:"event_type"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

// OutboxRepository はドメインイベントの outbox テーブルを管理する
// イベントは予約の状態変更と同一トランザクションで追加され、
// ディスパッチャが未配信分を取り出して配信済みに更新する
type OutboxRepository struct{ db *sqlx.DB }

func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Append(ctx context.Context, tx transaction.Tx, event *reservation.Event) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("トランザクションが必要です")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("イベントのシリアライズに失敗: %w", err)
	}
	query := `INSERT INTO reservation_events (event_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := sqlxTx.ExecContext(ctx, query, event.EventID, event.Type, payload, event.OccurredAt); err != nil {
		return fmt.Errorf("イベント追加に失敗: %w", err)
	}
	return nil
}

func (r *OutboxRepository) FetchUnpublished(ctx context.Context, limit int) ([]*reservation.Event, error) {
	var rows []outboxRow
	query := `SELECT event_id, event_type, payload, created_at FROM reservation_events
		WHERE published_at IS NULL ORDER BY created_at LIMIT $1`
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("未配信イベント取得に失敗: %w", err)
	}
	events := make([]*reservation.Event, 0, len(rows))
	for _, row := range rows {
		var event reservation.Event
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			return nil, fmt.Errorf("イベントのデシリアライズに失敗: %w", err)
		}
		events = append(events, &event)
	}
	return events, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	query := `UPDATE reservation_events SET published_at = NOW() WHERE event_id = ANY($1)`
	if _, err := r.db.ExecContext(ctx, query, pq.StringArray(eventIDs)); err != nil {
		return fmt.Errorf("イベント配信済み更新に失敗: %w", err)
	}
	return nil
}

var _ reservation.EventOutbox = (*OutboxRepository)(nil)
