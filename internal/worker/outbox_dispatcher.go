package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-tour-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-tour-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-tour-reservation/internal/pkg/metrics"
)

// EventSource は未配信イベントの取得と配信済みマークを行うインターフェース
type EventSource interface {
	FetchUnpublished(ctx context.Context, limit int) ([]*reservation.Event, error)
	MarkPublished(ctx context.Context, eventIDs []string) error
}

// EventPublisher はイベントを外部に配信するインターフェース
type EventPublisher interface {
	Publish(event *reservation.Event) error
}

// OutboxDispatcher はアウトボックスの未配信イベントを定期的に配信するワーカー。
// 少なくとも1回の配信を保証するため、配信済みマークの失敗時は
// 次回のサイクルで同じイベントが再配信される
type OutboxDispatcher struct {
	source    EventSource
	publisher EventPublisher
	interval  time.Duration
	batchSize int
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewOutboxDispatcher は新しいディスパッチャーを作成
func NewOutboxDispatcher(
	source EventSource,
	publisher EventPublisher,
	interval time.Duration,
	batchSize int,
) *OutboxDispatcher {
	return &OutboxDispatcher{
		source:    source,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start はディスパッチャーを開始
func (d *OutboxDispatcher) Start(ctx context.Context) {
	logger.Info("アウトボックスディスパッチャー開始",
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	defer close(d.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("アウトボックスディスパッチャー停止（コンテキストキャンセル）")
			return
		case <-d.stopCh:
			logger.Info("アウトボックスディスパッチャー停止（シグナル受信）")
			return
		case <-ticker.C:
			d.dispatch(ctx)
		}
	}
}

// Stop はディスパッチャーを停止
func (d *OutboxDispatcher) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

// dispatch は未配信イベントを取得して配信する
func (d *OutboxDispatcher) dispatch(ctx context.Context) {
	log := logger.Get()

	events, err := d.source.FetchUnpublished(ctx, d.batchSize)
	if err != nil {
		log.Error("未配信イベントの取得失敗", zap.Error(err))
		return
	}
	if len(events) == 0 {
		return
	}

	published := make([]string, 0, len(events))
	for _, event := range events {
		if err := d.publisher.Publish(event); err != nil {
			// 配信順序を保つため、失敗した時点で中断して次回に持ち越す
			log.Error("イベント配信失敗",
				zap.String("event_id", event.EventID),
				zap.String("event_type", event.Type),
				zap.Error(err),
			)
			break
		}
		published = append(published, event.EventID)
	}

	if len(published) == 0 {
		return
	}

	if err := d.source.MarkPublished(ctx, published); err != nil {
		// マーク失敗時は次回同じイベントが再配信される（冪等な購読者を前提）
		log.Error("配信済みマークの更新失敗", zap.Error(err))
		return
	}

	if m := metrics.Get(); m != nil {
		m.OutboxPublishedTotal.Add(float64(len(published)))
	}
	log.Info("アウトボックスイベント配信", zap.Int("count", len(published)))
}
