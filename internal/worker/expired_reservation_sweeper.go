package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-tour-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-tour-reservation/internal/pkg/metrics"
)

// ReservationExpirer は期限切れ予約を失効させるインターフェース
type ReservationExpirer interface {
	ExpireReservations(ctx context.Context, limit int) (int, error)
}

// ExpiredReservationSweeper は期限切れ予約を定期的に失効させ、
// 確保されたままの座席を座席枠に返却するワーカー
type ExpiredReservationSweeper struct {
	reservationService ReservationExpirer
	interval           time.Duration
	batchSize          int
	stopCh             chan struct{}
	doneCh             chan struct{}
}

// NewExpiredReservationSweeper は新しいスイーパーを作成
func NewExpiredReservationSweeper(
	rs ReservationExpirer,
	interval time.Duration,
	batchSize int,
) *ExpiredReservationSweeper {
	return &ExpiredReservationSweeper{
		reservationService: rs,
		interval:           interval,
		batchSize:          batchSize,
		stopCh:             make(chan struct{}),
		doneCh:             make(chan struct{}),
	}
}

// Start はスイーパーを開始
func (s *ExpiredReservationSweeper) Start(ctx context.Context) {
	logger.Info("期限切れ予約スイーパー開始",
		zap.Duration("interval", s.interval),
		zap.Int("batch_size", s.batchSize),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("期限切れ予約スイーパー停止（コンテキストキャンセル）")
			return
		case <-s.stopCh:
			logger.Info("期限切れ予約スイーパー停止（シグナル受信）")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop はスイーパーを停止
func (s *ExpiredReservationSweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// sweep は期限切れ予約を失効させる
func (s *ExpiredReservationSweeper) sweep(ctx context.Context) {
	log := logger.Get()
	log.Debug("期限切れ予約のスイープ開始")

	count, err := s.reservationService.ExpireReservations(ctx, s.batchSize)
	if err != nil {
		log.Error("期限切れ予約のスイープ失敗", zap.Error(err))
		return
	}

	if count > 0 {
		if m := metrics.Get(); m != nil {
			m.SweepExpirationsTotal.Add(float64(count))
		}
		log.Info("期限切れ予約を失効", zap.Int("count", count))
	} else {
		log.Debug("期限切れ予約なし")
	}
}
