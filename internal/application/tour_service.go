package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-tour-reservation/internal/domain/capacity"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/tour"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/transaction"
	redisinfra "github.com/sanosuguru/go-tour-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/go-tour-reservation/internal/pkg/clock"
	"github.com/sanosuguru/go-tour-reservation/internal/pkg/logger"
)

func logWarnCache(tourID string, err error) {
	logger.Warn("空き状況キャッシュの操作に失敗",
		zap.String("tour_id", tourID),
		zap.Error(err),
	)
}

// TourService はツアー・座席枠・料金ルールの管理ユースケースを提供する
type TourService struct {
	txManager       transaction.Manager
	tourRepo        tour.Repository
	capacityRepo    capacity.Repository
	reservationRepo reservation.Repository
	cache           *redisinfra.AvailabilityCache
	clock           clock.Clock
	thresholds      capacity.Thresholds
}

func NewTourService(
	tm transaction.Manager,
	tr tour.Repository,
	cr capacity.Repository,
	rr reservation.Repository,
	cache *redisinfra.AvailabilityCache,
	clk clock.Clock,
	thresholds capacity.Thresholds,
) *TourService {
	if thresholds.Spare <= 0 {
		thresholds = capacity.DefaultThresholds
	}
	return &TourService{
		txManager:       tm,
		tourRepo:        tr,
		capacityRepo:    cr,
		reservationRepo: rr,
		cache:           cache,
		clock:           clk,
		thresholds:      thresholds,
	}
}

type CreateTourInput struct {
	Title                   string
	Description             string
	TourStart               time.Time
	TourEnd                 time.Time
	MinAge                  int
	MaxAge                  int
	MaxGuestsPerReservation int
}

func (s *TourService) CreateTour(ctx context.Context, input CreateTourInput) (*tour.Tour, error) {
	t := tour.NewTour(input.Title, input.Description, input.TourStart, input.TourEnd,
		input.MinAge, input.MaxAge, input.MaxGuestsPerReservation, s.clock.Now())
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.tourRepo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TourService) GetTour(ctx context.Context, id string) (*tour.Tour, error) {
	return s.tourRepo.GetByID(ctx, id)
}

func (s *TourService) ListTours(ctx context.Context, limit, offset int) ([]*tour.Tour, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.tourRepo.List(ctx, limit, offset)
}

// ChangeTourStatus はツアーの状態を決定表に従って変更する
func (s *TourService) ChangeTourStatus(ctx context.Context, id string, to tour.Status) (*tour.Tour, error) {
	t, err := s.tourRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := t.ChangeStatus(to, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.updateTour(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// OpenRegistration は予約受付を開始する
func (s *TourService) OpenRegistration(ctx context.Context, id string) (*tour.Tour, error) {
	return s.ChangeTourStatus(ctx, id, tour.StatusRegistrationOpen)
}

// CloseRegistration は予約受付を終了する
func (s *TourService) CloseRegistration(ctx context.Context, id string) (*tour.Tour, error) {
	return s.ChangeTourStatus(ctx, id, tour.StatusRegistrationClosed)
}

type AddCapacityPoolInput struct {
	TourID             string
	MaxSeats           int
	RegistrationStart  time.Time
	RegistrationEnd    time.Time
	MinReservationSize int
	MaxReservationSize int
	IsSpecial          bool
}

// AddCapacityPool はツアーに座席枠を追加する
// 同一ツアーの有効な枠と受付期間が重なる場合は拒否される
func (s *TourService) AddCapacityPool(ctx context.Context, input AddCapacityPoolInput) (*capacity.Pool, error) {
	t, err := s.tourRepo.GetByID(ctx, input.TourID)
	if err != nil {
		return nil, err
	}
	pool := capacity.NewPool(input.TourID, input.MaxSeats,
		input.RegistrationStart, input.RegistrationEnd,
		input.MinReservationSize, input.MaxReservationSize, s.clock.Now())
	pool.IsSpecial = input.IsSpecial
	pool.Thresholds = s.thresholds
	if err := t.AddPool(pool); err != nil {
		return nil, err
	}
	if err := s.capacityRepo.Create(ctx, pool); err != nil {
		return nil, err
	}
	s.invalidateAvailability(ctx, input.TourID)
	return pool, nil
}

type UpdateCapacityPoolInput struct {
	TourID             string
	PoolID             string
	RegistrationStart  time.Time
	RegistrationEnd    time.Time
	MinReservationSize int
	MaxReservationSize int
	IsSpecial          bool
}

// UpdateCapacityPool は座席枠の受付期間・サイズ制約を更新する
func (s *TourService) UpdateCapacityPool(ctx context.Context, input UpdateCapacityPoolInput) (*capacity.Pool, error) {
	t, err := s.tourRepo.GetByID(ctx, input.TourID)
	if err != nil {
		return nil, err
	}
	current, err := t.PoolByID(input.PoolID)
	if err != nil {
		return nil, err
	}
	updated := *current
	updated.RegistrationStart = input.RegistrationStart
	updated.RegistrationEnd = input.RegistrationEnd
	updated.MinReservationSize = input.MinReservationSize
	updated.MaxReservationSize = input.MaxReservationSize
	updated.IsSpecial = input.IsSpecial
	if err := t.UpdatePool(&updated, s.clock.Now()); err != nil {
		return nil, err
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()
	if err := s.capacityRepo.Update(ctx, tx, current); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}
	s.invalidateAvailability(ctx, input.TourID)
	return current, nil
}

// DeactivateCapacityPool は座席枠を無効化する（物理削除はしない）
func (s *TourService) DeactivateCapacityPool(ctx context.Context, tourID, poolID string) error {
	t, err := s.tourRepo.GetByID(ctx, tourID)
	if err != nil {
		return err
	}
	pool, err := t.PoolByID(poolID)
	if err != nil {
		return err
	}
	pool.Deactivate(s.clock.Now())

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()
	if err := s.capacityRepo.Update(ctx, tx, pool); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	s.invalidateAvailability(ctx, tourID)
	return nil
}

type AddPricingInput struct {
	TourID               string
	ParticipantType      reservation.ParticipantType
	BasePrice            int
	DiscountAmount       *int
	DiscountCode         *string
	ValidFrom            time.Time
	ValidUntil           time.Time
	IsDefault            bool
	IsEarlyBird          bool
	IsLastMinute         bool
	RequiredCapabilities []string
	RequiredFeatures     []string
}

// AddPricing はツアーに料金ルールを追加する
func (s *TourService) AddPricing(ctx context.Context, input AddPricingInput) (*tour.Pricing, error) {
	t, err := s.tourRepo.GetByID(ctx, input.TourID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	p := &tour.Pricing{
		TourID:               input.TourID,
		ParticipantType:      input.ParticipantType,
		BasePrice:            input.BasePrice,
		DiscountAmount:       input.DiscountAmount,
		DiscountCode:         input.DiscountCode,
		ValidFrom:            input.ValidFrom,
		ValidUntil:           input.ValidUntil,
		IsActive:             true,
		IsDefault:            input.IsDefault,
		IsEarlyBird:          input.IsEarlyBird,
		IsLastMinute:         input.IsLastMinute,
		RequiredCapabilities: input.RequiredCapabilities,
		RequiredFeatures:     input.RequiredFeatures,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := t.AddPricing(p); err != nil {
		return nil, err
	}
	if err := s.tourRepo.CreatePricing(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// AddRestrictedTour は相互排他なツアーを双方向に登録する
func (s *TourService) AddRestrictedTour(ctx context.Context, tourID, restrictedID string) error {
	t, err := s.tourRepo.GetByID(ctx, tourID)
	if err != nil {
		return err
	}
	other, err := s.tourRepo.GetByID(ctx, restrictedID)
	if err != nil {
		return err
	}
	t.AddRestrictedTour(restrictedID)
	other.AddRestrictedTour(tourID)

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()
	if err := s.tourRepo.Update(ctx, tx, t); err != nil {
		return err
	}
	if err := s.tourRepo.Update(ctx, tx, other); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}

// GetAvailableSpots はツアーの受入可能人数を返す
// キャッシュにヒットしない場合はDBから集計してキャッシュを温める
func (s *TourService) GetAvailableSpots(ctx context.Context, tourID string) (int, error) {
	if s.cache != nil {
		if spots, err := s.cache.GetAvailableSpots(ctx, tourID); err == nil {
			return spots, nil
		} else if !errors.Is(err, redisinfra.ErrCacheMiss) {
			// キャッシュ障害時はDBにフォールバックする
			logWarnCache(tourID, err)
		}
	}

	now := s.clock.Now()
	t, err := s.tourRepo.GetByID(ctx, tourID)
	if err != nil {
		return 0, err
	}
	reservations, err := s.reservationRepo.GetByTourID(ctx, tourID)
	if err != nil {
		return 0, err
	}
	spots := t.AvailableSpots(reservations, now)

	if s.cache != nil {
		if err := s.cache.SetAvailableSpots(ctx, tourID, spots, availabilityTTL); err != nil {
			logWarnCache(tourID, err)
		}
	}
	return spots, nil
}

// GetOpenPools は現在受付中の座席枠（可視なもののみ）を返す
func (s *TourService) GetOpenPools(ctx context.Context, tourID string, privileged bool) ([]*capacity.Pool, error) {
	t, err := s.tourRepo.GetByID(ctx, tourID)
	if err != nil {
		return nil, err
	}
	return t.OpenPools(s.clock.Now(), privileged), nil
}

func (s *TourService) updateTour(ctx context.Context, t *tour.Tour) error {
	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()
	if err := s.tourRepo.Update(ctx, tx, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}

func (s *TourService) invalidateAvailability(ctx context.Context, tourID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, tourID); err != nil {
		logWarnCache(tourID, err)
	}
}
