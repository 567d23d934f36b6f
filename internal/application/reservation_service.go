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

const (
	// 楽観的ロック競合時の再試行回数
	maxAllocationRetries = 3
	// 追跡コード衝突時の再生成回数
	maxTrackingCodeRetries = 3
	// 座席枠ロックのTTLと取得リトライ
	capacityLockTTL   = 10 * time.Second
	lockRetryAttempts = 3
	lockRetryDelay    = 100 * time.Millisecond
	availabilityTTL   = 30 * time.Second
)

// ReservationService は予約ライフサイクルのユースケースを提供する
// 状態遷移・座席の増減・イベントの outbox 追加は常に同一トランザクションで
// コミットされる
type ReservationService struct {
	txManager       transaction.Manager
	reservationRepo reservation.Repository
	capacityRepo    capacity.Repository
	tourRepo        tour.Repository
	outbox          reservation.EventOutbox
	lockManager     *redisinfra.LockManager
	cache           *redisinfra.AvailabilityCache
	clock           clock.Clock
	holdTTL         time.Duration
}

func NewReservationService(
	tm transaction.Manager,
	rr reservation.Repository,
	cr capacity.Repository,
	tr tour.Repository,
	ob reservation.EventOutbox,
	lm *redisinfra.LockManager,
	cache *redisinfra.AvailabilityCache,
	clk clock.Clock,
	holdTTL time.Duration,
) *ReservationService {
	if holdTTL <= 0 {
		holdTTL = reservation.DefaultHoldTTL
	}
	return &ReservationService{
		txManager:       tm,
		reservationRepo: rr,
		capacityRepo:    cr,
		tourRepo:        tr,
		outbox:          ob,
		lockManager:     lm,
		cache:           cache,
		clock:           clk,
		holdTTL:         holdTTL,
	}
}

type ParticipantInput struct {
	FullName       string
	NationalNumber string
	Phone          string
	BirthDate      time.Time
	Type           reservation.ParticipantType
}

type CreateReservationInput struct {
	TourID             string
	MemberID           string
	Participants       []ParticipantInput
	MemberCapabilities []string
	MemberFeatures     []string
	Privileged         bool
}

// CreateReservation は Draft の予約を作成する。座席はまだ消費しない
// 同一会員・同一ツアーの既存予約が再利用可能な場合は新規作成せずに回収する
func (s *ReservationService) CreateReservation(ctx context.Context, input CreateReservationInput) (*reservation.Reservation, error) {
	now := s.clock.Now()

	t, err := s.tourRepo.GetByID(ctx, input.TourID)
	if err != nil {
		return nil, err
	}
	if !t.IsRegistrationOpen(now, input.Privileged) {
		return nil, tour.ErrRegistrationNotOpen
	}

	if err := s.checkRestrictedTours(ctx, t, input.MemberID); err != nil {
		return nil, err
	}
	if err := s.validateParticipants(t, input.Participants); err != nil {
		return nil, err
	}

	existing, err := s.reservationRepo.GetByMemberAndTour(ctx, input.MemberID, input.TourID)
	if err != nil {
		return nil, fmt.Errorf("既存予約の取得に失敗: %w", err)
	}
	if reservation.HasConflictingReservation(existing) {
		return nil, reservation.ErrConflictingReservation
	}

	if reuse := reservation.FindBestReusableReservation(now, existing); reuse != nil {
		return s.reuseReservation(ctx, t, reuse, input, now)
	}
	return s.createNewReservation(ctx, t, input, now)
}

// checkRestrictedTours は相互排他なツアーへのアクティブな予約を検出する
func (s *ReservationService) checkRestrictedTours(ctx context.Context, t *tour.Tour, memberID string) error {
	for _, restrictedID := range t.RestrictedTourIDs {
		others, err := s.reservationRepo.GetByMemberAndTour(ctx, memberID, restrictedID)
		if err != nil {
			return fmt.Errorf("制限ツアーの予約取得に失敗: %w", err)
		}
		for _, r := range others {
			if reservation.IsActive(r.Status) {
				return tour.ErrRestrictedTour
			}
		}
	}
	return nil
}

// validateParticipants はゲスト上限と年齢範囲を検証する
func (s *ReservationService) validateParticipants(t *tour.Tour, participants []ParticipantInput) error {
	if len(participants) == 0 {
		return reservation.ErrNoParticipants
	}
	guests := 0
	for _, p := range participants {
		if p.Type == reservation.ParticipantGuest {
			guests++
		}
		if !t.IsAgeEligible(p.BirthDate) {
			return tour.ErrAgeNotEligible
		}
	}
	if t.MaxGuestsPerReservation > 0 && guests > t.MaxGuestsPerReservation {
		return tour.ErrGuestLimitExceeded
	}
	return nil
}

// reuseReservation は既存予約を回収して新しい入力内容に差し替える
// Draft は参加者ごと差し替える。期限切れの Held はここで失効させて
// 座席を返却し、Expired と同様に料金スナップショットのみ更新して
// Renew による復帰に委ねる（Expired の参加者はロックされている）
func (s *ReservationService) reuseReservation(ctx context.Context, t *tour.Tour, res *reservation.Reservation, input CreateReservationInput, now time.Time) (*reservation.Reservation, error) {
	var expireEvent *reservation.Event
	var release *capacityChange
	switch res.Status {
	case reservation.StatusHeld:
		seats := res.SeatCount()
		event, err := res.MarkAsExpired(now)
		if err != nil {
			return nil, err
		}
		expireEvent = event
		if res.CapacityID != nil {
			release = &capacityChange{capacityID: *res.CapacityID, delta: -seats}
		}
	case reservation.StatusDraft:
		for i := len(res.Participants) - 1; i >= 0; i-- {
			if err := res.RemoveParticipant(res.Participants[i].ID); err != nil {
				return nil, err
			}
		}
		if err := s.addParticipants(res, input.Participants); err != nil {
			return nil, err
		}
		res.ReservationDate = now
	}
	if err := s.captureSnapshots(t, res, input, now); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, res, expireEvent, release); err != nil {
		return nil, err
	}

	logger.Info("既存予約を再利用",
		zap.String("reservation_id", res.ID),
		zap.String("status", string(res.Status)),
	)
	return res, nil
}

func (s *ReservationService) createNewReservation(ctx context.Context, t *tour.Tour, input CreateReservationInput, now time.Time) (*reservation.Reservation, error) {
	res := reservation.NewReservation(input.TourID, input.MemberID, reservation.NewTrackingCode(), nil, now)
	if err := s.addParticipants(res, input.Participants); err != nil {
		return nil, err
	}
	if err := s.captureSnapshots(t, res, input, now); err != nil {
		return nil, err
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	// 追跡コードが衝突した場合は再生成して再試行する
	for attempt := 0; ; attempt++ {
		err = s.reservationRepo.Create(ctx, tx, res)
		if err == nil {
			break
		}
		if !errors.Is(err, reservation.ErrTrackingCodeTaken) || attempt >= maxTrackingCodeRetries {
			return nil, err
		}
		res.TrackingCode = reservation.NewTrackingCode()
	}

	if err := s.outbox.Append(ctx, tx, res.CreatedEvent(now)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}
	return res, nil
}

func (s *ReservationService) addParticipants(res *reservation.Reservation, inputs []ParticipantInput) error {
	now := s.clock.Now()
	for _, in := range inputs {
		p := reservation.NewParticipant(in.FullName, in.NationalNumber, in.Phone, in.BirthDate, in.Type, 0, now)
		if err := res.AddParticipant(p); err != nil {
			return err
		}
	}
	return nil
}

// captureSnapshots は会員用（とゲストがいる場合はゲスト用）の料金ルールを
// 現時点の内容でスナップショットとして取り込む
func (s *ReservationService) captureSnapshots(t *tour.Tour, res *reservation.Reservation, input CreateReservationInput, now time.Time) error {
	memberRule, err := t.GetPricing(reservation.ParticipantMember, now, input.MemberCapabilities, input.MemberFeatures)
	if err != nil {
		return err
	}
	if err := res.AddPriceSnapshot(memberRule.Snapshot(now)); err != nil {
		return err
	}
	if res.GuestCount() > 0 {
		guestRule, err := t.GetPricing(reservation.ParticipantGuest, now, input.MemberCapabilities, input.MemberFeatures)
		if err != nil {
			return err
		}
		if err := res.AddPriceSnapshot(guestRule.Snapshot(now)); err != nil {
			return err
		}
	}
	return nil
}

// HoldReservation は座席枠から参加者数分の座席を確保して予約を Held にする
// 座席枠の減算・予約の更新・イベント追加は同一トランザクションでコミットされる
func (s *ReservationService) HoldReservation(ctx context.Context, reservationID, capacityID string, privileged bool) (*reservation.Reservation, error) {
	now := s.clock.Now()
	res, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockCapacity(ctx, capacityID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	for attempt := 0; attempt < maxAllocationRetries; attempt++ {
		pool, err := s.capacityRepo.GetByID(ctx, capacityID)
		if err != nil {
			return nil, err
		}
		if pool.TourID != res.TourID {
			return nil, capacity.ErrPoolNotFound
		}
		if err := pool.TryAllocate(now, res.SeatCount(), privileged); err != nil {
			return nil, err
		}

		tx, err := s.txManager.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
		}
		if err := s.capacityRepo.Update(ctx, tx, pool); err != nil {
			tx.Rollback()
			if errors.Is(err, capacity.ErrVersionConflict) {
				continue
			}
			return nil, err
		}

		event, err := res.Hold(now, s.holdTTL)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		res.CapacityID = &pool.ID
		if err := s.reservationRepo.Update(ctx, tx, res); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := s.outbox.Append(ctx, tx, event); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("コミットに失敗: %w", err)
		}
		s.invalidateAvailability(ctx, res.TourID)
		return res, nil
	}
	return nil, capacity.ErrVersionConflict
}

// SetToPaying は予約を支払中に遷移させる
func (s *ReservationService) SetToPaying(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	now := s.clock.Now()
	res, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	event, err := res.SetToPaying(now)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, res, event, nil); err != nil {
		return nil, err
	}
	return res, nil
}

// ConfirmReservation は予約を確定する。合計金額はスナップショットから計算する
// skipExpiryCheck は決済ゲートウェイの遅延コールバック専用
func (s *ReservationService) ConfirmReservation(ctx context.Context, reservationID string, skipExpiryCheck bool) (*reservation.Reservation, error) {
	now := s.clock.Now()
	res, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	total, err := res.CalculateTotalFromSnapshots()
	if err != nil {
		return nil, err
	}
	event, err := res.Confirm(now, &total, skipExpiryCheck)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, res, event, nil); err != nil {
		return nil, err
	}
	return res, nil
}

// MarkPaymentFailed は支払失敗を記録する。座席は返却せず、失効で回収される
func (s *ReservationService) MarkPaymentFailed(ctx context.Context, reservationID, reason string) (*reservation.Reservation, error) {
	now := s.clock.Now()
	res, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	event, err := res.MarkPaymentFailed(now, reason)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, res, event, nil); err != nil {
		return nil, err
	}
	return res, nil
}

// RetryPayment は支払失敗した予約を再度支払中に戻す
func (s *ReservationService) RetryPayment(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	now := s.clock.Now()
	res, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	event, err := res.RetryPayment(now)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, res, event, nil); err != nil {
		return nil, err
	}
	return res, nil
}

// CancelReservation は利用者都合のキャンセル。アクティブ状態からの
// キャンセルでは確保済み座席を同一トランザクションで返却する
func (s *ReservationService) CancelReservation(ctx context.Context, reservationID, reason string) (*reservation.Reservation, error) {
	return s.cancelWith(ctx, reservationID, func(res *reservation.Reservation, now time.Time) (*reservation.Event, error) {
		return res.Cancel(now, reason)
	})
}

// SystemCancelReservation はシステム都合のキャンセル
func (s *ReservationService) SystemCancelReservation(ctx context.Context, reservationID, reason string) (*reservation.Reservation, error) {
	return s.cancelWith(ctx, reservationID, func(res *reservation.Reservation, now time.Time) (*reservation.Event, error) {
		return res.SystemCancel(now, reason)
	})
}

func (s *ReservationService) cancelWith(ctx context.Context, reservationID string, cancel func(*reservation.Reservation, time.Time) (*reservation.Event, error)) (*reservation.Reservation, error) {
	now := s.clock.Now()
	res, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	wasActive := reservation.IsActive(res.Status)
	event, err := cancel(res, now)
	if err != nil {
		return nil, err
	}
	if event == nil {
		// 冪等な再キャンセル
		return res, nil
	}
	var release *capacityChange
	if wasActive && res.CapacityID != nil {
		release = &capacityChange{capacityID: *res.CapacityID, delta: -res.SeatCount()}
	}
	if err := s.persist(ctx, res, event, release); err != nil {
		return nil, err
	}
	return res, nil
}

// RenewReservation は期限切れの予約を新しい有効期限で Held に戻す
// 座席は返却済みのため、再確保できた場合のみ成功する
func (s *ReservationService) RenewReservation(ctx context.Context, reservationID string, privileged bool) (*reservation.Reservation, error) {
	now := s.clock.Now()
	res, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.CapacityID == nil {
		return nil, capacity.ErrPoolNotFound
	}

	unlock, err := s.lockCapacity(ctx, *res.CapacityID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 期限切れのまま残っている Held はスイープを待たずにここで失効させる
	// （座席の返却と再確保を同一トランザクションにまとめる）
	var expireEvent *reservation.Event
	seatsStillHeld := false
	if res.Status == reservation.StatusHeld {
		expireEvent, err = res.MarkAsExpired(now)
		if err != nil {
			return nil, err
		}
		seatsStillHeld = true
	}

	for attempt := 0; attempt < maxAllocationRetries; attempt++ {
		pool, err := s.capacityRepo.GetByID(ctx, *res.CapacityID)
		if err != nil {
			return nil, err
		}
		if seatsStillHeld {
			pool.Release(res.SeatCount(), now)
		}
		if err := pool.TryAllocate(now, res.SeatCount(), privileged); err != nil {
			return nil, err
		}

		tx, err := s.txManager.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
		}
		if err := s.capacityRepo.Update(ctx, tx, pool); err != nil {
			tx.Rollback()
			if errors.Is(err, capacity.ErrVersionConflict) {
				continue
			}
			return nil, err
		}

		renewEvent, err := res.Renew(now, s.holdTTL)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := s.reservationRepo.Update(ctx, tx, res); err != nil {
			tx.Rollback()
			return nil, err
		}
		if expireEvent != nil {
			if err := s.outbox.Append(ctx, tx, expireEvent); err != nil {
				tx.Rollback()
				return nil, err
			}
		}
		if err := s.outbox.Append(ctx, tx, renewEvent); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("コミットに失敗: %w", err)
		}
		s.invalidateAvailability(ctx, res.TourID)
		return res, nil
	}
	return nil, capacity.ErrVersionConflict
}

// WaitlistReservation は Draft の予約をキャンセル待ちに回す
func (s *ReservationService) WaitlistReservation(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	now := s.clock.Now()
	res, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	event, err := res.Waitlist(now)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, res, event, nil); err != nil {
		return nil, err
	}
	return res, nil
}

// PromoteFromWaitlist はキャンセル待ちの予約に座席を確保して Held に昇格させる
func (s *ReservationService) PromoteFromWaitlist(ctx context.Context, reservationID, capacityID string, privileged bool) (*reservation.Reservation, error) {
	now := s.clock.Now()
	res, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockCapacity(ctx, capacityID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	for attempt := 0; attempt < maxAllocationRetries; attempt++ {
		pool, err := s.capacityRepo.GetByID(ctx, capacityID)
		if err != nil {
			return nil, err
		}
		if pool.TourID != res.TourID {
			return nil, capacity.ErrPoolNotFound
		}
		if err := pool.TryAllocate(now, res.SeatCount(), privileged); err != nil {
			return nil, err
		}

		tx, err := s.txManager.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
		}
		if err := s.capacityRepo.Update(ctx, tx, pool); err != nil {
			tx.Rollback()
			if errors.Is(err, capacity.ErrVersionConflict) {
				continue
			}
			return nil, err
		}

		event, err := res.PromoteFromWaitlist(now, s.holdTTL)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		res.CapacityID = &pool.ID
		if err := s.reservationRepo.Update(ctx, tx, res); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := s.outbox.Append(ctx, tx, event); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("コミットに失敗: %w", err)
		}
		s.invalidateAvailability(ctx, res.TourID)
		return res, nil
	}
	return nil, capacity.ErrVersionConflict
}

// BeginRefund は返金処理を開始し、確保済み座席を返却する
func (s *ReservationService) BeginRefund(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	now := s.clock.Now()
	res, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	wasActive := reservation.IsActive(res.Status)
	event, err := res.BeginRefund(now)
	if err != nil {
		return nil, err
	}
	var release *capacityChange
	if wasActive && res.CapacityID != nil {
		release = &capacityChange{capacityID: *res.CapacityID, delta: -res.SeatCount()}
	}
	if err := s.persist(ctx, res, event, release); err != nil {
		return nil, err
	}
	return res, nil
}

// CompleteRefund は返金を完了させる。座席は返金開始時に返却済み
func (s *ReservationService) CompleteRefund(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	now := s.clock.Now()
	res, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	event, err := res.CompleteRefund(now)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, res, event, nil); err != nil {
		return nil, err
	}
	return res, nil
}

// DenyRefund は返金要求を却下して予約を Confirmed に戻し、座席を再確保する
func (s *ReservationService) DenyRefund(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	return s.restoreConfirmed(ctx, reservationID, func(res *reservation.Reservation, now time.Time) (*reservation.Event, error) {
		return res.DenyRefund(now)
	})
}

// RequestCancellation は確定済み予約のキャンセル申請を受け付けて座席を返却する
func (s *ReservationService) RequestCancellation(ctx context.Context, reservationID, reason string) (*reservation.Reservation, error) {
	now := s.clock.Now()
	res, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	wasActive := reservation.IsActive(res.Status)
	event, err := res.RequestCancel(now, reason)
	if err != nil {
		return nil, err
	}
	var release *capacityChange
	if wasActive && res.CapacityID != nil {
		release = &capacityChange{capacityID: *res.CapacityID, delta: -res.SeatCount()}
	}
	if err := s.persist(ctx, res, event, release); err != nil {
		return nil, err
	}
	return res, nil
}

// DeclineCancellation はキャンセル申請を却下して座席を再確保する
func (s *ReservationService) DeclineCancellation(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	return s.restoreConfirmed(ctx, reservationID, func(res *reservation.Reservation, now time.Time) (*reservation.Event, error) {
		return res.DeclineCancelRequest(now)
	})
}

// RequestAmendment は確定済み予約の変更申請を受け付けて座席を返却する
func (s *ReservationService) RequestAmendment(ctx context.Context, reservationID, reason string) (*reservation.Reservation, error) {
	now := s.clock.Now()
	res, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	wasActive := reservation.IsActive(res.Status)
	event, err := res.RequestAmend(now, reason)
	if err != nil {
		return nil, err
	}
	var release *capacityChange
	if wasActive && res.CapacityID != nil {
		release = &capacityChange{capacityID: *res.CapacityID, delta: -res.SeatCount()}
	}
	if err := s.persist(ctx, res, event, release); err != nil {
		return nil, err
	}
	return res, nil
}

// ResolveAmendment は変更申請を処理して座席を再確保する
func (s *ReservationService) ResolveAmendment(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	return s.restoreConfirmed(ctx, reservationID, func(res *reservation.Reservation, now time.Time) (*reservation.Event, error) {
		return res.ResolveAmend(now)
	})
}

// restoreConfirmed は座席の再確保を伴う Confirmed への復帰を処理する
func (s *ReservationService) restoreConfirmed(ctx context.Context, reservationID string, restore func(*reservation.Reservation, time.Time) (*reservation.Event, error)) (*reservation.Reservation, error) {
	now := s.clock.Now()
	res, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	event, err := restore(res, now)
	if err != nil {
		return nil, err
	}
	var reacquire *capacityChange
	if res.CapacityID != nil {
		reacquire = &capacityChange{capacityID: *res.CapacityID, delta: res.SeatCount(), now: now}
	}
	if err := s.persist(ctx, res, event, reacquire); err != nil {
		return nil, err
	}
	return res, nil
}

// MarkNoShow は不参加を記録する。ツアーは開催済みのため座席は動かさない
func (s *ReservationService) MarkNoShow(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	now := s.clock.Now()
	res, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	event, err := res.MarkNoShow(now)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, res, event, nil); err != nil {
		return nil, err
	}
	return res, nil
}

// RejectReservation は予約を却下する
func (s *ReservationService) RejectReservation(ctx context.Context, reservationID, reason string) (*reservation.Reservation, error) {
	now := s.clock.Now()
	res, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	event, err := res.Reject(now, reason)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, res, event, nil); err != nil {
		return nil, err
	}
	return res, nil
}

// ExpireReservations は有効期限を過ぎた予約を失効させ、座席を返却する
// 冪等であり、並行する確定処理が先に勝った予約はスキップされる
func (s *ReservationService) ExpireReservations(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	if limit <= 0 {
		limit = 100
	}
	expired, err := s.reservationRepo.GetExpiredActive(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, res := range expired {
		wasActive := reservation.IsActive(res.Status)
		event, err := res.MarkAsExpired(now)
		if err != nil {
			// 並行処理が先に状態を動かした予約は次のスイープに委ねる
			logger.Warn("予約の失効をスキップ",
				zap.String("reservation_id", res.ID),
				zap.Error(err),
			)
			continue
		}
		var release *capacityChange
		if wasActive && res.CapacityID != nil {
			release = &capacityChange{capacityID: *res.CapacityID, delta: -res.SeatCount()}
		}
		if err := s.persist(ctx, res, event, release); err != nil {
			logger.Error("失効した予約の保存に失敗",
				zap.String("reservation_id", res.ID),
				zap.Error(err),
			)
			continue
		}
		count++
	}
	return count, nil
}

func (s *ReservationService) GetReservation(ctx context.Context, id string) (*reservation.Reservation, error) {
	return s.reservationRepo.GetByID(ctx, id)
}

func (s *ReservationService) GetReservationByTrackingCode(ctx context.Context, code string) (*reservation.Reservation, error) {
	return s.reservationRepo.GetByTrackingCode(ctx, code)
}

func (s *ReservationService) GetMemberReservations(ctx context.Context, memberID string, limit, offset int) ([]*reservation.Reservation, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.reservationRepo.GetByMemberID(ctx, memberID, limit, offset)
}

// capacityChange は予約更新と同一トランザクションで適用する座席の増減
type capacityChange struct {
	capacityID string
	delta      int
	now        time.Time
}

// persist は予約・座席枠・イベントを1つのトランザクションで保存する
// 座席枠のバージョン競合時はトランザクションごと再試行する
func (s *ReservationService) persist(ctx context.Context, res *reservation.Reservation, event *reservation.Event, change *capacityChange) error {
	for attempt := 0; attempt < maxAllocationRetries; attempt++ {
		tx, err := s.txManager.Begin(ctx)
		if err != nil {
			return fmt.Errorf("トランザクション開始に失敗: %w", err)
		}

		if change != nil {
			pool, err := s.capacityRepo.GetByID(ctx, change.capacityID)
			if err != nil {
				tx.Rollback()
				return err
			}
			if change.delta < 0 {
				pool.Release(-change.delta, change.now)
			} else if err := pool.TryAllocate(change.now, change.delta, true); err != nil {
				tx.Rollback()
				return err
			}
			if err := s.capacityRepo.Update(ctx, tx, pool); err != nil {
				tx.Rollback()
				if errors.Is(err, capacity.ErrVersionConflict) {
					continue
				}
				return err
			}
		}

		if err := s.reservationRepo.Update(ctx, tx, res); err != nil {
			tx.Rollback()
			return err
		}
		if event != nil {
			if err := s.outbox.Append(ctx, tx, event); err != nil {
				tx.Rollback()
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("コミットに失敗: %w", err)
		}
		if change != nil {
			s.invalidateAvailability(ctx, res.TourID)
		}
		return nil
	}
	return capacity.ErrVersionConflict
}

// lockCapacity は座席枠単位の分散ロックを取得する。LockManager 未設定なら no-op
func (s *ReservationService) lockCapacity(ctx context.Context, capacityID string) (func(), error) {
	if s.lockManager == nil {
		return func() {}, nil
	}
	lock, err := s.lockManager.AcquireLockWithRetry(ctx,
		fmt.Sprintf("capacity_pool:%s", capacityID),
		capacityLockTTL, lockRetryAttempts, lockRetryDelay)
	if err != nil {
		if errors.Is(err, redisinfra.ErrLockNotAcquired) {
			return nil, fmt.Errorf("座席枠が他の処理によって使用中です")
		}
		return nil, fmt.Errorf("ロック取得に失敗: %w", err)
	}
	return func() { lock.Release(ctx) }, nil
}

func (s *ReservationService) invalidateAvailability(ctx context.Context, tourID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, tourID); err != nil {
		logger.Warn("空き状況キャッシュの無効化に失敗",
			zap.String("tour_id", tourID),
			zap.Error(err),
		)
	}
}
