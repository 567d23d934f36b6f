package reservation

import (
	"fmt"
	"strings"
	"time"
)

// DefaultHoldTTL は仮押さえのデフォルト有効期間
const DefaultHoldTTL = 30 * time.Minute

// Reservation は座席確保・参加者・価格スナップショット・ライフサイクル状態を
// 束ねる集約。座席数に影響する遷移は全てこの集約のメソッドを経由する
//
// 不変条件: Held / Paying / Confirmed の間、参加者数ちょうど分の座席が
// 対応する座席枠から差し引かれていること。アクティブ状態を離れるとき
// （Cancel / SystemCancel / Expire / Refund）に正確に1回返却され、
// Renew / Reactivate で正確に1回再確保される
type Reservation struct {
	ID              string
	TourID          string
	MemberID        string
	CapacityID      *string
	TrackingCode    string
	Status          Status
	ReservationDate time.Time
	ExpiresAt       *time.Time
	ConfirmedAt     *time.Time
	CancelledAt     *time.Time
	CancelReason    string
	TotalAmount     *int
	PaidAmount      *int
	Participants    []*Participant
	PriceSnapshots  []*PriceSnapshot
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Version         int // 楽観的ロック用
}

// NewReservation は Draft 状態の新しい予約を作成する。座席はまだ消費しない
func NewReservation(tourID, memberID, trackingCode string, capacityID *string, now time.Time) *Reservation {
	return &Reservation{
		TourID:          tourID,
		MemberID:        memberID,
		CapacityID:      capacityID,
		TrackingCode:    strings.ToUpper(trackingCode),
		Status:          StatusDraft,
		ReservationDate: now,
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         0,
	}
}

// transition は決定表で遷移を検証してから状態を変更する
// 不正なら状態を変えずに理由付きのエラーを返す
func (r *Reservation) transition(to Status, now time.Time) error {
	ok, reason := CanTransition(r.Status, to)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, reason)
	}
	r.Status = to
	r.UpdatedAt = now
	return nil
}

// IsExpired は有効期限を過ぎているかを返す。期限未設定なら常に false
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// SeatCount は座席枠に対して確保すべき座席数（= 参加者数）を返す
func (r *Reservation) SeatCount() int {
	return len(r.Participants)
}

// GuestCount はゲスト参加者の人数を返す
func (r *Reservation) GuestCount() int {
	n := 0
	for _, p := range r.Participants {
		if p.Type == ParticipantGuest {
			n++
		}
	}
	return n
}

// AddParticipant は参加者を追加する。Draft / Held でのみ許可され、
// 同一予約内で国民番号が重複する参加者は拒否する
func (r *Reservation) AddParticipant(p *Participant) error {
	if r.Status != StatusDraft && r.Status != StatusHeld {
		return ErrParticipantsLocked
	}
	if err := p.Validate(); err != nil {
		return err
	}
	for _, existing := range r.Participants {
		if existing.NationalNumber == p.NationalNumber {
			return ErrDuplicateNationalNumber
		}
	}
	p.ReservationID = r.ID
	r.Participants = append(r.Participants, p)
	return nil
}

// RemoveParticipant は参加者を削除する。Draft / Held でのみ許可される
func (r *Reservation) RemoveParticipant(participantID string) error {
	if r.Status != StatusDraft && r.Status != StatusHeld {
		return ErrParticipantsLocked
	}
	for i, p := range r.Participants {
		if p.ID == participantID {
			r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
			return nil
		}
	}
	return ErrParticipantNotFound
}

// AddPriceSnapshot は参加者種別ごとのスナップショットを取り込む
// 同一種別の既存スナップショットは履歴を残さず差し替える
func (r *Reservation) AddPriceSnapshot(s *PriceSnapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s.ReservationID = r.ID
	for i, existing := range r.PriceSnapshots {
		if existing.ParticipantType == s.ParticipantType {
			r.PriceSnapshots[i] = s
			return nil
		}
	}
	r.PriceSnapshots = append(r.PriceSnapshots, s)
	return nil
}

// SnapshotFor は参加者種別の最新スナップショットを返す
func (r *Reservation) SnapshotFor(pType ParticipantType) *PriceSnapshot {
	for _, s := range r.PriceSnapshots {
		if s.ParticipantType == pType {
			return s
		}
	}
	return nil
}

// CalculateTotalFromSnapshots は会員スナップショット + ゲストスナップショット × ゲスト数 を返す
func (r *Reservation) CalculateTotalFromSnapshots() (int, error) {
	member := r.SnapshotFor(ParticipantMember)
	if member == nil {
		return 0, ErrMissingPriceSnapshot
	}
	total := member.FinalPrice
	if guests := r.GuestCount(); guests > 0 {
		guest := r.SnapshotFor(ParticipantGuest)
		if guest == nil {
			return 0, ErrMissingPriceSnapshot
		}
		total += guest.FinalPrice * guests
	}
	return total, nil
}

// Hold は Draft から Held へ遷移させる。参加者が1人以上必要で、
// この時点までに呼び出し元が参加者数分の TryAllocate を済ませていること
// （座席枠の更新と予約の更新は同一トランザクションでコミットされる）
func (r *Reservation) Hold(now time.Time, ttl time.Duration) (*Event, error) {
	if len(r.Participants) == 0 {
		return nil, ErrNoParticipants
	}
	if err := r.transition(StatusHeld, now); err != nil {
		return nil, err
	}
	if r.ExpiresAt == nil {
		expiry := now.Add(ttl)
		r.ExpiresAt = &expiry
	}
	return r.newEvent(EventHeld, now, ""), nil
}

// SetToPaying は Held から Paying へ遷移させる。期限切れの場合は拒否する
func (r *Reservation) SetToPaying(now time.Time) (*Event, error) {
	if len(r.Participants) == 0 {
		return nil, ErrNoParticipants
	}
	if r.IsExpired(now) {
		return nil, ErrReservationExpired
	}
	if err := r.transition(StatusPaying, now); err != nil {
		return nil, err
	}
	return r.newEvent(EventPaying, now, ""), nil
}

// Confirm は Paying から Confirmed へ遷移させ、有効期限を解除する
// （確定済み予約は失効しない）
//
// skipExpiryCheck はゲートウェイの支払確定コールバック専用の抜け道。
// コールバック到着が遅れた場合、既に失効した仮押さえが確定されうる
// 狭い窓が生じるが、ゲートウェイ側が鮮度を検証する前提で許容する
func (r *Reservation) Confirm(now time.Time, totalAmount *int, skipExpiryCheck bool) (*Event, error) {
	if !skipExpiryCheck && r.IsExpired(now) {
		return nil, ErrReservationExpired
	}
	if totalAmount != nil && *totalAmount < 0 {
		return nil, ErrInvalidAmount
	}
	if err := r.transition(StatusConfirmed, now); err != nil {
		return nil, err
	}
	r.ConfirmedAt = &now
	r.ExpiresAt = nil
	if totalAmount != nil {
		r.TotalAmount = totalAmount
	}
	return r.newEvent(EventConfirmed, now, ""), nil
}

// MarkPaymentFailed は支払失敗を記録する。Paying からのみ遷移できる
func (r *Reservation) MarkPaymentFailed(now time.Time, reason string) (*Event, error) {
	if err := r.transition(StatusPaymentFailed, now); err != nil {
		return nil, err
	}
	return r.newEvent(EventPaymentFailed, now, reason), nil
}

// RetryPayment は支払失敗後に再度 Paying へ戻す。期限切れなら拒否する
func (r *Reservation) RetryPayment(now time.Time) (*Event, error) {
	if r.IsExpired(now) {
		return nil, ErrReservationExpired
	}
	if err := r.transition(StatusPaying, now); err != nil {
		return nil, err
	}
	return r.newEvent(EventPaying, now, ""), nil
}

// Cancel は利用者都合のキャンセル。既にキャンセル済みの場合は冪等な
// no-op としてイベントを再発行せずに成功する
// アクティブ状態からのキャンセルでは呼び出し元が座席を返却すること
func (r *Reservation) Cancel(now time.Time, reason string) (*Event, error) {
	if r.Status == StatusCancelled {
		return nil, nil
	}
	if err := r.transition(StatusCancelled, now); err != nil {
		return nil, err
	}
	r.CancelledAt = &now
	r.CancelReason = reason
	return r.newEvent(EventCancelled, now, reason), nil
}

// SystemCancel はシステム都合のキャンセル。非終端状態から常に遷移できる
func (r *Reservation) SystemCancel(now time.Time, reason string) (*Event, error) {
	if r.Status == StatusSystemCancelled {
		return nil, nil
	}
	if err := r.transition(StatusSystemCancelled, now); err != nil {
		return nil, err
	}
	r.CancelledAt = &now
	r.CancelReason = reason
	return r.newEvent(EventSystemCancelled, now, reason), nil
}

// MarkAsExpired は有効期限を過ぎた予約を Expired にする
// 定期スイープから呼ばれる想定。期限内の予約には適用されない
func (r *Reservation) MarkAsExpired(now time.Time) (*Event, error) {
	if !r.IsExpired(now) {
		return nil, ErrNotExpiredYet
	}
	if err := r.transition(StatusExpired, now); err != nil {
		return nil, err
	}
	return r.newEvent(EventExpired, now, ""), nil
}

// Reactivate は Expired の予約を新しい有効期限で Held に戻す
// 座席再利用の経路であり、呼び出し元は状態変更と同一トランザクションで
// TryAllocate による座席の再確保を済ませること
func (r *Reservation) Reactivate(now time.Time, newExpiry time.Time) (*Event, error) {
	if !newExpiry.After(now) {
		return nil, ErrInvalidExpiry
	}
	if r.Status != StatusExpired {
		return nil, fmt.Errorf("%w: 状態 %s から %s へは遷移できません", ErrInvalidTransition, r.Status, StatusHeld)
	}
	if err := r.transition(StatusHeld, now); err != nil {
		return nil, err
	}
	r.ExpiresAt = &newExpiry
	return r.newEvent(EventRenewed, now, ""), nil
}

// Renew は Reactivate のデフォルトTTL版
func (r *Reservation) Renew(now time.Time, ttl time.Duration) (*Event, error) {
	return r.Reactivate(now, now.Add(ttl))
}

// Waitlist は Draft の予約をキャンセル待ちに回す
func (r *Reservation) Waitlist(now time.Time) (*Event, error) {
	if err := r.transition(StatusWaitlisted, now); err != nil {
		return nil, err
	}
	return r.newEvent(EventWaitlisted, now, ""), nil
}

// PromoteFromWaitlist はキャンセル待ちから Held に昇格させる
// 呼び出し元は TryAllocate による座席確保を済ませること
func (r *Reservation) PromoteFromWaitlist(now time.Time, ttl time.Duration) (*Event, error) {
	if len(r.Participants) == 0 {
		return nil, ErrNoParticipants
	}
	if r.Status != StatusWaitlisted {
		return nil, fmt.Errorf("%w: 状態 %s から %s へは遷移できません", ErrInvalidTransition, r.Status, StatusHeld)
	}
	if err := r.transition(StatusHeld, now); err != nil {
		return nil, err
	}
	expiry := now.Add(ttl)
	r.ExpiresAt = &expiry
	return r.newEvent(EventHeld, now, ""), nil
}

// BeginRefund は返金処理を開始する。Confirmed はこの時点でアクティブ状態を
// 離れるため、呼び出し元が座席を返却すること
func (r *Reservation) BeginRefund(now time.Time) (*Event, error) {
	if err := r.transition(StatusRefunding, now); err != nil {
		return nil, err
	}
	return r.newEvent(EventRefundStarted, now, ""), nil
}

// CompleteRefund は返金を完了させる
func (r *Reservation) CompleteRefund(now time.Time) (*Event, error) {
	if err := r.transition(StatusRefunded, now); err != nil {
		return nil, err
	}
	return r.newEvent(EventRefundCompleted, now, ""), nil
}

// DenyRefund は返金要求を却下して Confirmed に戻す
// 呼び出し元は TryAllocate による座席の再確保を済ませること
func (r *Reservation) DenyRefund(now time.Time) (*Event, error) {
	if r.Status != StatusRefunding {
		return nil, fmt.Errorf("%w: 状態 %s から %s へは遷移できません", ErrInvalidTransition, r.Status, StatusConfirmed)
	}
	if err := r.transition(StatusConfirmed, now); err != nil {
		return nil, err
	}
	return r.newEvent(EventConfirmed, now, ""), nil
}

// RequestCancel は確定済み予約のキャンセル申請を受け付ける
// Refunding と同様にアクティブ状態を離れるため、呼び出し元が座席を返却すること
func (r *Reservation) RequestCancel(now time.Time, reason string) (*Event, error) {
	if err := r.transition(StatusCancelRequested, now); err != nil {
		return nil, err
	}
	r.CancelReason = reason
	return r.newEvent(EventCancelRequested, now, reason), nil
}

// DeclineCancelRequest はキャンセル申請を却下して Confirmed に戻す
// 呼び出し元は TryAllocate による座席の再確保を済ませること
func (r *Reservation) DeclineCancelRequest(now time.Time) (*Event, error) {
	if r.Status != StatusCancelRequested {
		return nil, fmt.Errorf("%w: 状態 %s から %s へは遷移できません", ErrInvalidTransition, r.Status, StatusConfirmed)
	}
	if err := r.transition(StatusConfirmed, now); err != nil {
		return nil, err
	}
	r.CancelReason = ""
	return r.newEvent(EventConfirmed, now, ""), nil
}

// RequestAmend は確定済み予約の変更申請を受け付ける
func (r *Reservation) RequestAmend(now time.Time, reason string) (*Event, error) {
	if err := r.transition(StatusAmendRequested, now); err != nil {
		return nil, err
	}
	return r.newEvent(EventAmendRequested, now, reason), nil
}

// ResolveAmend は変更申請を処理して Confirmed に戻す
// 呼び出し元は TryAllocate による座席の再確保を済ませること
func (r *Reservation) ResolveAmend(now time.Time) (*Event, error) {
	if r.Status != StatusAmendRequested {
		return nil, fmt.Errorf("%w: 状態 %s から %s へは遷移できません", ErrInvalidTransition, r.Status, StatusConfirmed)
	}
	if err := r.transition(StatusConfirmed, now); err != nil {
		return nil, err
	}
	return r.newEvent(EventConfirmed, now, ""), nil
}

// MarkNoShow は不参加を記録する
func (r *Reservation) MarkNoShow(now time.Time) (*Event, error) {
	if err := r.transition(StatusNoShow, now); err != nil {
		return nil, err
	}
	return r.newEvent(EventNoShow, now, ""), nil
}

// Reject は予約を却下する
func (r *Reservation) Reject(now time.Time, reason string) (*Event, error) {
	if err := r.transition(StatusRejected, now); err != nil {
		return nil, err
	}
	r.CancelReason = reason
	return r.newEvent(EventRejected, now, reason), nil
}

// Validate は予約の検証を行う
func (r *Reservation) Validate() error {
	if r.TourID == "" {
		return ErrTourIDRequired
	}
	if r.MemberID == "" {
		return ErrMemberIDRequired
	}
	if r.TrackingCode == "" {
		return ErrTrackingCodeRequired
	}
	if r.TotalAmount != nil && *r.TotalAmount < 0 {
		return ErrInvalidAmount
	}
	return nil
}
