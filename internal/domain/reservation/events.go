package reservation

import (
	"time"

	"github.com/google/uuid"
)

// イベント種別（NATSのサブジェクト名にそのまま使われる）
const (
	EventCreated         = "reservation.created"
	EventHeld            = "reservation.held"
	EventPaying          = "reservation.paying"
	EventConfirmed       = "reservation.confirmed"
	EventCancelled       = "reservation.cancelled"
	EventSystemCancelled = "reservation.system_cancelled"
	EventExpired         = "reservation.expired"
	EventRenewed         = "reservation.renewed"
	EventPaymentFailed   = "reservation.payment_failed"
	EventRefundStarted   = "reservation.refund_started"
	EventRefundCompleted = "reservation.refund_completed"
	EventWaitlisted      = "reservation.waitlisted"
	EventCancelRequested = "reservation.cancel_requested"
	EventAmendRequested  = "reservation.amend_requested"
	EventRejected        = "reservation.rejected"
	EventNoShow          = "reservation.no_show"
)

// Event はライフサイクル遷移ごとに正確に1件生成されるドメインイベント
// ライフサイクルメソッドの戻り値として返され、アプリケーション層が
// 同一トランザクション内で outbox に保存し、ディスパッチャが配信する
// 配信は at-least-once のため、消費側は EventID で重複排除すること
type Event struct {
	EventID       string     `json:"event_id"`
	Type          string     `json:"type"`
	ReservationID string     `json:"reservation_id"`
	TourID        string     `json:"tour_id"`
	MemberID      string     `json:"member_id"`
	TrackingCode  string     `json:"tracking_code"`
	Status        Status     `json:"status"`
	SeatCount     int        `json:"seat_count"`
	TotalAmount   *int       `json:"total_amount,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// CreatedEvent は作成済みの予約に対する ReservationCreated イベントを返す
// 構築と永続化の間でIDが確定しないため、コンストラクタではなく
// アプリケーション層が保存後に呼び出す
func (r *Reservation) CreatedEvent(now time.Time) *Event {
	return r.newEvent(EventCreated, now, "")
}

// newEvent は予約の現在状態からイベントを生成する
func (r *Reservation) newEvent(eventType string, occurredAt time.Time, reason string) *Event {
	return &Event{
		EventID:       uuid.New().String(),
		Type:          eventType,
		ReservationID: r.ID,
		TourID:        r.TourID,
		MemberID:      r.MemberID,
		TrackingCode:  r.TrackingCode,
		Status:        r.Status,
		SeatCount:     r.SeatCount(),
		TotalAmount:   r.TotalAmount,
		Reason:        reason,
		ExpiresAt:     r.ExpiresAt,
		OccurredAt:    occurredAt,
	}
}
