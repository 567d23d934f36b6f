package reservation

import "time"

// PriceSnapshot は予約が価格を取り込んだ時点の不変レコードを表す
// 以後の料金ルール変更は取り込み済みスナップショットに影響しない
// 割引条件が変わった場合は変更ではなく差し替え（AddPriceSnapshot）で対応する
type PriceSnapshot struct {
	ID                   string
	ReservationID        string
	ParticipantType      ParticipantType
	BasePrice            int
	DiscountAmount       *int
	DiscountCode         *string
	FinalPrice           int
	PricingRuleID        *string
	RequiredCapabilities []string
	RequiredFeatures     []string
	IsDefault            bool
	IsEarlyBird          bool
	IsLastMinute         bool
	CapturedAt           time.Time
}

// Validate はスナップショットの検証を行う
func (s *PriceSnapshot) Validate() error {
	if s.ParticipantType != ParticipantMember && s.ParticipantType != ParticipantGuest {
		return ErrInvalidParticipantType
	}
	if s.BasePrice < 0 || s.FinalPrice < 0 {
		return ErrInvalidAmount
	}
	if s.DiscountAmount != nil && *s.DiscountAmount < 0 {
		return ErrInvalidAmount
	}
	return nil
}
