package tour

import (
	"time"

	"github.com/sanosuguru/go-tour-reservation/internal/domain/reservation"
)

// Pricing はツアーの料金ルールを表す
// 会員ケイパビリティ・機能の要件を持つ場合、要件を満たす会員にのみ適用される
// 要件が空のルールは全会員に適用される
type Pricing struct {
	ID                   string
	TourID               string
	ParticipantType      reservation.ParticipantType
	BasePrice            int
	DiscountAmount       *int
	DiscountCode         *string
	ValidFrom            time.Time
	ValidUntil           time.Time
	IsActive             bool
	IsDefault            bool
	IsEarlyBird          bool
	IsLastMinute         bool
	RequiredCapabilities []string
	RequiredFeatures     []string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// AppliesTo は指定の参加者種別・日付にこのルールが適用可能かを返す
func (p *Pricing) AppliesTo(pType reservation.ParticipantType, date time.Time) bool {
	if !p.IsActive || p.ParticipantType != pType {
		return false
	}
	return !date.Before(p.ValidFrom) && date.Before(p.ValidUntil)
}

// MatchesCapabilitiesAndFeatures は会員の保有ケイパビリティ・機能が
// このルールの要件を満たすかを返す。要件なしは全員に適用される
func (p *Pricing) MatchesCapabilitiesAndFeatures(capabilities, features []string) bool {
	return containsAll(capabilities, p.RequiredCapabilities) &&
		containsAll(features, p.RequiredFeatures)
}

// HasRequirements は要件付きのルールかを返す
func (p *Pricing) HasRequirements() bool {
	return len(p.RequiredCapabilities) > 0 || len(p.RequiredFeatures) > 0
}

// FinalPrice は割引適用後の価格を返す（0未満にはならない）
func (p *Pricing) FinalPrice() int {
	price := p.BasePrice
	if p.DiscountAmount != nil {
		price -= *p.DiscountAmount
	}
	if price < 0 {
		price = 0
	}
	return price
}

// Validate は料金ルールの検証を行う
func (p *Pricing) Validate() error {
	if p.TourID == "" {
		return ErrTourIDRequired
	}
	if p.ParticipantType != reservation.ParticipantMember && p.ParticipantType != reservation.ParticipantGuest {
		return ErrInvalidParticipantType
	}
	if p.BasePrice < 0 {
		return ErrInvalidPrice
	}
	if p.DiscountAmount != nil && *p.DiscountAmount < 0 {
		return ErrInvalidPrice
	}
	if !p.ValidFrom.Before(p.ValidUntil) {
		return ErrInvalidPricingWindow
	}
	return nil
}

// Snapshot はこのルールから予約用の価格スナップショットを作成する
func (p *Pricing) Snapshot(capturedAt time.Time) *reservation.PriceSnapshot {
	ruleID := p.ID
	return &reservation.PriceSnapshot{
		ParticipantType:      p.ParticipantType,
		BasePrice:            p.BasePrice,
		DiscountAmount:       p.DiscountAmount,
		DiscountCode:         p.DiscountCode,
		FinalPrice:           p.FinalPrice(),
		PricingRuleID:        &ruleID,
		RequiredCapabilities: append([]string(nil), p.RequiredCapabilities...),
		RequiredFeatures:     append([]string(nil), p.RequiredFeatures...),
		IsDefault:            p.IsDefault,
		IsEarlyBird:          p.IsEarlyBird,
		IsLastMinute:         p.IsLastMinute,
		CapturedAt:           capturedAt,
	}
}

// containsAll は required の全要素が have に含まれるかを返す
func containsAll(have, required []string) bool {
	if len(required) == 0 {
		return true
	}
	haveSet := make(map[string]struct{}, len(have))
	for _, h := range have {
		haveSet[h] = struct{}{}
	}
	for _, req := range required {
		if _, ok := haveSet[req]; !ok {
			return false
		}
	}
	return true
}
