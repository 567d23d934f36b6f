package tour

import (
	"fmt"
	"time"

	"github.com/sanosuguru/go-tour-reservation/internal/domain/capacity"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/reservation"
)

// Tour は座席枠・料金ルール・制限リスト・予約作成を統括する集約ルート
type Tour struct {
	ID                      string
	Title                   string
	Description             string
	TourStart               time.Time
	TourEnd                 time.Time
	MinAge                  int
	MaxAge                  int
	MaxGuestsPerReservation int
	Status                  Status
	Pools                   []*capacity.Pool
	PricingRules            []*Pricing
	RestrictedTourIDs       []string
	RequiredCapabilities    []string
	RequiredFeatures        []string
	CreatedAt               time.Time
	UpdatedAt               time.Time
	Version                 int // 楽観的ロック用
}

// NewTour は Draft 状態の新しいツアーを作成する
func NewTour(title, description string, tourStart, tourEnd time.Time, minAge, maxAge, maxGuests int, now time.Time) *Tour {
	return &Tour{
		Title:                   title,
		Description:             description,
		TourStart:               tourStart,
		TourEnd:                 tourEnd,
		MinAge:                  minAge,
		MaxAge:                  maxAge,
		MaxGuestsPerReservation: maxGuests,
		Status:                  StatusDraft,
		CreatedAt:               now,
		UpdatedAt:               now,
		Version:                 0,
	}
}

// ChangeStatus は決定表で検証してからツアー状態を変更する
func (t *Tour) ChangeStatus(to Status, now time.Time) error {
	ok, reason := CanTransition(t.Status, to)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, reason)
	}
	t.Status = to
	t.UpdatedAt = now
	return nil
}

// OpenRegistration は予約受付を開始する
func (t *Tour) OpenRegistration(now time.Time) error {
	return t.ChangeStatus(StatusRegistrationOpen, now)
}

// CloseRegistration は予約受付を終了する
func (t *Tour) CloseRegistration(now time.Time) error {
	return t.ChangeStatus(StatusRegistrationClosed, now)
}

// AddPool は座席枠を追加する。同一ツアー内の有効な枠と受付期間が
// 重なる場合は拒否する
func (t *Tour) AddPool(pool *capacity.Pool) error {
	if err := pool.Validate(); err != nil {
		return err
	}
	for _, existing := range t.Pools {
		if existing.IsActive && existing.OverlapsWindow(pool) {
			return capacity.ErrWindowOverlap
		}
	}
	pool.TourID = t.ID
	t.Pools = append(t.Pools, pool)
	return nil
}

// UpdatePool は座席枠の受付期間・サイズ制約を更新する。重複チェックは
// 更新対象自身を除いて行う
func (t *Tour) UpdatePool(updated *capacity.Pool, now time.Time) error {
	if err := updated.Validate(); err != nil {
		return err
	}
	var target *capacity.Pool
	for _, existing := range t.Pools {
		if existing.ID == updated.ID {
			target = existing
			continue
		}
		if existing.IsActive && existing.OverlapsWindow(updated) {
			return capacity.ErrWindowOverlap
		}
	}
	if target == nil {
		return ErrPoolNotFound
	}
	target.RegistrationStart = updated.RegistrationStart
	target.RegistrationEnd = updated.RegistrationEnd
	target.MinReservationSize = updated.MinReservationSize
	target.MaxReservationSize = updated.MaxReservationSize
	target.IsSpecial = updated.IsSpecial
	target.UpdatedAt = now
	return nil
}

// PoolByID は座席枠をIDで返す
func (t *Tour) PoolByID(id string) (*capacity.Pool, error) {
	for _, p := range t.Pools {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, ErrPoolNotFound
}

// MaxParticipants は有効な座席枠の座席数合計を返す
func (t *Tour) MaxParticipants() int {
	total := 0
	for _, p := range t.Pools {
		if p.IsActive {
			total += p.MaxSeats
		}
	}
	return total
}

// OpenPools は指定時刻に受付中で呼び出し元から可視な座席枠を返す
func (t *Tour) OpenPools(now time.Time, privileged bool) []*capacity.Pool {
	var open []*capacity.Pool
	for _, p := range t.Pools {
		if p.IsActive && p.IsVisibleTo(privileged) && p.IsWindowOpen(now) {
			open = append(open, p)
		}
	}
	return open
}

// IsRegistrationOpen はツアーが受付状態で、かつ受付中の可視な座席枠が
// 1つ以上あるかを返す。これが false の間は予約を作成できない
func (t *Tour) IsRegistrationOpen(now time.Time, privileged bool) bool {
	if t.Status != StatusRegistrationOpen {
		return false
	}
	return len(t.OpenPools(now, privileged)) > 0
}

// AddPricing は料金ルールを追加する
func (t *Tour) AddPricing(p *Pricing) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.TourID = t.ID
	t.PricingRules = append(t.PricingRules, p)
	return nil
}

// GetPricing は指定の参加者種別・日付・会員ケイパビリティに適用される
// 単一の料金ルールを返す。要件付きルールがデフォルトルールに優先する
func (t *Tour) GetPricing(pType reservation.ParticipantType, date time.Time, capabilities, features []string) (*Pricing, error) {
	var fallback *Pricing
	for _, p := range t.PricingRules {
		if !p.AppliesTo(pType, date) || !p.MatchesCapabilitiesAndFeatures(capabilities, features) {
			continue
		}
		if p.HasRequirements() {
			return p, nil
		}
		if fallback == nil || (p.IsDefault && !fallback.IsDefault) {
			fallback = p
		}
	}
	if fallback == nil {
		return nil, ErrNoPricingRule
	}
	return fallback, nil
}

// CalculateParticipantPrice は参加者1人あたりの適用価格を返す
func (t *Tour) CalculateParticipantPrice(pType reservation.ParticipantType, date time.Time, capabilities, features []string) (int, error) {
	rule, err := t.GetPricing(pType, date, capabilities, features)
	if err != nil {
		return 0, err
	}
	return rule.FinalPrice(), nil
}

// CalculateTotalPrice は会員1人 + ゲスト guestCount 人の合計価格を返す
func (t *Tour) CalculateTotalPrice(date time.Time, capabilities, features []string, guestCount int) (int, error) {
	total, err := t.CalculateParticipantPrice(reservation.ParticipantMember, date, capabilities, features)
	if err != nil {
		return 0, err
	}
	if guestCount > 0 {
		guestPrice, err := t.CalculateParticipantPrice(reservation.ParticipantGuest, date, capabilities, features)
		if err != nil {
			return 0, err
		}
		total += guestPrice * guestCount
	}
	return total, nil
}

// AddRestrictedTour は相互排他なツアーを登録する
func (t *Tour) AddRestrictedTour(tourID string) {
	for _, id := range t.RestrictedTourIDs {
		if id == tourID {
			return
		}
	}
	t.RestrictedTourIDs = append(t.RestrictedTourIDs, tourID)
}

// IsRestrictedAgainst は指定ツアーと相互排他かを返す
func (t *Tour) IsRestrictedAgainst(tourID string) bool {
	for _, id := range t.RestrictedTourIDs {
		if id == tourID {
			return true
		}
	}
	return false
}

// IsAgeEligible はツアー開始時点の年齢が対象範囲内かを返す
func (t *Tour) IsAgeEligible(birthDate time.Time) bool {
	p := reservation.Participant{BirthDate: birthDate}
	age := p.Age(t.TourStart)
	if age < t.MinAge {
		return false
	}
	if t.MaxAge > 0 && age > t.MaxAge {
		return false
	}
	return true
}

// ConfirmedSeatCount は確定済み予約の座席数合計を返す
func (t *Tour) ConfirmedSeatCount(reservations []*reservation.Reservation) int {
	total := 0
	for _, r := range reservations {
		if r.Status == reservation.StatusConfirmed {
			total += r.SeatCount()
		}
	}
	return total
}

// PendingSeatCount は保留中（Held / Paying、期限切れを除く）の座席数合計を返す
// 確定前の仮押さえも定員に計上することが過剰予約を防ぐ中核のガードとなる
func (t *Tour) PendingSeatCount(reservations []*reservation.Reservation, now time.Time) int {
	total := 0
	for _, r := range reservations {
		if (r.Status == reservation.StatusHeld || r.Status == reservation.StatusPaying) && !r.IsExpired(now) {
			total += r.SeatCount()
		}
	}
	return total
}

// AvailableSpots は残りの受入可能人数を返す
// = MaxParticipants − (確定済み + 保留中)
func (t *Tour) AvailableSpots(reservations []*reservation.Reservation, now time.Time) int {
	return t.MaxParticipants() - t.ConfirmedSeatCount(reservations) - t.PendingSeatCount(reservations, now)
}

// Validate はツアーの検証を行う
func (t *Tour) Validate() error {
	if t.Title == "" {
		return ErrTitleRequired
	}
	if !t.TourStart.Before(t.TourEnd) {
		return ErrInvalidTourPeriod
	}
	if t.MinAge < 0 || (t.MaxAge > 0 && t.MinAge > t.MaxAge) {
		return ErrInvalidAgeBounds
	}
	if t.MaxGuestsPerReservation < 0 {
		return ErrInvalidMaxGuests
	}
	return nil
}
