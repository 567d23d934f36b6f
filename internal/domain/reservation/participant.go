package reservation

import "time"

// ParticipantType は参加者の種別を表す
type ParticipantType string

const (
	ParticipantMember ParticipantType = "member"
	ParticipantGuest  ParticipantType = "guest"
)

// Participant は予約に紐づく参加者を表す
// 予約が Draft / Held を離れた後は支払記録を除き変更不可
type Participant struct {
	ID             string
	ReservationID  string
	FullName       string
	NationalNumber string
	Phone          string
	BirthDate      time.Time
	Type           ParticipantType
	RequiredAmount int
	PaidAmount     *int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewParticipant は新しい参加者を作成する
func NewParticipant(fullName, nationalNumber, phone string, birthDate time.Time, pType ParticipantType, requiredAmount int, now time.Time) *Participant {
	return &Participant{
		FullName:       fullName,
		NationalNumber: nationalNumber,
		Phone:          phone,
		BirthDate:      birthDate,
		Type:           pType,
		RequiredAmount: requiredAmount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// RecordPayment は参加者ごとの支払額を記録する
// 支払記録は Held 以降でも許可される唯一の参加者変更
func (p *Participant) RecordPayment(amount int, now time.Time) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	p.PaidAmount = &amount
	p.UpdatedAt = now
	return nil
}

// Age は指定日時点の年齢を返す
func (p *Participant) Age(at time.Time) int {
	years := at.Year() - p.BirthDate.Year()
	birthday := p.BirthDate.AddDate(years, 0, 0)
	if birthday.After(at) {
		years--
	}
	return years
}

// Validate は参加者の検証を行う
func (p *Participant) Validate() error {
	if p.FullName == "" {
		return ErrParticipantNameRequired
	}
	if p.NationalNumber == "" {
		return ErrNationalNumberRequired
	}
	if p.BirthDate.IsZero() {
		return ErrBirthDateRequired
	}
	if p.Type != ParticipantMember && p.Type != ParticipantGuest {
		return ErrInvalidParticipantType
	}
	if p.RequiredAmount < 0 {
		return ErrInvalidAmount
	}
	return nil
}
