package capacity

import "time"

// State は残席比率から導出される枠の状態を表す
type State string

const (
	StateHasSpare State = "has_spare"
	StateTight    State = "tight"
	StateFull     State = "full"
)

// Thresholds は State 判定の比率しきい値
// spare 以上なら余裕あり、tight 以上なら残りわずか、それ未満は満席扱い
type Thresholds struct {
	Spare float64
	Tight float64
}

// DefaultThresholds は運用実績値に基づくデフォルトしきい値
var DefaultThresholds = Thresholds{Spare: 0.5, Tight: 0.1}

// Pool はツアーの時間枠ごとの座席ブロックを表す
// RemainingSeats は TryAllocate / Release 以外から変更してはならない
type Pool struct {
	ID                 string
	TourID             string
	MaxSeats           int
	RemainingSeats     int
	RegistrationStart  time.Time
	RegistrationEnd    time.Time
	MinReservationSize int
	MaxReservationSize int
	IsActive           bool
	IsSpecial          bool
	Thresholds         Thresholds
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Version            int // 楽観的ロック用
}

// NewPool は新しい座席枠を作成する
func NewPool(tourID string, maxSeats int, regStart, regEnd time.Time, minSize, maxSize int, now time.Time) *Pool {
	return &Pool{
		TourID:             tourID,
		MaxSeats:           maxSeats,
		RemainingSeats:     maxSeats,
		RegistrationStart:  regStart,
		RegistrationEnd:    regEnd,
		MinReservationSize: minSize,
		MaxReservationSize: maxSize,
		IsActive:           true,
		Thresholds:         DefaultThresholds,
		CreatedAt:          now,
		UpdatedAt:          now,
		Version:            0,
	}
}

// State は残席比率から現在の状態を返す
func (p *Pool) State() State {
	if p.MaxSeats <= 0 {
		return StateFull
	}
	ratio := float64(p.RemainingSeats) / float64(p.MaxSeats)
	switch {
	case ratio >= p.Thresholds.Spare:
		return StateHasSpare
	case ratio >= p.Thresholds.Tight:
		return StateTight
	default:
		return StateFull
	}
}

// IsWindowOpen は指定時刻が受付期間 [start, end) 内かを返す
func (p *Pool) IsWindowOpen(now time.Time) bool {
	return !now.Before(p.RegistrationStart) && now.Before(p.RegistrationEnd)
}

// IsVisibleTo は呼び出し元に対してこの枠が可視かを返す
// 特別枠は権限を持つ呼び出し元にのみ可視
func (p *Pool) IsVisibleTo(privileged bool) bool {
	if p.IsSpecial {
		return privileged
	}
	return true
}

// TryAllocate は座席を確保する唯一の経路
// 枠が有効、受付期間内、人数が予約サイズ範囲内、残席が十分な場合のみ成功する
//
// privileged は特別枠の可視性に加えて受付期間の判定も免除する。
// 返金却下やキャンセル申請却下による確定済み予約の座席復元は
// 受付終了後に起こるのが通常のため、期間外でも復元できる必要がある
func (p *Pool) TryAllocate(now time.Time, count int, privileged bool) error {
	if !p.IsActive {
		return ErrPoolInactive
	}
	if !p.IsVisibleTo(privileged) {
		return ErrPoolNotVisible
	}
	if !privileged && !p.IsWindowOpen(now) {
		return ErrOutsideRegistrationWindow
	}
	if count < p.MinReservationSize {
		return ErrPartySizeTooSmall
	}
	if count > p.MaxReservationSize {
		return ErrPartySizeTooLarge
	}
	if p.RemainingSeats < count {
		return ErrInsufficientSeats
	}
	p.RemainingSeats -= count
	p.UpdatedAt = now
	return nil
}

// Release は確保済みの座席を返却する
// 呼び出し元は成功した TryAllocate 1回につき正確に1回だけ呼ぶこと
func (p *Pool) Release(count int, now time.Time) {
	if count <= 0 {
		return
	}
	p.RemainingSeats += count
	if p.RemainingSeats > p.MaxSeats {
		p.RemainingSeats = p.MaxSeats
	}
	p.UpdatedAt = now
}

// Deactivate は枠を無効化する（物理削除はしない）
func (p *Pool) Deactivate(now time.Time) {
	p.IsActive = false
	p.UpdatedAt = now
}

// OverlapsWindow は受付期間が他の枠と1瞬でも重なるかを返す
func (p *Pool) OverlapsWindow(other *Pool) bool {
	return p.RegistrationStart.Before(other.RegistrationEnd) &&
		other.RegistrationStart.Before(p.RegistrationEnd)
}

// Validate は枠の検証を行う
func (p *Pool) Validate() error {
	if p.TourID == "" {
		return ErrTourIDRequired
	}
	if p.MaxSeats <= 0 {
		return ErrInvalidMaxSeats
	}
	if p.RemainingSeats < 0 || p.RemainingSeats > p.MaxSeats {
		return ErrInvalidRemainingSeats
	}
	if !p.RegistrationStart.Before(p.RegistrationEnd) {
		return ErrInvalidWindow
	}
	if p.MinReservationSize < 1 || p.MinReservationSize > p.MaxReservationSize {
		return ErrInvalidSizeBounds
	}
	return nil
}
