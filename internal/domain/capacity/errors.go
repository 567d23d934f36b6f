package capacity

import "errors"

// Capacity ドメインのエラー定義
var (
	ErrPoolNotFound              = errors.New("座席枠が見つかりません")
	ErrPoolInactive              = errors.New("座席枠は無効化されています")
	ErrPoolNotVisible            = errors.New("この座席枠を利用する権限がありません")
	ErrOutsideRegistrationWindow = errors.New("受付期間外です")
	ErrPartySizeTooSmall         = errors.New("予約人数が最小人数を下回っています")
	ErrPartySizeTooLarge         = errors.New("予約人数が最大人数を超えています")
	ErrInsufficientSeats         = errors.New("残席が不足しています")
	ErrTourIDRequired            = errors.New("ツアーIDは必須です")
	ErrInvalidMaxSeats           = errors.New("座席数は1以上である必要があります")
	ErrInvalidRemainingSeats     = errors.New("残席数は0以上かつ座席数以下である必要があります")
	ErrInvalidWindow             = errors.New("受付終了は受付開始より後である必要があります")
	ErrInvalidSizeBounds         = errors.New("予約人数の下限・上限が不正です")
	ErrWindowOverlap             = errors.New("受付期間が他の座席枠と重複しています")
	ErrVersionConflict           = errors.New("楽観的ロックの競合が発生しました")
)
