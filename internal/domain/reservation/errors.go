package reservation

import "errors"

// Reservation ドメインのエラー定義
var (
	ErrReservationNotFound     = errors.New("予約が見つかりません")
	ErrInvalidTransition       = errors.New("不正な状態遷移です")
	ErrReservationExpired      = errors.New("予約の有効期限が切れています")
	ErrNotExpiredYet           = errors.New("予約はまだ有効期限内です")
	ErrNoParticipants          = errors.New("参加者が1人も登録されていません")
	ErrDuplicateNationalNumber = errors.New("同じ国民番号の参加者が既に登録されています")
	ErrParticipantNotFound     = errors.New("参加者が見つかりません")
	ErrParticipantsLocked      = errors.New("この状態では参加者を変更できません")
	ErrParticipantNameRequired = errors.New("参加者の氏名は必須です")
	ErrNationalNumberRequired  = errors.New("国民番号は必須です")
	ErrBirthDateRequired       = errors.New("生年月日は必須です")
	ErrInvalidParticipantType  = errors.New("参加者種別が不正です")
	ErrInvalidAmount           = errors.New("金額は0以上である必要があります")
	ErrTourIDRequired          = errors.New("ツアーIDは必須です")
	ErrMemberIDRequired        = errors.New("会員IDは必須です")
	ErrTrackingCodeRequired    = errors.New("追跡コードは必須です")
	ErrTrackingCodeTaken       = errors.New("追跡コードが既に使用されています")
	ErrInvalidExpiry           = errors.New("有効期限は未来の時刻である必要があります")
	ErrMissingPriceSnapshot    = errors.New("価格スナップショットが取り込まれていません")
	ErrConflictingReservation  = errors.New("同じツアーに対する支払中または確定済みの予約が既に存在します")
	ErrVersionConflict         = errors.New("予約が他の処理によって更新されています")
)
