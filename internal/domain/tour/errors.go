package tour

import "errors"

// Tour ドメインのエラー定義
var (
	ErrTourNotFound           = errors.New("ツアーが見つかりません")
	ErrTitleRequired          = errors.New("ツアー名は必須です")
	ErrTourIDRequired         = errors.New("ツアーIDは必須です")
	ErrInvalidTourPeriod      = errors.New("ツアー終了はツアー開始より後である必要があります")
	ErrInvalidAgeBounds       = errors.New("年齢の下限・上限が不正です")
	ErrInvalidMaxGuests       = errors.New("ゲスト上限は0以上である必要があります")
	ErrInvalidTransition      = errors.New("不正なツアー状態遷移です")
	ErrRegistrationNotOpen    = errors.New("このツアーは現在予約を受け付けていません")
	ErrNoPricingRule          = errors.New("適用可能な料金ルールがありません")
	ErrInvalidPrice           = errors.New("価格は0以上である必要があります")
	ErrInvalidPricingWindow   = errors.New("料金ルールの適用終了は適用開始より後である必要があります")
	ErrInvalidParticipantType = errors.New("参加者種別が不正です")
	ErrPoolNotFound           = errors.New("指定された座席枠はこのツアーに存在しません")
	ErrRestrictedTour         = errors.New("相互排他なツアーへの確定済み予約があるため予約できません")
	ErrAgeNotEligible         = errors.New("参加者の年齢がツアーの対象範囲外です")
	ErrGuestLimitExceeded     = errors.New("1予約あたりのゲスト上限を超えています")
	ErrVersionConflict        = errors.New("ツアーが他の処理によって更新されています")
)
