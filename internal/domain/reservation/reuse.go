package reservation

import (
	"sort"
	"time"
)

// CanBeReused は新しい予約を作る代わりにこの予約を再利用できるかを返す
//   - Draft: 常に再利用可能（コスト0で回収できる）
//   - Expired: 再利用可能（座席の再確保可否は呼び出し元がツアー側で検証する）
//   - Held: 自身が期限切れの場合のみ
//   - Confirmed ほか: 不可
func (r *Reservation) CanBeReused(now time.Time) bool {
	switch r.Status {
	case StatusDraft:
		return true
	case StatusExpired:
		return true
	case StatusHeld:
		return r.IsExpired(now)
	default:
		return false
	}
}

// reuseTier は再利用候補の優先順位。小さいほど優先される
// Draft は座席の再検証なしで回収できるため最優先
func reuseTier(s Status) int {
	switch s {
	case StatusDraft:
		return 0
	case StatusExpired:
		return 1
	case StatusHeld:
		return 2
	default:
		return 3
	}
}

// FindBestReusableReservation は候補の中から最も再利用に適した予約を返す
// 優先順位は Draft > Expired > Held、同一階層内では予約日時の新しい順
func FindBestReusableReservation(now time.Time, candidates []*Reservation) *Reservation {
	var reusable []*Reservation
	for _, r := range candidates {
		if r.CanBeReused(now) {
			reusable = append(reusable, r)
		}
	}
	if len(reusable) == 0 {
		return nil
	}
	sort.SliceStable(reusable, func(i, j int) bool {
		ti, tj := reuseTier(reusable[i].Status), reuseTier(reusable[j].Status)
		if ti != tj {
			return ti < tj
		}
		return reusable[i].ReservationDate.After(reusable[j].ReservationDate)
	})
	return reusable[0]
}

// HasConflictingReservation は同一アクター・同一ツアーの既存予約のうち、
// 新規予約の作成を妨げるもの（Paying / Confirmed）があるかを返す
// それ以外の状態は重複作成の代わりに再利用・更新の対象となる
func HasConflictingReservation(existing []*Reservation) bool {
	for _, r := range existing {
		if r.Status == StatusPaying || r.Status == StatusConfirmed {
			return true
		}
	}
	return false
}
