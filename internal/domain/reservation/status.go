package reservation

import "fmt"

// Status は予約の状態を表す
type Status string

const (
	StatusDraft           Status = "draft"
	StatusHeld            Status = "held"
	StatusPaying          Status = "paying"
	StatusConfirmed       Status = "confirmed"
	StatusCancelled       Status = "cancelled"
	StatusSystemCancelled Status = "system_cancelled"
	StatusExpired         Status = "expired"
	StatusPaymentFailed   Status = "payment_failed"
	StatusRefunding       Status = "refunding"
	StatusRefunded        Status = "refunded"
	StatusWaitlisted      Status = "waitlisted"
	StatusCancelRequested Status = "cancel_requested"
	StatusAmendRequested  Status = "amend_requested"
	StatusNoShow          Status = "no_show"
	StatusRejected        Status = "rejected"
)

// AllStatuses は定義済みの全状態
var AllStatuses = []Status{
	StatusDraft, StatusHeld, StatusPaying, StatusConfirmed,
	StatusCancelled, StatusSystemCancelled, StatusExpired, StatusPaymentFailed,
	StatusRefunding, StatusRefunded, StatusWaitlisted, StatusCancelRequested,
	StatusAmendRequested, StatusNoShow, StatusRejected,
}

// transitions は合法な状態遷移の決定表
// ここに載っていない (現在, 要求) の組は全て不正遷移として拒否される
var transitions = map[Status][]Status{
	StatusDraft:           {StatusHeld, StatusCancelled, StatusSystemCancelled, StatusExpired, StatusWaitlisted, StatusRejected},
	StatusHeld:            {StatusPaying, StatusCancelled, StatusSystemCancelled, StatusExpired},
	StatusPaying:          {StatusConfirmed, StatusCancelled, StatusSystemCancelled, StatusExpired, StatusPaymentFailed},
	StatusConfirmed:       {StatusRefunding, StatusCancelRequested, StatusAmendRequested, StatusNoShow, StatusSystemCancelled},
	StatusExpired:         {StatusHeld, StatusSystemCancelled},
	StatusPaymentFailed:   {StatusPaying, StatusCancelled, StatusSystemCancelled, StatusExpired},
	StatusRefunding:       {StatusRefunded, StatusConfirmed, StatusSystemCancelled},
	StatusWaitlisted:      {StatusHeld, StatusCancelled, StatusSystemCancelled, StatusRejected, StatusExpired},
	StatusCancelRequested: {StatusRefunding, StatusCancelled, StatusConfirmed, StatusSystemCancelled},
	StatusAmendRequested:  {StatusConfirmed, StatusCancelled, StatusSystemCancelled},
	// 終端状態（Cancelled, SystemCancelled, Refunded, NoShow, Rejected）からの遷移はない
}

// terminalStatuses は終端状態の集合
var terminalStatuses = map[Status]bool{
	StatusCancelled:       true,
	StatusSystemCancelled: true,
	StatusRefunded:        true,
	StatusNoShow:          true,
	StatusRejected:        true,
}

// activeStatuses は座席確保を保持する状態の集合
var activeStatuses = map[Status]bool{
	StatusHeld:      true,
	StatusPaying:    true,
	StatusConfirmed: true,
}

// CanTransition は (現在, 要求) の遷移が合法かを判定し、不正なら理由を返す
func CanTransition(from, to Status) (bool, string) {
	for _, next := range transitions[from] {
		if next == to {
			return true, ""
		}
	}
	return false, fmt.Sprintf("状態 %s から %s へは遷移できません", from, to)
}

// IsTerminal は終端状態かを返す
func IsTerminal(s Status) bool {
	return terminalStatuses[s]
}

// IsActive は座席確保を保持する状態かを返す
func IsActive(s Status) bool {
	return activeStatuses[s]
}
