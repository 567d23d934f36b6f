package tour

import "fmt"

// Status はツアーの状態を表す
type Status string

const (
	StatusDraft              Status = "draft"
	StatusScheduled          Status = "scheduled"
	StatusRegistrationOpen   Status = "registration_open"
	StatusRegistrationClosed Status = "registration_closed"
	StatusInProgress         Status = "in_progress"
	StatusCompleted          Status = "completed"
	StatusCancelled          Status = "cancelled"
	StatusPostponed          Status = "postponed"
	StatusSuspended          Status = "suspended"
	StatusArchived           Status = "archived"
)

// transitions はツアー状態の決定表
var transitions = map[Status][]Status{
	StatusDraft:              {StatusScheduled, StatusCancelled},
	StatusScheduled:          {StatusRegistrationOpen, StatusCancelled, StatusPostponed},
	StatusRegistrationOpen:   {StatusRegistrationClosed, StatusCancelled, StatusPostponed, StatusSuspended},
	StatusRegistrationClosed: {StatusInProgress, StatusRegistrationOpen, StatusCancelled, StatusPostponed},
	StatusInProgress:         {StatusCompleted, StatusCancelled},
	StatusCompleted:          {StatusArchived},
	StatusCancelled:          {StatusArchived},
	StatusPostponed:          {StatusScheduled, StatusCancelled},
	StatusSuspended:          {StatusRegistrationOpen, StatusCancelled},
}

// CanTransition は (現在, 要求) の遷移が合法かを判定し、不正なら理由を返す
func CanTransition(from, to Status) (bool, string) {
	for _, next := range transitions[from] {
		if next == to {
			return true, ""
		}
	}
	return false, fmt.Sprintf("ツアー状態 %s から %s へは遷移できません", from, to)
}
