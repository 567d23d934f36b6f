package handler

import (
	"context"

	"github.com/sanosuguru/go-tour-reservation/internal/application"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/capacity"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/tour"
)

// TourServiceInterface はツアーサービスのインターフェース
type TourServiceInterface interface {
	CreateTour(ctx context.Context, input application.CreateTourInput) (*tour.Tour, error)
	GetTour(ctx context.Context, id string) (*tour.Tour, error)
	ListTours(ctx context.Context, limit, offset int) ([]*tour.Tour, error)
	OpenRegistration(ctx context.Context, id string) (*tour.Tour, error)
	CloseRegistration(ctx context.Context, id string) (*tour.Tour, error)
	ChangeTourStatus(ctx context.Context, id string, to tour.Status) (*tour.Tour, error)
	AddCapacityPool(ctx context.Context, input application.AddCapacityPoolInput) (*capacity.Pool, error)
	UpdateCapacityPool(ctx context.Context, input application.UpdateCapacityPoolInput) (*capacity.Pool, error)
	DeactivateCapacityPool(ctx context.Context, tourID, poolID string) error
	AddPricing(ctx context.Context, input application.AddPricingInput) (*tour.Pricing, error)
	AddRestrictedTour(ctx context.Context, tourID, restrictedID string) error
	GetAvailableSpots(ctx context.Context, tourID string) (int, error)
	GetOpenPools(ctx context.Context, tourID string, privileged bool) ([]*capacity.Pool, error)
}

// ReservationServiceInterface は予約サービスのインターフェース
type ReservationServiceInterface interface {
	CreateReservation(ctx context.Context, input application.CreateReservationInput) (*reservation.Reservation, error)
	GetReservation(ctx context.Context, id string) (*reservation.Reservation, error)
	GetReservationByTrackingCode(ctx context.Context, code string) (*reservation.Reservation, error)
	GetMemberReservations(ctx context.Context, memberID string, limit, offset int) ([]*reservation.Reservation, error)
	HoldReservation(ctx context.Context, reservationID, capacityID string, privileged bool) (*reservation.Reservation, error)
	SetToPaying(ctx context.Context, reservationID string) (*reservation.Reservation, error)
	ConfirmReservation(ctx context.Context, reservationID string, skipExpiryCheck bool) (*reservation.Reservation, error)
	MarkPaymentFailed(ctx context.Context, reservationID, reason string) (*reservation.Reservation, error)
	RetryPayment(ctx context.Context, reservationID string) (*reservation.Reservation, error)
	CancelReservation(ctx context.Context, reservationID, reason string) (*reservation.Reservation, error)
	SystemCancelReservation(ctx context.Context, reservationID, reason string) (*reservation.Reservation, error)
	RenewReservation(ctx context.Context, reservationID string, privileged bool) (*reservation.Reservation, error)
	WaitlistReservation(ctx context.Context, reservationID string) (*reservation.Reservation, error)
	PromoteFromWaitlist(ctx context.Context, reservationID, capacityID string, privileged bool) (*reservation.Reservation, error)
	BeginRefund(ctx context.Context, reservationID string) (*reservation.Reservation, error)
	CompleteRefund(ctx context.Context, reservationID string) (*reservation.Reservation, error)
	DenyRefund(ctx context.Context, reservationID string) (*reservation.Reservation, error)
	RequestCancellation(ctx context.Context, reservationID, reason string) (*reservation.Reservation, error)
	DeclineCancellation(ctx context.Context, reservationID string) (*reservation.Reservation, error)
	RequestAmendment(ctx context.Context, reservationID, reason string) (*reservation.Reservation, error)
	ResolveAmendment(ctx context.Context, reservationID string) (*reservation.Reservation, error)
	MarkNoShow(ctx context.Context, reservationID string) (*reservation.Reservation, error)
	RejectReservation(ctx context.Context, reservationID, reason string) (*reservation.Reservation, error)
	ExpireReservations(ctx context.Context, limit int) (int, error)
}
