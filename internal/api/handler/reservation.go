package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-tour-reservation/internal/application"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/capacity"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/tour"
)

type ReservationHandler struct {
	service ReservationServiceInterface
}

func NewReservationHandler(s ReservationServiceInterface) *ReservationHandler {
	return &ReservationHandler{service: s}
}

// httpError はドメインエラーをHTTPステータスに対応づける
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, reservation.ErrReservationNotFound),
		errors.Is(err, tour.ErrTourNotFound),
		errors.Is(err, tour.ErrPoolNotFound),
		errors.Is(err, capacity.ErrPoolNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, capacity.ErrInsufficientSeats),
		errors.Is(err, capacity.ErrVersionConflict),
		errors.Is(err, capacity.ErrOutsideRegistrationWindow),
		errors.Is(err, capacity.ErrWindowOverlap),
		errors.Is(err, reservation.ErrConflictingReservation),
		errors.Is(err, reservation.ErrVersionConflict),
		errors.Is(err, tour.ErrVersionConflict),
		errors.Is(err, tour.ErrRegistrationNotOpen),
		errors.Is(err, tour.ErrRestrictedTour):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, capacity.ErrPoolNotVisible):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, reservation.ErrInvalidTransition),
		errors.Is(err, reservation.ErrReservationExpired),
		errors.Is(err, reservation.ErrNotExpiredYet),
		errors.Is(err, tour.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

// memberID はリクエストヘッダから会員IDを取り出す
func memberID(c echo.Context) (string, error) {
	id := c.Request().Header.Get("X-Member-ID")
	if id == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "会員IDが必要です")
	}
	return id, nil
}

// privileged は運営スタッフ権限のリクエストかを返す
func privileged(c echo.Context) bool {
	return c.Request().Header.Get("X-Staff-Role") != ""
}

type ParticipantRequest struct {
	FullName       string `json:"full_name" validate:"required"`
	NationalNumber string `json:"national_number" validate:"required"`
	Phone          string `json:"phone"`
	BirthDate      string `json:"birth_date" validate:"required" example:"1990-01-15"`
	Type           string `json:"type" validate:"required,oneof=member guest"`
}

type CreateReservationRequest struct {
	TourID             string               `json:"tour_id" validate:"required"`
	Participants       []ParticipantRequest `json:"participants" validate:"required,min=1,dive"`
	MemberCapabilities []string             `json:"member_capabilities"`
	MemberFeatures     []string             `json:"member_features"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type HoldRequest struct {
	CapacityID string `json:"capacity_id" validate:"required"`
}

type ParticipantResponse struct {
	ID             string `json:"id"`
	FullName       string `json:"full_name"`
	NationalNumber string `json:"national_number"`
	Type           string `json:"type"`
}

type ReservationResponse struct {
	ID              string                `json:"id"`
	TourID          string                `json:"tour_id"`
	MemberID        string                `json:"member_id"`
	CapacityID      *string               `json:"capacity_id,omitempty"`
	TrackingCode    string                `json:"tracking_code"`
	Status          string                `json:"status"`
	SeatCount       int                   `json:"seat_count"`
	TotalAmount     *int                  `json:"total_amount,omitempty"`
	ReservationDate time.Time             `json:"reservation_date"`
	ExpiresAt       *time.Time            `json:"expires_at,omitempty"`
	ConfirmedAt     *time.Time            `json:"confirmed_at,omitempty"`
	CancelReason    string                `json:"cancel_reason,omitempty"`
	Participants    []ParticipantResponse `json:"participants"`
}

func toReservationResponse(r *reservation.Reservation) ReservationResponse {
	participants := make([]ParticipantResponse, len(r.Participants))
	for i, p := range r.Participants {
		participants[i] = ParticipantResponse{
			ID: p.ID, FullName: p.FullName,
			NationalNumber: p.NationalNumber, Type: string(p.Type),
		}
	}
	return ReservationResponse{
		ID: r.ID, TourID: r.TourID, MemberID: r.MemberID,
		CapacityID: r.CapacityID, TrackingCode: r.TrackingCode,
		Status: string(r.Status), SeatCount: r.SeatCount(),
		TotalAmount: r.TotalAmount, ReservationDate: r.ReservationDate,
		ExpiresAt: r.ExpiresAt, ConfirmedAt: r.ConfirmedAt,
		CancelReason: r.CancelReason, Participants: participants,
	}
}

// Create godoc
// @Summary 予約を作成
// @Description Draft状態の予約を作成します（座席はまだ消費されません）
// @Tags reservations
// @Accept json
// @Produce json
// @Param X-Member-ID header string true "会員ID"
// @Param request body CreateReservationRequest true "予約情報"
// @Success 201 {object} ReservationResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 409 {object} map[string]string "支払中または確定済みの予約が既に存在"
// @Router /reservations [post]
func (h *ReservationHandler) Create(c echo.Context) error {
	member, err := memberID(c)
	if err != nil {
		return err
	}
	var req CreateReservationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	participants := make([]application.ParticipantInput, len(req.Participants))
	for i, p := range req.Participants {
		birthDate, err := time.Parse("2006-01-02", p.BirthDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "生年月日の形式が不正です")
		}
		participants[i] = application.ParticipantInput{
			FullName:       p.FullName,
			NationalNumber: p.NationalNumber,
			Phone:          p.Phone,
			BirthDate:      birthDate,
			Type:           reservation.ParticipantType(p.Type),
		}
	}

	r, err := h.service.CreateReservation(c.Request().Context(), application.CreateReservationInput{
		TourID:             req.TourID,
		MemberID:           member,
		Participants:       participants,
		MemberCapabilities: req.MemberCapabilities,
		MemberFeatures:     req.MemberFeatures,
		Privileged:         privileged(c),
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, toReservationResponse(r))
}

// GetByID godoc
// @Summary 予約を取得
// @Tags reservations
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 404 {object} map[string]string
// @Router /reservations/{id} [get]
func (h *ReservationHandler) GetByID(c echo.Context) error {
	r, err := h.service.GetReservation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// GetByTrackingCode godoc
// @Summary 追跡コードで予約を取得
// @Tags reservations
// @Produce json
// @Param code path string true "追跡コード"
// @Success 200 {object} ReservationResponse
// @Failure 404 {object} map[string]string
// @Router /reservations/tracking/{code} [get]
func (h *ReservationHandler) GetByTrackingCode(c echo.Context) error {
	r, err := h.service.GetReservationByTrackingCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// GetMemberReservations godoc
// @Summary 会員の予約一覧を取得
// @Tags reservations
// @Produce json
// @Param X-Member-ID header string true "会員ID"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} ReservationResponse
// @Failure 401 {object} map[string]string
// @Router /reservations [get]
func (h *ReservationHandler) GetMemberReservations(c echo.Context) error {
	member, err := memberID(c)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	reservations, err := h.service.GetMemberReservations(c.Request().Context(), member, limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]ReservationResponse, len(reservations))
	for i, r := range reservations {
		resp[i] = toReservationResponse(r)
	}
	return c.JSON(http.StatusOK, resp)
}

// Hold godoc
// @Summary 座席を確保して仮押さえにする
// @Description 指定の座席枠から参加者数分の座席を確保します
// @Tags reservations
// @Accept json
// @Produce json
// @Param id path string true "予約ID"
// @Param request body HoldRequest true "座席枠"
// @Success 200 {object} ReservationResponse
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "残席不足または競合"
// @Router /reservations/{id}/hold [post]
func (h *ReservationHandler) Hold(c echo.Context) error {
	var req HoldRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	r, err := h.service.HoldReservation(c.Request().Context(), c.Param("id"), req.CapacityID, privileged(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// Pay は予約を支払中に遷移させる
func (h *ReservationHandler) Pay(c echo.Context) error {
	r, err := h.service.SetToPaying(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// Confirm godoc
// @Summary 予約を確定
// @Description 支払完了した予約を確定します。合計金額はスナップショットから計算されます
// @Tags reservations
// @Produce json
// @Param id path string true "予約ID"
// @Param skip_expiry_check query bool false "決済コールバック用の期限チェック省略"
// @Success 200 {object} ReservationResponse
// @Failure 404 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /reservations/{id}/confirm [post]
func (h *ReservationHandler) Confirm(c echo.Context) error {
	skipExpiry, _ := strconv.ParseBool(c.QueryParam("skip_expiry_check"))
	r, err := h.service.ConfirmReservation(c.Request().Context(), c.Param("id"), skipExpiry)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// PaymentFailed は支払失敗を記録する
func (h *ReservationHandler) PaymentFailed(c echo.Context) error {
	var req CancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	r, err := h.service.MarkPaymentFailed(c.Request().Context(), c.Param("id"), req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// RetryPayment は支払失敗後の再試行を受け付ける
func (h *ReservationHandler) RetryPayment(c echo.Context) error {
	r, err := h.service.RetryPayment(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// Cancel godoc
// @Summary 予約をキャンセル
// @Description 予約をキャンセルし、確保済みの座席を返却します
// @Tags reservations
// @Accept json
// @Produce json
// @Param id path string true "予約ID"
// @Param request body CancelRequest false "キャンセル理由"
// @Success 200 {object} ReservationResponse
// @Failure 404 {object} map[string]string
// @Router /reservations/{id}/cancel [post]
func (h *ReservationHandler) Cancel(c echo.Context) error {
	var req CancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	r, err := h.service.CancelReservation(c.Request().Context(), c.Param("id"), req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// Renew は失効した予約を座席再確保して仮押さえに戻す
func (h *ReservationHandler) Renew(c echo.Context) error {
	r, err := h.service.RenewReservation(c.Request().Context(), c.Param("id"), privileged(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// Waitlist は予約をキャンセル待ちに回す
func (h *ReservationHandler) Waitlist(c echo.Context) error {
	r, err := h.service.WaitlistReservation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// Promote はキャンセル待ちの予約に座席を確保して昇格させる（運営用）
func (h *ReservationHandler) Promote(c echo.Context) error {
	var req HoldRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	r, err := h.service.PromoteFromWaitlist(c.Request().Context(), c.Param("id"), req.CapacityID, privileged(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// BeginRefund は返金処理を開始する
func (h *ReservationHandler) BeginRefund(c echo.Context) error {
	r, err := h.service.BeginRefund(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// CompleteRefund は返金を完了させる
func (h *ReservationHandler) CompleteRefund(c echo.Context) error {
	r, err := h.service.CompleteRefund(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// DenyRefund は返金要求を却下して確定状態に戻す
func (h *ReservationHandler) DenyRefund(c echo.Context) error {
	r, err := h.service.DenyRefund(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// RequestCancellation は確定済み予約のキャンセル申請を受け付ける
func (h *ReservationHandler) RequestCancellation(c echo.Context) error {
	var req CancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	r, err := h.service.RequestCancellation(c.Request().Context(), c.Param("id"), req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// DeclineCancellation はキャンセル申請を却下する（運営用）
func (h *ReservationHandler) DeclineCancellation(c echo.Context) error {
	r, err := h.service.DeclineCancellation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// RequestAmendment は確定済み予約の変更申請を受け付ける
func (h *ReservationHandler) RequestAmendment(c echo.Context) error {
	var req CancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	r, err := h.service.RequestAmendment(c.Request().Context(), c.Param("id"), req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// ResolveAmendment は変更申請を処理する（運営用）
func (h *ReservationHandler) ResolveAmendment(c echo.Context) error {
	r, err := h.service.ResolveAmendment(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// MarkNoShow は不参加を記録する（運営用）
func (h *ReservationHandler) MarkNoShow(c echo.Context) error {
	r, err := h.service.MarkNoShow(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// Reject は予約を却下する（運営用）
func (h *ReservationHandler) Reject(c echo.Context) error {
	var req CancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	r, err := h.service.RejectReservation(c.Request().Context(), c.Param("id"), req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}
