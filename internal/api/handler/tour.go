package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-tour-reservation/internal/application"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/capacity"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/tour"
)

type TourHandler struct {
	service TourServiceInterface
}

func NewTourHandler(s TourServiceInterface) *TourHandler {
	return &TourHandler{service: s}
}

type CreateTourRequest struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	TourStart   time.Time `json:"tour_start" validate:"required"`
	TourEnd     time.Time `json:"tour_end" validate:"required"`
	MinAge      int       `json:"min_age" validate:"min=0"`
	MaxAge      int       `json:"max_age" validate:"min=0"`
	MaxGuests   int       `json:"max_guests_per_reservation" validate:"min=0"`
}

type ChangeStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type AddCapacityPoolRequest struct {
	MaxSeats           int       `json:"max_seats" validate:"required,min=1"`
	RegistrationStart  time.Time `json:"registration_start" validate:"required"`
	RegistrationEnd    time.Time `json:"registration_end" validate:"required"`
	MinReservationSize int       `json:"min_reservation_size" validate:"min=1"`
	MaxReservationSize int       `json:"max_reservation_size" validate:"min=1"`
	IsSpecial          bool      `json:"is_special"`
}

type UpdateCapacityPoolRequest struct {
	RegistrationStart  time.Time `json:"registration_start" validate:"required"`
	RegistrationEnd    time.Time `json:"registration_end" validate:"required"`
	MinReservationSize int       `json:"min_reservation_size" validate:"min=1"`
	MaxReservationSize int       `json:"max_reservation_size" validate:"min=1"`
	IsSpecial          bool      `json:"is_special"`
}

type AddPricingRequest struct {
	ParticipantType      string    `json:"participant_type" validate:"required,oneof=member guest"`
	BasePrice            int       `json:"base_price" validate:"min=0"`
	DiscountAmount       *int      `json:"discount_amount"`
	DiscountCode         *string   `json:"discount_code"`
	ValidFrom            time.Time `json:"valid_from" validate:"required"`
	ValidUntil           time.Time `json:"valid_until" validate:"required"`
	IsDefault            bool      `json:"is_default"`
	IsEarlyBird          bool      `json:"is_early_bird"`
	IsLastMinute         bool      `json:"is_last_minute"`
	RequiredCapabilities []string  `json:"required_capabilities"`
	RequiredFeatures     []string  `json:"required_features"`
}

type AddRestrictedTourRequest struct {
	RestrictedTourID string `json:"restricted_tour_id" validate:"required"`
}

type CapacityPoolResponse struct {
	ID                 string    `json:"id"`
	TourID             string    `json:"tour_id"`
	MaxSeats           int       `json:"max_seats"`
	RemainingSeats     int       `json:"remaining_seats"`
	State              string    `json:"state"`
	RegistrationStart  time.Time `json:"registration_start"`
	RegistrationEnd    time.Time `json:"registration_end"`
	MinReservationSize int       `json:"min_reservation_size"`
	MaxReservationSize int       `json:"max_reservation_size"`
	IsActive           bool      `json:"is_active"`
	IsSpecial          bool      `json:"is_special"`
}

type TourResponse struct {
	ID                string                 `json:"id"`
	Title             string                 `json:"title"`
	Description       string                 `json:"description,omitempty"`
	TourStart         time.Time              `json:"tour_start"`
	TourEnd           time.Time              `json:"tour_end"`
	MinAge            int                    `json:"min_age"`
	MaxAge            int                    `json:"max_age"`
	MaxGuests         int                    `json:"max_guests_per_reservation"`
	Status            string                 `json:"status"`
	MaxParticipants   int                    `json:"max_participants"`
	Pools             []CapacityPoolResponse `json:"pools,omitempty"`
	RestrictedTourIDs []string               `json:"restricted_tour_ids,omitempty"`
}

func toPoolResponse(p *capacity.Pool) CapacityPoolResponse {
	return CapacityPoolResponse{
		ID: p.ID, TourID: p.TourID,
		MaxSeats: p.MaxSeats, RemainingSeats: p.RemainingSeats,
		State:             string(p.State()),
		RegistrationStart: p.RegistrationStart, RegistrationEnd: p.RegistrationEnd,
		MinReservationSize: p.MinReservationSize, MaxReservationSize: p.MaxReservationSize,
		IsActive: p.IsActive, IsSpecial: p.IsSpecial,
	}
}

func toTourResponse(t *tour.Tour) TourResponse {
	pools := make([]CapacityPoolResponse, len(t.Pools))
	for i, p := range t.Pools {
		pools[i] = toPoolResponse(p)
	}
	return TourResponse{
		ID: t.ID, Title: t.Title, Description: t.Description,
		TourStart: t.TourStart, TourEnd: t.TourEnd,
		MinAge: t.MinAge, MaxAge: t.MaxAge, MaxGuests: t.MaxGuestsPerReservation,
		Status:          string(t.Status),
		MaxParticipants: t.MaxParticipants(),
		Pools:           pools, RestrictedTourIDs: t.RestrictedTourIDs,
	}
}

// Create godoc
// @Summary ツアーを作成
// @Tags tours
// @Accept json
// @Produce json
// @Param request body CreateTourRequest true "ツアー情報"
// @Success 201 {object} TourResponse
// @Failure 400 {object} map[string]string
// @Router /tours [post]
func (h *TourHandler) Create(c echo.Context) error {
	var req CreateTourRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	t, err := h.service.CreateTour(c.Request().Context(), application.CreateTourInput{
		Title:                   req.Title,
		Description:             req.Description,
		TourStart:               req.TourStart,
		TourEnd:                 req.TourEnd,
		MinAge:                  req.MinAge,
		MaxAge:                  req.MaxAge,
		MaxGuestsPerReservation: req.MaxGuests,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, toTourResponse(t))
}

// GetByID godoc
// @Summary ツアーを取得
// @Tags tours
// @Produce json
// @Param id path string true "ツアーID"
// @Success 200 {object} TourResponse
// @Failure 404 {object} map[string]string
// @Router /tours/{id} [get]
func (h *TourHandler) GetByID(c echo.Context) error {
	t, err := h.service.GetTour(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toTourResponse(t))
}

// List godoc
// @Summary ツアー一覧を取得
// @Tags tours
// @Produce json
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} TourResponse
// @Router /tours [get]
func (h *TourHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	tours, err := h.service.ListTours(c.Request().Context(), limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]TourResponse, len(tours))
	for i, t := range tours {
		resp[i] = toTourResponse(t)
	}
	return c.JSON(http.StatusOK, resp)
}

// ChangeStatus はツアーの状態を変更する
func (h *TourHandler) ChangeStatus(c echo.Context) error {
	var req ChangeStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	t, err := h.service.ChangeTourStatus(c.Request().Context(), c.Param("id"), tour.Status(req.Status))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toTourResponse(t))
}

// OpenRegistration は予約受付を開始する
func (h *TourHandler) OpenRegistration(c echo.Context) error {
	t, err := h.service.OpenRegistration(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toTourResponse(t))
}

// CloseRegistration は予約受付を終了する
func (h *TourHandler) CloseRegistration(c echo.Context) error {
	t, err := h.service.CloseRegistration(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toTourResponse(t))
}

// AddCapacityPool godoc
// @Summary 座席枠を追加
// @Description 受付期間が既存の有効な枠と重複する場合は409を返します
// @Tags tours
// @Accept json
// @Produce json
// @Param id path string true "ツアーID"
// @Param request body AddCapacityPoolRequest true "座席枠情報"
// @Success 201 {object} CapacityPoolResponse
// @Failure 409 {object} map[string]string "受付期間の重複"
// @Router /tours/{id}/pools [post]
func (h *TourHandler) AddCapacityPool(c echo.Context) error {
	var req AddCapacityPoolRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	pool, err := h.service.AddCapacityPool(c.Request().Context(), application.AddCapacityPoolInput{
		TourID:             c.Param("id"),
		MaxSeats:           req.MaxSeats,
		RegistrationStart:  req.RegistrationStart,
		RegistrationEnd:    req.RegistrationEnd,
		MinReservationSize: req.MinReservationSize,
		MaxReservationSize: req.MaxReservationSize,
		IsSpecial:          req.IsSpecial,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, toPoolResponse(pool))
}

// UpdateCapacityPool は座席枠の受付期間・人数制約を更新する
func (h *TourHandler) UpdateCapacityPool(c echo.Context) error {
	var req UpdateCapacityPoolRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	pool, err := h.service.UpdateCapacityPool(c.Request().Context(), application.UpdateCapacityPoolInput{
		TourID:             c.Param("id"),
		PoolID:             c.Param("pool_id"),
		RegistrationStart:  req.RegistrationStart,
		RegistrationEnd:    req.RegistrationEnd,
		MinReservationSize: req.MinReservationSize,
		MaxReservationSize: req.MaxReservationSize,
		IsSpecial:          req.IsSpecial,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toPoolResponse(pool))
}

// DeactivateCapacityPool は座席枠を無効化する
func (h *TourHandler) DeactivateCapacityPool(c echo.Context) error {
	if err := h.service.DeactivateCapacityPool(c.Request().Context(), c.Param("id"), c.Param("pool_id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AddPricing は料金ルールを追加する
func (h *TourHandler) AddPricing(c echo.Context) error {
	var req AddPricingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	p, err := h.service.AddPricing(c.Request().Context(), application.AddPricingInput{
		TourID:               c.Param("id"),
		ParticipantType:      reservation.ParticipantType(req.ParticipantType),
		BasePrice:            req.BasePrice,
		DiscountAmount:       req.DiscountAmount,
		DiscountCode:         req.DiscountCode,
		ValidFrom:            req.ValidFrom,
		ValidUntil:           req.ValidUntil,
		IsDefault:            req.IsDefault,
		IsEarlyBird:          req.IsEarlyBird,
		IsLastMinute:         req.IsLastMinute,
		RequiredCapabilities: req.RequiredCapabilities,
		RequiredFeatures:     req.RequiredFeatures,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

// AddRestrictedTour は相互排他なツアーを登録する
func (h *TourHandler) AddRestrictedTour(c echo.Context) error {
	var req AddRestrictedTourRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.service.AddRestrictedTour(c.Request().Context(), c.Param("id"), req.RestrictedTourID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetAvailableSpots godoc
// @Summary 残りの受入可能人数を取得
// @Description 確定済みと保留中の座席を定員から差し引いた人数を返します
// @Tags tours
// @Produce json
// @Param id path string true "ツアーID"
// @Success 200 {object} map[string]int
// @Failure 404 {object} map[string]string
// @Router /tours/{id}/available-spots [get]
func (h *TourHandler) GetAvailableSpots(c echo.Context) error {
	spots, err := h.service.GetAvailableSpots(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"available_spots": spots})
}

// GetOpenPools は現在受付中の座席枠一覧を返す
func (h *TourHandler) GetOpenPools(c echo.Context) error {
	pools, err := h.service.GetOpenPools(c.Request().Context(), c.Param("id"), privileged(c))
	if err != nil {
		return httpError(err)
	}
	resp := make([]CapacityPoolResponse, len(pools))
	for i, p := range pools {
		resp[i] = toPoolResponse(p)
	}
	return c.JSON(http.StatusOK, resp)
}
