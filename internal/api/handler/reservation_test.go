package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-tour-reservation/internal/application"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/capacity"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/reservation"
)

// MockReservationService はReservationServiceInterfaceのモック
type MockReservationService struct {
	mock.Mock
}

func (m *MockReservationService) reservationCall(args mock.Arguments) (*reservation.Reservation, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationService) CreateReservation(ctx context.Context, input application.CreateReservationInput) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, input))
}

func (m *MockReservationService) GetReservation(ctx context.Context, id string) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, id))
}

func (m *MockReservationService) GetReservationByTrackingCode(ctx context.Context, code string) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, code))
}

func (m *MockReservationService) GetMemberReservations(ctx context.Context, memberID string, limit, offset int) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, memberID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationService) HoldReservation(ctx context.Context, reservationID, capacityID string, privileged bool) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, reservationID, capacityID, privileged))
}

func (m *MockReservationService) SetToPaying(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, reservationID))
}

func (m *MockReservationService) ConfirmReservation(ctx context.Context, reservationID string, skipExpiryCheck bool) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, reservationID, skipExpiryCheck))
}

func (m *MockReservationService) MarkPaymentFailed(ctx context.Context, reservationID, reason string) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, reservationID, reason))
}

func (m *MockReservationService) RetryPayment(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, reservationID))
}

func (m *MockReservationService) CancelReservation(ctx context.Context, reservationID, reason string) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, reservationID, reason))
}

func (m *MockReservationService) SystemCancelReservation(ctx context.Context, reservationID, reason string) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, reservationID, reason))
}

func (m *MockReservationService) RenewReservation(ctx context.Context, reservationID string, privileged bool) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, reservationID, privileged))
}

func (m *MockReservationService) WaitlistReservation(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, reservationID))
}

func (m *MockReservationService) PromoteFromWaitlist(ctx context.Context, reservationID, capacityID string, privileged bool) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, reservationID, capacityID, privileged))
}

func (m *MockReservationService) BeginRefund(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, reservationID))
}

func (m *MockReservationService) CompleteRefund(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, reservationID))
}

func (m *MockReservationService) DenyRefund(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, reservationID))
}

func (m *MockReservationService) RequestCancellation(ctx context.Context, reservationID, reason string) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, reservationID, reason))
}

func (m *MockReservationService) DeclineCancellation(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, reservationID))
}

func (m *MockReservationService) RequestAmendment(ctx context.Context, reservationID, reason string) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, reservationID, reason))
}

func (m *MockReservationService) ResolveAmendment(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, reservationID))
}

func (m *MockReservationService) MarkNoShow(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, reservationID))
}

func (m *MockReservationService) RejectReservation(ctx context.Context, reservationID, reason string) (*reservation.Reservation, error) {
	return m.reservationCall(m.Called(ctx, reservationID, reason))
}

func (m *MockReservationService) ExpireReservations(ctx context.Context, limit int) (int, error) {
	args := m.Called(ctx, limit)
	return args.Int(0), args.Error(1)
}

func testReservation(status reservation.Status) *reservation.Reservation {
	now := time.Now()
	capID := "cap-123"
	return &reservation.Reservation{
		ID:              "res-123",
		TourID:          "tour-123",
		MemberID:        "member-123",
		CapacityID:      &capID,
		TrackingCode:    "AB12CD34",
		Status:          status,
		ReservationDate: now,
		Participants: []*reservation.Participant{
			{ID: "p-1", FullName: "山田太郎", NationalNumber: "1234567890", Type: reservation.ParticipantMember},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestReservationHandler_Create(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常に予約を作成できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("CreateReservation", mock.Anything, mock.AnythingOfType("application.CreateReservationInput")).
			Return(testReservation(reservation.StatusDraft), nil)

		handler := NewReservationHandler(mockService)

		reqBody := `{
			"tour_id": "tour-123",
			"participants": [
				{"full_name": "山田太郎", "national_number": "1234567890", "birth_date": "1990-01-15", "type": "member"}
			]
		}`
		req := httptest.NewRequest(http.MethodPost, "/reservations", strings.NewReader(reqBody))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set("X-Member-ID", "member-123")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.Create(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp ReservationResponse
		err = json.Unmarshal(rec.Body.Bytes(), &resp)
		require.NoError(t, err)
		assert.Equal(t, "res-123", resp.ID)
		assert.Equal(t, "draft", resp.Status)
		assert.Equal(t, "AB12CD34", resp.TrackingCode)

		mockService.AssertExpectations(t)
	})

	t.Run("会員IDがない場合401", func(t *testing.T) {
		mockService := new(MockReservationService)
		handler := NewReservationHandler(mockService)

		reqBody := `{"tour_id": "tour-123", "participants": [{"full_name": "山田太郎", "national_number": "1234567890", "birth_date": "1990-01-15", "type": "member"}]}`
		req := httptest.NewRequest(http.MethodPost, "/reservations", strings.NewReader(reqBody))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		// X-Member-ID ヘッダーなし
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.Create(c)

		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, he.Code)
	})

	t.Run("生年月日の形式が不正な場合400", func(t *testing.T) {
		mockService := new(MockReservationService)
		handler := NewReservationHandler(mockService)

		reqBody := `{"tour_id": "tour-123", "participants": [{"full_name": "山田太郎", "national_number": "1234567890", "birth_date": "1990/01/15", "type": "member"}]}`
		req := httptest.NewRequest(http.MethodPost, "/reservations", strings.NewReader(reqBody))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set("X-Member-ID", "member-123")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.Create(c)

		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, he.Code)
	})

	t.Run("既存の有効な予約と競合する場合409", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("CreateReservation", mock.Anything, mock.AnythingOfType("application.CreateReservationInput")).
			Return(nil, reservation.ErrConflictingReservation)

		handler := NewReservationHandler(mockService)

		reqBody := `{"tour_id": "tour-123", "participants": [{"full_name": "山田太郎", "national_number": "1234567890", "birth_date": "1990-01-15", "type": "member"}]}`
		req := httptest.NewRequest(http.MethodPost, "/reservations", strings.NewReader(reqBody))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set("X-Member-ID", "member-123")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.Create(c)

		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusConflict, he.Code)

		mockService.AssertExpectations(t)
	})
}

func TestReservationHandler_GetByID(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常に予約を取得できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("GetReservation", mock.Anything, "res-123").
			Return(testReservation(reservation.StatusHeld), nil)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodGet, "/reservations/res-123", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("res-123")

		err := handler.GetByID(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		mockService.AssertExpectations(t)
	})

	t.Run("予約が見つからない場合404", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("GetReservation", mock.Anything, "nonexistent").
			Return(nil, reservation.ErrReservationNotFound)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodGet, "/reservations/nonexistent", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("nonexistent")

		err := handler.GetByID(c)

		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusNotFound, he.Code)

		mockService.AssertExpectations(t)
	})
}

func TestReservationHandler_GetByTrackingCode(t *testing.T) {
	e := NewTestEcho()

	mockService := new(MockReservationService)
	mockService.On("GetReservationByTrackingCode", mock.Anything, "AB12CD34").
		Return(testReservation(reservation.StatusConfirmed), nil)

	handler := NewReservationHandler(mockService)

	req := httptest.NewRequest(http.MethodGet, "/reservations/tracking/AB12CD34", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("code")
	c.SetParamValues("AB12CD34")

	err := handler.GetByTrackingCode(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ReservationResponse
	err = json.Unmarshal(rec.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "AB12CD34", resp.TrackingCode)

	mockService.AssertExpectations(t)
}

func TestReservationHandler_GetMemberReservations(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常に会員の予約一覧を取得できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		reservations := []*reservation.Reservation{
			testReservation(reservation.StatusHeld),
			testReservation(reservation.StatusConfirmed),
		}

		mockService.On("GetMemberReservations", mock.Anything, "member-123", 0, 0).
			Return(reservations, nil)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodGet, "/reservations", nil)
		req.Header.Set("X-Member-ID", "member-123")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.GetMemberReservations(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp []ReservationResponse
		err = json.Unmarshal(rec.Body.Bytes(), &resp)
		require.NoError(t, err)
		assert.Len(t, resp, 2)

		mockService.AssertExpectations(t)
	})

	t.Run("会員IDがない場合401", func(t *testing.T) {
		mockService := new(MockReservationService)
		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodGet, "/reservations", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler.GetMemberReservations(c)

		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, he.Code)
	})
}

func TestReservationHandler_Hold(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常に座席を確保できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		held := testReservation(reservation.StatusHeld)
		expiresAt := time.Now().Add(30 * time.Minute)
		held.ExpiresAt = &expiresAt

		mockService.On("HoldReservation", mock.Anything, "res-123", "cap-123", false).
			Return(held, nil)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations/res-123/hold", strings.NewReader(`{"capacity_id": "cap-123"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("res-123")

		err := handler.Hold(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp ReservationResponse
		err = json.Unmarshal(rec.Body.Bytes(), &resp)
		require.NoError(t, err)
		assert.Equal(t, "held", resp.Status)
		assert.NotNil(t, resp.ExpiresAt)

		mockService.AssertExpectations(t)
	})

	t.Run("スタッフロールヘッダーで特別枠を指定できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("HoldReservation", mock.Anything, "res-123", "cap-special", true).
			Return(testReservation(reservation.StatusHeld), nil)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations/res-123/hold", strings.NewReader(`{"capacity_id": "cap-special"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set("X-Staff-Role", "operator")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("res-123")

		err := handler.Hold(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		mockService.AssertExpectations(t)
	})

	t.Run("残席不足の場合409", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("HoldReservation", mock.Anything, "res-123", "cap-123", false).
			Return(nil, capacity.ErrInsufficientSeats)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations/res-123/hold", strings.NewReader(`{"capacity_id": "cap-123"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("res-123")

		err := handler.Hold(c)

		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusConflict, he.Code)

		mockService.AssertExpectations(t)
	})

	t.Run("特別枠を一般会員が指定した場合403", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("HoldReservation", mock.Anything, "res-123", "cap-special", false).
			Return(nil, capacity.ErrPoolNotVisible)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations/res-123/hold", strings.NewReader(`{"capacity_id": "cap-special"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("res-123")

		err := handler.Hold(c)

		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusForbidden, he.Code)

		mockService.AssertExpectations(t)
	})
}

func TestReservationHandler_Confirm(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常に予約を確定できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		confirmed := testReservation(reservation.StatusConfirmed)
		confirmedAt := time.Now()
		total := 18000
		confirmed.ConfirmedAt = &confirmedAt
		confirmed.TotalAmount = &total

		mockService.On("ConfirmReservation", mock.Anything, "res-123", false).
			Return(confirmed, nil)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations/res-123/confirm", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("res-123")

		err := handler.Confirm(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp ReservationResponse
		err = json.Unmarshal(rec.Body.Bytes(), &resp)
		require.NoError(t, err)
		assert.Equal(t, "confirmed", resp.Status)
		require.NotNil(t, resp.TotalAmount)
		assert.Equal(t, 18000, *resp.TotalAmount)

		mockService.AssertExpectations(t)
	})

	t.Run("クエリで期限チェックを省略できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("ConfirmReservation", mock.Anything, "res-123", true).
			Return(testReservation(reservation.StatusConfirmed), nil)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations/res-123/confirm?skip_expiry_check=true", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("res-123")

		err := handler.Confirm(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		mockService.AssertExpectations(t)
	})

	t.Run("期限切れの予約は422", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("ConfirmReservation", mock.Anything, "res-123", false).
			Return(nil, reservation.ErrReservationExpired)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations/res-123/confirm", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("res-123")

		err := handler.Confirm(c)

		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnprocessableEntity, he.Code)

		mockService.AssertExpectations(t)
	})
}

func TestReservationHandler_Cancel(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常に予約をキャンセルできる", func(t *testing.T) {
		mockService := new(MockReservationService)
		cancelled := testReservation(reservation.StatusCancelled)
		cancelled.CancelReason = "予定が変わったため"

		mockService.On("CancelReservation", mock.Anything, "res-123", "予定が変わったため").
			Return(cancelled, nil)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations/res-123/cancel", strings.NewReader(`{"reason": "予定が変わったため"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("res-123")

		err := handler.Cancel(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp ReservationResponse
		err = json.Unmarshal(rec.Body.Bytes(), &resp)
		require.NoError(t, err)
		assert.Equal(t, "cancelled", resp.Status)
		assert.Equal(t, "予定が変わったため", resp.CancelReason)

		mockService.AssertExpectations(t)
	})

	t.Run("予約が見つからない場合404", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("CancelReservation", mock.Anything, "nonexistent", "").
			Return(nil, reservation.ErrReservationNotFound)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations/nonexistent/cancel", strings.NewReader(`{}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("nonexistent")

		err := handler.Cancel(c)

		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusNotFound, he.Code)

		mockService.AssertExpectations(t)
	})
}

func TestReservationHandler_Renew(t *testing.T) {
	e := NewTestEcho()

	t.Run("失効した予約を復活できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("RenewReservation", mock.Anything, "res-123", false).
			Return(testReservation(reservation.StatusHeld), nil)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations/res-123/renew", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("res-123")

		err := handler.Renew(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		mockService.AssertExpectations(t)
	})

	t.Run("残席不足の場合409", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("RenewReservation", mock.Anything, "res-123", false).
			Return(nil, capacity.ErrInsufficientSeats)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations/res-123/renew", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("res-123")

		err := handler.Renew(c)

		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusConflict, he.Code)

		mockService.AssertExpectations(t)
	})
}

func TestReservationHandler_RefundFlow(t *testing.T) {
	e := NewTestEcho()

	t.Run("返金開始から完了まで", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("BeginRefund", mock.Anything, "res-123").
			Return(testReservation(reservation.StatusRefunding), nil)
		mockService.On("CompleteRefund", mock.Anything, "res-123").
			Return(testReservation(reservation.StatusRefunded), nil)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations/res-123/refund", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("res-123")
		require.NoError(t, handler.BeginRefund(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		req = httptest.NewRequest(http.MethodPost, "/reservations/res-123/refund/complete", nil)
		rec = httptest.NewRecorder()
		c = e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("res-123")
		require.NoError(t, handler.CompleteRefund(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		mockService.AssertExpectations(t)
	})

	t.Run("確定済みでない予約の返金開始は422", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("BeginRefund", mock.Anything, "res-123").
			Return(nil, reservation.ErrInvalidTransition)

		handler := NewReservationHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/reservations/res-123/refund", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("res-123")

		err := handler.BeginRefund(c)

		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnprocessableEntity, he.Code)

		mockService.AssertExpectations(t)
	})
}

func TestReservationHandler_Waitlist(t *testing.T) {
	e := NewTestEcho()

	mockService := new(MockReservationService)
	mockService.On("WaitlistReservation", mock.Anything, "res-123").
		Return(testReservation(reservation.StatusWaitlisted), nil)
	mockService.On("PromoteFromWaitlist", mock.Anything, "res-123", "cap-123", true).
		Return(testReservation(reservation.StatusHeld), nil)

	handler := NewReservationHandler(mockService)

	req := httptest.NewRequest(http.MethodPost, "/reservations/res-123/waitlist", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("res-123")
	require.NoError(t, handler.Waitlist(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/reservations/res-123/promote", strings.NewReader(`{"capacity_id": "cap-123"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Staff-Role", "operator")
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("res-123")
	require.NoError(t, handler.Promote(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	mockService.AssertExpectations(t)
}
