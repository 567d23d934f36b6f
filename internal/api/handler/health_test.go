package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sanosuguru/go-tour-reservation/internal/domain/capacity"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/reservation"
)

func TestHealthHandler_Check(t *testing.T) {
	// Setup
	e := NewTestEcho()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NewHealthHandler()

	// Act
	err := h.Check(c)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"timestamp"`)
}

func TestNewHealthHandler(t *testing.T) {
	h := NewHealthHandler()
	assert.NotNil(t, h)
}

func TestToReservationResponse(t *testing.T) {
	now := time.Now()
	expiresAt := now.Add(30 * time.Minute)
	capID := "cap-456"
	total := 24000
	r := &reservation.Reservation{
		ID:              "res-123",
		TourID:          "tour-456",
		MemberID:        "member-789",
		CapacityID:      &capID,
		TrackingCode:    "AB12CD34",
		Status:          reservation.StatusHeld,
		ReservationDate: now,
		ExpiresAt:       &expiresAt,
		TotalAmount:     &total,
		Participants: []*reservation.Participant{
			{ID: "p-1", FullName: "山田太郎", NationalNumber: "1234567890", Type: reservation.ParticipantMember},
			{ID: "p-2", FullName: "山田花子", NationalNumber: "0987654321", Type: reservation.ParticipantGuest},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	resp := toReservationResponse(r)

	assert.Equal(t, r.ID, resp.ID)
	assert.Equal(t, r.TourID, resp.TourID)
	assert.Equal(t, r.MemberID, resp.MemberID)
	assert.Equal(t, r.CapacityID, resp.CapacityID)
	assert.Equal(t, r.TrackingCode, resp.TrackingCode)
	assert.Equal(t, string(r.Status), resp.Status)
	assert.Equal(t, 2, resp.SeatCount)
	assert.Equal(t, r.TotalAmount, resp.TotalAmount)
	assert.Equal(t, r.ExpiresAt, resp.ExpiresAt)
	assert.Len(t, resp.Participants, 2)
	assert.Equal(t, "guest", resp.Participants[1].Type)
}

func TestToPoolResponse(t *testing.T) {
	now := time.Now()
	p := capacity.NewPool("tour-456", 30, now.Add(-time.Hour), now.Add(24*time.Hour), 1, 5, now)
	p.ID = "cap-123"
	p.RemainingSeats = 20

	resp := toPoolResponse(p)

	assert.Equal(t, p.ID, resp.ID)
	assert.Equal(t, p.TourID, resp.TourID)
	assert.Equal(t, p.MaxSeats, resp.MaxSeats)
	assert.Equal(t, p.RemainingSeats, resp.RemainingSeats)
	assert.Equal(t, string(p.State()), resp.State)
	assert.True(t, resp.IsActive)
	assert.False(t, resp.IsSpecial)
}
