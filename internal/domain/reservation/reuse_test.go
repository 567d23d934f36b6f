package reservation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reuseFixture は指定状態・予約日時の予約を作る
func reuseFixture(t *testing.T, status Status, reservedAt time.Time, expiresAt *time.Time) *Reservation {
	t.Helper()
	r := NewReservation("tour-123", "member-456", "TR-"+string(status), nil, reservedAt)
	r.Status = status
	r.ExpiresAt = expiresAt
	return r
}

func TestReservation_CanBeReused(t *testing.T) {
	now := baseTime
	past := baseTime.Add(-time.Hour)
	future := baseTime.Add(time.Hour)

	tests := []struct {
		name      string
		status    Status
		expiresAt *time.Time
		expected  bool
	}{
		{"Draftは常に再利用可能", StatusDraft, nil, true},
		{"Expiredは再利用可能", StatusExpired, &past, true},
		{"期限切れのHeldは再利用可能", StatusHeld, &past, true},
		{"期限内のHeldは再利用不可", StatusHeld, &future, false},
		{"Confirmedは再利用不可", StatusConfirmed, nil, false},
		{"Payingは再利用不可", StatusPaying, &future, false},
		{"Cancelledは再利用不可", StatusCancelled, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := reuseFixture(t, tt.status, baseTime, tt.expiresAt)
			assert.Equal(t, tt.expected, r.CanBeReused(now))
		})
	}
}

func TestFindBestReusableReservation(t *testing.T) {
	now := baseTime
	past := baseTime.Add(-time.Hour)

	t.Run("Draft > Expired > 期限切れHeld の優先順位", func(t *testing.T) {
		draft := reuseFixture(t, StatusDraft, baseTime.Add(-3*time.Hour), nil)
		expired := reuseFixture(t, StatusExpired, baseTime.Add(-time.Hour), &past)
		heldExpired := reuseFixture(t, StatusHeld, baseTime.Add(-30*time.Minute), &past)

		best := FindBestReusableReservation(now, []*Reservation{heldExpired, expired, draft})

		require.NotNil(t, best)
		assert.Equal(t, StatusDraft, best.Status, "予約日時が古くてもDraftが最優先")
	})

	t.Run("同一階層では予約日時の新しい順", func(t *testing.T) {
		older := reuseFixture(t, StatusDraft, baseTime.Add(-2*time.Hour), nil)
		newer := reuseFixture(t, StatusDraft, baseTime.Add(-time.Hour), nil)

		best := FindBestReusableReservation(now, []*Reservation{older, newer})

		require.NotNil(t, best)
		assert.Same(t, newer, best)
	})

	t.Run("Confirmedしかなければnil", func(t *testing.T) {
		confirmed := reuseFixture(t, StatusConfirmed, baseTime, nil)
		assert.Nil(t, FindBestReusableReservation(now, []*Reservation{confirmed}))
	})

	t.Run("候補なしはnil", func(t *testing.T) {
		assert.Nil(t, FindBestReusableReservation(now, nil))
	})
}

func TestHasConflictingReservation(t *testing.T) {
	future := baseTime.Add(time.Hour)

	tests := []struct {
		name     string
		statuses []Status
		expected bool
	}{
		{"Payingがあれば競合", []Status{StatusCancelled, StatusPaying}, true},
		{"Confirmedがあれば競合", []Status{StatusConfirmed}, true},
		{"Held・Draft・Expiredは競合しない（更新で回収できる）", []Status{StatusHeld, StatusDraft, StatusExpired}, false},
		{"既存なしは競合しない", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var existing []*Reservation
			for _, s := range tt.statuses {
				existing = append(existing, reuseFixture(t, s, baseTime, &future))
			}
			assert.Equal(t, tt.expected, HasConflictingReservation(existing))
		})
	}
}
