package tour

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-tour-reservation/internal/domain/reservation"
)

var (
	validFrom  = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	validUntil = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	priceDate  = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
)

func createTestPricing(pType reservation.ParticipantType, basePrice int) *Pricing {
	return &Pricing{
		TourID:          "tour-123",
		ParticipantType: pType,
		BasePrice:       basePrice,
		ValidFrom:       validFrom,
		ValidUntil:      validUntil,
		IsActive:        true,
		IsDefault:       true,
	}
}

func TestPricing_AppliesTo(t *testing.T) {
	p := createTestPricing(reservation.ParticipantMember, 500000)

	tests := []struct {
		name     string
		pType    reservation.ParticipantType
		date     time.Time
		expected bool
	}{
		{"種別・期間とも一致", reservation.ParticipantMember, priceDate, true},
		{"種別不一致", reservation.ParticipantGuest, priceDate, false},
		{"適用開始前", reservation.ParticipantMember, validFrom.Add(-time.Hour), false},
		{"適用開始当日", reservation.ParticipantMember, validFrom, true},
		{"適用終了当日は対象外（半開区間）", reservation.ParticipantMember, validUntil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, p.AppliesTo(tt.pType, tt.date))
		})
	}

	t.Run("無効なルールは適用されない", func(t *testing.T) {
		inactive := createTestPricing(reservation.ParticipantMember, 500000)
		inactive.IsActive = false
		assert.False(t, inactive.AppliesTo(reservation.ParticipantMember, priceDate))
	})
}

func TestPricing_MatchesCapabilitiesAndFeatures(t *testing.T) {
	tests := []struct {
		name         string
		required     []string
		requiredFeat []string
		have         []string
		haveFeat     []string
		expected     bool
	}{
		{"要件なしは全員に適用", nil, nil, nil, nil, true},
		{"要件を満たす", []string{"vip"}, nil, []string{"vip", "staff"}, nil, true},
		{"ケイパビリティ不足", []string{"vip"}, nil, []string{"staff"}, nil, false},
		{"機能要件を満たす", nil, []string{"early_access"}, nil, []string{"early_access"}, true},
		{"機能要件不足", []string{"vip"}, []string{"early_access"}, []string{"vip"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := createTestPricing(reservation.ParticipantMember, 500000)
			p.RequiredCapabilities = tt.required
			p.RequiredFeatures = tt.requiredFeat
			assert.Equal(t, tt.expected, p.MatchesCapabilitiesAndFeatures(tt.have, tt.haveFeat))
		})
	}
}

func TestPricing_FinalPrice(t *testing.T) {
	t.Run("割引なし", func(t *testing.T) {
		p := createTestPricing(reservation.ParticipantMember, 500000)
		assert.Equal(t, 500000, p.FinalPrice())
	})

	t.Run("割引あり", func(t *testing.T) {
		p := createTestPricing(reservation.ParticipantMember, 500000)
		discount := 50000
		p.DiscountAmount = &discount
		assert.Equal(t, 450000, p.FinalPrice())
	})

	t.Run("割引が価格を上回っても0未満にならない", func(t *testing.T) {
		p := createTestPricing(reservation.ParticipantMember, 30000)
		discount := 50000
		p.DiscountAmount = &discount
		assert.Equal(t, 0, p.FinalPrice())
	})
}

func TestPricing_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Pricing)
		expectedErr error
	}{
		{"有効なルール", func(p *Pricing) {}, nil},
		{"ツアーIDが空", func(p *Pricing) { p.TourID = "" }, ErrTourIDRequired},
		{"種別不正", func(p *Pricing) { p.ParticipantType = "unknown" }, ErrInvalidParticipantType},
		{"価格が負", func(p *Pricing) { p.BasePrice = -1 }, ErrInvalidPrice},
		{"適用期間が逆転", func(p *Pricing) { p.ValidUntil = p.ValidFrom }, ErrInvalidPricingWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := createTestPricing(reservation.ParticipantMember, 500000)
			tt.mutate(p)
			err := p.Validate()
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestTour_GetPricing(t *testing.T) {
	setup := func(t *testing.T) *Tour {
		tour := createTestTour(t)
		require.NoError(t, tour.AddPricing(createTestPricing(reservation.ParticipantMember, 500000)))
		require.NoError(t, tour.AddPricing(createTestPricing(reservation.ParticipantGuest, 300000)))
		return tour
	}

	t.Run("種別に応じたルールが選ばれる", func(t *testing.T) {
		tour := setup(t)
		rule, err := tour.GetPricing(reservation.ParticipantGuest, priceDate, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 300000, rule.BasePrice)
	})

	t.Run("要件付きルールがデフォルトに優先する", func(t *testing.T) {
		tour := setup(t)
		vip := createTestPricing(reservation.ParticipantMember, 400000)
		vip.IsDefault = false
		vip.RequiredCapabilities = []string{"vip"}
		require.NoError(t, tour.AddPricing(vip))

		rule, err := tour.GetPricing(reservation.ParticipantMember, priceDate, []string{"vip"}, nil)
		require.NoError(t, err)
		assert.Equal(t, 400000, rule.BasePrice)

		// 要件を満たさない会員にはデフォルトが適用される
		rule, err = tour.GetPricing(reservation.ParticipantMember, priceDate, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 500000, rule.BasePrice)
	})

	t.Run("適用可能なルールがなければエラー", func(t *testing.T) {
		tour := setup(t)
		_, err := tour.GetPricing(reservation.ParticipantMember, validUntil.AddDate(0, 1, 0), nil, nil)
		assert.ErrorIs(t, err, ErrNoPricingRule)
	})
}

func TestTour_CalculateTotalPrice(t *testing.T) {
	tour := createTestTour(t)
	require.NoError(t, tour.AddPricing(createTestPricing(reservation.ParticipantMember, 500000)))
	require.NoError(t, tour.AddPricing(createTestPricing(reservation.ParticipantGuest, 300000)))

	t.Run("会員のみ", func(t *testing.T) {
		total, err := tour.CalculateTotalPrice(priceDate, nil, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, 500000, total)
	})

	t.Run("会員 + ゲスト2人", func(t *testing.T) {
		total, err := tour.CalculateTotalPrice(priceDate, nil, nil, 2)
		require.NoError(t, err)
		assert.Equal(t, 500000+300000*2, total)
	})
}

func TestPricing_Snapshot(t *testing.T) {
	p := createTestPricing(reservation.ParticipantMember, 500000)
	p.ID = "pricing-1"
	discount := 50000
	p.DiscountAmount = &discount
	p.IsEarlyBird = true
	p.RequiredCapabilities = []string{"vip"}

	s := p.Snapshot(priceDate)

	assert.Equal(t, reservation.ParticipantMember, s.ParticipantType)
	assert.Equal(t, 500000, s.BasePrice)
	assert.Equal(t, 450000, s.FinalPrice)
	require.NotNil(t, s.PricingRuleID)
	assert.Equal(t, "pricing-1", *s.PricingRuleID)
	assert.True(t, s.IsEarlyBird)
	assert.Equal(t, []string{"vip"}, s.RequiredCapabilities)
	assert.Equal(t, priceDate, s.CapturedAt)

	// スナップショット後にルールを変更しても取り込み済みの値は変わらない
	p.BasePrice = 999999
	assert.Equal(t, 500000, s.BasePrice)
}
