package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/voltra-energy/voltra/internal/config"
)

func testParams() config.TrustParams {
	return config.TrustParams{
		DefaultScore:   0.5,
		SuccessBonus:   0.05,
		FailurePenalty: 0.10,
		CancelPenalty:  0.10,
	}
}

func TestAllowedLimit_Boundaries(t *testing.T) {
	assert.Equal(t, 10, AllowedLimit(0.29))
	assert.Equal(t, 20, AllowedLimit(0.3))
	assert.Equal(t, 20, AllowedLimit(0.49))
	assert.Equal(t, 40, AllowedLimit(0.5))
	assert.Equal(t, 60, AllowedLimit(0.7))
	assert.Equal(t, 80, AllowedLimit(0.85))
	assert.Equal(t, 100, AllowedLimit(0.95))
	assert.Equal(t, 100, AllowedLimit(1.0))
	assert.Equal(t, 10, AllowedLimit(0))
}

func TestDeliveryPenalty(t *testing.T) {
	assert.InDelta(t, 0, DeliveryPenalty(5, 5, 0.10), 1e-9)
	assert.InDelta(t, 0.10, DeliveryPenalty(5, 0, 0.10), 1e-9)
	assert.InDelta(t, 0.02, DeliveryPenalty(5, 4, 0.10), 1e-9)

	// Over-delivery is not rewarded with a negative penalty.
	assert.InDelta(t, 0, DeliveryPenalty(5, 7, 0.10), 1e-9)

	// Zero expected quantity short-circuits.
	assert.InDelta(t, 0, DeliveryPenalty(0, 3, 0.10), 1e-9)
}

func TestDeliveryPenalty_MonotoneInDelivered(t *testing.T) {
	prev := DeliveryPenalty(10, 0, 0.10)
	for d := 1.0; d <= 10; d++ {
		cur := DeliveryPenalty(10, d, 0.10)
		assert.LessOrEqual(t, cur, prev, "penalty must be non-increasing in delivered qty")
		prev = cur
	}
}

func TestUpdateAfterDelivery(t *testing.T) {
	cfg := testParams()

	full := UpdateAfterDelivery(cfg, 0.5, 10, 10)
	assert.InDelta(t, 0.55, full.NewScore, 1e-9)
	assert.Equal(t, 40, full.NewLimitPct)

	short := UpdateAfterDelivery(cfg, 0.5, 4, 10)
	assert.InDelta(t, 0.5-0.06, short.NewScore, 1e-9)
	assert.True(t, short.Impact < 0)

	zeroExpected := UpdateAfterDelivery(cfg, 0.5, 4, 0)
	assert.InDelta(t, 0.5, zeroExpected.NewScore, 1e-9)
}

func TestUpdateAfterDelivery_Clamps(t *testing.T) {
	cfg := testParams()

	top := UpdateAfterDelivery(cfg, 0.99, 10, 10)
	assert.InDelta(t, 1.0, top.NewScore, 1e-9)

	bottom := UpdateAfterDelivery(cfg, 0.05, 0, 10)
	assert.InDelta(t, 0, bottom.NewScore, 1e-9)
}

func TestUpdateAfterCancel(t *testing.T) {
	cfg := testParams()

	outside := UpdateAfterCancel(cfg, 0.6, 10, 10, false)
	assert.InDelta(t, 0.6, outside.NewScore, 1e-9)

	full := UpdateAfterCancel(cfg, 0.6, 10, 10, true)
	assert.InDelta(t, 0.5, full.NewScore, 1e-9)

	partial := UpdateAfterCancel(cfg, 0.6, 5, 10, true)
	assert.InDelta(t, 0.55, partial.NewScore, 1e-9)

	zeroTotal := UpdateAfterCancel(cfg, 0.6, 5, 0, true)
	assert.InDelta(t, 0.6, zeroTotal.NewScore, 1e-9)
}

func TestUpdateAfterVerification(t *testing.T) {
	cfg := testParams()

	high := UpdateAfterVerification(cfg, 0.5, QualityHigh)
	assert.InDelta(t, 0.55, high.NewScore, 1e-9)

	medium := UpdateAfterVerification(cfg, 0.5, QualityMedium)
	assert.InDelta(t, 0.53, medium.NewScore, 1e-9)

	low := UpdateAfterVerification(cfg, 0.5, QualityLow)
	assert.InDelta(t, 0.515, low.NewScore, 1e-9)
}

func TestSeedQuality(t *testing.T) {
	assert.Equal(t, QualityLow, SeedQuality(0, 100))
	assert.Equal(t, QualityHigh, SeedQuality(100, 95))
	assert.Equal(t, QualityMedium, SeedQuality(100, 60))
	assert.Equal(t, QualityLow, SeedQuality(100, 10))
}

func TestScoreClamping_Property(t *testing.T) {
	cfg := testParams()
	scores := []float64{0, 0.1, 0.3, 0.5, 0.7, 0.9, 1.0}
	for _, s := range scores {
		for _, d := range []float64{0, 2, 5, 10, 15} {
			u := UpdateAfterDelivery(cfg, s, d, 10)
			assert.GreaterOrEqual(t, u.NewScore, 0.0)
			assert.LessOrEqual(t, u.NewScore, 1.0)

			c := UpdateAfterCancel(cfg, s, d, 10, true)
			assert.GreaterOrEqual(t, c.NewScore, 0.0)
			assert.LessOrEqual(t, c.NewScore, 1.0)
		}
	}
}

func TestNextTierProgress(t *testing.T) {
	p := NextTierProgress(0.4)
	assert.Equal(t, "basic", p.CurrentTier)
	assert.Equal(t, "standard", p.NextTier)
	assert.InDelta(t, 0.1, p.ScoreNeeded, 1e-9)
	assert.InDelta(t, 50, p.PercentToNext, 1e-9)

	top := NextTierProgress(0.97)
	assert.Equal(t, "elite", top.CurrentTier)
	assert.Empty(t, top.NextTier)
	assert.InDelta(t, 100, top.PercentToNext, 1e-9)
	assert.Zero(t, top.ScoreNeeded)
}
