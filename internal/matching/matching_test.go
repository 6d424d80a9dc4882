package matching

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voltra-energy/voltra/internal/config"
)

var testWeights = config.MatchingWeights{
	Price:         0.4,
	Trust:         0.3,
	Time:          0.3,
	MinTrustScore: 0.3,
}

func window(startHour, endHour int) TimeWindow {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return TimeWindow{
		Start: base.Add(time.Duration(startHour) * time.Hour),
		End:   base.Add(time.Duration(endHour) * time.Hour),
	}
}

func TestMatch_HardFilters(t *testing.T) {
	offers := []ScorableOffer{
		{ID: 1, ProviderID: 10, PriceAmount: 600, AvailableBlocks: 100, Window: window(8, 18)},
		{ID: 2, ProviderID: 11, PriceAmount: 500, AvailableBlocks: 0, Window: window(8, 18)},
		{ID: 3, ProviderID: 12, PriceAmount: 700, AvailableBlocks: 50, Window: window(20, 23)},
		{ID: 4, ProviderID: 13, PriceAmount: 400, AvailableBlocks: 10, Window: window(8, 18)},
	}
	trust := map[snowflake.ID]float64{10: 0.8, 11: 0.9, 12: 0.9, 13: 0.1}

	res := Match(offers, trust, Criteria{
		RequestedQuantity: 10,
		RequestedWindow:   window(9, 17),
	}, testWeights)

	assert.Equal(t, 1, res.EligibleCount)
	assert.Len(t, res.AllOffers, 4)

	// Eligible offer ranks first.
	assert.Equal(t, snowflake.ID(1), res.AllOffers[0].ID)
	assert.True(t, res.AllOffers[0].Eligible)

	reasons := map[snowflake.ID][]string{}
	for _, o := range res.AllOffers {
		reasons[o.ID] = o.FilterReasons
	}
	assert.Contains(t, reasons[2], ReasonNoBlocks)
	assert.Contains(t, reasons[3], ReasonWindowMismatch)
	assert.Contains(t, reasons[4], ReasonLowTrust)
}

func TestMatch_PartialAvailabilityStaysVisible(t *testing.T) {
	offers := []ScorableOffer{
		{ID: 1, ProviderID: 10, PriceAmount: 600, AvailableBlocks: 3, Window: window(8, 18)},
	}
	trust := map[snowflake.ID]float64{10: 0.8}

	res := Match(offers, trust, Criteria{
		RequestedQuantity: 10, // more than available
		RequestedWindow:   window(9, 17),
	}, testWeights)

	require.Equal(t, 1, res.EligibleCount)
	assert.True(t, res.AllOffers[0].Eligible)
}

func TestMatch_MaxPriceCeiling(t *testing.T) {
	maxPrice := int64(550)
	offers := []ScorableOffer{
		{ID: 1, ProviderID: 10, PriceAmount: 600, AvailableBlocks: 5, Window: window(8, 18)},
		{ID: 2, ProviderID: 10, PriceAmount: 500, AvailableBlocks: 5, Window: window(8, 18)},
	}
	trust := map[snowflake.ID]float64{10: 0.8}

	res := Match(offers, trust, Criteria{
		RequestedQuantity: 1,
		RequestedWindow:   window(9, 17),
		MaxPrice:          &maxPrice,
	}, testWeights)

	assert.Equal(t, 1, res.EligibleCount)
	assert.Equal(t, snowflake.ID(2), res.AllOffers[0].ID)
	assert.Contains(t, res.AllOffers[1].FilterReasons, ReasonPriceAboveMax)
}

func TestMatch_PriceNormalization(t *testing.T) {
	offers := []ScorableOffer{
		{ID: 1, ProviderID: 10, PriceAmount: 400, AvailableBlocks: 5, Window: window(8, 18)},
		{ID: 2, ProviderID: 10, PriceAmount: 800, AvailableBlocks: 5, Window: window(8, 18)},
		{ID: 3, ProviderID: 10, PriceAmount: 600, AvailableBlocks: 5, Window: window(8, 18)},
	}
	trust := map[snowflake.ID]float64{10: 0.8}

	res := Match(offers, trust, Criteria{RequestedQuantity: 1, RequestedWindow: window(8, 18)}, testWeights)

	scores := map[snowflake.ID]float64{}
	for _, o := range res.AllOffers {
		scores[o.ID] = o.PriceScore
	}
	assert.InDelta(t, 1.0, scores[1], 1e-9)
	assert.InDelta(t, 0.0, scores[2], 1e-9)
	assert.InDelta(t, 0.5, scores[3], 1e-9)

	// Cheapest wins with equal trust and identical windows.
	assert.Equal(t, snowflake.ID(1), res.AllOffers[0].ID)
}

func TestMatch_SingleSurvivorScoresFullPrice(t *testing.T) {
	offers := []ScorableOffer{
		{ID: 1, ProviderID: 10, PriceAmount: 999, AvailableBlocks: 5, Window: window(8, 18)},
	}
	trust := map[snowflake.ID]float64{10: 0.8}

	res := Match(offers, trust, Criteria{RequestedQuantity: 1, RequestedWindow: window(8, 18)}, testWeights)
	assert.InDelta(t, 1.0, res.AllOffers[0].PriceScore, 1e-9)
}

func TestMatch_TimeFit(t *testing.T) {
	offers := []ScorableOffer{
		{ID: 1, ProviderID: 10, PriceAmount: 500, AvailableBlocks: 5, Window: window(8, 12)},  // covers half
		{ID: 2, ProviderID: 10, PriceAmount: 500, AvailableBlocks: 5, Window: window(8, 16)}, // covers all
	}
	trust := map[snowflake.ID]float64{10: 0.8}

	res := Match(offers, trust, Criteria{RequestedQuantity: 1, RequestedWindow: window(8, 16)}, testWeights)

	fits := map[snowflake.ID]float64{}
	for _, o := range res.AllOffers {
		fits[o.ID] = o.TimeFit
	}
	assert.InDelta(t, 0.5, fits[1], 1e-9)
	assert.InDelta(t, 1.0, fits[2], 1e-9)
	assert.Equal(t, snowflake.ID(2), res.AllOffers[0].ID)
}

func TestMatch_DeterministicTieBreak(t *testing.T) {
	offers := []ScorableOffer{
		{ID: 7, ProviderID: 10, PriceAmount: 500, AvailableBlocks: 5, Window: window(8, 18)},
		{ID: 3, ProviderID: 11, PriceAmount: 500, AvailableBlocks: 5, Window: window(8, 18)},
	}
	trust := map[snowflake.ID]float64{10: 0.8, 11: 0.8}

	res := Match(offers, trust, Criteria{RequestedQuantity: 1, RequestedWindow: window(8, 18)}, testWeights)

	// Identical score and trust: smaller offer id first.
	assert.Equal(t, snowflake.ID(3), res.AllOffers[0].ID)
	assert.Equal(t, snowflake.ID(7), res.AllOffers[1].ID)
}

func TestMatch_EmptyInput(t *testing.T) {
	res := Match(nil, nil, Criteria{RequestedQuantity: 1, RequestedWindow: window(8, 18)}, testWeights)
	assert.Zero(t, res.EligibleCount)
	assert.Empty(t, res.AllOffers)
}

func TestTimeWindow_Overlap(t *testing.T) {
	assert.Equal(t, 4*time.Hour, window(8, 12).Overlap(window(8, 18)))
	assert.Equal(t, time.Duration(0), window(8, 12).Overlap(window(12, 18)))
	assert.Equal(t, time.Hour, window(10, 12).Overlap(window(11, 18)))
}
