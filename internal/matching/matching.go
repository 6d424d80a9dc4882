package matching

import (
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/voltra-energy/voltra/internal/config"
)

// Filter reasons annotated on offers that fail a hard filter, so a browsing
// UI can explain why an offer was excluded from ranking.
const (
	ReasonWindowMismatch = "window_mismatch"
	ReasonNoBlocks       = "no_available_blocks"
	ReasonPriceAboveMax  = "price_above_max"
	ReasonLowTrust       = "provider_trust_below_minimum"
)

type TimeWindow struct {
	Start time.Time
	End   time.Time
}

func (w TimeWindow) Duration() time.Duration {
	if !w.End.After(w.Start) {
		return 0
	}
	return w.End.Sub(w.Start)
}

// Overlap returns the shared duration of two windows, zero when disjoint.
func (w TimeWindow) Overlap(o TimeWindow) time.Duration {
	start := w.Start
	if o.Start.After(start) {
		start = o.Start
	}
	end := w.End
	if o.End.Before(end) {
		end = o.End
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

// ScorableOffer is the catalog snapshot view the engine ranks. PriceAmount
// is minor units (cents) per block.
type ScorableOffer struct {
	ID              snowflake.ID
	ProviderID      snowflake.ID
	PriceAmount     int64
	Currency        string
	AvailableBlocks int
	Window          TimeWindow
}

type Criteria struct {
	RequestedQuantity int
	RequestedWindow   TimeWindow
	// MaxPrice is an optional ceiling in minor units; nil means no ceiling.
	MaxPrice *int64
}

type ScoredOffer struct {
	ScorableOffer

	Eligible      bool
	FilterReasons []string

	Score      float64
	PriceScore float64
	TrustScore float64
	TimeFit    float64
}

type Result struct {
	// AllOffers contains every input offer, eligible or not, ranked with
	// eligible offers first (descending score).
	AllOffers     []ScoredOffer
	EligibleCount int
}

// Match filters and ranks a catalog snapshot against buyer criteria. Pure:
// scores are relative to this snapshot only and must not be persisted or
// compared across calls.
func Match(offers []ScorableOffer, providerTrust map[snowflake.ID]float64, criteria Criteria, weights config.MatchingWeights) Result {
	scored := make([]ScoredOffer, 0, len(offers))

	for _, offer := range offers {
		so := ScoredOffer{ScorableOffer: offer}

		if offer.Window.Overlap(criteria.RequestedWindow) == 0 {
			so.FilterReasons = append(so.FilterReasons, ReasonWindowMismatch)
		}
		// Partial availability stays visible: one block is enough to rank.
		if offer.AvailableBlocks < 1 {
			so.FilterReasons = append(so.FilterReasons, ReasonNoBlocks)
		}
		if criteria.MaxPrice != nil && offer.PriceAmount > *criteria.MaxPrice {
			so.FilterReasons = append(so.FilterReasons, ReasonPriceAboveMax)
		}
		trust := providerTrust[offer.ProviderID]
		if trust < weights.MinTrustScore {
			so.FilterReasons = append(so.FilterReasons, ReasonLowTrust)
		}

		so.Eligible = len(so.FilterReasons) == 0
		so.TrustScore = clamp01(trust)
		scored = append(scored, so)
	}

	minPrice, maxPrice := priceRange(scored)
	eligible := 0
	for i := range scored {
		if !scored[i].Eligible {
			continue
		}
		eligible++

		scored[i].PriceScore = priceScore(scored[i].PriceAmount, minPrice, maxPrice)
		scored[i].TimeFit = timeFit(scored[i].Window, criteria.RequestedWindow)
		scored[i].Score = weights.Price*scored[i].PriceScore +
			weights.Trust*scored[i].TrustScore +
			weights.Time*scored[i].TimeFit
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Eligible != b.Eligible {
			return a.Eligible
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.TrustScore != b.TrustScore {
			return a.TrustScore > b.TrustScore
		}
		return a.ID < b.ID
	})

	return Result{AllOffers: scored, EligibleCount: eligible}
}

// priceRange is computed over the surviving set only, so an overpriced
// filtered offer cannot skew the normalization.
func priceRange(offers []ScoredOffer) (int64, int64) {
	var minP, maxP int64
	first := true
	for _, o := range offers {
		if !o.Eligible {
			continue
		}
		if first {
			minP, maxP = o.PriceAmount, o.PriceAmount
			first = false
			continue
		}
		if o.PriceAmount < minP {
			minP = o.PriceAmount
		}
		if o.PriceAmount > maxP {
			maxP = o.PriceAmount
		}
	}
	return minP, maxP
}

// priceScore inverse-normalizes: cheapest survivor scores 1.0. A single
// survivor (or all equal) scores 1.0.
func priceScore(price, minPrice, maxPrice int64) float64 {
	if maxPrice <= minPrice {
		return 1.0
	}
	return clamp01(float64(maxPrice-price) / float64(maxPrice-minPrice))
}

// timeFit is the share of the requested window the offer covers.
func timeFit(offer, requested TimeWindow) float64 {
	reqDur := requested.Duration()
	if reqDur <= 0 {
		return 0
	}
	return clamp01(float64(offer.Overlap(requested)) / float64(reqDur))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
