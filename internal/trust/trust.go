package trust

import (
	"github.com/voltra-energy/voltra/internal/config"
	"go.uber.org/fx"
)

// VerificationQuality grades how confidently a party's declared capacity was
// verified at onboarding (meter photos, grid-operator records, satellite).
type VerificationQuality string

const (
	QualityHigh   VerificationQuality = "HIGH"
	QualityMedium VerificationQuality = "MEDIUM"
	QualityLow    VerificationQuality = "LOW"
)

// Update is the outcome of a trust adjustment.
type Update struct {
	NewScore float64
	// NewLimitPct is the share of declared capacity the party may trade.
	NewLimitPct int
	// Impact is the signed delta applied to the score, before clamping.
	Impact float64
}

// Tier maps a trust score band to an allowed-trading percentage.
type Tier struct {
	Name     string
	MinScore float64
	LimitPct int
}

// Ascending by MinScore; AllowedLimit walks it from the top.
var tiers = []Tier{
	{Name: "restricted", MinScore: 0, LimitPct: 10},
	{Name: "basic", MinScore: 0.3, LimitPct: 20},
	{Name: "standard", MinScore: 0.5, LimitPct: 40},
	{Name: "trusted", MinScore: 0.7, LimitPct: 60},
	{Name: "preferred", MinScore: 0.85, LimitPct: 80},
	{Name: "elite", MinScore: 0.95, LimitPct: 100},
}

// AllowedLimit returns the percentage of declared capacity a party with the
// given trust score may list or trade.
func AllowedLimit(score float64) int {
	return tierFor(score).LimitPct
}

// TierDescription names the tier a score falls into.
func TierDescription(score float64) string {
	return tierFor(score).Name
}

func tierFor(score float64) Tier {
	score = clamp01(score)
	for i := len(tiers) - 1; i >= 0; i-- {
		if score >= tiers[i].MinScore {
			return tiers[i]
		}
	}
	return tiers[0]
}

// Progress reports how far a score is from the next tier. Presentation only.
type Progress struct {
	CurrentTier string
	NextTier    string
	// PercentToNext is progress through the current band, in [0,100].
	PercentToNext float64
	// ScoreNeeded is the absolute score delta to reach the next tier,
	// zero at the top tier.
	ScoreNeeded float64
}

func NextTierProgress(score float64) Progress {
	score = clamp01(score)
	for i := len(tiers) - 1; i >= 0; i-- {
		if score < tiers[i].MinScore {
			continue
		}
		p := Progress{CurrentTier: tiers[i].Name}
		if i == len(tiers)-1 {
			p.PercentToNext = 100
			return p
		}
		next := tiers[i+1]
		p.NextTier = next.Name
		p.ScoreNeeded = next.MinScore - score
		span := next.MinScore - tiers[i].MinScore
		if span > 0 {
			p.PercentToNext = (score - tiers[i].MinScore) / span * 100
		}
		return p
	}
	return Progress{CurrentTier: tiers[0].Name}
}

// DeliveryPenalty computes the score penalty for an under-delivery.
// Full delivery costs nothing, zero delivery costs the full base penalty,
// a partial delivery interpolates linearly. Over-delivery clamps to zero.
func DeliveryPenalty(expectedQty, deliveredQty, basePenalty float64) float64 {
	if expectedQty <= 0 {
		return 0
	}
	if deliveredQty > expectedQty {
		deliveredQty = expectedQty
	}
	if deliveredQty < 0 {
		deliveredQty = 0
	}
	shortfall := 1 - deliveredQty/expectedQty
	return basePenalty * shortfall
}

// UpdateAfterDelivery adjusts the seller score once delivered-vs-expected
// quantities are known. expectedQty<=0 conservatively leaves the score alone.
func UpdateAfterDelivery(cfg config.TrustParams, score, deliveredQty, expectedQty float64) Update {
	if expectedQty <= 0 {
		return updateWithDelta(score, 0)
	}

	var delta float64
	if deliveredQty >= expectedQty {
		bonus := cfg.SuccessBonus * (deliveredQty / expectedQty)
		if bonus > cfg.SuccessBonus {
			bonus = cfg.SuccessBonus
		}
		delta = bonus
	} else {
		delta = -DeliveryPenalty(expectedQty, deliveredQty, cfg.FailurePenalty)
	}
	return updateWithDelta(score, delta)
}

// UpdateAfterCancel penalizes a cancellation proportionally to how much of
// the order was abandoned. Cancellations outside the enforceable window
// carry no trust consequence.
func UpdateAfterCancel(cfg config.TrustParams, score, cancelledQty, totalQty float64, withinCancelWindow bool) Update {
	if !withinCancelWindow || totalQty <= 0 || cancelledQty <= 0 {
		return updateWithDelta(score, 0)
	}
	ratio := cancelledQty / totalQty
	if ratio > 1 {
		ratio = 1
	}
	return updateWithDelta(score, -cfg.CancelPenalty*ratio)
}

// UpdateAfterVerification seeds initial trust from onboarding verification
// confidence. Applied once per party.
func UpdateAfterVerification(cfg config.TrustParams, score float64, quality VerificationQuality) Update {
	var factor float64
	switch quality {
	case QualityHigh:
		factor = 1.0
	case QualityMedium:
		factor = 0.6
	default:
		factor = 0.3
	}
	return updateWithDelta(score, cfg.SuccessBonus*factor)
}

// SeedQuality derives a VerificationQuality from how much of the declared
// capacity the verification evidence covers. Zero declared capacity cannot
// be verified and grades LOW.
func SeedQuality(declaredCapacity, verifiedCapacity float64) VerificationQuality {
	if declaredCapacity <= 0 {
		return QualityLow
	}
	ratio := verifiedCapacity / declaredCapacity
	switch {
	case ratio >= 0.9:
		return QualityHigh
	case ratio >= 0.5:
		return QualityMedium
	default:
		return QualityLow
	}
}

func updateWithDelta(score, delta float64) Update {
	newScore := clamp01(clamp01(score) + delta)
	return Update{
		NewScore:    newScore,
		NewLimitPct: AllowedLimit(newScore),
		Impact:      delta,
	}
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

// Engine binds the pure functions to the live trading configuration so
// callers pick up hot-reloaded trust parameters.
type Engine struct {
	trading *config.TradingConfigHolder
}

func NewEngine(trading *config.TradingConfigHolder) *Engine {
	return &Engine{trading: trading}
}

func (e *Engine) params() config.TrustParams { return e.trading.Get().Trust }

func (e *Engine) DefaultScore() float64 { return e.params().DefaultScore }

func (e *Engine) AfterDelivery(score, deliveredQty, expectedQty float64) Update {
	return UpdateAfterDelivery(e.params(), score, deliveredQty, expectedQty)
}

func (e *Engine) AfterCancel(score, cancelledQty, totalQty float64, withinWindow bool) Update {
	return UpdateAfterCancel(e.params(), score, cancelledQty, totalQty, withinWindow)
}

func (e *Engine) AfterVerification(score float64, quality VerificationQuality) Update {
	return UpdateAfterVerification(e.params(), score, quality)
}

// Module wires the trust engine.
var Module = fx.Module("trust.engine",
	fx.Provide(NewEngine),
)
