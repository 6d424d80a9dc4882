package config

import (
	"errors"
	"log"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// TradingConfig carries the tunable market parameters: matching weights,
// trust score arithmetic and cancellation economics. Operators adjust these
// without redeploying, so the holder supports hot reload.
type TradingConfig struct {
	Matching MatchingWeights `mapstructure:"matching"`
	Trust    TrustParams     `mapstructure:"trust"`
	Orders   OrderParams     `mapstructure:"orders"`
	Blocks   BlockParams     `mapstructure:"blocks"`
}

type MatchingWeights struct {
	Price float64 `mapstructure:"price"`
	Trust float64 `mapstructure:"trust"`
	Time  float64 `mapstructure:"time"`

	MinTrustScore float64 `mapstructure:"minTrustScore"`
}

type TrustParams struct {
	DefaultScore   float64 `mapstructure:"defaultScore"`
	SuccessBonus   float64 `mapstructure:"successBonus"`
	FailurePenalty float64 `mapstructure:"failurePenalty"`
	CancelPenalty  float64 `mapstructure:"cancelPenalty"`
}

type OrderParams struct {
	// CancelWindow is measured backwards from scheduled delivery: a buyer
	// cancellation inside it carries a penalty, outside it is free.
	CancelWindow           time.Duration `mapstructure:"cancelWindow"`
	BuyerCancelPenaltyPct  float64       `mapstructure:"buyerCancelPenaltyPct"`
	SellerCancelPenaltyPct float64       `mapstructure:"sellerCancelPenaltyPct"`
}

type BlockParams struct {
	ClaimRetries int `mapstructure:"claimRetries"`
}

func DefaultTradingConfig() TradingConfig {
	return TradingConfig{
		Matching: MatchingWeights{
			Price:         0.4,
			Trust:         0.3,
			Time:          0.3,
			MinTrustScore: 0.3,
		},
		Trust: TrustParams{
			DefaultScore:   0.5,
			SuccessBonus:   0.05,
			FailurePenalty: 0.10,
			CancelPenalty:  0.10,
		},
		Orders: OrderParams{
			CancelWindow:           24 * time.Hour,
			BuyerCancelPenaltyPct:  0.10,
			SellerCancelPenaltyPct: 0.05,
		},
		Blocks: BlockParams{
			ClaimRetries: 3,
		},
	}
}

// TradingConfigHolder exposes the latest valid TradingConfig.
type TradingConfigHolder struct {
	current atomic.Value // holds TradingConfig
}

// NewTradingConfigHolder reads trading.yml when present, falls back to
// defaults, and watches the file for changes. Invalid reloads are ignored.
func NewTradingConfigHolder() (*TradingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("trading")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/voltra")
	v.AddConfigPath(".")

	v.SetEnvPrefix("VOLTRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &TradingConfigHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultTradingConfig())
		return holder, nil
	}

	cfg := DefaultTradingConfig()
	if err := v.UnmarshalKey("trading", &cfg); err != nil {
		return nil, err
	}
	cfg = normalizeTradingConfig(cfg)
	if err := validateTradingConfig(cfg); err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultTradingConfig()
		if err := v.UnmarshalKey("trading", &updated); err != nil {
			log.Printf("[trading-config] reload failed: %v", err)
			return
		}
		updated = normalizeTradingConfig(updated)
		if err := validateTradingConfig(updated); err != nil {
			log.Printf("[trading-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[trading-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *TradingConfigHolder) Get() TradingConfig {
	return h.current.Load().(TradingConfig)
}

// normalizeTradingConfig rescales matching weights so they sum to 1.0 when
// the operator supplies a slightly-off set.
func normalizeTradingConfig(cfg TradingConfig) TradingConfig {
	sum := cfg.Matching.Price + cfg.Matching.Trust + cfg.Matching.Time
	if sum > 0 && math.Abs(sum-1.0) > 1e-9 {
		cfg.Matching.Price /= sum
		cfg.Matching.Trust /= sum
		cfg.Matching.Time /= sum
	}
	return cfg
}

func validateTradingConfig(cfg TradingConfig) error {
	if cfg.Matching.Price < 0 || cfg.Matching.Trust < 0 || cfg.Matching.Time < 0 {
		return errors.New("trading.matching weights must be non-negative")
	}
	if cfg.Matching.Price+cfg.Matching.Trust+cfg.Matching.Time == 0 {
		return errors.New("trading.matching weights cannot all be zero")
	}
	if cfg.Trust.DefaultScore < 0 || cfg.Trust.DefaultScore > 1 {
		return errors.New("trading.trust.defaultScore must be within [0,1]")
	}
	if cfg.Trust.SuccessBonus < 0 || cfg.Trust.FailurePenalty < 0 || cfg.Trust.CancelPenalty < 0 {
		return errors.New("trading.trust deltas must be non-negative")
	}
	if cfg.Orders.BuyerCancelPenaltyPct < 0 || cfg.Orders.BuyerCancelPenaltyPct > 1 ||
		cfg.Orders.SellerCancelPenaltyPct < 0 || cfg.Orders.SellerCancelPenaltyPct > 1 {
		return errors.New("trading.orders penalty percentages must be within [0,1]")
	}
	if cfg.Blocks.ClaimRetries < 1 {
		return errors.New("trading.blocks.claimRetries must be at least 1")
	}
	return nil
}
