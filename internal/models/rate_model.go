package models

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Rate model type discriminators used in the JSON envelope.
const (
	RateTypeFixedFee         = "fixed_fee"
	RateTypePerThousandViews = "per_thousand_views"
	RateTypeHybrid           = "hybrid"
	RateTypeCommission       = "commission"
)

// RateModel is the formula variant used to compute submission earnings at
// approval time. It is a closed sum type: exactly one of the concrete
// variants below, so invalid field combinations are unrepresentable.
type RateModel interface {
	// Type returns the JSON discriminator for the variant.
	Type() string
	// Validate checks the variant's scalar constraints.
	Validate() error

	rateModel()
}

// FixedFee pays a flat amount per approved submission regardless of views.
type FixedFee struct {
	Amount decimal.Decimal `json:"amount"`
}

func (FixedFee) rateModel() {}
func (FixedFee) Type() string { return RateTypeFixedFee }
func (m FixedFee) Validate() error {
	if m.Amount.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("fixed fee amount must be at least 1, got %s", m.Amount)
	}
	return nil
}

// PerThousandViews pays a rate per 1000 views recorded at decision time.
type PerThousandViews struct {
	Rate decimal.Decimal `json:"rate"`
}

func (PerThousandViews) rateModel() {}
func (PerThousandViews) Type() string { return RateTypePerThousandViews }
func (m PerThousandViews) Validate() error {
	if !m.Rate.IsPositive() {
		return fmt.Errorf("per-thousand-views rate must be positive, got %s", m.Rate)
	}
	return nil
}

// Hybrid pays a guaranteed base plus a performance bonus scaled by a
// pluggable performance factor (see logic.PerformanceFactorFunc).
type Hybrid struct {
	BaseRate         decimal.Decimal `json:"base_rate"`
	PerformanceBonus decimal.Decimal `json:"performance_bonus"`
}

func (Hybrid) rateModel() {}
func (Hybrid) Type() string { return RateTypeHybrid }
func (m Hybrid) Validate() error {
	if m.BaseRate.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("hybrid base rate must be at least 1, got %s", m.BaseRate)
	}
	if !m.PerformanceBonus.IsPositive() {
		return fmt.Errorf("hybrid performance bonus must be positive, got %s", m.PerformanceBonus)
	}
	return nil
}

// Commission pays a percentage of the campaign-attributed revenue supplied by
// the caller at decision time.
type Commission struct {
	Percentage decimal.Decimal `json:"percentage"`
}

func (Commission) rateModel() {}
func (Commission) Type() string { return RateTypeCommission }
func (m Commission) Validate() error {
	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)
	if m.Percentage.LessThan(one) || m.Percentage.GreaterThan(hundred) {
		return fmt.Errorf("commission percentage must be in [1,100], got %s", m.Percentage)
	}
	return nil
}

// rateEnvelope is the wire form of a RateModel: a type tag plus the variant's
// own fields flattened alongside it.
type rateEnvelope struct {
	Type             string           `json:"type"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	Rate             *decimal.Decimal `json:"rate,omitempty"`
	BaseRate         *decimal.Decimal `json:"base_rate,omitempty"`
	PerformanceBonus *decimal.Decimal `json:"performance_bonus,omitempty"`
	Percentage       *decimal.Decimal `json:"percentage,omitempty"`
}

// MarshalRateModel encodes a RateModel into its tagged JSON envelope.
func MarshalRateModel(m RateModel) ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	env := rateEnvelope{Type: m.Type()}
	switch v := m.(type) {
	case FixedFee:
		env.Amount = &v.Amount
	case PerThousandViews:
		env.Rate = &v.Rate
	case Hybrid:
		env.BaseRate = &v.BaseRate
		env.PerformanceBonus = &v.PerformanceBonus
	case Commission:
		env.Percentage = &v.Percentage
	default:
		return nil, fmt.Errorf("unknown rate model variant %T", m)
	}
	return json.Marshal(env)
}

// UnmarshalRateModel decodes the tagged JSON envelope back into the matching
// variant. A JSON null yields a nil model.
func UnmarshalRateModel(data []byte) (RateModel, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var env rateEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse rate model: %w", err)
	}
	switch env.Type {
	case RateTypeFixedFee:
		if env.Amount == nil {
			return nil, fmt.Errorf("fixed fee rate model requires amount")
		}
		return FixedFee{Amount: *env.Amount}, nil
	case RateTypePerThousandViews:
		if env.Rate == nil {
			return nil, fmt.Errorf("per-thousand-views rate model requires rate")
		}
		return PerThousandViews{Rate: *env.Rate}, nil
	case RateTypeHybrid:
		if env.BaseRate == nil || env.PerformanceBonus == nil {
			return nil, fmt.Errorf("hybrid rate model requires base_rate and performance_bonus")
		}
		return Hybrid{BaseRate: *env.BaseRate, PerformanceBonus: *env.PerformanceBonus}, nil
	case RateTypeCommission:
		if env.Percentage == nil {
			return nil, fmt.Errorf("commission rate model requires percentage")
		}
		return Commission{Percentage: *env.Percentage}, nil
	default:
		return nil, fmt.Errorf("unknown rate model type %q", env.Type)
	}
}
