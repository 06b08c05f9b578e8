package logic

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/clipbid/marketplace/internal/models"
)

// PerformanceFactorFunc maps a submission's view count to the fraction of a
// hybrid campaign's performance bonus that is earned. The factor is a policy
// input rather than a fixed formula, so deployments can swap it out.
type PerformanceFactorFunc func(views int64) decimal.Decimal

// fullPerformanceViews is the view count at which the default policy pays the
// full hybrid bonus.
const fullPerformanceViews = 10000

// DefaultPerformanceFactor grows linearly with views and caps at 1 once a
// submission reaches 10k views.
func DefaultPerformanceFactor(views int64) decimal.Decimal {
	if views <= 0 {
		return decimal.Zero
	}
	if views >= fullPerformanceViews {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(views).Div(decimal.NewFromInt(fullPerformanceViews))
}

var thousand = decimal.NewFromInt(1000)
var hundred = decimal.NewFromInt(100)

// ComputeEarnings derives a submission's earnings from the campaign's rate
// model. The formulas are deterministic and never clamped: a result that does
// not fit the remaining budget is refused at reservation time, not shrunk.
func ComputeEarnings(rm models.RateModel, views int64, attributedRevenue decimal.Decimal, perf PerformanceFactorFunc) (decimal.Decimal, error) {
	if rm == nil {
		return decimal.Zero, fmt.Errorf("campaign has no rate model")
	}
	if err := rm.Validate(); err != nil {
		return decimal.Zero, err
	}
	if views < 0 {
		return decimal.Zero, fmt.Errorf("views must be non-negative, got %d", views)
	}
	if perf == nil {
		perf = DefaultPerformanceFactor
	}

	switch m := rm.(type) {
	case models.FixedFee:
		return m.Amount, nil
	case models.PerThousandViews:
		return decimal.NewFromInt(views).Div(thousand).Mul(m.Rate), nil
	case models.Hybrid:
		return m.BaseRate.Add(m.PerformanceBonus.Mul(perf(views))), nil
	case models.Commission:
		if attributedRevenue.IsNegative() {
			return decimal.Zero, fmt.Errorf("attributed revenue must be non-negative, got %s", attributedRevenue)
		}
		return m.Percentage.Div(hundred).Mul(attributedRevenue), nil
	default:
		return decimal.Zero, fmt.Errorf("unknown rate model variant %T", rm)
	}
}
