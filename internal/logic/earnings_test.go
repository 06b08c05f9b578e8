package logic

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipbid/marketplace/internal/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestComputeEarningsFixedFee(t *testing.T) {
	rm := models.FixedFee{Amount: dec("30")}

	// views are irrelevant to a fixed fee
	for _, views := range []int64{0, 500, 1000000} {
		got, err := ComputeEarnings(rm, views, decimal.Zero, nil)
		require.NoError(t, err)
		assert.True(t, got.Equal(dec("30")), "views=%d got %s", views, got)
	}
}

func TestComputeEarningsPerThousandViews(t *testing.T) {
	rm := models.PerThousandViews{Rate: dec("5")}

	tests := []struct {
		views int64
		want  string
	}{
		{12000, "60"},
		{1000, "5"},
		{500, "2.5"},
		{0, "0"},
	}
	for _, tt := range tests {
		got, err := ComputeEarnings(rm, tt.views, decimal.Zero, nil)
		require.NoError(t, err)
		assert.True(t, got.Equal(dec(tt.want)), "views=%d want %s got %s", tt.views, tt.want, got)
	}
}

func TestComputeEarningsHybrid(t *testing.T) {
	rm := models.Hybrid{BaseRate: dec("20"), PerformanceBonus: dec("10")}

	tests := []struct {
		views int64
		want  string
	}{
		{0, "20"},      // factor 0
		{5000, "25"},   // factor 0.5
		{10000, "30"},  // factor capped at 1
		{250000, "30"}, // still capped
	}
	for _, tt := range tests {
		got, err := ComputeEarnings(rm, tt.views, decimal.Zero, nil)
		require.NoError(t, err)
		assert.True(t, got.Equal(dec(tt.want)), "views=%d want %s got %s", tt.views, tt.want, got)
	}
}

func TestComputeEarningsHybridCustomFactor(t *testing.T) {
	rm := models.Hybrid{BaseRate: dec("20"), PerformanceBonus: dec("10")}
	always := func(views int64) decimal.Decimal { return decimal.NewFromInt(1) }

	got, err := ComputeEarnings(rm, 1, decimal.Zero, always)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("30")))
}

func TestComputeEarningsCommission(t *testing.T) {
	rm := models.Commission{Percentage: dec("15")}

	got, err := ComputeEarnings(rm, 0, dec("200"), nil)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("30")))

	_, err = ComputeEarnings(rm, 0, dec("-1"), nil)
	assert.Error(t, err)
}

func TestComputeEarningsRejectsNegativeViews(t *testing.T) {
	_, err := ComputeEarnings(models.FixedFee{Amount: dec("30")}, -1, decimal.Zero, nil)
	assert.Error(t, err)
}

func TestComputeEarningsRejectsInvalidModel(t *testing.T) {
	_, err := ComputeEarnings(nil, 0, decimal.Zero, nil)
	assert.Error(t, err)

	_, err = ComputeEarnings(models.Commission{Percentage: dec("150")}, 0, dec("10"), nil)
	assert.Error(t, err)
}

func TestDefaultPerformanceFactor(t *testing.T) {
	assert.True(t, DefaultPerformanceFactor(-5).IsZero())
	assert.True(t, DefaultPerformanceFactor(0).IsZero())
	assert.True(t, DefaultPerformanceFactor(2500).Equal(dec("0.25")))
	assert.True(t, DefaultPerformanceFactor(10000).Equal(dec("1")))
	assert.True(t, DefaultPerformanceFactor(99999).Equal(dec("1")))
}
