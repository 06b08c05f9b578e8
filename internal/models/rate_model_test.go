package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRateModelValidate(t *testing.T) {
	tests := []struct {
		name  string
		model RateModel
		ok    bool
	}{
		{"fixed fee valid", FixedFee{Amount: dec("1")}, true},
		{"fixed fee below minimum", FixedFee{Amount: dec("0.5")}, false},
		{"per thousand views valid", PerThousandViews{Rate: dec("0.01")}, true},
		{"per thousand views zero", PerThousandViews{Rate: decimal.Zero}, false},
		{"hybrid valid", Hybrid{BaseRate: dec("1"), PerformanceBonus: dec("0.5")}, true},
		{"hybrid base too low", Hybrid{BaseRate: dec("0.9"), PerformanceBonus: dec("5")}, false},
		{"hybrid bonus zero", Hybrid{BaseRate: dec("10"), PerformanceBonus: decimal.Zero}, false},
		{"commission valid low", Commission{Percentage: dec("1")}, true},
		{"commission valid high", Commission{Percentage: dec("100")}, true},
		{"commission below range", Commission{Percentage: dec("0.5")}, false},
		{"commission above range", Commission{Percentage: dec("101")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.model.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRateModelEnvelope(t *testing.T) {
	tests := []struct {
		model    RateModel
		wantType string
	}{
		{FixedFee{Amount: dec("30")}, "fixed_fee"},
		{PerThousandViews{Rate: dec("5")}, "per_thousand_views"},
		{Hybrid{BaseRate: dec("20"), PerformanceBonus: dec("10")}, "hybrid"},
		{Commission{Percentage: dec("15")}, "commission"},
	}
	for _, tt := range tests {
		t.Run(tt.wantType, func(t *testing.T) {
			data, err := MarshalRateModel(tt.model)
			require.NoError(t, err)

			var env map[string]any
			require.NoError(t, json.Unmarshal(data, &env))
			assert.Equal(t, tt.wantType, env["type"])

			got, err := UnmarshalRateModel(data)
			require.NoError(t, err)
			assert.Equal(t, tt.model, got)
		})
	}
}

func TestUnmarshalRateModelErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown type", `{"type":"revenue_share","percentage":"10"}`},
		{"fixed fee without amount", `{"type":"fixed_fee"}`},
		{"hybrid missing bonus", `{"type":"hybrid","base_rate":"20"}`},
		{"commission without percentage", `{"type":"commission"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalRateModel([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestUnmarshalRateModelNull(t *testing.T) {
	got, err := UnmarshalRateModel([]byte("null"))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = UnmarshalRateModel(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCampaignJSONRoundTrip(t *testing.T) {
	c := Campaign{
		ID:          "camp-1",
		BrandID:     "brand-1",
		Title:       "Launch",
		Status:      CampaignDraft,
		RateModel:   Hybrid{BaseRate: dec("20"), PerformanceBonus: dec("10")},
		TotalBudget: dec("100"),
	}

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"hybrid"`)

	var got Campaign
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, c.RateModel, got.RateModel)
	assert.True(t, got.TotalBudget.Equal(c.TotalBudget))
}

func TestCampaignJSONWithoutRateModel(t *testing.T) {
	c := Campaign{ID: "camp-2", Status: CampaignDraft}

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var got Campaign
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Nil(t, got.RateModel)
}
