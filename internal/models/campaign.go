package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Campaign statuses. A campaign starts life in draft and may only become
// active once every completion section passes (see internal/logic).
const (
	CampaignDraft         = "draft"
	CampaignPendingBudget = "pending_budget"
	CampaignActive        = "active"
	CampaignPaused        = "paused"
	CampaignCompleted     = "completed"
	CampaignDeleted       = "deleted"
)

// Gender targeting values. GenderAll means no gender preference and does not
// count toward audience-targeting completion.
const (
	GenderAll    = "all"
	GenderFemale = "female"
	GenderMale   = "male"
)

// AgeRange is an inclusive audience age band. Both bounds must be set for the
// range to count as fully specified.
type AgeRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Specified reports whether both bounds are present and ordered.
func (r *AgeRange) Specified() bool {
	return r != nil && r.Min > 0 && r.Max >= r.Min
}

// Deliverables holds the per-campaign content quantity requirements.
type Deliverables struct {
	Clips      int `json:"clips"`
	LongVideos int `json:"long_videos"`
	Images     int `json:"images"`
}

// RequiredElements are the brand-safety flags every piece of content must
// satisfy. All four must be explicitly enabled for the content requirements
// section to be complete.
type RequiredElements struct {
	LogoPlacement       bool `json:"logo_placement"`
	BrandMention        bool `json:"brand_mention"`
	CallToAction        bool `json:"call_to_action"`
	HashtagRequirements bool `json:"hashtag_requirements"`
}

// Targeting describes the desired creator audience. Any single populated
// criterion is enough to complete the audience section.
type Targeting struct {
	Geography []string  `json:"geography,omitempty"`
	Languages []string  `json:"languages,omitempty"`
	AgeRange  *AgeRange `json:"age_range,omitempty"`
	Gender    string    `json:"gender,omitempty"`
	Interests []string  `json:"interests,omitempty"`
}

// Exclusivity captures the competitive-exclusivity terms a brand attaches to
// a campaign. The core treats the terms as opaque; only presence matters for
// completion.
type Exclusivity struct {
	Exclusive    bool   `json:"exclusive"`
	CategoryOnly bool   `json:"category_only"`
	DurationDays int    `json:"duration_days,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// Campaign is a brand's fixed-budget offer to creators. BudgetSpent is only
// ever mutated through the store's atomic reservation; it never decreases
// while the campaign is live and never exceeds TotalBudget.
type Campaign struct {
	ID          string `json:"id"`
	BrandID     string `json:"brand_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`

	Platforms []string `json:"platforms,omitempty"`
	Objective string   `json:"objective,omitempty"`
	Category  string   `json:"category,omitempty"`

	RateModel   RateModel       `json:"rate_model,omitempty"`
	TotalBudget decimal.Decimal `json:"total_budget"`
	BudgetSpent decimal.Decimal `json:"budget_spent"`
	StartDate   time.Time       `json:"start_date"`
	EndDate     time.Time       `json:"end_date"`

	Deliverables     Deliverables     `json:"deliverables"`
	RequiredElements RequiredElements `json:"required_elements"`
	Targeting        Targeting        `json:"targeting"`

	UsageRights       string       `json:"usage_rights,omitempty"`
	Exclusivity       *Exclusivity `json:"exclusivity,omitempty"`
	TermsAccepted     bool         `json:"terms_accepted"`
	ContentCompliance bool         `json:"content_compliance"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// campaignAlias breaks the MarshalJSON recursion so the rate model can be
// swapped for its tagged envelope on the wire.
type campaignAlias Campaign

type campaignJSON struct {
	campaignAlias
	RateModel json.RawMessage `json:"rate_model,omitempty"`
}

// MarshalJSON encodes the campaign with the rate model in its tagged
// envelope form.
func (c Campaign) MarshalJSON() ([]byte, error) {
	rm, err := MarshalRateModel(c.RateModel)
	if err != nil {
		return nil, err
	}
	out := campaignJSON{campaignAlias: campaignAlias(c)}
	out.campaignAlias.RateModel = nil
	if c.RateModel != nil {
		out.RateModel = rm
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the campaign, resolving the rate model envelope back
// into its concrete variant.
func (c *Campaign) UnmarshalJSON(data []byte) error {
	var in campaignJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*c = Campaign(in.campaignAlias)
	if len(in.RateModel) > 0 {
		rm, err := UnmarshalRateModel(in.RateModel)
		if err != nil {
			return err
		}
		c.RateModel = rm
	}
	return nil
}

// RemainingBudget returns how much of the campaign budget is still
// unreserved.
func (c *Campaign) RemainingBudget() decimal.Decimal {
	return c.TotalBudget.Sub(c.BudgetSpent)
}

// Live reports whether the campaign should appear in standard listings.
// Deleted campaigns are soft archives kept for payout references and audit.
func (c *Campaign) Live() bool {
	return c.Status != CampaignDeleted
}
