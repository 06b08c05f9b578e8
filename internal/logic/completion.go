// Package logic contains the decision making at the heart of the
// marketplace: the campaign completion validator that gates activation, the
// campaign status machine, the submission approval engine with its atomic
// budget reservation, and the payout pipeline.
package logic

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/clipbid/marketplace/internal/models"
)

// Completion section names, in display order.
const (
	SectionOverview     = "overview"
	SectionBudget       = "budget_timeline"
	SectionContent      = "content_requirements"
	SectionAudience     = "audience_targeting"
	SectionAgreements   = "agreements_compliance"
	minDescriptionChars = 10
)

var sectionOrder = []string{
	SectionOverview,
	SectionBudget,
	SectionContent,
	SectionAudience,
	SectionAgreements,
}

// minTotalBudget is the smallest budget a campaign may launch with.
var minTotalBudget = decimal.NewFromInt(10)

// CompletionReport is the validator output: one verdict per section plus the
// human-readable reasons for anything still missing.
type CompletionReport struct {
	Sections  map[string]bool `json:"sections"`
	Completed int             `json:"completed"`
	Total     int             `json:"total"`
	Reasons   []string        `json:"reasons,omitempty"`
}

// FullyComplete reports whether every section passed. This is the only gate
// checked before a campaign may go active.
func (r CompletionReport) FullyComplete() bool {
	return r.Completed == r.Total
}

// EvaluateCompletion runs all five section predicates over a campaign draft.
// It is a pure function: no I/O, no mutation.
func EvaluateCompletion(c *models.Campaign) CompletionReport {
	report := CompletionReport{
		Sections: make(map[string]bool, len(sectionOrder)),
		Total:    len(sectionOrder),
	}

	checks := map[string]func(*models.Campaign) []string{
		SectionOverview:   checkOverview,
		SectionBudget:     checkBudgetTimeline,
		SectionContent:    checkContentRequirements,
		SectionAudience:   checkAudienceTargeting,
		SectionAgreements: checkAgreements,
	}

	for _, name := range sectionOrder {
		missing := checks[name](c)
		done := len(missing) == 0
		report.Sections[name] = done
		if done {
			report.Completed++
			continue
		}
		for _, reason := range missing {
			report.Reasons = append(report.Reasons, fmt.Sprintf("%s: %s", name, reason))
		}
	}
	return report
}

func checkOverview(c *models.Campaign) []string {
	var missing []string
	if strings.TrimSpace(c.Title) == "" {
		missing = append(missing, "title is required")
	}
	if len(strings.TrimSpace(c.Description)) < minDescriptionChars {
		missing = append(missing, fmt.Sprintf("description must be at least %d characters", minDescriptionChars))
	}
	if len(c.Platforms) == 0 {
		missing = append(missing, "select at least one platform")
	}
	if c.Objective == "" {
		missing = append(missing, "objective is required")
	}
	if c.Category == "" {
		missing = append(missing, "category is required")
	}
	return missing
}

func checkBudgetTimeline(c *models.Campaign) []string {
	var missing []string
	if c.RateModel == nil {
		missing = append(missing, "rate model is required")
	} else if err := c.RateModel.Validate(); err != nil {
		missing = append(missing, err.Error())
	}
	if c.TotalBudget.LessThan(minTotalBudget) {
		missing = append(missing, fmt.Sprintf("total budget must be at least %s", minTotalBudget))
	}
	switch {
	case c.StartDate.IsZero() || c.EndDate.IsZero():
		missing = append(missing, "start and end dates are required")
	case !c.StartDate.Before(c.EndDate):
		missing = append(missing, "start date must be before end date")
	}
	return missing
}

// checkContentRequirements applies the all-required rule: every deliverable
// quantity and every required-element flag must be set. Six out of seven is
// still incomplete.
func checkContentRequirements(c *models.Campaign) []string {
	var missing []string
	if c.Deliverables.Clips <= 0 {
		missing = append(missing, "clip count must be greater than zero")
	}
	if c.Deliverables.LongVideos <= 0 {
		missing = append(missing, "long video count must be greater than zero")
	}
	if c.Deliverables.Images <= 0 {
		missing = append(missing, "image count must be greater than zero")
	}
	re := c.RequiredElements
	if !re.LogoPlacement {
		missing = append(missing, "logo placement must be confirmed")
	}
	if !re.BrandMention {
		missing = append(missing, "brand mention must be confirmed")
	}
	if !re.CallToAction {
		missing = append(missing, "call to action must be confirmed")
	}
	if !re.HashtagRequirements {
		missing = append(missing, "hashtag requirements must be confirmed")
	}
	return missing
}

// checkAudienceTargeting applies the any-one-suffices rule: a single
// populated criterion completes the section.
func checkAudienceTargeting(c *models.Campaign) []string {
	t := c.Targeting
	switch {
	case len(t.Geography) > 0,
		len(t.Languages) > 0,
		t.AgeRange.Specified(),
		t.Gender != "" && t.Gender != models.GenderAll,
		len(t.Interests) > 0:
		return nil
	}
	return []string{"set at least one targeting criterion (geography, language, age range, gender, or interests)"}
}

func checkAgreements(c *models.Campaign) []string {
	var missing []string
	if c.UsageRights == "" {
		missing = append(missing, "usage rights are required")
	}
	if c.Exclusivity == nil {
		missing = append(missing, "exclusivity terms are required")
	}
	if !c.TermsAccepted {
		missing = append(missing, "terms must be accepted")
	}
	if !c.ContentCompliance {
		missing = append(missing, "content compliance must be confirmed")
	}
	return missing
}
