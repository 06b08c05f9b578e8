package logic

import (
	"context"

	"go.uber.org/zap"

	"github.com/clipbid/marketplace/internal/models"
	"github.com/clipbid/marketplace/internal/store"
)

// campaignStatuses is the set of recognized campaign states.
var campaignStatuses = map[string]bool{
	models.CampaignDraft:         true,
	models.CampaignPendingBudget: true,
	models.CampaignActive:        true,
	models.CampaignPaused:        true,
	models.CampaignCompleted:     true,
	models.CampaignDeleted:       true,
}

// CanTransitionCampaign checks the structural rules of the campaign status
// machine. Deleted is terminal; everything else is brand-directed and allowed.
// The activation completeness gate is enforced separately in ChangeStatus
// because it needs the draft's field data.
func CanTransitionCampaign(from, to string) error {
	if !campaignStatuses[to] {
		return &models.InvalidTransitionError{Entity: "campaign", From: from, To: to}
	}
	if from == models.CampaignDeleted {
		return &models.InvalidTransitionError{Entity: "campaign", From: from, To: to}
	}
	return nil
}

// ChangeStatus applies a brand-directed status change, enforcing the deleted
// terminality rule and the activation gate: a campaign may only go active
// once the completion validator passes every section.
func ChangeStatus(ctx context.Context, st store.Store, principal models.Principal, campaignID, target string) (*models.Campaign, error) {
	c, err := st.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !principal.CanManageCampaign(c) {
		return nil, &models.UnauthorizedError{Subject: principal.UserID, Action: "change campaign status"}
	}
	if err := CanTransitionCampaign(c.Status, target); err != nil {
		return nil, err
	}
	if target == models.CampaignActive {
		report := EvaluateCompletion(c)
		if !report.FullyComplete() {
			return nil, &models.ValidationError{CampaignID: c.ID, Reasons: report.Reasons}
		}
	}
	if err := st.SetCampaignStatus(ctx, campaignID, target); err != nil {
		return nil, err
	}
	zap.L().Info("campaign status changed",
		zap.String("campaign_id", campaignID),
		zap.String("from", c.Status),
		zap.String("to", target))
	c.Status = target
	return c, nil
}
