package logic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clipbid/marketplace/internal/db"
	"github.com/clipbid/marketplace/internal/events"
	"github.com/clipbid/marketplace/internal/models"
	"github.com/clipbid/marketplace/internal/observability"
	"github.com/clipbid/marketplace/internal/store"
)

// Decision values accepted by the approval engine.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// Decision outcomes recorded in metrics.
const (
	OutcomeApproved       = "approved"
	OutcomeRejected       = "rejected"
	OutcomeBudgetExceeded = "budget_exceeded"
	OutcomeConflict       = "conflict"
	OutcomeIdempotent     = "idempotent"
)

// Engine decides submissions. Approval computes earnings from the campaign's
// rate model, reserves them against the budget, and opens a payout; rejection
// records reviewer feedback. Either way the submission becomes immutable.
type Engine struct {
	Store      store.Store
	Events     events.Recorder
	Redis      *db.RedisStore
	Metrics    observability.MetricsRegistry
	Logger     *zap.Logger
	PerfFactor PerformanceFactorFunc
}

// NewEngine wires an approval engine. Redis and Events may be nil; the engine
// then skips the decision cache and event sink.
func NewEngine(st store.Store, rec events.Recorder, rs *db.RedisStore, metrics observability.MetricsRegistry, logger *zap.Logger) *Engine {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Engine{
		Store:      st,
		Events:     rec,
		Redis:      rs,
		Metrics:    metrics,
		Logger:     logger,
		PerfFactor: DefaultPerformanceFactor,
	}
}

// DecideRequest carries one decision over a pending submission.
type DecideRequest struct {
	SubmissionID string `json:"submission_id"`
	Decision     string `json:"decision"`
	// Views, when positive, refreshes the submission's view count as part of
	// the approval so view-based earnings use current numbers.
	Views int64 `json:"views,omitempty"`
	// Feedback is stored on rejection.
	Feedback string `json:"feedback,omitempty"`
	// AttributedRevenue must be supplied when the campaign pays commission.
	AttributedRevenue *decimal.Decimal `json:"attributed_revenue,omitempty"`
}

// DecideResult reports what the decision did.
type DecideResult struct {
	Submission *models.Submission `json:"submission"`
	Payout     *models.Payout     `json:"payout,omitempty"`
	// AlreadyDecided is set when the submission was decided before this call
	// and the stored outcome is being replayed.
	AlreadyDecided bool `json:"already_decided,omitempty"`
}

// Decide applies one approve or reject decision. Decisions are idempotent: a
// second decision on the same submission returns the stored outcome without
// touching budget or payouts, regardless of what the second decision asked
// for.
func (e *Engine) Decide(ctx context.Context, principal models.Principal, req DecideRequest) (*DecideResult, error) {
	if req.Decision != DecisionApprove && req.Decision != DecisionReject {
		return nil, fmt.Errorf("unknown decision %q", req.Decision)
	}

	if cached, ok := e.cachedDecision(req.SubmissionID); ok {
		if err := e.authorize(ctx, principal, cached.CampaignID); err != nil {
			return nil, err
		}
		e.Metrics.IncrementDecision(OutcomeIdempotent)
		return e.replay(ctx, cached)
	}

	sub, err := e.Store.GetSubmission(ctx, req.SubmissionID)
	if err != nil {
		return nil, err
	}
	campaign, err := e.Store.GetCampaign(ctx, sub.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign for submission %s: %w", sub.ID, err)
	}
	if !principal.CanManageCampaign(campaign) {
		return nil, &models.UnauthorizedError{Subject: principal.UserID, Action: "decide submission"}
	}
	if sub.Decided() {
		e.Metrics.IncrementDecision(OutcomeIdempotent)
		return e.replay(ctx, sub)
	}

	if req.Decision == DecisionReject {
		return e.reject(ctx, sub, req.Feedback)
	}
	return e.approve(ctx, campaign, sub, req)
}

// authorize gates idempotent replays the same way as fresh decisions. A
// replay discloses earnings and payout state, so campaign ownership is
// checked before anything is returned.
func (e *Engine) authorize(ctx context.Context, principal models.Principal, campaignID string) error {
	campaign, err := e.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("load campaign %s: %w", campaignID, err)
	}
	if !principal.CanManageCampaign(campaign) {
		return &models.UnauthorizedError{Subject: principal.UserID, Action: "decide submission"}
	}
	return nil
}

func (e *Engine) reject(ctx context.Context, sub *models.Submission, feedback string) (*DecideResult, error) {
	now := time.Now()
	updated, err := e.Store.RejectSubmission(ctx, sub.ID, feedback, now)
	if err != nil {
		return nil, err
	}
	e.Metrics.IncrementDecision(OutcomeRejected)
	e.record(ctx, events.Record{
		Timestamp:    now,
		EventType:    events.TypeSubmissionRejected,
		CampaignID:   updated.CampaignID,
		SubmissionID: updated.ID,
		CreatorID:    updated.CreatorID,
		Views:        updated.Views,
	})
	e.cacheDecision(updated)
	e.Logger.Info("submission rejected",
		zap.String("submission_id", updated.ID),
		zap.String("campaign_id", updated.CampaignID))
	return &DecideResult{Submission: updated}, nil
}

func (e *Engine) approve(ctx context.Context, campaign *models.Campaign, sub *models.Submission, req DecideRequest) (*DecideResult, error) {
	views := sub.Views
	if req.Views > 0 {
		views = req.Views
	}

	var revenue decimal.Decimal
	if _, ok := campaign.RateModel.(models.Commission); ok {
		if req.AttributedRevenue == nil {
			return nil, fmt.Errorf("campaign %s pays commission: attributed_revenue is required", campaign.ID)
		}
		revenue = *req.AttributedRevenue
	}

	earnings, err := ComputeEarnings(campaign.RateModel, views, revenue, e.PerfFactor)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updated, replayed, err := e.Store.ApproveSubmission(ctx, sub.ID, earnings, views, now)
	if err != nil {
		var budgetErr *models.BudgetExceededError
		if errors.As(err, &budgetErr) {
			e.Metrics.IncrementDecision(OutcomeBudgetExceeded)
			e.Logger.Warn("approval refused, earnings exceed remaining budget",
				zap.String("submission_id", sub.ID),
				zap.String("campaign_id", campaign.ID),
				zap.String("attempted", budgetErr.Attempted.String()),
				zap.String("remaining", budgetErr.Remaining.String()))
			return nil, err
		}
		if errors.Is(err, models.ErrConflict) {
			e.Metrics.IncrementDecision(OutcomeConflict)
			e.Metrics.IncrementReservationConflicts()
		}
		return nil, err
	}
	if replayed {
		// A concurrent decision won the race. Replay its outcome instead of
		// opening a second payout.
		e.Metrics.IncrementDecision(OutcomeIdempotent)
		return e.replay(ctx, updated)
	}

	payout := &models.Payout{
		ID:           uuid.NewString(),
		CreatorID:    updated.CreatorID,
		SubmissionID: updated.ID,
		Amount:       updated.Earnings,
		Status:       models.PayoutPending,
		CreatedAt:    now,
	}
	if err := e.Store.CreatePayout(ctx, payout); err != nil {
		if errors.Is(err, models.ErrConflict) {
			// The one-payout-per-submission backstop fired; serve the
			// payout that already exists.
			e.Metrics.IncrementDecision(OutcomeIdempotent)
			return e.replay(ctx, updated)
		}
		return nil, fmt.Errorf("open payout for submission %s: %w", updated.ID, err)
	}

	e.Metrics.IncrementDecision(OutcomeApproved)
	e.Metrics.IncrementPayout(models.PayoutPending)
	if spent, ok := campaign.BudgetSpent.Add(earnings).Float64(); ok {
		e.Metrics.SetBudgetSpent(campaign.ID, spent)
	}

	e.record(ctx, events.Record{
		Timestamp:    now,
		EventType:    events.TypeSubmissionApproved,
		CampaignID:   updated.CampaignID,
		SubmissionID: updated.ID,
		CreatorID:    updated.CreatorID,
		Amount:       updated.Earnings,
		Views:        updated.Views,
	})
	e.record(ctx, events.Record{
		Timestamp:    now,
		EventType:    events.TypePayoutCreated,
		CampaignID:   updated.CampaignID,
		SubmissionID: updated.ID,
		CreatorID:    updated.CreatorID,
		PayoutID:     payout.ID,
		Amount:       payout.Amount,
	})
	if e.Redis != nil {
		if err := e.Redis.PublishPayoutEvent(ctx, payout, "created"); err != nil {
			e.Logger.Error("publish payout event", zap.Error(err), zap.String("payout_id", payout.ID))
		}
	}
	e.cacheDecision(updated)

	e.Logger.Info("submission approved",
		zap.String("submission_id", updated.ID),
		zap.String("campaign_id", updated.CampaignID),
		zap.String("earnings", updated.Earnings.String()),
		zap.Int64("views", updated.Views),
		zap.String("payout_id", payout.ID))
	return &DecideResult{Submission: updated, Payout: payout}, nil
}

// replay returns the stored outcome of an already decided submission,
// including its payout when one was opened.
func (e *Engine) replay(ctx context.Context, sub *models.Submission) (*DecideResult, error) {
	res := &DecideResult{Submission: sub, AlreadyDecided: true}
	if sub.Status == models.SubmissionApproved {
		payout, err := e.Store.GetPayoutBySubmission(ctx, sub.ID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		res.Payout = payout
	}
	return res, nil
}

func (e *Engine) record(ctx context.Context, rec events.Record) {
	if e.Events == nil {
		return
	}
	if err := e.Events.Record(ctx, rec); err != nil {
		e.Metrics.IncrementEventSinkErrors()
		e.Logger.Error("event sink write failed", zap.Error(err), zap.String("event_type", rec.EventType))
	}
}

func (e *Engine) cachedDecision(submissionID string) (*models.Submission, bool) {
	if e.Redis == nil {
		return nil, false
	}
	return e.Redis.CachedDecision(submissionID)
}

func (e *Engine) cacheDecision(sub *models.Submission) {
	if e.Redis == nil {
		return
	}
	if err := e.Redis.CacheDecision(sub); err != nil {
		e.Logger.Error("cache decision", zap.Error(err), zap.String("submission_id", sub.ID))
	}
}
