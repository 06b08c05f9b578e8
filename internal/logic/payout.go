package logic

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clipbid/marketplace/internal/db"
	"github.com/clipbid/marketplace/internal/events"
	"github.com/clipbid/marketplace/internal/models"
	"github.com/clipbid/marketplace/internal/observability"
	"github.com/clipbid/marketplace/internal/store"
)

// DefaultMaxPayoutRetries bounds how many times a failed payout may be
// re-queued before it needs operator escalation.
const DefaultMaxPayoutRetries = 3

// payoutNext encodes the forward-only payout state machine. A payout's amount
// is fixed at approval time; the pipeline only ever moves status.
var payoutNext = map[string][]string{
	models.PayoutPending:    {models.PayoutProcessing},
	models.PayoutProcessing: {models.PayoutCompleted, models.PayoutFailed},
}

// CanTransitionPayout checks whether a payout may move from one status to
// another. Retry is not a transition here; see Pipeline.Retry.
func CanTransitionPayout(from, to string) error {
	for _, allowed := range payoutNext[from] {
		if allowed == to {
			return nil
		}
	}
	return &models.InvalidTransitionError{Entity: "payout", From: from, To: to}
}

// Pipeline moves payouts through pending, processing and their terminal
// states, and re-queues failed payouts on operator request.
type Pipeline struct {
	Store      store.Store
	Events     events.Recorder
	Redis      *db.RedisStore
	Metrics    observability.MetricsRegistry
	Logger     *zap.Logger
	MaxRetries int
}

// NewPipeline wires a payout pipeline with the default retry bound.
func NewPipeline(st store.Store, rec events.Recorder, rs *db.RedisStore, metrics observability.MetricsRegistry, logger *zap.Logger) *Pipeline {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Pipeline{
		Store:      st,
		Events:     rec,
		Redis:      rs,
		Metrics:    metrics,
		Logger:     logger,
		MaxRetries: DefaultMaxPayoutRetries,
	}
}

// Advance moves a payout to the requested status. Only admins drive the
// pipeline; completed and failed payouts are stamped with a processed time.
func (p *Pipeline) Advance(ctx context.Context, principal models.Principal, payoutID, target string) (*models.Payout, error) {
	if !principal.Admin {
		return nil, &models.UnauthorizedError{Subject: principal.UserID, Action: "advance payout"}
	}
	payout, err := p.Store.GetPayout(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if err := CanTransitionPayout(payout.Status, target); err != nil {
		return nil, err
	}

	prior := payout.Status
	payout.Status = target
	if payout.Terminal() {
		now := time.Now()
		payout.ProcessedAt = &now
	}
	// Conditioned on the status we read; a racing transition surfaces as
	// ErrConflict instead of overwriting it.
	if err := p.Store.UpdatePayout(ctx, payout, prior); err != nil {
		return nil, err
	}

	p.Metrics.IncrementPayout(target)
	p.record(ctx, payout, eventTypeFor(target))
	p.publish(ctx, payout, target)
	p.Logger.Info("payout advanced",
		zap.String("payout_id", payout.ID),
		zap.String("status", target))
	return payout, nil
}

// Retry re-queues a failed payout as pending without recomputing its amount.
// Each payout may be retried at most MaxRetries times.
func (p *Pipeline) Retry(ctx context.Context, principal models.Principal, payoutID string) (*models.Payout, error) {
	if !principal.Admin {
		return nil, &models.UnauthorizedError{Subject: principal.UserID, Action: "retry payout"}
	}
	payout, err := p.Store.GetPayout(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status != models.PayoutFailed {
		return nil, &models.InvalidTransitionError{Entity: "payout", From: payout.Status, To: models.PayoutPending}
	}
	max := p.MaxRetries
	if max <= 0 {
		max = DefaultMaxPayoutRetries
	}
	if payout.RetryCount >= max {
		return nil, fmt.Errorf("payout %s exhausted its %d retries", payout.ID, max)
	}

	payout.Status = models.PayoutPending
	payout.RetryCount++
	payout.ProcessedAt = nil
	if err := p.Store.UpdatePayout(ctx, payout, models.PayoutFailed); err != nil {
		return nil, err
	}

	p.Metrics.IncrementPayout(models.PayoutPending)
	p.record(ctx, payout, events.TypePayoutRetried)
	p.publish(ctx, payout, "retried")
	p.Logger.Info("payout retried",
		zap.String("payout_id", payout.ID),
		zap.Int("retry_count", payout.RetryCount))
	return payout, nil
}

func eventTypeFor(status string) string {
	switch status {
	case models.PayoutProcessing:
		return events.TypePayoutProcessing
	case models.PayoutCompleted:
		return events.TypePayoutCompleted
	case models.PayoutFailed:
		return events.TypePayoutFailed
	default:
		return events.TypePayoutCreated
	}
}

func (p *Pipeline) record(ctx context.Context, payout *models.Payout, eventType string) {
	if p.Events == nil {
		return
	}
	rec := events.Record{
		Timestamp: time.Now(),
		EventType: eventType,
		CreatorID: payout.CreatorID,
		PayoutID:  payout.ID,
		Amount:    payout.Amount,
	}
	if sub, err := p.Store.GetSubmission(ctx, payout.SubmissionID); err == nil {
		rec.SubmissionID = sub.ID
		rec.CampaignID = sub.CampaignID
	}
	if err := p.Events.Record(ctx, rec); err != nil {
		p.Metrics.IncrementEventSinkErrors()
		p.Logger.Error("event sink write failed", zap.Error(err), zap.String("event_type", eventType))
	}
}

func (p *Pipeline) publish(ctx context.Context, payout *models.Payout, action string) {
	if p.Redis == nil {
		return
	}
	if err := p.Redis.PublishPayoutEvent(ctx, payout, action); err != nil {
		p.Logger.Error("publish payout event", zap.Error(err), zap.String("payout_id", payout.ID))
	}
}
