package logic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipbid/marketplace/internal/events"
	"github.com/clipbid/marketplace/internal/models"
	"github.com/clipbid/marketplace/internal/observability"
	"github.com/clipbid/marketplace/internal/store"
)

var brandPrincipal = models.Principal{UserID: "brand-1", Role: models.RoleBrand}

func newTestEngine(t *testing.T) (*Engine, *store.MemoryStore, *events.MockRecorder, *observability.MockMetricsRegistry) {
	t.Helper()
	st := store.NewMemoryStore()
	rec := events.NewMockRecorder()
	metrics := observability.NewMockMetricsRegistry()
	return NewEngine(st, rec, nil, metrics, nil), st, rec, metrics
}

func seedActiveCampaign(t *testing.T, st *store.MemoryStore, rm models.RateModel, budget string) *models.Campaign {
	t.Helper()
	c := completeCampaign()
	c.RateModel = rm
	c.TotalBudget = dec(budget)
	c.Status = models.CampaignActive
	require.NoError(t, st.CreateCampaign(context.Background(), c))
	return c
}

func seedPending(t *testing.T, st *store.MemoryStore, campaignID, subID string, views int64) *models.Submission {
	t.Helper()
	sub := &models.Submission{
		ID:         subID,
		CampaignID: campaignID,
		CreatorID:  "creator-" + subID,
		Status:     models.SubmissionPending,
		Views:      views,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, st.CreateSubmission(context.Background(), sub))
	return sub
}

// Four $30 fixed-fee approvals against a $100 budget: the first three fit,
// the fourth is refused and its submission stays pending.
func TestDecideSequentialBudgetExhaustion(t *testing.T) {
	ctx := context.Background()
	engine, st, rec, _ := newTestEngine(t)
	c := seedActiveCampaign(t, st, models.FixedFee{Amount: dec("30")}, "100")

	for _, id := range []string{"a", "b", "c"} {
		seedPending(t, st, c.ID, id, 0)
		res, err := engine.Decide(ctx, brandPrincipal, DecideRequest{SubmissionID: id, Decision: DecisionApprove})
		require.NoError(t, err)
		assert.Equal(t, models.SubmissionApproved, res.Submission.Status)
		assert.True(t, res.Submission.Earnings.Equal(dec("30")))
		require.NotNil(t, res.Payout)
		assert.True(t, res.Payout.Amount.Equal(dec("30")))
	}

	seedPending(t, st, c.ID, "d", 0)
	_, err := engine.Decide(ctx, brandPrincipal, DecideRequest{SubmissionID: "d", Decision: DecisionApprove})
	var budgetErr *models.BudgetExceededError
	require.ErrorAs(t, err, &budgetErr)
	assert.True(t, budgetErr.Attempted.Equal(dec("30")))
	assert.True(t, budgetErr.Remaining.Equal(dec("10")))

	// the refused submission stays pending, no payout was opened
	sub, err := st.GetSubmission(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionPending, sub.Status)
	_, err = st.GetPayoutBySubmission(ctx, "d")
	assert.ErrorIs(t, err, models.ErrNotFound)

	// budget never overshot
	got, err := st.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.BudgetSpent.Equal(dec("90")))

	assert.Len(t, rec.ByType(events.TypeSubmissionApproved), 3)
	assert.Len(t, rec.ByType(events.TypePayoutCreated), 3)
}

// Two concurrent $60 approvals against a $100 budget: exactly one wins.
func TestDecideConcurrentApprovalsNoOverspend(t *testing.T) {
	ctx := context.Background()
	engine, st, _, metrics := newTestEngine(t)
	c := seedActiveCampaign(t, st, models.FixedFee{Amount: dec("60")}, "100")
	seedPending(t, st, c.ID, "x", 0)
	seedPending(t, st, c.ID, "y", 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"x", "y"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = engine.Decide(ctx, brandPrincipal, DecideRequest{SubmissionID: id, Decision: DecisionApprove})
		}(i, id)
	}
	wg.Wait()

	var refused int
	for _, err := range errs {
		if err != nil {
			var budgetErr *models.BudgetExceededError
			require.ErrorAs(t, err, &budgetErr)
			refused++
		}
	}
	assert.Equal(t, 1, refused)

	got, err := st.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.BudgetSpent.Equal(dec("60")))
	assert.True(t, got.BudgetSpent.LessThanOrEqual(got.TotalBudget))
	assert.Equal(t, 1, metrics.DecisionCount(OutcomeApproved))
	assert.Equal(t, 1, metrics.DecisionCount(OutcomeBudgetExceeded))
}

// Many concurrent approvals whose sum exceeds the budget: the winners' spend
// matches the final budget exactly and never exceeds the total.
func TestDecideManyConcurrentApprovals(t *testing.T) {
	ctx := context.Background()
	engine, st, _, _ := newTestEngine(t)
	c := seedActiveCampaign(t, st, models.FixedFee{Amount: dec("30")}, "100")

	const n = 10
	ids := make([]string, n)
	for i := range ids {
		ids[i] = string(rune('a' + i))
		seedPending(t, st, c.ID, ids[i], 0)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	approved := 0
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := engine.Decide(ctx, brandPrincipal, DecideRequest{SubmissionID: id, Decision: DecisionApprove}); err == nil {
				mu.Lock()
				approved++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	// exactly three $30 approvals fit in $100
	assert.Equal(t, 3, approved)
	got, err := st.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.BudgetSpent.Equal(dec("90")))
}

func TestDecideIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, st, rec, metrics := newTestEngine(t)
	c := seedActiveCampaign(t, st, models.FixedFee{Amount: dec("30")}, "100")
	seedPending(t, st, c.ID, "s", 0)

	first, err := engine.Decide(ctx, brandPrincipal, DecideRequest{SubmissionID: "s", Decision: DecisionApprove})
	require.NoError(t, err)
	require.NotNil(t, first.Payout)

	// same decision again
	second, err := engine.Decide(ctx, brandPrincipal, DecideRequest{SubmissionID: "s", Decision: DecisionApprove})
	require.NoError(t, err)
	assert.True(t, second.AlreadyDecided)
	assert.Equal(t, first.Submission.Status, second.Submission.Status)
	assert.True(t, second.Submission.Earnings.Equal(first.Submission.Earnings))
	require.NotNil(t, second.Payout)
	assert.Equal(t, first.Payout.ID, second.Payout.ID)

	// a contradictory decision replays the stored outcome too
	third, err := engine.Decide(ctx, brandPrincipal, DecideRequest{SubmissionID: "s", Decision: DecisionReject, Feedback: "changed my mind"})
	require.NoError(t, err)
	assert.True(t, third.AlreadyDecided)
	assert.Equal(t, models.SubmissionApproved, third.Submission.Status)
	assert.Empty(t, third.Submission.Feedback)

	// no extra budget movement or events
	got, err := st.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.BudgetSpent.Equal(dec("30")))
	assert.Len(t, rec.ByType(events.TypeSubmissionApproved), 1)
	assert.Equal(t, 2, metrics.DecisionCount(OutcomeIdempotent))
}

func TestDecideReject(t *testing.T) {
	ctx := context.Background()
	engine, st, rec, _ := newTestEngine(t)
	c := seedActiveCampaign(t, st, models.FixedFee{Amount: dec("30")}, "100")
	seedPending(t, st, c.ID, "s", 1200)

	res, err := engine.Decide(ctx, brandPrincipal, DecideRequest{SubmissionID: "s", Decision: DecisionReject, Feedback: "off brief"})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionRejected, res.Submission.Status)
	assert.Equal(t, "off brief", res.Submission.Feedback)
	assert.NotNil(t, res.Submission.VerifiedAt)
	assert.Nil(t, res.Payout)

	// rejection never touches the budget
	got, err := st.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.BudgetSpent.IsZero())
	assert.Len(t, rec.ByType(events.TypeSubmissionRejected), 1)
}

func TestDecideViewBasedEarnings(t *testing.T) {
	ctx := context.Background()
	engine, st, _, _ := newTestEngine(t)
	c := seedActiveCampaign(t, st, models.PerThousandViews{Rate: dec("5")}, "100")
	seedPending(t, st, c.ID, "s", 3000)

	// views supplied at decision time override the stored count
	res, err := engine.Decide(ctx, brandPrincipal, DecideRequest{SubmissionID: "s", Decision: DecisionApprove, Views: 12000})
	require.NoError(t, err)
	assert.True(t, res.Submission.Earnings.Equal(dec("60")), "got %s", res.Submission.Earnings)
	assert.EqualValues(t, 12000, res.Submission.Views)
}

func TestDecideCommissionRequiresRevenue(t *testing.T) {
	ctx := context.Background()
	engine, st, _, _ := newTestEngine(t)
	c := seedActiveCampaign(t, st, models.Commission{Percentage: dec("15")}, "100")
	seedPending(t, st, c.ID, "s", 0)

	_, err := engine.Decide(ctx, brandPrincipal, DecideRequest{SubmissionID: "s", Decision: DecisionApprove})
	require.Error(t, err)

	revenue := dec("200")
	res, err := engine.Decide(ctx, brandPrincipal, DecideRequest{
		SubmissionID:      "s",
		Decision:          DecisionApprove,
		AttributedRevenue: &revenue,
	})
	require.NoError(t, err)
	assert.True(t, res.Submission.Earnings.Equal(dec("30")))
}

func TestDecideAuthorization(t *testing.T) {
	ctx := context.Background()
	engine, st, _, _ := newTestEngine(t)
	c := seedActiveCampaign(t, st, models.FixedFee{Amount: dec("30")}, "100")
	seedPending(t, st, c.ID, "s", 0)

	otherBrand := models.Principal{UserID: "brand-2", Role: models.RoleBrand}
	_, err := engine.Decide(ctx, otherBrand, DecideRequest{SubmissionID: "s", Decision: DecisionApprove})
	var unauthErr *models.UnauthorizedError
	require.ErrorAs(t, err, &unauthErr)

	creator := models.Principal{UserID: "creator-s", Role: models.RoleCreator}
	_, err = engine.Decide(ctx, creator, DecideRequest{SubmissionID: "s", Decision: DecisionReject})
	require.ErrorAs(t, err, &unauthErr)

	sub, err := st.GetSubmission(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionPending, sub.Status)
}

func TestDecideUnknownInputs(t *testing.T) {
	ctx := context.Background()
	engine, _, _, _ := newTestEngine(t)

	_, err := engine.Decide(ctx, brandPrincipal, DecideRequest{SubmissionID: "nope", Decision: "maybe"})
	assert.Error(t, err)

	_, err = engine.Decide(ctx, brandPrincipal, DecideRequest{SubmissionID: "nope", Decision: DecisionApprove})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// Two approvals racing on the same submission must not open two payouts.
// The loser works from a stale pending snapshot; the store reports the
// replay and the engine serves the winner's outcome.
func TestDecideSameSubmissionRaceSinglePayout(t *testing.T) {
	ctx := context.Background()
	engine, st, rec, _ := newTestEngine(t)
	c := seedActiveCampaign(t, st, models.FixedFee{Amount: dec("30")}, "100")
	stale := seedPending(t, st, c.ID, "s", 0)

	first, err := engine.Decide(ctx, brandPrincipal, DecideRequest{SubmissionID: "s", Decision: DecisionApprove})
	require.NoError(t, err)
	require.NotNil(t, first.Payout)

	// the stale snapshot still says pending, as it would mid-race
	require.Equal(t, models.SubmissionPending, stale.Status)
	second, err := engine.approve(ctx, c, stale, DecideRequest{SubmissionID: "s", Decision: DecisionApprove})
	require.NoError(t, err)
	assert.True(t, second.AlreadyDecided)
	require.NotNil(t, second.Payout)
	assert.Equal(t, first.Payout.ID, second.Payout.ID)

	// exactly one payout exists and the budget moved once
	payouts, err := st.ListPayoutsByCreator(ctx, "creator-s")
	require.NoError(t, err)
	assert.Len(t, payouts, 1)
	got, err := st.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.BudgetSpent.Equal(dec("30")))
	assert.Len(t, rec.ByType(events.TypePayoutCreated), 1)
}

// Replays of decided submissions disclose earnings and payout state, so they
// are gated by the same ownership check as fresh decisions.
func TestDecideReplayRequiresOwnership(t *testing.T) {
	ctx := context.Background()
	engine, st, _, _ := newTestEngine(t)
	c := seedActiveCampaign(t, st, models.FixedFee{Amount: dec("30")}, "100")
	seedPending(t, st, c.ID, "s", 0)

	_, err := engine.Decide(ctx, brandPrincipal, DecideRequest{SubmissionID: "s", Decision: DecisionApprove})
	require.NoError(t, err)

	var unauthErr *models.UnauthorizedError
	otherBrand := models.Principal{UserID: "brand-2", Role: models.RoleBrand}
	_, err = engine.Decide(ctx, otherBrand, DecideRequest{SubmissionID: "s", Decision: DecisionApprove})
	require.ErrorAs(t, err, &unauthErr)

	creator := models.Principal{UserID: "creator-s", Role: models.RoleCreator}
	_, err = engine.Decide(ctx, creator, DecideRequest{SubmissionID: "s", Decision: DecisionApprove})
	require.ErrorAs(t, err, &unauthErr)

	// the owner still gets the replay
	res, err := engine.Decide(ctx, brandPrincipal, DecideRequest{SubmissionID: "s", Decision: DecisionApprove})
	require.NoError(t, err)
	assert.True(t, res.AlreadyDecided)
}

// A refused approval can still be explicitly rejected afterwards.
func TestBudgetExceededThenReject(t *testing.T) {
	ctx := context.Background()
	engine, st, _, _ := newTestEngine(t)
	c := seedActiveCampaign(t, st, models.FixedFee{Amount: dec("60")}, "100")
	seedPending(t, st, c.ID, "first", 0)
	seedPending(t, st, c.ID, "second", 0)

	_, err := engine.Decide(ctx, brandPrincipal, DecideRequest{SubmissionID: "first", Decision: DecisionApprove})
	require.NoError(t, err)

	_, err = engine.Decide(ctx, brandPrincipal, DecideRequest{SubmissionID: "second", Decision: DecisionApprove})
	var budgetErr *models.BudgetExceededError
	require.ErrorAs(t, err, &budgetErr)

	res, err := engine.Decide(ctx, brandPrincipal, DecideRequest{SubmissionID: "second", Decision: DecisionReject, Feedback: "budget exhausted"})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionRejected, res.Submission.Status)
}
