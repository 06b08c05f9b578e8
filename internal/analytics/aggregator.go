// Package analytics computes read-side reporting metrics from a creator's
// submissions and payouts. Everything here is a pure function over slices;
// handlers load the rows and callers render the numbers. Every ratio guards
// its denominator and reports 0 instead of dividing by zero.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clipbid/marketplace/internal/models"
)

// TimeRange optionally windows the aggregation. Zero bounds are open ends.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (tr TimeRange) Contains(t time.Time) bool {
	if !tr.From.IsZero() && t.Before(tr.From) {
		return false
	}
	if !tr.To.IsZero() && t.After(tr.To) {
		return false
	}
	return true
}

// TopSubmission is one row of the views leaderboard.
type TopSubmission struct {
	SubmissionID string          `json:"submission_id"`
	CampaignID   string          `json:"campaign_id"`
	Views        int64           `json:"views"`
	Earnings     decimal.Decimal `json:"earnings"`
}

// Summary is the aggregated reporting payload for one creator.
type Summary struct {
	CreatorID          string          `json:"creator_id"`
	CampaignsJoined    int             `json:"campaigns_joined"`
	ActiveCampaigns    int             `json:"active_campaigns"`
	CompletedCampaigns int             `json:"completed_campaigns"`
	TotalSubmissions   int             `json:"total_submissions"`
	ApprovedCount      int             `json:"approved_count"`
	RejectedCount      int             `json:"rejected_count"`
	PendingCount       int             `json:"pending_count"`
	ApprovalRate       float64         `json:"approval_rate"`
	TotalEarnings      decimal.Decimal `json:"total_earnings"`
	PendingEarnings    decimal.Decimal `json:"pending_earnings"`
	AvgApprovalSeconds float64         `json:"avg_approval_seconds"`
	TotalViews         int64           `json:"total_views"`
	AvgViews           float64         `json:"avg_views"`
	TopSubmissions     []TopSubmission `json:"top_submissions"`
}

// Summarize aggregates a creator's submissions and payouts within the window.
// topN bounds the views leaderboard; topN <= 0 means no leaderboard.
func Summarize(creatorID string, subs []models.Submission, payouts []models.Payout, window TimeRange, topN int) Summary {
	s := Summary{
		CreatorID:       creatorID,
		TotalEarnings:   decimal.Zero,
		PendingEarnings: decimal.Zero,
	}

	campaigns := make(map[string]bool)
	activeCampaigns := make(map[string]bool)
	completedCampaigns := make(map[string]bool)

	var approvalSeconds float64
	var approvedWithTimes int
	var approved []models.Submission

	for _, sub := range subs {
		if !window.Contains(sub.CreatedAt) {
			continue
		}
		s.TotalSubmissions++
		campaigns[sub.CampaignID] = true

		switch sub.Status {
		case models.SubmissionApproved:
			s.ApprovedCount++
			completedCampaigns[sub.CampaignID] = true
			s.TotalViews += sub.Views
			approved = append(approved, sub)
			if sub.VerifiedAt != nil {
				approvalSeconds += sub.VerifiedAt.Sub(sub.CreatedAt).Seconds()
				approvedWithTimes++
			}
		case models.SubmissionRejected:
			s.RejectedCount++
		default:
			s.PendingCount++
			activeCampaigns[sub.CampaignID] = true
		}
	}

	s.CampaignsJoined = len(campaigns)
	s.ActiveCampaigns = len(activeCampaigns)
	s.CompletedCampaigns = len(completedCampaigns)

	if s.TotalSubmissions > 0 {
		s.ApprovalRate = float64(s.ApprovedCount) / float64(s.TotalSubmissions) * 100
	}
	if approvedWithTimes > 0 {
		s.AvgApprovalSeconds = approvalSeconds / float64(approvedWithTimes)
	}
	if s.ApprovedCount > 0 {
		s.AvgViews = float64(s.TotalViews) / float64(s.ApprovedCount)
	}

	for _, p := range payouts {
		if !window.Contains(p.CreatedAt) {
			continue
		}
		switch p.Status {
		case models.PayoutCompleted:
			s.TotalEarnings = s.TotalEarnings.Add(p.Amount)
		case models.PayoutPending, models.PayoutProcessing:
			s.PendingEarnings = s.PendingEarnings.Add(p.Amount)
		}
	}

	s.TopSubmissions = topByViews(approved, topN)
	return s
}

// topByViews returns the n approved submissions with the most views, ties
// broken by earlier creation.
func topByViews(approved []models.Submission, n int) []TopSubmission {
	if n <= 0 || len(approved) == 0 {
		return nil
	}
	sorted := make([]models.Submission, len(approved))
	copy(sorted, approved)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Views != sorted[j].Views {
			return sorted[i].Views > sorted[j].Views
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	out := make([]TopSubmission, 0, n)
	for _, sub := range sorted[:n] {
		out = append(out, TopSubmission{
			SubmissionID: sub.ID,
			CampaignID:   sub.CampaignID,
			Views:        sub.Views,
			Earnings:     sub.Earnings,
		})
	}
	return out
}

// PercentOfBudget reports spent as a percentage of total. A zero or negative
// total yields 0, never a division error.
func PercentOfBudget(spent, total decimal.Decimal) float64 {
	if total.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	pct, _ := spent.Div(total).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}
