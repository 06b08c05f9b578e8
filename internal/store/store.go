// Package store defines the persistence contract shared by the in-memory and
// Postgres backends. The one non-CRUD obligation is ApproveSubmission: the
// budget check and the spend increment must be indivisible per campaign, so
// that concurrent approvals against the same shrinking budget can never
// overspend, while approvals on unrelated campaigns proceed in parallel.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clipbid/marketplace/internal/models"
)

// Store is the persistence boundary for the marketplace core.
type Store interface {
	// Campaigns
	CreateCampaign(ctx context.Context, c *models.Campaign) error
	GetCampaign(ctx context.Context, id string) (*models.Campaign, error)
	UpdateCampaign(ctx context.Context, c *models.Campaign) error
	// ListCampaigns returns live campaigns; deleted ones are included only
	// when includeDeleted is set.
	ListCampaigns(ctx context.Context, includeDeleted bool) ([]models.Campaign, error)
	SetCampaignStatus(ctx context.Context, id, status string) error

	// Submissions
	CreateSubmission(ctx context.Context, s *models.Submission) error
	GetSubmission(ctx context.Context, id string) (*models.Submission, error)
	ListSubmissionsByCreator(ctx context.Context, creatorID string) ([]models.Submission, error)
	ListSubmissionsByCampaign(ctx context.Context, campaignID string) ([]models.Submission, error)
	// UpdateSubmissionViews syncs the view count of a still-pending
	// submission. Decided submissions are immutable.
	UpdateSubmissionViews(ctx context.Context, id string, views int64) error

	// ApproveSubmission atomically reserves earnings against the campaign
	// budget and marks the submission approved with those earnings. When the
	// submission was decided before this call, the stored record comes back
	// with replayed set and nothing moves; callers must treat that as a
	// replay, not a fresh approval. It returns *models.BudgetExceededError
	// when the reservation does not fit and models.ErrConflict when a
	// concurrent update raced it twice.
	ApproveSubmission(ctx context.Context, submissionID string, earnings decimal.Decimal, views int64, verifiedAt time.Time) (sub *models.Submission, replayed bool, err error)
	// RejectSubmission marks a pending submission rejected. No budget effect.
	RejectSubmission(ctx context.Context, submissionID, feedback string, verifiedAt time.Time) (*models.Submission, error)

	// Payouts
	CreatePayout(ctx context.Context, p *models.Payout) error
	GetPayout(ctx context.Context, id string) (*models.Payout, error)
	// UpdatePayout writes the payout only if its stored status still equals
	// expectStatus, returning models.ErrConflict otherwise, so racing
	// pipeline transitions cannot overwrite each other's terminal states.
	UpdatePayout(ctx context.Context, p *models.Payout, expectStatus string) error
	ListPayoutsByCreator(ctx context.Context, creatorID string) ([]models.Payout, error)
	GetPayoutBySubmission(ctx context.Context, submissionID string) (*models.Payout, error)
}
