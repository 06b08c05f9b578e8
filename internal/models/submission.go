package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Submission statuses. Approved and rejected are terminal: once a decision
// lands the record never transitions again.
const (
	SubmissionPending  = "pending"
	SubmissionApproved = "approved"
	SubmissionRejected = "rejected"
)

// Submission is a creator's claim of content against an active campaign.
// Earnings is written exactly once, at approval, and is immutable afterwards.
type Submission struct {
	ID         string          `json:"id"`
	CampaignID string          `json:"campaign_id"`
	CreatorID  string          `json:"creator_id"`
	Status     string          `json:"status"`
	ContentURL string          `json:"content_url,omitempty"`
	Views      int64           `json:"views"`
	Earnings   decimal.Decimal `json:"earnings"`
	Feedback   string          `json:"feedback,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	VerifiedAt *time.Time      `json:"verified_at,omitempty"`
}

// Decided reports whether the submission has reached a terminal status.
func (s *Submission) Decided() bool {
	return s.Status == SubmissionApproved || s.Status == SubmissionRejected
}
