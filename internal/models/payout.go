package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payout statuses. The pipeline only moves forward: pending, processing,
// then completed or failed. A failed payout may be manually reset to pending
// for another attempt.
const (
	PayoutPending    = "pending"
	PayoutProcessing = "processing"
	PayoutCompleted  = "completed"
	PayoutFailed     = "failed"
)

// Payout tracks the money transfer for exactly one approved submission.
// Amount is fixed at creation from the submission's earnings and is never
// recomputed, whatever the disbursement outcome.
type Payout struct {
	ID           string          `json:"id"`
	CreatorID    string          `json:"creator_id"`
	SubmissionID string          `json:"submission_id"`
	Amount       decimal.Decimal `json:"amount"`
	Status       string          `json:"status"`
	RetryCount   int             `json:"retry_count"`
	CreatedAt    time.Time       `json:"created_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
}

// Terminal reports whether the payout reached completed or failed.
func (p *Payout) Terminal() bool {
	return p.Status == PayoutCompleted || p.Status == PayoutFailed
}
