// Package events ships marketplace decision and payout events to ClickHouse
// for dashboard reporting. Recording is best effort: a sink failure is logged
// and counted but never blocks the decision that produced the event.
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Event types written to the events table.
const (
	TypeSubmissionApproved = "submission_approved"
	TypeSubmissionRejected = "submission_rejected"
	TypePayoutCreated      = "payout_created"
	TypePayoutProcessing   = "payout_processing"
	TypePayoutCompleted    = "payout_completed"
	TypePayoutFailed       = "payout_failed"
	TypePayoutRetried      = "payout_retried"
)

// Record is one row in the marketplace events table.
type Record struct {
	Timestamp    time.Time       `json:"timestamp"`
	EventType    string          `json:"event_type"`
	CampaignID   string          `json:"campaign_id"`
	SubmissionID string          `json:"submission_id"`
	CreatorID    string          `json:"creator_id"`
	PayoutID     string          `json:"payout_id"`
	Amount       decimal.Decimal `json:"amount"`
	Views        int64           `json:"views"`
}

// Recorder is the event sink consumed by the approval engine and payout
// pipeline.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}
