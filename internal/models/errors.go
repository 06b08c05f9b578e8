package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when an entity does not exist in the store.
var ErrNotFound = errors.New("entity not found")

// ErrConflict is returned when an atomic update lost a race with a concurrent
// writer. Unlike a budget refusal, a retry may still succeed; the store layer
// retries once internally before surfacing this.
var ErrConflict = errors.New("conflicting concurrent update")

// BudgetExceededError is returned when an approval's earnings do not fit in
// the campaign's remaining budget. The submission stays pending; the caller
// decides whether to reject or resubmit with adjusted terms.
type BudgetExceededError struct {
	CampaignID string
	Attempted  decimal.Decimal
	Remaining  decimal.Decimal
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("campaign %s budget exceeded: attempted %s with %s remaining",
		e.CampaignID, e.Attempted, e.Remaining)
}

// InvalidTransitionError is returned when a status change violates a state
// machine rule.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s", e.Entity, e.From, e.To)
}

// ValidationError is returned when a campaign fails its activation gate. It
// carries the per-section reasons so callers can surface actionable detail.
type ValidationError struct {
	CampaignID string
	Reasons    []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("campaign %s incomplete: %d missing requirements", e.CampaignID, len(e.Reasons))
}

// UnauthorizedError is returned on a role or ownership mismatch.
type UnauthorizedError struct {
	Subject string
	Action  string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("%s is not allowed to %s", e.Subject, e.Action)
}
