package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clipbid/marketplace/internal/models"
)

// MemoryStore is the in-memory Store used for tests and single-node dev
// deployments. Entity maps are guarded by a single RWMutex; budget
// reservations additionally take a per-campaign lock so approvals on
// unrelated campaigns never serialize against each other.
type MemoryStore struct {
	mu          sync.RWMutex
	campaigns   map[string]*models.Campaign
	submissions map[string]*models.Submission
	payouts     map[string]*models.Payout

	reserveMu sync.Mutex
	reserves  map[string]*sync.Mutex // campaign ID -> reservation lock
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns:   make(map[string]*models.Campaign),
		submissions: make(map[string]*models.Submission),
		payouts:     make(map[string]*models.Payout),
		reserves:    make(map[string]*sync.Mutex),
	}
}

// reserveLock returns the reservation mutex for a campaign, creating it on
// first use.
func (m *MemoryStore) reserveLock(campaignID string) *sync.Mutex {
	m.reserveMu.Lock()
	defer m.reserveMu.Unlock()
	l, ok := m.reserves[campaignID]
	if !ok {
		l = &sync.Mutex{}
		m.reserves[campaignID] = l
	}
	return l
}

func (m *MemoryStore) CreateCampaign(ctx context.Context, c *models.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *MemoryStore) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) UpdateCampaign(ctx context.Context, c *models.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.campaigns[c.ID]
	if !ok {
		return models.ErrNotFound
	}
	cp := *c
	// BudgetSpent is owned by the reservation path; draft edits never touch it.
	cp.BudgetSpent = cur.BudgetSpent
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *MemoryStore) ListCampaigns(ctx context.Context, includeDeleted bool) ([]models.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Campaign, 0, len(m.campaigns))
	for _, c := range m.campaigns {
		if !includeDeleted && !c.Live() {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) SetCampaignStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return models.ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) CreateSubmission(ctx context.Context, s *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.campaigns[s.CampaignID]; !ok {
		return models.ErrNotFound
	}
	cp := *s
	m.submissions[s.ID] = &cp
	return nil
}

func (m *MemoryStore) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.submissions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) ListSubmissionsByCreator(ctx context.Context, creatorID string) ([]models.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Submission
	for _, s := range m.submissions {
		if s.CreatorID == creatorID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListSubmissionsByCampaign(ctx context.Context, campaignID string) ([]models.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Submission
	for _, s := range m.submissions {
		if s.CampaignID == campaignID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateSubmissionViews(ctx context.Context, id string, views int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return models.ErrNotFound
	}
	if s.Decided() {
		return &models.InvalidTransitionError{Entity: "submission", From: s.Status, To: s.Status}
	}
	s.Views = views
	return nil
}

// ApproveSubmission performs the reserve-or-refuse step. The campaign's
// reservation lock makes the check-and-increment indivisible for that
// campaign only.
func (m *MemoryStore) ApproveSubmission(ctx context.Context, submissionID string, earnings decimal.Decimal, views int64, verifiedAt time.Time) (*models.Submission, bool, error) {
	m.mu.RLock()
	s, ok := m.submissions[submissionID]
	m.mu.RUnlock()
	if !ok {
		return nil, false, models.ErrNotFound
	}

	lock := m.reserveLock(s.CampaignID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok = m.submissions[submissionID]
	if !ok {
		return nil, false, models.ErrNotFound
	}
	if s.Decided() {
		cp := *s
		return &cp, true, nil
	}
	c, ok := m.campaigns[s.CampaignID]
	if !ok {
		return nil, false, models.ErrNotFound
	}

	spent := c.BudgetSpent.Add(earnings)
	if spent.GreaterThan(c.TotalBudget) {
		return nil, false, &models.BudgetExceededError{
			CampaignID: c.ID,
			Attempted:  earnings,
			Remaining:  c.RemainingBudget(),
		}
	}

	c.BudgetSpent = spent
	c.UpdatedAt = verifiedAt
	s.Status = models.SubmissionApproved
	s.Earnings = earnings
	if views > 0 {
		s.Views = views
	}
	t := verifiedAt
	s.VerifiedAt = &t

	cp := *s
	return &cp, false, nil
}

func (m *MemoryStore) RejectSubmission(ctx context.Context, submissionID, feedback string, verifiedAt time.Time) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[submissionID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if s.Decided() {
		cp := *s
		return &cp, nil
	}
	s.Status = models.SubmissionRejected
	s.Feedback = feedback
	t := verifiedAt
	s.VerifiedAt = &t
	cp := *s
	return &cp, nil
}

// CreatePayout inserts a payout. Each submission may have at most one,
// mirroring the unique constraint in the Postgres schema.
func (m *MemoryStore) CreatePayout(ctx context.Context, p *models.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.payouts {
		if existing.SubmissionID == p.SubmissionID {
			return models.ErrConflict
		}
	}
	cp := *p
	m.payouts[p.ID] = &cp
	return nil
}

func (m *MemoryStore) GetPayout(ctx context.Context, id string) (*models.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payouts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) UpdatePayout(ctx context.Context, p *models.Payout, expectStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.payouts[p.ID]
	if !ok {
		return models.ErrNotFound
	}
	if cur.Status != expectStatus {
		return models.ErrConflict
	}
	cp := *p
	m.payouts[p.ID] = &cp
	return nil
}

func (m *MemoryStore) ListPayoutsByCreator(ctx context.Context, creatorID string) ([]models.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Payout
	for _, p := range m.payouts {
		if p.CreatorID == creatorID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetPayoutBySubmission(ctx context.Context, submissionID string) (*models.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payouts {
		if p.SubmissionID == submissionID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}
