package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/clipbid/marketplace/internal/models"
)

// Postgres wraps a postgres DB connection and implements store.Store.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the marketplace tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS campaigns (
    id TEXT PRIMARY KEY,
    brand_id TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'draft',
    platforms TEXT[],
    objective TEXT,
    category TEXT,
    rate_model JSONB,
    total_budget NUMERIC(18,4) NOT NULL DEFAULT 0,
    budget_spent NUMERIC(18,4) NOT NULL DEFAULT 0,
    start_date TIMESTAMPTZ NULL,
    end_date TIMESTAMPTZ NULL,
    deliverables JSONB,
    required_elements JSONB,
    targeting JSONB,
    usage_rights TEXT,
    exclusivity JSONB,
    terms_accepted BOOLEAN NOT NULL DEFAULT FALSE,
    content_compliance BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT budget_within_bounds CHECK (budget_spent <= total_budget)
);

CREATE TABLE IF NOT EXISTS submissions (
    id TEXT PRIMARY KEY,
    campaign_id TEXT NOT NULL REFERENCES campaigns(id),
    creator_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    content_url TEXT,
    views BIGINT NOT NULL DEFAULT 0,
    earnings NUMERIC(18,4) NOT NULL DEFAULT 0,
    feedback TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    verified_at TIMESTAMPTZ NULL
);

CREATE TABLE IF NOT EXISTS payouts (
    id TEXT PRIMARY KEY,
    creator_id TEXT NOT NULL,
    submission_id TEXT NOT NULL UNIQUE REFERENCES submissions(id),
    amount NUMERIC(18,4) NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    retry_count INT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    processed_at TIMESTAMPTZ NULL
);

CREATE INDEX IF NOT EXISTS idx_campaigns_brand_id ON campaigns (brand_id);
CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns (status);
CREATE INDEX IF NOT EXISTS idx_submissions_campaign_id ON submissions (campaign_id);
CREATE INDEX IF NOT EXISTS idx_submissions_creator_id ON submissions (creator_id);
CREATE INDEX IF NOT EXISTS idx_payouts_creator_id ON payouts (creator_id);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

func (p *Postgres) ensureSchema() error {
	if _, err := p.DB.ExecContext(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ===== Campaigns =====

const campaignColumns = `id, brand_id, title, description, status, platforms, objective, category,
    rate_model, total_budget, budget_spent, start_date, end_date, deliverables,
    required_elements, targeting, usage_rights, exclusivity, terms_accepted,
    content_compliance, created_at, updated_at`

func (p *Postgres) CreateCampaign(ctx context.Context, c *models.Campaign) error {
	rm, err := models.MarshalRateModel(c.RateModel)
	if err != nil {
		return fmt.Errorf("encode rate model: %w", err)
	}
	deliverables, _ := json.Marshal(c.Deliverables)
	elements, _ := json.Marshal(c.RequiredElements)
	targeting, _ := json.Marshal(c.Targeting)
	var exclusivity any
	if c.Exclusivity != nil {
		exclusivity, _ = json.Marshal(c.Exclusivity)
	}
	_, err = p.DB.ExecContext(ctx, `INSERT INTO campaigns (
        id, brand_id, title, description, status, platforms, objective, category,
        rate_model, total_budget, budget_spent, start_date, end_date, deliverables,
        required_elements, targeting, usage_rights, exclusivity, terms_accepted,
        content_compliance, created_at, updated_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		c.ID, c.BrandID, c.Title, c.Description, c.Status, pq.Array(c.Platforms),
		c.Objective, c.Category, rm, c.TotalBudget, c.BudgetSpent,
		nullTime(c.StartDate), nullTime(c.EndDate), deliverables, elements,
		targeting, c.UsageRights, exclusivity, c.TermsAccepted,
		c.ContentCompliance, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

func (p *Postgres) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id=$1`, id)
	c, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query campaign: %w", err)
	}
	return c, nil
}

func (p *Postgres) UpdateCampaign(ctx context.Context, c *models.Campaign) error {
	rm, err := models.MarshalRateModel(c.RateModel)
	if err != nil {
		return fmt.Errorf("encode rate model: %w", err)
	}
	deliverables, _ := json.Marshal(c.Deliverables)
	elements, _ := json.Marshal(c.RequiredElements)
	targeting, _ := json.Marshal(c.Targeting)
	var exclusivity any
	if c.Exclusivity != nil {
		exclusivity, _ = json.Marshal(c.Exclusivity)
	}
	// budget_spent is deliberately absent: only the reservation path moves it.
	res, err := p.DB.ExecContext(ctx, `UPDATE campaigns SET
        title=$1, description=$2, platforms=$3, objective=$4, category=$5,
        rate_model=$6, total_budget=$7, start_date=$8, end_date=$9,
        deliverables=$10, required_elements=$11, targeting=$12, usage_rights=$13,
        exclusivity=$14, terms_accepted=$15, content_compliance=$16, updated_at=$17
        WHERE id=$18`,
		c.Title, c.Description, pq.Array(c.Platforms), c.Objective, c.Category,
		rm, c.TotalBudget, nullTime(c.StartDate), nullTime(c.EndDate),
		deliverables, elements, targeting, c.UsageRights, exclusivity,
		c.TermsAccepted, c.ContentCompliance, time.Now(), c.ID)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (p *Postgres) ListCampaigns(ctx context.Context, includeDeleted bool) ([]models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns`
	if !includeDeleted {
		query += ` WHERE status <> 'deleted'`
	}
	query += ` ORDER BY created_at`
	rows, err := p.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var cs []models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		cs = append(cs, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return cs, nil
}

func (p *Postgres) SetCampaignStatus(ctx context.Context, id, status string) error {
	res, err := p.DB.ExecContext(ctx, `UPDATE campaigns SET status=$1, updated_at=$2 WHERE id=$3`, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*models.Campaign, error) {
	var c models.Campaign
	var platforms []string
	var objective, category, usageRights sql.NullString
	var rm, deliverables, elements, targeting, exclusivity []byte
	var start, end sql.NullTime
	if err := row.Scan(&c.ID, &c.BrandID, &c.Title, &c.Description, &c.Status,
		pq.Array(&platforms), &objective, &category, &rm, &c.TotalBudget,
		&c.BudgetSpent, &start, &end, &deliverables, &elements, &targeting,
		&usageRights, &exclusivity, &c.TermsAccepted, &c.ContentCompliance,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Platforms = platforms
	if objective.Valid {
		c.Objective = objective.String
	}
	if category.Valid {
		c.Category = category.String
	}
	if usageRights.Valid {
		c.UsageRights = usageRights.String
	}
	if start.Valid {
		c.StartDate = start.Time
	}
	if end.Valid {
		c.EndDate = end.Time
	}
	if len(rm) > 0 {
		model, err := models.UnmarshalRateModel(rm)
		if err != nil {
			return nil, fmt.Errorf("parse rate model: %w", err)
		}
		c.RateModel = model
	}
	if len(deliverables) > 0 {
		if err := json.Unmarshal(deliverables, &c.Deliverables); err != nil {
			return nil, fmt.Errorf("parse deliverables: %w", err)
		}
	}
	if len(elements) > 0 {
		if err := json.Unmarshal(elements, &c.RequiredElements); err != nil {
			return nil, fmt.Errorf("parse required elements: %w", err)
		}
	}
	if len(targeting) > 0 {
		if err := json.Unmarshal(targeting, &c.Targeting); err != nil {
			return nil, fmt.Errorf("parse targeting: %w", err)
		}
	}
	if len(exclusivity) > 0 {
		var ex models.Exclusivity
		if err := json.Unmarshal(exclusivity, &ex); err != nil {
			return nil, fmt.Errorf("parse exclusivity: %w", err)
		}
		c.Exclusivity = &ex
	}
	return &c, nil
}

// ===== Submissions =====

const submissionColumns = `id, campaign_id, creator_id, status, content_url, views, earnings, feedback, created_at, verified_at`

func (p *Postgres) CreateSubmission(ctx context.Context, s *models.Submission) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO submissions (
        id, campaign_id, creator_id, status, content_url, views, earnings, feedback, created_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		s.ID, s.CampaignID, s.CreatorID, s.Status, s.ContentURL, s.Views,
		s.Earnings, s.Feedback, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (p *Postgres) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id=$1`, id)
	s, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query submission: %w", err)
	}
	return s, nil
}

func (p *Postgres) ListSubmissionsByCreator(ctx context.Context, creatorID string) ([]models.Submission, error) {
	return p.listSubmissions(ctx, `creator_id=$1`, creatorID)
}

func (p *Postgres) ListSubmissionsByCampaign(ctx context.Context, campaignID string) ([]models.Submission, error) {
	return p.listSubmissions(ctx, `campaign_id=$1`, campaignID)
}

func (p *Postgres) listSubmissions(ctx context.Context, where string, arg any) ([]models.Submission, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE `+where+` ORDER BY created_at`, arg)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var out []models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var s models.Submission
	var contentURL, feedback sql.NullString
	var verified sql.NullTime
	if err := row.Scan(&s.ID, &s.CampaignID, &s.CreatorID, &s.Status,
		&contentURL, &s.Views, &s.Earnings, &feedback, &s.CreatedAt, &verified); err != nil {
		return nil, err
	}
	if contentURL.Valid {
		s.ContentURL = contentURL.String
	}
	if feedback.Valid {
		s.Feedback = feedback.String
	}
	if verified.Valid {
		t := verified.Time
		s.VerifiedAt = &t
	}
	return &s, nil
}

func (p *Postgres) UpdateSubmissionViews(ctx context.Context, id string, views int64) error {
	res, err := p.DB.ExecContext(ctx, `UPDATE submissions SET views=$1 WHERE id=$2 AND status='pending'`, views, id)
	if err != nil {
		return fmt.Errorf("update submission views: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s, err := p.GetSubmission(ctx, id)
		if err != nil {
			return err
		}
		return &models.InvalidTransitionError{Entity: "submission", From: s.Status, To: s.Status}
	}
	return nil
}

// ApproveSubmission reserves the earnings against the campaign budget with a
// single conditional update, then marks the submission approved in the same
// transaction. The conditional update is the serialization point: Postgres
// row locking orders concurrent reservations on one campaign, and the
// `budget_spent + x <= total_budget` predicate refuses anything that no
// longer fits. A serialization failure is retried once before surfacing
// models.ErrConflict.
func (p *Postgres) ApproveSubmission(ctx context.Context, submissionID string, earnings decimal.Decimal, views int64, verifiedAt time.Time) (*models.Submission, bool, error) {
	sub, replayed, err := p.approveOnce(ctx, submissionID, earnings, views, verifiedAt)
	if isSerializationFailure(err) {
		zap.L().Warn("approval lost an update race, retrying once",
			zap.String("submission_id", submissionID), zap.Error(err))
		sub, replayed, err = p.approveOnce(ctx, submissionID, earnings, views, verifiedAt)
		if isSerializationFailure(err) {
			return nil, false, models.ErrConflict
		}
	}
	return sub, replayed, err
}

func (p *Postgres) approveOnce(ctx context.Context, submissionID string, earnings decimal.Decimal, views int64, verifiedAt time.Time) (*models.Submission, bool, error) {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin approval tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id=$1 FOR UPDATE`, submissionID)
	s, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, models.ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("lock submission: %w", err)
	}
	if s.Decided() {
		// A concurrent decision landed first; report it as a replay.
		return s, true, nil
	}

	res, err := tx.ExecContext(ctx, `UPDATE campaigns
        SET budget_spent = budget_spent + $1, updated_at = $2
        WHERE id = $3 AND budget_spent + $1 <= total_budget`,
		earnings, verifiedAt, s.CampaignID)
	if err != nil {
		return nil, false, fmt.Errorf("reserve budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var total, spent decimal.Decimal
		err := tx.QueryRowContext(ctx, `SELECT total_budget, budget_spent FROM campaigns WHERE id=$1`, s.CampaignID).Scan(&total, &spent)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, models.ErrNotFound
		}
		if err != nil {
			return nil, false, fmt.Errorf("read campaign budget: %w", err)
		}
		return nil, false, &models.BudgetExceededError{
			CampaignID: s.CampaignID,
			Attempted:  earnings,
			Remaining:  total.Sub(spent),
		}
	}

	if views > 0 {
		s.Views = views
	}
	if _, err := tx.ExecContext(ctx, `UPDATE submissions
        SET status=$1, earnings=$2, views=$3, verified_at=$4 WHERE id=$5`,
		models.SubmissionApproved, earnings, s.Views, verifiedAt, submissionID); err != nil {
		return nil, false, fmt.Errorf("mark submission approved: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit approval: %w", err)
	}

	s.Status = models.SubmissionApproved
	s.Earnings = earnings
	t := verifiedAt
	s.VerifiedAt = &t
	return s, false, nil
}

// isSerializationFailure reports whether the error is a Postgres
// serialization or deadlock failure worth one retry.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

func (p *Postgres) RejectSubmission(ctx context.Context, submissionID, feedback string, verifiedAt time.Time) (*models.Submission, error) {
	res, err := p.DB.ExecContext(ctx, `UPDATE submissions
        SET status=$1, feedback=$2, verified_at=$3 WHERE id=$4 AND status='pending'`,
		models.SubmissionRejected, feedback, verifiedAt, submissionID)
	if err != nil {
		return nil, fmt.Errorf("mark submission rejected: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Already decided or missing; either way return what's there.
		return p.GetSubmission(ctx, submissionID)
	}
	return p.GetSubmission(ctx, submissionID)
}

// ===== Payouts =====

const payoutColumns = `id, creator_id, submission_id, amount, status, retry_count, created_at, processed_at`

func (p *Postgres) CreatePayout(ctx context.Context, po *models.Payout) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO payouts (
        id, creator_id, submission_id, amount, status, retry_count, created_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		po.ID, po.CreatorID, po.SubmissionID, po.Amount, po.Status, po.RetryCount, po.CreatedAt)
	if isUniqueViolation(err) {
		// submission_id is unique: one payout per submission.
		return models.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (p *Postgres) GetPayout(ctx context.Context, id string) (*models.Payout, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id=$1`, id)
	po, err := scanPayout(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query payout: %w", err)
	}
	return po, nil
}

// UpdatePayout writes the payout conditioned on its current status, so a
// racing transition that already moved the row surfaces as ErrConflict
// instead of silently overwriting it.
func (p *Postgres) UpdatePayout(ctx context.Context, po *models.Payout, expectStatus string) error {
	var processed any
	if po.ProcessedAt != nil {
		processed = *po.ProcessedAt
	}
	res, err := p.DB.ExecContext(ctx, `UPDATE payouts
        SET status=$1, retry_count=$2, processed_at=$3 WHERE id=$4 AND status=$5`,
		po.Status, po.RetryCount, processed, po.ID, expectStatus)
	if err != nil {
		return fmt.Errorf("update payout: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := p.GetPayout(ctx, po.ID); err != nil {
			return err
		}
		return models.ErrConflict
	}
	return nil
}

func (p *Postgres) ListPayoutsByCreator(ctx context.Context, creatorID string) ([]models.Payout, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE creator_id=$1 ORDER BY created_at`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("query payouts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var out []models.Payout
	for rows.Next() {
		po, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		out = append(out, *po)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (p *Postgres) GetPayoutBySubmission(ctx context.Context, submissionID string) (*models.Payout, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE submission_id=$1`, submissionID)
	po, err := scanPayout(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query payout by submission: %w", err)
	}
	return po, nil
}

func scanPayout(row rowScanner) (*models.Payout, error) {
	var po models.Payout
	var processed sql.NullTime
	if err := row.Scan(&po.ID, &po.CreatorID, &po.SubmissionID, &po.Amount,
		&po.Status, &po.RetryCount, &po.CreatedAt, &processed); err != nil {
		return nil, err
	}
	if processed.Valid {
		t := processed.Time
		po.ProcessedAt = &t
	}
	return &po, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
