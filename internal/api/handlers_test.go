package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clipbid/marketplace/internal/auth"
	"github.com/clipbid/marketplace/internal/config"
	"github.com/clipbid/marketplace/internal/db"
	"github.com/clipbid/marketplace/internal/events"
	"github.com/clipbid/marketplace/internal/models"
	"github.com/clipbid/marketplace/internal/observability"
	"github.com/clipbid/marketplace/internal/store"
)

const testSecret = "test-secret"

type testEnv struct {
	server *Server
	router http.Handler
	store  *store.MemoryStore
	events *events.MockRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rs, err := db.InitRedis(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(rs.Close)

	st := store.NewMemoryStore()
	rec := events.NewMockRecorder()
	cfg := config.Config{
		TokenSecret:      testSecret,
		TokenTTL:         time.Minute,
		PayoutMaxRetries: 3,
	}
	srv := NewServer(zap.NewNop(), st, rs, rec, observability.NewMockMetricsRegistry(), cfg)
	return &testEnv{server: srv, router: srv.Routes(), store: st, events: rec}
}

func token(t *testing.T, p models.Principal) string {
	t.Helper()
	tok, err := auth.Generate(p, []byte(testSecret))
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

var (
	brandP   = models.Principal{UserID: "brand-1", Role: models.RoleBrand}
	creatorP = models.Principal{UserID: "creator-1", Role: models.RoleCreator}
	adminP   = models.Principal{UserID: "ops-1", Role: models.RoleAdmin, Admin: true}
)

func completeCampaignBody() map[string]any {
	start := time.Now().Add(24 * time.Hour)
	return map[string]any{
		"title":       "Summer Launch",
		"description": "Short-form clips promoting the summer line",
		"platforms":   []string{"tiktok"},
		"objective":   "awareness",
		"category":    "consumer-tech",
		"rate_model":  map[string]any{"type": "fixed_fee", "amount": "30"},
		"total_budget": "100",
		"start_date":  start.Format(time.RFC3339),
		"end_date":    start.Add(30 * 24 * time.Hour).Format(time.RFC3339),
		"deliverables": map[string]int{
			"clips": 3, "long_videos": 1, "images": 2,
		},
		"required_elements": map[string]bool{
			"logo_placement": true, "brand_mention": true,
			"call_to_action": true, "hashtag_requirements": true,
		},
		"targeting":          map[string]any{"geography": []string{"US"}},
		"usage_rights":       "organic-plus-paid",
		"exclusivity":        map[string]any{"exclusive": true, "duration_days": 30},
		"terms_accepted":     true,
		"content_compliance": true,
	}
}

func (e *testEnv) createActiveCampaign(t *testing.T) models.Campaign {
	t.Helper()
	brandTok := token(t, brandP)

	w := e.do(t, http.MethodPost, "/campaigns", brandTok, completeCampaignBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var c models.Campaign
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))

	w = e.do(t, http.MethodPost, "/campaigns/"+c.ID+"/status", brandTok, map[string]string{"status": "active"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	require.Equal(t, models.CampaignActive, c.Status)
	return c
}

func (e *testEnv) createPendingSubmission(t *testing.T, campaignID string, views int64) models.Submission {
	t.Helper()
	w := e.do(t, http.MethodPost, "/campaigns/"+campaignID+"/submissions", token(t, creatorP), map[string]any{
		"content_url": "https://example.com/clip",
		"views":       views,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sub models.Submission
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
	return sub
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/campaigns", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodGet, "/campaigns", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// health stays open
	w = e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCampaignLifecycle(t *testing.T) {
	e := newTestEnv(t)
	brandTok := token(t, brandP)

	// an incomplete draft fails activation with per-section reasons
	body := completeCampaignBody()
	delete(body, "targeting")
	w := e.do(t, http.MethodPost, "/campaigns", brandTok, body)
	require.Equal(t, http.StatusCreated, w.Code)
	var c models.Campaign
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))

	w = e.do(t, http.MethodPost, "/campaigns/"+c.ID+"/status", brandTok, map[string]string{"status": "active"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var refusal struct {
		Reasons []string `json:"reasons"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &refusal))
	assert.NotEmpty(t, refusal.Reasons)

	// the validation endpoint reports the incomplete section
	w = e.do(t, http.MethodGet, "/campaigns/"+c.ID+"/validation", brandTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report struct {
		Sections  map[string]bool `json:"sections"`
		Completed int             `json:"completed"`
		Total     int             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 4, report.Completed)
	assert.False(t, report.Sections["audience_targeting"])

	// fixing the draft unlocks activation
	fixed := completeCampaignBody()
	w = e.do(t, http.MethodPut, "/campaigns/"+c.ID, brandTok, fixed)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodPost, "/campaigns/"+c.ID+"/status", brandTok, map[string]string{"status": "active"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestCampaignCreateRequiresBrand(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/campaigns", token(t, creatorP), completeCampaignBody())
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSubmissionRequiresActiveCampaign(t *testing.T) {
	e := newTestEnv(t)
	brandTok := token(t, brandP)

	w := e.do(t, http.MethodPost, "/campaigns", brandTok, completeCampaignBody())
	require.Equal(t, http.StatusCreated, w.Code)
	var c models.Campaign
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))

	// still a draft
	w = e.do(t, http.MethodPost, "/campaigns/"+c.ID+"/submissions", token(t, creatorP), map[string]any{
		"content_url": "https://example.com/clip",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestDecideSubmissionApprove(t *testing.T) {
	e := newTestEnv(t)
	c := e.createActiveCampaign(t)
	sub := e.createPendingSubmission(t, c.ID, 0)

	w := e.do(t, http.MethodPost, "/submissions/"+sub.ID+"/decision", token(t, brandP), map[string]any{
		"decision": "approve",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result struct {
		Submission models.Submission `json:"submission"`
		Payout     *models.Payout    `json:"payout"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, models.SubmissionApproved, result.Submission.Status)
	assert.True(t, result.Submission.Earnings.Equal(decimal.NewFromInt(30)))
	require.NotNil(t, result.Payout)
	assert.Equal(t, models.PayoutPending, result.Payout.Status)
	assert.True(t, result.Payout.Amount.Equal(decimal.NewFromInt(30)))

	assert.Len(t, e.events.ByType(events.TypeSubmissionApproved), 1)
	assert.Len(t, e.events.ByType(events.TypePayoutCreated), 1)
}

func TestDecideSubmissionIdempotentReplay(t *testing.T) {
	e := newTestEnv(t)
	c := e.createActiveCampaign(t)
	sub := e.createPendingSubmission(t, c.ID, 0)
	brandTok := token(t, brandP)

	w := e.do(t, http.MethodPost, "/submissions/"+sub.ID+"/decision", brandTok, map[string]any{"decision": "approve"})
	require.Equal(t, http.StatusOK, w.Code)

	// the retry is served from the decision cache
	w = e.do(t, http.MethodPost, "/submissions/"+sub.ID+"/decision", brandTok, map[string]any{"decision": "approve"})
	require.Equal(t, http.StatusOK, w.Code)
	var result struct {
		AlreadyDecided bool `json:"already_decided"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.AlreadyDecided)

	// only one approval event despite two calls
	assert.Len(t, e.events.ByType(events.TypeSubmissionApproved), 1)
}

func TestDecideSubmissionBudgetExceeded(t *testing.T) {
	e := newTestEnv(t)
	c := e.createActiveCampaign(t)
	brandTok := token(t, brandP)

	// $100 budget, $30 per approval: the fourth must be refused
	var last models.Submission
	for i := 0; i < 4; i++ {
		last = e.createPendingSubmission(t, c.ID, 0)
		w := e.do(t, http.MethodPost, "/submissions/"+last.ID+"/decision", brandTok, map[string]any{"decision": "approve"})
		if i < 3 {
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			continue
		}
		require.Equal(t, http.StatusConflict, w.Code)
		var refusal struct {
			Error     string          `json:"error"`
			Remaining decimal.Decimal `json:"remaining"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &refusal))
		assert.Equal(t, "budget exceeded", refusal.Error)
		assert.True(t, refusal.Remaining.Equal(decimal.NewFromInt(10)))
	}

	// the refused submission is still pending
	w := e.do(t, http.MethodGet, "/submissions/"+last.ID, brandTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sub models.Submission
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
	assert.Equal(t, models.SubmissionPending, sub.Status)
}

func TestDecideSubmissionForbiddenForOtherBrand(t *testing.T) {
	e := newTestEnv(t)
	c := e.createActiveCampaign(t)
	sub := e.createPendingSubmission(t, c.ID, 0)

	other := models.Principal{UserID: "brand-2", Role: models.RoleBrand}
	w := e.do(t, http.MethodPost, "/submissions/"+sub.ID+"/decision", token(t, other), map[string]any{"decision": "approve"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// a decided submission is just as protected: the cached replay must not
	// leak earnings or payout state to a rival brand
	w = e.do(t, http.MethodPost, "/submissions/"+sub.ID+"/decision", token(t, brandP), map[string]any{"decision": "approve"})
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodPost, "/submissions/"+sub.ID+"/decision", token(t, other), map[string]any{"decision": "approve"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = e.do(t, http.MethodPost, "/submissions/"+sub.ID+"/decision", token(t, creatorP), map[string]any{"decision": "approve"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSyncViews(t *testing.T) {
	e := newTestEnv(t)
	c := e.createActiveCampaign(t)
	sub := e.createPendingSubmission(t, c.ID, 100)

	w := e.do(t, http.MethodPost, "/submissions/"+sub.ID+"/views", token(t, creatorP), map[string]any{"views": 4200})
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Submission
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.EqualValues(t, 4200, got.Views)
}

func TestPayoutPipelineOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	c := e.createActiveCampaign(t)
	sub := e.createPendingSubmission(t, c.ID, 0)
	adminTok := token(t, adminP)

	w := e.do(t, http.MethodPost, "/submissions/"+sub.ID+"/decision", token(t, brandP), map[string]any{"decision": "approve"})
	require.Equal(t, http.StatusOK, w.Code)
	var result struct {
		Payout models.Payout `json:"payout"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))

	// non-admin cannot drive the pipeline
	w = e.do(t, http.MethodPost, "/payouts/"+result.Payout.ID+"/status", token(t, brandP), map[string]string{"status": "processing"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodPost, "/payouts/"+result.Payout.ID+"/status", adminTok, map[string]string{"status": "processing"})
	require.Equal(t, http.StatusOK, w.Code)

	// skipping straight to completed from pending is refused elsewhere;
	// from processing it lands
	w = e.do(t, http.MethodPost, "/payouts/"+result.Payout.ID+"/status", adminTok, map[string]string{"status": "failed"})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodPost, "/payouts/"+result.Payout.ID+"/retry", adminTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var payout models.Payout
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payout))
	assert.Equal(t, models.PayoutPending, payout.Status)
	assert.Equal(t, 1, payout.RetryCount)

	// backwards transition refused
	w = e.do(t, http.MethodPost, "/payouts/"+payout.ID+"/status", adminTok, map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCreatorAnalyticsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	c := e.createActiveCampaign(t)
	brandTok := token(t, brandP)

	approved := e.createPendingSubmission(t, c.ID, 12000)
	w := e.do(t, http.MethodPost, "/submissions/"+approved.ID+"/decision", brandTok, map[string]any{"decision": "approve"})
	require.Equal(t, http.StatusOK, w.Code)

	rejected := e.createPendingSubmission(t, c.ID, 50)
	w = e.do(t, http.MethodPost, "/submissions/"+rejected.ID+"/decision", brandTok, map[string]any{"decision": "reject", "feedback": "off brief"})
	require.Equal(t, http.StatusOK, w.Code)

	// creators see their own analytics
	w = e.do(t, http.MethodGet, fmt.Sprintf("/creators/%s/analytics?top=3", creatorP.UserID), token(t, creatorP), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var summary struct {
		TotalSubmissions int     `json:"total_submissions"`
		ApprovedCount    int     `json:"approved_count"`
		ApprovalRate     float64 `json:"approval_rate"`
		PendingEarnings  decimal.Decimal `json:"pending_earnings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.TotalSubmissions)
	assert.Equal(t, 1, summary.ApprovedCount)
	assert.InDelta(t, 50.0, summary.ApprovalRate, 0.001)
	assert.True(t, summary.PendingEarnings.Equal(decimal.NewFromInt(30)))

	// but not someone else's
	w = e.do(t, http.MethodGet, "/creators/someone-else/analytics", token(t, creatorP), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestNotFoundMapping(t *testing.T) {
	e := newTestEnv(t)
	adminTok := token(t, adminP)

	w := e.do(t, http.MethodGet, "/campaigns/missing", adminTok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodGet, "/payouts/missing", adminTok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodPost, "/submissions/missing/decision", adminTok, map[string]any{"decision": "approve"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
