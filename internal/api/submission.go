package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clipbid/marketplace/internal/logic"
	"github.com/clipbid/marketplace/internal/middleware"
	"github.com/clipbid/marketplace/internal/models"
)

// ===== Submissions =====

type createSubmissionRequest struct {
	ContentURL string `json:"content_url"`
	Views      int64  `json:"views"`
}

// CreateSubmissionHandler opens a pending submission against an active
// campaign.
func (s *Server) CreateSubmissionHandler(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	if p.Role != models.RoleCreator && !p.Admin {
		http.Error(w, "only creators submit content", http.StatusForbidden)
		return
	}

	campaign, err := s.Store.GetCampaign(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if campaign.Status != models.CampaignActive {
		s.writeError(w, r, &models.InvalidTransitionError{
			Entity: "submission", From: campaign.Status, To: models.SubmissionPending,
		})
		return
	}

	var req createSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Views < 0 {
		http.Error(w, "views must be non-negative", http.StatusBadRequest)
		return
	}

	sub := models.Submission{
		ID:         uuid.NewString(),
		CampaignID: campaign.ID,
		CreatorID:  p.UserID,
		Status:     models.SubmissionPending,
		ContentURL: req.ContentURL,
		Views:      req.Views,
		CreatedAt:  time.Now(),
	}
	if err := s.Store.CreateSubmission(r.Context(), &sub); err != nil {
		s.writeError(w, r, err)
		return
	}

	middleware.LoggerFromRequest(r, s.Logger).Info("submission created",
		zap.String("submission_id", sub.ID),
		zap.String("campaign_id", campaign.ID),
		zap.String("creator_id", p.UserID))
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, sub)
}

func (s *Server) GetSubmissionHandler(w http.ResponseWriter, r *http.Request) {
	sub, err := s.Store.GetSubmission(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, sub)
}

type syncViewsRequest struct {
	Views int64 `json:"views"`
}

// SyncViewsHandler refreshes the view count of a still-pending submission.
func (s *Server) SyncViewsHandler(w http.ResponseWriter, r *http.Request) {
	var req syncViewsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Views < 0 {
		http.Error(w, "views must be non-negative", http.StatusBadRequest)
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.Store.UpdateSubmissionViews(r.Context(), id, req.Views); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.Redis != nil {
		if err := s.Redis.IncrementViewSync(id); err != nil {
			middleware.LoggerFromRequest(r, s.Logger).Warn("view sync counter", zap.Error(err))
		}
	}
	sub, err := s.Store.GetSubmission(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, sub)
}

type decisionRequest struct {
	Decision          string           `json:"decision"`
	Views             int64            `json:"views,omitempty"`
	Feedback          string           `json:"feedback,omitempty"`
	AttributedRevenue *decimal.Decimal `json:"attributed_revenue,omitempty"`
}

// DecideSubmissionHandler applies one approve or reject decision.
func (s *Server) DecideSubmissionHandler(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Decision != logic.DecisionApprove && req.Decision != logic.DecisionReject {
		http.Error(w, "decision must be approve or reject", http.StatusBadRequest)
		return
	}

	result, err := s.Engine.Decide(r.Context(), principalFrom(r), logic.DecideRequest{
		SubmissionID:      mux.Vars(r)["id"],
		Decision:          req.Decision,
		Views:             req.Views,
		Feedback:          req.Feedback,
		AttributedRevenue: req.AttributedRevenue,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, result)
}
