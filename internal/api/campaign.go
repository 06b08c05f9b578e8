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

// ===== Campaigns =====

func (s *Server) ListCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	includeDeleted := r.URL.Query().Get("include_deleted") == "true" && p.Admin
	campaigns, err := s.Store.ListCampaigns(r.Context(), includeDeleted)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, campaigns)
}

func (s *Server) CreateCampaignHandler(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	if p.Role != models.RoleBrand && !p.Admin {
		http.Error(w, "only brands create campaigns", http.StatusForbidden)
		return
	}

	var c models.Campaign
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.BrandID == "" || p.Role == models.RoleBrand {
		c.BrandID = p.UserID
	}
	now := time.Now()
	c.Status = models.CampaignDraft
	c.BudgetSpent = decimal.Zero
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := s.Store.CreateCampaign(r.Context(), &c); err != nil {
		s.writeError(w, r, err)
		return
	}

	middleware.LoggerFromRequest(r, s.Logger).Info("campaign created",
		zap.String("campaign_id", c.ID), zap.String("brand_id", c.BrandID))
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, c)
}

func (s *Server) GetCampaignHandler(w http.ResponseWriter, r *http.Request) {
	c, err := s.Store.GetCampaign(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, c)
}

// UpdateCampaignHandler edits draft fields. Budget spent is never writable
// here; it belongs to the approval engine.
func (s *Server) UpdateCampaignHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existing, err := s.Store.GetCampaign(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p := principalFrom(r)
	if !p.CanManageCampaign(existing) {
		s.writeError(w, r, &models.UnauthorizedError{Subject: p.UserID, Action: "edit campaign"})
		return
	}

	var c models.Campaign
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	c.ID = id
	c.BrandID = existing.BrandID
	c.Status = existing.Status
	c.BudgetSpent = existing.BudgetSpent
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now()

	if err := s.Store.UpdateCampaign(r.Context(), &c); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, c)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) SetCampaignStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	c, err := logic.ChangeStatus(r.Context(), s.Store, principalFrom(r), mux.Vars(r)["id"], req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Metrics.IncrementCampaignTransition(req.Status)
	writeJSON(w, c)
}

func (s *Server) ValidateCampaignHandler(w http.ResponseWriter, r *http.Request) {
	c, err := s.Store.GetCampaign(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, logic.EvaluateCompletion(c))
}
