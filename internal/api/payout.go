package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/clipbid/marketplace/internal/models"
)

// ===== Payouts =====

func (s *Server) GetPayoutHandler(w http.ResponseWriter, r *http.Request) {
	payout, err := s.Store.GetPayout(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p := principalFrom(r)
	if !p.Admin && p.UserID != payout.CreatorID {
		s.writeError(w, r, &models.UnauthorizedError{Subject: p.UserID, Action: "view payout"})
		return
	}
	writeJSON(w, payout)
}

// AdvancePayoutHandler moves a payout forward through the pipeline. Driven by
// the external disbursement collaborator.
func (s *Server) AdvancePayoutHandler(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	payout, err := s.Payouts.Advance(r.Context(), principalFrom(r), mux.Vars(r)["id"], req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, payout)
}

// RetryPayoutHandler re-queues a failed payout.
func (s *Server) RetryPayoutHandler(w http.ResponseWriter, r *http.Request) {
	payout, err := s.Payouts.Retry(r.Context(), principalFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, payout)
}
