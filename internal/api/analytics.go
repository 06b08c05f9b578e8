package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/clipbid/marketplace/internal/analytics"
	"github.com/clipbid/marketplace/internal/models"
)

const defaultTopN = 5

// CreatorAnalyticsHandler aggregates a creator's submissions and payouts into
// a reporting summary. Query params: from, to (RFC 3339), top.
func (s *Server) CreatorAnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	creatorID := mux.Vars(r)["id"]
	p := principalFrom(r)
	if !p.Admin && p.UserID != creatorID {
		s.writeError(w, r, &models.UnauthorizedError{Subject: p.UserID, Action: "view creator analytics"})
		return
	}

	window, err := parseWindow(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	topN := defaultTopN
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "top must be a non-negative integer", http.StatusBadRequest)
			return
		}
		topN = n
	}

	subs, err := s.Store.ListSubmissionsByCreator(r.Context(), creatorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	payouts, err := s.Store.ListPayoutsByCreator(r.Context(), creatorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, analytics.Summarize(creatorID, subs, payouts, window, topN))
}

func parseWindow(r *http.Request) (analytics.TimeRange, error) {
	var window analytics.TimeRange
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return window, err
		}
		window.From = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return window, err
		}
		window.To = t
	}
	return window, nil
}
