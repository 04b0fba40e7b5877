package claimsapi

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultSearchK = 5
	maxSearchK     = 10
)

type triageRequest struct {
	Note          string  `json:"note"`
	PolicyID      int64   `json:"policy_id"`
	AmountClaimed float64 `json:"amount_claimed"`
}

func (a *API) handleTriage(w http.ResponseWriter, r *http.Request) {
	var req triageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if req.PolicyID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "policy_id is required"})
		return
	}
	if req.AmountClaimed < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount_claimed must not be negative"})
		return
	}

	out, err := a.svc.RunTriage(r.Context(), req.Note, req.PolicyID, req.AmountClaimed)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.Int64("claimdesk.claim.id", out.ClaimID),
		attribute.String("claimdesk.triage.route", string(out.Decision.RouteTo)),
	)

	writeJSON(w, http.StatusCreated, out)
}

type searchRequest struct {
	Text string `json:"text"`
	K    int    `json:"k"`
}

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}
	k := req.K
	if k <= 0 {
		k = defaultSearchK
	}
	if k > maxSearchK {
		k = maxSearchK
	}

	notes, err := a.svc.FindSimilar(r.Context(), req.Text, k)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

type askRequest struct {
	Question string `json:"question"`
}

func (a *API) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	out, err := a.svc.AskDatabase(r.Context(), req.Question)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleDecisions(w http.ResponseWriter, r *http.Request) {
	recent, err := a.svc.RecentDecisions(r.Context(), 0)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"decisions": recent})
}
