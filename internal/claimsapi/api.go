// Package claimsapi exposes the claim triage workflows over HTTP.
package claimsapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/claimdesk/internal/agents"
	"github.com/linnemanlabs/claimdesk/internal/claims"
	"github.com/linnemanlabs/claimdesk/internal/llm"
	"github.com/linnemanlabs/claimdesk/internal/sqlguard"
)

// ClaimService defines the business operations claimsapi needs.
type ClaimService interface {
	RunTriage(ctx context.Context, note string, policyID int64, amountClaimed float64) (*claims.TriageOutcome, error)
	FindSimilar(ctx context.Context, text string, k int) ([]claims.ClaimNote, error)
	AskDatabase(ctx context.Context, question string) (*claims.AskOutcome, error)
	RecentDecisions(ctx context.Context, limit int) ([]claims.RecentDecision, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    ClaimService
}

// New creates a new API handler.
func New(logger log.Logger, svc ClaimService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("claim service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/triage", a.handleTriage)
		r.Post("/search", a.handleSearch)
		r.Post("/ask", a.handleAsk)
		r.Get("/decisions", a.handleDecisions)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps workflow errors onto HTTP statuses: empty input is a
// client error, a rejected or unparseable model output is unprocessable,
// a provider failure is a bad gateway, everything else is internal. Each
// body carries the failure's diagnostic payload (cleaned text, rejected
// keyword, provider or store message), never just a generic string.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		malformed *agents.MalformedResponseError
		unsafe    *sqlguard.UnsafeStatementError
		provider  *llm.ProviderError
		store     *claims.StoreError
	)

	switch {
	case errors.Is(err, claims.ErrEmptyNote), errors.Is(err, claims.ErrEmptyQuestion):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &unsafe):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":   "proposed statement rejected by safety gate",
			"keyword": unsafe.Keyword,
		})
	case errors.As(err, &malformed):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":        "model response could not be parsed",
			"cleaned_text": malformed.Cleaned,
		})
	case errors.As(err, &provider):
		a.logger.Error(r.Context(), err, "model provider failure")
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":  "model provider unavailable",
			"detail": provider.Error(),
		})
	case errors.As(err, &store):
		a.logger.Error(r.Context(), err, "store failure")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "store failure",
			"detail": store.Error(),
		})
	default:
		a.logger.Error(r.Context(), err, "request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
