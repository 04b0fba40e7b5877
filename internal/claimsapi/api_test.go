package claimsapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/linnemanlabs/claimdesk/internal/agents"
	"github.com/linnemanlabs/claimdesk/internal/claims"
	"github.com/linnemanlabs/claimdesk/internal/llm"
	"github.com/linnemanlabs/claimdesk/internal/sqlguard"
)

// mockService scripts each operation's result.
type mockService struct {
	triageOut  *claims.TriageOutcome
	triageErr  error
	notes      []claims.ClaimNote
	searchErr  error
	searchK    int
	askOut     *claims.AskOutcome
	askErr     error
	recent     []claims.RecentDecision
	recentErr  error
	lastNote   string
	lastPolicy int64
}

func (m *mockService) RunTriage(_ context.Context, note string, policyID int64, _ float64) (*claims.TriageOutcome, error) {
	m.lastNote = note
	m.lastPolicy = policyID
	if m.triageErr != nil {
		return nil, m.triageErr
	}
	return m.triageOut, nil
}

func (m *mockService) FindSimilar(_ context.Context, _ string, k int) ([]claims.ClaimNote, error) {
	m.searchK = k
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.notes, nil
}

func (m *mockService) AskDatabase(_ context.Context, _ string) (*claims.AskOutcome, error) {
	if m.askErr != nil {
		return nil, m.askErr
	}
	return m.askOut, nil
}

func (m *mockService) RecentDecisions(_ context.Context, _ int) ([]claims.RecentDecision, error) {
	if m.recentErr != nil {
		return nil, m.recentErr
	}
	return m.recent, nil
}

func newTestRouter(t *testing.T, svc *mockService) chi.Router {
	t.Helper()
	api := New(nil, svc)
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, r chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

//  New / constructor

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	api := New(nil, &mockService{})
	if api.logger == nil {
		t.Fatal("New(nil, svc) left logger nil; expected Nop logger")
	}
}

func TestNew_WithLogger(t *testing.T) {
	t.Parallel()

	api := New(log.Nop(), &mockService{})
	if api == nil {
		t.Fatal("New(logger, svc) returned nil API")
	}
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New(nil, nil) did not panic; expected panic for nil service")
		}
	}()
	New(nil, nil)
}

// Routing

func TestRegisterRoutes_Methods(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &mockService{
		triageOut: &claims.TriageOutcome{},
		askOut:    &claims.AskOutcome{},
	})

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"POST triage", http.MethodPost, "/api/v1/triage", `{"note":"n","policy_id":1}`, http.StatusCreated},
		{"GET triage not allowed", http.MethodGet, "/api/v1/triage", "", http.StatusMethodNotAllowed},
		{"POST search", http.MethodPost, "/api/v1/search", `{"text":"t"}`, http.StatusOK},
		{"POST ask", http.MethodPost, "/api/v1/ask", `{"question":"q"}`, http.StatusOK},
		{"GET decisions", http.MethodGet, "/api/v1/decisions", "", http.StatusOK},
		{"POST decisions not allowed", http.MethodPost, "/api/v1/decisions", "", http.StatusMethodNotAllowed},
		{"unknown path", http.MethodGet, "/api/v1/unknown", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, r, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}

// Triage handler

func TestHandleTriage_Success(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		triageOut: &claims.TriageOutcome{
			RunID:   "01TEST",
			ClaimID: 7,
			Decision: claims.TriageDecision{
				ClaimID:  7,
				Severity: claims.SeverityLow,
				RouteTo:  claims.RouteOperations,
			},
		},
	}
	r := newTestRouter(t, svc)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/triage", `{"note":"rear-end collision","policy_id":1,"amount_claimed":1500}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (%s)", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var resp claims.TriageOutcome
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ClaimID != 7 {
		t.Errorf("claim_id = %d, want 7", resp.ClaimID)
	}
	if svc.lastNote != "rear-end collision" || svc.lastPolicy != 1 {
		t.Errorf("forwarded (%q, %d)", svc.lastNote, svc.lastPolicy)
	}
}

func TestHandleTriage_BadRequests(t *testing.T) {
	t.Parallel()

	svc := &mockService{triageErr: claims.ErrEmptyNote}
	r := newTestRouter(t, svc)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{bad`},
		{"missing policy", `{"note":"n"}`},
		{"empty note", `{"note":"","policy_id":1}`},
		{"negative amount", `{"note":"n","policy_id":1,"amount_claimed":-100}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, r, http.MethodPost, "/api/v1/triage", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestHandleTriage_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"malformed response", &agents.MalformedResponseError{Cleaned: "this is not json", Err: errors.New("bad json")}, http.StatusUnprocessableEntity, "this is not json"},
		{"provider failure", &llm.ProviderError{Op: "complete", Err: errors.New("request timeout")}, http.StatusBadGateway, "request timeout"},
		{"store failure", &claims.StoreError{Op: "create", Err: errors.New("connection refused")}, http.StatusInternalServerError, "connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, &mockService{triageErr: tt.err})
			rec := doJSON(t, r, http.MethodPost, "/api/v1/triage", `{"note":"n","policy_id":1}`)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want diagnostic %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestWriteError_CleanedTextInBody(t *testing.T) {
	t.Parallel()

	cleaned := `{"severity": "LOW", "fraud_risk":`
	svc := &mockService{askErr: &agents.MalformedResponseError{Cleaned: cleaned, Err: errors.New("unexpected end of JSON input")}}
	r := newTestRouter(t, svc)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/ask", `{"question":"q"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["cleaned_text"] != cleaned {
		t.Errorf("cleaned_text = %q, want %q", resp["cleaned_text"], cleaned)
	}
}

// Search handler

func TestHandleSearch_ClampsK(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		body  string
		wantK int
	}{
		{"default", `{"text":"hail"}`, defaultSearchK},
		{"explicit", `{"text":"hail","k":3}`, 3},
		{"above cap", `{"text":"hail","k":50}`, maxSearchK},
		{"negative", `{"text":"hail","k":-2}`, defaultSearchK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			r := newTestRouter(t, svc)
			rec := doJSON(t, r, http.MethodPost, "/api/v1/search", tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if svc.searchK != tt.wantK {
				t.Errorf("k = %d, want %d", svc.searchK, tt.wantK)
			}
		})
	}
}

func TestHandleSearch_EmptyText(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &mockService{})
	rec := doJSON(t, r, http.MethodPost, "/api/v1/search", `{"text":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// Ask handler

func TestHandleAsk_Success(t *testing.T) {
	t.Parallel()

	svc := &mockService{askOut: &claims.AskOutcome{
		SQL:         "SELECT count(*) FROM claims",
		Explanation: "counts all claims",
		Rows: []claims.Row{
			{Columns: []string{"count"}, Values: []any{int64(3)}},
		},
	}}
	r := newTestRouter(t, svc)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/ask", `{"question":"how many claims?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"count":3`) {
		t.Errorf("body = %s, want row object", rec.Body.String())
	}
}

func TestHandleAsk_GateRejection(t *testing.T) {
	t.Parallel()

	svc := &mockService{askErr: &sqlguard.UnsafeStatementError{Statement: "DROP TABLE claims", Keyword: "drop"}}
	r := newTestRouter(t, svc)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/ask", `{"question":"drop it"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
	if !strings.Contains(rec.Body.String(), "drop") {
		t.Errorf("body = %s, want rejected keyword", rec.Body.String())
	}
}

func TestHandleAsk_EmptyQuestion(t *testing.T) {
	t.Parallel()

	svc := &mockService{askErr: claims.ErrEmptyQuestion}
	r := newTestRouter(t, svc)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/ask", `{"question":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleAsk_QueryErrorIsStillOK(t *testing.T) {
	t.Parallel()

	svc := &mockService{askOut: &claims.AskOutcome{
		SQL:        "SELECT bogus FROM claims",
		QueryError: `column "bogus" does not exist`,
	}}
	r := newTestRouter(t, svc)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/ask", `{"question":"q"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (execution failure is reported in the body)", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "query_error") {
		t.Errorf("body = %s, want query_error field", rec.Body.String())
	}
}

// Decisions handler

func TestHandleDecisions(t *testing.T) {
	t.Parallel()

	svc := &mockService{recent: []claims.RecentDecision{
		{DecisionID: 2, ClaimID: 2, Severity: claims.SeverityHigh, RouteTo: claims.RouteSIU},
		{DecisionID: 1, ClaimID: 1, Severity: claims.SeverityLow, RouteTo: claims.RouteOperations},
	}}
	r := newTestRouter(t, svc)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/decisions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Decisions []claims.RecentDecision `json:"decisions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Decisions) != 2 {
		t.Errorf("decisions = %d, want 2", len(resp.Decisions))
	}
}

// Fuzz

func FuzzTriageEndpoint(f *testing.F) {
	svc := &mockService{triageOut: &claims.TriageOutcome{}}
	api := New(nil, svc)
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	seeds := []string{
		"",
		"{}",
		`{"note":"n","policy_id":1}`,
		`{"note":123,"policy_id":"x"}`,
		"{bad",
		"\x00\x01\xff",
		strings.Repeat("a", 10000),
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, body string) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/triage", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		// Must not panic
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated && rec.Code != http.StatusBadRequest {
			t.Errorf("POST /api/v1/triage body len=%d = %d, want 201 or 400", len(body), rec.Code)
		}
	})
}

func TestHandleTriage_AnnotatesSpan(t *testing.T) {
	// Not parallel: swaps the global OTel tracer provider.

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	svc := &mockService{triageOut: &claims.TriageOutcome{
		ClaimID: 9,
		Decision: claims.TriageDecision{
			ClaimID: 9,
			RouteTo: claims.RouteSIU,
		},
	}}
	r := newTestRouter(t, svc)

	ctx, span := tp.Tracer("test").Start(context.Background(), "http.request")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage", strings.NewReader(`{"note":"n","policy_id":1}`))
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	span.End()

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}

	attrs := make(map[attribute.Key]attribute.Value)
	for _, a := range spans[0].Attributes {
		attrs[a.Key] = a.Value
	}
	if got := attrs["claimdesk.claim.id"]; got.AsInt64() != 9 {
		t.Errorf("claimdesk.claim.id = %v, want 9", got)
	}
	if got := attrs["claimdesk.triage.route"]; got.AsString() != "SIU" {
		t.Errorf("claimdesk.triage.route = %v, want SIU", got)
	}
}
