package claims

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/claimdesk/internal/agents"
	"github.com/linnemanlabs/claimdesk/internal/llm"
	"github.com/linnemanlabs/claimdesk/internal/sqlguard"
)

// similarNotesPerTriage is how many similar past notes are fed to the
// triage stage as context.
const similarNotesPerTriage = 3

// recentDecisionsShown is how many recent decisions are presented after a
// triage run.
const recentDecisionsShown = 10

// ErrEmptyNote is returned when a triage run is requested with no note
// text. Warning-grade: no stage has been invoked.
var ErrEmptyNote = errors.New("claim note is empty")

// ErrEmptyQuestion is returned when ask-database is invoked with no
// question. Warning-grade: no stage has been invoked.
var ErrEmptyQuestion = errors.New("question is empty")

// Notifier delivers a triage outcome to an external channel. Failures
// are logged, never propagated into the workflow.
type Notifier interface {
	Send(ctx context.Context, out *TriageOutcome) error
}

// TriageOutcome is the combined result of a successful triage run.
type TriageOutcome struct {
	RunID      string           `json:"run_id"`
	ClaimID    int64            `json:"claim_id"`
	Intake     IntakeRecord     `json:"intake"`
	Decision   TriageDecision   `json:"triage"`
	Overridden bool             `json:"route_overridden,omitempty"`
	Recent     []RecentDecision `json:"recent"`
}

// AskOutcome is the result of an ask-database run. QueryError carries a
// store failure from the execution phase; the proposal survives it.
type AskOutcome struct {
	RunID       string `json:"run_id"`
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
	Rows        []Row  `json:"rows"`
	QueryError  string `json:"query_error,omitempty"`
}

// Service orchestrates the claim workflows: triage-a-claim,
// semantic-search, and ask-database. Each invocation is independent and
// strictly sequential inside; stage errors abort the run at the point of
// failure with no retries.
type Service struct {
	client    llm.Client
	store     Store
	retriever *Retriever
	intake    *agents.Stage
	triage    *agents.Stage
	nl2sql    *agents.Stage
	logger    log.Logger
	metrics   *Metrics
	notifier  Notifier
}

// NewService builds the service and its stages. The nl2sql stage's schema
// hint is introspected from the store here, once per construction.
func NewService(ctx context.Context, client llm.Client, store Store, logger log.Logger, metrics *Metrics, notifier Notifier) (*Service, error) {
	if logger == nil {
		logger = log.Nop()
	}

	hint, err := store.SchemaHint(ctx)
	if err != nil {
		return nil, fmt.Errorf("schema hint: %w", err)
	}

	return &Service{
		client:    client,
		store:     store,
		retriever: NewRetriever(client, store),
		intake:    agents.NewIntake(),
		triage:    agents.NewTriage(),
		nl2sql:    agents.NewSQL(hint),
		logger:    logger,
		metrics:   metrics,
		notifier:  notifier,
	}, nil
}

// RunTriage executes the full triage workflow for one claim note:
// intake, context gathering, scoring, atomic persistence, and the recent
// decisions readback.
func (s *Service) RunTriage(ctx context.Context, note string, policyID int64, amountClaimed float64) (*TriageOutcome, error) {
	if strings.TrimSpace(note) == "" {
		return nil, ErrEmptyNote
	}

	start := time.Now()
	runID := ulid.Make().String()
	L := s.logger.With("run_id", runID, "workflow", "triage", "policy_id", policyID)
	ctx = log.WithContext(ctx, L)

	out, err := s.runTriage(ctx, L, runID, note, policyID, amountClaimed)

	status := "complete"
	if err != nil {
		status = "failed"
	}
	s.metrics.observeWorkflow("triage", status, time.Since(start).Seconds())

	if err != nil {
		L.Error(ctx, err, "triage run failed")
		return nil, err
	}

	L.Info(ctx, "triage run complete",
		"claim_id", out.ClaimID,
		"severity", out.Decision.Severity,
		"fraud_risk", out.Decision.FraudRisk,
		"route_to", out.Decision.RouteTo,
		"duration", time.Since(start).Seconds(),
	)

	s.dispatchNotification(ctx, L, out)

	return out, nil
}

func (s *Service) runTriage(ctx context.Context, L log.Logger, runID, note string, policyID int64, amountClaimed float64) (*TriageOutcome, error) {
	// normalize the raw note
	rawIntake, err := s.runStage(ctx, s.intake, map[string]string{"input": note})
	if err != nil {
		return nil, fmt.Errorf("intake stage: %w", err)
	}
	intake, err := DecodeIntake(rawIntake)
	if err != nil {
		return nil, fmt.Errorf("intake stage: %w", err)
	}

	// gather context: prior claims aggregate plus similar past notes
	prior, err := s.store.PriorClaims(ctx, policyID)
	if err != nil {
		return nil, err
	}
	similar, err := s.retriever.Retrieve(ctx, note, similarNotesPerTriage)
	if err != nil {
		return nil, fmt.Errorf("similar notes: %w", err)
	}
	s.metrics.observeRetrieval(len(similar))

	// score the summary against the gathered context
	rawTriage, err := s.runStage(ctx, s.triage, map[string]string{
		"summary": intake.ConciseSummary,
		"context": buildTriageContext(policyID, prior, similar),
	})
	if err != nil {
		return nil, fmt.Errorf("triage stage: %w", err)
	}
	decision, err := DecodeTriage(rawTriage)
	if err != nil {
		return nil, fmt.Errorf("triage stage: %w", err)
	}

	// post-condition: high fraud risk always routes to SIU, even if the
	// model disagreed with its own score
	overridden := false
	if decision.FraudRisk >= FraudRiskSIUThreshold && decision.RouteTo != RouteSIU {
		L.Warn(ctx, "overriding route to SIU",
			"fraud_risk", decision.FraudRisk,
			"model_route", decision.RouteTo,
		)
		decision.RouteTo = RouteSIU
		overridden = true
		s.metrics.incRouteOverride()
	}

	// persist claim + decision atomically
	claimID, err := s.store.CreateTriagedClaim(ctx, policyID, note, amountClaimed, &decision)
	if err != nil {
		return nil, err
	}

	recent, err := s.store.RecentDecisions(ctx, recentDecisionsShown)
	if err != nil {
		return nil, err
	}

	return &TriageOutcome{
		RunID:      runID,
		ClaimID:    claimID,
		Intake:     intake,
		Decision:   decision,
		Overridden: overridden,
		Recent:     recent,
	}, nil
}

// FindSimilar returns the k stored notes nearest to the given text.
func (s *Service) FindSimilar(ctx context.Context, text string, k int) ([]ClaimNote, error) {
	start := time.Now()
	notes, err := s.retriever.Retrieve(ctx, text, k)

	status := "complete"
	if err != nil {
		status = "failed"
	}
	s.metrics.observeWorkflow("search", status, time.Since(start).Seconds())

	if err != nil {
		return nil, err
	}
	s.metrics.observeRetrieval(len(notes))
	return notes, nil
}

// RecentDecisions returns the most recent triage decisions, newest first.
func (s *Service) RecentDecisions(ctx context.Context, limit int) ([]RecentDecision, error) {
	if limit <= 0 || limit > recentDecisionsShown {
		limit = recentDecisionsShown
	}
	return s.store.RecentDecisions(ctx, limit)
}

// AskDatabase converts a natural-language question to SQL, gates it, and
// executes it. A store failure during execution is reported in the
// outcome while the proposal stays visible; a gate rejection or a
// stage/parse failure is a hard error.
func (s *Service) AskDatabase(ctx context.Context, question string) (*AskOutcome, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	start := time.Now()
	runID := ulid.Make().String()
	L := s.logger.With("run_id", runID, "workflow", "ask")
	ctx = log.WithContext(ctx, L)

	out, err := s.askDatabase(ctx, L, runID, question)

	status := "complete"
	switch {
	case err != nil:
		status = "failed"
	case out.QueryError != "":
		status = "query_error"
	}
	s.metrics.observeWorkflow("ask", status, time.Since(start).Seconds())

	if err != nil {
		L.Error(ctx, err, "ask run failed")
		return nil, err
	}
	return out, nil
}

func (s *Service) askDatabase(ctx context.Context, L log.Logger, runID, question string) (*AskOutcome, error) {
	raw, err := s.runStage(ctx, s.nl2sql, map[string]string{"input": question})
	if err != nil {
		return nil, fmt.Errorf("nl2sql stage: %w", err)
	}
	proposal, err := DecodeProposal(raw)
	if err != nil {
		return nil, fmt.Errorf("nl2sql stage: %w", err)
	}

	out := &AskOutcome{
		RunID:       runID,
		SQL:         proposal.SQL,
		Explanation: proposal.Explanation,
	}

	rows, err := s.store.ExecuteReadOnly(ctx, proposal.SQL)
	if err != nil {
		var unsafe *sqlguard.UnsafeStatementError
		if errors.As(err, &unsafe) {
			s.metrics.incGateRejection()
			L.Warn(ctx, "safety gate rejected proposed sql", "keyword", unsafe.Keyword, "sql", proposal.SQL)
			return nil, err
		}
		// execution failure does not erase upstream progress: the
		// proposal stays in the outcome alongside the store error
		L.Error(ctx, err, "proposed sql failed", "sql", proposal.SQL)
		out.QueryError = err.Error()
		return out, nil
	}

	out.Rows = rows
	return out, nil
}

func (s *Service) runStage(ctx context.Context, stage *agents.Stage, inputs map[string]string) (string, error) {
	start := time.Now()
	raw, err := stage.Run(ctx, s.client, inputs)

	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.observeStage(stage.Name(), status, time.Since(start).Seconds())

	return raw, err
}

// dispatchNotification sends SIU-routed and HIGH severity decisions to
// the notifier without blocking or failing the workflow.
func (s *Service) dispatchNotification(ctx context.Context, L log.Logger, out *TriageOutcome) {
	if s.notifier == nil {
		return
	}
	if out.Decision.RouteTo != RouteSIU && out.Decision.Severity != SeverityHigh {
		return
	}

	go func(ctx context.Context) {
		if err := s.notifier.Send(ctx, out); err != nil {
			s.metrics.incNotify("error")
			L.Error(ctx, err, "decision notification failed", "claim_id", out.ClaimID)
			return
		}
		s.metrics.incNotify("sent")
	}(context.WithoutCancel(ctx))
}

// buildTriageContext renders the prior-claims aggregate and similar notes
// into the context block the triage stage expects.
func buildTriageContext(policyID int64, prior PriorClaims, similar []ClaimNote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "policy_id=%d, prior_claims=%d, prior_total=%.2f\n", policyID, prior.Count, prior.Total)
	b.WriteString("Similar past notes:")
	for _, n := range similar {
		fmt.Fprintf(&b, "\nNote %d (claim %d): %s", n.NoteID, n.ClaimID, n.NoteText)
	}
	return b.String()
}
