package claims

import (
	"context"
	"fmt"
)

// Store is the persistence boundary for the claims pipeline. A claim and
// its decision are written atomically; model-proposed SQL only ever runs
// through ExecuteReadOnly, which applies the safety gate before touching
// the store.
type Store interface {
	// CreateTriagedClaim inserts a new claim (status OPEN, date of loss
	// today) and its triage decision in one transaction. It fills in
	// d.ClaimID, d.DecisionID, and d.CreatedAt, and returns the new
	// claim ID.
	CreateTriagedClaim(ctx context.Context, policyID int64, description string, amountClaimed float64, d *TriageDecision) (int64, error)

	// PriorClaims returns the count and summed amount of existing claims
	// for a policy.
	PriorClaims(ctx context.Context, policyID int64) (PriorClaims, error)

	// NearestNotes returns up to k stored claim notes ordered by
	// ascending vector distance from the given embedding.
	NearestNotes(ctx context.Context, embedding []float32, k int) ([]ClaimNote, error)

	// RecentDecisions returns the most recent decisions joined with
	// their claim descriptions, newest decision ID first.
	RecentDecisions(ctx context.Context, limit int) ([]RecentDecision, error)

	// SchemaHint renders a compact description of the store's tables and
	// columns for prompt grounding.
	SchemaHint(ctx context.Context) (string, error)

	// ExecuteReadOnly runs a model-proposed statement after the SQL
	// safety gate approves it, returning at most 50 rows. Gate
	// rejections surface as *sqlguard.UnsafeStatementError.
	ExecuteReadOnly(ctx context.Context, sql string) ([]Row, error)
}

// StoreError wraps a failure from the relational store: syntax errors,
// constraint violations, connectivity.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
