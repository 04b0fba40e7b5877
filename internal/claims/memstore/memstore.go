// Package memstore provides an in-memory implementation of claims.Store.
// Suitable for dev/testing: similarity search is brute-force cosine
// distance over seeded notes, and the guarded executor only applies the
// safety gate (there is no SQL engine to run statements against).
package memstore

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/claimdesk/internal/claims"
	"github.com/linnemanlabs/claimdesk/internal/sqlguard"
)

// storedClaim is a claim row plus its note text.
type storedClaim struct {
	claimID       int64
	policyID      int64
	description   string
	amountClaimed float64
	status        string
	dateOfLoss    time.Time
}

// Store holds pipeline state in memory.
type Store struct {
	mu         sync.Mutex
	claims     []storedClaim
	decisions  []claims.TriageDecision
	notes      []claims.ClaimNote
	embeddings map[int64][]float32 // note ID -> embedding
	nextClaim  int64
	nextDec    int64
}

// New initializes an empty in-memory Store.
func New() *Store {
	return &Store{
		embeddings: make(map[int64][]float32),
		nextClaim:  1,
		nextDec:    1,
	}
}

// SeedNote adds a claim note with its embedding, for retrieval tests and
// dev seeding.
func (s *Store) SeedNote(n claims.ClaimNote, embedding []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, n)
	s.embeddings[n.NoteID] = embedding
}

// CreateTriagedClaim stores the claim and decision under one lock
// acquisition, mirroring the transactional write of the Postgres store.
func (s *Store) CreateTriagedClaim(_ context.Context, policyID int64, description string, amountClaimed float64, d *claims.TriageDecision) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	claimID := s.nextClaim
	s.nextClaim++
	s.claims = append(s.claims, storedClaim{
		claimID:       claimID,
		policyID:      policyID,
		description:   description,
		amountClaimed: amountClaimed,
		status:        "OPEN",
		dateOfLoss:    time.Now(),
	})

	d.ClaimID = claimID
	d.DecisionID = s.nextDec
	s.nextDec++
	d.CreatedAt = time.Now()
	s.decisions = append(s.decisions, *d)

	return claimID, nil
}

// PriorClaims aggregates over stored claims for a policy.
func (s *Store) PriorClaims(_ context.Context, policyID int64) (claims.PriorClaims, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var p claims.PriorClaims
	for _, c := range s.claims {
		if c.policyID == policyID {
			p.Count++
			p.Total += c.amountClaimed
		}
	}
	return p, nil
}

// NearestNotes returns up to k seeded notes by ascending cosine distance.
func (s *Store) NearestNotes(_ context.Context, embedding []float32, k int) ([]claims.ClaimNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]claims.ClaimNote, 0, len(s.notes))
	for _, n := range s.notes {
		n.Distance = cosineDistance(embedding, s.embeddings[n.NoteID])
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })

	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// RecentDecisions returns stored decisions newest first, joined with
// their claim descriptions.
func (s *Store) RecentDecisions(_ context.Context, limit int) ([]claims.RecentDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byClaim := make(map[int64]string, len(s.claims))
	for _, c := range s.claims {
		byClaim[c.claimID] = c.description
	}

	out := []claims.RecentDecision{}
	for i := len(s.decisions) - 1; i >= 0 && len(out) < limit; i-- {
		d := s.decisions[i]
		out = append(out, claims.RecentDecision{
			DecisionID:  d.DecisionID,
			ClaimID:     d.ClaimID,
			Severity:    d.Severity,
			FraudRisk:   d.FraudRisk,
			RouteTo:     d.RouteTo,
			CreatedAt:   d.CreatedAt,
			Description: byClaim[d.ClaimID],
		})
	}
	return out, nil
}

// SchemaHint describes the fixed schema this store mimics.
func (s *Store) SchemaHint(_ context.Context) (string, error) {
	return "Tables: claims(claim_id:integer, policy_id:integer, date_of_loss:date, description:text, amount_claimed:numeric, status:text) | " +
		"claim_notes(note_id:integer, claim_id:integer, note_text:text, embedding:vector) | " +
		"triage_decisions(decision_id:integer, claim_id:integer, severity:text, fraud_risk:double precision, route_to:text, rationale:text, created_at:timestamptz)", nil
}

// ExecuteReadOnly applies the safety gate but cannot run SQL; every
// gated statement fails with a StoreError.
func (s *Store) ExecuteReadOnly(_ context.Context, sql string) ([]claims.Row, error) {
	if err := sqlguard.Check(sql); err != nil {
		return nil, err
	}
	return nil, &claims.StoreError{Op: "execute", Err: errors.New("memory store cannot execute SQL")}
}

// cosineDistance matches the ordering of pgvector's <=> operator.
// Mismatched or zero-length vectors sort last.
func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.MaxFloat64
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return math.MaxFloat64
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
