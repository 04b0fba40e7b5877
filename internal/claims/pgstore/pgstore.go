// Package pgstore provides a PostgreSQL + pgvector implementation of
// claims.Store.
package pgstore

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/linnemanlabs/claimdesk/internal/claims"
	"github.com/linnemanlabs/claimdesk/internal/sqlguard"
)

var tracer = otel.Tracer("github.com/linnemanlabs/claimdesk/internal/claims/pgstore")

//go:embed schema.sql
var schema string

// maxExecuteRows caps how many rows the guarded executor returns.
const maxExecuteRows = 50

// Store persists claims, decisions, and notes in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store. The pool is owned by
// the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return &claims.StoreError{Op: op, Err: err}
}

// CreateTriagedClaim inserts the claim and its decision in one
// transaction, so a failure between the two never leaves an orphaned
// claim. Fills in d.ClaimID, d.DecisionID, and d.CreatedAt.
func (s *Store) CreateTriagedClaim(ctx context.Context, policyID int64, description string, amountClaimed float64, d *claims.TriageDecision) (int64, error) {
	ctx, span := startSpan(ctx, "pgstore.CreateTriagedClaim", "INSERT")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fail(span, "create claim", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	var claimID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO claims (policy_id, date_of_loss, description, amount_claimed, status)
		 VALUES ($1, CURRENT_DATE, $2, $3, 'OPEN')
		 RETURNING claim_id`,
		policyID, description, amountClaimed,
	).Scan(&claimID)
	if err != nil {
		return 0, fail(span, "create claim", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO triage_decisions (claim_id, severity, fraud_risk, route_to, rationale)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING decision_id, created_at`,
		claimID, string(d.Severity), d.FraudRisk, string(d.RouteTo), d.Rationale,
	).Scan(&d.DecisionID, &d.CreatedAt)
	if err != nil {
		return 0, fail(span, "create decision", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fail(span, "create claim", fmt.Errorf("commit: %w", err))
	}

	d.ClaimID = claimID
	span.SetAttributes(attribute.Int64("claimdesk.claim.id", claimID))
	return claimID, nil
}

// PriorClaims returns the aggregate over a policy's existing claims.
func (s *Store) PriorClaims(ctx context.Context, policyID int64) (claims.PriorClaims, error) {
	ctx, span := startSpan(ctx, "pgstore.PriorClaims", "SELECT")
	defer span.End()

	var p claims.PriorClaims
	err := s.pool.QueryRow(ctx,
		`SELECT count(*), coalesce(sum(amount_claimed), 0)
		 FROM claims WHERE policy_id = $1`,
		policyID,
	).Scan(&p.Count, &p.Total)
	if err != nil {
		return claims.PriorClaims{}, fail(span, "prior claims", err)
	}
	return p, nil
}

// NearestNotes runs the vector nearest-neighbor query, ascending by
// distance.
func (s *Store) NearestNotes(ctx context.Context, embedding []float32, k int) ([]claims.ClaimNote, error) {
	ctx, span := startSpan(ctx, "pgstore.NearestNotes", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT note_id, claim_id, note_text, embedding <=> $1 AS distance
		 FROM claim_notes
		 ORDER BY distance ASC
		 LIMIT $2`,
		pgvector.NewVector(embedding), k,
	)
	if err != nil {
		return nil, fail(span, "nearest notes", err)
	}
	defer rows.Close()

	notes := []claims.ClaimNote{}
	for rows.Next() {
		var n claims.ClaimNote
		if err := rows.Scan(&n.NoteID, &n.ClaimID, &n.NoteText, &n.Distance); err != nil {
			return nil, fail(span, "nearest notes", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, "nearest notes", err)
	}
	return notes, nil
}

// RecentDecisions returns decisions joined with claim descriptions,
// newest decision ID first.
func (s *Store) RecentDecisions(ctx context.Context, limit int) ([]claims.RecentDecision, error) {
	ctx, span := startSpan(ctx, "pgstore.RecentDecisions", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT t.decision_id, t.claim_id, t.severity, t.fraud_risk, t.route_to, t.created_at, c.description
		 FROM triage_decisions t
		 JOIN claims c ON c.claim_id = t.claim_id
		 ORDER BY t.decision_id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fail(span, "recent decisions", err)
	}
	defer rows.Close()

	out := []claims.RecentDecision{}
	for rows.Next() {
		var d claims.RecentDecision
		if err := rows.Scan(&d.DecisionID, &d.ClaimID, &d.Severity, &d.FraudRisk, &d.RouteTo, &d.CreatedAt, &d.Description); err != nil {
			return nil, fail(span, "recent decisions", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, "recent decisions", err)
	}
	return out, nil
}

// SchemaHint renders all public table columns as
// "Tables: t1(col:type, ...) | t2(...)", grouping by table in first-seen
// order.
func (s *Store) SchemaHint(ctx context.Context) (string, error) {
	ctx, span := startSpan(ctx, "pgstore.SchemaHint", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT table_name, column_name, data_type
		 FROM information_schema.columns
		 WHERE table_schema = 'public'
		 ORDER BY table_name, ordinal_position`,
	)
	if err != nil {
		return "", fail(span, "schema hint", err)
	}
	defer rows.Close()

	var order []string
	cols := map[string][]string{}
	for rows.Next() {
		var table, column, typ string
		if err := rows.Scan(&table, &column, &typ); err != nil {
			return "", fail(span, "schema hint", err)
		}
		if _, seen := cols[table]; !seen {
			order = append(order, table)
		}
		cols[table] = append(cols[table], column+":"+typ)
	}
	if err := rows.Err(); err != nil {
		return "", fail(span, "schema hint", err)
	}

	parts := make([]string, 0, len(order))
	for _, t := range order {
		parts = append(parts, t+"("+strings.Join(cols[t], ", ")+")")
	}
	return "Tables: " + strings.Join(parts, " | "), nil
}

// ExecuteReadOnly gates and runs a model-proposed statement, returning at
// most 50 rows with column order preserved. This is the only execution
// path for proposed SQL.
func (s *Store) ExecuteReadOnly(ctx context.Context, sql string) ([]claims.Row, error) {
	if err := sqlguard.Check(sql); err != nil {
		return nil, err
	}

	ctx, span := startSpan(ctx, "pgstore.ExecuteReadOnly", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fail(span, "execute", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	out := []claims.Row{}
	for rows.Next() {
		if len(out) >= maxExecuteRows {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fail(span, "execute", err)
		}
		out = append(out, claims.Row{Columns: columns, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, "execute", err)
	}

	span.SetAttributes(attribute.Int("claimdesk.rows", len(out)))
	return out, nil
}
