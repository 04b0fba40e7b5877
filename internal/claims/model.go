package claims

import (
	"bytes"
	"encoding/json"
	"time"
)

// Severity is the triage severity band for a claim.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Valid reports whether s is one of the known severity bands.
func (s Severity) Valid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// Route identifies which team a triaged claim is handed to.
type Route string

const (
	RouteOperations Route = "OPERATIONS"
	RouteSIU        Route = "SIU"
)

// Valid reports whether r is a known routing target.
func (r Route) Valid() bool {
	return r == RouteOperations || r == RouteSIU
}

// FraudRiskSIUThreshold is the fraud-risk score at or above which a
// decision must route to SIU. The triage prompt states this policy to the
// model; the service additionally enforces it as a post-condition.
const FraudRiskSIUThreshold = 0.65

// IntakeRecord is the normalized form of a raw claim note, produced by
// the intake stage. Transient: consumed by the triage stage, never
// persisted.
type IntakeRecord struct {
	IncidentType   string   `json:"incident_type"`
	KeyEntities    []string `json:"key_entities"`
	Location       string   `json:"location,omitempty"`
	DateOfLoss     string   `json:"date_of_loss,omitempty"`
	ConciseSummary string   `json:"concise_summary"`
}

// TriageDecision is the scored outcome of a triage run. Exactly one is
// created per successful run, atomically with its claim.
type TriageDecision struct {
	DecisionID int64     `json:"decision_id"`
	ClaimID    int64     `json:"claim_id"`
	Severity   Severity  `json:"severity"`
	FraudRisk  float64   `json:"fraud_risk"`
	RouteTo    Route     `json:"route_to"`
	Rationale  string    `json:"rationale"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecentDecision is a decision joined with its claim description, as
// presented after a triage run.
type RecentDecision struct {
	DecisionID  int64     `json:"decision_id"`
	ClaimID     int64     `json:"claim_id"`
	Severity    Severity  `json:"severity"`
	FraudRisk   float64   `json:"fraud_risk"`
	RouteTo     Route     `json:"route_to"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description"`
}

// ClaimNote is a stored note retrieved by vector similarity. Distance is
// the vector distance to the query embedding; smaller is closer.
type ClaimNote struct {
	NoteID   int64   `json:"note_id"`
	ClaimID  int64   `json:"claim_id"`
	NoteText string  `json:"note_text"`
	Distance float64 `json:"distance"`
}

// PriorClaims is the read-only aggregate over a policy's existing claims,
// fed to the triage stage as context.
type PriorClaims struct {
	Count int     `json:"prior_count"`
	Total float64 `json:"prior_total"`
}

// SQLProposal is the nl2sql stage's output: a candidate statement and the
// model's explanation. Transient, never persisted.
type SQLProposal struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
}

// Row is one result row from the guarded query executor, preserving the
// column order of the statement.
type Row struct {
	Columns []string
	Values  []any
}

// MarshalJSON renders the row as a JSON object in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
