package claims

import (
	"fmt"

	"github.com/linnemanlabs/claimdesk/internal/agents"
)

// malformed builds a *agents.MalformedResponseError for JSON that decoded
// but is missing required keys or carries out-of-domain values.
func malformed(raw, format string, args ...any) error {
	return &agents.MalformedResponseError{
		Cleaned: agents.CleanJSON(raw),
		Err:     fmt.Errorf(format, args...),
	}
}

// DecodeIntake parses intake-stage output. Required keys: incident_type,
// concise_summary. key_entities defaults to empty; location and
// date_of_loss are optional (null tolerated).
func DecodeIntake(raw string) (IntakeRecord, error) {
	fields, err := agents.ParseJSON(raw)
	if err != nil {
		return IntakeRecord{}, err
	}
	for _, key := range []string{"incident_type", "concise_summary"} {
		if _, ok := fields[key]; !ok {
			return IntakeRecord{}, malformed(raw, "intake response missing key %q", key)
		}
	}

	var rec IntakeRecord
	if err := agents.DecodeJSON(raw, &rec); err != nil {
		return IntakeRecord{}, err
	}
	if rec.KeyEntities == nil {
		rec.KeyEntities = []string{}
	}
	return rec, nil
}

// DecodeTriage parses triage-stage output into a decision. Severity and
// route must be in their enum domains; fraud_risk must land in [0,1].
func DecodeTriage(raw string) (TriageDecision, error) {
	fields, err := agents.ParseJSON(raw)
	if err != nil {
		return TriageDecision{}, err
	}
	for _, key := range []string{"severity", "fraud_risk", "route_to", "rationale"} {
		if _, ok := fields[key]; !ok {
			return TriageDecision{}, malformed(raw, "triage response missing key %q", key)
		}
	}

	var d TriageDecision
	if err := agents.DecodeJSON(raw, &d); err != nil {
		return TriageDecision{}, err
	}
	if !d.Severity.Valid() {
		return TriageDecision{}, malformed(raw, "severity %q not in LOW/MEDIUM/HIGH", d.Severity)
	}
	if !d.RouteTo.Valid() {
		return TriageDecision{}, malformed(raw, "route_to %q not in OPERATIONS/SIU", d.RouteTo)
	}
	if d.FraudRisk < 0 || d.FraudRisk > 1 {
		return TriageDecision{}, malformed(raw, "fraud_risk %v outside [0,1]", d.FraudRisk)
	}
	return d, nil
}

// DecodeProposal parses nl2sql-stage output. The sql key is required and
// must be non-empty; explanation may be empty.
func DecodeProposal(raw string) (SQLProposal, error) {
	var p SQLProposal
	if err := agents.DecodeJSON(raw, &p); err != nil {
		return SQLProposal{}, err
	}
	if p.SQL == "" {
		return SQLProposal{}, malformed(raw, "sql response missing or empty %q key", "sql")
	}
	return p, nil
}
