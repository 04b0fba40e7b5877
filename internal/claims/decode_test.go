package claims

import (
	"errors"
	"testing"

	"github.com/linnemanlabs/claimdesk/internal/agents"
)

func TestDecodeIntake_FixedScenario(t *testing.T) {
	t.Parallel()

	raw := `{"incident_type":"collision","key_entities":["I-35","Austin"],"location":"Austin","date_of_loss":null,"concise_summary":"Low-speed rear-end collision, no injuries."}`

	rec, err := DecodeIntake(raw)
	if err != nil {
		t.Fatalf("DecodeIntake: %v", err)
	}
	if rec.IncidentType != "collision" {
		t.Errorf("incident_type = %q", rec.IncidentType)
	}
	if len(rec.KeyEntities) != 2 || rec.KeyEntities[0] != "I-35" || rec.KeyEntities[1] != "Austin" {
		t.Errorf("key_entities = %v", rec.KeyEntities)
	}
	if rec.Location != "Austin" {
		t.Errorf("location = %q", rec.Location)
	}
	if rec.DateOfLoss != "" {
		t.Errorf("date_of_loss = %q, want empty for null", rec.DateOfLoss)
	}
	if rec.ConciseSummary == "" {
		t.Error("concise_summary empty")
	}
}

func TestDecodeIntake_Fenced(t *testing.T) {
	t.Parallel()

	raw := "```json\n{\"incident_type\":\"theft\",\"concise_summary\":\"stolen bike\"}\n```"
	rec, err := DecodeIntake(raw)
	if err != nil {
		t.Fatalf("DecodeIntake: %v", err)
	}
	if rec.IncidentType != "theft" {
		t.Errorf("incident_type = %q", rec.IncidentType)
	}
	if rec.KeyEntities == nil {
		t.Error("key_entities should default to empty, not nil")
	}
}

func TestDecodeIntake_MissingKey(t *testing.T) {
	t.Parallel()

	_, err := DecodeIntake(`{"incident_type":"collision"}`)
	var malformed *agents.MalformedResponseError
	if !errors.As(err, &malformed) {
		t.Fatalf("error = %v, want *MalformedResponseError", err)
	}
}

func TestDecodeTriage_Valid(t *testing.T) {
	t.Parallel()

	d, err := DecodeTriage(`{"severity":"LOW","fraud_risk":0.05,"route_to":"OPERATIONS","rationale":"Minor damage, no injuries, low risk."}`)
	if err != nil {
		t.Fatalf("DecodeTriage: %v", err)
	}
	if d.Severity != SeverityLow || d.RouteTo != RouteOperations || d.FraudRisk != 0.05 {
		t.Errorf("decoded = %+v", d)
	}
}

func TestDecodeTriage_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"bad severity":        `{"severity":"CATASTROPHIC","fraud_risk":0.5,"route_to":"SIU","rationale":"r"}`,
		"bad route":           `{"severity":"LOW","fraud_risk":0.5,"route_to":"LEGAL","rationale":"r"}`,
		"fraud_risk too high": `{"severity":"LOW","fraud_risk":1.5,"route_to":"SIU","rationale":"r"}`,
		"fraud_risk negative": `{"severity":"LOW","fraud_risk":-0.1,"route_to":"SIU","rationale":"r"}`,
		"missing rationale":   `{"severity":"LOW","fraud_risk":0.5,"route_to":"SIU"}`,
		"not json":            `severity LOW`,
	}

	for name, raw := range cases {
		if _, err := DecodeTriage(raw); err == nil {
			t.Errorf("%s: expected error", name)
		} else {
			var malformed *agents.MalformedResponseError
			if !errors.As(err, &malformed) {
				t.Errorf("%s: error type = %T", name, err)
			}
		}
	}
}

func TestDecodeProposal(t *testing.T) {
	t.Parallel()

	p, err := DecodeProposal(`{"sql":"SELECT 1","explanation":"trivial"}`)
	if err != nil {
		t.Fatalf("DecodeProposal: %v", err)
	}
	if p.SQL != "SELECT 1" {
		t.Errorf("sql = %q", p.SQL)
	}

	if _, err := DecodeProposal(`{"explanation":"no sql"}`); err == nil {
		t.Error("expected error for missing sql key")
	}
}
