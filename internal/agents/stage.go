// Package agents defines the prompt stages of the claim pipeline and the
// parsing of their JSON responses. A stage is one templated completion
// call: named inputs are substituted into the template, the completion
// client is invoked, and the raw text is returned for parsing.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/linnemanlabs/claimdesk/internal/llm"
)

// Stage is a named prompt template plus its execution parameters.
type Stage struct {
	name     string
	template string
	params   llm.Params
}

// Name returns the stage name, used in logs and metrics labels.
func (s *Stage) Name() string { return s.name }

// Run substitutes inputs into the template placeholders ({{$key}}) and
// calls the completion client. It returns the raw model text; decoding is
// the caller's concern. Only the template is scanned for placeholders, so
// substituted input text containing {{$ passes through literally.
func (s *Stage) Run(ctx context.Context, client llm.Client, inputs map[string]string) (string, error) {
	prompt := s.template
	for _, key := range placeholders(s.template) {
		val, ok := inputs[key]
		if !ok {
			return "", fmt.Errorf("stage %s: unbound placeholder {{$%s}}", s.name, key)
		}
		prompt = strings.ReplaceAll(prompt, "{{$"+key+"}}", val)
	}

	return client.Complete(ctx, prompt, s.params)
}

// placeholders returns the {{$key}} names in template, in order.
func placeholders(template string) []string {
	var keys []string
	rest := template
	for {
		i := strings.Index(rest, "{{$")
		if i < 0 {
			return keys
		}
		rest = rest[i+3:]
		end := strings.Index(rest, "}}")
		if end < 0 {
			return keys
		}
		keys = append(keys, rest[:end])
		rest = rest[end+2:]
	}
}

const intakeSystem = `You are IntakeAgent. Normalize a raw insurance claim note.
Extract: incident_type, key_entities, location (if any), date_of_loss (if present), concise_summary (1-2 sentences).
Respond ONLY with a JSON object containing those keys (no code fences or extra text).`

// NewIntake builds the stage that normalizes a raw claim note into a
// structured intake record.
func NewIntake() *Stage {
	return &Stage{
		name:     "intake",
		template: intakeSystem + "\nUser note:\n{{$input}}\nJSON:",
		params:   llm.Params{Temperature: 0.2},
	}
}

const triageSystem = `You are TriageAgent for an insurer. Score severity and fraud_risk based on summary and context.
- severity must be one of LOW, MEDIUM, HIGH
- fraud_risk is a number between 0 and 1
- route_to must be OPERATIONS or SIU
Explain your reasoning in 'rationale'.
Return JSON with keys: severity, fraud_risk, route_to, rationale.
Be conservative; route to SIU if fraud_risk >= 0.65.`

// NewTriage builds the stage that scores a normalized claim summary
// against retrieved context.
func NewTriage() *Stage {
	return &Stage{
		name:     "triage",
		template: triageSystem + "\nSummary:\n{{$summary}}\nContext:\n{{$context}}\nJSON:",
		params:   llm.Params{Temperature: 0.1},
	}
}

const sqlSystem = `You are SqlAgent. Convert a natural-language question into a single, safe, read-only SQL query for PostgreSQL.
Rules:
- Only SELECT statements. Never UPDATE/INSERT/DELETE/DROP/ALTER/TRUNCATE.
- Prefer explicit column names.
- Use LIMIT for large outputs.
- Use CURRENT_DATE and date arithmetic where needed.
Return JSON: {"sql": "...", "explanation": "..."}.`

// NewSQL builds the natural-language-to-SQL stage. The schema hint is
// baked into the template at construction time, not per call.
func NewSQL(schemaHint string) *Stage {
	return &Stage{
		name:     "nl2sql",
		template: sqlSystem + "\n\nSchema:\n" + schemaHint + "\n\nQuestion: {{$input}}\nJSON:",
		params:   llm.Params{Temperature: 0.1},
	}
}
