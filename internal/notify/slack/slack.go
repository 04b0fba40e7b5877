// Package slack sends triage decision notifications to Slack via
// incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/claimdesk/internal/claims"
)

const (
	maxRationaleLen = 3000
	httpTimeout     = 10 * time.Second
)

// Notifier sends triage outcomes to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Send posts a triage outcome to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, out *claims.TriageOutcome) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(out)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(out *claims.TriageOutcome) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(out),
			{"type": "divider"},
			fieldsBlock(out),
			{"type": "divider"},
			rationaleBlock(out),
			{"type": "divider"},
			contextBlock(out),
		},
	}
}

func headerBlock(out *claims.TriageOutcome) map[string]any {
	emoji := severityEmoji(out.Decision.Severity)
	title := "Claim Triaged"
	if out.Decision.RouteTo == claims.RouteSIU {
		title = "Claim Routed to SIU"
	}
	text := fmt.Sprintf("%s %s: claim %d", emoji, title, out.ClaimID)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(out *claims.TriageOutcome) map[string]any {
	route := string(out.Decision.RouteTo)
	if out.Overridden {
		route += " (overridden)"
	}

	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Severity:* %s", out.Decision.Severity),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Fraud risk:* %.2f", out.Decision.FraudRisk),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Route:* %s", route),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Incident:* %s", out.Intake.IncidentType),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func rationaleBlock(out *claims.TriageOutcome) map[string]any {
	text := truncate(out.Decision.Rationale, maxRationaleLen)
	if text == "" {
		text = "_No rationale available._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Rationale*\n\n%s", text),
		},
	}
}

func contextBlock(out *claims.TriageOutcome) map[string]any {
	ts := out.Decision.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("claimdesk • run %s • %s", out.RunID, ts.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func severityEmoji(severity claims.Severity) string {
	switch severity {
	case claims.SeverityHigh:
		return "\U0001f534" // red circle
	case claims.SeverityMedium:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
