// Copyright 2025 ShieldForce AI
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"shieldforce/platform/shared/journal"
)

const (
	complianceTailLimit  = 1000
	complianceReportRows = 50

	healthMultiplier        = 0.2
	healthMultiplierBanking = 0.3
)

// Incident is one BLOCK or QUARANTINE decision read back from the
// incidents journal.
type Incident struct {
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id"`
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	Score     int       `json:"score"`
	Reasons   []string  `json:"reasons"`
}

// ComplianceReporter reduces the incidents journal into the health score
// and the HTML evidence pack. The view is pure over the journal contents.
type ComplianceReporter struct {
	incidents  *journal.Journal
	quarantine *QuarantineSet
	behavior   *BehaviorEngine
	policy     NetworkPolicy
	banking    bool
}

// NewComplianceReporter wires a reporter over the gateway's stores.
func NewComplianceReporter(incidents *journal.Journal, quarantine *QuarantineSet, behavior *BehaviorEngine, policy NetworkPolicy, banking bool) *ComplianceReporter {
	return &ComplianceReporter{
		incidents:  incidents,
		quarantine: quarantine,
		behavior:   behavior,
		policy:     policy,
		banking:    banking,
	}
}

// TailIncidents reads the most recent incidents, newest last.
func (c *ComplianceReporter) TailIncidents(max int) []Incident {
	if max <= 0 || max > complianceTailLimit {
		max = complianceTailLimit
	}

	entries := c.incidents.Tail(max)
	incidents := make([]Incident, 0, len(entries))
	for _, entry := range entries {
		incident := Incident{Timestamp: journal.ParseTimestamp(entry)}
		incident.AgentID, _ = entry["agent_id"].(string)
		incident.URL, _ = entry["url"].(string)
		incident.Status, _ = entry["status"].(string)
		if score, ok := entry["score"].(float64); ok {
			incident.Score = int(score)
		}
		if raw, ok := entry["reasons"].([]interface{}); ok {
			for _, r := range raw {
				if s, ok := r.(string); ok {
					incident.Reasons = append(incident.Reasons, s)
				}
			}
		}
		incidents = append(incidents, incident)
	}
	return incidents
}

// HealthScore starts at 100 and subtracts (score-40) x the profile
// multiplier for every incident above 40 within the last 24 hours,
// clamped to [0, 100].
func (c *ComplianceReporter) HealthScore(incidents []Incident, now time.Time) float64 {
	mult := healthMultiplier
	if c.banking {
		mult = healthMultiplierBanking
	}

	score := 100.0
	cutoff := now.Add(-24 * time.Hour)
	for _, incident := range incidents {
		if incident.Timestamp.Before(cutoff) {
			continue
		}
		if incident.Score > 40 {
			score -= float64(incident.Score-40) * mult
		}
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// Summary is the metric set surfaced by /health and the evidence pack.
type Summary struct {
	HealthScore    float64
	Incidents24h   int
	AgentsObserved int
	Quarantined    int
}

// Summarize computes the current metric set.
func (c *ComplianceReporter) Summarize(now time.Time) Summary {
	incidents := c.TailIncidents(complianceTailLimit)

	recent := 0
	cutoff := now.Add(-24 * time.Hour)
	for _, incident := range incidents {
		if !incident.Timestamp.Before(cutoff) {
			recent++
		}
	}

	return Summary{
		HealthScore:    c.HealthScore(incidents, now),
		Incidents24h:   recent,
		AgentsObserved: c.behavior.AgentCount(),
		Quarantined:    c.quarantine.Len(),
	}
}

// frameworks lists the attestation statements embedded in the evidence
// pack. The statements describe controls this gateway actually implements.
var frameworks = []struct {
	Name      string
	Statement string
}{
	{"NIS2", "Outbound traffic from autonomous agents is continuously monitored, risk-scored, and logged to an append-only incident record. High-risk flows are blocked automatically."},
	{"DORA", "ICT third-party data flows are mediated by a policy-enforcing egress gateway with automated containment (quarantine) of anomalous agents."},
	{"SOC 2 Type II", "Logical access to external services is restricted by capability tokens and network policy. Security events are captured in tamper-evident append-only journals."},
	{"ISO 27001", "A.8.16 monitoring activities and A.8.23 web filtering are implemented via deterministic threat rules and per-agent behavioral baselines."},
	{"GDPR", "Personal data patterns (PAN, SSN, IBAN) are detected in outbound payloads and blocked before leaving the trust boundary."},
}

var reportTemplate = template.Must(template.New("evidence").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>ShieldForce Compliance Evidence Pack</title>
<style>
  body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 2rem; color: #1a1a2e; }
  h1 { border-bottom: 3px solid #16213e; padding-bottom: .5rem; }
  .grid { display: flex; gap: 1.5rem; margin: 1.5rem 0; }
  .card { border: 1px solid #ccc; border-radius: 8px; padding: 1rem 1.5rem; min-width: 10rem; text-align: center; }
  .card .value { font-size: 2rem; font-weight: 700; }
  table { border-collapse: collapse; width: 100%; margin: 1rem 0; }
  th, td { border: 1px solid #ddd; padding: .4rem .6rem; text-align: left; font-size: .85rem; }
  th { background: #16213e; color: #fff; }
  .status-BLOCK { color: #c0392b; font-weight: 600; }
  .status-QUARANTINE { color: #8e44ad; font-weight: 600; }
  .attestation { border-left: 4px solid #16213e; padding-left: 1rem; margin: 1rem 0; }
</style>
</head>
<body>
<h1>ShieldForce Compliance Evidence Pack</h1>
<p>Generated: {{.GeneratedAt}} &middot; Profile: {{.Profile}}</p>

<div class="grid">
  <div class="card"><div class="value">{{printf "%.1f" .Summary.HealthScore}}</div><div>Health score</div></div>
  <div class="card"><div class="value">{{.Summary.Incidents24h}}</div><div>Incidents (24h)</div></div>
  <div class="card"><div class="value">{{.Summary.AgentsObserved}}</div><div>Agents observed</div></div>
  <div class="card"><div class="value">{{.Summary.Quarantined}}</div><div>Quarantined</div></div>
</div>

<h2>Recent incidents</h2>
{{if .Incidents}}
<table>
<tr><th>Time (UTC)</th><th>Agent</th><th>Destination</th><th>Decision</th><th>Score</th><th>Reasons</th></tr>
{{range .Incidents}}
<tr>
  <td>{{.Timestamp.UTC.Format "2006-01-02 15:04:05"}}</td>
  <td>{{.AgentID}}</td>
  <td>{{.URL}}</td>
  <td class="status-{{.Status}}">{{.Status}}</td>
  <td>{{.Score}}</td>
  <td>{{range $i, $r := .Reasons}}{{if $i}}, {{end}}{{$r}}{{end}}</td>
</tr>
{{end}}
</table>
{{else}}
<p>No incidents recorded.</p>
{{end}}

<h2>Quarantined agents</h2>
{{if .Quarantined}}
<table>
<tr><th>Agent</th><th>Quarantined since (UTC)</th></tr>
{{range .Quarantined}}
<tr><td>{{.AgentID}}</td><td>{{.Since.UTC.Format "2006-01-02 15:04:05"}}</td></tr>
{{end}}
</table>
{{else}}
<p>No agents currently quarantined.</p>
{{end}}

<h2>Enforced network denylist</h2>
<table>
<tr><th>Blocked destination</th></tr>
{{range .Denylist}}<tr><td>{{.}}</td></tr>{{end}}
</table>

<h2>Framework attestations</h2>
{{range .Frameworks}}
<div class="attestation"><strong>{{.Name}}</strong><p>{{.Statement}}</p></div>
{{end}}

</body>
</html>
`))

type reportData struct {
	GeneratedAt string
	Profile     string
	Summary     Summary
	Incidents   []Incident
	Quarantined []QuarantineEntry
	Denylist    []string
	Frameworks  []struct {
		Name      string
		Statement string
	}
}

// RenderHTML produces the self-contained evidence pack. Regenerating on
// the same journal contents yields identical output modulo the render
// timestamp.
func (c *ComplianceReporter) RenderHTML(now time.Time) ([]byte, error) {
	incidents := c.TailIncidents(complianceTailLimit)

	rows := incidents
	if len(rows) > complianceReportRows {
		rows = rows[len(rows)-complianceReportRows:]
	}
	// Newest first for display.
	reversed := make([]Incident, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		reversed = append(reversed, rows[i])
	}

	profile := "standard"
	if c.banking {
		profile = "banking"
	}

	data := reportData{
		GeneratedAt: now.UTC().Format("2006-01-02 15:04:05 UTC"),
		Profile:     profile,
		Summary:     c.Summarize(now),
		Incidents:   reversed,
		Quarantined: c.quarantine.Entries(),
		Denylist:    c.policy.Denylist,
		Frameworks:  frameworks,
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render evidence pack: %w", err)
	}
	return buf.Bytes(), nil
}
