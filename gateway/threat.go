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
	"net"
	"net/url"
	"strings"

	"shieldforce/platform/shared/detect"
	"shieldforce/platform/shared/types"
)

// Rule weights for the deterministic scorer.
const (
	weightDenylisted     = 70
	weightNotAllowlisted = 80
	weightEmailAPI       = 75
	weightSuspiciousTLD  = 15
	weightBlob           = 15
	weightBlobBanking    = 25
	weightLargePayload   = 20
	weightGetWithBody    = 10
	weightInternalIP     = 25
	weightPurpose        = 10

	// maxScore is both the clamp ceiling and the forced score for
	// secret and PII matches.
	maxScore = 100

	largePayloadBytes = 100000
	getBodyBytes      = 100
)

var suspiciousTLDs = []string{".tk", ".ml", ".ga", ".cf", ".gq"}

var suspiciousPurposeVerbs = []string{"backup", "export", "dump", "exfiltrate", "leak"}

// RuleResult is the outcome of the deterministic rule stage.
type RuleResult struct {
	Score   int
	Reasons []string
	// Forced marks a secret or PII match: the score is pinned to 100 and
	// behavioral scoring is skipped.
	Forced bool
	Host   string
}

// ThreatRules evaluates the deterministic rule set against one proxy
// request.
type ThreatRules struct {
	policy  NetworkPolicy
	banking bool
}

// NewThreatRules builds the rule engine for the given network policy.
func NewThreatRules(policy NetworkPolicy, banking bool) *ThreatRules {
	return &ThreatRules{policy: policy, banking: banking}
}

// Evaluate runs every rule. Secret and PII matches short-circuit to a
// forced score of 100; additive rules accumulate and are clamped later
// together with the behavioral contribution.
func (t *ThreatRules) Evaluate(req types.ProxyRequest) RuleResult {
	result := RuleResult{Host: hostOf(req.URL)}

	// Body content rules dominate everything else.
	if secrets := detect.DetectSecrets(req.Body); len(secrets) > 0 {
		result.Score = maxScore
		result.Forced = true
		result.Reasons = append(result.Reasons, "secret_pattern")
		for _, tag := range secrets {
			result.Reasons = append(result.Reasons, "secret:"+tag)
		}
		return result
	}
	if pii := detect.DetectSensitivePII(req.Body, t.banking); len(pii) > 0 {
		result.Score = maxScore
		result.Forced = true
		result.Reasons = append(result.Reasons, pii...)
		return result
	}

	host := result.Host

	if entry, ok := t.policy.Denylisted(host); ok {
		result.Score += weightDenylisted
		result.Reasons = append(result.Reasons, "denylisted_domain:"+entry)
	}
	if t.policy.Mode == ModeDenyByDefault && !t.policy.Allowlisted(host) {
		result.Score += weightNotAllowlisted
		result.Reasons = append(result.Reasons, "not_allowlisted")
	}
	if t.policy.EmailAPI(host) {
		result.Score += weightEmailAPI
		result.Reasons = append(result.Reasons, "email_api_blocked")
	}
	for _, tld := range suspiciousTLDs {
		if strings.HasSuffix(host, tld) {
			result.Score += weightSuspiciousTLD
			result.Reasons = append(result.Reasons, "suspicious_tld:"+tld)
			break
		}
	}

	if detect.ContainsBase64Blob(req.Body) {
		weight := weightBlob
		if t.banking {
			weight = weightBlobBanking
		}
		result.Score += weight
		result.Reasons = append(result.Reasons, "base64_blob")
	}
	if len(req.Body) > largePayloadBytes {
		result.Score += weightLargePayload
		result.Reasons = append(result.Reasons, "large_payload")
	}
	if strings.EqualFold(req.Method, "GET") && len(req.Body) > getBodyBytes {
		result.Score += weightGetWithBody
		result.Reasons = append(result.Reasons, "get_with_body")
	}
	if isInternalHost(host) {
		result.Score += weightInternalIP
		result.Reasons = append(result.Reasons, "internal_ip")
	}
	if verb := suspiciousPurpose(req.Purpose); verb != "" {
		result.Score += weightPurpose
		result.Reasons = append(result.Reasons, "suspicious_purpose:"+verb)
	}

	return result
}

// hostOf extracts the lowercase hostname, tolerating bare host strings.
func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}
	return strings.ToLower(parsed.Hostname())
}

// isInternalHost reports whether the destination is loopback or a private
// range. Only literal addresses and localhost are checked; the gateway
// does not resolve names during scoring.
func isInternalHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

func suspiciousPurpose(purpose string) string {
	lower := strings.ToLower(purpose)
	for _, verb := range suspiciousPurposeVerbs {
		if strings.Contains(lower, verb) {
			return verb
		}
	}
	return ""
}
