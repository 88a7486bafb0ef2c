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

package broker

import (
	"context"
	"strings"
	"time"

	"shieldforce/platform/shared/detect"
)

// Firewall block reasons.
const (
	ReasonPayloadTooLarge     = "payload_too_large"
	ReasonInstructionOverride = "instruction_override"
	ReasonHTMLInjection       = "html_injection"
	ReasonPANInChat           = "pan_in_chat"
	ReasonSemanticInjection   = "semantic_injection"
)

// PANRemediationMessage is returned to the caller on a pan_in_chat block.
const PANRemediationMessage = "For your security, never share full card numbers or " +
	"security codes in chat. Ask for a secure payment link instead."

// MaxPayloadSize is the ingress payload ceiling in bytes.
const MaxPayloadSize = 10000

// DefaultClassifyBudget is the soft deadline for the semantic classifier.
// On timeout the input is deemed safe: availability over completeness, the
// timeout is journaled so downstream defenses can react.
const DefaultClassifyBudget = 2000 * time.Millisecond

var blockedMarkupTags = []string{"<script>", "<iframe>", "<object>", "<embed>"}

// ClassifyResult is the semantic classifier verdict.
type ClassifyResult struct {
	IsSafe     bool
	Confidence float64
	Elapsed    time.Duration
}

// Classifier is the pluggable semantic layer. Absence degrades the firewall
// to regex-only mode.
type Classifier interface {
	Classify(ctx context.Context, text string) (ClassifyResult, error)
}

// SemanticOutcome records what the semantic layer did for one check, for
// journaling.
type SemanticOutcome struct {
	Confidence      float64
	InferenceMillis float64
	TimedOut        bool
}

// CheckResult is the outcome of a firewall pass.
type CheckResult struct {
	Blocked    bool
	Reason     string
	Matched    string // matched phrase or tag, internal logs only
	Sanitized  string
	Redactions []string
	Semantic   *SemanticOutcome
}

// Firewall is the layered ingress prompt check. Layers run in order and the
// first that blocks wins; secret redaction never blocks.
type Firewall struct {
	MaxPayloadSize int
	BankingMode    bool
	Classifier     Classifier
	ClassifyBudget time.Duration
	// Threshold is the minimum classifier confidence on an unsafe verdict
	// required to block.
	Threshold float64
}

// NewFirewall builds a firewall with the standard ceilings. classifier may
// be nil.
func NewFirewall(bankingMode bool, classifier Classifier) *Firewall {
	return &Firewall{
		MaxPayloadSize: MaxPayloadSize,
		BankingMode:    bankingMode,
		Classifier:     classifier,
		ClassifyBudget: DefaultClassifyBudget,
		Threshold:      0.5,
	}
}

// Check runs every layer over userText and returns either a block or the
// sanitized text with redaction tags.
func (f *Firewall) Check(ctx context.Context, userText string) CheckResult {
	// Layer 1: payload ceiling.
	if len(userText) > f.MaxPayloadSize {
		return CheckResult{Blocked: true, Reason: ReasonPayloadTooLarge}
	}

	// Layer 2: instruction-override lexicon.
	if hit, phrase := detect.ContainsJailbreak(userText); hit {
		return CheckResult{Blocked: true, Reason: ReasonInstructionOverride, Matched: phrase}
	}

	// Layer 3: markup tag denylist.
	lower := strings.ToLower(userText)
	for _, tag := range blockedMarkupTags {
		if strings.Contains(lower, tag) {
			return CheckResult{Blocked: true, Reason: ReasonHTMLInjection, Matched: tag}
		}
	}

	// Layer 4: regulated financial data. Runs before the semantic layer so
	// card data never reaches any downstream model.
	if f.BankingMode {
		if pans := detect.DetectPANs(userText); len(pans) > 0 {
			return CheckResult{Blocked: true, Reason: ReasonPANInChat, Matched: "pan"}
		}
		if cvvs := detect.DetectCVVs(userText); len(cvvs) > 0 {
			return CheckResult{Blocked: true, Reason: ReasonPANInChat, Matched: "cvv"}
		}
	}

	// Layer 5: optional semantic classifier, fail-open on timeout.
	var semantic *SemanticOutcome
	if f.Classifier != nil {
		budget := f.ClassifyBudget
		if budget <= 0 {
			budget = DefaultClassifyBudget
		}
		cctx, cancel := context.WithTimeout(ctx, budget)
		result, err := f.Classifier.Classify(cctx, userText)
		cancel()

		switch {
		case err != nil:
			semantic = &SemanticOutcome{TimedOut: true}
		case !result.IsSafe && result.Confidence >= f.Threshold:
			return CheckResult{
				Blocked: true,
				Reason:  ReasonSemanticInjection,
				Semantic: &SemanticOutcome{
					Confidence:      result.Confidence,
					InferenceMillis: float64(result.Elapsed) / float64(time.Millisecond),
				},
			}
		default:
			semantic = &SemanticOutcome{
				Confidence:      result.Confidence,
				InferenceMillis: float64(result.Elapsed) / float64(time.Millisecond),
			}
		}
	}

	// Layer 6: secret redaction. Never blocks.
	sanitized, redactions := f.Sanitize(userText)

	return CheckResult{
		Sanitized:  sanitized,
		Redactions: redactions,
		Semantic:   semantic,
	}
}

// Sanitize masks secrets (and banking data in banking mode) and returns the
// masked text plus redaction tags. Idempotent.
func (f *Firewall) Sanitize(userText string) (string, []string) {
	sanitized, redactions := detect.MaskSecrets(userText)
	if f.BankingMode {
		var bankingTags []string
		sanitized, bankingTags = detect.RedactBankingData(sanitized)
		redactions = append(redactions, bankingTags...)
	}
	return sanitized, redactions
}
