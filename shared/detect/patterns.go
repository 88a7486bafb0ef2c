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

// Package detect holds the shared detection vocabulary: secret patterns,
// prompt-injection phrases, and the banking detectors (PAN, CVV, SSN, IBAN).
// Both the ingress firewall and the egress scanner build on this package so
// the two choke points never disagree about what counts as sensitive.
package detect

import (
	"regexp"
	"strings"
)

// JailbreakPhrases is the instruction-override lexicon. Matching is
// case-insensitive substring; the first hit blocks the request.
var JailbreakPhrases = []string{
	"ignore previous instructions",
	"ignore previous",
	"ignore all previous",
	"disregard previous",
	"forget previous",
	"reveal system prompt",
	"show system prompt",
	"print system prompt",
	"system prompt",
	"show config",
	"dump memory",
	"print your instructions",
	"what are your instructions",
	"disable safety",
	"bypass",
	"jailbreak",
	"sudo mode",
	"developer mode",
	"god mode",
	"admin mode",
	"root access",
}

var (
	// AWSKeyPattern matches AWS access key IDs.
	AWSKeyPattern = regexp.MustCompile(`AKIA[0-9A-Z]{16}`)

	// APIKeyPattern matches generic key/token/secret/password assignments
	// with values of at least 12 characters.
	APIKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password)\s*[:=]\s*["']?([A-Za-z0-9_\-]{12,})["']?`)

	// PEMPattern matches PEM private-key headers.
	PEMPattern = regexp.MustCompile(`-----BEGIN (?:RSA )?PRIVATE KEY-----`)

	// JWTPattern matches JWT-shaped base64url triplets.
	JWTPattern = regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`)

	// Base64BlobPattern matches large contiguous base64 runs, a common shape
	// for encoded exfiltration payloads.
	Base64BlobPattern = regexp.MustCompile(`[A-Za-z0-9+/]{200,}={0,2}`)
)

// Redaction tags returned by MaskSecrets.
const (
	TagAWSKey     = "aws_key"
	TagAPIKey     = "api_key"
	TagPrivateKey = "private_key"
	TagJWT        = "jwt_token"
)

// Secret-family tags returned by DetectSecrets (egress naming).
const (
	SecretAWSAccessKey  = "aws_access_key"
	SecretAPIKey        = "api_key"
	SecretPEMPrivateKey = "pem_private_key"
	SecretJWTToken      = "jwt_token"
)

// ContainsJailbreak reports whether text contains an instruction-override
// phrase and returns the first matched phrase.
func ContainsJailbreak(text string) (bool, string) {
	lower := strings.ToLower(text)
	for _, phrase := range JailbreakPhrases {
		if strings.Contains(lower, phrase) {
			return true, phrase
		}
	}
	return false, ""
}

// MaskSecrets replaces every secret-family match in text with a fixed token
// and returns the masked text plus the list of redaction tags applied.
// Masking is idempotent: the replacement tokens do not re-match any pattern.
func MaskSecrets(text string) (string, []string) {
	var redactions []string
	masked := text

	if AWSKeyPattern.MatchString(masked) {
		masked = AWSKeyPattern.ReplaceAllString(masked, "[REDACTED_AWS_KEY]")
		redactions = append(redactions, TagAWSKey)
	}
	if APIKeyPattern.MatchString(masked) {
		masked = APIKeyPattern.ReplaceAllString(masked, "$1=[REDACTED_API_KEY]")
		redactions = append(redactions, TagAPIKey)
	}
	if PEMPattern.MatchString(masked) {
		masked = PEMPattern.ReplaceAllString(masked, "[REDACTED_PRIVATE_KEY]")
		redactions = append(redactions, TagPrivateKey)
	}
	if JWTPattern.MatchString(masked) {
		masked = JWTPattern.ReplaceAllString(masked, "[REDACTED_JWT]")
		redactions = append(redactions, TagJWT)
	}
	return masked, redactions
}

// DetectSecrets scans text for secret-family matches and returns the tags of
// every family found. Any non-empty result forces an egress score of 100.
func DetectSecrets(text string) []string {
	var found []string
	if AWSKeyPattern.MatchString(text) {
		found = append(found, SecretAWSAccessKey)
	}
	if APIKeyPattern.MatchString(text) {
		found = append(found, SecretAPIKey)
	}
	if PEMPattern.MatchString(text) {
		found = append(found, SecretPEMPrivateKey)
	}
	if JWTPattern.MatchString(text) {
		found = append(found, SecretJWTToken)
	}
	return found
}

// ContainsBase64Blob reports whether text carries a base64 run of at least
// 200 characters.
func ContainsBase64Blob(text string) bool {
	return Base64BlobPattern.MatchString(text)
}
