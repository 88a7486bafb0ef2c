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

package detect

import (
	"regexp"
	"strings"
)

// PII-family tags used by the egress scanner. Any match forces the score
// to 100.
const (
	PIIMatchPAN        = "pii_match_pan"
	PIIMatchSSN        = "pii_match_ssn"
	PIIMatchIBAN       = "pii_match_iban"
	PIIMatchPrivateKey = "pii_match_privkey"
)

var (
	panGroupedPattern    = regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{1,4}\b`)
	panContiguousPattern = regexp.MustCompile(`\b\d{13,19}\b`)
	nonDigitPattern      = regexp.MustCompile(`\D`)

	cvvPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bcvv\s*:?\s*(\d{3,4})\b`),
		regexp.MustCompile(`(?i)\bcvc\s*:?\s*(\d{3,4})\b`),
		regexp.MustCompile(`(?i)\bsecurity\s+code\s*:?\s*(\d{3,4})\b`),
	}

	ssnDashedPattern = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	// Nine consecutive digits have a high false-positive rate; matches are
	// filtered by prefix below and the shape only participates in banking
	// profiles.
	ssnBarePattern = regexp.MustCompile(`\b\d{9}\b`)

	ibanPattern = regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{4,30}\b`)

	privateKeyBlockPattern = regexp.MustCompile(`(?s)-----BEGIN [A-Z ]+PRIVATE KEY-----.*?-----END [A-Z ]+PRIVATE KEY-----`)
)

// LuhnValid runs the modulo-10 checksum over the digits of s after stripping
// separators. Shapes outside 13-19 digits fail immediately.
func LuhnValid(s string) bool {
	digits := nonDigitPattern.ReplaceAllString(s, "")
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	total := 0
	for i := 0; i < len(digits); i++ {
		n := int(digits[len(digits)-1-i] - '0')
		if i%2 == 1 {
			n *= 2
			if n > 9 {
				n = n/10 + n%10
			}
		}
		total += n
	}
	return total%10 == 0
}

// DetectPANs returns every Luhn-valid card-number shape in text, digits only.
func DetectPANs(text string) []string {
	var pans []string
	seen := make(map[string]bool)
	for _, pattern := range []*regexp.Regexp{panGroupedPattern, panContiguousPattern} {
		for _, match := range pattern.FindAllString(text, -1) {
			digits := nonDigitPattern.ReplaceAllString(match, "")
			if LuhnValid(digits) && !seen[digits] {
				seen[digits] = true
				pans = append(pans, digits)
			}
		}
	}
	return pans
}

// DetectCVVs returns explicitly labeled 3-4 digit verification codes.
func DetectCVVs(text string) []string {
	var cvvs []string
	for _, pattern := range cvvPatterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			cvvs = append(cvvs, match[1])
		}
	}
	return cvvs
}

// DetectSSNs returns SSN-shaped matches. The bare 9-digit shape rejects the
// 000 and 666 prefixes, as the dashed shape is the only reliable one.
func DetectSSNs(text string) []string {
	var ssns []string
	ssns = append(ssns, ssnDashedPattern.FindAllString(text, -1)...)
	for _, match := range ssnBarePattern.FindAllString(text, -1) {
		if strings.HasPrefix(match, "000") || strings.HasPrefix(match, "666") {
			continue
		}
		ssns = append(ssns, match)
	}
	return ssns
}

// DetectIBANs returns IBAN-shaped matches: 2-letter country, 2-digit
// checksum, 11-30 alphanumeric, total length 15-34.
func DetectIBANs(text string) []string {
	var ibans []string
	for _, match := range ibanPattern.FindAllString(text, -1) {
		if len(match) >= 15 && len(match) <= 34 {
			ibans = append(ibans, match)
		}
	}
	return ibans
}

// DetectSensitivePII scans body text for the regulated-data families and
// returns their tags. The bare-SSN and IBAN shapes only fire in banking
// mode; the dashed SSN and Luhn-valid PAN always do.
func DetectSensitivePII(text string, banking bool) []string {
	var tags []string
	if len(DetectPANs(text)) > 0 {
		tags = append(tags, PIIMatchPAN)
	}
	if banking {
		if len(DetectSSNs(text)) > 0 {
			tags = append(tags, PIIMatchSSN)
		}
		if len(DetectIBANs(text)) > 0 {
			tags = append(tags, PIIMatchIBAN)
		}
	} else if ssnDashedPattern.MatchString(text) {
		tags = append(tags, PIIMatchSSN)
	}
	if privateKeyBlockPattern.MatchString(text) {
		tags = append(tags, PIIMatchPrivateKey)
	}
	return tags
}

// RedactBankingData masks PANs, CVVs and SSNs in text, returning the masked
// text plus the redaction families applied. PANs keep their first and last
// four digits for traceability.
func RedactBankingData(text string) (string, []string) {
	redacted := text
	var redactions []string

	if pans := DetectPANs(text); len(pans) > 0 {
		redactions = append(redactions, "pan")
		for _, pan := range pans {
			masked := pan
			if len(pan) >= 8 {
				masked = pan[:4] + strings.Repeat("*", len(pan)-8) + pan[len(pan)-4:]
			} else {
				masked = strings.Repeat("*", len(pan))
			}
			redacted = replacePANOccurrences(redacted, pan, "[REDACTED-PAN:"+masked+"]")
		}
	}

	if cvvs := DetectCVVs(text); len(cvvs) > 0 {
		redactions = append(redactions, "cvv")
		for _, pattern := range cvvPatterns {
			redacted = pattern.ReplaceAllString(redacted, "[REDACTED-CVV]")
		}
	}

	if ssns := DetectSSNs(text); len(ssns) > 0 {
		redactions = append(redactions, "ssn")
		for _, ssn := range ssns {
			redacted = strings.ReplaceAll(redacted, ssn, "[REDACTED-SSN]")
		}
	}

	return redacted, redactions
}

// replacePANOccurrences replaces every formatting variant of a detected PAN
// (plain, dashed, spaced) with the replacement token.
func replacePANOccurrences(text, pan, replacement string) string {
	for _, pattern := range []*regexp.Regexp{panGroupedPattern, panContiguousPattern} {
		text = pattern.ReplaceAllStringFunc(text, func(match string) string {
			if nonDigitPattern.ReplaceAllString(match, "") == pan {
				return replacement
			}
			return match
		})
	}
	return text
}
