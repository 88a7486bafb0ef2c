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

package agent

import (
	"regexp"
	"strconv"
	"strings"
)

// Intent is the small set of request classes the adapter dispatches on.
type Intent string

const (
	IntentPayment        Intent = "payment"
	IntentAccountInquiry Intent = "account_inquiry"
	IntentPaylink        Intent = "paylink"
	IntentFetch          Intent = "fetch"
	IntentChat           Intent = "chat"
)

// RequiredTool maps each intent to the capability tool it needs. Chat needs
// none; the model call itself is mediated by the gateway.
func (i Intent) RequiredTool() string {
	switch i {
	case IntentPayment:
		return "payments.create"
	case IntentAccountInquiry:
		return "accounts.read"
	case IntentPaylink:
		return "paylinks.create"
	case IntentFetch:
		return "http.fetch"
	default:
		return ""
	}
}

var (
	fetchPattern = regexp.MustCompile(`(?i)FETCH\s+(https?://\S+)`)
	// "with api_key=..." style trailing content becomes the fetch body.
	fetchBodyPattern = regexp.MustCompile(`(?i)with\s+(.+)`)

	amountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$([0-9,]+(?:\.[0-9]{2})?)`),
		regexp.MustCompile(`(?i)([0-9,]+(?:\.[0-9]{2})?)\s*(?:USD|dollars?)`),
		regexp.MustCompile(`([0-9,]+(?:\.[0-9]{2})?)\s*\$`),
	}
	payeePattern = regexp.MustCompile(`(?i)\b(?:to|pay)\s+([A-Za-z][A-Za-z0-9&\-. ]+)`)
)

var paymentPhrases = []string{
	"wire", "transfer", "send money", "pay", "payment",
}

var accountPhrases = []string{
	"balance", "account", "transactions", "statement", "recent activity",
}

var paylinkPhrases = []string{
	"paylink", "payment link", "pay link", "link to pay",
}

// ParseIntent classifies sanitized user text. Order matters: an explicit
// FETCH always wins, and paylink phrases are checked before the broader
// payment vocabulary they overlap with.
func ParseIntent(userText string) Intent {
	lower := strings.ToLower(userText)

	if fetchPattern.MatchString(userText) {
		return IntentFetch
	}
	for _, phrase := range paylinkPhrases {
		if strings.Contains(lower, phrase) {
			return IntentPaylink
		}
	}
	for _, phrase := range paymentPhrases {
		if strings.Contains(lower, phrase) {
			return IntentPayment
		}
	}
	for _, phrase := range accountPhrases {
		if strings.Contains(lower, phrase) {
			return IntentAccountInquiry
		}
	}
	return IntentChat
}

// ExtractFetchURL returns the FETCH target, or "" when absent.
func ExtractFetchURL(userText string) string {
	if m := fetchPattern.FindStringSubmatch(userText); m != nil {
		return m[1]
	}
	return ""
}

// ExtractFetchBody returns trailing "with ..." content used as the fetch
// body, or "".
func ExtractFetchBody(userText string) string {
	if m := fetchBodyPattern.FindStringSubmatch(userText); m != nil {
		return m[1]
	}
	return ""
}

// PaymentDetails is what the keyword parser could pull out of the text.
type PaymentDetails struct {
	Amount    float64
	HasAmount bool
	Payee     string
	Currency  string
}

// ExtractPaymentDetails pulls amount and payee out of a payment-intent text.
// This is deliberately heuristic; validation happens against policy.
func ExtractPaymentDetails(userText string) PaymentDetails {
	details := PaymentDetails{Currency: "USD"}

	for _, pattern := range amountPatterns {
		if m := pattern.FindStringSubmatch(userText); m != nil {
			raw := strings.ReplaceAll(m[1], ",", "")
			if amount, err := strconv.ParseFloat(raw, 64); err == nil {
				details.Amount = amount
				details.HasAmount = true
				break
			}
		}
	}

	if m := payeePattern.FindStringSubmatch(userText); m != nil {
		payee := strings.TrimSpace(m[1])
		// Cut at connective words that follow the name.
		for _, stop := range []string{" for ", " with ", " from ", " via "} {
			if idx := strings.Index(strings.ToLower(payee), stop); idx > 0 {
				payee = payee[:idx]
			}
		}
		details.Payee = strings.Trim(payee, " .,!?")
	}

	return details
}
