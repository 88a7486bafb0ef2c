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
	"strings"

	"shieldforce/platform/shared/types"
)

// PaymentIntentDetector classifies sanitized user text as a payment intent.
// The default is a keyword check; a stronger detector can be substituted
// without touching the pipeline.
type PaymentIntentDetector func(userText string) bool

var paymentKeywords = []string{
	"wire", "transfer", "send money", "pay", "payment",
	"send $", "wire $", "transfer $", "pay $",
}

// KeywordPaymentIntent is the default detector.
func KeywordPaymentIntent(userText string) bool {
	lower := strings.ToLower(userText)
	for _, keyword := range paymentKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// PaymentBudgets is the reduced resource ceiling applied to payment-intent
// invocations.
func PaymentBudgets() types.Budgets {
	return types.Budgets{MaxTokens: 800, MaxToolCalls: 2}
}

// NarrowToPaymentTools intersects the requested tools with the payment
// subset from policy. A payment-intent invocation never gets tools outside
// that subset, even if the caller requested them.
func NarrowToPaymentTools(requested, paymentTools []string) []string {
	allowed := make(map[string]bool, len(paymentTools))
	for _, t := range paymentTools {
		allowed[t] = true
	}
	var narrowed []string
	for _, t := range requested {
		if allowed[t] {
			narrowed = append(narrowed, t)
		}
	}
	// The payment tool itself is always granted so the agent can act on the
	// intent under the attached policy.
	if !containsTool(narrowed, "payments.create") && allowed["payments.create"] {
		narrowed = append(narrowed, "payments.create")
	}
	return narrowed
}

func containsTool(tools []string, tool string) bool {
	for _, t := range tools {
		if t == tool {
			return true
		}
	}
	return false
}
