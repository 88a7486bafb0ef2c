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
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Intent Classification
// =============================================================================

func TestParseIntent(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Intent
	}{
		{"explicit fetch", "FETCH https://example.com/data", IntentFetch},
		{"fetch lowercase", "fetch http://example.com", IntentFetch},
		{"fetch wins over payment", "FETCH https://x.com and pay later", IntentFetch},
		{"payment transfer", "transfer $500 to ACME", IntentPayment},
		{"payment wire", "wire 1000 dollars to Utilities Co", IntentPayment},
		{"paylink before payment", "create a payment link for $50", IntentPaylink},
		{"account balance", "what is my balance?", IntentAccountInquiry},
		{"transactions", "show my recent activity", IntentAccountInquiry},
		{"chat fallback", "tell me a joke", IntentChat},
		{"empty", "", IntentChat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseIntent(tt.text))
		})
	}
}

func TestIntent_RequiredTool(t *testing.T) {
	assert.Equal(t, "payments.create", IntentPayment.RequiredTool())
	assert.Equal(t, "accounts.read", IntentAccountInquiry.RequiredTool())
	assert.Equal(t, "paylinks.create", IntentPaylink.RequiredTool())
	assert.Equal(t, "http.fetch", IntentFetch.RequiredTool())
	assert.Equal(t, "", IntentChat.RequiredTool())
}

// =============================================================================
// Fetch Extraction
// =============================================================================

func TestExtractFetchURL(t *testing.T) {
	assert.Equal(t, "https://example.com/report",
		ExtractFetchURL("FETCH https://example.com/report now"))
	assert.Equal(t, "", ExtractFetchURL("no url here"))
}

func TestExtractFetchBody(t *testing.T) {
	assert.Equal(t, "api_key=secret123456", ExtractFetchBody("FETCH https://x.com with api_key=secret123456"))
	assert.Equal(t, "", ExtractFetchBody("FETCH https://x.com"))
}

// =============================================================================
// Payment Extraction
// =============================================================================

func TestExtractPaymentDetails(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		amount    float64
		hasAmount bool
		payee     string
	}{
		{"dollar sign", "transfer $500 to ACME", 500, true, "ACME"},
		{"with cents", "pay $1,250.50 to Utilities Co", 1250.50, true, "Utilities Co"},
		{"usd suffix", "send 300 USD to ACME", 300, true, "ACME"},
		{"payee with trailing clause", "transfer $100 to ACME for invoice 9", 100, true, "ACME"},
		{"no amount", "transfer funds to ACME", 0, false, "ACME"},
		{"nothing extractable", "hello there", 0, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			details := ExtractPaymentDetails(tt.text)
			assert.Equal(t, tt.hasAmount, details.HasAmount)
			if tt.hasAmount {
				assert.Equal(t, tt.amount, details.Amount)
			}
			assert.Equal(t, tt.payee, details.Payee)
			assert.Equal(t, "USD", details.Currency)
		})
	}
}
