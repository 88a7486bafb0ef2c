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
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"shieldforce/platform/capability"
)

// Payee is one pre-approved payment destination.
type Payee struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Verified bool   `yaml:"verified" json:"verified"`
}

// PayeeRegistry maps canonical payee keys to their records.
type PayeeRegistry map[string]Payee

// DefaultPayees is the demo registry used when no payees file is configured.
func DefaultPayees() PayeeRegistry {
	return PayeeRegistry{
		"ACME-LLC": {ID: "p_1001", Name: "ACME LLC", Verified: true},
		"UTILS-CO": {ID: "p_1002", Name: "Utilities Co", Verified: true},
	}
}

// LoadPayees reads the YAML payee registry at path, or the default when the
// path is empty.
func LoadPayees(path string) (PayeeRegistry, error) {
	if path == "" {
		return DefaultPayees(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payees: %w", err)
	}
	var registry PayeeRegistry
	if err := yaml.Unmarshal(raw, &registry); err != nil {
		return nil, fmt.Errorf("parse payees: %w", err)
	}
	return registry, nil
}

// Find looks up a payee by name, case-insensitive with loose containment so
// "ACME" matches "ACME LLC".
func (r PayeeRegistry) Find(name string) (Payee, bool) {
	clean := strings.ToUpper(strings.TrimSpace(name))
	if clean == "" {
		return Payee{}, false
	}

	if payee, ok := r[clean]; ok {
		return payee, true
	}
	for key, payee := range r {
		upperName := strings.ToUpper(payee.Name)
		if strings.Contains(key, clean) || strings.Contains(upperName, clean) || strings.Contains(clean, key) {
			return payee, true
		}
	}
	return Payee{}, false
}

// PaymentValidation is the outcome of checking a payment request against
// the capability's payment policy.
type PaymentValidation struct {
	Valid   bool     `json:"valid"`
	Reasons []string `json:"reasons,omitempty"`
	Amount  float64  `json:"amount"`
	Payee   *Payee   `json:"payee_info,omitempty"`
}

// ValidatePayment enforces the token's payment policy: the payment tool must
// be granted, the amount must be within the policy ceiling, and the payee
// must be pre-approved when the policy requires it.
func ValidatePayment(details PaymentDetails, claims *capability.Claims, payees PayeeRegistry) PaymentValidation {
	result := PaymentValidation{Amount: details.Amount}

	if !claims.HasTool("payments.create") {
		result.Reasons = append(result.Reasons, "payments_not_permitted")
		return result
	}

	maxAmount := 5000.0
	preapprovedOnly := true
	if claims.PaymentPolicy != nil {
		maxAmount = claims.PaymentPolicy.MaxAmount
		preapprovedOnly = claims.PaymentPolicy.PreapprovedOnly
	}

	if !details.HasAmount {
		result.Reasons = append(result.Reasons, "amount_not_found")
		return result
	}
	if details.Amount > maxAmount {
		result.Reasons = append(result.Reasons, fmt.Sprintf("amount_exceeds_limit_%.0f", maxAmount))
		return result
	}

	if preapprovedOnly {
		payee, ok := payees.Find(details.Payee)
		if !ok {
			result.Reasons = append(result.Reasons, "payee_not_preapproved")
			return result
		}
		result.Payee = &payee
	}

	result.Valid = true
	return result
}

// Paylink is a short-lived secure payment link.
type Paylink struct {
	PaylinkID   string  `json:"paylink_id"`
	URL         string  `json:"url"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	ExpiresAt   int64   `json:"expires_at"`
	Status      string  `json:"status"`
}

// GeneratePaylink issues a one-hour secure payment link.
func GeneratePaylink(amount float64, description string) Paylink {
	id := uuid.NewString()
	return Paylink{
		PaylinkID:   id,
		URL:         "https://secure.bank.example/pay/" + id,
		Amount:      amount,
		Description: description,
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
		Status:      "active",
	}
}

// MockAccountData returns the demo account snapshot served to account
// inquiries.
func MockAccountData() map[string]interface{} {
	return map[string]interface{}{
		"account_number":    "****1234",
		"balance":           15750.50,
		"available_balance": 15250.50,
		"currency":          "USD",
		"account_type":      "checking",
	}
}

// Transaction is one demo ledger row.
type Transaction struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Type        string  `json:"type"`
	Category    string  `json:"category"`
}

// MockTransactions returns the demo transaction history.
func MockTransactions() []Transaction {
	return []Transaction{
		{ID: "txn_001", Date: "2024-01-15", Description: "Online Purchase - Amazon", Amount: 89.99, Type: "debit", Category: "shopping"},
		{ID: "txn_002", Date: "2024-01-14", Description: "Salary Deposit", Amount: 3500.00, Type: "credit", Category: "income"},
		{ID: "txn_003", Date: "2024-01-13", Description: "Grocery Store", Amount: 127.45, Type: "debit", Category: "groceries"},
		{ID: "txn_004", Date: "2024-01-12", Description: "Utilities Payment", Amount: 245.67, Type: "debit", Category: "utilities"},
		{ID: "txn_005", Date: "2024-01-11", Description: "ATM Withdrawal", Amount: 100.00, Type: "debit", Category: "cash"},
	}
}

// FormatBalance renders an account balance for display.
func FormatBalance(balance float64, currency string) string {
	return fmt.Sprintf("$%s %s", formatThousands(balance), currency)
}

// FormatTransactions renders up to five recent transactions.
func FormatTransactions(transactions []Transaction) string {
	if len(transactions) == 0 {
		return "No recent transactions found."
	}

	var b strings.Builder
	b.WriteString("Recent Transactions:\n")
	for i, txn := range transactions {
		if i >= 5 {
			break
		}
		sign := "+"
		if txn.Type == "debit" {
			sign = "-"
		}
		fmt.Fprintf(&b, "%d. %s | %s | %s$%s\n", i+1, txn.Date, txn.Description, sign, formatThousands(txn.Amount))
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatThousands renders 15750.5 as "15,750.50".
func formatThousands(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	dot := strings.Index(s, ".")
	intPart, fracPart := s[:dot], s[dot:]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 && r != '-' {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String() + fracPart
}
