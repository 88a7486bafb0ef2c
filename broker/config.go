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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the broker's environment-derived settings.
type Config struct {
	Port                   string
	CapabilitySecret       string
	AgentURL               string
	RoleMapFile            string
	BankingPolicyFile      string
	BankingMode            bool
	EnableSemanticFirewall bool
	SemanticFirewallURL    string
	DataDir                string
}

// ConfigFromEnv reads configuration from the environment with the documented
// defaults.
func ConfigFromEnv() Config {
	return Config{
		Port:                   envOr("BROKER_PORT", "8001"),
		CapabilitySecret:       envOr("CAPABILITY_SECRET", "dev-secret"),
		AgentURL:               envOr("AGENT_URL", "http://agent:7000"),
		RoleMapFile:            os.Getenv("ROLE_MAP_FILE"),
		BankingPolicyFile:      os.Getenv("BANKING_POLICY_FILE"),
		BankingMode:            envBool("BANKING_MODE", false),
		EnableSemanticFirewall: envBool("ENABLE_SEMANTIC_FIREWALL", true),
		SemanticFirewallURL:    os.Getenv("SEMANTIC_FIREWALL_URL"),
		DataDir:                envOr("DATA_DIR", "data"),
	}
}

// JournalPath returns the broker journal file under the data directory.
func (c Config) JournalPath() string {
	return filepath.Join(c.DataDir, "broker_log.jsonl")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(os.Getenv(key))
	switch v {
	case "":
		return def
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}

// RoleMap maps an API key to the agent identifiers it may invoke. The
// wildcard "*" grants access to every agent.
type RoleMap map[string][]string

// DefaultRoleMap is the built-in demo map used when no role-map file is
// configured.
func DefaultRoleMap() RoleMap {
	return RoleMap{
		"DEMO-KEY":  {"cust-support-bot", "customer-bot", "support-agent", "data-analyst"},
		"ADMIN-KEY": {"*"},
	}
}

// LoadRoleMap reads the YAML role map at path. An empty path yields the
// default demo map.
func LoadRoleMap(path string) (RoleMap, error) {
	if path == "" {
		return DefaultRoleMap(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read role map: %w", err)
	}
	var m RoleMap
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse role map: %w", err)
	}
	return m, nil
}

// Known reports whether the API key exists in the map.
func (m RoleMap) Known(apiKey string) bool {
	_, ok := m[apiKey]
	return ok
}

// Authorized reports whether the API key may invoke the given agent.
func (m RoleMap) Authorized(apiKey, agentID string) bool {
	for _, allowed := range m[apiKey] {
		if allowed == "*" || allowed == agentID {
			return true
		}
	}
	return false
}

// Allowed returns the raw agent list for an API key, for journaling.
func (m RoleMap) Allowed(apiKey string) []string {
	return m[apiKey]
}

// OTPSettings bound the one-time challenge flow.
type OTPSettings struct {
	ExpirySeconds int `yaml:"expiry_seconds"`
	MaxAttempts   int `yaml:"max_attempts"`
	CodeLength    int `yaml:"code_length"`
}

// PaymentLimits caps what a payment-intent invocation may do.
type PaymentLimits struct {
	MaxAmount       float64 `yaml:"max_amount"`
	PreapprovedOnly bool    `yaml:"preapproved_only"`
}

// BankingPolicy is the broker-side banking configuration.
type BankingPolicy struct {
	MaxPromptLen  int           `yaml:"max_prompt_len"`
	PaymentTools  []string      `yaml:"payment_tools"`
	PaymentLimits PaymentLimits `yaml:"payment_limits"`
	OTP           OTPSettings   `yaml:"otp_settings"`
}

// DefaultBankingPolicy mirrors the shipped configuration.
func DefaultBankingPolicy() BankingPolicy {
	return BankingPolicy{
		MaxPromptLen:  10000,
		PaymentTools:  []string{"payments.create", "accounts.read"},
		PaymentLimits: PaymentLimits{MaxAmount: 5000, PreapprovedOnly: true},
		OTP:           OTPSettings{ExpirySeconds: 300, MaxAttempts: 3, CodeLength: 6},
	}
}

// LoadBankingPolicy reads the YAML banking policy at path, falling back to
// the defaults when the path is empty.
func LoadBankingPolicy(path string) (BankingPolicy, error) {
	policy := DefaultBankingPolicy()
	if path == "" {
		return policy, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("read banking policy: %w", err)
	}
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return policy, fmt.Errorf("parse banking policy: %w", err)
	}
	return policy, nil
}
