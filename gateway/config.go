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

// Package gateway implements the ShieldForce egress gateway: every outbound
// network call an agent attempts is scored by deterministic threat rules
// plus a per-agent behavioral baseline, then allowed, watched, blocked, or
// quarantined. Decisions, incidents, and quarantine transitions land in
// append-only journals from which the compliance view is synthesized.
package gateway

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the gateway's environment-derived settings.
type Config struct {
	Port              string
	DataDir           string
	BankingMode       bool
	NetworkPolicyFile string
	AnthropicAPIKey   string
	AnthropicModel    string
}

// ConfigFromEnv reads configuration from the environment.
func ConfigFromEnv() Config {
	return Config{
		Port:              envOr("GATEWAY_PORT", "9000"),
		DataDir:           envOr("DATA_DIR", "data"),
		BankingMode:       envBool("BANKING_MODE", false),
		NetworkPolicyFile: os.Getenv("NETWORK_POLICY_FILE"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:    os.Getenv("ANTHROPIC_MODEL"),
	}
}

// GatewayJournalPath is the per-decision journal file.
func (c Config) GatewayJournalPath() string {
	return filepath.Join(c.DataDir, "gateway_log.jsonl")
}

// IncidentsJournalPath records BLOCK and QUARANTINE decisions.
func (c Config) IncidentsJournalPath() string {
	return filepath.Join(c.DataDir, "incidents.jsonl")
}

// ControlJournalPath records quarantine transitions.
func (c Config) ControlJournalPath() string {
	return filepath.Join(c.DataDir, "a10_control_log.jsonl")
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
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Policy modes. DenyByDefault requires destinations to be allowlisted.
const (
	ModeAllowByDefault = "allow_by_default"
	ModeDenyByDefault  = "deny_by_default"
)

// NetworkPolicy controls which destinations the gateway will consider at
// all before scoring.
type NetworkPolicy struct {
	Mode      string   `yaml:"mode"`
	Allowlist []string `yaml:"allowlist"`
	Denylist  []string `yaml:"denylist"`
	EmailAPIs []string `yaml:"email_apis"`
}

// DefaultNetworkPolicy returns the built-in policy. Banking mode flips to
// deny-by-default with the core-banking allowlist.
func DefaultNetworkPolicy(banking bool) NetworkPolicy {
	mode := ModeAllowByDefault
	if banking {
		mode = ModeDenyByDefault
	}
	policy := NetworkPolicy{
		Mode: mode,
		Allowlist: []string{
			"core-banking.internal",
			"payments.internal",
		},
		Denylist: []string{
			"pastebin.com",
			"filebin.net",
			"ipfs.io",
			"transfer.sh",
			"file.io",
			"0x0.st",
			"uguu.se",
			"catbox.moe",
			"anonfiles.com",
			"mega.nz",
		},
	}
	// The email-API class block belongs to the banking profile only.
	if banking {
		policy.EmailAPIs = []string{
			"api.sendgrid.com",
			"smtp.gmail.com",
		}
	}
	return policy
}

// LoadNetworkPolicy reads the YAML policy at path, or the built-in default
// when the path is empty. Missing lists fall back to the defaults so a
// partial file only overrides what it names.
func LoadNetworkPolicy(path string, banking bool) (NetworkPolicy, error) {
	policy := DefaultNetworkPolicy(banking)
	if path == "" {
		return policy, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return NetworkPolicy{}, fmt.Errorf("read network policy: %w", err)
	}
	var loaded NetworkPolicy
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return NetworkPolicy{}, fmt.Errorf("parse network policy: %w", err)
	}
	if loaded.Mode != "" {
		policy.Mode = loaded.Mode
	}
	if loaded.Allowlist != nil {
		policy.Allowlist = loaded.Allowlist
	}
	if loaded.Denylist != nil {
		policy.Denylist = loaded.Denylist
	}
	if loaded.EmailAPIs != nil {
		policy.EmailAPIs = loaded.EmailAPIs
	}
	return policy, nil
}

// matchesHost reports whether host equals entry or is a subdomain of it.
func matchesHost(host, entry string) bool {
	host = strings.ToLower(host)
	entry = strings.ToLower(entry)
	return host == entry || strings.HasSuffix(host, "."+entry)
}

// Denylisted reports whether host matches a denylist entry, returning the
// entry that matched.
func (p NetworkPolicy) Denylisted(host string) (string, bool) {
	for _, entry := range p.Denylist {
		if matchesHost(host, entry) {
			return entry, true
		}
	}
	return "", false
}

// Allowlisted reports whether host matches an allowlist entry.
func (p NetworkPolicy) Allowlisted(host string) bool {
	for _, entry := range p.Allowlist {
		if matchesHost(host, entry) {
			return true
		}
	}
	return false
}

// EmailAPI reports whether host belongs to the blocked email-API class.
func (p NetworkPolicy) EmailAPI(host string) bool {
	for _, entry := range p.EmailAPIs {
		if matchesHost(host, entry) {
			return true
		}
	}
	return false
}
