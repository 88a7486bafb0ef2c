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

// Package types defines the wire shapes exchanged between the broker, the
// agent adapter, and the egress gateway. Every documented field has an
// explicit struct field; unknown fields are rejected at the ingress boundary.
package types

// Budgets are the resource ceilings granted to one invocation.
type Budgets struct {
	MaxTokens    int `json:"max_tokens"`
	MaxToolCalls int `json:"max_tool_calls"`
}

// DefaultBudgets returns the standard per-invocation resource ceilings.
func DefaultBudgets() Budgets {
	return Budgets{MaxTokens: 1500, MaxToolCalls: 3}
}

// Attachment is an opaque caller-supplied attachment descriptor.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	URL         string `json:"url,omitempty"`
}

// InvokeRequest is the caller-facing envelope accepted by the broker.
type InvokeRequest struct {
	AgentID      string       `json:"agent_id"`
	Purpose      string       `json:"purpose"`
	UserText     string       `json:"user_text"`
	Attachments  []Attachment `json:"attachments,omitempty"`
	AllowedTools []string     `json:"allowed_tools"`
	DataScope    []string     `json:"data_scope"`
	Budgets      *Budgets     `json:"budgets,omitempty"`
	RequestID    string       `json:"request_id,omitempty"`
}

// InvokeResponse carries the broker's decision back to the caller.
type InvokeResponse struct {
	Decision  string                 `json:"decision"`
	Reason    string                 `json:"reason,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Result    map[string]interface{} `json:"result,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// AgentRequest is the sanitized body the broker forwards to the agent.
type AgentRequest struct {
	AgentID   string `json:"agent_id"`
	Purpose   string `json:"purpose"`
	UserText  string `json:"user_text"`
	RequestID string `json:"request_id,omitempty"`
}

// AgentResponse is returned by the agent adapter.
type AgentResponse struct {
	Answer        string                 `json:"answer"`
	FetchDecision map[string]interface{} `json:"fetch_decision,omitempty"`
	PaymentResult map[string]interface{} `json:"payment_result,omitempty"`
	AccountData   map[string]interface{} `json:"account_data,omitempty"`
	Logs          map[string]interface{} `json:"logs"`
}

// ProxyRequest asks the gateway to mediate one outbound call.
type ProxyRequest struct {
	AgentID     string `json:"agent_id"`
	URL         string `json:"url"`
	Method      string `json:"method"`
	Body        string `json:"body"`
	Purpose     string `json:"purpose"`
	IncludeBody bool   `json:"include_body,omitempty"`
}

// UpstreamResult describes the upstream call the gateway performed.
type UpstreamResult struct {
	StatusCode int     `json:"status_code"`
	TTFBMillis float64 `json:"ttfb_ms,omitempty"`
	ContentLen int     `json:"content_len,omitempty"`
	Body       string  `json:"body,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// ProxyResponse is the gateway's decision on one outbound call.
type ProxyResponse struct {
	Status   string          `json:"status"`
	Score    int             `json:"score"`
	Reasons  []string        `json:"reasons,omitempty"`
	Upstream *UpstreamResult `json:"upstream,omitempty"`
}

// Gateway decision statuses.
const (
	StatusAllow      = "ALLOW"
	StatusAllowWatch = "ALLOW+WATCH"
	StatusBlock      = "BLOCK"
	StatusQuarantine = "QUARANTINE"
)

// LLMRequest is the sanitized model request forwarded through the gateway.
type LLMRequest struct {
	AgentID  string `json:"agent_id"`
	Purpose  string `json:"purpose"`
	UserText string `json:"user_text"`
}

// LLMUsage reports provider token counters.
type LLMUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// LLMResponse carries the provider's completion back to the agent.
type LLMResponse struct {
	Answer     string   `json:"answer"`
	TokensUsed LLMUsage `json:"tokens_used"`
}
