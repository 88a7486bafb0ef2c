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

// Package agent implements the ShieldForce agent adapter. It consumes
// capability tokens minted by the broker, dispatches the sanitized request
// among a small set of tool families, and routes every external side-effect
// through the egress gateway. The adapter holds no security policy of its
// own beyond token and tool gating.
package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"shieldforce/platform/capability"
	"shieldforce/platform/shared/logger"
	"shieldforce/platform/shared/types"
)

// Config holds the agent adapter's environment-derived settings.
type Config struct {
	Port             string
	GatewayURL       string
	CapabilitySecret string
	PayeesFile       string
}

// ConfigFromEnv reads configuration from the environment.
func ConfigFromEnv() Config {
	return Config{
		Port:             envOr("AGENT_PORT", "7000"),
		GatewayURL:       envOr("GATEWAY_URL", "http://gateway:9000"),
		CapabilitySecret: envOr("CAPABILITY_SECRET", "dev-secret"),
		PayeesFile:       os.Getenv("PAYEES_FILE"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Server is the agent adapter service.
type Server struct {
	cfg    Config
	log    *logger.Logger
	tokens *capability.Service
	payees PayeeRegistry

	// gatewayClient performs the gateway proxy and decision calls. Every
	// external side-effect of the agent flows through the gateway.
	gatewayClient *http.Client

	// llmClient carries the longer completion budget; the gateway may hold
	// the request for up to 30 s while the provider answers.
	llmClient *http.Client
}

// NewServer wires an agent adapter from configuration.
func NewServer(cfg Config) (*Server, error) {
	payees, err := LoadPayees(cfg.PayeesFile)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:           cfg,
		log:           logger.New("agent"),
		tokens:        capability.NewService(cfg.CapabilitySecret),
		payees:        payees,
		gatewayClient: &http.Client{Timeout: 5 * time.Second},
		llmClient:     &http.Client{Timeout: 35 * time.Second},
	}, nil
}

// Handler returns the agent's HTTP surface.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/_internal/run", s.handleRun).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

// Run starts the agent from environment configuration. Used by cmd/agent.
func Run() error {
	cfg := ConfigFromEnv()
	srv, err := NewServer(cfg)
	if err != nil {
		return err
	}

	srv.log.Info("", "", "agent adapter starting", map[string]interface{}{
		"port":        cfg.Port,
		"gateway_url": cfg.GatewayURL,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return httpServer.ListenAndServe()
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	// (a) Verify the bearer capability token.
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "capability_invalid", Reason: "missing_bearer"})
		return
	}
	claims, err := s.tokens.Verify(strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		reason := capability.ReasonTampered
		if verr, ok := err.(*capability.VerifyError); ok {
			reason = verr.Reason
		}
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "capability_invalid", Reason: reason})
		return
	}

	var req types.AgentRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Reason: "malformed_body"})
		return
	}

	// (b) The token subject must match the claimed agent identity.
	if claims.Subject != req.AgentID {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "capability_invalid", Reason: "subject_mismatch"})
		return
	}

	// (c) Intent dispatch.
	intent := ParseIntent(req.UserText)

	// (d) Tool gating.
	if tool := intent.RequiredTool(); tool != "" && !claims.HasTool(tool) {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "tool_not_permitted", Reason: tool})
		return
	}

	resp := types.AgentResponse{Logs: map[string]interface{}{}}

	switch intent {
	case IntentPayment:
		details := ExtractPaymentDetails(req.UserText)
		validation := ValidatePayment(details, claims, s.payees)
		resp.PaymentResult = paymentResultMap(validation)
		if validation.Valid {
			resp.Answer = fmt.Sprintf("Payment of %s to %s validated against policy.",
				FormatBalance(validation.Amount, "USD"), validation.Payee.Name)
		} else {
			resp.Answer = "Payment request rejected: " + strings.Join(validation.Reasons, ", ")
		}

	case IntentAccountInquiry:
		account := MockAccountData()
		resp.AccountData = account
		balance, _ := account["balance"].(float64)
		resp.Answer = fmt.Sprintf("Current balance: %s\n%s",
			FormatBalance(balance, "USD"), FormatTransactions(MockTransactions()))

	case IntentPaylink:
		details := ExtractPaymentDetails(req.UserText)
		paylink := GeneratePaylink(details.Amount, req.Purpose)
		resp.PaymentResult = map[string]interface{}{"paylink": paylink}
		resp.Answer = "Secure payment link created: " + paylink.URL

	case IntentFetch:
		fetchURL := ExtractFetchURL(req.UserText)
		decision := s.callGatewayProxy(req.AgentID, fetchURL, req.Purpose, ExtractFetchBody(req.UserText))
		resp.FetchDecision = decision
		resp.Answer = s.callGatewayLLM(req.AgentID, req.Purpose, req.UserText)

	default:
		// (f) General chat goes to the model provider through the gateway.
		resp.Answer = s.callGatewayLLM(req.AgentID, req.Purpose, req.UserText)
	}

	resp.Logs["processing_time_ms"] = float64(time.Since(start)) / float64(time.Millisecond)
	resp.Logs["capabilities_verified"] = true
	resp.Logs["allowed_tools"] = claims.Tools
	resp.Logs["intent"] = string(intent)
	resp.Logs["request_id"] = req.RequestID

	s.log.InfoWithDuration(req.AgentID, req.RequestID, "agent run complete",
		float64(time.Since(start))/float64(time.Millisecond),
		map[string]interface{}{"intent": string(intent)})

	writeJSON(w, http.StatusOK, resp)
}

func paymentResultMap(v PaymentValidation) map[string]interface{} {
	result := map[string]interface{}{
		"valid":  v.Valid,
		"amount": v.Amount,
	}
	if len(v.Reasons) > 0 {
		result["reasons"] = v.Reasons
	}
	if v.Payee != nil {
		result["payee_info"] = v.Payee
	}
	return result
}

// callGatewayProxy asks the gateway to mediate one outbound fetch. Gateway
// failures come back as an ERROR pseudo-decision rather than an error so
// the caller still sees why nothing was fetched.
func (s *Server) callGatewayProxy(agentID, fetchURL, purpose, body string) map[string]interface{} {
	payload, _ := json.Marshal(types.ProxyRequest{
		AgentID: agentID,
		URL:     fetchURL,
		Method:  http.MethodGet,
		Body:    body,
		Purpose: purpose,
	})

	resp, err := s.gatewayClient.Post(
		strings.TrimRight(s.cfg.GatewayURL, "/")+"/proxy", "application/json", bytes.NewReader(payload))
	if err != nil {
		return map[string]interface{}{"status": "ERROR", "reason": "gateway proxy call failed: " + err.Error()}
	}
	defer resp.Body.Close()

	var decision map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return map[string]interface{}{"status": "ERROR", "reason": "gateway proxy response unreadable"}
	}
	return decision
}

// callGatewayLLM fetches a completion through the gateway's model endpoint.
func (s *Server) callGatewayLLM(agentID, purpose, userText string) string {
	payload, _ := json.Marshal(types.LLMRequest{
		AgentID:  agentID,
		Purpose:  purpose,
		UserText: userText,
	})

	resp, err := s.llmClient.Post(
		strings.TrimRight(s.cfg.GatewayURL, "/")+"/llm/claude", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "LLM call failed: " + err.Error()
	}
	defer resp.Body.Close()

	var decoded types.LLMResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "LLM call failed: unreadable response"
	}
	if decoded.Answer == "" {
		return "No response from LLM"
	}
	return decoded.Answer
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"service":     "agent",
		"gateway_url": s.cfg.GatewayURL,
		"timestamp":   time.Now().Unix(),
	})
}
