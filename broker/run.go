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

// Package broker implements the ShieldForce ingress broker: the front door
// that authenticates callers, screens prompts through the layered firewall,
// mints capability tokens, and forwards sanitized requests to the agent.
package broker

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"shieldforce/platform/capability"
	"shieldforce/platform/shared/journal"
	"shieldforce/platform/shared/logger"
	"shieldforce/platform/shared/types"
)

// dashboardOrigins are the dev origins the operator dashboard runs on.
var dashboardOrigins = []string{"http://localhost:5173", "http://localhost:3000"}

// Server is the ingress broker service.
type Server struct {
	cfg      Config
	log      *logger.Logger
	journal  *journal.Journal
	firewall *Firewall
	tokens   *capability.Service
	roles    RoleMap
	policy   BankingPolicy
	otp      *ChallengeStore
	registry *prometheus.Registry

	// PaymentIntent classifies sanitized text; replaceable for stronger
	// detectors.
	PaymentIntent PaymentIntentDetector

	// agentClient performs the broker -> agent call with the 30 s deadline.
	agentClient *http.Client
}

// NewServer wires a broker from configuration.
func NewServer(cfg Config) (*Server, error) {
	roles, err := LoadRoleMap(cfg.RoleMapFile)
	if err != nil {
		return nil, err
	}
	policy, err := LoadBankingPolicy(cfg.BankingPolicyFile)
	if err != nil {
		return nil, err
	}

	var classifier Classifier
	if cfg.EnableSemanticFirewall {
		if c := NewHTTPClassifier(cfg.SemanticFirewallURL); c != nil {
			classifier = c
		}
	}

	registry := prometheus.NewRegistry()
	registerMetrics(registry)

	return &Server{
		cfg:           cfg,
		log:           logger.New("ingress-broker"),
		journal:       journal.New(cfg.JournalPath()),
		firewall:      NewFirewall(cfg.BankingMode, classifier),
		tokens:        capability.NewService(cfg.CapabilitySecret),
		roles:         roles,
		policy:        policy,
		otp:           NewChallengeStore(policy.OTP),
		registry:      registry,
		PaymentIntent: KeywordPaymentIntent,
		agentClient:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Handler returns the broker's HTTP surface.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/invoke", s.handleInvoke).Methods(http.MethodPost)
	r.HandleFunc("/otp/send", s.handleOTPSend).Methods(http.MethodPost)
	r.HandleFunc("/otp/verify", s.handleOTPVerify).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	c := cors.New(cors.Options{
		AllowedOrigins:   dashboardOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return s.recoverMiddleware(c.Handler(r))
}

// Run starts the broker from environment configuration. Used by cmd/broker.
func Run() error {
	cfg := ConfigFromEnv()
	srv, err := NewServer(cfg)
	if err != nil {
		return err
	}

	srv.log.Info("", "", "ingress broker starting", map[string]interface{}{
		"port":              cfg.Port,
		"agent_url":         cfg.AgentURL,
		"banking_mode":      cfg.BankingMode,
		"semantic_firewall": cfg.EnableSemanticFirewall && cfg.SemanticFirewallURL != "",
		"journal":           cfg.JournalPath(),
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return httpServer.ListenAndServe()
}

// hashAPIKey returns the non-reversible journal form of an API key: the
// first 16 hex chars of its SHA-256. The raw value is never journaled.
func hashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])[:16]
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

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.journal.Append("internal_error", map[string]interface{}{
					"error": fmt.Sprint(rec),
					"path":  r.URL.Path,
				})
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req types.InvokeRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Reason: "malformed_body"})
		return
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = newRequestID()
	}

	// 1. Authentication.
	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		s.journal.Append("auth_failed", map[string]interface{}{
			"reason":     "missing_api_key",
			"agent_id":   req.AgentID,
			"request_id": requestID,
		})
		promInvokeTotal.WithLabelValues("auth_failed").Inc()
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "auth_failed", Reason: "missing_api_key"})
		return
	}
	if !s.roles.Known(apiKey) {
		s.journal.Append("auth_failed", map[string]interface{}{
			"reason":       "invalid_api_key",
			"api_key_hash": hashAPIKey(apiKey),
			"agent_id":     req.AgentID,
			"request_id":   requestID,
		})
		promInvokeTotal.WithLabelValues("auth_failed").Inc()
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "auth_failed", Reason: "invalid_api_key"})
		return
	}

	// 2. RBAC.
	if !s.roles.Authorized(apiKey, req.AgentID) {
		s.journal.Append("rbac_denied", map[string]interface{}{
			"api_key_hash":   hashAPIKey(apiKey),
			"agent_id":       req.AgentID,
			"allowed_agents": s.roles.Allowed(apiKey),
			"request_id":     requestID,
		})
		promInvokeTotal.WithLabelValues("rbac_denied").Inc()
		writeJSON(w, http.StatusForbidden, errorBody{Error: "rbac_denied", Reason: "unauthorized_agent"})
		return
	}

	// 3. Envelope validation.
	if strings.TrimSpace(req.UserText) == "" {
		s.journal.Append("validation_failed", map[string]interface{}{
			"reason":     "empty_user_text",
			"agent_id":   req.AgentID,
			"request_id": requestID,
		})
		promInvokeTotal.WithLabelValues("validation_failed").Inc()
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Reason: "empty_user_text"})
		return
	}

	// 4. Prompt firewall.
	check := s.firewall.Check(r.Context(), req.UserText)
	if check.Blocked {
		payload := map[string]interface{}{
			"reason":            check.Reason,
			"agent_id":          req.AgentID,
			"api_key_hash":      hashAPIKey(apiKey),
			"user_text_preview": preview(req.UserText, 100),
			"matched":           check.Matched,
			"request_id":        requestID,
		}
		if check.Semantic != nil {
			payload["llm_confidence"] = check.Semantic.Confidence
			payload["llm_inference_time_ms"] = check.Semantic.InferenceMillis
		}
		eventType := "firewall_blocked"
		if check.Reason == ReasonPANInChat {
			eventType = "pan_in_chat"
		}
		s.journal.Append(eventType, payload)

		promInvokeTotal.WithLabelValues("blocked").Inc()
		promFirewallBlocks.WithLabelValues(check.Reason).Inc()

		resp := types.InvokeResponse{
			Decision:  "BLOCK",
			Reason:    check.Reason,
			RequestID: requestID,
		}
		if check.Reason == ReasonPANInChat {
			resp.Message = PANRemediationMessage
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	// 5. Secret redaction (already applied by the firewall pass).
	if len(check.Redactions) > 0 {
		s.journal.Append("secrets_redacted", map[string]interface{}{
			"redactions": check.Redactions,
			"agent_id":   req.AgentID,
			"request_id": requestID,
		})
	}

	// 6. Capability scoping and token mint.
	tools := req.AllowedTools
	scopes := req.DataScope
	budgets := types.DefaultBudgets()
	if req.Budgets != nil {
		budgets = *req.Budgets
	}

	var paymentPolicy *capability.PaymentPolicy
	if s.PaymentIntent(check.Sanitized) {
		tools = NarrowToPaymentTools(tools, s.policy.PaymentTools)
		budgets = PaymentBudgets()
		paymentPolicy = &capability.PaymentPolicy{
			MaxAmount:       s.policy.PaymentLimits.MaxAmount,
			PreapprovedOnly: s.policy.PaymentLimits.PreapprovedOnly,
		}
	}

	token, err := s.tokens.Mint(req.AgentID, tools, scopes, budgets, paymentPolicy)
	if err != nil {
		s.journal.Append("internal_error", map[string]interface{}{
			"error":      err.Error(),
			"stage":      "token_mint",
			"request_id": requestID,
		})
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
		return
	}

	// 7. Forward to the agent.
	agentResult, status, reason := s.forwardToAgent(token, types.AgentRequest{
		AgentID:   req.AgentID,
		Purpose:   req.Purpose,
		UserText:  check.Sanitized,
		RequestID: requestID,
	})
	if reason != "" {
		s.journal.Append(reason, map[string]interface{}{
			"agent_id":    req.AgentID,
			"status_code": status,
			"request_id":  requestID,
		})
		promInvokeTotal.WithLabelValues("agent_error").Inc()
		httpStatus := http.StatusBadGateway
		switch reason {
		case "agent_unreachable":
			httpStatus = http.StatusServiceUnavailable
		case "agent_timeout":
			httpStatus = http.StatusGatewayTimeout
		}
		errReason := reason
		if reason == "agent_error" {
			errReason = fmt.Sprintf("agent_error:%d", status)
		}
		writeJSON(w, httpStatus, errorBody{Error: "agent_error", Reason: errReason})
		return
	}

	// 8. Journal success and return.
	s.journal.Append("invoke_allowed", map[string]interface{}{
		"agent_id":     req.AgentID,
		"api_key_hash": hashAPIKey(apiKey),
		"purpose":      req.Purpose,
		"redactions":   check.Redactions,
		"request_id":   requestID,
	})
	promInvokeTotal.WithLabelValues("allowed").Inc()
	promInvokeDuration.Observe(float64(time.Since(start)) / float64(time.Millisecond))

	s.log.InfoWithDuration(req.AgentID, requestID, "invocation allowed",
		float64(time.Since(start))/float64(time.Millisecond), nil)

	writeJSON(w, http.StatusOK, types.InvokeResponse{
		Decision:  "ALLOW",
		Result:    agentResult,
		RequestID: requestID,
	})
}

// forwardToAgent posts the sanitized request to the agent with the bearer
// capability token. Returns the agent result, the downstream status code,
// and a failure reason tag ("" on success).
func (s *Server) forwardToAgent(token string, req types.AgentRequest) (map[string]interface{}, int, string) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, 0, "agent_unreachable"
	}

	httpReq, err := http.NewRequest(http.MethodPost,
		strings.TrimRight(s.cfg.AgentURL, "/")+"/_internal/run", bytes.NewReader(body))
	if err != nil {
		return nil, 0, "agent_unreachable"
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.agentClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, 0, "agent_timeout"
		}
		return nil, 0, "agent_unreachable"
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, "agent_error"
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, "agent_error"
	}
	return result, resp.StatusCode, ""
}

func isTimeout(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout()
	}
	return false
}

type otpSendRequest struct {
	Purpose string `json:"purpose"`
}

type otpSendResponse struct {
	ChallengeID string `json:"challenge_id"`
	ExpiresIn   int    `json:"expires_in_seconds"`
}

func (s *Server) handleOTPSend(w http.ResponseWriter, r *http.Request) {
	var req otpSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Reason: "malformed_body"})
		return
	}

	s.otp.CleanupExpired()
	id, code := s.otp.Issue()

	// The code itself goes out of band (SMS/email); only the challenge id
	// returns to the caller. The journal keeps the code masked.
	s.journal.Append("otp_sent", map[string]interface{}{
		"challenge_id": id,
		"purpose":      req.Purpose,
		"code":         code,
	}, "code")

	writeJSON(w, http.StatusOK, otpSendResponse{
		ChallengeID: id,
		ExpiresIn:   s.policy.OTP.ExpirySeconds,
	})
}

type otpVerifyRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

type otpVerifyResponse struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason"`
}

func (s *Server) handleOTPVerify(w http.ResponseWriter, r *http.Request) {
	var req otpVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Reason: "malformed_body"})
		return
	}

	ok, reason := s.otp.Verify(req.ChallengeID, req.Code)
	s.journal.Append("otp_verified", map[string]interface{}{
		"challenge_id": req.ChallengeID,
		"verified":     ok,
		"reason":       reason,
	})
	writeJSON(w, http.StatusOK, otpVerifyResponse{Verified: ok, Reason: reason})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "ingress-broker",
		"version": "1.0.0",
	})
}

// preview truncates journal previews without splitting a rune.
func preview(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func newRequestID() string {
	return uuid.NewString()
}
