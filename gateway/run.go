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

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shieldforce/platform/gateway/llm/anthropic"
	"shieldforce/platform/shared/detect"
	"shieldforce/platform/shared/journal"
	"shieldforce/platform/shared/logger"
	"shieldforce/platform/shared/types"
)

const (
	upstreamTimeout = 3 * time.Second
	llmTimeout      = 30 * time.Second

	incidentRingSize = 100
)

// Action thresholds on the final score.
const (
	quarantineThreshold = 80
	blockThreshold      = 60
	watchThreshold      = 40
)

// mockAnswer is served when no model provider is configured.
const mockAnswer = "This is a mediated mock response. Configure ANTHROPIC_API_KEY for live completions."

// completer is the slice of the model provider the gateway needs.
type completer interface {
	Complete(ctx context.Context, req anthropic.CompletionRequest) (*anthropic.CompletionResponse, error)
}

// Server is the egress gateway service.
type Server struct {
	cfg      Config
	log      *logger.Logger
	rules    *ThreatRules
	behavior *BehaviorEngine

	quarantine *QuarantineSet
	reporter   *ComplianceReporter

	gatewayJournal  *journal.Journal
	incidentJournal *journal.Journal
	controlJournal  *journal.Journal

	registry *prometheus.Registry

	// Provider is nil when no API key is configured; the LLM endpoint then
	// serves the fixed mock completion.
	Provider completer

	upstreamClient *http.Client

	ringMu       sync.Mutex
	incidentRing []Incident
}

// NewServer wires a gateway from configuration.
func NewServer(cfg Config) (*Server, error) {
	policy, err := LoadNetworkPolicy(cfg.NetworkPolicyFile, cfg.BankingMode)
	if err != nil {
		return nil, err
	}

	incidents := journal.New(cfg.IncidentsJournalPath())
	quarantine := NewQuarantineSet()
	behavior := NewBehaviorEngine(cfg.BankingMode)

	registry := prometheus.NewRegistry()
	registerMetrics(registry)

	s := &Server{
		cfg:             cfg,
		log:             logger.New("gateway"),
		rules:           NewThreatRules(policy, cfg.BankingMode),
		behavior:        behavior,
		quarantine:      quarantine,
		reporter:        NewComplianceReporter(incidents, quarantine, behavior, policy, cfg.BankingMode),
		gatewayJournal:  journal.New(cfg.GatewayJournalPath()),
		incidentJournal: incidents,
		controlJournal:  journal.New(cfg.ControlJournalPath()),
		registry:        registry,
		upstreamClient:  &http.Client{Timeout: upstreamTimeout},
	}

	if cfg.AnthropicAPIKey != "" {
		provider, err := anthropic.NewProvider(anthropic.Config{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
		})
		if err != nil {
			return nil, err
		}
		s.Provider = provider
	}

	return s, nil
}

// Handler returns the gateway's HTTP surface.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/proxy", s.handleProxy).Methods(http.MethodPost)
	r.HandleFunc("/llm/claude", s.handleLLM).Methods(http.MethodPost)
	r.HandleFunc("/incidents", s.handleIncidents).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/compliance/generate", s.handleCompliance).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return r
}

// Run starts the gateway from environment configuration. Used by
// cmd/gateway.
func Run() error {
	cfg := ConfigFromEnv()
	srv, err := NewServer(cfg)
	if err != nil {
		return err
	}

	srv.log.Info("", "", "egress gateway starting", map[string]interface{}{
		"port":         cfg.Port,
		"banking_mode": cfg.BankingMode,
		"llm_live":     srv.Provider != nil,
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

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	var req types.ProxyRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "validation_failed", "reason": "malformed_body"})
		return
	}
	if req.AgentID == "" || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "validation_failed", "reason": "agent_id and url are required"})
		return
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	resp := s.decide(req)

	promProxyTotal.WithLabelValues(resp.Status).Inc()
	promThreatScore.Observe(float64(resp.Score))
	promQuarantined.Set(float64(s.quarantine.Len()))

	writeJSON(w, http.StatusOK, resp)
}

// decide runs the full decision pipeline for one proxy request.
func (s *Server) decide(req types.ProxyRequest) types.ProxyResponse {
	// Stage 1: quarantine short-circuit, no scoring, no upstream I/O.
	if s.quarantine.Contains(req.AgentID) {
		s.gatewayJournal.Append("quarantine_blocked", map[string]interface{}{
			"agent_id": req.AgentID,
			"url":      req.URL,
			"status":   types.StatusQuarantine,
			"score":    maxScore,
		})
		return types.ProxyResponse{
			Status:  types.StatusQuarantine,
			Score:   maxScore,
			Reasons: []string{"agent_quarantined"},
		}
	}

	// Stage 2: deterministic rules.
	ruleResult := s.rules.Evaluate(req)
	score := ruleResult.Score
	reasons := ruleResult.Reasons

	// Stage 3: behavioral scoring, skipped when a forced match already
	// pinned the score.
	if !ruleResult.Forced {
		behaviorScore, behaviorReasons := s.behavior.Observe(req.AgentID, Sample{
			At:          time.Now(),
			PayloadSize: len(req.Body),
			Method:      strings.ToUpper(req.Method),
			Domain:      ruleResult.Host,
		})
		score += behaviorScore
		reasons = append(reasons, behaviorReasons...)
	}

	if score > maxScore {
		score = maxScore
	}

	status := actionFor(score, ruleResult.Forced)

	resp := types.ProxyResponse{Status: status, Score: score}
	if status != types.StatusAllow {
		resp.Reasons = reasons
	}

	// Upstream execution for permitted actions. Failures annotate the
	// response but never change the decision.
	if status == types.StatusAllow || status == types.StatusAllowWatch {
		resp.Upstream = s.callUpstream(req)
		if resp.Upstream.Error != "" {
			resp.Reasons = append(resp.Reasons, resp.Upstream.Error)
		}
	}

	s.journalDecision(req, resp, reasons)
	return resp
}

// actionFor maps the final score to a decision. Forced matches always
// quarantine regardless of the additive bands.
func actionFor(score int, forced bool) string {
	switch {
	case forced || score >= quarantineThreshold:
		return types.StatusQuarantine
	case score >= blockThreshold:
		return types.StatusBlock
	case score >= watchThreshold:
		return types.StatusAllowWatch
	default:
		return types.StatusAllow
	}
}

// journalDecision writes the decision to the gateway journal and, for
// BLOCK and QUARANTINE, to the incidents journal. New quarantine entries
// also land in the control journal.
func (s *Server) journalDecision(req types.ProxyRequest, resp types.ProxyResponse, reasons []string) {
	entry := map[string]interface{}{
		"agent_id": req.AgentID,
		"url":      req.URL,
		"method":   req.Method,
		"purpose":  req.Purpose,
		"status":   resp.Status,
		"score":    resp.Score,
		"reasons":  reasons,
	}
	s.gatewayJournal.Append("proxy_decision", entry)

	if resp.Status != types.StatusBlock && resp.Status != types.StatusQuarantine {
		return
	}

	s.incidentJournal.Append("incident", entry)
	s.recordIncident(Incident{
		Timestamp: time.Now().UTC(),
		AgentID:   req.AgentID,
		URL:       req.URL,
		Status:    resp.Status,
		Score:     resp.Score,
		Reasons:   reasons,
	})

	if resp.Status == types.StatusQuarantine && s.quarantine.Add(req.AgentID) {
		s.controlJournal.Append("apply_waf_quarantine", map[string]interface{}{
			"agent_id": req.AgentID,
			"score":    resp.Score,
			"reasons":  reasons,
			"action":   "quarantine",
		})
		s.log.Warn(req.AgentID, "", "agent quarantined", map[string]interface{}{
			"score":   resp.Score,
			"reasons": reasons,
		})
	}
}

func (s *Server) recordIncident(incident Incident) {
	s.ringMu.Lock()
	defer s.ringMu.Unlock()
	s.incidentRing = append(s.incidentRing, incident)
	if len(s.incidentRing) > incidentRingSize {
		s.incidentRing = s.incidentRing[len(s.incidentRing)-incidentRingSize:]
	}
}

// callUpstream performs the mediated HTTP call with the 3s deadline and
// returns status code, first-byte latency, and content length. The body is
// only echoed back when the caller asked for it.
func (s *Server) callUpstream(req types.ProxyRequest) *types.UpstreamResult {
	var bodyReader io.Reader
	if req.Body != "" {
		bodyReader = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequest(strings.ToUpper(req.Method), req.URL, bodyReader)
	if err != nil {
		return &types.UpstreamResult{Error: "upstream_error"}
	}

	start := time.Now()
	resp, err := s.upstreamClient.Do(httpReq)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return &types.UpstreamResult{Error: "upstream_timeout"}
		}
		return &types.UpstreamResult{Error: "upstream_error"}
	}
	defer resp.Body.Close()

	ttfb := float64(time.Since(start)) / float64(time.Millisecond)
	promUpstreamDuration.Observe(ttfb)

	body, _ := io.ReadAll(resp.Body)

	result := &types.UpstreamResult{
		StatusCode: resp.StatusCode,
		TTFBMillis: ttfb,
		ContentLen: len(body),
	}
	if req.IncludeBody {
		result.Body = string(body)
	}
	return result
}

func (s *Server) handleLLM(w http.ResponseWriter, r *http.Request) {
	var req types.LLMRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "validation_failed", "reason": "malformed_body"})
		return
	}

	// The gateway is the last chance to stop a secret reaching the
	// provider; mask regardless of what upstream layers did.
	prompt, masked := detect.MaskSecrets(req.UserText)
	if len(masked) > 0 {
		s.gatewayJournal.Append("llm_prompt_masked", map[string]interface{}{
			"agent_id": req.AgentID,
			"families": masked,
		})
	}

	if s.Provider == nil {
		writeJSON(w, http.StatusOK, types.LLMResponse{Answer: mockAnswer})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), llmTimeout)
	defer cancel()

	completion, err := s.Provider.Complete(ctx, anthropic.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: fmt.Sprintf("You are a helpful assistant acting for purpose: %s. Answer concisely.", req.Purpose),
		MaxTokens:    anthropic.DefaultMaxTokens,
		Temperature:  0,
	})
	if err != nil {
		s.log.Error(req.AgentID, "", "llm completion failed", map[string]interface{}{"error": err.Error()})
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "llm_error", "reason": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, types.LLMResponse{
		Answer: completion.Content,
		TokensUsed: types.LLMUsage{
			Input:  completion.Usage.InputTokens,
			Output: completion.Usage.OutputTokens,
			Total:  completion.Usage.TotalTokens,
		},
	})
}

func (s *Server) handleIncidents(w http.ResponseWriter, _ *http.Request) {
	s.ringMu.Lock()
	incidents := make([]Incident, len(s.incidentRing))
	copy(incidents, s.incidentRing)
	s.ringMu.Unlock()

	// Newest first.
	for i, j := 0, len(incidents)-1; i < j; i, j = i+1, j-1 {
		incidents[i], incidents[j] = incidents[j], incidents[i]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"incidents": incidents,
		"count":     len(incidents),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	summary := s.reporter.Summarize(time.Now())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "healthy",
		"service":            "gateway",
		"health_score":       summary.HealthScore,
		"incidents_24h":      summary.Incidents24h,
		"agents_observed":    summary.AgentsObserved,
		"quarantined_agents": summary.Quarantined,
		"banking_mode":       s.cfg.BankingMode,
		"timestamp":          time.Now().Unix(),
	})
}

func (s *Server) handleCompliance(w http.ResponseWriter, _ *http.Request) {
	html, err := s.reporter.RenderHTML(time.Now())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "reason": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(html)
}
