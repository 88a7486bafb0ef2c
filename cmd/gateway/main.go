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

// Package main is the entry point for the ShieldForce egress gateway.
//
// The gateway inspects every outbound network call the agent attempts:
// - Deterministic threat rules (denylists, secret/PII detection, size rules)
// - Per-agent behavioral baselines with anomaly scoring
// - Sticky quarantine for agents that cross the threshold
// - Append-only decision, incident, and control journals
//
// Usage:
//
//	./gateway
//
// Environment Variables:
//
//	GATEWAY_PORT - HTTP server port (default: 9000)
//	BANKING_MODE - Enable the stricter banking scoring profile
//	ANTHROPIC_API_KEY - Optional; model endpoint serves a mock when absent
package main

import (
	"log"

	"github.com/joho/godotenv"

	"shieldforce/platform/gateway"
)

func main() {
	_ = godotenv.Load()

	if err := gateway.Run(); err != nil {
		log.Fatalf("gateway exited: %v", err)
	}
}
