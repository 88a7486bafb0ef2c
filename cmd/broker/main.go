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

// Package main is the entry point for the ShieldForce ingress broker.
//
// The broker is the single trust boundary between untrusted callers and
// the agent:
// - Authenticates callers and enforces the caller→agent role map
// - Screens prompts through the layered firewall
// - Redacts secrets before anything reaches the agent
// - Mints short-lived capability tokens binding the agent's permissions
//
// Usage:
//
//	./broker
//
// Environment Variables:
//
//	BROKER_PORT - HTTP server port (default: 8001)
//	CAPABILITY_SECRET - Symmetric key for capability-token signing
//	AGENT_URL - URL of the agent adapter service
package main

import (
	"log"

	"github.com/joho/godotenv"

	"shieldforce/platform/broker"
)

func main() {
	_ = godotenv.Load()

	if err := broker.Run(); err != nil {
		log.Fatalf("broker exited: %v", err)
	}
}
