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

// Package main is the entry point for the ShieldForce agent adapter.
//
// The adapter verifies capability tokens minted by the broker, gates
// every operation on the token's granted tools, and routes all external
// side-effects through the egress gateway.
//
// Usage:
//
//	./agent
//
// Environment Variables:
//
//	AGENT_PORT - HTTP server port (default: 7000)
//	GATEWAY_URL - URL of the egress gateway
//	CAPABILITY_SECRET - Symmetric key shared with the broker
package main

import (
	"log"

	"github.com/joho/godotenv"

	"shieldforce/platform/agent"
)

func main() {
	_ = godotenv.Load()

	if err := agent.Run(); err != nil {
		log.Fatalf("agent exited: %v", err)
	}
}
