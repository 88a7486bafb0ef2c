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

/*
Command broker runs the ShieldForce ingress broker.

The broker is the first line of defense: it authenticates callers,
enforces role-based access to agents, screens prompts through the
layered firewall, redacts secrets, and mints the capability token the
downstream agent must present for every privileged operation.

# Usage

	broker

# Environment Variables

Required:
  - CAPABILITY_SECRET: symmetric key for capability-token signing

Optional:
  - BROKER_PORT: HTTP server port (default: 8001)
  - AGENT_URL: agent adapter URL (default: http://agent:7000)
  - ROLE_MAP_FILE: YAML caller→agents role map
  - BANKING_POLICY_FILE: YAML banking policy overrides
  - BANKING_MODE: enable the stricter banking detector profile
  - ENABLE_SEMANTIC_FIREWALL: toggle the semantic classifier layer (default: on)
  - SEMANTIC_FIREWALL_URL: classifier endpoint
  - DATA_DIR: journal directory (default: data)

# Endpoints

  - POST /invoke: mediated agent invocation
  - POST /otp/send, /otp/verify: one-time challenge flow
  - GET /health: liveness
  - GET /metrics: Prometheus metrics
*/
package main
