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
Command gateway runs the ShieldForce egress gateway.

Every outbound network call the agent attempts passes through the
gateway, where deterministic threat rules and per-agent behavioral
baselines produce a single score and one of four actions: ALLOW,
ALLOW+WATCH, BLOCK, or QUARANTINE. Quarantine is sticky for the life
of the process.

# Usage

	gateway

# Environment Variables

Optional:
  - GATEWAY_PORT: HTTP server port (default: 9000)
  - BANKING_MODE: enable the stricter banking scoring profile
  - NETWORK_POLICY_FILE: YAML network policy (mode, allowlist, denylist)
  - ANTHROPIC_API_KEY: model provider credential; mock completions when absent
  - ANTHROPIC_MODEL: model override
  - DATA_DIR: journal directory (default: data)

# Endpoints

  - POST /proxy: mediated outbound call
  - POST /llm/claude: mediated model completion
  - GET /incidents: recent incidents
  - GET /health: health score and counters
  - POST /compliance/generate: HTML evidence pack
  - GET /metrics: Prometheus metrics
*/
package main
