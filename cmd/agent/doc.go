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
Command agent runs the ShieldForce agent adapter.

The adapter executes on behalf of callers whose requests passed the
ingress broker. It trusts nothing but the capability token: every
operation is gated on the token's granted tools, and every external
side-effect is mediated by the egress gateway.

# Usage

	agent

# Environment Variables

Required:
  - CAPABILITY_SECRET: symmetric key shared with the broker

Optional:
  - AGENT_PORT: HTTP server port (default: 7000)
  - GATEWAY_URL: egress gateway URL (default: http://gateway:9000)
  - PAYEES_FILE: YAML pre-approved payee registry

# Endpoints

  - POST /_internal/run: token-protected agent invocation
  - GET /health: liveness
*/
package main
