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

package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHTTPClient captures the outgoing request and replays a canned response.
type mockHTTPClient struct {
	lastReq  *http.Request
	lastBody []byte
	status   int
	body     string
	err      error
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.lastReq = req
	if req.Body != nil {
		m.lastBody, _ = io.ReadAll(req.Body)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.status,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func newTestProvider(t *testing.T, client *mockHTTPClient) *Provider {
	t.Helper()
	p, err := NewProvider(Config{APIKey: "test-key"})
	require.NoError(t, err)
	p.client = client
	return p
}

// =============================================================================
// Construction
// =============================================================================

func TestNewProvider_RequiresAPIKey(t *testing.T) {
	_, err := NewProvider(Config{})
	assert.Error(t, err)
}

func TestNewProvider_Defaults(t *testing.T) {
	p, err := NewProvider(Config{APIKey: "test-key"})
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, p.baseURL)
	assert.Equal(t, DefaultAPIVersion, p.apiVersion)
	assert.Equal(t, DefaultModel, p.model)
	assert.Equal(t, "anthropic", p.Name())
	assert.True(t, p.IsHealthy())
}

// =============================================================================
// Complete
// =============================================================================

func TestComplete_Success(t *testing.T) {
	client := &mockHTTPClient{
		status: http.StatusOK,
		body: `{"model":"claude-3-5-sonnet-20241022","stop_reason":"end_turn",
			"content":[{"type":"text","text":"Hello "},{"type":"text","text":"world"}],
			"usage":{"input_tokens":10,"output_tokens":4}}`,
	}
	p := newTestProvider(t, client)

	resp, err := p.Complete(context.Background(), CompletionRequest{
		Prompt:       "say hello",
		SystemPrompt: "be brief",
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello world", resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 10, resp.Usage.InputTokens)
	assert.Equal(t, 4, resp.Usage.OutputTokens)
	assert.Equal(t, 14, resp.Usage.TotalTokens)

	// The wire request carries auth headers and the bounded token budget.
	assert.Equal(t, "test-key", client.lastReq.Header.Get("x-api-key"))
	assert.Equal(t, DefaultAPIVersion, client.lastReq.Header.Get("anthropic-version"))

	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(client.lastBody, &sent))
	assert.Equal(t, float64(DefaultMaxTokens), sent["max_tokens"])
	assert.Equal(t, "be brief", sent["system"])
}

func TestComplete_APIError(t *testing.T) {
	client := &mockHTTPClient{
		status: http.StatusTooManyRequests,
		body:   `{"error":{"type":"rate_limit_error","message":"slow down"}}`,
	}
	p := newTestProvider(t, client)

	_, err := p.Complete(context.Background(), CompletionRequest{Prompt: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit_error")
	assert.Contains(t, err.Error(), "slow down")
	// 4xx failures do not mark the provider unhealthy.
	assert.True(t, p.IsHealthy())
}

func TestComplete_ServerErrorMarksUnhealthy(t *testing.T) {
	client := &mockHTTPClient{status: http.StatusBadGateway, body: "upstream down"}
	p := newTestProvider(t, client)

	_, err := p.Complete(context.Background(), CompletionRequest{Prompt: "x"})

	require.Error(t, err)
	assert.False(t, p.IsHealthy())
}

func TestComplete_RecoversHealth(t *testing.T) {
	client := &mockHTTPClient{status: http.StatusInternalServerError, body: "boom"}
	p := newTestProvider(t, client)

	_, _ = p.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	require.False(t, p.IsHealthy())

	client.status = http.StatusOK
	client.body = `{"content":[{"type":"text","text":"ok"}],"usage":{"input_tokens":1,"output_tokens":1}}`

	resp, err := p.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.True(t, p.IsHealthy())
}
