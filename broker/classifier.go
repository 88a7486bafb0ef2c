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

package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient abstracts the HTTP transport so tests can stub it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClassifier calls an external safe/unsafe prompt classifier over HTTP.
// The endpoint receives {"text": ...} and answers
// {"is_safe": bool, "confidence": float}.
type HTTPClassifier struct {
	Endpoint string
	Client   HTTPClient
}

// NewHTTPClassifier builds a classifier for the given endpoint. Returns nil
// when the endpoint is empty so callers can plug the result straight into
// Firewall.Classifier.
func NewHTTPClassifier(endpoint string) *HTTPClassifier {
	if endpoint == "" {
		return nil
	}
	return &HTTPClassifier{
		Endpoint: endpoint,
		Client:   &http.Client{},
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	IsSafe     bool    `json:"is_safe"`
	Confidence float64 `json:"confidence"`
}

// Classify sends the text to the classifier endpoint. The context carries
// the firewall's soft budget; deadline errors surface as plain errors and
// the firewall treats them as a fail-open timeout.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (ClassifyResult, error) {
	start := time.Now()

	payload, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return ClassifyResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return ClassifyResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return ClassifyResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ClassifyResult{}, fmt.Errorf("classifier returned %d", resp.StatusCode)
	}

	var decoded classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ClassifyResult{}, err
	}

	return ClassifyResult{
		IsSafe:     decoded.IsSafe,
		Confidence: decoded.Confidence,
		Elapsed:    time.Since(start),
	}, nil
}
