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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedBaseline feeds count identical daytime samples for the agent, spaced
// a minute apart so no frequency spike accrues.
func seedBaseline(e *BehaviorEngine, agentID string, count int) time.Time {
	at := time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		e.Observe(agentID, Sample{
			At:          at,
			PayloadSize: 1000,
			Method:      "GET",
			Domain:      "api.example.com",
		})
		at = at.Add(time.Minute)
	}
	return at
}

// =============================================================================
// Warm-up
// =============================================================================

func TestObserve_SilentDuringLearning(t *testing.T) {
	e := NewBehaviorEngine(false)
	at := time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC)

	// Nine samples in: every check is still silent, even obvious anomalies.
	for i := 0; i < 9; i++ {
		e.Observe("bot", Sample{At: at, PayloadSize: 100, Method: "GET", Domain: "a.example.com"})
	}
	score, reasons := e.Observe("bot", Sample{
		At: at, PayloadSize: 1000000, Method: "POST", Domain: "evil.example.net",
	})

	assert.Equal(t, 0, score)
	assert.Empty(t, reasons)
}

func TestObserve_ChecksFireAfterWarmup(t *testing.T) {
	e := NewBehaviorEngine(false)
	at := seedBaseline(e, "bot", warmupSamples)

	score, reasons := e.Observe("bot", Sample{
		At: at, PayloadSize: 1000, Method: "GET", Domain: "unseen.example.net",
	})

	assert.Equal(t, weightNewDomain+weightNewAPI, score)
	assert.Contains(t, reasons, "new_domain:unseen.example.net")
	assert.Contains(t, reasons, "new_api:GET:unseen.example.net")
}

// =============================================================================
// Individual Checks
// =============================================================================

func TestObserve_KnownDomainStaysQuiet(t *testing.T) {
	e := NewBehaviorEngine(false)
	at := seedBaseline(e, "bot", warmupSamples)

	score, reasons := e.Observe("bot", Sample{
		At: at, PayloadSize: 1000, Method: "GET", Domain: "api.example.com",
	})

	assert.Equal(t, 0, score)
	assert.Empty(t, reasons)
}

func TestObserve_PayloadSpike(t *testing.T) {
	e := NewBehaviorEngine(false)
	at := seedBaseline(e, "bot", warmupSamples)

	// Max ever is 1000; 3x is the standard trigger.
	score, reasons := e.Observe("bot", Sample{
		At: at, PayloadSize: 3001, Method: "GET", Domain: "api.example.com",
	})

	assert.Equal(t, weightPayloadSpike, score)
	assert.Contains(t, reasons, "oversized_payload")
}

func TestObserve_PayloadSpike_BankingStricter(t *testing.T) {
	e := NewBehaviorEngine(true)
	at := seedBaseline(e, "bot", warmupSamples)

	// 2x suffices in banking mode; hour 14 is inside business hours.
	score, reasons := e.Observe("bot", Sample{
		At: at, PayloadSize: 2001, Method: "GET", Domain: "api.example.com",
	})

	assert.Equal(t, weightPayloadBanking, score)
	assert.Contains(t, reasons, "oversized_payload")
}

func TestObserve_FrequencySpike(t *testing.T) {
	e := NewBehaviorEngine(false)
	at := seedBaseline(e, "bot", warmupSamples)

	// Hammer the same instant against a ~1/min baseline. The recent-minute
	// count races ahead while the learned rate stays put.
	var score int
	var reasons []string
	for i := 0; i < 10; i++ {
		score, reasons = e.Observe("bot", Sample{
			At: at, PayloadSize: 1000, Method: "GET", Domain: "api.example.com",
		})
	}

	assert.Equal(t, weightFreqSpike, score)
	assert.Equal(t, []string{"frequency_spike"}, reasons)
}

func TestObserve_UnusualHour_Banking(t *testing.T) {
	e := NewBehaviorEngine(true)
	seedBaseline(e, "bot", warmupSamples)

	// 03:00 is outside the 06:00-22:00 banking window.
	night := time.Date(2026, 8, 26, 3, 0, 0, 0, time.UTC)
	score, reasons := e.Observe("bot", Sample{
		At: night, PayloadSize: 1000, Method: "GET", Domain: "api.example.com",
	})

	assert.Equal(t, weightUnusualBanking, score)
	assert.Contains(t, reasons, "unusual_hour")
}

func TestObserve_OddHour_Standard(t *testing.T) {
	e := NewBehaviorEngine(false)
	at := seedBaseline(e, "bot", warmupHourSamples)

	// Baseline hour is 14:00; 03:00 is more than three hours away even
	// with midnight wrap-around.
	night := at.Truncate(24 * time.Hour).Add(27 * time.Hour)
	require.Equal(t, 3, night.Hour())

	score, reasons := e.Observe("bot", Sample{
		At: night, PayloadSize: 1000, Method: "GET", Domain: "api.example.com",
	})

	assert.Equal(t, weightOddHour, score)
	assert.Contains(t, reasons, "odd_hour")
}

// =============================================================================
// Contribution Cap
// =============================================================================

func TestObserve_CappedAtFifty(t *testing.T) {
	e := NewBehaviorEngine(true)
	at := seedBaseline(e, "bot", warmupSamples)

	// New domain (+40), new api (+35), payload spike (+30) in banking mode
	// would sum past the cap.
	score, _ := e.Observe("bot", Sample{
		At: at, PayloadSize: 50000, Method: "POST", Domain: "fresh.example.net",
	})

	assert.Equal(t, behaviorCap, score)
}

// =============================================================================
// Hour Distance
// =============================================================================

func TestHourDistance_WrapsAroundMidnight(t *testing.T) {
	tests := []struct {
		a, b float64
		want float64
	}{
		{23, 1, 2},
		{1, 23, 2},
		{0, 12, 12},
		{14, 14, 0},
		{22, 3, 5},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v_%v", tt.a, tt.b), func(t *testing.T) {
			assert.Equal(t, tt.want, hourDistance(tt.a, tt.b))
		})
	}
}

// =============================================================================
// Bookkeeping
// =============================================================================

func TestAgentCount(t *testing.T) {
	e := NewBehaviorEngine(false)
	assert.Equal(t, 0, e.AgentCount())

	now := time.Now()
	e.Observe("a", Sample{At: now, Method: "GET", Domain: "x.com"})
	e.Observe("b", Sample{At: now, Method: "GET", Domain: "x.com"})
	e.Observe("a", Sample{At: now, Method: "GET", Domain: "x.com"})

	assert.Equal(t, 2, e.AgentCount())
}
