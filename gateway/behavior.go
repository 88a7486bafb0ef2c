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
	"math"
	"sync"
	"time"
)

// Behavioral scoring parameters. Banking mode uses the stricter column.
const (
	behaviorCap = 50

	warmupSamples     = 10
	warmupHourSamples = 15

	emaAlpha = 0.1

	timestampWindow = 100

	weightNewDomain        = 30
	weightNewDomainBanking = 40
	weightNewAPI           = 20
	weightNewAPIBanking    = 35
	weightPayloadSpike     = 20
	weightPayloadBanking   = 30
	weightFreqSpike        = 25
	weightFreqBanking      = 30
	weightOddHour          = 10
	weightUnusualBanking   = 15

	payloadSpikeFactor        = 3.0
	payloadSpikeFactorBanking = 2.0
	freqSpikeFactor           = 5.0
	freqSpikeFactorBanking    = 3.0

	bankingHourOpen  = 6
	bankingHourClose = 22
)

// Sample is one observed outbound request.
type Sample struct {
	At          time.Time
	PayloadSize int
	Method      string
	Domain      string
}

func (s Sample) endpointSig() string {
	return s.Method + ":" + s.Domain
}

// baseline is the per-agent learned profile. All fields are guarded by the
// engine mutex.
type baseline struct {
	sampleCount int
	timestamps  []time.Time

	lastAt time.Time

	payloadMean float64
	payloadMax  int
	freqMean    float64 // requests per minute, EMA of 1/gap
	hourMean    float64 // active hour of day, EMA

	knownDomains map[string]bool
	knownAPIs    map[string]bool
}

// baselineView is the consistent snapshot taken under the lock and scored
// without it.
type baselineView struct {
	sampleCount int
	recentCount int // requests in the 60s before the sample
	payloadMax  int
	freqMean    float64
	hourMean    float64
	knownDomain bool
	knownAPI    bool
}

// BehaviorEngine maintains per-agent baselines and scores each sample
// against the baseline as it stood before the sample.
type BehaviorEngine struct {
	mu      sync.Mutex
	agents  map[string]*baseline
	banking bool

	now func() time.Time
}

// NewBehaviorEngine builds an empty engine.
func NewBehaviorEngine(banking bool) *BehaviorEngine {
	return &BehaviorEngine{
		agents:  make(map[string]*baseline),
		banking: banking,
		now:     time.Now,
	}
}

// Observe scores one sample against the agent's pre-sample baseline and
// then folds the sample in. The contribution is capped at 50. During the
// warm-up phase checks stay silent but the baseline still learns.
func (e *BehaviorEngine) Observe(agentID string, s Sample) (int, []string) {
	view := e.snapshotLocked(agentID, s)
	score, reasons := e.score(view, s)
	e.update(agentID, s)
	return score, reasons
}

// snapshotLocked copies the fields scoring needs under the lock.
func (e *BehaviorEngine) snapshotLocked(agentID string, s Sample) baselineView {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.agents[agentID]
	if !ok {
		return baselineView{}
	}

	recent := 0
	cutoff := s.At.Add(-time.Minute)
	for _, ts := range b.timestamps {
		if ts.After(cutoff) {
			recent++
		}
	}

	return baselineView{
		sampleCount: b.sampleCount,
		recentCount: recent,
		payloadMax:  b.payloadMax,
		freqMean:    b.freqMean,
		hourMean:    b.hourMean,
		knownDomain: b.knownDomains[s.Domain],
		knownAPI:    b.knownAPIs[s.endpointSig()],
	}
}

func (e *BehaviorEngine) score(v baselineView, s Sample) (int, []string) {
	if v.sampleCount < warmupSamples {
		return 0, nil
	}

	score := 0
	var reasons []string

	if !v.knownDomain && s.Domain != "" {
		score += pick(e.banking, weightNewDomainBanking, weightNewDomain)
		reasons = append(reasons, "new_domain:"+s.Domain)
	}
	if !v.knownAPI {
		score += pick(e.banking, weightNewAPIBanking, weightNewAPI)
		reasons = append(reasons, "new_api:"+s.endpointSig())
	}

	spikeFactor := pickF(e.banking, payloadSpikeFactorBanking, payloadSpikeFactor)
	if v.payloadMax > 0 && float64(s.PayloadSize) > float64(v.payloadMax)*spikeFactor {
		score += pick(e.banking, weightPayloadBanking, weightPayloadSpike)
		reasons = append(reasons, "oversized_payload")
	}

	freqFactor := pickF(e.banking, freqSpikeFactorBanking, freqSpikeFactor)
	if v.freqMean > 0 && float64(v.recentCount) > v.freqMean*freqFactor {
		score += pick(e.banking, weightFreqBanking, weightFreqSpike)
		reasons = append(reasons, "frequency_spike")
	}

	hour := s.At.Hour()
	if e.banking {
		if hour < bankingHourOpen || hour >= bankingHourClose {
			score += weightUnusualBanking
			reasons = append(reasons, "unusual_hour")
		}
	} else if v.sampleCount >= warmupHourSamples {
		if hourDistance(float64(hour), v.hourMean) > 3 {
			score += weightOddHour
			reasons = append(reasons, "odd_hour")
		}
	}

	if score > behaviorCap {
		score = behaviorCap
	}
	return score, reasons
}

// update folds the sample into the baseline.
func (e *BehaviorEngine) update(agentID string, s Sample) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.agents[agentID]
	if !ok {
		b = &baseline{
			knownDomains: make(map[string]bool),
			knownAPIs:    make(map[string]bool),
		}
		e.agents[agentID] = b
	}

	b.timestamps = append(b.timestamps, s.At)
	if len(b.timestamps) > timestampWindow {
		b.timestamps = b.timestamps[len(b.timestamps)-timestampWindow:]
	}

	// Strict running mean for payload, EMA for frequency and hour. The
	// frequency mean tracks the instantaneous rate between consecutive
	// requests; zero gaps are skipped so a burst cannot drag the mean up
	// as fast as the burst itself grows.
	n := float64(b.sampleCount)
	b.payloadMean = (b.payloadMean*n + float64(s.PayloadSize)) / (n + 1)
	if s.PayloadSize > b.payloadMax {
		b.payloadMax = s.PayloadSize
	}
	if !b.lastAt.IsZero() {
		if gap := s.At.Sub(b.lastAt); gap > 0 {
			perMin := float64(time.Minute) / float64(gap)
			b.freqMean = b.freqMean*(1-emaAlpha) + perMin*emaAlpha
		}
	}
	b.lastAt = s.At
	if b.sampleCount == 0 {
		b.hourMean = float64(s.At.Hour())
	} else {
		b.hourMean = b.hourMean*(1-emaAlpha) + float64(s.At.Hour())*emaAlpha
	}

	if s.Domain != "" {
		b.knownDomains[s.Domain] = true
	}
	b.knownAPIs[s.endpointSig()] = true

	b.sampleCount++
}

// AgentCount reports how many distinct agents have baselines.
func (e *BehaviorEngine) AgentCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.agents)
}

// hourDistance is the hour-of-day gap with wrap-around at midnight, so
// 23:00 and 01:00 are 2 apart.
func hourDistance(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 12 {
		d = 24 - d
	}
	return d
}

func pick(banking bool, strict, normal int) int {
	if banking {
		return strict
	}
	return normal
}

func pickF(banking bool, strict, normal float64) float64 {
	if banking {
		return strict
	}
	return normal
}
