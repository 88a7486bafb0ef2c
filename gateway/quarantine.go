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
	"sort"
	"sync"
	"time"
)

// QuarantineSet maps agent IDs to the time they were quarantined. Entry is
// sticky for the life of the process; there is no automatic exit.
type QuarantineSet struct {
	mu     sync.Mutex
	agents map[string]time.Time
}

// NewQuarantineSet builds an empty set.
func NewQuarantineSet() *QuarantineSet {
	return &QuarantineSet{agents: make(map[string]time.Time)}
}

// Contains reports whether the agent is quarantined.
func (q *QuarantineSet) Contains(agentID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.agents[agentID]
	return ok
}

// Add quarantines the agent, keeping the original entry time on repeats.
// Returns true when the agent was newly added.
func (q *QuarantineSet) Add(agentID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.agents[agentID]; ok {
		return false
	}
	q.agents[agentID] = time.Now().UTC()
	return true
}

// Len reports the number of quarantined agents.
func (q *QuarantineSet) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.agents)
}

// Entries returns the quarantined agents sorted by entry time.
func (q *QuarantineSet) Entries() []QuarantineEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := make([]QuarantineEntry, 0, len(q.agents))
	for agent, at := range q.agents {
		entries = append(entries, QuarantineEntry{AgentID: agent, Since: at})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Since.Before(entries[j].Since) })
	return entries
}

// QuarantineEntry is one quarantined agent with its entry time.
type QuarantineEntry struct {
	AgentID string    `json:"agent_id"`
	Since   time.Time `json:"since"`
}
