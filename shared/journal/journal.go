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

// Package journal implements the append-only JSONL event journals that every
// ShieldForce service writes its audit trail to. One file per concern lives
// under the data directory; each line is a self-contained JSON object that
// starts with a UTC timestamp and an event_type tag.
//
// Writes are best effort: an I/O failure is logged to stderr and never
// propagated to the request path.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MaskToken replaces the value of any masked field before the entry is
// serialized.
const MaskToken = "***MASKED***"

// Journal appends events to a single JSONL file.
type Journal struct {
	path string
	mu   sync.Mutex
}

// New creates a journal backed by the given file. The parent directory is
// created on first write, not here, so constructing journals is always cheap.
func New(path string) *Journal {
	return &Journal{path: path}
}

// Path returns the backing file path.
func (j *Journal) Path() string {
	return j.path
}

// Append writes one event. Keys listed in maskFields are replaced with
// MaskToken when present and non-empty. The entry always carries "timestamp"
// (ISO-8601, UTC, trailing Z) and "event_type"; payload keys never override
// those two.
func (j *Journal) Append(eventType string, payload map[string]interface{}, maskFields ...string) {
	entry := make(map[string]interface{}, len(payload)+2)
	for k, v := range payload {
		entry[k] = v
	}
	for _, f := range maskFields {
		if v, ok := entry[f]; ok && v != nil && v != "" {
			entry[f] = MaskToken
		}
	}
	entry["timestamp"] = time.Now().UTC().Format("2006-01-02T15:04:05.000000") + "Z"
	entry["event_type"] = eventType

	line, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to marshal journal entry: %v\n", err)
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to create journal dir: %v\n", err)
		return
	}
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to open journal: %v\n", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write journal: %v\n", err)
	}
}

// Tail reads up to max most-recent entries from the journal. Lines that fail
// to parse are skipped. A missing file yields an empty slice, not an error.
func (j *Journal) Tail(max int) []map[string]interface{} {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var entries []map[string]interface{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if max > 0 && len(entries) > max {
		entries = entries[len(entries)-max:]
	}
	return entries
}

// ParseTimestamp decodes the journal timestamp format back into a time.Time.
// Returns the zero time when the value is absent or malformed.
func ParseTimestamp(entry map[string]interface{}) time.Time {
	raw, _ := entry["timestamp"].(string)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02T15:04:05.000000Z", time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}
