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

package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "nested", "events.jsonl"))
}

// =============================================================================
// Append
// =============================================================================

func TestAppend_WritesTimestampAndEventType(t *testing.T) {
	j := newTestJournal(t)

	j.Append("invoke_allowed", map[string]interface{}{"agent_id": "bot-1"})

	entries := j.Tail(0)
	require.Len(t, entries, 1)
	assert.Equal(t, "invoke_allowed", entries[0]["event_type"])
	assert.Equal(t, "bot-1", entries[0]["agent_id"])

	ts, ok := entries[0]["timestamp"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(ts, "Z"), "timestamp must be UTC with trailing Z")
	assert.False(t, ParseTimestamp(entries[0]).IsZero())
}

func TestAppend_MasksListedFields(t *testing.T) {
	j := newTestJournal(t)

	j.Append("otp_sent", map[string]interface{}{
		"challenge_id": "c-1",
		"code":         "123456",
	}, "code")

	entries := j.Tail(0)
	require.Len(t, entries, 1)
	assert.Equal(t, MaskToken, entries[0]["code"])
	assert.Equal(t, "c-1", entries[0]["challenge_id"])

	raw, err := os.ReadFile(j.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "123456")
}

func TestAppend_PayloadCannotOverrideEventType(t *testing.T) {
	j := newTestJournal(t)

	j.Append("real_event", map[string]interface{}{"event_type": "forged"})

	entries := j.Tail(0)
	require.Len(t, entries, 1)
	assert.Equal(t, "real_event", entries[0]["event_type"])
}

func TestAppend_IsAppendOnly(t *testing.T) {
	j := newTestJournal(t)

	j.Append("first", nil)
	j.Append("second", nil)
	j.Append("third", nil)

	entries := j.Tail(0)
	require.Len(t, entries, 3)
	assert.Equal(t, "first", entries[0]["event_type"])
	assert.Equal(t, "third", entries[2]["event_type"])
}

// =============================================================================
// Tail
// =============================================================================

func TestTail_MissingFile(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "never-written.jsonl"))
	assert.Empty(t, j.Tail(10))
}

func TestTail_SkipsCorruptLines(t *testing.T) {
	j := newTestJournal(t)
	j.Append("good", nil)

	f, err := os.OpenFile(j.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	j.Append("also_good", nil)

	entries := j.Tail(0)
	require.Len(t, entries, 2)
	assert.Equal(t, "good", entries[0]["event_type"])
	assert.Equal(t, "also_good", entries[1]["event_type"])
}

func TestTail_BoundsResult(t *testing.T) {
	j := newTestJournal(t)
	for i := 0; i < 10; i++ {
		j.Append("event", map[string]interface{}{"n": i})
	}

	entries := j.Tail(3)
	require.Len(t, entries, 3)
	// Most recent entries survive.
	assert.Equal(t, float64(9), entries[2]["n"])
}

// =============================================================================
// Timestamp Parsing
// =============================================================================

func TestParseTimestamp(t *testing.T) {
	assert.True(t, ParseTimestamp(map[string]interface{}{}).IsZero())
	assert.True(t, ParseTimestamp(map[string]interface{}{"timestamp": "garbage"}).IsZero())

	ts := ParseTimestamp(map[string]interface{}{"timestamp": "2026-08-25T10:30:00.000000Z"})
	require.False(t, ts.IsZero())
	assert.Equal(t, 2026, ts.Year())
	assert.Equal(t, time.August, ts.Month())
}
