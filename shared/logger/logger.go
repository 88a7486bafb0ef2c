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

package logger

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger provides structured logging for a single ShieldForce service.
// Entries are emitted as one JSON object per line on stdout so the
// container runtime can capture them.
type Logger struct {
	Component string
	Instance  string
}

// Entry is the wire shape of a single log line.
type Entry struct {
	Timestamp string                 `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Component string                 `json:"component"`
	Instance  string                 `json:"instance"`
	AgentID   string                 `json:"agent_id,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// New creates a Logger for the named component (broker, agent, gateway).
func New(component string) *Logger {
	instance, err := os.Hostname()
	if err != nil {
		instance = "unknown"
	}
	return &Logger{Component: component, Instance: instance}
}

// Log writes a structured entry to stdout.
func (l *Logger) Log(level LogLevel, agentID, requestID, message string, fields map[string]interface{}) {
	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Component: l.Component,
		Instance:  l.Instance,
		AgentID:   agentID,
		RequestID: requestID,
		Message:   message,
		Fields:    fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		log.Printf("ERROR: failed to marshal log entry: %v", err)
		return
	}
	log.Println(string(jsonBytes))
}

// Info logs an informational message
func (l *Logger) Info(agentID, requestID, message string, fields map[string]interface{}) {
	l.Log(INFO, agentID, requestID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(agentID, requestID, message string, fields map[string]interface{}) {
	l.Log(WARN, agentID, requestID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(agentID, requestID, message string, fields map[string]interface{}) {
	l.Log(ERROR, agentID, requestID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(agentID, requestID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, agentID, requestID, message, fields)
}

// InfoWithDuration logs an info message with a duration_ms field attached.
func (l *Logger) InfoWithDuration(agentID, requestID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(agentID, requestID, message, fields)
}
