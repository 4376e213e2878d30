// Copyright 2025 Kadir Pekel
//
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

// Package workflow runs multi-stage agent pipelines. Stages execute in
// declared order; agents within a stage run in parallel when the workflow
// allows it. Outputs fold into a shared value map through per-agent merge
// rules, and every model call sits behind bounded retry.
package workflow

import (
	"sync"
	"time"
)

// Status describes a workflow, stage or agent execution state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// AgentResult records one agent execution within a stage.
type AgentResult struct {
	Agent    string         `json:"agent"`
	Status   Status         `json:"status"`
	Values   map[string]any `json:"values,omitempty"`
	Error    string         `json:"error,omitempty"`
	Attempts int            `json:"attempts"`
	Duration time.Duration  `json:"duration"`
}

// StageResult records one completed stage.
type StageResult struct {
	Name     string                  `json:"name"`
	Status   Status                  `json:"status"`
	Agents   map[string]*AgentResult `json:"agents"`
	Duration time.Duration           `json:"duration"`
}

// Result is the outcome of a full workflow run.
type Result struct {
	Workflow string         `json:"workflow"`
	Status   Status         `json:"status"`
	Stages   []*StageResult `json:"stages"`
	Values   map[string]any `json:"values"`
	Duration time.Duration  `json:"duration"`
}

// Context carries accumulated pipeline state across stages. Values holds
// merged agent outputs; agents in later stages read what earlier stages
// produced.
type Context struct {
	Topic string

	mu     sync.Mutex
	values map[string]any
	stages map[string]*StageResult
}

// NewContext creates a workflow context for a topic.
func NewContext(topic string) *Context {
	return &Context{
		Topic:  topic,
		values: make(map[string]any),
		stages: make(map[string]*StageResult),
	}
}

// SetValue stores a merged value.
func (c *Context) SetValue(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Value returns a merged value.
func (c *Context) Value(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// Values returns a copy of the merged values, safe to hand to agents
// running in parallel.
func (c *Context) Values() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make(map[string]any, len(c.values))
	for k, v := range c.values {
		snapshot[k] = v
	}
	return snapshot
}

// RecordStage stores a finished stage result.
func (c *Context) RecordStage(result *StageResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stages[result.Name] = result
}

// Stage returns a previously recorded stage result.
func (c *Context) Stage(name string) (*StageResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stages[name]
	return s, ok
}
