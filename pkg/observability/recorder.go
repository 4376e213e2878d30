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

package observability

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder records domain metrics. Call sites hold a Recorder so tests
// and disabled deployments use the noop implementation.
type Recorder interface {
	// Job lifecycle
	RecordReconcile(source, outcome string)
	RecordTransition(state string)
	RecordPublishScheduled()
	RecordPollError()

	// Pipeline
	RecordAgentExecution(agentName string, duration time.Duration)
	RecordAgentRetry(agentName string)
	RecordAgentError(agentName string)
	RecordStageDuration(workflow, stage string, duration time.Duration)
	RecordLLMTokens(model string, inputTokens, outputTokens int)

	// Handler serves the metrics endpoint.
	Handler() http.Handler
}

// Metrics is the Prometheus-backed Recorder.
type Metrics struct {
	reconciles    metric.Int64Counter
	transitions   metric.Int64Counter
	publishes     metric.Int64Counter
	pollErrors    metric.Int64Counter
	agentDuration metric.Float64Histogram
	agentRetries  metric.Int64Counter
	agentErrors   metric.Int64Counter
	stageDuration metric.Float64Histogram
	llmTokens     metric.Int64Counter
	handler       http.Handler
}

func (m *Metrics) RecordReconcile(source, outcome string) {
	m.reconciles.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordTransition(state string) {
	m.transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("state", state),
	))
}

func (m *Metrics) RecordPublishScheduled() {
	m.publishes.Add(context.Background(), 1)
}

func (m *Metrics) RecordPollError() {
	m.pollErrors.Add(context.Background(), 1)
}

func (m *Metrics) RecordAgentExecution(agentName string, duration time.Duration) {
	m.agentDuration.Record(context.Background(), duration.Seconds(), metric.WithAttributes(
		attribute.String("agent", agentName),
	))
}

func (m *Metrics) RecordAgentRetry(agentName string) {
	m.agentRetries.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("agent", agentName),
	))
}

func (m *Metrics) RecordAgentError(agentName string) {
	m.agentErrors.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("agent", agentName),
	))
}

func (m *Metrics) RecordStageDuration(workflow, stage string, duration time.Duration) {
	m.stageDuration.Record(context.Background(), duration.Seconds(), metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("stage", stage),
	))
}

func (m *Metrics) RecordLLMTokens(model string, inputTokens, outputTokens int) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.llmTokens.Add(context.Background(), int64(inputTokens), attrs,
		metric.WithAttributes(attribute.String("direction", "input")))
	m.llmTokens.Add(context.Background(), int64(outputTokens), attrs,
		metric.WithAttributes(attribute.String("direction", "output")))
}

func (m *Metrics) Handler() http.Handler {
	return m.handler
}

// NoopMetrics is a Recorder that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) RecordReconcile(_, _ string)                               {}
func (NoopMetrics) RecordTransition(_ string)                                 {}
func (NoopMetrics) RecordPublishScheduled()                                   {}
func (NoopMetrics) RecordPollError()                                          {}
func (NoopMetrics) RecordAgentExecution(_ string, _ time.Duration)            {}
func (NoopMetrics) RecordAgentRetry(_ string)                                 {}
func (NoopMetrics) RecordAgentError(_ string)                                 {}
func (NoopMetrics) RecordStageDuration(_, _ string, _ time.Duration)          {}
func (NoopMetrics) RecordLLMTokens(_ string, _, _ int)                        {}

// Handler returns a handler that reports metrics as disabled.
func (NoopMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("metrics not enabled"))
	})
}

// Ensure implementations satisfy the interface.
var (
	_ Recorder = (*Metrics)(nil)
	_ Recorder = NoopMetrics{}
)
