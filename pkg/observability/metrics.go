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

// Package observability provides metrics for job reconciliation and
// pipeline execution, exported in Prometheus format through the OTel
// metric SDK.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics builds the Prometheus-backed recorder. When disabled it
// returns the noop recorder so call sites never branch.
func InitMetrics(enabled bool) (Recorder, error) {
	if !enabled {
		return NoopMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("mediaforge")

	reconciles, err := meter.Int64Counter(
		"mediaforge_job_reconciles_total",
		metric.WithDescription("Status events reconciled, by source and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciles counter: %w", err)
	}

	transitions, err := meter.Int64Counter(
		"mediaforge_job_transitions_total",
		metric.WithDescription("Job state transitions, by target state"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transitions counter: %w", err)
	}

	publishes, err := meter.Int64Counter(
		"mediaforge_publish_scheduled_total",
		metric.WithDescription("Publish actions scheduled on job completion"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create publishes counter: %w", err)
	}

	pollErrors, err := meter.Int64Counter(
		"mediaforge_poll_errors_total",
		metric.WithDescription("Backend poll attempts that failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll errors counter: %w", err)
	}

	agentDuration, err := meter.Float64Histogram(
		"mediaforge_agent_duration_seconds",
		metric.WithDescription("Agent execution duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent duration histogram: %w", err)
	}

	agentRetries, err := meter.Int64Counter(
		"mediaforge_agent_retries_total",
		metric.WithDescription("Agent execution retries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent retries counter: %w", err)
	}

	agentErrors, err := meter.Int64Counter(
		"mediaforge_agent_errors_total",
		metric.WithDescription("Agent executions that failed after retries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent errors counter: %w", err)
	}

	stageDuration, err := meter.Float64Histogram(
		"mediaforge_stage_duration_seconds",
		metric.WithDescription("Workflow stage duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stage duration histogram: %w", err)
	}

	llmTokens, err := meter.Int64Counter(
		"mediaforge_llm_tokens_total",
		metric.WithDescription("Tokens used, by model and direction"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm tokens counter: %w", err)
	}

	return &Metrics{
		reconciles:    reconciles,
		transitions:   transitions,
		publishes:     publishes,
		pollErrors:    pollErrors,
		agentDuration: agentDuration,
		agentRetries:  agentRetries,
		agentErrors:   agentErrors,
		stageDuration: stageDuration,
		llmTokens:     llmTokens,
		handler:       promhttp.Handler(),
	}, nil
}
