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

package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kadirpekel/mediaforge/pkg/agent"
	"github.com/kadirpekel/mediaforge/pkg/config"
	"github.com/kadirpekel/mediaforge/pkg/logger"
	"github.com/kadirpekel/mediaforge/pkg/observability"
)

// Orchestrator executes one workflow definition against a set of agents.
type Orchestrator struct {
	cfg     *config.WorkflowConfig
	agents  *agent.Registry
	retries map[string]int // per-agent retry budget
	metrics observability.Recorder
	logger  *slog.Logger
}

// NewOrchestrator builds an orchestrator. Every agent referenced by a
// stage must already be registered.
func NewOrchestrator(cfg *config.WorkflowConfig, agentCfgs map[string]*config.AgentConfig, agents *agent.Registry, metrics observability.Recorder) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("workflow config cannot be nil")
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}

	retries := make(map[string]int)
	for _, stage := range cfg.Stages {
		for _, name := range stage.Agents {
			if _, ok := agents.Get(name); !ok {
				return nil, fmt.Errorf("workflow %s: agent %q not registered", cfg.Name, name)
			}
			retries[name] = cfg.MaxRetries
			if ac, ok := agentCfgs[name]; ok && ac.MaxRetries > 0 {
				retries[name] = ac.MaxRetries
			}
		}
	}

	return &Orchestrator{
		cfg:     cfg,
		agents:  agents,
		retries: retries,
		metrics: metrics,
		logger:  logger.GetLogger(),
	}, nil
}

// Execute runs the workflow to completion. Stages run in declared order;
// a failed stage stops the run when stop_on_error is set, otherwise later
// stages still run against whatever values merged so far.
func (o *Orchestrator) Execute(ctx context.Context, topic string) (*Result, error) {
	start := time.Now()
	wctx := NewContext(topic)

	result := &Result{
		Workflow: o.cfg.Name,
		Status:   StatusCompleted,
	}

	stopped := false
	for _, stage := range o.cfg.Stages {
		if stopped {
			result.Stages = append(result.Stages, &StageResult{
				Name:   stage.Name,
				Status: StatusSkipped,
				Agents: make(map[string]*AgentResult),
			})
			continue
		}

		sr := o.executeStage(ctx, wctx, stage)
		wctx.RecordStage(sr)
		result.Stages = append(result.Stages, sr)

		if sr.Status == StatusFailed {
			result.Status = StatusFailed
			if o.cfg.StopOnError {
				stopped = true
			}
		}
	}

	result.Values = wctx.Values()
	result.Duration = time.Since(start)

	o.logger.Info("workflow finished",
		"workflow", o.cfg.Name,
		"status", result.Status,
		"duration", result.Duration)

	return result, nil
}

// executeStage runs all agents of one stage and merges their outputs.
// Agents run in parallel when the workflow allows it; a failing agent
// never cancels its siblings. Merging happens after every agent finished,
// in declared order, so the value map stays deterministic.
func (o *Orchestrator) executeStage(ctx context.Context, wctx *Context, stage config.StageConfig) *StageResult {
	start := time.Now()

	stageCtx := ctx
	if o.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, time.Duration(o.cfg.StageTimeout)*time.Second)
		defer cancel()
	}

	o.logger.Info("stage started",
		"workflow", o.cfg.Name,
		"stage", stage.Name,
		"agents", len(stage.Agents))

	// Every agent in the stage sees the same snapshot of values from
	// earlier stages, regardless of execution order.
	input := &agent.Input{Topic: wctx.Topic, Values: wctx.Values()}

	results := make([]*AgentResult, len(stage.Agents))
	if o.cfg.Parallel && len(stage.Agents) > 1 {
		var wg sync.WaitGroup
		for i, name := range stage.Agents {
			wg.Add(1)
			go func(i int, name string) {
				defer wg.Done()
				results[i] = o.executeAgent(stageCtx, name, input)
			}(i, name)
		}
		wg.Wait()
	} else {
		for i, name := range stage.Agents {
			results[i] = o.executeAgent(stageCtx, name, input)
		}
	}

	sr := &StageResult{
		Name:   stage.Name,
		Status: StatusCompleted,
		Agents: make(map[string]*AgentResult, len(results)),
	}

	for _, ar := range results {
		sr.Agents[ar.Agent] = ar
		if ar.Status == StatusFailed {
			sr.Status = StatusFailed
			continue
		}
		mergeOutput(wctx, ar.Agent, ar.Values)
	}

	sr.Duration = time.Since(start)
	o.metrics.RecordStageDuration(o.cfg.Name, stage.Name, sr.Duration)

	o.logger.Info("stage finished",
		"workflow", o.cfg.Name,
		"stage", stage.Name,
		"status", sr.Status,
		"duration", sr.Duration)

	return sr
}

// executeAgent runs one agent behind the retryer and always returns a
// result, failed or not.
func (o *Orchestrator) executeAgent(ctx context.Context, name string, input *agent.Input) *AgentResult {
	start := time.Now()

	a, _ := o.agents.Get(name)

	retryer := NewRetryer(RetryConfig{
		MaxRetries:   o.retries[name],
		BaseDelay:    time.Duration(o.cfg.BackoffBaseMS) * time.Millisecond,
		MaxDelay:     time.Duration(o.cfg.BackoffMaxMS) * time.Millisecond,
		JitterFactor: o.cfg.BackoffJitter,
	})

	attempts := 1
	out, err := DoWithResult(ctx, retryer, "agent "+name, func() {
		attempts++
		o.metrics.RecordAgentRetry(name)
	}, func() (*agent.Output, error) {
		return a.Execute(ctx, input)
	})

	duration := time.Since(start)
	o.metrics.RecordAgentExecution(name, duration)

	if err != nil {
		o.metrics.RecordAgentError(name)
		o.logger.Error("agent failed",
			"agent", name,
			"attempts", attempts,
			"error", err)
		return &AgentResult{
			Agent:    name,
			Status:   StatusFailed,
			Error:    err.Error(),
			Attempts: attempts,
			Duration: duration,
		}
	}

	if mn, ok := a.(interface{ Model() string }); ok {
		o.metrics.RecordLLMTokens(mn.Model(), out.Usage.InputTokens, out.Usage.OutputTokens)
	}

	return &AgentResult{
		Agent:    name,
		Status:   StatusCompleted,
		Values:   out.Values,
		Attempts: attempts,
		Duration: duration,
	}
}
