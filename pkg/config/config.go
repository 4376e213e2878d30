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

// Package config defines the mediaforge configuration model.
//
// Configuration flows through a fixed pipeline:
//
//	PreProcess -> SetDefaults -> Validate
//
// Loading (YAML parse, env expansion, decode) lives in loader.go.
package config

import (
	"fmt"
)

// Config is the root configuration for a mediaforge instance.
type Config struct {
	Server    ServerConfig               `yaml:"server"`
	Backend   BackendConfig              `yaml:"backend"`
	Store     StoreConfig                `yaml:"store"`
	Publish   PublishConfig              `yaml:"publish"`
	Metrics   MetricsConfig              `yaml:"metrics"`
	LLMs      map[string]*LLMConfig      `yaml:"llms"`
	Agents    map[string]*AgentConfig    `yaml:"agents"`
	Workflows map[string]*WorkflowConfig `yaml:"workflows"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// BackendConfig configures the external generation backend.
type BackendConfig struct {
	Host            string `yaml:"host"`
	APIKey          string `yaml:"api_key"`
	TimeoutSeconds  int    `yaml:"timeout"`
	CallbackBaseURL string `yaml:"callback_base_url"`
	OutputLocation  string `yaml:"output_location"`
	PollInterval    int    `yaml:"poll_interval"` // seconds
}

// StoreConfig configures the job record store.
// Dialect "memory" keeps records in process; sqlite, postgres and mysql
// use database/sql with the matching driver.
type StoreConfig struct {
	Dialect string `yaml:"dialect"`
	DSN     string `yaml:"dsn"`
}

// PublishConfig configures chained publish scheduling.
type PublishConfig struct {
	BaseDelayMinutes int `yaml:"base_delay_minutes"`
	IntervalMinutes  int `yaml:"interval_minutes"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LLMConfig configures one LLM provider.
type LLMConfig struct {
	Type        string  `yaml:"type"` // anthropic, openai
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Host        string  `yaml:"host"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     int     `yaml:"timeout"` // seconds
}

// AgentConfig configures one pipeline agent.
type AgentConfig struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	LLM         string   `yaml:"llm"`
	Instruction string   `yaml:"instruction"`
	MaxRetries  int      `yaml:"max_retries"`
	DependsOn   []string `yaml:"depends_on"` // informational only, not a DAG schedule
}

// StageConfig declares one workflow stage and its fixed agent set.
type StageConfig struct {
	Name   string   `yaml:"name"`
	Agents []string `yaml:"agents"`
}

// WorkflowConfig configures one multi-stage workflow.
type WorkflowConfig struct {
	Name           string        `yaml:"name"`
	Description    string        `yaml:"description"`
	Stages         []StageConfig `yaml:"stages"`
	Parallel       bool          `yaml:"parallel"`
	StopOnError    bool          `yaml:"stop_on_error"`
	MaxRetries     int           `yaml:"max_retries"`
	StageTimeout   int           `yaml:"stage_timeout"` // seconds
	BackoffBaseMS  int           `yaml:"backoff_base_ms"`
	BackoffMaxMS   int           `yaml:"backoff_max_ms"`
	BackoffJitter  float64       `yaml:"backoff_jitter"`
}

// ProcessConfigPipeline runs the full config pipeline on a parsed Config.
func ProcessConfigPipeline(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ProcessConfigPipeline: config cannot be nil")
	}

	cfg.PreProcess()
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ProcessConfigPipeline: validation failed: %w", err)
	}

	return cfg, nil
}

// PreProcess initializes maps and fills derived fields before defaults.
func (c *Config) PreProcess() {
	if c.LLMs == nil {
		c.LLMs = make(map[string]*LLMConfig)
	}
	if c.Agents == nil {
		c.Agents = make(map[string]*AgentConfig)
	}
	if c.Workflows == nil {
		c.Workflows = make(map[string]*WorkflowConfig)
	}

	for name, agent := range c.Agents {
		if agent.Name == "" {
			agent.Name = name
		}
	}
	for name, wf := range c.Workflows {
		if wf.Name == "" {
			wf.Name = name
		}
	}
}

// SetDefaults fills zero values with working defaults. A completely empty
// config yields a runnable instance with the default content pipeline.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	if c.Backend.TimeoutSeconds == 0 {
		c.Backend.TimeoutSeconds = 120
	}
	if c.Backend.PollInterval == 0 {
		c.Backend.PollInterval = 15
	}

	if c.Store.Dialect == "" {
		c.Store.Dialect = "memory"
	}
	if c.Store.Dialect == "sqlite" && c.Store.DSN == "" {
		c.Store.DSN = "mediaforge.db"
	}

	if c.Publish.BaseDelayMinutes == 0 {
		c.Publish.BaseDelayMinutes = 10
	}
	if c.Publish.IntervalMinutes == 0 {
		c.Publish.IntervalMinutes = 30
	}

	if len(c.LLMs) == 0 {
		c.LLMs["default"] = &LLMConfig{
			Type:  "anthropic",
			Model: "claude-3-5-haiku-latest",
		}
	}
	for _, llm := range c.LLMs {
		if llm.Temperature == 0 {
			llm.Temperature = 0.7
		}
		if llm.MaxTokens == 0 {
			llm.MaxTokens = 4096
		}
		if llm.Timeout == 0 {
			llm.Timeout = 120
		}
	}

	if len(c.Agents) == 0 && len(c.Workflows) == 0 {
		c.applyDefaultPipeline()
	}

	for _, agent := range c.Agents {
		if agent.LLM == "" {
			agent.LLM = firstLLMName(c.LLMs)
		}
		if agent.MaxRetries == 0 {
			agent.MaxRetries = 2
		}
	}

	for _, wf := range c.Workflows {
		if wf.MaxRetries == 0 {
			wf.MaxRetries = 2
		}
		if wf.StageTimeout == 0 {
			wf.StageTimeout = 300
		}
		if wf.BackoffBaseMS == 0 {
			wf.BackoffBaseMS = 1000
		}
		if wf.BackoffMaxMS == 0 {
			wf.BackoffMaxMS = 30000
		}
	}
}

func firstLLMName(llms map[string]*LLMConfig) string {
	if _, ok := llms["default"]; ok {
		return "default"
	}
	for name := range llms {
		return name
	}
	return "default"
}

// Validate checks referential integrity across the config.
func (c *Config) Validate() error {
	switch c.Store.Dialect {
	case "memory", "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported store dialect: %s (supported: memory, sqlite, postgres, mysql)", c.Store.Dialect)
	}
	if c.Store.Dialect != "memory" && c.Store.DSN == "" {
		return fmt.Errorf("store dialect %s requires a dsn", c.Store.Dialect)
	}

	for name, llm := range c.LLMs {
		switch llm.Type {
		case "anthropic", "openai":
		default:
			return fmt.Errorf("llm %s: unsupported type %s (supported: anthropic, openai)", name, llm.Type)
		}
		if llm.Model == "" {
			return fmt.Errorf("llm %s: model is required", name)
		}
	}

	for name, agent := range c.Agents {
		if _, ok := c.LLMs[agent.LLM]; !ok {
			return fmt.Errorf("agent %s: llm %q not defined", name, agent.LLM)
		}
		for _, dep := range agent.DependsOn {
			if _, ok := c.Agents[dep]; !ok {
				return fmt.Errorf("agent %s: depends_on %q not defined", name, dep)
			}
		}
	}

	for name, wf := range c.Workflows {
		if len(wf.Stages) == 0 {
			return fmt.Errorf("workflow %s: at least one stage is required", name)
		}
		seen := make(map[string]bool)
		for _, stage := range wf.Stages {
			if stage.Name == "" {
				return fmt.Errorf("workflow %s: stage name cannot be empty", name)
			}
			if seen[stage.Name] {
				return fmt.Errorf("workflow %s: duplicate stage %q", name, stage.Name)
			}
			seen[stage.Name] = true
			if len(stage.Agents) == 0 {
				return fmt.Errorf("workflow %s: stage %q has no agents", name, stage.Name)
			}
			for _, agentID := range stage.Agents {
				if _, ok := c.Agents[agentID]; !ok {
					return fmt.Errorf("workflow %s: stage %q references unknown agent %q", name, stage.Name, agentID)
				}
			}
		}
	}

	return nil
}
