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

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kadirpekel/mediaforge/pkg/config"
	"github.com/kadirpekel/mediaforge/pkg/llms"
	"github.com/kadirpekel/mediaforge/pkg/logger"
)

// LLMAgent is the shared harness behind every pipeline agent: one model
// call, schema-constrained, strictly decoded.
type LLMAgent struct {
	name        string
	description string
	instruction string
	provider    llms.Provider
	schema      map[string]any
	decode      func(string) (map[string]any, error)
	logger      *slog.Logger
}

// NewTyped creates an agent whose output must decode into T.
func NewTyped[T any](cfg *config.AgentConfig, provider llms.Provider) (*LLMAgent, error) {
	schema, err := generateSchema[T]()
	if err != nil {
		return nil, fmt.Errorf("agent %s: failed to generate output schema: %w", cfg.Name, err)
	}

	return &LLMAgent{
		name:        cfg.Name,
		description: cfg.Description,
		instruction: cfg.Instruction,
		provider:    provider,
		schema:      schema,
		decode:      decodeStrict[T],
		logger:      logger.GetLogger(),
	}, nil
}

// NewFreeform creates an agent without an output schema. The model text
// comes back under the "text" key.
func NewFreeform(cfg *config.AgentConfig, provider llms.Provider) *LLMAgent {
	return &LLMAgent{
		name:        cfg.Name,
		description: cfg.Description,
		instruction: cfg.Instruction,
		provider:    provider,
		logger:      logger.GetLogger(),
	}
}

// Name returns the agent name.
func (a *LLMAgent) Name() string {
	return a.name
}

// Description returns the agent description.
func (a *LLMAgent) Description() string {
	return a.description
}

// Model returns the model behind the agent.
func (a *LLMAgent) Model() string {
	return a.provider.Model()
}

// OutputSchema returns the JSON schema the agent's output conforms to,
// or nil for freeform agents.
func (a *LLMAgent) OutputSchema() map[string]any {
	return a.schema
}

// Execute validates the input, runs one model call and decodes the output.
// Input validation fails fast without touching the model.
func (a *LLMAgent) Execute(ctx context.Context, in *Input) (*Output, error) {
	if in == nil {
		return nil, &ValidationError{Agent: a.name, Field: "input", Message: "cannot be nil"}
	}
	if strings.TrimSpace(in.Topic) == "" {
		return nil, &ValidationError{Agent: a.name, Field: "topic", Message: "cannot be empty"}
	}

	req := &llms.Request{
		System:             a.instruction,
		Messages:           []llms.Message{{Role: "user", Content: buildPrompt(in)}},
		ResponseSchema:     a.schema,
		ResponseSchemaName: a.name,
	}

	resp, err := a.provider.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.name, err)
	}

	a.logger.Debug("agent completed model call",
		"agent", a.name,
		"stop_reason", resp.StopReason,
		"tokens", resp.Usage.TotalTokens)

	values := map[string]any{"text": resp.Text}
	if a.decode != nil {
		values, err = a.decode(resp.Text)
		if err != nil {
			return nil, &OutputValidationError{Agent: a.name, Raw: resp.Text, Err: err}
		}
	}

	return &Output{Values: values, Raw: resp.Text, Usage: resp.Usage}, nil
}

// buildPrompt renders the topic plus any upstream agent outputs into a
// single user message.
func buildPrompt(in *Input) string {
	var b strings.Builder
	b.WriteString("Topic: ")
	b.WriteString(in.Topic)

	if len(in.Values) > 0 {
		if ctx, err := json.MarshalIndent(in.Values, "", "  "); err == nil {
			b.WriteString("\n\nContext from earlier pipeline steps:\n")
			b.Write(ctx)
		}
	}

	return b.String()
}
