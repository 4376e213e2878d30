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

// Package agent provides schema-validated LLM agents for the content
// pipeline. Each agent declares a typed output; the harness constrains the
// model to that schema and strictly decodes the result, so downstream
// stages always see well-formed values.
package agent

import (
	"context"
	"fmt"

	"github.com/kadirpekel/mediaforge/pkg/llms"
	"github.com/kadirpekel/mediaforge/pkg/registry"
)

// Input is what an agent receives for one execution.
type Input struct {
	// Topic is the subject the pipeline is producing content for.
	Topic string

	// Values holds outputs of previously completed agents, keyed by
	// agent name. Agents only read from it.
	Values map[string]any
}

// Output is one successful agent execution.
type Output struct {
	// Values is the agent's structured output as generic values.
	Values map[string]any

	// Raw is the model text the values were decoded from.
	Raw string

	Usage llms.Usage
}

// Agent executes one unit of pipeline work.
type Agent interface {
	Name() string
	Description() string
	Execute(ctx context.Context, in *Input) (*Output, error)
}

// Registry holds agents by name.
type Registry = registry.BaseRegistry[Agent]

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return registry.NewBaseRegistry[Agent]()
}

// ValidationError reports invalid agent input. It is not retryable:
// the same input will fail the same way.
type ValidationError struct {
	Agent   string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("agent %s: invalid input: %s: %s", e.Agent, e.Field, e.Message)
}

// OutputValidationError reports model output that failed strict decoding
// against the agent's output schema. Retrying can help: the model may
// produce conforming output on another attempt.
type OutputValidationError struct {
	Agent string
	Raw   string
	Err   error
}

func (e *OutputValidationError) Error() string {
	return fmt.Sprintf("agent %s: output failed schema validation: %v", e.Agent, e.Err)
}

func (e *OutputValidationError) Unwrap() error {
	return e.Err
}
