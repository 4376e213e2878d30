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

// Package llms provides the model invocation primitive for agents.
//
// Providers are thin HTTP clients over vendor APIs. Structured output is
// requested through Request.ResponseSchema: providers constrain the model
// to emit JSON conforming to the schema, and the raw JSON text comes back
// in Response.Text for the caller to decode.
package llms

import (
	"context"
	"fmt"

	"github.com/kadirpekel/mediaforge/pkg/config"
)

// Message is one conversation turn.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Request is a single model invocation.
type Request struct {
	System   string
	Messages []Message

	// ResponseSchema, when set, constrains the model to schema-conforming
	// JSON output. The map is a JSON Schema document.
	ResponseSchema     map[string]any
	ResponseSchemaName string

	Temperature float64
	MaxTokens   int
}

// Usage contains token accounting for one invocation.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Response is the result of one model invocation.
type Response struct {
	Text       string
	StopReason string
	Usage      Usage
}

// Provider is a single LLM vendor binding.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req *Request) (*Response, error)
	Close() error
}

// ProviderError is a vendor API error surfaced by a provider.
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProvider builds a provider from config, resolving the API key from the
// environment when the config leaves it empty.
func NewProvider(cfg *config.LLMConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm config cannot be nil")
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = config.ProviderAPIKey(cfg.Type)
	}

	switch cfg.Type {
	case "anthropic":
		return NewAnthropicProvider(cfg, apiKey)
	case "openai":
		return NewOpenAIProvider(cfg, apiKey)
	default:
		return nil, fmt.Errorf("unsupported llm type: %s", cfg.Type)
	}
}
