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

package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kadirpekel/mediaforge/pkg/config"
	"github.com/kadirpekel/mediaforge/pkg/httpclient"
)

const (
	anthropicDefaultHost = "https://api.anthropic.com"
	anthropicVersion     = "2023-06-01"

	// structuredOutputTool is the forced tool used to obtain
	// schema-conforming JSON from the messages API.
	structuredOutputTool = "emit_result"
)

// AnthropicProvider implements Provider for the Anthropic messages API.
type AnthropicProvider struct {
	cfg    *config.LLMConfig
	apiKey string
	host   string
	client *httpclient.Client
	tokens *TokenCounter
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string               `json:"model"`
	Messages    []anthropicMessage   `json:"messages"`
	MaxTokens   int                  `json:"max_tokens"`
	Temperature float64              `json:"temperature,omitempty"`
	System      string               `json:"system,omitempty"`
	Tools       []anthropicTool      `json:"tools,omitempty"`
	ToolChoice  *anthropicToolChoice `json:"tool_choice,omitempty"`
}

type anthropicContent struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicAPIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
	Error      *anthropicAPIError `json:"error,omitempty"`
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(cfg *config.LLMConfig, apiKey string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for Anthropic")
	}

	host := cfg.Host
	if host == "" {
		host = anthropicDefaultHost
	}

	tokens, err := NewTokenCounter(cfg.Model)
	if err != nil {
		return nil, err
	}

	return &AnthropicProvider{
		cfg:    cfg,
		apiKey: apiKey,
		host:   host,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}),
			httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders),
		),
		tokens: tokens,
	}, nil
}

// Name returns the provider type.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Model returns the configured model.
func (p *AnthropicProvider) Model() string {
	return p.cfg.Model
}

// Close releases provider resources.
func (p *AnthropicProvider) Close() error {
	return nil
}

// Generate performs one non-streaming messages call. When the request
// carries a response schema, the model is forced through a single tool
// whose input schema is the response schema; the tool input becomes the
// response text.
func (p *AnthropicProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	apiReq := p.buildRequest(req)

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "anthropic", Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if apiResp.Error != nil {
		return nil, &ProviderError{Provider: "anthropic", Message: apiResp.Error.Message}
	}

	text, err := extractAnthropicText(req, apiResp.Content)
	if err != nil {
		return nil, err
	}

	usage := Usage{
		InputTokens:  apiResp.Usage.InputTokens,
		OutputTokens: apiResp.Usage.OutputTokens,
	}
	p.tokens.FillEstimate(req, text, &usage)

	return &Response{
		Text:       text,
		StopReason: apiResp.StopReason,
		Usage:      usage,
	}, nil
}

func (p *AnthropicProvider) buildRequest(req *Request) anthropicRequest {
	apiReq := anthropicRequest{
		Model:       p.cfg.Model,
		MaxTokens:   maxTokens(req, p.cfg),
		Temperature: temperature(req, p.cfg),
		System:      req.System,
	}

	for _, msg := range req.Messages {
		apiReq.Messages = append(apiReq.Messages, anthropicMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	if req.ResponseSchema != nil {
		apiReq.Tools = []anthropicTool{{
			Name:        structuredOutputTool,
			Description: "Record the final answer in the required structure.",
			InputSchema: req.ResponseSchema,
		}}
		apiReq.ToolChoice = &anthropicToolChoice{Type: "tool", Name: structuredOutputTool}
	}

	return apiReq
}

func extractAnthropicText(req *Request, content []anthropicContent) (string, error) {
	if req.ResponseSchema != nil {
		for _, block := range content {
			if block.Type == "tool_use" && block.Name == structuredOutputTool {
				raw, err := json.Marshal(block.Input)
				if err != nil {
					return "", fmt.Errorf("failed to marshal tool input: %w", err)
				}
				return string(raw), nil
			}
		}
		return "", &ProviderError{Provider: "anthropic", Message: "model did not produce structured output"}
	}

	var text string
	for _, block := range content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

func maxTokens(req *Request, cfg *config.LLMConfig) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return cfg.MaxTokens
}

func temperature(req *Request, cfg *config.LLMConfig) float64 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	return cfg.Temperature
}
