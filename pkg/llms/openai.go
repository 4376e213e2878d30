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

const openaiDefaultHost = "https://api.openai.com"

// OpenAIProvider implements Provider for the OpenAI chat completions API.
type OpenAIProvider struct {
	cfg    *config.LLMConfig
	apiKey string
	host   string
	client *httpclient.Client
	tokens *TokenCounter
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiJSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type openaiResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *openaiJSONSchema `json:"json_schema,omitempty"`
}

type openaiRequest struct {
	Model          string                `json:"model"`
	Messages       []openaiMessage       `json:"messages"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Temperature    float64               `json:"temperature,omitempty"`
	ResponseFormat *openaiResponseFormat `json:"response_format,omitempty"`
}

type openaiChoice struct {
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openaiAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type openaiResponse struct {
	Choices []openaiChoice  `json:"choices"`
	Usage   openaiUsage     `json:"usage"`
	Error   *openaiAPIError `json:"error,omitempty"`
}

// NewOpenAIProvider creates an OpenAI provider.
func NewOpenAIProvider(cfg *config.LLMConfig, apiKey string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for OpenAI")
	}

	host := cfg.Host
	if host == "" {
		host = openaiDefaultHost
	}

	tokens, err := NewTokenCounter(cfg.Model)
	if err != nil {
		return nil, err
	}

	return &OpenAIProvider{
		cfg:    cfg,
		apiKey: apiKey,
		host:   host,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
		),
		tokens: tokens,
	}, nil
}

// Name returns the provider type.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Model returns the configured model.
func (p *OpenAIProvider) Model() string {
	return p.cfg.Model
}

// Close releases provider resources.
func (p *OpenAIProvider) Close() error {
	return nil
}

// Generate performs one non-streaming chat completion. Schema-constrained
// requests use the structured outputs response_format in strict mode.
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	apiReq := p.buildRequest(req)

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "openai", Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp openaiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if apiResp.Error != nil {
		return nil, &ProviderError{Provider: "openai", Message: apiResp.Error.Message}
	}
	if len(apiResp.Choices) == 0 {
		return nil, &ProviderError{Provider: "openai", Message: "response contained no choices"}
	}

	choice := apiResp.Choices[0]
	usage := Usage{
		InputTokens:  apiResp.Usage.PromptTokens,
		OutputTokens: apiResp.Usage.CompletionTokens,
	}
	p.tokens.FillEstimate(req, choice.Message.Content, &usage)

	return &Response{
		Text:       choice.Message.Content,
		StopReason: choice.FinishReason,
		Usage:      usage,
	}, nil
}

func (p *OpenAIProvider) buildRequest(req *Request) openaiRequest {
	apiReq := openaiRequest{
		Model:       p.cfg.Model,
		MaxTokens:   maxTokens(req, p.cfg),
		Temperature: temperature(req, p.cfg),
	}

	if req.System != "" {
		apiReq.Messages = append(apiReq.Messages, openaiMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		apiReq.Messages = append(apiReq.Messages, openaiMessage{Role: msg.Role, Content: msg.Content})
	}

	if req.ResponseSchema != nil {
		name := req.ResponseSchemaName
		if name == "" {
			name = "response"
		}
		apiReq.ResponseFormat = &openaiResponseFormat{
			Type: "json_schema",
			JSONSchema: &openaiJSONSchema{
				Name:   name,
				Strict: true,
				Schema: req.ResponseSchema,
			},
		}
	}

	return apiReq
}
