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

// Package backend is the HTTP client for the external media generation
// service. It implements job.GenerationBackend and translates the
// service's status vocabulary into job statuses.
package backend

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
	"github.com/kadirpekel/mediaforge/pkg/job"
)

// Client talks to the generation backend.
type Client struct {
	host            string
	apiKey          string
	callbackBaseURL string
	outputLocation  string
	client          *httpclient.Client
}

// NewClient builds a backend client from config.
func NewClient(cfg *config.BackendConfig) (*Client, error) {
	if cfg == nil || cfg.Host == "" {
		return nil, fmt.Errorf("backend host is required")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		host:            cfg.Host,
		apiKey:          cfg.APIKey,
		callbackBaseURL: cfg.CallbackBaseURL,
		outputLocation:  cfg.OutputLocation,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
		),
	}, nil
}

// generationRequest is the backend's submission payload.
type generationRequest struct {
	Prompt         string         `json:"prompt"`
	CallbackURL    string         `json:"callback_url,omitempty"`
	OutputLocation string         `json:"output_location,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// generationResponse is the backend's view of a generation.
type generationResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	OutputURL string `json:"output_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Submit hands a job to the backend and returns its handle.
func (c *Client) Submit(ctx context.Context, j *job.Job) (string, error) {
	payload := generationRequest{
		Prompt:         j.Prompt,
		OutputLocation: c.outputLocation,
		Metadata:       j.Metadata,
	}
	if c.callbackBaseURL != "" {
		payload.CallbackURL = fmt.Sprintf("%s/v1/jobs/%s/callback", c.callbackBaseURL, j.ID)
	}

	var resp generationResponse
	if err := c.do(ctx, http.MethodPost, "/v1/generations", payload, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("backend returned no generation id")
	}
	return resp.ID, nil
}

// QueryStatus fetches the backend's current view of a generation and maps
// it to a poll-sourced status event.
func (c *Client) QueryStatus(ctx context.Context, backendID string) (*job.StatusEvent, error) {
	var resp generationResponse
	if err := c.do(ctx, http.MethodGet, "/v1/generations/"+backendID, nil, &resp); err != nil {
		return nil, err
	}

	status := job.MapExternalStatus(resp.Status)
	if status == "" {
		return nil, fmt.Errorf("backend reported unknown status %q", resp.Status)
	}

	return &job.StatusEvent{
		Source:      job.SourcePoll,
		Status:      status,
		Progress:    resp.Progress,
		ResultURL:   resp.OutputURL,
		ErrorDetail: resp.Error,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	// The retrying client hands back the last response alongside the
	// error for non-2xx statuses; classify by status when one exists.
	resp, err := c.client.Do(req)
	if resp == nil {
		return fmt.Errorf("backend request failed: %v: %w", err, job.ErrTransientBackend)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend returned %d: %s: %w", resp.StatusCode, string(respBody), job.ErrTransientBackend)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

var _ job.GenerationBackend = (*Client)(nil)
