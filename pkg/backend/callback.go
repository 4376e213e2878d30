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

package backend

import (
	"fmt"

	"github.com/kadirpekel/mediaforge/pkg/job"
)

// CallbackPayload is what the backend pushes to our callback endpoint.
// Delivery is at-least-once and unordered; the reconciler sorts it out.
type CallbackPayload struct {
	GenerationID string         `json:"generation_id"`
	Status       string         `json:"status"`
	Progress     int            `json:"progress"`
	OutputURL    string         `json:"output_url,omitempty"`
	Error        string         `json:"error,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ToStatusEvent maps a callback payload to a callback-sourced event.
func (p *CallbackPayload) ToStatusEvent() (*job.StatusEvent, error) {
	status := job.MapExternalStatus(p.Status)
	if status == "" {
		return nil, fmt.Errorf("callback carried unknown status %q", p.Status)
	}

	return &job.StatusEvent{
		Source:      job.SourceCallback,
		Status:      status,
		Progress:    p.Progress,
		ResultURL:   p.OutputURL,
		ErrorDetail: p.Error,
		Metadata:    p.Metadata,
	}, nil
}
