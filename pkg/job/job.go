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

// Package job tracks externally-executed generation jobs.
//
// A job's status is reconciled from two unreliable channels: callbacks the
// backend pushes and polls we pull. Both feed the same guarded transition
// logic, so duplicated, reordered or conflicting delivery cannot corrupt a
// record or re-fire the completion action.
package job

import (
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	// StatusPending means the job is accepted but the backend has not
	// started it.
	StatusPending Status = "pending"

	// StatusProcessing means the backend is working on the job.
	StatusProcessing Status = "processing"

	// StatusCompleted means the backend finished and a result exists.
	StatusCompleted Status = "completed"

	// StatusFailed means the backend gave up on the job.
	StatusFailed Status = "failed"

	// StatusCancelled means the job was cancelled on our side.
	StatusCancelled Status = "cancelled"
)

// IsTerminal returns whether this status permits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job is one generation job record.
type Job struct {
	// ID identifies the job to callers. Backend-issued and caller-issued
	// identifiers both resolve to the same record.
	ID string `json:"id"`

	// BackendID is the backend's handle for the job, set after submission.
	BackendID string `json:"backend_id,omitempty"`

	Status Status `json:"status"`

	// Progress is 0-100 and never decreases. Terminal states force 100.
	Progress int `json:"progress"`

	// ResultURL locates the generated media. Set once, never overwritten.
	ResultURL string `json:"result_url,omitempty"`

	// ErrorDetail explains a failure. Only meaningful on StatusFailed.
	ErrorDetail string `json:"error_detail,omitempty"`

	// Prompt is what the backend generates from.
	Prompt string `json:"prompt,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep-enough copy for handing outside the store.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Metadata != nil {
		cp.Metadata = make(map[string]any, len(j.Metadata))
		for k, v := range j.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// Event sources.
const (
	SourceCallback = "callback"
	SourcePoll     = "poll"
	SourceAPI      = "api"
)

// StatusEvent is one status observation from either channel. Events are
// transient; only their reconciled effect persists.
type StatusEvent struct {
	// Source is where the event came from: callback, poll or api.
	Source string `json:"source"`

	Status   Status `json:"status"`
	Progress int    `json:"progress"`

	ResultURL   string `json:"result_url,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`

	// Metadata entries patch the job's metadata.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MapExternalStatus translates backend status vocabulary into ours.
// Unknown values map to empty, which reconciliation rejects.
func MapExternalStatus(s string) Status {
	switch s {
	case "queued", "accepted", "pending":
		return StatusPending
	case "in_progress", "running", "processing":
		return StatusProcessing
	case "succeeded", "completed", "done":
		return StatusCompleted
	case "failed", "error":
		return StatusFailed
	case "cancelled", "canceled":
		return StatusCancelled
	default:
		return Status("")
	}
}
