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

package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/mediaforge/pkg/logger"
	"github.com/kadirpekel/mediaforge/pkg/observability"
)

// GenerationBackend is what the reconciler needs from the external
// generation service.
type GenerationBackend interface {
	// Submit hands the job to the backend and returns its handle.
	Submit(ctx context.Context, j *Job) (backendID string, err error)

	// QueryStatus fetches the backend's current view of the job.
	// ErrTransientBackend (wrapped) marks failures worth degrading on.
	QueryStatus(ctx context.Context, backendID string) (*StatusEvent, error)
}

// Publisher schedules the follow-up action when a job completes.
type Publisher interface {
	SchedulePublish(ctx context.Context, j *Job) error
}

// SubmitRequest creates a new job.
type SubmitRequest struct {
	// ID is optional; one is issued when empty.
	ID string `json:"id,omitempty"`

	Prompt   string         `json:"prompt"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Reconciler owns the job lifecycle: it creates records, folds status
// events from both channels into them, and fires the one-time publish
// action on completion.
type Reconciler struct {
	store     Store
	backend   GenerationBackend
	publisher Publisher
	metrics   observability.Recorder
	logger    *slog.Logger
}

// NewReconciler wires a reconciler. publisher may be nil when no chained
// action is configured.
func NewReconciler(store Store, backend GenerationBackend, publisher Publisher, metrics observability.Recorder) (*Reconciler, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}

	return &Reconciler{
		store:     store,
		backend:   backend,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.GetLogger(),
	}, nil
}

// Submit creates a pending record and forwards the job to the backend.
// A forwarding failure marks the job failed with the submission detail;
// retrying is the caller's decision, not this layer's.
func (r *Reconciler) Submit(ctx context.Context, req *SubmitRequest) (*Job, error) {
	if req == nil || req.Prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	j := &Job{
		ID:        id,
		Status:    StatusPending,
		Prompt:    req.Prompt,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := r.store.Create(ctx, j); err != nil {
		return nil, err
	}

	backendID, err := r.backend.Submit(ctx, j)
	if err != nil {
		r.logger.Error("backend submission failed", "job_id", id, "error", err)
		return r.store.Update(ctx, id, func(j *Job) error {
			j.Status = StatusFailed
			j.Progress = 100
			j.ErrorDetail = fmt.Sprintf("submission failed: %v", err)
			j.UpdatedAt = time.Now().UTC()
			r.metrics.RecordTransition(string(StatusFailed))
			return nil
		})
	}

	updated, err := r.store.Update(ctx, id, func(j *Job) error {
		j.BackendID = backendID
		j.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("job submitted", "job_id", id, "backend_id", backendID)
	return updated, nil
}

// Outcome describes what one reconciliation did with its event.
type Outcome string

const (
	OutcomeNoop       Outcome = "noop"
	OutcomeIdempotent Outcome = "idempotent"
	OutcomeDiscarded  Outcome = "discarded"
	OutcomeStale      Outcome = "stale"
	OutcomeTransition Outcome = "transition"
	OutcomeProgress   Outcome = "progress"
)

// Reconcile folds one status event into the job record.
func (r *Reconciler) Reconcile(ctx context.Context, jobID string, event *StatusEvent) (*Job, error) {
	j, _, err := r.ReconcileEvent(ctx, jobID, event)
	return j, err
}

// ReconcileEvent folds one status event into the job record and reports
// what the event amounted to. The write is atomic per job ID; the
// terminal guard, progress clamp and set-once result URL all apply under
// the job's lock. The publish action fires only when this call is the
// one that observed the transition into completed.
func (r *Reconciler) ReconcileEvent(ctx context.Context, jobID string, event *StatusEvent) (*Job, Outcome, error) {
	if event == nil {
		return nil, OutcomeNoop, fmt.Errorf("event is required")
	}
	if !event.Status.Valid() {
		return nil, OutcomeNoop, fmt.Errorf("unknown status: %q", event.Status)
	}

	outcome := OutcomeNoop
	completedNow := false

	updated, err := r.store.Update(ctx, jobID, func(j *Job) error {
		if j.Status.IsTerminal() {
			if event.Status == j.Status {
				// Redundant delivery of the terminal event.
				outcome = OutcomeIdempotent
				return nil
			}
			// Conflicting event after a terminal state: drop it.
			outcome = OutcomeDiscarded
			r.logger.Warn("discarding status event for terminal job",
				"job_id", j.ID,
				"source", event.Source,
				"error", &InvalidTransitionError{JobID: j.ID, From: j.Status, To: event.Status})
			return nil
		}

		if statusRank(event.Status) < statusRank(j.Status) {
			// A late or reordered event from the slower channel. The
			// regressed status is ignored, but its progress still
			// counts toward the monotonic maximum.
			outcome = OutcomeStale
			if event.Progress > j.Progress {
				j.Progress = event.Progress
				j.UpdatedAt = time.Now().UTC()
			}
			r.logger.Debug("ignoring stale status event",
				"job_id", j.ID,
				"source", event.Source,
				"current", j.Status,
				"event", event.Status)
			return nil
		}

		if event.Status != j.Status {
			outcome = OutcomeTransition
			if event.Status == StatusCompleted {
				completedNow = true
			}
			r.metrics.RecordTransition(string(event.Status))
		} else if event.Progress > j.Progress {
			outcome = OutcomeProgress
		}

		j.Status = event.Status

		// Progress never decreases; terminal states read 100.
		if event.Progress > j.Progress {
			j.Progress = event.Progress
		}
		if j.Status.IsTerminal() {
			j.Progress = 100
		}

		// Result locator is set once and never overwritten.
		if j.ResultURL == "" && event.ResultURL != "" {
			j.ResultURL = event.ResultURL
		}

		if j.Status == StatusFailed && event.ErrorDetail != "" {
			j.ErrorDetail = event.ErrorDetail
		}

		if len(event.Metadata) > 0 {
			if j.Metadata == nil {
				j.Metadata = make(map[string]any, len(event.Metadata))
			}
			for k, v := range event.Metadata {
				j.Metadata[k] = v
			}
		}

		j.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, outcome, err
	}

	r.metrics.RecordReconcile(event.Source, string(outcome))
	r.logger.Debug("status event reconciled",
		"job_id", jobID,
		"source", event.Source,
		"status", event.Status,
		"outcome", outcome)

	// Exactly one reconciliation observes the completed transition, so
	// the chained action cannot double-fire.
	if completedNow && r.publisher != nil {
		if err := r.publisher.SchedulePublish(ctx, updated); err != nil {
			r.logger.Error("publish scheduling failed", "job_id", jobID, "error", err)
		} else {
			r.metrics.RecordPublishScheduled()
		}
	}

	return updated, outcome, nil
}

// statusRank orders statuses along the only legal direction of travel.
func statusRank(s Status) int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	default:
		return 2
	}
}

// Poll asks the backend for the job's status and reconciles the answer.
// When the backend cannot be reached the last persisted state comes back
// instead of an error.
func (r *Reconciler) Poll(ctx context.Context, jobID string) (*Job, error) {
	j, err := r.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if j.Status.IsTerminal() || j.BackendID == "" {
		return j, nil
	}

	event, err := r.backend.QueryStatus(ctx, j.BackendID)
	if err != nil {
		r.metrics.RecordPollError()
		if errors.Is(err, ErrTransientBackend) {
			r.logger.Warn("poll degraded to last persisted state",
				"job_id", jobID, "error", err)
			return j, nil
		}
		return nil, err
	}

	event.Source = SourcePoll
	return r.Reconcile(ctx, jobID, event)
}

// Cancel drives the job to cancelled through the same guarded path as
// any other terminal event. The in-flight backend job is left alone.
func (r *Reconciler) Cancel(ctx context.Context, jobID string) (*Job, error) {
	return r.Reconcile(ctx, jobID, &StatusEvent{
		Source: SourceAPI,
		Status: StatusCancelled,
	})
}

// Get returns the current record.
func (r *Reconciler) Get(ctx context.Context, jobID string) (*Job, error) {
	return r.store.Get(ctx, jobID)
}

// Active returns all non-terminal jobs, for the background poll loop.
func (r *Reconciler) Active(ctx context.Context) ([]*Job, error) {
	return r.store.ListActive(ctx)
}
