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

// Package publish schedules the follow-up action for completed jobs:
// one publish record per target platform, spaced out from a base delay so
// posts don't land simultaneously.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/kadirpekel/mediaforge/pkg/config"
	"github.com/kadirpekel/mediaforge/pkg/job"
	"github.com/kadirpekel/mediaforge/pkg/logger"
)

// Settings is the per-job publish configuration carried in job metadata
// under the "publish" key. Anything missing falls back to the instance
// config.
type Settings struct {
	Platforms        []string `mapstructure:"platforms"`
	Caption          string   `mapstructure:"caption"`
	BaseDelayMinutes int      `mapstructure:"base_delay_minutes"`
	IntervalMinutes  int      `mapstructure:"interval_minutes"`
}

// Record is one scheduled publish.
type Record struct {
	JobID       string    `json:"job_id"`
	Platform    string    `json:"platform"`
	ResultURL   string    `json:"result_url"`
	Caption     string    `json:"caption,omitempty"`
	Index       int       `json:"index"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// Scheduler creates publish records when jobs complete. It fires at most
// once per job; redundant scheduling calls are no-ops.
type Scheduler struct {
	cfg    config.PublishConfig
	logger *slog.Logger

	mu        sync.Mutex
	records   map[string][]*Record
	scheduled map[string]bool

	// now is swappable for tests.
	now func() time.Time
}

// NewScheduler creates a scheduler with instance-level defaults.
func NewScheduler(cfg config.PublishConfig) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		logger:    logger.GetLogger(),
		records:   make(map[string][]*Record),
		scheduled: make(map[string]bool),
		now:       time.Now,
	}
}

// SchedulePublish computes one record per platform. The n-th platform
// publishes at base delay + n x interval after scheduling.
func (s *Scheduler) SchedulePublish(ctx context.Context, j *job.Job) error {
	if j == nil {
		return fmt.Errorf("job is required")
	}
	if j.ResultURL == "" {
		return fmt.Errorf("job %s has no result to publish", j.ID)
	}

	settings, err := s.settingsFor(j)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduled[j.ID] {
		return nil
	}
	s.scheduled[j.ID] = true

	base := s.now().Add(time.Duration(settings.BaseDelayMinutes) * time.Minute)
	interval := time.Duration(settings.IntervalMinutes) * time.Minute

	records := make([]*Record, 0, len(settings.Platforms))
	for i, platform := range settings.Platforms {
		records = append(records, &Record{
			JobID:       j.ID,
			Platform:    platform,
			ResultURL:   j.ResultURL,
			Caption:     settings.Caption,
			Index:       i,
			ScheduledAt: base.Add(time.Duration(i) * interval),
		})
	}
	s.records[j.ID] = records

	s.logger.Info("publish scheduled",
		"job_id", j.ID,
		"platforms", len(records),
		"first_at", base)

	return nil
}

// settingsFor decodes per-job settings from metadata and fills gaps from
// the instance config.
func (s *Scheduler) settingsFor(j *job.Job) (*Settings, error) {
	settings := &Settings{}

	if raw, ok := j.Metadata["publish"]; ok {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           settings,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create settings decoder: %w", err)
		}
		if err := decoder.Decode(raw); err != nil {
			return nil, fmt.Errorf("job %s: invalid publish settings: %w", j.ID, err)
		}
	}

	if len(settings.Platforms) == 0 {
		settings.Platforms = []string{"default"}
	}
	if settings.BaseDelayMinutes == 0 {
		settings.BaseDelayMinutes = s.cfg.BaseDelayMinutes
	}
	if settings.IntervalMinutes == 0 {
		settings.IntervalMinutes = s.cfg.IntervalMinutes
	}

	return settings, nil
}

// Records returns the publish records for a job.
func (s *Scheduler) Records(jobID string) []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Record(nil), s.records[jobID]...)
}

// Due returns all records whose scheduled time has passed.
func (s *Scheduler) Due(now time.Time) []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Record
	for _, records := range s.records {
		for _, r := range records {
			if !r.ScheduledAt.After(now) {
				due = append(due, r)
			}
		}
	}
	return due
}

var _ job.Publisher = (*Scheduler)(nil)
