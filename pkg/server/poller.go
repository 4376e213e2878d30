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

package server

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/mediaforge/pkg/job"
	"github.com/kadirpekel/mediaforge/pkg/logger"
)

// pollConcurrency bounds the fan-out per tick.
const pollConcurrency = 8

// Poller periodically polls every non-terminal job as the safety net for
// lost callbacks.
type Poller struct {
	reconciler *job.Reconciler
	interval   time.Duration
	logger     *slog.Logger
}

// NewPoller creates a poller with the given interval.
func NewPoller(reconciler *job.Reconciler, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Poller{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger.GetLogger(),
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick polls all active jobs with bounded concurrency. Individual poll
// failures are already degraded by the reconciler; anything surfacing
// here is only logged so one bad job cannot stall the loop.
func (p *Poller) tick(ctx context.Context) {
	active, err := p.reconciler.Active(ctx)
	if err != nil {
		p.logger.Error("failed to list active jobs", "error", err)
		return
	}
	if len(active) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pollConcurrency)

	for _, j := range active {
		j := j
		g.Go(func() error {
			if _, err := p.reconciler.Poll(gctx, j.ID); err != nil {
				p.logger.Warn("poll failed", "job_id", j.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Debug("poll tick finished", "jobs", len(active))
}
