package publish

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/mediaforge/pkg/config"
	"github.com/kadirpekel/mediaforge/pkg/job"
)

func newTestScheduler() (*Scheduler, time.Time) {
	s := NewScheduler(config.PublishConfig{BaseDelayMinutes: 10, IntervalMinutes: 30})
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, now
}

func completedJob(metadata map[string]any) *job.Job {
	return &job.Job{
		ID:        "j1",
		Status:    job.StatusCompleted,
		Progress:  100,
		ResultURL: "https://cdn.example.com/x.mp4",
		Metadata:  metadata,
	}
}

func TestSchedulePublish_SpacedTimestamps(t *testing.T) {
	s, now := newTestScheduler()

	err := s.SchedulePublish(context.Background(), completedJob(map[string]any{
		"publish": map[string]any{
			"platforms": []string{"youtube", "tiktok", "instagram"},
			"caption":   "watch this",
		},
	}))
	require.NoError(t, err)

	records := s.Records("j1")
	require.Len(t, records, 3)

	base := now.Add(10 * time.Minute)
	assert.Equal(t, base, records[0].ScheduledAt)
	assert.Equal(t, base.Add(30*time.Minute), records[1].ScheduledAt)
	assert.Equal(t, base.Add(60*time.Minute), records[2].ScheduledAt)

	assert.Equal(t, "youtube", records[0].Platform)
	assert.Equal(t, "watch this", records[0].Caption)
	assert.Equal(t, "https://cdn.example.com/x.mp4", records[0].ResultURL)
}

func TestSchedulePublish_PerJobOverrides(t *testing.T) {
	s, now := newTestScheduler()

	err := s.SchedulePublish(context.Background(), completedJob(map[string]any{
		"publish": map[string]any{
			"platforms":          []string{"youtube", "tiktok"},
			"base_delay_minutes": 5,
			"interval_minutes":   15,
		},
	}))
	require.NoError(t, err)

	records := s.Records("j1")
	require.Len(t, records, 2)
	assert.Equal(t, now.Add(5*time.Minute), records[0].ScheduledAt)
	assert.Equal(t, now.Add(20*time.Minute), records[1].ScheduledAt)
}

func TestSchedulePublish_DefaultsWithoutSettings(t *testing.T) {
	s, now := newTestScheduler()

	require.NoError(t, s.SchedulePublish(context.Background(), completedJob(nil)))

	records := s.Records("j1")
	require.Len(t, records, 1)
	assert.Equal(t, "default", records[0].Platform)
	assert.Equal(t, now.Add(10*time.Minute), records[0].ScheduledAt)
}

func TestSchedulePublish_FiresOnce(t *testing.T) {
	s, _ := newTestScheduler()
	j := completedJob(nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.SchedulePublish(context.Background(), j)
		}()
	}
	wg.Wait()

	assert.Len(t, s.Records("j1"), 1)
}

func TestSchedulePublish_RequiresResult(t *testing.T) {
	s, _ := newTestScheduler()
	j := completedJob(nil)
	j.ResultURL = ""

	assert.Error(t, s.SchedulePublish(context.Background(), j))
}

func TestSchedulePublish_InvalidSettings(t *testing.T) {
	s, _ := newTestScheduler()

	err := s.SchedulePublish(context.Background(), completedJob(map[string]any{
		"publish": "not a map",
	}))
	assert.Error(t, err)
}

func TestDue(t *testing.T) {
	s, now := newTestScheduler()

	require.NoError(t, s.SchedulePublish(context.Background(), completedJob(map[string]any{
		"publish": map[string]any{"platforms": []string{"youtube", "tiktok"}},
	})))

	assert.Empty(t, s.Due(now))
	assert.Len(t, s.Due(now.Add(10*time.Minute)), 1)
	assert.Len(t, s.Due(now.Add(40*time.Minute)), 2)
}
