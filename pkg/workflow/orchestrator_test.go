package workflow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/mediaforge/pkg/agent"
	"github.com/kadirpekel/mediaforge/pkg/config"
)

// stubAgent is a scriptable agent for orchestrator tests.
type stubAgent struct {
	name     string
	execute  func(ctx context.Context, in *agent.Input) (*agent.Output, error)
	calls    atomic.Int32
	lastSeen atomic.Pointer[agent.Input]
}

func (s *stubAgent) Name() string        { return s.name }
func (s *stubAgent) Description() string { return s.name }

func (s *stubAgent) Execute(ctx context.Context, in *agent.Input) (*agent.Output, error) {
	s.calls.Add(1)
	s.lastSeen.Store(in)
	if s.execute != nil {
		return s.execute(ctx, in)
	}
	return &agent.Output{Values: map[string]any{"ok": true}}, nil
}

func fastWorkflow(stages []config.StageConfig, stopOnError bool) *config.WorkflowConfig {
	return &config.WorkflowConfig{
		Name:          "test",
		Stages:        stages,
		Parallel:      true,
		StopOnError:   stopOnError,
		BackoffBaseMS: 1,
		BackoffMaxMS:  5,
	}
}

func newTestOrchestrator(t *testing.T, cfg *config.WorkflowConfig, stubs ...*stubAgent) *Orchestrator {
	t.Helper()

	reg := agent.NewRegistry()
	agentCfgs := make(map[string]*config.AgentConfig)
	for _, s := range stubs {
		require.NoError(t, reg.Register(s.name, s))
		agentCfgs[s.name] = &config.AgentConfig{Name: s.name, MaxRetries: 2}
	}

	o, err := NewOrchestrator(cfg, agentCfgs, reg, nil)
	require.NoError(t, err)
	return o
}

func TestExecute_StagesRunInOrder(t *testing.T) {
	var order []string
	mkAgent := func(name string) *stubAgent {
		return &stubAgent{name: name, execute: func(ctx context.Context, in *agent.Input) (*agent.Output, error) {
			order = append(order, name)
			return &agent.Output{Values: map[string]any{"from": name}}, nil
		}}
	}

	a, b := mkAgent("first"), mkAgent("second")
	cfg := fastWorkflow([]config.StageConfig{
		{Name: "one", Agents: []string{"first"}},
		{Name: "two", Agents: []string{"second"}},
	}, false)

	o := newTestOrchestrator(t, cfg, a, b)
	result, err := o.Execute(context.Background(), "topic")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, []string{"first", "second"}, order)

	// Stage two saw stage one's merged output.
	seen := b.lastSeen.Load()
	require.NotNil(t, seen)
	assert.Contains(t, seen.Values, "first")
}

func TestExecute_ParallelAgentsShareSnapshot(t *testing.T) {
	stubs := []*stubAgent{{name: "a"}, {name: "b"}, {name: "c"}}
	cfg := fastWorkflow([]config.StageConfig{
		{Name: "seed", Agents: []string{"a"}},
		{Name: "fan", Agents: []string{"b", "c"}},
	}, false)

	o := newTestOrchestrator(t, cfg, stubs...)
	_, err := o.Execute(context.Background(), "topic")
	require.NoError(t, err)

	// Parallel siblings see the pre-stage snapshot, never each other.
	for _, s := range stubs[1:] {
		seen := s.lastSeen.Load()
		require.NotNil(t, seen)
		assert.Contains(t, seen.Values, "a")
		assert.NotContains(t, seen.Values, "b")
		assert.NotContains(t, seen.Values, "c")
	}
}

func TestExecute_FailingAgentDoesNotCancelSiblings(t *testing.T) {
	failing := &stubAgent{name: "bad", execute: func(ctx context.Context, in *agent.Input) (*agent.Output, error) {
		return nil, &agent.ValidationError{Agent: "bad", Field: "topic", Message: "boom"}
	}}
	sibling := &stubAgent{name: "good", execute: func(ctx context.Context, in *agent.Input) (*agent.Output, error) {
		time.Sleep(20 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &agent.Output{Values: map[string]any{"ok": true}}, nil
	}}

	cfg := fastWorkflow([]config.StageConfig{
		{Name: "only", Agents: []string{"bad", "good"}},
	}, true)

	o := newTestOrchestrator(t, cfg, failing, sibling)
	result, err := o.Execute(context.Background(), "topic")
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	stage := result.Stages[0]
	assert.Equal(t, StatusFailed, stage.Agents["bad"].Status)
	assert.Equal(t, StatusCompleted, stage.Agents["good"].Status)
}

func TestExecute_StopOnErrorSkipsLaterStages(t *testing.T) {
	failing := &stubAgent{name: "bad", execute: func(ctx context.Context, in *agent.Input) (*agent.Output, error) {
		return nil, &agent.ValidationError{Agent: "bad", Field: "topic", Message: "boom"}
	}}
	later := &stubAgent{name: "later"}

	cfg := fastWorkflow([]config.StageConfig{
		{Name: "one", Agents: []string{"bad"}},
		{Name: "two", Agents: []string{"later"}},
	}, true)

	o := newTestOrchestrator(t, cfg, failing, later)
	result, err := o.Execute(context.Background(), "topic")
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	require.Len(t, result.Stages, 2)
	assert.Equal(t, StatusSkipped, result.Stages[1].Status)
	assert.Zero(t, later.calls.Load())
}

func TestExecute_ContinuesWithoutStopOnError(t *testing.T) {
	failing := &stubAgent{name: "bad", execute: func(ctx context.Context, in *agent.Input) (*agent.Output, error) {
		return nil, &agent.ValidationError{Agent: "bad", Field: "topic", Message: "boom"}
	}}
	later := &stubAgent{name: "later"}

	cfg := fastWorkflow([]config.StageConfig{
		{Name: "one", Agents: []string{"bad"}},
		{Name: "two", Agents: []string{"later"}},
	}, false)

	o := newTestOrchestrator(t, cfg, failing, later)
	result, err := o.Execute(context.Background(), "topic")
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, StatusCompleted, result.Stages[1].Status)
	assert.Equal(t, int32(1), later.calls.Load())
}

func TestExecute_RetriesTransientAgentFailure(t *testing.T) {
	flaky := &stubAgent{name: "flaky"}
	flaky.execute = func(ctx context.Context, in *agent.Input) (*agent.Output, error) {
		if flaky.calls.Load() < 3 {
			return nil, &agent.OutputValidationError{Agent: "flaky", Err: errors.New("not json")}
		}
		return &agent.Output{Values: map[string]any{"ok": true}}, nil
	}

	cfg := fastWorkflow([]config.StageConfig{
		{Name: "only", Agents: []string{"flaky"}},
	}, true)

	o := newTestOrchestrator(t, cfg, flaky)
	result, err := o.Execute(context.Background(), "topic")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	ar := result.Stages[0].Agents["flaky"]
	assert.Equal(t, 3, ar.Attempts)
}

func TestExecute_RetriesUnclassifiedAgentFailure(t *testing.T) {
	broken := &stubAgent{name: "broken", execute: func(ctx context.Context, in *agent.Input) (*agent.Output, error) {
		return nil, errors.New("model exploded")
	}}

	cfg := fastWorkflow([]config.StageConfig{
		{Name: "only", Agents: []string{"broken"}},
	}, true)

	o := newTestOrchestrator(t, cfg, broken)
	result, err := o.Execute(context.Background(), "topic")
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	// max_retries 2 means one initial call plus two retries.
	assert.Equal(t, int32(3), broken.calls.Load())
	ar := result.Stages[0].Agents["broken"]
	assert.Equal(t, 3, ar.Attempts)
	assert.Contains(t, ar.Error, "model exploded")
}

func TestExecute_DoesNotRetryInvalidInput(t *testing.T) {
	bad := &stubAgent{name: "bad", execute: func(ctx context.Context, in *agent.Input) (*agent.Output, error) {
		return nil, &agent.ValidationError{Agent: "bad", Field: "topic", Message: "empty"}
	}}

	cfg := fastWorkflow([]config.StageConfig{
		{Name: "only", Agents: []string{"bad"}},
	}, true)

	o := newTestOrchestrator(t, cfg, bad)
	result, err := o.Execute(context.Background(), "topic")
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, int32(1), bad.calls.Load())
}

func TestNewOrchestrator_UnknownAgent(t *testing.T) {
	cfg := fastWorkflow([]config.StageConfig{
		{Name: "only", Agents: []string{"ghost"}},
	}, true)

	_, err := NewOrchestrator(cfg, nil, agent.NewRegistry(), nil)
	assert.Error(t, err)
}

func TestMergeSelectedIdea(t *testing.T) {
	ctx := NewContext("topic")

	mergeOutput(ctx, "idea_generator", map[string]any{
		"ideas": []any{
			map[string]any{"title": "best", "score": 9.1},
			map[string]any{"title": "runner-up", "score": 7.4},
		},
	})

	selected, ok := ctx.Value(SelectedIdeaKey)
	require.True(t, ok)
	assert.Equal(t, "best", selected.(map[string]any)["title"])

	// The full ranked list stays available too.
	_, ok = ctx.Value("idea_generator")
	assert.True(t, ok)
}

func TestMergeSelectedIdea_EmptyList(t *testing.T) {
	ctx := NewContext("topic")
	mergeOutput(ctx, "idea_generator", map[string]any{"ideas": []any{}})

	_, ok := ctx.Value(SelectedIdeaKey)
	assert.False(t, ok)
}

func TestMergeDefault(t *testing.T) {
	ctx := NewContext("topic")
	mergeOutput(ctx, "tone_profiler", map[string]any{"tone": "playful"})

	v, ok := ctx.Value("tone_profiler")
	require.True(t, ok)
	assert.Equal(t, "playful", v.(map[string]any)["tone"])
}
