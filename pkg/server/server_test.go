package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/mediaforge/pkg/agent"
	"github.com/kadirpekel/mediaforge/pkg/config"
	"github.com/kadirpekel/mediaforge/pkg/job"
	"github.com/kadirpekel/mediaforge/pkg/workflow"
)

type fakeBackend struct{}

func (fakeBackend) Submit(ctx context.Context, j *job.Job) (string, error) {
	return "gen-" + j.ID, nil
}

func (fakeBackend) QueryStatus(ctx context.Context, backendID string) (*job.StatusEvent, error) {
	return &job.StatusEvent{Source: job.SourcePoll, Status: job.StatusProcessing, Progress: 55}, nil
}

type echoAgent struct{ name string }

func (e echoAgent) Name() string        { return e.name }
func (e echoAgent) Description() string { return e.name }
func (e echoAgent) Execute(ctx context.Context, in *agent.Input) (*agent.Output, error) {
	return &agent.Output{Values: map[string]any{"topic": in.Topic}}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	reconciler, err := job.NewReconciler(job.NewMemoryStore(), fakeBackend{}, nil, nil)
	require.NoError(t, err)

	reg := agent.NewRegistry()
	require.NoError(t, reg.Register("echo", echoAgent{name: "echo"}))

	wfCfg := &config.WorkflowConfig{
		Name:   "pipeline",
		Stages: []config.StageConfig{{Name: "only", Agents: []string{"echo"}}},
	}
	orchestrator, err := workflow.NewOrchestrator(wfCfg, nil, reg, nil)
	require.NoError(t, err)

	s := New(config.ServerConfig{}, reconciler, map[string]*workflow.Orchestrator{
		"pipeline": orchestrator,
	}, nil)

	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeJob(t *testing.T, resp *http.Response) *job.Job {
	t.Helper()
	defer resp.Body.Close()
	var j job.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&j))
	return &j
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	// Submit
	resp := postJSON(t, ts.URL+"/v1/jobs", map[string]any{"prompt": "a cat surfing"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	j := decodeJob(t, resp)
	assert.Equal(t, job.StatusPending, j.Status)
	assert.Equal(t, "gen-"+j.ID, j.BackendID)

	// Backend pushes progress.
	resp = postJSON(t, ts.URL+"/v1/jobs/"+j.ID+"/callback", map[string]any{
		"generation_id": j.BackendID,
		"status":        "in_progress",
		"progress":      40,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, job.StatusProcessing, decodeJob(t, resp).Status)

	// Backend pushes completion.
	resp = postJSON(t, ts.URL+"/v1/jobs/"+j.ID+"/callback", map[string]any{
		"generation_id": j.BackendID,
		"status":        "succeeded",
		"output_url":    "https://cdn.example.com/x.mp4",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	done := decodeJob(t, resp)
	assert.Equal(t, job.StatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)

	// Get reflects the reconciled record.
	getResp, err := http.Get(ts.URL + "/v1/jobs/" + j.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	assert.Equal(t, "https://cdn.example.com/x.mp4", decodeJob(t, getResp).ResultURL)
}

func TestCallback_DuplicateDeliveryAccepted(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/jobs", map[string]any{"prompt": "x"})
	j := decodeJob(t, resp)

	done := map[string]any{
		"generation_id": j.BackendID,
		"status":        "succeeded",
		"output_url":    "https://cdn.example.com/x.mp4",
	}

	resp = postJSON(t, ts.URL+"/v1/jobs/"+j.ID+"/callback", done)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, job.StatusCompleted, decodeJob(t, resp).Status)

	// Redelivery of the same terminal event answers 202, record unchanged.
	resp = postJSON(t, ts.URL+"/v1/jobs/"+j.ID+"/callback", done)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, job.StatusCompleted, decodeJob(t, resp).Status)

	// A conflicting terminal event is discarded with the same answer.
	resp = postJSON(t, ts.URL+"/v1/jobs/"+j.ID+"/callback", map[string]any{
		"generation_id": j.BackendID,
		"status":        "failed",
		"error":         "late failure report",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	kept := decodeJob(t, resp)
	assert.Equal(t, job.StatusCompleted, kept.Status)
	assert.Equal(t, "https://cdn.example.com/x.mp4", kept.ResultURL)
}

func TestCallback_UnknownStatus(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/jobs", map[string]any{"prompt": "x"})
	j := decodeJob(t, resp)

	resp = postJSON(t, ts.URL+"/v1/jobs/"+j.ID+"/callback", map[string]any{
		"status": "hibernating",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCallback_UnknownJob(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/jobs/ghost/callback", map[string]any{
		"status": "succeeded",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPollEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/jobs", map[string]any{"prompt": "x"})
	j := decodeJob(t, resp)

	resp = postJSON(t, ts.URL+"/v1/jobs/"+j.ID+"/poll", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	polled := decodeJob(t, resp)
	assert.Equal(t, job.StatusProcessing, polled.Status)
	assert.Equal(t, 55, polled.Progress)
}

func TestCancelEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/jobs", map[string]any{"prompt": "x"})
	j := decodeJob(t, resp)

	resp = postJSON(t, ts.URL+"/v1/jobs/"+j.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, job.StatusCancelled, decodeJob(t, resp).Status)
}

func TestSubmit_MissingPrompt(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/jobs", map[string]any{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunWorkflow(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/workflows/pipeline/run", map[string]any{"topic": "go generics"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var result workflow.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, workflow.StatusCompleted, result.Status)
	require.Len(t, result.Stages, 1)
}

func TestRunWorkflow_Unknown(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/workflows/nope/run", map[string]any{"topic": "x"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
