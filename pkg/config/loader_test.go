package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBytes_EnvExpansion(t *testing.T) {
	t.Setenv("MF_BACKEND_KEY", "secret-key")
	t.Setenv("MF_PORT", "9090")

	cfg, err := LoadBytes([]byte(`
server:
  port: ${MF_PORT}
backend:
  host: https://gen.example.com
  api_key: ${MF_BACKEND_KEY}
store:
  dialect: ${MF_DIALECT:-memory}
`))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "secret-key", cfg.Backend.APIKey)
	assert.Equal(t, "memory", cfg.Store.Dialect)
}

func TestDefault_InstallsPipeline(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	wf, ok := cfg.Workflows[DefaultWorkflowName]
	require.True(t, ok, "default workflow should be installed")
	require.Len(t, wf.Stages, 4)
	assert.Equal(t, "analyze", wf.Stages[0].Name)
	assert.Len(t, wf.Stages[0].Agents, 4)

	for _, stage := range wf.Stages {
		for _, agentID := range stage.Agents {
			_, ok := cfg.Agents[agentID]
			assert.True(t, ok, "agent %s should be defined", agentID)
		}
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown store dialect",
			yaml: "store:\n  dialect: cassandra\n",
		},
		{
			name: "sql dialect without dsn",
			yaml: "store:\n  dialect: postgres\n",
		},
		{
			name: "agent references unknown llm",
			yaml: "agents:\n  writer:\n    llm: missing\n",
		},
		{
			name: "stage references unknown agent",
			yaml: `
workflows:
  broken:
    stages:
      - name: only
        agents: [ghost]
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBytes([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestSetDefaults_AgentRetries(t *testing.T) {
	cfg, err := LoadBytes([]byte(`
agents:
  custom:
    instruction: do things
workflows:
  wf:
    stages:
      - name: s1
        agents: [custom]
`))
	require.NoError(t, err)

	agent := cfg.Agents["custom"]
	require.NotNil(t, agent)
	assert.Equal(t, 2, agent.MaxRetries)
	assert.Equal(t, "default", agent.LLM)

	wf := cfg.Workflows["wf"]
	assert.Equal(t, 300, wf.StageTimeout)
	assert.Equal(t, 1000, wf.BackoffBaseMS)
}
