// Package mediaforge orchestrates AI media generation jobs and content
// workflows.
//
// A mediaforge instance does two things:
//
//   - It tracks generation jobs submitted to an external media backend,
//     reconciling status callbacks and polling into a single consistent
//     job record, and scheduling chained publishing when a job completes.
//   - It runs staged content workflows where LLM-backed agents (audience
//     research, trend analysis, scripting, scene planning, captioning)
//     execute in parallel within a stage and sequentially across stages,
//     each validated against a JSON schema.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/kadirpekel/mediaforge/cmd/mediaforge@latest
//
// Create a configuration:
//
//	backend:
//	  host: "https://api.generation.example.com"
//	  api_key: "${GENERATION_API_KEY}"
//
//	llms:
//	  default:
//	    type: "anthropic"
//	    model: "claude-3-5-haiku-latest"
//	    api_key: "${ANTHROPIC_API_KEY}"
//
// Start the server:
//
//	mediaforge serve --config config.yaml
//
// An empty config is also runnable: defaults provide an in-memory job
// store and the built-in content pipeline.
//
// # Using as Go Library
//
// Import the packages directly:
//
//	import (
//	    "github.com/kadirpekel/mediaforge/pkg/job"
//	    "github.com/kadirpekel/mediaforge/pkg/workflow"
//	    "github.com/kadirpekel/mediaforge/pkg/agent"
//	)
package mediaforge
