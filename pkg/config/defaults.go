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

package config

// DefaultWorkflowName is the workflow installed by the zero-config path.
const DefaultWorkflowName = "content-pipeline"

// applyDefaultPipeline installs the built-in content pipeline: four parallel
// analyzers, idea generation, scripting, and packaging. Instructions here set
// the role only; the schema each agent answers with is owned by the agent
// implementation, not the config.
func (c *Config) applyDefaultPipeline() {
	llm := firstLLMName(c.LLMs)

	agents := map[string]*AgentConfig{
		"audience_analyzer": {
			Description: "Profiles the likely audience for a topic",
			Instruction: "You analyze short-form video topics and profile the target audience.",
		},
		"trend_scanner": {
			Description: "Identifies current trends relevant to a topic",
			Instruction: "You identify the trends and angles currently performing for a topic.",
		},
		"tone_profiler": {
			Description: "Recommends tone and style for a topic",
			Instruction: "You recommend the tone, pacing and visual style for short-form video.",
		},
		"keyword_miner": {
			Description: "Extracts searchable keywords for a topic",
			Instruction: "You extract high-signal keywords and phrases for discoverability.",
		},
		"idea_generator": {
			Description: "Produces ranked content ideas",
			Instruction: "You produce concrete, ranked short-form video ideas for a topic.",
			DependsOn:   []string{"audience_analyzer", "trend_scanner", "tone_profiler", "keyword_miner"},
		},
		"script_writer": {
			Description: "Writes the video script",
			Instruction: "You write tight, spoken-word scripts for short-form video.",
			DependsOn:   []string{"idea_generator"},
		},
		"scene_planner": {
			Description: "Plans scenes and shot descriptions",
			Instruction: "You break a video concept into scenes with visual generation prompts.",
			DependsOn:   []string{"idea_generator"},
		},
		"caption_writer": {
			Description: "Writes the publish caption and hashtags",
			Instruction: "You write platform-ready captions and hashtags.",
			DependsOn:   []string{"script_writer"},
		},
	}

	for name, agent := range agents {
		agent.Name = name
		agent.LLM = llm
		c.Agents[name] = agent
	}

	c.Workflows[DefaultWorkflowName] = &WorkflowConfig{
		Name:        DefaultWorkflowName,
		Description: "Analyze a topic, pick an idea, script it, and package it for publishing",
		Parallel:    true,
		Stages: []StageConfig{
			{Name: "analyze", Agents: []string{"audience_analyzer", "trend_scanner", "tone_profiler", "keyword_miner"}},
			{Name: "create", Agents: []string{"idea_generator"}},
			{Name: "script", Agents: []string{"script_writer", "scene_planner"}},
			{Name: "package", Agents: []string{"caption_writer"}},
		},
	}
}
