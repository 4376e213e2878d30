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

package agent

import (
	"github.com/kadirpekel/mediaforge/pkg/config"
	"github.com/kadirpekel/mediaforge/pkg/llms"
)

// Typed outputs of the built-in content pipeline agents. The struct tags
// drive both the schema the model is constrained to and the strict decode
// of what it returns.

// AudienceProfile is the audience_analyzer output.
type AudienceProfile struct {
	Persona   string   `json:"persona" jsonschema:"required,description=One-sentence description of the primary viewer"`
	AgeRange  string   `json:"age_range" jsonschema:"required,description=Age bracket such as 18-24"`
	Interests []string `json:"interests" jsonschema:"required,description=Topics the audience already follows"`
	Platforms []string `json:"platforms" jsonschema:"required,description=Platforms where this audience watches"`
}

// Trend is one entry in a TrendReport.
type Trend struct {
	Name     string `json:"name" jsonschema:"required"`
	Momentum string `json:"momentum" jsonschema:"required,enum=rising|peaking|fading"`
	Angle    string `json:"angle" jsonschema:"required,description=How to ride the trend for this topic"`
}

// TrendReport is the trend_scanner output.
type TrendReport struct {
	Trends []Trend `json:"trends" jsonschema:"required,description=Current trends relevant to the topic"`
}

// ToneProfile is the tone_profiler output.
type ToneProfile struct {
	Tone   string   `json:"tone" jsonschema:"required,description=Overall voice such as playful or authoritative"`
	Pacing string   `json:"pacing" jsonschema:"required,enum=slow|medium|fast"`
	Style  string   `json:"style" jsonschema:"required,description=Visual and editing style"`
	Avoid  []string `json:"avoid,omitempty" jsonschema:"description=Things that would put this audience off"`
}

// KeywordSet is the keyword_miner output.
type KeywordSet struct {
	Keywords []string `json:"keywords" jsonschema:"required,description=High-signal search keywords"`
	Hashtags []string `json:"hashtags" jsonschema:"required,description=Hashtags without the # prefix"`
}

// Idea is one ranked content idea.
type Idea struct {
	Title   string  `json:"title" jsonschema:"required"`
	Hook    string  `json:"hook" jsonschema:"required,description=First three seconds of the video"`
	Summary string  `json:"summary" jsonschema:"required"`
	Score   float64 `json:"score" jsonschema:"required,minimum=0,maximum=10,description=Estimated potential"`
}

// IdeaList is the idea_generator output, best idea first.
type IdeaList struct {
	Ideas []Idea `json:"ideas" jsonschema:"required,description=Ranked ideas with the strongest first"`
}

// Script is the script_writer output.
type Script struct {
	Title           string `json:"title" jsonschema:"required"`
	Hook            string `json:"hook" jsonschema:"required"`
	Body            string `json:"body" jsonschema:"required,description=Full spoken-word script"`
	DurationSeconds int    `json:"duration_seconds" jsonschema:"required,minimum=5,maximum=180"`
}

// Scene is one planned shot.
type Scene struct {
	Index           int    `json:"index" jsonschema:"required,minimum=0"`
	Description     string `json:"description" jsonschema:"required"`
	VisualPrompt    string `json:"visual_prompt" jsonschema:"required,description=Prompt for the media generation backend"`
	DurationSeconds int    `json:"duration_seconds" jsonschema:"required,minimum=1"`
}

// ScenePlan is the scene_planner output.
type ScenePlan struct {
	Scenes []Scene `json:"scenes" jsonschema:"required"`
}

// Caption is the caption_writer output.
type Caption struct {
	Text         string   `json:"text" jsonschema:"required,description=Platform-ready caption"`
	Hashtags     []string `json:"hashtags" jsonschema:"required"`
	CallToAction string   `json:"call_to_action,omitempty"`
}

// New creates the agent for a config entry. Built-in pipeline agent names
// get their typed output schema; anything else runs freeform.
func New(cfg *config.AgentConfig, provider llms.Provider) (Agent, error) {
	switch cfg.Name {
	case "audience_analyzer":
		return NewTyped[AudienceProfile](cfg, provider)
	case "trend_scanner":
		return NewTyped[TrendReport](cfg, provider)
	case "tone_profiler":
		return NewTyped[ToneProfile](cfg, provider)
	case "keyword_miner":
		return NewTyped[KeywordSet](cfg, provider)
	case "idea_generator":
		return NewTyped[IdeaList](cfg, provider)
	case "script_writer":
		return NewTyped[Script](cfg, provider)
	case "scene_planner":
		return NewTyped[ScenePlan](cfg, provider)
	case "caption_writer":
		return NewTyped[Caption](cfg, provider)
	default:
		return NewFreeform(cfg, provider), nil
	}
}
