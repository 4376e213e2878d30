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

package workflow

// SelectedIdeaKey is where the chosen content idea lands after the
// idea_generator output merges.
const SelectedIdeaKey = "selected_idea"

// mergeRule folds one agent's output into the shared context values.
type mergeRule func(ctx *Context, agentName string, values map[string]any)

// mergeRules maps agent names to their merge behavior. Agents without an
// entry use mergeUnderAgentName.
var mergeRules = map[string]mergeRule{
	"idea_generator": mergeSelectedIdea,
}

// mergeOutput applies the merge rule for an agent's output.
func mergeOutput(ctx *Context, agentName string, values map[string]any) {
	rule, ok := mergeRules[agentName]
	if !ok {
		rule = mergeUnderAgentName
	}
	rule(ctx, agentName, values)
}

// mergeUnderAgentName stores the whole output under the agent's name.
func mergeUnderAgentName(ctx *Context, agentName string, values map[string]any) {
	ctx.SetValue(agentName, values)
}

// mergeSelectedIdea keeps the full ranked list under the agent's name and
// promotes the first (strongest) idea to SelectedIdeaKey for the stages
// that follow.
func mergeSelectedIdea(ctx *Context, agentName string, values map[string]any) {
	ctx.SetValue(agentName, values)

	ideas, ok := values["ideas"].([]any)
	if !ok || len(ideas) == 0 {
		return
	}
	ctx.SetValue(SelectedIdeaKey, ideas[0])
}
