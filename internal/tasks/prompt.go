package tasks

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"ask/internal/tools"
)

// DefinitionInstruction is the first message of an authoring thread: what a
// task is, how its script is called, and what it may depend on.
func DefinitionInstruction(others map[string]Meta, toolDefs []tools.Definition, systemInfo string) string {
	depsJSON, _ := json.MarshalIndent(others, "", "  ")
	toolsByName := make(map[string]tools.Definition, len(toolDefs))
	for _, d := range toolDefs {
		toolsByName[d.Name] = d
	}
	toolsJSON, _ := json.MarshalIndent(toolsByName, "", "  ")

	r := strings.NewReplacer(
		"{{go_version}}", runtime.Version(),
		"{{dependencies_json}}", string(depsJSON),
		"{{tools_json}}", string(toolsJSON),
		"{{system_info}}", systemInfo,
	)
	return r.Replace(taskDefinitionInstruction)
}

// DefineStepInstruction starts the definition phase for slug; an existing
// definition is offered as the starting point.
func DefineStepInstruction(slug string, existing *Meta) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are to engage with an interactive, iterative chat with the user
in order to define the task definition for the task with slug "%[1]s".
Use this task slug "%[1]s" don't make up your own.

Do not print any code snippets, this is a high level discussion about what the task should achieve
and its interface. You may print the input and output JSON schema for clarification.

Once you are confident that you understand what you need to do, print a
final message containing a JSON object defining the task metadata.

The JSON object should be wrapped in a standard markdown code block (`+"```json"+`) so it can be extracted.

This is step one of a multi-process workflow. Your only job in this step is to produce
the task definition JSON. Do not attempt to produce a Go script - that comes later.

Once you have a JSON in mind then print it out in every response.
`, slug)
	if existing != nil {
		data, _ := json.MarshalIndent(existing, "", "  ")
		b.WriteString("\nThis is the current definition for this task, use this as a starting point:\n")
		b.Write(data)
		b.WriteString("\n")
	}
	return b.String()
}

const taskDefinitionInstruction = `
You are now in "Task Mode"

Your job is to generate a "task" in an interactive chat session with a user.
A task is a single-file Go script with well defined inputs and outputs and some metadata.

# Task Definition

The following data is required to define a task:

- A JSON object defining the task metadata
- a Go script which contains the task's Run function

## Task Metadata

The metadata for a task takes the following form (JSON schema):

` + "```json" + `
{
    "type": "object",
    "properties": {
        "name": {"type": "string"},
        "description": {"type": "string"},
        "summary": {"type": "string"},
        "slug": {"type": "string"},
        "input_schema": {"type": "object"},
        "output_schema": {"type": "object"},
        "depends_on": {"type": "array", "items": {"type": "string"}}
    },
    "required": ["name", "description", "summary", "slug", "input_schema", "output_schema", "depends_on"]
}
` + "```" + `

Here's some details on what these fields mean:

- name: user friendly name for the task
- description: short description of what the task does
- summary: longer description of how the task achieves its goal
- slug: unique task slug (lowercase letters, digits, '-' and '_')
- input_schema: JSON schema description of the Run function input
- output_schema: JSON schema description of the Run function output
- depends_on: list of other task slugs that this task depends on (and makes use of)

## Input/Output Schema Requirements

A task's input schema must be an object (a map[string]any).
The object must not have any nested objects.
It is expected that a human can reasonably specify all the data required for the schema from a CLI.
The input schema may be an empty object if there are no inputs to the task.

A task's output schema must be an object (a map[string]any).
There are no limits to the complexity of the output schema.

## Task Go Script

A valid task script declares package main and a Run function with the following signature:

` + "```go" + `
package main

func Run(input map[string]any, deps map[string]func(map[string]any) (map[string]any, error), tools map[string]func(map[string]any) (any, error)) (map[string]any, error) {
	// Task implemented here
}
` + "```" + `

The input and the returned map are described by the JSON schemas in the task metadata.
Tasks do not need to validate their inputs or outputs against the schemas: this is handled elsewhere.

The script is interpreted with Go {{go_version}} semantics.
It may define whatever functions, types and data structures are necessary to do the job.
The script should not require any user input beyond the input data provided.
The script may import packages from the Go standard library only.

## Error handling

Tasks should handle their own errors and must not panic.
Error reporting should be done by including a "success" boolean in the output data,
as appropriate, and a descriptive "fail_reason" string in the output data, as appropriate.
A non-nil error return is reserved for failures the task cannot describe in its output.

## External Communications

Tasks are allowed and expected to make external API calls when needed (HTTP requests,
API integrations, web scraping, file downloads, network connections).
Tasks should handle external communication failures gracefully and report them through
the success/fail_reason convention, respecting rate limits.

## Task Dependencies

A task can make use of other tasks which already have been created.
If another task is used by this task then its slug must be included in the "depends_on"
field in the task metadata.

Run receives a deps map where the keys are task slugs and the values are the
entrypoints of those tasks.

These are the tasks that may be used as dependencies:

` + "```json" + `
{{dependencies_json}}
` + "```" + `

## Task Tools

In addition to other tasks you can make use of a set of pre-defined tools.
Run receives a tools map where the keys are tool names and the values are
the functions that run the tools.

These are the tools available:

` + "```json" + `
{{tools_json}}
` + "```" + `

## Example task script

` + "```go" + `
package main

import "fmt"

func Run(input map[string]any, deps map[string]func(map[string]any) (map[string]any, error), tools map[string]func(map[string]any) (any, error)) (map[string]any, error) {
	url, _ := input["url"].(string)

	// Fetch URL text with the 'web' tool
	text, err := tools["web"](map[string]any{"url": url})
	if err != nil || text == nil {
		return map[string]any{"success": false, "fail_reason": "Failed to fetch text from URL"}, nil
	}

	// Classify the text with the 'classify-text' task.
	// Note: this is not a real dependency, it only illustrates the call.
	classified, err := deps["classify-text"](map[string]any{"text": text})
	if err != nil {
		return map[string]any{"success": false, "fail_reason": fmt.Sprintf("classification failed: %v", err)}, nil
	}
	return map[string]any{"success": true, "classification": classified["label"]}, nil
}
` + "```" + `

# System Information

System info (take this into consideration):
{{system_info}}
`
