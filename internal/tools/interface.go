package tools

import (
	"context"
)

// Definition describes a tool to the model and to task scripts.
type Definition struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"input_schema"`
	OutputSchema map[string]any `json:"output_schema"`
}

// Tool is a capability task scripts can call by name.
type Tool interface {
	Definition() Definition
	Call(ctx context.Context, input map[string]any) (any, error)
}

// Func is the shape a tool takes inside a task script.
type Func = func(map[string]any) (any, error)
