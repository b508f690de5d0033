package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/agentship/agentship/pkg/registry"
)

// FunctionTool adapts a Go function into a Tool. The parameter schema is
// reflected from the args struct type.
type FunctionTool[T any] struct {
	name        string
	description string
	schema      map[string]any
	fn          func(ctx context.Context, args T) (string, error)
}

// NewFunctionTool builds a tool from fn. T must be a struct whose fields
// carry json tags; jsonschema_description tags become parameter
// descriptions.
func NewFunctionTool[T any](name, description string, fn func(ctx context.Context, args T) (string, error)) (*FunctionTool[T], error) {
	if name == "" {
		return nil, fmt.Errorf("function tool name cannot be empty")
	}
	if fn == nil {
		return nil, fmt.Errorf("function tool %q: fn cannot be nil", name)
	}

	schema, err := reflectSchema[T]()
	if err != nil {
		return nil, fmt.Errorf("function tool %q: %w", name, err)
	}

	return &FunctionTool[T]{
		name:        name,
		description: description,
		schema:      schema,
		fn:          fn,
	}, nil
}

func reflectSchema[T any]() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to reflect parameter schema: %w", err)
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode parameter schema: %w", err)
	}
	delete(result, "$schema")
	return result, nil
}

func (t *FunctionTool[T]) Name() string        { return t.name }
func (t *FunctionTool[T]) Description() string { return t.description }

func (t *FunctionTool[T]) Parameters() map[string]any { return t.schema }

func (t *FunctionTool[T]) Execute(ctx context.Context, args map[string]any) (string, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode arguments: %w", err)
	}
	var typed T
	if err := json.Unmarshal(data, &typed); err != nil {
		return "", fmt.Errorf("invalid arguments for %s: %w", t.name, err)
	}
	return t.fn(ctx, typed)
}

// FunctionRegistry holds the locally registered callables referenced by
// agent configs.
type FunctionRegistry struct {
	*registry.BaseRegistry[Tool]
}

func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{BaseRegistry: registry.NewBaseRegistry[Tool]()}
}
