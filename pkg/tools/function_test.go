package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type weatherArgs struct {
	City string `json:"city" jsonschema_description:"City to look up"`
	Days int    `json:"days,omitempty"`
}

func TestNewFunctionTool_SchemaReflection(t *testing.T) {
	tool, err := NewFunctionTool("get_weather", "Looks up the weather.",
		func(_ context.Context, args weatherArgs) (string, error) {
			return "sunny in " + args.City, nil
		})
	require.NoError(t, err)

	assert.Equal(t, "get_weather", tool.Name())
	assert.Equal(t, "Looks up the weather.", tool.Description())

	params := tool.Parameters()
	assert.Equal(t, "object", params["type"])
	assert.NotContains(t, params, "$schema")

	props, ok := params["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "city")
	assert.Contains(t, props, "days")
}

func TestFunctionTool_Execute(t *testing.T) {
	tool, err := NewFunctionTool("get_weather", "",
		func(_ context.Context, args weatherArgs) (string, error) {
			return "sunny in " + args.City, nil
		})
	require.NoError(t, err)

	result, err := tool.Execute(context.Background(), map[string]any{"city": "Oslo"})
	require.NoError(t, err)
	assert.Equal(t, "sunny in Oslo", result)
}

func TestFunctionTool_ExecuteInvalidArgs(t *testing.T) {
	tool, err := NewFunctionTool("get_weather", "",
		func(_ context.Context, args weatherArgs) (string, error) {
			return "", nil
		})
	require.NoError(t, err)

	_, err = tool.Execute(context.Background(), map[string]any{"days": "not a number"})
	assert.Error(t, err)
}

func TestNewFunctionTool_Validation(t *testing.T) {
	_, err := NewFunctionTool[weatherArgs]("", "", nil)
	assert.Error(t, err)

	_, err = NewFunctionTool[weatherArgs]("named", "", nil)
	assert.Error(t, err)
}

func TestToDefinitions(t *testing.T) {
	tool, err := NewFunctionTool("get_weather", "Weather.",
		func(_ context.Context, args weatherArgs) (string, error) { return "", nil })
	require.NoError(t, err)

	defs := ToDefinitions([]Tool{tool})
	require.Len(t, defs, 1)
	assert.Equal(t, "get_weather", defs[0].Name)
	assert.NotNil(t, defs[0].Parameters)

	assert.Nil(t, ToDefinitions(nil))
}

func TestRequestScope_RoundTrip(t *testing.T) {
	ctx := WithRequestScope(context.Background(), RequestScope{UserID: "u", SessionID: "s"})

	scope, ok := ScopeFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u", scope.UserID)
	assert.Equal(t, "s", scope.SessionID)

	_, ok = ScopeFrom(context.Background())
	assert.False(t, ok)
}
