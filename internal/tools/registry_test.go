// ABOUTME: Tests for the tool registry
// ABOUTME: Verifies error serialization, panic recovery and definition ordering

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_ReturnsHandlerResult(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&Tool{
		Name: "echo",
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			return string(args), nil
		},
	})

	got := r.Execute(context.Background(), "echo", `{"x":1}`)
	assert.Equal(t, `{"x":1}`, got)
}

func TestExecute_UnknownToolSerialized(t *testing.T) {
	r := NewRegistry(nil)

	got := r.Execute(context.Background(), "nope", `{}`)

	var result map[string]string
	require.NoError(t, json.Unmarshal([]byte(got), &result))
	assert.Contains(t, result["error"], "unknown tool")
	assert.Contains(t, result["error"], "nope")
}

func TestExecute_HandlerErrorSerialized(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&Tool{
		Name: "fails",
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			return "", errors.New("backend timeout")
		},
	})

	got := r.Execute(context.Background(), "fails", `{}`)

	var result map[string]string
	require.NoError(t, json.Unmarshal([]byte(got), &result))
	assert.Equal(t, "backend timeout", result["error"])
}

func TestExecute_PanicRecovered(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&Tool{
		Name: "panics",
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			panic("boom")
		},
	})

	got := r.Execute(context.Background(), "panics", `{}`)

	var result map[string]string
	require.NoError(t, json.Unmarshal([]byte(got), &result))
	assert.Contains(t, result["error"], "panicked")
}

func TestDefinitions_RegistrationOrder(t *testing.T) {
	r := NewRegistry(nil)
	noop := func(ctx context.Context, args json.RawMessage) (string, error) { return "", nil }

	r.Register(&Tool{Name: "alpha", Description: "first", Handler: noop})
	r.Register(&Tool{Name: "beta", Description: "second", Handler: noop})

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "alpha", defs[0].Function.Name)
	assert.Equal(t, "beta", defs[1].Function.Name)
	assert.Equal(t, "function", defs[0].Type)
}

func TestRegister_DuplicateReplacesInPlace(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&Tool{
		Name: "dup",
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			return "old", nil
		},
	})
	r.Register(&Tool{
		Name: "dup",
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			return "new", nil
		},
	})

	assert.Len(t, r.Definitions(), 1)
	assert.Equal(t, "new", r.Execute(context.Background(), "dup", `{}`))
}
