package hostfuncs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greetRequest struct {
	Name string `json:"name"`
}

type greetResponse struct {
	Greeting string `json:"greeting"`
}

func TestNewJSONHandler(t *testing.T) {
	handler := NewJSONHandler(func(ctx context.Context, req greetRequest) greetResponse {
		return greetResponse{Greeting: "hello " + req.Name}
	})

	resp, err := handler(context.Background(), []byte(`{"name":"world"}`))
	require.NoError(t, err)

	var out greetResponse
	require.NoError(t, json.Unmarshal(resp, &out))
	assert.Equal(t, "hello world", out.Greeting)
}

func TestNewJSONHandler_MalformedRequest(t *testing.T) {
	handler := NewJSONHandler(func(ctx context.Context, req greetRequest) greetResponse {
		t.Fatal("handler must not run on malformed input")
		return greetResponse{}
	})

	_, err := handler(context.Background(), []byte(`{not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestHostContext(t *testing.T) {
	ctx := NewHostContext(context.Background(), "fs_read")
	assert.Equal(t, "fs_read", ctx.FunctionName())

	ctx.SetValue("k", 42)
	v, ok := ctx.GetValue("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = ctx.GetValue("missing")
	assert.False(t, ok)

	// Wrapping an existing HostContext returns it unchanged.
	same := HostContextFrom(ctx, "other")
	assert.Equal(t, "fs_read", same.FunctionName())
}
