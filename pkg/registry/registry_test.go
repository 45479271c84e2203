package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/surfit-labs/saw-core/pkg/model"
)

func okTool(name string) Tool {
	return func(_ context.Context, _ map[string]any, _ *model.RunContext) model.ToolResult {
		return model.ToolResult{ToolName: name, Success: true}
	}
}

func TestRegistry_RegisterAndInvoke(t *testing.T) {
	r := New()
	r.Register("tool_x", okTool("tool_x"))

	assert.True(t, r.Has("tool_x"))
	assert.False(t, r.Has("tool_y"))

	res, err := r.Invoke(context.Background(), "tool_x", nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "tool_x", res.ToolName)
}

func TestRegistry_InvokeUnknownTool(t *testing.T) {
	r := New()
	_, err := r.Invoke(context.Background(), "tool_missing", nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := New()
	r.Register("tool_x", okTool("first"))
	r.Register("tool_x", okTool("second"))

	res, err := r.Invoke(context.Background(), "tool_x", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "second", res.ToolName)
}

func TestRegistry_LimitAdmitsWithinBurst(t *testing.T) {
	r := New()
	r.Register("tool_x", okTool("tool_x"))
	r.Limit("tool_x", rate.Every(time.Millisecond), 2)

	for i := 0; i < 2; i++ {
		_, err := r.Invoke(context.Background(), "tool_x", nil, nil)
		require.NoError(t, err)
	}
}

func TestRegistry_LimitHonorsContextCancellation(t *testing.T) {
	r := New()
	r.Register("tool_x", okTool("tool_x"))
	// Zero-rate limiter with an exhausted burst never admits another call.
	r.Limit("tool_x", 0, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Invoke(ctx, "tool_x", nil, nil)
	assert.Error(t, err)
}
