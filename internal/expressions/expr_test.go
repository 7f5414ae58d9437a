package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/temporal-mcp/pkg/schema"
)

func TestNewExprEngine(t *testing.T) {
	e := NewExprEngine()
	assert.Equal(t, "expr", e.Name())
}

func TestExpr_ItemAccess(t *testing.T) {
	e := NewExprEngine()
	item := map[string]any{
		"type":   "activity",
		"status": "Completed",
		"taskQueue": map[string]any{
			"name": "orders",
		},
		"relatedEventIds": []any{"5", "7", "8"},
	}

	tests := []struct {
		expr string
		want any
	}{
		{`item.type == "activity"`, true},
		{`item.taskQueue.name == "orders"`, true},
		{`len(item.relatedEventIds) == 3`, true},
		{`item.status in ["Failed", "TimedOut"]`, false},
		{`item?.failure ?? "none"`, "none"},
		{`item.type startsWith "act"`, true},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			out, err := e.Evaluate(context.Background(), tc.expr, map[string]any{"item": item})
			require.NoError(t, err)
			assert.Equal(t, tc.want, out)
		})
	}
}

func TestExpr_EmptyExpression(t *testing.T) {
	_, err := NewExprEngine().Evaluate(context.Background(), "", nil)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestExpr_CompileError(t *testing.T) {
	_, err := NewExprEngine().Evaluate(context.Background(), `item.type ==`, nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestExpr_RuntimeError(t *testing.T) {
	_, err := NewExprEngine().Evaluate(context.Background(), `item.count / "x"`,
		map[string]any{"item": map[string]any{"count": 1.0}})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeExpression, schema.CodeOf(err))
}

func TestExpr_NilData(t *testing.T) {
	out, err := NewExprEngine().Evaluate(context.Background(), `1 + 1`, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, out)
}

func TestExpr_Caching(t *testing.T) {
	e := NewExprEngine()
	data := map[string]any{"item": map[string]any{"type": "timer"}}

	for range 3 {
		_, err := e.Evaluate(context.Background(), `item.type == "timer"`, data)
		require.NoError(t, err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	assert.Len(t, e.cache, 1)
}

func TestExpr_Concurrent(t *testing.T) {
	e := NewExprEngine()

	var wg sync.WaitGroup
	errs := make([]error, 100)
	results := make([]any, 100)

	for i := range 100 {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			data := map[string]any{"item": map[string]any{"n": float64(idx)}}
			results[idx], errs[idx] = e.Evaluate(context.Background(), `item.n >= 0`, data)
		}(i)
	}
	wg.Wait()

	for i := range 100 {
		assert.NoError(t, errs[i], "goroutine %d should not error", i)
		assert.Equal(t, true, results[i], "goroutine %d should return true", i)
	}
}
