package expressions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rendis/temporal-mcp/pkg/schema"
)

// FilterItems keeps the items for which expression evaluates to true. Each
// item is exposed to the expression as "item", in its JSON shape. The root
// workflow is always kept so the result stays anchored to its run.
//
// An empty expression returns items unchanged.
func FilterItems(ctx context.Context, engine Engine, expression string, items []schema.Item) ([]schema.Item, error) {
	if expression == "" {
		return items, nil
	}

	out := make([]schema.Item, 0, len(items))
	for i, it := range items {
		if it.Kind() == schema.KindWorkflow {
			out = append(out, it)
			continue
		}

		doc, err := toJSONMap(it)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeExpression, "encode item %d", i).WithCause(err)
		}
		v, err := engine.Evaluate(ctx, expression, map[string]any{"item": doc})
		if err != nil {
			return nil, err
		}
		keep, ok := v.(bool)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"filter %q must evaluate to a boolean, got %T", expression, v).
				WithDetails(map[string]any{"expression": expression, "language": engine.Name()})
		}
		if keep {
			out = append(out, it)
		}
	}
	return out, nil
}

// Project applies a jq program to an arbitrary JSON-encodable document.
func Project(ctx context.Context, jq *GoJQEngine, expression string, doc any) (any, error) {
	input, err := toJSONValue(doc)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExpression, "encode document for jq").WithCause(err)
	}
	return jq.Run(ctx, expression, input)
}

func toJSONMap(v any) (map[string]any, error) {
	val, err := toJSONValue(v)
	if err != nil {
		return nil, err
	}
	m, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %T", val)
	}
	return m, nil
}

// toJSONValue round-trips v through encoding/json so expressions see plain
// maps, slices, float64 and strings.
func toJSONValue(v any) (any, error) {
	var b []byte
	switch raw := v.(type) {
	case json.RawMessage:
		b = raw
	case []byte:
		b = raw
	default:
		var err error
		if b, err = json.Marshal(v); err != nil {
			return nil, err
		}
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
