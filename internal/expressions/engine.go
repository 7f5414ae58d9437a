// Package expressions narrows and reshapes reconstructed histories with
// user-supplied expressions.
package expressions

import (
	"context"

	"github.com/rendis/temporal-mcp/pkg/schema"
)

// Engine evaluates one expression against a data map.
// CEL and Expr filter items; GoJQ projects whole documents.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Registry holds one engine per filter language, plus the jq projector.
type Registry struct {
	filters map[string]Engine
	jq      *GoJQEngine
}

// NewRegistry builds the CEL, Expr and jq engines.
func NewRegistry() (*Registry, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	exprEngine := NewExprEngine()
	return &Registry{
		filters: map[string]Engine{
			celEngine.Name():  celEngine,
			exprEngine.Name(): exprEngine,
		},
		jq: NewGoJQEngine(),
	}, nil
}

// Filter returns the filter engine for language ("cel" or "expr").
func (r *Registry) Filter(language string) (Engine, error) {
	if language == "" {
		language = "cel"
	}
	e, ok := r.filters[language]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown filter language %q: expected cel or expr", language)
	}
	return e, nil
}

// JQ returns the projection engine.
func (r *Registry) JQ() *GoJQEngine { return r.jq }
