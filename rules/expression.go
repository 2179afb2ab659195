package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// expressionCostLimit bounds the work a single custom expression may do
const expressionCostLimit = 1000000

// ExpressionCompiler compiles and caches the CEL programs behind
// custom_expression conditions. Programs are keyed by expression text.
type ExpressionCompiler struct {
	env      *cel.Env
	programs map[string]cel.Program
	mu       sync.RWMutex
}

// NewExpressionCompiler creates a compiler whose environment exposes one
// day's snapshot: date, weekday, weekend, total, roles, shifts and summary.
func NewExpressionCompiler() (*ExpressionCompiler, error) {
	env, err := cel.NewEnv(
		cel.Variable("date", cel.StringType),
		cel.Variable("weekday", cel.StringType),
		cel.Variable("weekend", cel.BoolType),
		cel.Variable("total", cel.IntType),
		cel.Variable("roles", cel.DynType),
		cel.Variable("shifts", cel.DynType),
		cel.Variable("summary", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &ExpressionCompiler{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Compile type-checks an expression and caches its program
func (c *ExpressionCompiler) Compile(expression string) (cel.Program, error) {
	c.mu.RLock()
	prog, ok := c.programs[expression]
	c.mu.RUnlock()
	if ok {
		return prog, nil
	}

	ast, issues := c.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := c.env.Program(ast, cel.CostLimit(expressionCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	c.mu.Lock()
	c.programs[expression] = prog
	c.mu.Unlock()

	return prog, nil
}

// Eval runs an expression against snapshot facts and returns its numeric result
func (c *ExpressionCompiler) Eval(expression string, facts map[string]any) (float64, error) {
	prog, err := c.Compile(expression)
	if err != nil {
		return 0, err
	}

	out, _, err := prog.Eval(facts)
	if err != nil {
		return 0, fmt.Errorf("evaluation error: %w", err)
	}

	switch v := out.Value().(type) {
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float64:
		return v, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("expression %q returned %T, want a number", expression, v)
	}
}
