package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// conditionSchema is the structural minimum of every condition: a type, an
// operator and a comparison value. Unknown types and operators pass here and
// are reported at evaluation time instead.
const conditionSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["type", "operator", "value"],
	"properties": {
		"type": {"type": "string", "minLength": 1},
		"operator": {"type": "string", "minLength": 1},
		"value": {
			"anyOf": [
				{"type": "number"},
				{
					"type": "object",
					"required": ["min", "max"],
					"properties": {"min": {"type": "number"}, "max": {"type": "number"}}
				}
			]
		},
		"dayFilter": {"type": "string"},
		"message": {"type": "string"},
		"expression": {"type": "string"}
	}
}`

var compiledConditionSchema = jsonschema.MustCompileString("https://staffrules.local/condition.schema.json", conditionSchema)

// ValidateRule checks a rule's structure before it is stored. Every failure
// wraps ErrInvalidRule. exprs may be nil, which skips CEL compilation.
func ValidateRule(rule *Rule, exprs *ExpressionCompiler) error {
	if rule == nil {
		return fmt.Errorf("%w: rule is nil", ErrInvalidRule)
	}
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("%w: rule name is required", ErrInvalidRule)
	}

	var conds []Condition
	switch {
	case rule.IsAdvanced() && len(rule.Conditions) > 0:
		return fmt.Errorf("%w: rule %q has both conditions and a json tree", ErrInvalidRule, rule.Name)
	case rule.IsAdvanced():
		tree, err := NormalizeTree(rule.JSON)
		if err != nil {
			return fmt.Errorf("%w: rule %q: %v", ErrInvalidRule, rule.Name, err)
		}
		conds = tree
	case len(rule.Conditions) == 0:
		return fmt.Errorf("%w: rule %q needs at least one condition", ErrInvalidRule, rule.Name)
	default:
		conds = rule.Conditions
	}

	for i := range conds {
		if err := validateCondition(&conds[i], exprs); err != nil {
			return fmt.Errorf("%w: rule %q condition %d: %v", ErrInvalidRule, rule.Name, i, err)
		}
	}
	return nil
}

func validateCondition(cond *Condition, exprs *ExpressionCompiler) error {
	raw, err := json.Marshal(cond)
	if err != nil {
		return fmt.Errorf("failed to encode condition: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to decode condition: %w", err)
	}
	if err := compiledConditionSchema.Validate(doc); err != nil {
		return err
	}

	if cond.Type == KindCustomExpression {
		if strings.TrimSpace(cond.Expression) == "" {
			return fmt.Errorf("custom_expression requires an expression")
		}
		if exprs != nil {
			if _, err := exprs.Compile(cond.Expression); err != nil {
				return fmt.Errorf("expression %q: %w", cond.Expression, err)
			}
		}
	}

	if len(cond.When) > 0 {
		if err := validGuardShape(cond.When); err != nil {
			return err
		}
	}
	return nil
}
