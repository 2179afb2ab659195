package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// maxTreeDepth bounds nesting (including JSON-in-string re-parsing)
const maxTreeDepth = 16

var errEmptyTree = errors.New("condition tree is empty")

// NormalizeTree turns an advanced rule's JSON tree into a flat condition list.
// Accepted shapes:
//
//	{"conditions": [ ... ]}        nested groups are flattened
//	{"type": ..., "operator": ...} a single bare condition
//	"<json text>"                  a JSON document stored as a string
//	{"json": { ... }}              any of the above wrapped once more
func NormalizeTree(raw json.RawMessage) ([]Condition, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, errEmptyTree
	}

	var node any
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("condition tree is not valid JSON: %w", err)
	}

	conds, err := normalizeNode(node, 0)
	if err != nil {
		return nil, err
	}
	if len(conds) == 0 {
		return nil, errEmptyTree
	}
	return conds, nil
}

func normalizeNode(node any, depth int) ([]Condition, error) {
	if depth > maxTreeDepth {
		return nil, fmt.Errorf("condition tree nested deeper than %d levels", maxTreeDepth)
	}

	switch v := node.(type) {
	case string:
		text := strings.TrimSpace(v)
		if text == "" {
			return nil, errEmptyTree
		}
		var parsed any
		if err := json.Unmarshal([]byte(text), &parsed); err != nil {
			return nil, fmt.Errorf("condition tree string is not valid JSON: %w", err)
		}
		return normalizeNode(parsed, depth+1)

	case map[string]any:
		if _, isLeaf := v["type"]; isLeaf {
			cond, err := decodeLeaf(v)
			if err != nil {
				return nil, err
			}
			return []Condition{cond}, nil
		}
		if list, ok := v["conditions"]; ok {
			items, ok := list.([]any)
			if !ok {
				return nil, fmt.Errorf("conditions must be an array, got %T", list)
			}
			var out []Condition
			for i, item := range items {
				conds, err := normalizeNode(item, depth+1)
				if err != nil {
					return nil, fmt.Errorf("conditions[%d]: %w", i, err)
				}
				out = append(out, conds...)
			}
			return out, nil
		}
		if inner, ok := v["json"]; ok {
			return normalizeNode(inner, depth+1)
		}
		return nil, errors.New("condition tree node has neither type, conditions nor json")

	default:
		return nil, fmt.Errorf("unexpected %T in condition tree", node)
	}
}

func decodeLeaf(m map[string]any) (Condition, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return Condition{}, fmt.Errorf("failed to re-encode condition: %w", err)
	}
	var cond Condition
	if err := json.Unmarshal(raw, &cond); err != nil {
		return Condition{}, fmt.Errorf("invalid condition: %w", err)
	}
	return cond, nil
}
