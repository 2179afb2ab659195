package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/diegoholiveira/jsonlogic/v3"
)

var errGuardNotBoolean = errors.New("guard must return boolean")

// evalGuard applies a JSON-logic guard to the snapshot facts
func evalGuard(when json.RawMessage, facts map[string]any) (bool, error) {
	data, err := json.Marshal(facts)
	if err != nil {
		return false, fmt.Errorf("failed to encode guard data: %w", err)
	}

	var out bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(when), bytes.NewReader(data), &out); err != nil {
		return false, fmt.Errorf("guard evaluation failed: %w", err)
	}

	var result any
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &result); err != nil {
		return false, fmt.Errorf("guard returned invalid JSON: %w", err)
	}

	b, ok := result.(bool)
	if !ok {
		return false, errGuardNotBoolean
	}
	return b, nil
}

// validGuardShape checks that a guard is a JSON-logic object or a literal boolean
func validGuardShape(when json.RawMessage) error {
	var v any
	if err := json.Unmarshal(when, &v); err != nil {
		return fmt.Errorf("guard is not valid JSON: %w", err)
	}
	switch v.(type) {
	case map[string]any, bool:
		return nil
	default:
		return fmt.Errorf("guard must be a JSON-logic object, got %T", v)
	}
}
