package rules

// CheckOperator reports whether actual violates "actual <op> expected".
// ok is false when the operator is unknown or the expected value has the
// wrong shape for it (between needs a range, the others a number).
func CheckOperator(actual float64, op Operator, expected Value) (violated bool, ok bool) {
	if op == OpBetween {
		if !expected.IsRange {
			return false, false
		}
		return actual < expected.Min || actual > expected.Max, true
	}
	if expected.IsRange {
		return false, false
	}

	want := expected.Number
	switch op {
	case OpEquals:
		return actual != want, true
	case OpNotEquals:
		return actual == want, true
	case OpGreaterThan:
		return actual <= want, true
	case OpGreaterThanOrEqual:
		return actual < want, true
	case OpLessThan:
		return actual >= want, true
	case OpLessThanOrEqual:
		return actual > want, true
	default:
		return false, false
	}
}

// IsKnownOperator reports whether op is one of the supported operators
func IsKnownOperator(op Operator) bool {
	_, ok := operatorWords[op]
	return ok
}

var operatorWords = map[Operator]string{
	OpEquals:             "exactly",
	OpNotEquals:          "not",
	OpGreaterThan:        "more than",
	OpGreaterThanOrEqual: "at least",
	OpLessThan:           "fewer than",
	OpLessThanOrEqual:    "at most",
	OpBetween:            "between",
}

// failureMessage builds "Expected <operator-word> <value> <description>, found <actual>"
func failureMessage(op Operator, expected Value, description string, actual float64) string {
	return "Expected " + operatorWords[op] + " " + expected.String() + " " + description + ", found " + formatNumber(actual)
}
