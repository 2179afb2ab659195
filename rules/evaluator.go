package rules

import (
	"errors"
	"fmt"
)

// OutcomeKind classifies the result of evaluating one condition on one date
type OutcomeKind int

const (
	// OutcomeNone means the condition held
	OutcomeNone OutcomeKind = iota
	// OutcomeViolation means the condition failed and Violation is set
	OutcomeViolation
	// OutcomeSkipped means the day filter or guard excluded the date
	OutcomeSkipped
	// OutcomeUnhandled means the condition could not be evaluated; Reason says why
	OutcomeUnhandled
)

// Outcome is the typed result of Evaluator.Evaluate
type Outcome struct {
	Kind      OutcomeKind
	Violation *Violation
	Reason    string
	Detail    string
}

func unhandled(reason, detail string) Outcome {
	return Outcome{Kind: OutcomeUnhandled, Reason: reason, Detail: detail}
}

// Evaluator checks per-day conditions against staffing snapshots
type Evaluator struct {
	idx   *RosterIndex
	exprs *ExpressionCompiler
}

// NewEvaluator creates an evaluator over one pass's roster index
func NewEvaluator(idx *RosterIndex, exprs *ExpressionCompiler) *Evaluator {
	return &Evaluator{idx: idx, exprs: exprs}
}

// Evaluate checks cond on date. It never panics on bad input: unknown kinds,
// operators and broken expressions come back as OutcomeUnhandled.
// The returned violation has no rule fields; the caller stamps them.
func (ev *Evaluator) Evaluate(cond *Condition, date string, snap *StaffingSnapshot) Outcome {
	if !IsKnownDayFilter(cond.DayFilter) {
		return unhandled(DiagnosticUnknownFilter, fmt.Sprintf("day filter %q", cond.DayFilter))
	}
	if !DayFilterApplies(cond.DayFilter, snap.Weekday) {
		return Outcome{Kind: OutcomeSkipped}
	}

	spec, ok := dailyKinds[cond.Type]
	if !ok {
		return unhandled(DiagnosticUnknownKind, fmt.Sprintf("condition type %q", cond.Type))
	}
	if !IsKnownOperator(cond.Operator) {
		return unhandled(DiagnosticUnknownOperator, fmt.Sprintf("operator %q", cond.Operator))
	}
	if cond.Value == nil {
		return unhandled(DiagnosticMissingValue, fmt.Sprintf("condition %q has no value", cond.Type))
	}

	if len(cond.When) > 0 {
		applies, err := evalGuard(cond.When, snap.Facts(ev.idx))
		if err != nil {
			return unhandled(DiagnosticGuard, err.Error())
		}
		if !applies {
			return Outcome{Kind: OutcomeSkipped}
		}
	}

	actual, err := spec.count(&countContext{cond: cond, snap: snap, idx: ev.idx, exprs: ev.exprs})
	if err != nil {
		if errors.Is(err, errMissingTarget) {
			return unhandled(DiagnosticMissingTarget, fmt.Sprintf("condition %q: %v", cond.Type, err))
		}
		return unhandled(DiagnosticExpression, err.Error())
	}

	violated, ok := CheckOperator(actual, cond.Operator, *cond.Value)
	if !ok {
		return unhandled(DiagnosticUnknownOperator, fmt.Sprintf("operator %q does not accept value %s", cond.Operator, cond.Value))
	}
	if !violated {
		return Outcome{Kind: OutcomeNone}
	}

	message := cond.Message
	if message == "" {
		message = failureMessage(cond.Operator, *cond.Value, spec.describe(cond), actual)
	}

	return Outcome{
		Kind: OutcomeViolation,
		Violation: &Violation{
			Date:          date,
			Severity:      cond.Severity.OrDefault(),
			Message:       message,
			ActualValue:   actual,
			ExpectedValue: *cond.Value,
		},
	}
}
