package rules

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/liamcoop/staffrules/roster"
)

// EmployeeMetrics are one employee's counts over a whole interval.
// MoveDays and RequestDays are the same count under two names.
type EmployeeMetrics struct {
	Assignments   int
	TotalShifts   int
	VacationDays  int
	MoveDays      int
	RequestDays   int
	DayShifts     int
	NightShifts   int
	WeekendShifts int
	WeekdayShifts int
}

type employeeKindSpec struct {
	metric func(m EmployeeMetrics) int
	label  string
}

var employeeKinds = map[ConditionKind]employeeKindSpec{
	KindEmployeeTotalShifts:   {func(m EmployeeMetrics) int { return m.TotalShifts }, "total shifts"},
	KindEmployeeVacationDays:  {func(m EmployeeMetrics) int { return m.VacationDays }, "vacation days"},
	KindEmployeeMoveDays:      {func(m EmployeeMetrics) int { return m.MoveDays }, "move days"},
	KindEmployeeDayShifts:     {func(m EmployeeMetrics) int { return m.DayShifts }, "day shifts"},
	KindEmployeeNightShifts:   {func(m EmployeeMetrics) int { return m.NightShifts }, "night shifts"},
	KindEmployeeWeekendShifts: {func(m EmployeeMetrics) int { return m.WeekendShifts }, "weekend shifts"},
	KindEmployeeWeekdayShifts: {func(m EmployeeMetrics) int { return m.WeekdayShifts }, "weekday shifts"},
}

// ComputeEmployeeMetrics scans the employee's assignments on the given dates
func ComputeEmployeeMetrics(emp roster.Employee, dates []string, idx *RosterIndex) EmployeeMetrics {
	var m EmployeeMetrics
	for _, date := range dates {
		a, ok := idx.Assignment(emp.ID, date)
		if !ok {
			continue
		}
		m.Assignments++

		name := idx.ShiftName(a.ShiftID)
		vacation := isVacationShift(name)
		request := isRequestShift(name)
		if vacation {
			m.VacationDays++
		}
		if request {
			m.RequestDays++
		}
		if isDayShift(name) {
			m.DayShifts++
		}
		if isNightShift(name) {
			m.NightShifts++
		}
		if vacation || request || isOffShift(name) {
			continue
		}

		t, err := time.Parse(roster.DateLayout, date)
		if err != nil {
			continue
		}
		if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
			m.WeekendShifts++
		} else {
			m.WeekdayShifts++
		}
	}

	m.MoveDays = m.RequestDays
	m.TotalShifts = m.Assignments - m.VacationDays - m.RequestDays
	return m
}

// PeriodAggregator evaluates employee-scoped rules across a whole interval
type PeriodAggregator struct {
	idx *RosterIndex
}

// NewPeriodAggregator creates an aggregator over one pass's roster index
func NewPeriodAggregator(idx *RosterIndex) *PeriodAggregator {
	return &PeriodAggregator{idx: idx}
}

type employeeFailure struct {
	cond    *Condition
	actual  float64
	message string
}

// Evaluate returns at most one violation per employee: every failing
// condition of the rule is merged into it, with the highest severity.
func (p *PeriodAggregator) Evaluate(rule *Rule, dates []string) ([]*Violation, []Diagnostic) {
	var diags []Diagnostic
	var usable []*Condition
	for i := range rule.Conditions {
		cond := &rule.Conditions[i]
		if reason, detail := checkEmployeeCondition(cond); reason != "" {
			diags = append(diags, Diagnostic{
				RuleID: rule.ID, RuleName: rule.Name, Date: PeriodDate,
				Kind: reason, Detail: detail,
			})
			continue
		}
		usable = append(usable, cond)
	}
	if len(usable) == 0 {
		return nil, diags
	}

	var violations []*Violation
	for _, emp := range p.idx.Employees() {
		var metrics *EmployeeMetrics
		var failures []employeeFailure

		for _, cond := range usable {
			if !p.matchesFilters(emp, cond) {
				continue
			}
			if metrics == nil {
				m := ComputeEmployeeMetrics(emp, dates, p.idx)
				metrics = &m
			}

			spec := employeeKinds[cond.Type]
			actual := float64(spec.metric(*metrics))
			violated, _ := CheckOperator(actual, cond.Operator, *cond.Value)
			if !violated {
				continue
			}

			message := cond.Message
			if message == "" {
				message = failureMessage(cond.Operator, *cond.Value, spec.label, actual)
			}
			failures = append(failures, employeeFailure{cond: cond, actual: actual, message: message})
		}

		if len(failures) > 0 {
			violations = append(violations, mergeFailures(rule, emp, failures))
		}
	}

	return violations, diags
}

func checkEmployeeCondition(cond *Condition) (reason, detail string) {
	if _, ok := employeeKinds[cond.Type]; !ok {
		return DiagnosticUnknownKind, fmt.Sprintf("condition type %q", cond.Type)
	}
	if !IsKnownOperator(cond.Operator) {
		return DiagnosticUnknownOperator, fmt.Sprintf("operator %q", cond.Operator)
	}
	if cond.Value == nil {
		return DiagnosticMissingValue, fmt.Sprintf("condition %q has no value", cond.Type)
	}
	if _, ok := CheckOperator(0, cond.Operator, *cond.Value); !ok {
		return DiagnosticUnknownOperator, fmt.Sprintf("operator %q does not accept value %s", cond.Operator, cond.Value)
	}
	return "", ""
}

func (p *PeriodAggregator) matchesFilters(emp roster.Employee, cond *Condition) bool {
	if cond.EmployeeID != "" && cond.EmployeeID != emp.ID {
		return false
	}
	if cond.Filters == nil {
		return true
	}
	if cond.Filters.EmployeeID != "" && cond.Filters.EmployeeID != emp.ID {
		return false
	}
	if cond.Filters.Role != "" && !slices.Contains(p.idx.resolveRoles(cond.Filters.Role), emp.RoleID) {
		return false
	}
	return true
}

// mergeFailures folds an employee's failures into one violation. Actual and
// expected values come from the first failing condition.
func mergeFailures(rule *Rule, emp roster.Employee, failures []employeeFailure) *Violation {
	first := failures[0]
	severity := first.cond.Severity.OrDefault()
	messages := make([]string, 0, len(failures))
	for _, f := range failures {
		if s := f.cond.Severity.OrDefault(); s.Rank() > severity.Rank() {
			severity = s
		}
		messages = append(messages, f.message)
	}

	return &Violation{
		RuleID:        rule.ID,
		RuleName:      rule.Name,
		Date:          PeriodDate,
		Severity:      severity,
		Message:       strings.Join(messages, "; "),
		ActualValue:   first.actual,
		ExpectedValue: *first.cond.Value,
		EmployeeID:    emp.ID,
		EmployeeName:  emp.Name,
	}
}
