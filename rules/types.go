package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrRuleNotFound is returned when a rule ID is not in the store
	ErrRuleNotFound = errors.New("rule not found")
	// ErrRuleExists is returned when adding a rule whose ID is taken
	ErrRuleExists = errors.New("rule already exists")
	// ErrInvalidRule wraps every validation failure
	ErrInvalidRule = errors.New("invalid rule")
	// ErrTemplateNotFound is returned for an unknown template ID
	ErrTemplateNotFound = errors.New("template not found")
)

// Severity ranks how important a violation is
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Rank orders severities for sorting and merging; unknown values rank 0
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// OrDefault returns error when no severity was configured
func (s Severity) OrDefault() Severity {
	if s == "" {
		return SeverityError
	}
	return s
}

// Operator compares an actual count against the expected value
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpGreaterThan        Operator = "greater_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThan           Operator = "less_than"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpBetween            Operator = "between"
)

// ConditionKind selects the counting function of a condition
type ConditionKind string

// EmployeeScopePrefix marks condition kinds evaluated per employee across the interval
const EmployeeScopePrefix = "employee_"

const (
	KindCountByRole         ConditionKind = "count_by_role"
	KindCountByShift        ConditionKind = "count_by_shift"
	KindCountByRoleAndShift ConditionKind = "count_by_role_and_shift"
	KindTotalStaff          ConditionKind = "total_staff"
	KindCustomExpression    ConditionKind = "custom_expression"

	KindSummaryChargeDay   ConditionKind = "summary_charge_day"
	KindSummaryChargeNight ConditionKind = "summary_charge_night"
	KindSummaryRNDay       ConditionKind = "summary_rn_day"
	KindSummaryRNNight     ConditionKind = "summary_rn_night"
	KindSummaryLPNDay      ConditionKind = "summary_lpn_day"
	KindSummaryLPNNight    ConditionKind = "summary_lpn_night"
	KindSummaryCNADay      ConditionKind = "summary_cna_day"
	KindSummaryCNANight    ConditionKind = "summary_cna_night"
	KindSummaryTechDay     ConditionKind = "summary_tech_day"
	KindSummaryTechNight   ConditionKind = "summary_tech_night"
	KindSummaryClerkDay    ConditionKind = "summary_clerk_day"
	KindSummaryClerkNight  ConditionKind = "summary_clerk_night"

	KindEmployeeTotalShifts   ConditionKind = "employee_total_shifts"
	KindEmployeeVacationDays  ConditionKind = "employee_vacation_days"
	KindEmployeeMoveDays      ConditionKind = "employee_move_days"
	KindEmployeeDayShifts     ConditionKind = "employee_day_shifts"
	KindEmployeeNightShifts   ConditionKind = "employee_night_shifts"
	KindEmployeeWeekendShifts ConditionKind = "employee_weekend_shifts"
	KindEmployeeWeekdayShifts ConditionKind = "employee_weekday_shifts"
)

// IsEmployeeScoped reports whether the kind carries the employee scope marker
func (k ConditionKind) IsEmployeeScoped() bool {
	return strings.HasPrefix(string(k), EmployeeScopePrefix)
}

// Value is the expected value of a condition: a single number, or a
// {min, max} range for the between operator
type Value struct {
	Number  float64
	Min     float64
	Max     float64
	IsRange bool
}

// Num returns a single-number value
func Num(n float64) *Value {
	return &Value{Number: n}
}

// Range returns an inclusive range value
func Range(min, max float64) *Value {
	return &Value{Min: min, Max: max, IsRange: true}
}

func (v Value) String() string {
	if v.IsRange {
		return formatNumber(v.Min) + " and " + formatNumber(v.Max)
	}
	return formatNumber(v.Number)
}

// MarshalJSON writes a number, or {"min":..,"max":..} for ranges
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsRange {
		return json.Marshal(struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		}{v.Min, v.Max})
	}
	return json.Marshal(v.Number)
}

// UnmarshalJSON accepts a number, a numeric string, {min,max} or [min,max]
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty value")
	}

	switch data[0] {
	case '{':
		var r struct {
			Min *json.RawMessage `json:"min"`
			Max *json.RawMessage `json:"max"`
		}
		if err := json.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("invalid range value: %w", err)
		}
		if r.Min == nil || r.Max == nil {
			return errors.New("range value requires min and max")
		}
		min, err := parseNumber(*r.Min)
		if err != nil {
			return fmt.Errorf("invalid range min: %w", err)
		}
		max, err := parseNumber(*r.Max)
		if err != nil {
			return fmt.Errorf("invalid range max: %w", err)
		}
		*v = Value{Min: min, Max: max, IsRange: true}
		return nil
	case '[':
		var pair []json.RawMessage
		if err := json.Unmarshal(data, &pair); err != nil {
			return fmt.Errorf("invalid range value: %w", err)
		}
		if len(pair) != 2 {
			return fmt.Errorf("range value needs 2 elements, got %d", len(pair))
		}
		min, err := parseNumber(pair[0])
		if err != nil {
			return fmt.Errorf("invalid range min: %w", err)
		}
		max, err := parseNumber(pair[1])
		if err != nil {
			return fmt.Errorf("invalid range max: %w", err)
		}
		*v = Value{Min: min, Max: max, IsRange: true}
		return nil
	default:
		n, err := parseNumber(data)
		if err != nil {
			return err
		}
		*v = Value{Number: n}
		return nil
	}
}

func parseNumber(data json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return 0, fmt.Errorf("value %s is not a number", string(data))
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("value %q is not a number", s)
	}
	return n, nil
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// EmployeeFilters narrows the employees an employee-scoped condition applies to
type EmployeeFilters struct {
	Role       string `json:"role,omitempty"`
	EmployeeID string `json:"employeeId,omitempty"`
}

// Condition is one check inside a rule
type Condition struct {
	Type       ConditionKind    `json:"type"`
	Operator   Operator         `json:"operator"`
	Value      *Value           `json:"value,omitempty"`
	Severity   Severity         `json:"severity,omitempty"`
	DayFilter  string           `json:"dayFilter,omitempty"`
	Filters    *EmployeeFilters `json:"filters,omitempty"`
	EmployeeID string           `json:"employeeId,omitempty"`
	Role       string           `json:"role,omitempty"`
	Shift      string           `json:"shift,omitempty"`
	Message    string           `json:"message,omitempty"`
	// Expression is a CEL expression producing the actual value of custom_expression conditions
	Expression string `json:"expression,omitempty"`
	// When is a JSON-logic guard; the condition only applies on dates where it yields true
	When json.RawMessage `json:"when,omitempty"`
}

// Rule is a named staffing constraint. It is either simple (Conditions) or
// advanced (JSON, a free-form condition tree); never both.
type Rule struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Enabled     bool            `json:"enabled"`
	Conditions  []Condition     `json:"conditions,omitempty"`
	JSON        json.RawMessage `json:"json,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// UnmarshalJSON defaults Enabled to true when the field is absent
func (r *Rule) UnmarshalJSON(data []byte) error {
	type plain Rule
	aux := struct {
		*plain
		Enabled *bool `json:"enabled"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Enabled = aux.Enabled == nil || *aux.Enabled
	return nil
}

// RuleShape tags the two mutually exclusive rule bodies
type RuleShape int

const (
	ShapeSimple RuleShape = iota
	ShapeAdvanced
)

// RuleBody is the tagged union of a rule's definition
type RuleBody struct {
	Shape      RuleShape
	Conditions []Condition
	Tree       json.RawMessage
}

// IsAdvanced reports whether the rule carries a JSON condition tree
func (r *Rule) IsAdvanced() bool {
	trimmed := bytes.TrimSpace(r.JSON)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// Body returns the rule's definition as a tagged union
func (r *Rule) Body() RuleBody {
	if r.IsAdvanced() {
		return RuleBody{Shape: ShapeAdvanced, Tree: r.JSON}
	}
	return RuleBody{Shape: ShapeSimple, Conditions: r.Conditions}
}

// Clone returns a deep copy
func (r *Rule) Clone() *Rule {
	c := *r
	if r.Conditions != nil {
		c.Conditions = make([]Condition, len(r.Conditions))
		for i, cond := range r.Conditions {
			c.Conditions[i] = cond.clone()
		}
	}
	if r.JSON != nil {
		c.JSON = append(json.RawMessage(nil), r.JSON...)
	}
	return &c
}

func (c Condition) clone() Condition {
	if c.Value != nil {
		v := *c.Value
		c.Value = &v
	}
	if c.Filters != nil {
		f := *c.Filters
		c.Filters = &f
	}
	if c.When != nil {
		c.When = append(json.RawMessage(nil), c.When...)
	}
	return c
}

// PeriodDate is the date token of employee-scoped violations
const PeriodDate = "Period"

// Violation is one reported rule failure
type Violation struct {
	RuleID        string   `json:"ruleId"`
	RuleName      string   `json:"ruleName"`
	Date          string   `json:"date"`
	Severity      Severity `json:"severity"`
	Message       string   `json:"message"`
	ActualValue   float64  `json:"actualValue"`
	ExpectedValue Value    `json:"expectedValue"`
	EmployeeID    string   `json:"employeeId,omitempty"`
	EmployeeName  string   `json:"employeeName,omitempty"`
}

// Diagnostic records a condition or rule the engine could not evaluate.
// Diagnostics never stop a pass.
type Diagnostic struct {
	RuleID   string `json:"ruleId"`
	RuleName string `json:"ruleName"`
	Date     string `json:"date,omitempty"`
	Kind     string `json:"kind"`
	Detail   string `json:"detail"`
}

const (
	DiagnosticUnknownKind     = "unknown_condition_type"
	DiagnosticUnknownOperator = "unknown_operator"
	DiagnosticMalformedTree   = "malformed_tree"
	DiagnosticExpression      = "expression_error"
	DiagnosticGuard           = "guard_error"
	DiagnosticMissingTarget   = "missing_target"
	DiagnosticMissingValue    = "missing_value"
	DiagnosticUnknownFilter   = "unknown_day_filter"
)
