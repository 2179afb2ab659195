//go:build property
// +build property

package rules

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/liamcoop/staffrules/roster"
)

var propertyDates = []string{"2024-01-03", "2024-01-01", PeriodDate, "2024-01-02", "not-a-date"}
var propertySeverities = []Severity{SeverityError, SeverityWarning, SeverityInfo, "custom"}

// randomRoster assigns each employee the shift picked by codes[i] on day i
func randomRoster(codes []int) *roster.Roster {
	shifts := []string{"", "day", "night", "vac", "req", "off"}
	var as []roster.Assignment
	dates := roster.Dates(testStart, 14)
	for i, c := range codes {
		emp := []string{"e1", "e2", "e3"}[i%3]
		day := (i / 3) % len(dates)
		if s := shifts[c%len(shifts)]; s != "" {
			as = append(as, assign(emp, dates[day], s))
		}
	}
	return testRoster(as...)
}

// TestSortedAdjacentPairs verifies: dates ascend, and equal dates have non-increasing severity rank
func TestSortedAdjacentPairs(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("sorted violations are ordered by date then severity", prop.ForAll(
		func(codes []int) bool {
			vs := make([]*Violation, len(codes))
			for i, c := range codes {
				vs[i] = &Violation{
					Date:     propertyDates[c%len(propertyDates)],
					Severity: propertySeverities[(c/len(propertyDates))%len(propertySeverities)],
				}
			}
			SortViolations(vs)
			for i := 0; i+1 < len(vs); i++ {
				di, dj := dateSortKey(vs[i].Date), dateSortKey(vs[i+1].Date)
				if di.After(dj) {
					return false
				}
				if di.Equal(dj) && vs[i].Severity.Rank() < vs[i+1].Severity.Rank() {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}

// TestDayFilterSkipsExcludedDates verifies an excluded date is never compared
func TestDayFilterSkipsExcludedDates(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	filters := []string{"weekdays", "weekends", "monday", "Sat", "sunday", "all", ""}
	idx := NewRosterIndex(testRoster())
	exprs, err := NewExpressionCompiler()
	if err != nil {
		t.Fatalf("NewExpressionCompiler() failed: %v", err)
	}
	ev := NewEvaluator(idx, exprs)

	properties.Property("excluded dates yield skipped outcomes", prop.ForAll(
		func(f, offset, threshold int) bool {
			filter := filters[f]
			date := testStart.AddDate(0, 0, offset)
			// always violated when evaluated: zero staff against a positive minimum
			cond := Condition{Type: KindTotalStaff, Operator: OpGreaterThanOrEqual, Value: Num(float64(threshold)), DayFilter: filter}
			out := ev.Evaluate(&cond, date.Format(roster.DateLayout), BuildSnapshot(date.Format(roster.DateLayout), idx))
			if DayFilterApplies(filter, date.Weekday()) {
				return out.Kind == OutcomeViolation
			}
			return out.Kind == OutcomeSkipped
		},
		gen.IntRange(0, len(filters)-1),
		gen.IntRange(0, 30),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

// TestDisablingRemovesOnlyThatRule verifies disabling one rule leaves the others' violations intact
func TestDisablingRemovesOnlyThatRule(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("disabling a rule removes exactly its contributions", prop.ForAll(
		func(codes []int, a, b int) bool {
			engine, err := NewEngine(randomRoster(codes), roster.NewStaticCalendar(testStart, 14))
			if err != nil {
				return false
			}
			ra := simpleRule("a", Condition{Type: KindTotalStaff, Operator: OpGreaterThanOrEqual, Value: Num(float64(a))})
			rb := simpleRule("b", Condition{Type: KindEmployeeTotalShifts, Operator: OpGreaterThanOrEqual, Value: Num(float64(b))})
			if engine.AddRule(ra) != nil || engine.AddRule(rb) != nil {
				return false
			}

			before := engine.EvaluateRules()
			ra.Enabled = false
			if engine.UpdateRule(ra) != nil {
				return false
			}
			after := engine.EvaluateRules()

			if len(violationsFor(after, "a")) != 0 {
				return false
			}
			x, _ := json.Marshal(violationsFor(before, "b"))
			y, _ := json.Marshal(violationsFor(after, "b"))
			return bytes.Equal(x, y)
		},
		gen.SliceOf(gen.IntRange(0, 5)),
		gen.IntRange(0, 4),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}

// TestEmployeeMergeProperty verifies one violation per employee per rule, at the highest severity
func TestEmployeeMergeProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("failures merge per employee", prop.ForAll(
		func(codes []int, t1, t2, t3 int) bool {
			agg := NewPeriodAggregator(NewRosterIndex(randomRoster(codes)))
			rule := simpleRule("merge",
				Condition{Type: KindEmployeeTotalShifts, Operator: OpGreaterThanOrEqual, Value: Num(float64(t1)), Severity: SeverityInfo},
				Condition{Type: KindEmployeeDayShifts, Operator: OpGreaterThanOrEqual, Value: Num(float64(t2)), Severity: SeverityWarning},
				Condition{Type: KindEmployeeNightShifts, Operator: OpLessThanOrEqual, Value: Num(float64(t3)), Severity: SeverityError},
			)
			dates := roster.Dates(testStart, 14)
			vs, _ := agg.Evaluate(rule, dates)

			seen := map[string]bool{}
			for _, v := range vs {
				if seen[v.EmployeeID] || v.Date != PeriodDate {
					return false
				}
				seen[v.EmployeeID] = true

				m := ComputeEmployeeMetrics(roster.Employee{ID: v.EmployeeID}, dates, agg.idx)
				want := SeverityInfo
				if m.DayShifts < t2 {
					want = SeverityWarning
				}
				if m.NightShifts > t3 {
					want = SeverityError
				}
				if m.TotalShifts >= t1 && m.DayShifts >= t2 && m.NightShifts <= t3 {
					return false
				}
				if v.Severity != want {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 5)),
		gen.IntRange(0, 10),
		gen.IntRange(0, 6),
		gen.IntRange(0, 6),
	))

	properties.TestingRun(t)
}

// TestRepeatedEvaluationIsIdentical verifies cached and recomputed passes agree byte for byte
func TestRepeatedEvaluationIsIdentical(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("repeat evaluation is byte-identical", prop.ForAll(
		func(codes []int, n int) bool {
			engine, err := NewEngine(randomRoster(codes), roster.NewStaticCalendar(testStart, 14))
			if err != nil {
				return false
			}
			if engine.AddRule(simpleRule("total", Condition{Type: KindTotalStaff, Operator: OpGreaterThanOrEqual, Value: Num(float64(n))})) != nil {
				return false
			}
			first, _ := json.Marshal(engine.EvaluateRules())
			second, _ := json.Marshal(engine.EvaluateRules())
			// dropping the cache forces a recompute
			engine.cache.Invalidate()
			third, _ := json.Marshal(engine.EvaluateRules())
			return bytes.Equal(first, second) && bytes.Equal(first, third)
		},
		gen.SliceOf(gen.IntRange(0, 5)),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
