package rules

import (
	"testing"
	"time"

	"github.com/liamcoop/staffrules/roster"
)

// testStart is a Monday
var testStart = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func assign(employeeID, date, shiftID string) roster.Assignment {
	return roster.Assignment{EmployeeID: employeeID, Date: date, ShiftID: shiftID}
}

// testRoster has three employees (RN, Charge, CNA) and day, night, vacation,
// request and off shift types
func testRoster(assignments ...roster.Assignment) *roster.Roster {
	return roster.New(roster.Data{
		Employees: []roster.Employee{
			{ID: "e1", Name: "Alice", RoleID: "rn"},
			{ID: "e2", Name: "Bob", RoleID: "charge"},
			{ID: "e3", Name: "Cara", RoleID: "cna"},
		},
		JobRoles: []roster.JobRole{
			{ID: "rn", Name: "RN"},
			{ID: "charge", Name: "Charge"},
			{ID: "cna", Name: "CNA"},
		},
		ShiftTypes: []roster.ShiftType{
			{ID: "day", Name: "Day"},
			{ID: "night", Name: "Night"},
			{ID: "vac", Name: "C Vacation"},
			{ID: "req", Name: "R1 Request"},
			{ID: "off", Name: "Off"},
		},
		Assignments: assignments,
	})
}

func newTestEngine(t *testing.T, provider roster.Provider, days int, opts ...Option) *Engine {
	t.Helper()
	engine, err := NewEngine(provider, roster.NewStaticCalendar(testStart, days), opts...)
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	return engine
}

func simpleRule(id string, conds ...Condition) *Rule {
	return &Rule{ID: id, Name: "Rule " + id, Enabled: true, Conditions: conds}
}

func mustAdd(t *testing.T, engine *Engine, r *Rule) {
	t.Helper()
	if err := engine.AddRule(r); err != nil {
		t.Fatalf("AddRule(%s) failed: %v", r.ID, err)
	}
}

func violationsFor(vs []*Violation, ruleID string) []*Violation {
	var out []*Violation
	for _, v := range vs {
		if v.RuleID == ruleID {
			out = append(out, v)
		}
	}
	return out
}
